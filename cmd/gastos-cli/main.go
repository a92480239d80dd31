package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"gastos/internal/cli"
	"gastos/internal/client"
	"gastos/internal/log"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:               "gastos",
		Short:             "Track personal expenses from the terminal",
		Long:              `gastos talks to a running gastos server: record expenses, set a monthly budget and read the statistics of the current week, month or year.`,
		SilenceUsage:      true,
		PersistentPreRunE: initConfig,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.config/gastos/config.yaml)")
	rootCmd.PersistentFlags().String("server", "http://localhost:8081", "gastos server URL")
	rootCmd.PersistentFlags().Duration("timeout", 10*time.Second, "request timeout")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level (debug, info, warn, error)")

	_ = viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))
	_ = viper.BindPFlag("timeout", rootCmd.PersistentFlags().Lookup("timeout"))
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(logoutCmd())
	rootCmd.AddCommand(addCmd())
	rootCmd.AddCommand(editCmd())
	rootCmd.AddCommand(rmCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(budgetCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(categoriesCmd())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: ")+err.Error())
		os.Exit(1)
	}
}

func initConfig(_ *cobra.Command, _ []string) error {
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		viper.AddConfigPath(home + "/.config/gastos")
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("GASTOS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	cli.SetupLogger(viper.GetString("logging.level"), log.ComponentCLI)
	return nil
}

// apiClient builds a client from the resolved configuration.
func apiClient() *client.Client {
	return client.New(viper.GetString("server"), viper.GetDuration("timeout"))
}

// explain turns a missing session into a hint.
func explain(err error) error {
	if client.IsUnauthenticated(err) {
		return fmt.Errorf("not signed in, run 'gastos login <user-id>' first")
	}
	return err
}
