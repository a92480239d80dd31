package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"gastos/internal/client"
	"gastos/internal/core"
)

const barWidth = 30

func loginCmd() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "login <user-id>",
		Short: "Sign in as a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := apiClient().SignIn(cmd.Context(), args[0], email)
			if err != nil {
				return err
			}
			fmt.Println(successStyle.Render("Signed in as " + info.DisplayName))
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email of the user")
	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out the current user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := apiClient().SignOut(cmd.Context()); err != nil {
				return err
			}
			fmt.Println(mutedStyle.Render("Signed out"))
			return nil
		},
	}
}

func addCmd() *cobra.Command {
	var e client.NewExpense
	cmd := &cobra.Command{
		Use:   "add <amount>",
		Short: "Record an expense",
		Long: `Record an expense. Amounts accept a decimal point or comma.
The date defaults to now; --date takes YYYY-MM-DD and cannot be in the future.`,
		Example: `  gastos add 15000 --category food --note "mercado"
  gastos add 12,50 -c transport --date 2024-03-10`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e.Amount = args[0]
			id, err := apiClient().CreateExpense(cmd.Context(), e)
			if err != nil {
				return explain(err)
			}
			fmt.Println(successStyle.Render("Expense recorded ") + mutedStyle.Render(id))
			return nil
		},
	}
	cmd.Flags().StringVarP(&e.CategoryID, "category", "c", "others", "category id")
	cmd.Flags().StringVarP(&e.Note, "note", "n", "", "short note (max 100 characters)")
	cmd.Flags().StringVarP(&e.Date, "date", "d", "", "date as YYYY-MM-DD")
	return cmd
}

func editCmd() *cobra.Command {
	var amount, category, note, date string
	cmd := &cobra.Command{
		Use:   "edit <expense-id>",
		Short: "Change an expense",
		Long:  `Change the given fields of an expense. Fields without a flag keep their value.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var edit client.ExpenseEdit
			flags := cmd.Flags()
			if flags.Changed("amount") {
				edit.Amount = &amount
			}
			if flags.Changed("category") {
				edit.CategoryID = &category
			}
			if flags.Changed("note") {
				edit.Note = &note
			}
			if flags.Changed("date") {
				edit.Date = &date
			}
			if edit == (client.ExpenseEdit{}) {
				return fmt.Errorf("nothing to change, pass at least one of --amount, --category, --note, --date")
			}
			if err := apiClient().UpdateExpense(cmd.Context(), args[0], edit); err != nil {
				return explain(err)
			}
			fmt.Println(successStyle.Render("Expense updated"))
			return nil
		},
	}
	cmd.Flags().StringVarP(&amount, "amount", "a", "", "new amount")
	cmd.Flags().StringVarP(&category, "category", "c", "", "new category id")
	cmd.Flags().StringVarP(&note, "note", "n", "", "new note")
	cmd.Flags().StringVarP(&date, "date", "d", "", "new date as YYYY-MM-DD")
	return cmd
}

func rmCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <expense-id>",
		Aliases: []string{"delete"},
		Short:   "Delete an expense",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := apiClient().DeleteExpense(cmd.Context(), args[0]); err != nil {
				return explain(err)
			}
			fmt.Println(mutedStyle.Render("Expense deleted"))
			return nil
		},
	}
}

func listCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the latest expenses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := apiClient()
			expenses, err := c.Expenses(cmd.Context(), limit)
			if err != nil {
				return explain(err)
			}
			if len(expenses) == 0 {
				fmt.Println(mutedStyle.Render("No expenses yet. Use 'gastos add' to record one."))
				return nil
			}
			cats, err := c.Categories(cmd.Context())
			if err != nil {
				return explain(err)
			}
			names := make(map[string]string, len(cats))
			for _, cat := range cats {
				names[cat.ID] = cat.Icon + " " + cat.Name
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			defer w.Flush()
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				headerStyle.Render("Date"),
				headerStyle.Render("Amount"),
				headerStyle.Render("Category"),
				headerStyle.Render("Note"),
				headerStyle.Render("ID"))
			for _, e := range expenses {
				name, ok := names[e.CategoryID]
				if !ok {
					name = names["others"]
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					e.Date.Local().Format("2006-01-02"),
					e.Amount.StringFixed(2),
					name,
					e.Note,
					mutedStyle.Render(e.ID))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "maximum number of expenses, 0 for all")
	return cmd
}

func budgetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "budget <amount>",
		Short: "Set the monthly budget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			budget, err := apiClient().SetBudget(cmd.Context(), args[0])
			if err != nil {
				return explain(err)
			}
			fmt.Println(successStyle.Render("Monthly budget set to " + budget.StringFixed(2)))
			return nil
		},
	}
}

func statsCmd() *cobra.Command {
	var period string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show totals, budget use and the category breakdown",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := core.ParsePeriod(period)
			if err != nil {
				return err
			}
			v, err := apiClient().View(cmd.Context(), p)
			if err != nil {
				return explain(err)
			}

			fmt.Println(titleStyle.Render("Today ") + v.TodayTotal.StringFixed(2))
			fmt.Println(titleStyle.Render("This month ") + v.MonthTotal.StringFixed(2))
			if v.Budget.IsPositive() {
				line := fmt.Sprintf("Budget %s, %s%% used, %s left",
					v.Budget.StringFixed(2), v.Utilization.StringFixed(1), v.Remaining.StringFixed(2))
				if v.Remaining.IsNegative() {
					fmt.Println(warnStyle.Render(line))
				} else {
					fmt.Println(mutedStyle.Render(line))
				}
			}
			fmt.Println()
			fmt.Printf("%s %s to %s: %s\n",
				headerStyle.Render(strings.ToUpper(string(v.Period))),
				v.PeriodStart.Local().Format("2006-01-02"),
				v.PeriodEnd.Local().Format("2006-01-02"),
				v.PeriodTotal.StringFixed(2))

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			for _, row := range v.Breakdown {
				fmt.Fprintf(w, "%s %s %s\t%s\t%s%%\n",
					swatch(row.Color), row.Icon, row.Name, row.Amount.StringFixed(2), row.Percent.StringFixed(1))
			}
			w.Flush()

			peak := decimal.Zero
			for _, b := range v.Series {
				peak = decimal.Max(peak, b.Amount)
			}
			if peak.IsZero() {
				return nil
			}
			fmt.Println()
			for _, b := range v.Series {
				width := int(b.Amount.Mul(decimal.NewFromInt(barWidth)).Div(peak).IntPart())
				fmt.Printf("%-6s %s %s\n", b.Label,
					titleStyle.Render(strings.Repeat("█", width)), mutedStyle.Render(b.Amount.StringFixed(2)))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&period, "period", "p", "month", "week, month or year")
	return cmd
}

func categoriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "Manage expense categories",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List built-in and custom categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cats, err := apiClient().Categories(cmd.Context())
			if err != nil {
				return explain(err)
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			defer w.Flush()
			fmt.Fprintf(w, "%s\t%s\t%s\n",
				headerStyle.Render("ID"), headerStyle.Render("Category"), headerStyle.Render("Kind"))
			for _, c := range cats {
				kind := "built-in"
				if strings.HasPrefix(c.ID, core.CustomCategoryPrefix) {
					kind = "custom"
				}
				fmt.Fprintf(w, "%s\t%s %s %s\t%s\n", c.ID, swatch(c.Color), c.Icon, c.Name, mutedStyle.Render(kind))
			}
			return nil
		},
	}

	var icon string
	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a custom category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient().AddCategory(cmd.Context(), args[0], icon)
			if err != nil {
				return explain(err)
			}
			fmt.Println(successStyle.Render("Category added ") + swatch(c.Color) + " " + c.Name + " " + mutedStyle.Render(c.ID))
			return nil
		},
	}
	add.Flags().StringVarP(&icon, "icon", "i", "", "icon shown next to the name")

	rm := &cobra.Command{
		Use:   "rm <category-id>",
		Short: "Remove a custom category",
		Long:  `Remove a custom category. Expenses keep their category id and are shown under "others".`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := apiClient().RemoveCategory(cmd.Context(), args[0]); err != nil {
				return explain(err)
			}
			fmt.Println(mutedStyle.Render("Category removed"))
			return nil
		},
	}

	cmd.AddCommand(list, add, rm)
	return cmd
}
