// Package backend assembles the ledger stores and the change feed selected by
// DATA_BACKEND and AMQP_URL.
package backend

import (
	"context"
	"fmt"
	"slices"

	"gastos/internal/config"
	"gastos/internal/store"
)

// BackendType names a storage engine for the ledgers.
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

var backendTypes = []BackendType{SQLiteBackend, MemoryBackend}

func (bt BackendType) String() string { return string(bt) }

// IsValid reports whether bt names a known engine.
func (bt BackendType) IsValid() bool {
	return slices.Contains(backendTypes, bt)
}

// GetBackendTypeStrings lists the accepted DATA_BACKEND values.
func GetBackendTypeStrings() []string {
	out := make([]string, len(backendTypes))
	for i, t := range backendTypes {
		out[i] = t.String()
	}
	return out
}

// Config selects the store and how ledger changes are announced. An empty
// AMQPURL keeps announcements inside the process.
type Config struct {
	Type         BackendType
	SQLiteDBPath string

	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// FromAppConfig picks the backend settings out of the process configuration.
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}
	bt := BackendType(appConfig.DataBackend)
	if !bt.IsValid() {
		return Config{}, fmt.Errorf("unknown data backend %q, want one of %v", appConfig.DataBackend, GetBackendTypeStrings())
	}
	return Config{
		Type:         bt,
		SQLiteDBPath: appConfig.SQLiteDBPath,
		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,
		AMQPQueue:    appConfig.AMQPQueue,
	}, nil
}

func (c Config) Validate() error {
	switch {
	case !c.Type.IsValid():
		return fmt.Errorf("unknown backend type %q", c.Type)
	case c.Type == SQLiteBackend && c.SQLiteDBPath == "":
		return fmt.Errorf("sqlite backend needs a database path")
	case c.AMQPURL != "" && c.AMQPExchange == "":
		return fmt.Errorf("an AMQP URL needs an exchange name")
	}
	return nil
}

// CleanupFunc releases what a backend holds open.
type CleanupFunc func() error

// BackendResult bundles the stores with the feed that announces their changes.
type BackendResult struct {
	Backend store.Backend
	Feed    store.ChangeFeed
	Cleanup CleanupFunc
}

// Close runs the cleanup function if any.
func (r *BackendResult) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

// Factory builds backends from a Config.
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}
