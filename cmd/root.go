// Package cmd wires the ticketflow CLI: the API server, the worker,
// migrations, and demo data seeding.
package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rowanhq/ticketflow/internal/config"
	"github.com/rowanhq/ticketflow/internal/log"
	"github.com/rowanhq/ticketflow/internal/store/sqlite"
	"github.com/rowanhq/ticketflow/internal/tracing"
)

var (
	version = "dev"
	cfgFile string
	cfg     config.Config
)

var rootCmd = &cobra.Command{
	Use:     "ticketflow",
	Short:   "Durable customer-support ticket pipeline",
	Long: `Ticketflow ingests support tickets over HTTP and email, queues them
through RabbitMQ, and processes them with an LLM agent workflow under
an at-least-once delivery discipline with human approval gating.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: .ticketflow/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))

	cobra.OnInitialize(initConfig)
}

func initConfig() {
	var err error
	cfg, err = config.Load(viper.GetViper(), cfgFile)
	cobra.CheckErr(err)
}

// setup initializes logging and tracing; the returned func flushes both.
func setup() (func(), error) {
	flushLogs, err := log.Init(cfg.LogLevel, cfg.LogJSON)
	if err != nil {
		return nil, err
	}

	tracer, err := tracing.NewProvider(cfg.Tracing)
	if err != nil {
		flushLogs()
		return nil, fmt.Errorf("failed to init tracing: %w", err)
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracer.Shutdown(ctx); err != nil {
			log.Warn(log.CatAPI, "tracer shutdown failed", "error", err.Error())
		}
		flushLogs()
	}, nil
}

// openStore opens the database and applies pending migrations.
func openStore() (*sql.DB, *sqlite.Store, error) {
	db, err := sqlite.Open(cfg.DatabasePath)
	if err != nil {
		return nil, nil, err
	}
	if err := sqlite.Migrate(db); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return db, sqlite.New(db), nil
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags).
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
