package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"contentgen/internal/adapter/repo"
	"contentgen/internal/domain"
	"contentgen/internal/infra"
)

var rootCmd = &cobra.Command{
	Use:   "jobctl",
	Short: "Inspect generation jobs and maintain webhook bookkeeping",
	Long: `jobctl talks to the contentgen database directly. It shows jobs with
their materialized content, sweeps expired webhook event keys and drains
pending notifications.`,
	SilenceUsage: true,
}

var verbose bool

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log SQL statements")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		_ = godotenv.Load()
	}

	rootCmd.AddCommand(jobCmd, keysCmd, notificationsCmd)
}

type env struct {
	cfg    *infra.Config
	logger zerolog.Logger
	runner infra.SQLExecutor
	store  domain.Store
	close  func()
}

// openEnv is replaced in tests with a memory-backed environment.
var openEnv = openDatabaseEnv

func openDatabaseEnv(ctx context.Context) (*env, error) {
	cfg, err := infra.LoadConfig()
	if err != nil {
		return nil, err
	}
	level := "warn"
	if verbose {
		level = "debug"
	}
	logger := infra.NewLogger(cfg.AppEnv, level)
	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	runner := infra.NewSQLRunner(pool, logger)
	return &env{
		cfg:    cfg,
		logger: logger,
		runner: runner,
		store:  repo.NewPostgresStore(runner, runner),
		close:  pool.Close,
	}, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
