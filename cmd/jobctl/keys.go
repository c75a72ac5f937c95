package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"contentgen/internal/idempotency"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Maintain webhook event keys",
}

var keysSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete expired event keys from the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := openEnv(ctx)
		if err != nil {
			return err
		}
		defer e.close()
		if e.runner == nil {
			return fmt.Errorf("keys sweep needs DATABASE_URL")
		}

		removed, err := idempotency.NewPostgresGuard(e.runner, e.cfg.IdempotencyWindow).Sweep(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired event keys\n", removed)
		return nil
	},
}

func init() {
	keysCmd.AddCommand(keysSweepCmd)
}
