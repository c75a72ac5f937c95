package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"contentgen/internal/infra"
	"contentgen/internal/outbox"
)

var notificationsCmd = &cobra.Command{
	Use:   "notifications",
	Short: "Inspect and drain the notification outbox",
}

var pendingLimit int

var notificationsPendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List notifications that were not dispatched yet",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := openEnv(ctx)
		if err != nil {
			return err
		}
		defer e.close()

		items, err := e.store.Notifications().ListPending(ctx, pendingLimit)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), items)
	},
}

var notificationsDispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Publish one batch of pending notifications",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := openEnv(ctx)
		if err != nil {
			return err
		}
		defer e.close()

		var publisher outbox.Publisher = outbox.NewLogPublisher(e.logger)
		if e.cfg.RedisAddr != "" {
			client, err := infra.NewRedisClient(ctx, e.cfg)
			if err != nil {
				return err
			}
			defer client.Close()
			publisher = outbox.NewStreamPublisher(client, e.cfg.NotificationStream)
		}
		d := outbox.NewDispatcher(e.store.Notifications(), publisher, outbox.Config{
			BatchSize: e.cfg.WorkerBatchSize,
			Attempts:  uint(e.cfg.WorkerMaxAttempts),
		}, e.logger)
		sent, err := d.DispatchOnce(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "dispatched %d notifications\n", sent)
		return nil
	},
}

func init() {
	notificationsPendingCmd.Flags().IntVar(&pendingLimit, "limit", 20, "maximum number of notifications to list")
	notificationsCmd.AddCommand(notificationsPendingCmd, notificationsDispatchCmd)
}
