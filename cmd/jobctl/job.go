package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"contentgen/internal/domain"
)

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Inspect jobs",
}

var jobShowDomain string

var jobShowCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Show a job with its content and artifacts",
	Long: `Show looks the id up as an internal job id. With --domain it also
matches external job ids and their aliases.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := openEnv(ctx)
		if err != nil {
			return err
		}
		defer e.close()

		id := args[0]
		job, err := e.store.Jobs().GetByID(ctx, id)
		if errors.Is(err, domain.ErrNotFound) && jobShowDomain != "" {
			d, perr := domain.ParseDomain(jobShowDomain)
			if perr != nil {
				return perr
			}
			job, err = e.store.Jobs().FindByExternalID(ctx, d, id)
		}
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("job %q not found", id)
		}
		if err != nil {
			return err
		}

		out := map[string]any{"job": job}
		content, err := e.store.Content().ContentByJob(ctx, job.ID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
		case err != nil:
			return err
		default:
			artifacts, err := e.store.Content().Artifacts(ctx, content.ID)
			if err != nil {
				return err
			}
			out["content"] = content
			out["artifacts"] = artifacts
		}
		return printJSON(cmd.OutOrStdout(), out)
	},
}

func init() {
	jobShowCmd.Flags().StringVar(&jobShowDomain, "domain", "", "domain of an external job id: book, image or video")
	jobCmd.AddCommand(jobShowCmd)
}
