package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"contentgen/internal/domain"
	"contentgen/pkg/zip"
)

var exportOutput string

var jobExportCmd = &cobra.Command{
	Use:   "export <job-id>",
	Short: "Write the content of a completed job to a zip archive",
	Long: `Export writes manifest.json with the content entity and artifact list.
Book chapters are added as markdown files; media artifacts are referenced by
url in the manifest only.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := openEnv(ctx)
		if err != nil {
			return err
		}
		defer e.close()

		content, err := e.store.Content().ContentByJob(ctx, args[0])
		if err != nil {
			return fmt.Errorf("load content of job %s: %w", args[0], err)
		}
		artifacts, err := e.store.Content().Artifacts(ctx, content.ID)
		if err != nil {
			return err
		}

		manifest, err := json.MarshalIndent(map[string]any{"content": content, "artifacts": artifacts}, "", "  ")
		if err != nil {
			return err
		}
		entries := []zip.Entry{{Name: "manifest.json", Data: manifest, Modified: content.UpdatedAt}}
		if content.Domain == domain.DomainBook {
			for _, a := range artifacts {
				entries = append(entries, zip.Entry{
					Name:     fmt.Sprintf("chapters/%03d.md", a.Position),
					Data:     []byte(a.Body),
					Modified: a.CreatedAt,
				})
			}
		}
		data, err := zip.Archive(entries)
		if err != nil {
			return err
		}

		out := exportOutput
		if out == "" {
			out = content.ID + ".zip"
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", out, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d artifacts)\n", out, len(artifacts))
		return nil
	},
}

func init() {
	jobExportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "archive path (default: <content-id>.zip)")
	jobCmd.AddCommand(jobExportCmd)
}
