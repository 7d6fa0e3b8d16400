package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"assistant/internal/config"
	"assistant/internal/export"
	"assistant/internal/storage"
)

const defaultExportPath = "assistant_export.json"

func (c *cli) exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export [path]",
		Short: "Dump all notes and tasks to JSON (- for stdout)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := defaultExportPath
			if len(args) == 1 {
				path = args[0]
			}
			return c.withStore(cmd, func(ctx context.Context, st storage.Store, _ *config.Config) error {
				if path == "-" {
					_, err := export.Write(ctx, st, cmd.OutOrStdout())
					return err
				}
				f, err := os.Create(path)
				if err != nil {
					return err
				}
				doc, err := export.Write(ctx, st, f)
				if cerr := f.Close(); err == nil {
					err = cerr
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Exported %d notes and %d tasks to %s\n", len(doc.Notes), len(doc.Tasks), path)
				return nil
			})
		},
	}
}
