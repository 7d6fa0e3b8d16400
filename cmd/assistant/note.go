package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"assistant/internal/config"
	"assistant/internal/model"
	"assistant/internal/storage"
)

func (c *cli) noteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "note <title> <content>",
		Short: "Create a note quickly",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStore(cmd, func(ctx context.Context, st storage.Store, _ *config.Config) error {
				n, err := st.CreateNote(ctx, model.Note{Title: args[0], Content: args[1], CreatedAt: time.Now().UTC()})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Note saved with id=%d\n", n.ID)
				return nil
			})
		},
	}
}
