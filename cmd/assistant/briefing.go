package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"assistant/internal/briefing"
	"assistant/internal/config"
	"assistant/internal/model"
	"assistant/internal/storage"
)

func (c *cli) briefingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "briefing",
		Short: "Show today's briefing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withStore(cmd, func(ctx context.Context, st storage.Store, cfg *config.Config) error {
				b, err := briefing.Build(ctx, st, time.Now(), briefing.Config{UpcomingDays: cfg.Reminders.UpcomingDays})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Briefing for %s (UTC)\n", b.Timestamp.Format("2006-01-02 15:04"))
				sections := []struct {
					name  string
					tasks []model.Task
				}{
					{"Overdue", b.Overdue},
					{"Due today", b.DueToday},
					{"Upcoming", b.Upcoming},
					{"Priorities", b.Priorities},
				}
				for _, s := range sections {
					tw := newTable(cmd)
					tw.SetTitle(fmt.Sprintf("%s (%d)", s.name, len(s.tasks)))
					tw.AppendHeader(table.Row{"ID", "Title", "Due", "Priority", "Recurrence", "Done"})
					for _, t := range s.tasks {
						tw.AppendRow(taskRow(t))
					}
					tw.Render()
				}

				tw := newTable(cmd)
				tw.SetTitle(fmt.Sprintf("Latest notes (%d)", len(b.LatestNotes)))
				tw.AppendHeader(table.Row{"ID", "Title", "Created"})
				for _, n := range b.LatestNotes {
					tw.AppendRow(table.Row{n.ID, n.Title, n.CreatedAt.UTC().Format("2006-01-02 15:04")})
				}
				tw.Render()
				return nil
			})
		},
	}
}
