package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"assistant/internal/config"
	"assistant/internal/model"
	"assistant/internal/storage"
	"assistant/internal/timeparse"
)

func (c *cli) taskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
	}
	cmd.AddCommand(c.taskAddCmd(), c.taskListCmd())
	return cmd
}

func (c *cli) taskAddCmd() *cobra.Command {
	var (
		desc       string
		due        string
		priority   int
		recurrence string
		offset     int
	)
	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Create a task quickly",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()
			nt := model.NewTask{Title: args[0]}
			if strings.TrimSpace(nt.Title) == "" {
				return fmt.Errorf("title is required")
			}
			flags := cmd.Flags()
			if flags.Changed("description") {
				nt.Description = &desc
			}
			if flags.Changed("due") {
				t, ok := timeparse.Parse(due, now)
				if !ok {
					return fmt.Errorf("--due: unrecognized time %q (use ISO-8601 or \"in N minutes|hours|days\")", due)
				}
				nt.DueDate = &t
			}
			if flags.Changed("priority") {
				nt.Priority = &priority
			}
			if flags.Changed("recurrence") {
				nt.Recurrence = &recurrence
			}
			if flags.Changed("reminder") {
				nt.ReminderOffset = &offset
			}
			return c.withStore(cmd, func(ctx context.Context, st storage.Store, _ *config.Config) error {
				t, err := st.CreateTask(ctx, nt.Task(now))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Task saved with id=%d\n", t.ID)
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVarP(&desc, "description", "d", "", "task description")
	f.StringVar(&due, "due", "", `due date: ISO-8601 or "in N minutes|hours|days"`)
	f.IntVarP(&priority, "priority", "p", 0, "priority, lower is more urgent")
	f.StringVarP(&recurrence, "recurrence", "r", "", "daily, weekly, weekdays or a five-field cron expression")
	f.IntVarP(&offset, "reminder", "m", 0, "remind this many minutes before the due date")
	return cmd
}

func (c *cli) taskListCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withStore(cmd, func(ctx context.Context, st storage.Store, _ *config.Config) error {
				tasks, err := st.ListTasks(ctx, storage.TaskFilter{IncludeCompleted: all})
				if err != nil {
					return err
				}
				tw := newTable(cmd)
				tw.AppendHeader(table.Row{"ID", "Title", "Due", "Priority", "Recurrence", "Done"})
				for _, t := range tasks {
					tw.AppendRow(taskRow(t))
				}
				tw.AppendFooter(table.Row{"", fmt.Sprintf("%d task(s)", len(tasks))})
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include completed tasks")
	return cmd
}

func newTable(cmd *cobra.Command) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(cmd.OutOrStdout())
	tw.SetStyle(table.StyleRounded)
	tw.Style().Format.Header = text.FormatDefault
	tw.Style().Format.Footer = text.FormatDefault
	return tw
}

func taskRow(t model.Task) table.Row {
	due, prio, done := "-", "-", ""
	if t.DueDate != nil {
		due = t.DueDate.UTC().Format("2006-01-02 15:04")
	}
	if t.Priority != nil {
		prio = strconv.Itoa(*t.Priority)
	}
	if t.Completed {
		done = "✔"
	}
	rec := t.RecurrenceExpr()
	if rec == "" {
		rec = "-"
	}
	return table.Row{t.ID, t.Title, due, prio, rec, done}
}
