package main

import (
	"context"

	"github.com/spf13/cobra"

	"assistant/internal/app"
	"assistant/internal/config"
	"assistant/internal/storage"
	logx "assistant/pkg/logx"
)

const defaultConfigPath = "./assistant.yaml"

type cli struct {
	cfgPath string
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "assistant",
		Short:         "Personal assistant: notes, tasks and reminders",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&c.cfgPath, "config", defaultConfigPath, "path to config file (yaml or json)")

	root.AddCommand(
		c.serveCmd(),
		c.noteCmd(),
		c.taskCmd(),
		c.briefingCmd(),
		c.exportCmd(),
	)
	return root
}

// withStore opens the configured store for one command. Scheduling is
// left to serve, which rebuilds jobs from the store on start.
func (c *cli) withStore(cmd *cobra.Command, fn func(ctx context.Context, st storage.Store, cfg *config.Config) error) error {
	log := logx.NewWriter(cmd.ErrOrStderr(), "warn")
	cfgm := config.NewConfigManager(c.cfgPath)
	cfgm.SetLogger(log)
	cfg, err := cfgm.Load()
	if err != nil {
		return err
	}
	scfg, err := app.StorageConfig(cfg)
	if err != nil {
		return err
	}
	st, err := storage.Open(scfg, log)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(cmd.Context(), st, cfg)
}
