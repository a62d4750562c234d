package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yourorg/promptlog/internal/config"
	"github.com/yourorg/promptlog/internal/store"
)

const defaultConfigContent = `output:
  folder: "output/projectX"
  base_name: "logger"
  strip_prefix: "output/"

timestamp:
  enabled: true
  format: "%d%b%Y_%H%M"
  timezone: "America/Los_Angeles"

generation:
  sampler: "euler"
  scheduler: "normal"
  steps: 20
  cfg: 7.5
  seed: 2025
  denoise: 1.0

history:
  path: ""

server:
  host: "127.0.0.1"
  port: 3000

log:
  level: "info"
  format: "text"
`

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootOptions struct {
	cfgPath string
	debug   bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "promptlog",
		Short:         "Log image generation parameters next to the generated image",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.cfgPath, "config", "", "config file path")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug output")

	root.AddCommand(newInitCmd())
	root.AddCommand(newLogCmd(opts))
	root.AddCommand(newInspectCmd(opts))
	root.AddCommand(newLorasCmd())
	root.AddCommand(newHistoryCmd(opts))
	root.AddCommand(newServeCmd(opts))

	return root
}

// load reads the config and builds the logger every command shares.
func (o *rootOptions) load(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(o.cfgPath)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	if o.debug {
		cfg.Log.Level = "debug"
	}
	return cfg, newLogger(cfg.Log, cmd.ErrOrStderr()), nil
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	hopts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}

func openHistory(cfg *config.Config) (*store.SQLiteStore, error) {
	if strings.TrimSpace(cfg.History.Path) == "" {
		return nil, errors.New("history.path is not configured")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.History.Path), 0o755); err != nil {
		return nil, err
	}
	return store.NewSQLiteStore(cfg.History.Path)
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize ~/.promptlog directory and default config",
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			baseDir := filepath.Join(home, ".promptlog")
			if err := os.MkdirAll(baseDir, 0o755); err != nil {
				return err
			}

			cfgFile := filepath.Join(baseDir, "config.yaml")
			if _, err := os.Stat(cfgFile); errors.Is(err, os.ErrNotExist) {
				if err := os.WriteFile(cfgFile, []byte(defaultConfigContent), 0o644); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "created", cfgFile)
			} else if err == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "exists", cfgFile)
			} else {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "set history.path in", cfgFile, "to keep a run index")
			return nil
		},
	}
}
