// Package cmd provides the CLI commands for retrieval.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yonatan-nyo/Image-Audio-Retrieval/internal/config"
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/logger"
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/retrieval"
)

// Version is set at build time with -ldflags "-X .../cmd.Version=...".
var Version = "dev"

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	configPath  string
	apiURL      string
	logLevel    string
	historyPath string
}

// NewRootCmd creates the root command for the retrieval CLI.
func NewRootCmd() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:   "retrieval",
		Short: "Browse a song and album catalog and search it by sound or picture",
		Long: `retrieval talks to a catalog server that indexes songs and album covers.

Browse the catalog, match audio files or album pictures against it, or let
the microphone listen and match what it hears.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("retrieval version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "Config file (default ~/.config/retrieval/config.yaml)")
	cmd.PersistentFlags().StringVar(&flags.apiURL, "api", "", "Catalog API base URL")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	cmd.PersistentFlags().StringVar(&flags.historyPath, "history", "", "SQLite search history file")

	cmd.AddCommand(newBrowseCmd(flags))
	cmd.AddCommand(newCatalogCmd(flags, "songs"))
	cmd.AddCommand(newCatalogCmd(flags, "albums"))
	cmd.AddCommand(newMatchCmd(flags))
	cmd.AddCommand(newMatchImageCmd(flags))
	cmd.AddCommand(newListenCmd(flags))
	cmd.AddCommand(newHistoryCmd(flags))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command with Ctrl+C cancelling its context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
		return err
	}
	return nil
}

// load reads the configuration and applies flag overrides.
func (f *globalFlags) load() (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	if f.apiURL != "" {
		cfg.API.BaseURL = f.apiURL
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if f.historyPath != "" {
		cfg.History.Path = f.historyPath
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if lvl, ok := logger.ParseLevel(cfg.Log.Level); ok {
		logger.SetLevel(lvl)
	}
	return cfg, nil
}

// newService builds a service from the loaded configuration.
func (f *globalFlags) newService(extra ...retrieval.Option) (retrieval.Service, *config.Config, error) {
	cfg, err := f.load()
	if err != nil {
		return nil, nil, err
	}
	return f.newServiceFrom(cfg, extra...)
}

func (f *globalFlags) newServiceFrom(cfg *config.Config, extra ...retrieval.Option) (retrieval.Service, *config.Config, error) {
	opts := append(cfg.Options(), retrieval.WithLogger(logger.GetLogger()))
	svc, err := retrieval.NewService(append(opts, extra...)...)
	if err != nil {
		return nil, nil, err
	}
	return svc, cfg, nil
}
