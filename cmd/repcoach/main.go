// Command repcoach runs the conversational workout coach as an HTTP service
// or an interactive terminal chat.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/odvcencio/repcoach/pkg/config"
	"github.com/odvcencio/repcoach/pkg/logging"
)

// Set at build time with -ldflags "-X main.version=...".
var (
	version = "dev"
	commit  = "none"
)

// app carries what PersistentPreRunE prepares for the subcommands.
type app struct {
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "repcoach",
		Short: "Conversational workout coach",
		Long: `repcoach turns short chat messages into workout changes.

It asks a follow-up question when a request like "double it" is ambiguous,
generates workouts through a staged model pipeline, and explains exercises
from a built-in catalog.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default: ~/.repcoach/config.yaml, ./.repcoach/config.yaml)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(newServeCmd(a), newChatCmd(a), newVersionCmd())
	return root
}

func (a *app) init() error {
	var (
		cfg *config.Config
		err error
	)
	if strings.TrimSpace(a.configPath) != "" {
		cfg, err = config.LoadFromPath(a.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return withExitCode(fmt.Errorf("load config: %w", err), exitConfig)
	}
	if a.verbose {
		cfg.Logging.Level = "debug"
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return withExitCode(err, exitConfig)
	}
	for _, w := range cfg.ValidationWarnings() {
		logger.Warn("config warning", zap.String("warning", w))
	}

	a.cfg = cfg
	a.logger = logger
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "repcoach %s (%s)\n", version, commit)
			return err
		},
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCodeForError(err))
	}
}
