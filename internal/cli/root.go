package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/retrievalstat/internal/config"
	"github.com/roach88/retrievalstat/internal/ir"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the retrievalstat CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "retrievalstat",
		Short: "retrievalstat - archive retrieval status aggregation",
		Long: `Aggregate archive retrieval status transitions from change stream
batches into per-workflow-run counters.

Each batch lands in the counter store as one atomic, idempotent transaction.`,
		Version:       ir.EngineVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to YAML config file")

	cmd.AddCommand(NewAggregateCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))
	cmd.AddCommand(NewTransitionsCommand(opts))

	return cmd
}

// newLogger returns a text logger on w, at debug level with --verbose.
func newLogger(opts *RootOptions, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// loadConfig loads the configuration named by --config.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	return config.Load(opts.ConfigPath)
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}
}
