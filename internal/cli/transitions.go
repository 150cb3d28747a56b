package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/retrievalstat/internal/compiler"
)

// TransitionsOptions holds flags for the transitions command.
type TransitionsOptions struct {
	*RootOptions
	Transitions string
}

// TransitionEntry is one counted transition in command output.
type TransitionEntry struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Counted string `json:"counted"`
}

// NewTransitionsCommand creates the transitions command.
func NewTransitionsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TransitionsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "transitions",
		Short: "Print the compiled transition table",
		Long: `Compile and print the status transition table.

Without --transitions the embedded default table is shown. A table file
is validated exactly as the aggregate command would load it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransitions(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Transitions, "transitions", "", "path to a CUE transition table")

	return cmd
}

func runTransitions(opts *TransitionsOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	table, source, err := loadTransitions(formatter, opts.Transitions)
	if err != nil {
		var compileErr *compiler.CompileError
		if errors.As(err, &compileErr) && compileErr.Pos.IsValid() && opts.Format != "json" {
			fmt.Fprintf(formatter.Writer, "%s:%d:%d\n",
				compileErr.Pos.Filename(),
				compileErr.Pos.Line(),
				compileErr.Pos.Column())
		}
		return err
	}

	entries := make([]TransitionEntry, 0, len(table))
	for _, k := range table.Keys() {
		from := string(k.From)
		if from == "" {
			from = "none"
		}
		entries = append(entries, TransitionEntry{From: from, To: string(k.To), Counted: string(table[k])})
	}

	if opts.Format == "json" {
		return formatter.Success(entries)
	}

	fmt.Fprintf(formatter.Writer, "✓ %d counted transition(s) from %s\n\n", len(entries), source)
	for _, e := range entries {
		fmt.Fprintf(formatter.Writer, "  %s → %s  counts %s\n", e.From, e.To, e.Counted)
	}
	return nil
}
