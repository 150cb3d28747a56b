package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/retrievalstat/internal/ir"
)

// TokenOptions holds flags for the token command.
type TokenOptions struct {
	*RootOptions
	Batch string
}

// TokenResult is the JSON payload of the token command.
type TokenResult struct {
	Token   string `json:"token"`
	Records int    `json:"records"`
}

// NewTokenCommand creates the token command.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TokenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print the idempotency token of a batch",
		Long: `Print the request token a batch would be committed with.

The token depends only on the canonical content of the batch records, so
the same batch always yields the same token regardless of key order.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToken(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Batch, "batch", "", "path to batch JSON, or - for stdin (required)")
	_ = cmd.MarkFlagRequired("batch")

	return cmd
}

func runToken(opts *TokenOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	batch, err := readBatch(formatter, opts.Batch, cmd.InOrStdin())
	if err != nil {
		return err
	}

	token, err := ir.BatchToken(batch.Records)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeToken, "computing batch token", err)
	}

	if opts.Format == "json" {
		return formatter.Success(TokenResult{Token: token, Records: len(batch.Records)})
	}
	fmt.Fprintln(formatter.Writer, token)
	return nil
}
