package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/retrievalstat/internal/engine"
	"github.com/roach88/retrievalstat/internal/ir"
)

// AggregateOptions holds flags for the aggregate command.
type AggregateOptions struct {
	*RootOptions
	Batch       string
	Transitions string
	MetricsOut  string

	// InvocationIDs allows overriding the invocation id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	InvocationIDs engine.InvocationIDGenerator
}

// AggregateSummary is the result of one aggregate run.
type AggregateSummary struct {
	InvocationID string                 `json:"invocation_id"`
	Token        string                 `json:"token"`
	Committed    bool                   `json:"committed"`
	Attempts     int                    `json:"attempts"`
	Outcomes     map[string]int         `json:"outcomes"`
	Runs         map[string]ir.Counters `json:"runs"`
	AuditLines   []string               `json:"audit_lines"`
}

// NewAggregateCommand creates the aggregate command.
func NewAggregateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AggregateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Aggregate one change stream batch into the counter store",
		Long: `Aggregate one batch of change stream records.

Counted status transitions are folded into per-workflow-run deltas and
committed to the configured counter store as one idempotent transaction.
Replaying the same batch never counts it twice.

Example:
  METRIC_TABLE_NAME=metrics retrievalstat aggregate --batch records.json
  cat records.json | retrievalstat aggregate --batch - --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAggregate(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Batch, "batch", "", "path to batch JSON, or - for stdin (required)")
	cmd.Flags().StringVar(&opts.Transitions, "transitions", "", "path to a CUE transition table (overrides config)")
	cmd.Flags().StringVar(&opts.MetricsOut, "metrics-out", "", "write Prometheus metrics to this file")
	_ = cmd.MarkFlagRequired("batch")

	return cmd
}

func runAggregate(opts *AggregateOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "loading config", err)
	}

	transitionsPath := opts.Transitions
	if transitionsPath == "" {
		transitionsPath = cfg.TransitionsFile
	}
	table, source, err := loadTransitions(formatter, transitionsPath)
	if err != nil {
		return err
	}
	formatter.VerboseLog("Loaded %d transition(s) from %s", len(table), source)

	batch, err := readBatch(formatter, opts.Batch, cmd.InOrStdin())
	if err != nil {
		return err
	}
	formatter.VerboseLog("Decoded %d record(s)", len(batch.Records))

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "opening counter store", err)
	}
	defer func() {
		if closeErr := closeStore(); closeErr != nil {
			logger.Error("error closing counter store", "error", closeErr)
		}
	}()

	ids := opts.InvocationIDs
	if ids == nil {
		ids = engine.UUIDv7Generator{}
	}
	reg := prometheus.NewRegistry()
	ctrl := engine.New(st, table,
		engine.WithEventSource(cfg.EventSource),
		engine.WithTableResolver(cfg.TableResolver()),
		engine.WithRetryPolicy(cfg.RetryPolicy()),
		engine.WithLogger(logger),
		engine.WithMetrics(engine.NewMetrics(reg)),
		engine.WithInvocationIDs(ids),
	)

	res, procErr := ctrl.Process(ctx, batch)

	if opts.MetricsOut != "" {
		if err := prometheus.WriteToTextfile(opts.MetricsOut, reg); err != nil {
			logger.Error("failed to write metrics", "path", opts.MetricsOut, "error", err)
		}
	}

	if procErr != nil {
		var ce *engine.CommitError
		if !errors.As(procErr, &ce) {
			return formatter.Fail(ExitCommandError, ErrCodeToken, "computing batch token", procErr)
		}
		return formatter.Fail(ExitFailure, ErrCodeCommit, fmt.Sprintf("batch %s not committed", res.Token), procErr)
	}

	summary := summarize(res)
	if opts.Format == "json" {
		return formatter.Success(summary)
	}
	writeAggregateText(formatter, summary)
	return nil
}

func summarize(res *engine.Result) AggregateSummary {
	s := AggregateSummary{
		InvocationID: res.InvocationID,
		Token:        res.Token,
		Committed:    res.Committed,
		Attempts:     res.Attempts,
		Outcomes:     make(map[string]int, len(engine.Outcomes)),
		Runs:         make(map[string]ir.Counters, len(res.Deltas)),
		AuditLines:   res.AuditLines,
	}
	if s.AuditLines == nil {
		s.AuditLines = []string{}
	}
	for _, o := range engine.Outcomes {
		s.Outcomes[string(o)] = res.Count(o)
	}
	for run, c := range res.Deltas {
		s.Runs[run] = *c
	}
	return s
}

func writeAggregateText(f *OutputFormatter, s AggregateSummary) {
	if s.Committed {
		fmt.Fprintf(f.Writer, "✓ Committed batch %s (%d attempt(s))\n", s.Token, s.Attempts)
	} else {
		fmt.Fprintf(f.Writer, "✓ Nothing to commit for batch %s\n", s.Token)
	}

	fmt.Fprintf(f.Writer, "  counted: %d  unhandled: %d  malformed: %d  ignored: %d\n",
		s.Outcomes[string(engine.OutcomeCounted)],
		s.Outcomes[string(engine.OutcomeUnhandled)],
		s.Outcomes[string(engine.OutcomeMalformed)],
		s.Outcomes[string(engine.OutcomeIgnored)])

	if len(s.Runs) == 0 {
		return
	}
	fmt.Fprintln(f.Writer)
	fmt.Fprintln(f.Writer, "Runs:")
	deltas := ir.Deltas{}
	for run, c := range s.Runs {
		deltas.For(run).Merge(c)
	}
	for _, run := range deltas.Runs() {
		c := s.Runs[run]
		fmt.Fprintf(f.Writer, "  %s: requested %d/%d  staged %d/%d  downloaded %d/%d\n",
			run,
			c.RequestedCount, c.RequestedSize,
			c.StagedCount, c.StagedSize,
			c.DownloadedCount, c.DownloadedSize)
	}
}
