package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/retrievalstat/internal/ir"
)

// Controller runs the per-batch pipeline: token, classify, fold, commit,
// audit.
//
// Thread-safety: a Controller holds no per-batch state; concurrent Process
// calls are safe as long as the store and generator are.
type Controller struct {
	classifier *Classifier
	committer  *Committer
	logger     *slog.Logger
	metrics    *Metrics
	ids        InvocationIDGenerator

	source       string
	table        ir.TransitionTable
	resolveTable TableResolver
	retry        RetryPolicy
	store        CounterStore
}

// Option configures a Controller.
type Option func(*Controller)

// WithEventSource sets the accepted CDC origin (default ir.DefaultEventSource).
func WithEventSource(source string) Option {
	return func(c *Controller) { c.source = source }
}

// WithTableResolver sets how the metric table name is found at commit time.
func WithTableResolver(r TableResolver) Option {
	return func(c *Controller) { c.resolveTable = r }
}

// WithRetryPolicy overrides DefaultRetryPolicy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Controller) { c.retry = p }
}

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithInvocationIDs sets the invocation id generator (default UUIDv7Generator).
func WithInvocationIDs(g InvocationIDGenerator) Option {
	return func(c *Controller) { c.ids = g }
}

// New creates a controller committing to store with the given transition
// table. Without WithTableResolver the table name is a required option of
// the caller; a nil resolver fails every non-empty commit.
func New(store CounterStore, table ir.TransitionTable, opts ...Option) *Controller {
	c := &Controller{
		store: store,
		table: table,
		retry: DefaultRetryPolicy(),
		ids:   UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.resolveTable == nil {
		c.resolveTable = func() (string, error) {
			return "", fmt.Errorf("no table resolver configured")
		}
	}
	c.classifier = NewClassifier(c.table, c.source)
	c.committer = NewCommitter(c.store, c.resolveTable, c.retry, c.metrics, c.logger)
	return c
}

// Result summarizes one processed batch.
type Result struct {
	InvocationID    string
	Token           string
	Classifications []Classification
	Deltas          ir.Deltas

	// Committed is true when a transaction was accepted by the store.
	// A batch without counted transitions is never committed.
	Committed bool
	Attempts  int

	// AuditLines are the lines emitted after a successful commit.
	AuditLines []string
}

// Count returns how many events ended with outcome o.
func (r *Result) Count(o Outcome) int {
	n := 0
	for _, c := range r.Classifications {
		if c.Outcome == o {
			n++
		}
	}
	return n
}

// Malformed returns the malformed-snapshot errors of the batch in event order.
func (r *Result) Malformed() []error {
	var errs []error
	for _, c := range r.Classifications {
		if c.Outcome == OutcomeMalformed && c.Err != nil {
			errs = append(errs, c.Err)
		}
	}
	return errs
}

// Process handles one batch.
//
// Malformed and unhandled events are logged and skipped; they never fail the
// batch. The only failures are a token that cannot be computed and a
// *CommitError, in which case nothing of the batch reached the store and no
// audit line was emitted. The returned Result is non-nil in both cases.
func (c *Controller) Process(ctx context.Context, batch *ir.Batch) (*Result, error) {
	res := &Result{InvocationID: c.ids.Generate()}
	logger := c.logger.With("invocation", res.InvocationID)

	token, err := ir.BatchToken(batch.Records)
	if err != nil {
		return res, fmt.Errorf("compute batch token: %w", err)
	}
	res.Token = token
	logger = logger.With("token", token)
	logger.Debug("processing batch", "records", len(batch.Records), "events", len(batch.Events))

	var audit []string
	res.Classifications = make([]Classification, 0, len(batch.Events))
	for _, ev := range batch.Events {
		cl := c.classifier.Classify(ev)
		res.Classifications = append(res.Classifications, cl)
		c.metrics.observeClassification(cl)

		switch cl.Outcome {
		case OutcomeCounted:
			logger.Debug("handled_status",
				"event", cl.EventID,
				"workflow_run", cl.WorkflowRun,
				"from", string(cl.From),
				"to", string(cl.To),
				"size", cl.Size)
			audit = append(audit, cl.AuditLine())
		case OutcomeUnhandled:
			logger.Info("unhandled_status",
				"event", cl.EventID,
				"record", cl.RecordKey,
				"from", string(cl.From),
				"to", string(cl.To))
		case OutcomeMalformed:
			logger.Error("malformed record", "event", cl.EventID, "error", cl.Err)
		case OutcomeIgnored:
			logger.Debug("ignored event", "event", cl.EventID, "reason", cl.Reason)
		}
	}

	res.Deltas = Accumulate(res.Classifications)

	if len(res.Deltas) == 0 {
		c.metrics.observeCommit(CommitResultEmpty)
		logger.Debug("no counted transitions, nothing to commit")
		return res, nil
	}

	// CRITICAL: a cancelled invocation drops the fold before touching the store.
	if err := ctx.Err(); err != nil {
		c.metrics.observeCommit(CommitResultFailed)
		return res, &CommitError{
			Code:    ErrCodeCancelled,
			Message: "invocation cancelled before commit",
			Token:   token,
			Err:     err,
		}
	}

	attempts, err := c.committer.Commit(ctx, res.Deltas, token)
	res.Attempts = attempts
	if err != nil {
		c.metrics.observeCommit(CommitResultFailed)
		logger.Error("commit failed", "runs", len(res.Deltas), "attempts", attempts, "error", err)
		return res, err
	}
	c.metrics.observeCommit(CommitResultCommitted)
	c.metrics.observeCounted(res.Classifications)
	res.Committed = true
	logger.Debug("committed", "runs", len(res.Deltas), "attempts", attempts)

	for _, line := range audit {
		logger.Info(line)
	}
	res.AuditLines = audit
	return res, nil
}
