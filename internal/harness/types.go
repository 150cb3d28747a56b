package harness

import "github.com/roach88/retrievalstat/internal/ir"

// BatchTrace records what happened to one delivery of a batch.
type BatchTrace struct {
	Batch        string         `json:"batch"`
	Delivery     int            `json:"delivery"`
	InvocationID string         `json:"invocation_id"`
	Token        string         `json:"token"`
	Committed    bool           `json:"committed"`
	Attempts     int            `json:"attempts"`
	Outcomes     map[string]int `json:"outcomes"`
	AuditLines   []string       `json:"audit_lines"`

	// ErrorCode is the commit error code when the batch did not land.
	ErrorCode string `json:"error_code,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every expect clause and assertion matched.
	Pass bool `json:"pass"`

	// Trace has one entry per delivery, in execution order.
	Trace []BatchTrace `json:"trace"`

	// Errors contains validation error messages.
	Errors []string `json:"errors,omitempty"`

	// Rows holds the final counters per workflow run.
	Rows map[string]ir.Counters `json:"rows"`

	// Tokens is the number of batches the store applied.
	Tokens int `json:"tokens"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []BatchTrace{},
		Errors: []string{},
		Rows:   make(map[string]ir.Counters),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AuditLines returns every audit line of the trace in emission order.
func (r *Result) AuditLines() []string {
	var lines []string
	for _, bt := range r.Trace {
		lines = append(lines, bt.AuditLines...)
	}
	return lines
}
