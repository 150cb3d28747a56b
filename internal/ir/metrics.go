package ir

import (
	"fmt"
	"slices"
)

// Counters holds the six additive counters of one workflow run.
type Counters struct {
	RequestedCount  int64 `json:"requested_count"`
	RequestedSize   int64 `json:"requested_size"`
	StagedCount     int64 `json:"staged_count"`
	StagedSize      int64 `json:"staged_size"`
	DownloadedCount int64 `json:"downloaded_count"`
	DownloadedSize  int64 `json:"downloaded_size"`
}

// Add counts one record of the given size under status.
// Statuses without counters are ignored.
func (c *Counters) Add(status Status, size int64) {
	switch status {
	case StatusRequested:
		c.RequestedCount++
		c.RequestedSize += size
	case StatusStaged:
		c.StagedCount++
		c.StagedSize += size
	case StatusDownloaded:
		c.DownloadedCount++
		c.DownloadedSize += size
	}
}

// Merge adds every counter of o into c.
func (c *Counters) Merge(o Counters) {
	c.RequestedCount += o.RequestedCount
	c.RequestedSize += o.RequestedSize
	c.StagedCount += o.StagedCount
	c.StagedSize += o.StagedSize
	c.DownloadedCount += o.DownloadedCount
	c.DownloadedSize += o.DownloadedSize
}

// Get returns the (count, size) pair for status.
func (c Counters) Get(status Status) (count, size int64) {
	switch status {
	case StatusRequested:
		return c.RequestedCount, c.RequestedSize
	case StatusStaged:
		return c.StagedCount, c.StagedSize
	case StatusDownloaded:
		return c.DownloadedCount, c.DownloadedSize
	}
	return 0, 0
}

// IsZero reports whether no counter was touched.
func (c Counters) IsZero() bool {
	return c == Counters{}
}

// NonNegative reports whether every counter is >= 0.
// Stores only ever increment, so a negative increment is never valid.
func (c Counters) NonNegative() bool {
	return c.RequestedCount >= 0 && c.RequestedSize >= 0 &&
		c.StagedCount >= 0 && c.StagedSize >= 0 &&
		c.DownloadedCount >= 0 && c.DownloadedSize >= 0
}

// CountAttribute is the stored attribute name of a status count ("count_staged").
func CountAttribute(s Status) string { return "count_" + string(s) }

// SizeAttribute is the stored attribute name of a status size ("size_staged").
func SizeAttribute(s Status) string { return "size_" + string(s) }

// Deltas maps a workflow run to the counters accumulated for it.
type Deltas map[string]*Counters

// For returns the counters of run, creating zeroed counters on first touch.
func (d Deltas) For(run string) *Counters {
	c, ok := d[run]
	if !ok {
		c = &Counters{}
		d[run] = c
	}
	return c
}

// Runs returns the workflow runs in sorted order.
func (d Deltas) Runs() []string {
	runs := make([]string, 0, len(d))
	for run := range d {
		runs = append(runs, run)
	}
	slices.Sort(runs)
	return runs
}

// RowIncrement is the additive update for one workflow-run row.
type RowIncrement struct {
	WorkflowRun string   `json:"workflow_run"`
	Counters    Counters `json:"counters"`
}

// Transaction is one atomic multi-row additive update.
// Token is the store's deduplication key; Table addresses the metric rows.
type Transaction struct {
	Token   string         `json:"token"`
	Table   string         `json:"table"`
	Updates []RowIncrement `json:"updates"`
}

// PayloadHash returns the content hash of Table and Updates.
// Stores compare it to tell a retry apart from a reused token.
func (tx Transaction) PayloadHash() (string, error) {
	updates := make([]any, len(tx.Updates))
	for i, u := range tx.Updates {
		row := map[string]any{"workflow_run": u.WorkflowRun}
		for _, s := range CountedStatuses {
			count, size := u.Counters.Get(s)
			row[CountAttribute(s)] = count
			row[SizeAttribute(s)] = size
		}
		updates[i] = row
	}

	canonical, err := MarshalCanonical(map[string]any{
		"table":   tx.Table,
		"updates": updates,
	})
	if err != nil {
		return "", fmt.Errorf("PayloadHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainPayload, canonical), nil
}

// TransitionKey is an (old status, new status) pair.
type TransitionKey struct {
	From Status
	To   Status
}

// TransitionTable maps a recognised transition to the status it counts as.
// Pairs absent from the table are not counted.
type TransitionTable map[TransitionKey]Status

// Lookup returns the counted status for (from, to).
func (t TransitionTable) Lookup(from, to Status) (Status, bool) {
	s, ok := t[TransitionKey{From: from, To: to}]
	return s, ok
}

// Keys returns the recognised transitions ordered by counted status column.
func (t TransitionTable) Keys() []TransitionKey {
	keys := make([]TransitionKey, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b TransitionKey) int {
		ai := slices.Index(CountedStatuses, t[a])
		bi := slices.Index(CountedStatuses, t[b])
		if ai != bi {
			return ai - bi
		}
		if a.From != b.From {
			if a.From < b.From {
				return -1
			}
			return 1
		}
		if a.To < b.To {
			return -1
		}
		if a.To > b.To {
			return 1
		}
		return 0
	})
	return keys
}
