package loader

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Mode selects how a load job commits its rows.
type Mode string

const (
	// PerRow commits every row in its own transaction.
	PerRow Mode = "per_row"
	// Atomic runs the whole job in one transaction.
	Atomic Mode = "atomic"
)

// ParseMode parses a mode flag value. Empty selects PerRow.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", PerRow:
		return PerRow, nil
	case Atomic:
		return Atomic, nil
	default:
		return "", fmt.Errorf("unknown load mode %q (want %s or %s)", s, PerRow, Atomic)
	}
}

// Outcome classifies a row that was not inserted.
type Outcome string

const (
	Skipped Outcome = "skipped"
	Failed  Outcome = "failed"
)

// Skip reasons
const (
	ReasonFieldCount   = "field count"
	ReasonNotFound     = "not found"
	ReasonAmbiguous    = "ambiguous"
	ReasonLookupFailed = "lookup failed"
	ReasonUnknownGene  = "unknown gene"
	ReasonDuplicate    = "duplicate"
	ReasonAminoAcid    = "bad amino-acid code"
	ReasonInsertFailed = "insert failed"
)

// RowIssue records an input line that did not produce a row.
type RowIssue struct {
	Line      int     `json:"line"`
	Outcome   Outcome `json:"outcome"`
	Reason    string  `json:"reason"`
	Err       string  `json:"error,omitempty"`
	Statement string  `json:"statement,omitempty"`
}

// Report summarises one load job.
type Report struct {
	JobID      uuid.UUID  `json:"job_id"`
	Table      string     `json:"table"`
	Path       string     `json:"path"`
	Mode       Mode       `json:"mode"`
	DryRun     bool       `json:"dry_run"`
	Lines      int        `json:"lines"`
	Inserted   int        `json:"inserted"`
	Issues     []RowIssue `json:"issues,omitempty"`
	Committed  bool       `json:"committed"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
}

func newReport(table, path string, mode Mode, dryRun bool) *Report {
	return &Report{
		JobID:     uuid.New(),
		Table:     table,
		Path:      path,
		Mode:      mode,
		DryRun:    dryRun,
		StartedAt: time.Now(),
	}
}

// Skipped returns the number of rows skipped before insertion.
func (r *Report) Skipped() int {
	return r.count(Skipped)
}

// Failed returns the number of rows whose insert failed.
func (r *Report) Failed() int {
	return r.count(Failed)
}

func (r *Report) count(outcome Outcome) int {
	n := 0
	for _, issue := range r.Issues {
		if issue.Outcome == outcome {
			n++
		}
	}
	return n
}

func (r *Report) add(line int, outcome Outcome, reason string, err error, statement string) {
	issue := RowIssue{
		Line:      line,
		Outcome:   outcome,
		Reason:    reason,
		Statement: statement,
	}
	if err != nil {
		issue.Err = err.Error()
	}
	r.Issues = append(r.Issues, issue)
}

// Summary renders a one-line description of the job.
func (r *Report) Summary() string {
	return fmt.Sprintf("%s: %d lines, %d inserted, %d skipped, %d failed (%s, job %s, %s)",
		r.Table, r.Lines, r.Inserted, r.Skipped(), r.Failed(), r.Mode, r.JobID, r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
}
