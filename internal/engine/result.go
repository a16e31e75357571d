package engine

import (
	"index-pump/internal/index"
	"index-pump/internal/plan"
	"index-pump/internal/source"
)

// TableStatus is the execution outcome for one table in one run.
type TableStatus string

const (
	StatusReindexed TableStatus = "reindexed"
	StatusSkipped   TableStatus = "skipped"
	StatusFailed    TableStatus = "failed"
)

// TableRunResult records what happened to one table. mode=skip always yields
// skipped; mode=full yields reindexed or failed.
type TableRunResult struct {
	Schema       string
	Table        string
	Mode         plan.Mode
	Reason       string
	Status       TableStatus
	RowsUpserted int64
	Error        string
}

func (r TableRunResult) Key() string {
	return source.TableKey(r.Schema, r.Table)
}

// RunSummary aggregates all table results of a run.
type RunSummary struct {
	RunID           string
	Status          index.RunStatus
	TablesTotal     int
	TablesReindexed int
	TablesSkipped   int
	RowsUpserted    int64
	Errors          []index.RunError
	Results         []TableRunResult
	FatalError      error
}

// ComputeRunStatus folds the error taxonomy into the overall status: a
// run-level fatal error always means failed; any failed table downgrades an
// otherwise clean run to partial_success.
func ComputeRunStatus(fatalErr error, results []TableRunResult) index.RunStatus {
	if fatalErr != nil {
		return index.RunStatusFailed
	}
	for _, r := range results {
		if r.Status == StatusFailed {
			return index.RunStatusPartialSuccess
		}
	}
	return index.RunStatusSuccess
}

// SummarizeRun builds the aggregate view consumed by reporting and by the
// persisted run record.
func SummarizeRun(runID string, fatalErr error, results []TableRunResult) RunSummary {
	s := RunSummary{
		RunID:       runID,
		Status:      ComputeRunStatus(fatalErr, results),
		TablesTotal: len(results),
		Results:     results,
		FatalError:  fatalErr,
	}
	for _, r := range results {
		switch r.Status {
		case StatusReindexed:
			s.TablesReindexed++
		case StatusSkipped:
			s.TablesSkipped++
		case StatusFailed:
			s.Errors = append(s.Errors, index.RunError{TableKey: r.Key(), Message: r.Error})
		}
		s.RowsUpserted += r.RowsUpserted
	}
	return s
}
