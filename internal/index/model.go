// Package index owns the embedded search index: documents, the per-table
// control catalog, and per-run records, all persisted in a single SQLite file.
package index

import "fmt"

// RunStatus is the overall outcome of one sync run.
type RunStatus string

const (
	RunStatusRunning        RunStatus = "running"
	RunStatusSuccess        RunStatus = "success"
	RunStatusPartialSuccess RunStatus = "partial_success"
	RunStatusFailed         RunStatus = "failed"
)

// Document is one upserted row rendered for the index. DocID is the
// idempotency key: reprocessing the same logical row yields the same id.
type Document struct {
	DocID       string
	IndexRef    string
	PageContent string
	Metadata    map[string]interface{}
	Embedding   []float32
	RunID       string
}

// CatalogRecord is the persisted per-table bookkeeping entry, exactly one per
// "schema.table". The last_success_* fields only advance when a run fully
// succeeds for the table; failures carry the prior values forward.
type CatalogRecord struct {
	Schema           string
	Table            string
	SchemaHash       string
	TableHash        string
	RowCount         int64
	MaxUpdatedAt     *string
	LastSuccessRunID *string
	LastSuccessAt    *string
	LastMode         *string
	LastError        *string
}

func (r *CatalogRecord) Key() string {
	return fmt.Sprintf("%s.%s", r.Schema, r.Table)
}

// RunError pairs a table identity with its failure message inside a run
// record.
type RunError struct {
	TableKey string `json:"table_key"`
	Message  string `json:"message"`
}

// RunRecord is the persisted per-run summary, keyed by run id.
type RunRecord struct {
	RunID           string
	StartedAt       string
	FinishedAt      *string
	Status          RunStatus
	TablesTotal     int
	TablesReindexed int
	TablesSkipped   int
	RowsUpserted    int64
	Errors          []RunError
}
