package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"
)

// Store wraps the SQLite index file. All write paths are idempotent upserts
// keyed by natural ids, so re-running a sync never duplicates state.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the index file and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open index store: %w", err)
	}
	// The store has a single writer per process; WAL keeps readers cheap.
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS documents (
    doc_id       TEXT PRIMARY KEY,
    index_ref    TEXT NOT NULL,
    page_content TEXT NOT NULL,
    metadata     TEXT NOT NULL,
    embedding    BLOB,
    run_id       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_index_ref ON documents(index_ref);

CREATE TABLE IF NOT EXISTS catalog_records (
    table_key           TEXT PRIMARY KEY,
    schema_name         TEXT NOT NULL,
    table_name          TEXT NOT NULL,
    schema_hash         TEXT NOT NULL,
    table_hash          TEXT NOT NULL,
    row_count           INTEGER NOT NULL,
    max_updated_at      TEXT,
    last_success_run_id TEXT,
    last_success_at     TEXT,
    last_mode           TEXT,
    last_error          TEXT
);

CREATE TABLE IF NOT EXISTS runs (
    run_id           TEXT PRIMARY KEY,
    started_at       TEXT NOT NULL,
    finished_at      TEXT,
    status           TEXT NOT NULL,
    tables_total     INTEGER NOT NULL DEFAULT 0,
    tables_reindexed INTEGER NOT NULL DEFAULT 0,
    tables_skipped   INTEGER NOT NULL DEFAULT 0,
    rows_upserted    INTEGER NOT NULL DEFAULT 0,
    errors           TEXT NOT NULL DEFAULT '[]'
);`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to init index schema: %w", err)
	}
	return nil
}

// UpsertDocuments writes a batch of documents in one transaction. Existing
// doc ids are replaced, which is what makes row-level reprocessing
// idempotent.
func (s *Store) UpsertDocuments(ctx context.Context, indexRef string, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin document upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO documents (doc_id, index_ref, page_content, metadata, embedding, run_id)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(doc_id) DO UPDATE SET
    index_ref = excluded.index_ref,
    page_content = excluded.page_content,
    metadata = excluded.metadata,
    embedding = excluded.embedding,
    run_id = excluded.run_id`)
	if err != nil {
		return fmt.Errorf("failed to prepare document upsert: %w", err)
	}
	defer stmt.Close()

	for _, doc := range docs {
		meta, err := json.Marshal(doc.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata for %s: %w", doc.DocID, err)
		}
		var blob []byte
		if len(doc.Embedding) > 0 {
			blob = EncodeVector(doc.Embedding)
		}
		if _, err := stmt.ExecContext(ctx, doc.DocID, indexRef, doc.PageContent, string(meta), blob, doc.RunID); err != nil {
			return fmt.Errorf("failed to upsert document %s: %w", doc.DocID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit document upsert: %w", err)
	}
	return nil
}

// ResetIndexIfExists deletes every document under the given index ref.
// Deleting from an empty or unknown ref is a no-op, not an error.
func (s *Store) ResetIndexIfExists(ctx context.Context, indexRef string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE index_ref = ?`, indexRef); err != nil {
		return fmt.Errorf("failed to reset index %s: %w", indexRef, err)
	}
	return nil
}

// CountDocuments reports how many documents live under an index ref.
func (s *Store) CountDocuments(ctx context.Context, indexRef string) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE index_ref = ?`, indexRef).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count documents for %s: %w", indexRef, err)
	}
	return n, nil
}

// GetCatalogRecord returns the catalog record for (schema, table), or nil
// when none exists. Not-found is data, not an error.
func (s *Store) GetCatalogRecord(ctx context.Context, schema, table string) (*CatalogRecord, error) {
	rec := &CatalogRecord{}
	err := s.db.QueryRowContext(ctx, `
SELECT schema_name, table_name, schema_hash, table_hash, row_count,
       max_updated_at, last_success_run_id, last_success_at, last_mode, last_error
FROM catalog_records WHERE table_key = ?`, schema+"."+table).Scan(
		&rec.Schema, &rec.Table, &rec.SchemaHash, &rec.TableHash, &rec.RowCount,
		&rec.MaxUpdatedAt, &rec.LastSuccessRunID, &rec.LastSuccessAt, &rec.LastMode, &rec.LastError)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get catalog record %s.%s: %w", schema, table, err)
	}
	return rec, nil
}

// PutCatalogRecord upserts the record, keeping exactly one row per table.
func (s *Store) PutCatalogRecord(ctx context.Context, rec *CatalogRecord) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO catalog_records (table_key, schema_name, table_name, schema_hash, table_hash,
    row_count, max_updated_at, last_success_run_id, last_success_at, last_mode, last_error)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(table_key) DO UPDATE SET
    schema_hash = excluded.schema_hash,
    table_hash = excluded.table_hash,
    row_count = excluded.row_count,
    max_updated_at = excluded.max_updated_at,
    last_success_run_id = excluded.last_success_run_id,
    last_success_at = excluded.last_success_at,
    last_mode = excluded.last_mode,
    last_error = excluded.last_error`,
		rec.Key(), rec.Schema, rec.Table, rec.SchemaHash, rec.TableHash,
		rec.RowCount, rec.MaxUpdatedAt, rec.LastSuccessRunID, rec.LastSuccessAt, rec.LastMode, rec.LastError)
	if err != nil {
		return fmt.Errorf("failed to put catalog record %s: %w", rec.Key(), err)
	}
	return nil
}

// ListCatalogRecords returns all catalog records ordered by table key.
func (s *Store) ListCatalogRecords(ctx context.Context) ([]*CatalogRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT schema_name, table_name, schema_hash, table_hash, row_count,
       max_updated_at, last_success_run_id, last_success_at, last_mode, last_error
FROM catalog_records ORDER BY table_key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list catalog records: %w", err)
	}
	defer rows.Close()

	var recs []*CatalogRecord
	for rows.Next() {
		rec := &CatalogRecord{}
		if err := rows.Scan(&rec.Schema, &rec.Table, &rec.SchemaHash, &rec.TableHash, &rec.RowCount,
			&rec.MaxUpdatedAt, &rec.LastSuccessRunID, &rec.LastSuccessAt, &rec.LastMode, &rec.LastError); err != nil {
			return nil, fmt.Errorf("failed to scan catalog record: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating catalog records: %w", err)
	}
	return recs, nil
}

// ResetCatalog drops all catalog records; the next run replans every table
// as no_previous_catalog.
func (s *Store) ResetCatalog(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM catalog_records`); err != nil {
		return fmt.Errorf("failed to reset catalog: %w", err)
	}
	return nil
}

// ResetDocuments drops every document regardless of index ref.
func (s *Store) ResetDocuments(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents`); err != nil {
		return fmt.Errorf("failed to reset documents: %w", err)
	}
	return nil
}

// PutRunRecord upserts the run record keyed by run id.
func (s *Store) PutRunRecord(ctx context.Context, rec *RunRecord) error {
	errsJSON, err := json.Marshal(rec.Errors)
	if err != nil {
		return fmt.Errorf("failed to marshal run errors: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO runs (run_id, started_at, finished_at, status, tables_total,
    tables_reindexed, tables_skipped, rows_upserted, errors)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(run_id) DO UPDATE SET
    started_at = excluded.started_at,
    finished_at = excluded.finished_at,
    status = excluded.status,
    tables_total = excluded.tables_total,
    tables_reindexed = excluded.tables_reindexed,
    tables_skipped = excluded.tables_skipped,
    rows_upserted = excluded.rows_upserted,
    errors = excluded.errors`,
		rec.RunID, rec.StartedAt, rec.FinishedAt, string(rec.Status), rec.TablesTotal,
		rec.TablesReindexed, rec.TablesSkipped, rec.RowsUpserted, string(errsJSON))
	if err != nil {
		return fmt.Errorf("failed to put run record %s: %w", rec.RunID, err)
	}
	return nil
}

// GetRunRecord returns the run record for the id, or nil when unknown.
func (s *Store) GetRunRecord(ctx context.Context, runID string) (*RunRecord, error) {
	rec := &RunRecord{}
	var status string
	var errsJSON string
	err := s.db.QueryRowContext(ctx, `
SELECT run_id, started_at, finished_at, status, tables_total,
       tables_reindexed, tables_skipped, rows_upserted, errors
FROM runs WHERE run_id = ?`, runID).Scan(
		&rec.RunID, &rec.StartedAt, &rec.FinishedAt, &status, &rec.TablesTotal,
		&rec.TablesReindexed, &rec.TablesSkipped, &rec.RowsUpserted, &errsJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run record %s: %w", runID, err)
	}
	rec.Status = RunStatus(status)
	if err := json.Unmarshal([]byte(errsJSON), &rec.Errors); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run errors for %s: %w", runID, err)
	}
	return rec, nil
}
