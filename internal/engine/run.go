// Package engine runs the sync pipeline as an explicit state machine:
// start -> discover -> snapshot -> plan -> execute -> finalize. A fatal error
// short-circuits the middle stages; finalize always runs so catalog and run
// records reflect whatever actually happened.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"index-pump/internal/canon"
	"index-pump/internal/embed"
	"index-pump/internal/index"
	"index-pump/internal/logger"
	"index-pump/internal/plan"
	"index-pump/internal/source"
	"index-pump/internal/transform"
)

// Source is the relational collaborator: discovery, snapshot aggregates,
// paginated row fetch.
type Source interface {
	DiscoverTables(ctx context.Context, opts source.DiscoverOptions) ([]*source.TableInfo, error)
	FetchTableSnapshot(ctx context.Context, t *source.TableInfo) (*source.TableSnapshot, error)
	FetchTableRows(ctx context.Context, t *source.TableInfo, limit, offset int) ([]map[string]interface{}, error)
}

// Catalog persists per-table and per-run bookkeeping.
type Catalog interface {
	GetCatalogRecord(ctx context.Context, schema, table string) (*index.CatalogRecord, error)
	PutCatalogRecord(ctx context.Context, rec *index.CatalogRecord) error
	PutRunRecord(ctx context.Context, rec *index.RunRecord) error
}

// DocumentStore receives the transformed documents.
type DocumentStore interface {
	UpsertDocuments(ctx context.Context, indexRef string, docs []index.Document) error
	ResetIndexIfExists(ctx context.Context, indexRef string) error
}

// TableOverride adjusts document construction for a single table.
type TableOverride struct {
	IndexRef        string
	TextColumnsMode string
	ExcludedColumns []string
}

// Config is the fully-resolved executor configuration.
type Config struct {
	RunID           string // generated when empty
	Discover        source.DiscoverOptions
	BatchSize       int
	IndexPrefix     string
	TextColumnsMode string
	ExcludedColumns []string
	Overrides       map[string]TableOverride // keyed by "schema.table"
}

// Callbacks surface progress to reporting collaborators. They are invoked
// synchronously from the executor's single thread of control and must be
// cheap.
type Callbacks struct {
	OnTableStart    func(p plan.TablePlan)
	OnTableBatch    func(tableKey string, rowsSoFar int64)
	OnTableComplete func(r TableRunResult)
}

// Executor orchestrates one run. Tables are processed sequentially inside
// execute; per-table isolation there is about fault tolerance, not
// concurrency.
type Executor struct {
	src      Source
	catalog  Catalog
	docs     DocumentStore
	embedder embed.Provider // nil disables embeddings
	cfg      Config
	cb       Callbacks
	now      func() time.Time
}

func New(src Source, catalog Catalog, docs DocumentStore, embedder embed.Provider, cfg Config) *Executor {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.IndexPrefix == "" {
		cfg.IndexPrefix = "tbl::"
	}
	if cfg.TextColumnsMode == "" {
		cfg.TextColumnsMode = transform.TextColumnsTextual
	}
	return &Executor{src: src, catalog: catalog, docs: docs, embedder: embedder, cfg: cfg, now: time.Now}
}

// SetCallbacks installs progress callbacks; must be called before Run.
func (e *Executor) SetCallbacks(cb Callbacks) { e.cb = cb }

// runState is the single typed structure threaded between stages. Stages
// return partial updates; mergeUpdate is the only place state mutates.
type runState struct {
	runID     string
	startedAt time.Time
	fatalErr  error
	tables    []*source.TableInfo
	snapshots map[string]*source.TableSnapshot
	plans     []plan.TablePlan
	catalog   map[string]*index.CatalogRecord
	results   []TableRunResult
}

type stageUpdate struct {
	fatalErr  error
	tables    []*source.TableInfo
	snapshots map[string]*source.TableSnapshot
	plans     []plan.TablePlan
	catalog   map[string]*index.CatalogRecord
	results   []TableRunResult
}

func (s *runState) merge(u stageUpdate) {
	if u.fatalErr != nil && s.fatalErr == nil {
		s.fatalErr = u.fatalErr
	}
	if u.tables != nil {
		s.tables = u.tables
	}
	if u.snapshots != nil {
		s.snapshots = u.snapshots
	}
	if u.plans != nil {
		s.plans = u.plans
	}
	if u.catalog != nil {
		s.catalog = u.catalog
	}
	s.results = append(s.results, u.results...)
}

// Run executes the pipeline to its terminal state. Past the fatal-error
// boundary all failure is structured data: callers inspect the summary's
// Status and Errors rather than a returned error.
func (e *Executor) Run(ctx context.Context) RunSummary {
	state := &runState{
		runID:     e.cfg.RunID,
		startedAt: e.now(),
		snapshots: map[string]*source.TableSnapshot{},
		catalog:   map[string]*index.CatalogRecord{},
	}
	if state.runID == "" {
		state.runID = uuid.NewString()
	}
	// Document metadata carries the run id; keep the config copy in sync
	// with a generated id.
	e.cfg.RunID = state.runID

	stages := []struct {
		name string
		fn   func(ctx context.Context, s *runState) stageUpdate
	}{
		{"start", e.stageStart},
		{"discover", e.stageDiscover},
		{"snapshot", e.stageSnapshot},
		{"plan", e.stagePlan},
		{"execute", e.stageExecute},
		{"finalize", e.stageFinalize},
	}
	for _, st := range stages {
		logger.Debugf("run %s: stage %s", state.runID, st.name)
		state.merge(st.fn(ctx, state))
	}

	return SummarizeRun(state.runID, state.fatalErr, state.results)
}

func (e *Executor) stageStart(ctx context.Context, s *runState) stageUpdate {
	rec := &index.RunRecord{
		RunID:     s.runID,
		StartedAt: canon.FormatTime(s.startedAt),
		Status:    index.RunStatusRunning,
	}
	if err := e.catalog.PutRunRecord(ctx, rec); err != nil {
		return stageUpdate{fatalErr: fmt.Errorf("failed to persist run start: %w", err)}
	}
	return stageUpdate{}
}

func (e *Executor) stageDiscover(ctx context.Context, s *runState) stageUpdate {
	if s.fatalErr != nil {
		return stageUpdate{}
	}
	tables, err := e.src.DiscoverTables(ctx, e.cfg.Discover)
	if err != nil {
		return stageUpdate{fatalErr: fmt.Errorf("discovery failed: %w", err)}
	}
	logger.Infof("discovered %d tables", len(tables))
	return stageUpdate{tables: tables}
}

// stageSnapshot is schema-level and cheap; one failed aggregate aborts the
// whole stage rather than isolating per table.
func (e *Executor) stageSnapshot(ctx context.Context, s *runState) stageUpdate {
	if s.fatalErr != nil {
		return stageUpdate{}
	}
	snapshots := make(map[string]*source.TableSnapshot, len(s.tables))
	for _, t := range s.tables {
		snap, err := e.src.FetchTableSnapshot(ctx, t)
		if err != nil {
			return stageUpdate{fatalErr: fmt.Errorf("snapshot failed: %w", err)}
		}
		snapshots[t.Key()] = snap
	}
	return stageUpdate{snapshots: snapshots}
}

func (e *Executor) stagePlan(ctx context.Context, s *runState) stageUpdate {
	if s.fatalErr != nil {
		return stageUpdate{}
	}
	catalogByTable := make(map[string]*index.CatalogRecord, len(s.tables))
	for _, t := range s.tables {
		rec, err := e.catalog.GetCatalogRecord(ctx, t.Schema, t.Table)
		if err != nil {
			return stageUpdate{fatalErr: fmt.Errorf("catalog lookup failed for %s: %w", t.Key(), err)}
		}
		if rec != nil {
			catalogByTable[t.Key()] = rec
		}
	}
	plans := plan.BuildTablePlans(s.tables, s.snapshots, catalogByTable)
	for _, p := range plans {
		logger.Debugf("plan %s: %s (%s)", p.Key(), p.Mode, p.Reason)
	}
	return stageUpdate{plans: plans, catalog: catalogByTable}
}

func (e *Executor) stageExecute(ctx context.Context, s *runState) stageUpdate {
	if s.fatalErr != nil {
		return stageUpdate{}
	}
	tablesByKey := make(map[string]*source.TableInfo, len(s.tables))
	for _, t := range s.tables {
		tablesByKey[t.Key()] = t
	}

	var results []TableRunResult
	for _, p := range s.plans {
		if e.cb.OnTableStart != nil {
			e.cb.OnTableStart(p)
		}
		res := TableRunResult{Schema: p.Schema, Table: p.Table, Mode: p.Mode, Reason: p.Reason}
		if p.Mode == plan.ModeSkip {
			res.Status = StatusSkipped
		} else {
			rows, err := e.executeTable(ctx, tablesByKey[p.Key()])
			if err != nil {
				res.Status = StatusFailed
				res.Error = err.Error()
				logger.Warnf("table %s failed: %v", p.Key(), err)
			} else {
				res.Status = StatusReindexed
				res.RowsUpserted = rows
				logger.Infof("table %s reindexed: %d rows", p.Key(), rows)
			}
		}
		results = append(results, res)
		if e.cb.OnTableComplete != nil {
			e.cb.OnTableComplete(res)
		}
	}
	return stageUpdate{results: results}
}

// executeTable fully reindexes one table: reset its index ref, then page
// through rows in stable order, transform, optionally embed, and upsert
// batch by batch until a page comes back empty. A panic anywhere in the
// per-table path is converted into the table's failure.
func (e *Executor) executeTable(ctx context.Context, t *source.TableInfo) (rows int64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while processing %s: %v", t.Key(), r)
		}
	}()
	if t == nil {
		return 0, fmt.Errorf("table metadata missing")
	}

	indexRef, opts := e.tableSettings(t)
	if err := e.docs.ResetIndexIfExists(ctx, indexRef); err != nil {
		return 0, fmt.Errorf("failed to reset index %s: %w", indexRef, err)
	}

	offset := 0
	for {
		page, err := e.src.FetchTableRows(ctx, t, e.cfg.BatchSize, offset)
		if err != nil {
			return rows, err
		}
		if len(page) == 0 {
			return rows, nil
		}

		docs := make([]index.Document, 0, len(page))
		for _, row := range page {
			doc, err := transform.RowToDocument(row, t, opts)
			if err != nil {
				return rows, err
			}
			docs = append(docs, doc)
		}

		if e.embedder != nil {
			texts := make([]string, len(docs))
			for i, d := range docs {
				texts[i] = d.PageContent
			}
			vectors, err := e.embedder.EmbedDocuments(ctx, texts)
			if err != nil {
				return rows, fmt.Errorf("embedding failed: %w", err)
			}
			for i := range docs {
				docs[i].Embedding = vectors[i]
			}
		}

		if err := e.docs.UpsertDocuments(ctx, indexRef, docs); err != nil {
			return rows, err
		}
		rows += int64(len(docs))
		offset += len(page)
		if e.cb.OnTableBatch != nil {
			e.cb.OnTableBatch(t.Key(), rows)
		}
	}
}

// tableSettings resolves the index ref and transform options for a table,
// applying any per-table override on top of the global configuration.
func (e *Executor) tableSettings(t *source.TableInfo) (string, transform.Options) {
	indexRef := e.cfg.IndexPrefix + t.Key()
	opts := transform.Options{
		RunID:           e.cfg.RunID,
		TextColumnsMode: e.cfg.TextColumnsMode,
		ExcludedColumns: e.cfg.ExcludedColumns,
	}
	if ov, ok := e.cfg.Overrides[t.Key()]; ok {
		if ov.IndexRef != "" {
			indexRef = ov.IndexRef
		}
		if ov.TextColumnsMode != "" {
			opts.TextColumnsMode = ov.TextColumnsMode
		}
		opts.ExcludedColumns = append(opts.ExcludedColumns, ov.ExcludedColumns...)
	}
	return indexRef, opts
}

// stageFinalize always runs. Every snapshotted table gets a fresh catalog
// record; last_success_* only advances when this run succeeded for the table.
// last_error precedence: the table's own failure, else the run's fatal error,
// else cleared.
func (e *Executor) stageFinalize(ctx context.Context, s *runState) stageUpdate {
	resultsByKey := make(map[string]TableRunResult, len(s.results))
	for _, r := range s.results {
		resultsByKey[r.Key()] = r
	}
	finishedAt := canon.FormatTime(e.now())

	for key, snap := range s.snapshots {
		rec := &index.CatalogRecord{
			Schema:       snap.Schema,
			Table:        snap.Table,
			SchemaHash:   snap.SchemaHash,
			TableHash:    snap.TableHash,
			RowCount:     snap.RowCount,
			MaxUpdatedAt: snap.MaxUpdatedAt,
		}

		prev := s.catalog[key]
		res, hasResult := resultsByKey[key]
		succeeded := s.fatalErr == nil && hasResult && res.Status != StatusFailed

		if succeeded {
			runID := s.runID
			mode := string(res.Mode)
			rec.LastSuccessRunID = &runID
			rec.LastSuccessAt = &finishedAt
			rec.LastMode = &mode
		} else if prev != nil {
			rec.LastSuccessRunID = prev.LastSuccessRunID
			rec.LastSuccessAt = prev.LastSuccessAt
			rec.LastMode = prev.LastMode
		}

		switch {
		case hasResult && res.Status == StatusFailed:
			msg := res.Error
			rec.LastError = &msg
		case s.fatalErr != nil:
			// A fatal error before or during execution means no table can
			// have succeeded; it lands on every record.
			msg := s.fatalErr.Error()
			rec.LastError = &msg
		}

		if err := e.catalog.PutCatalogRecord(ctx, rec); err != nil {
			logger.Errorf("failed to persist catalog record %s: %v", key, err)
		}
	}

	summary := SummarizeRun(s.runID, s.fatalErr, s.results)
	runRec := &index.RunRecord{
		RunID:           s.runID,
		StartedAt:       canon.FormatTime(s.startedAt),
		FinishedAt:      &finishedAt,
		Status:          summary.Status,
		TablesTotal:     summary.TablesTotal,
		TablesReindexed: summary.TablesReindexed,
		TablesSkipped:   summary.TablesSkipped,
		RowsUpserted:    summary.RowsUpserted,
		Errors:          summary.Errors,
	}
	if err := e.catalog.PutRunRecord(ctx, runRec); err != nil {
		logger.Errorf("failed to persist final run record %s: %v", s.runID, err)
	}
	return stageUpdate{}
}
