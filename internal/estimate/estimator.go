// Package estimate projects embedding token counts and cost across the
// discovered tables, using the parallel scheduler with chunking for large
// tables.
package estimate

import (
	"context"
	"fmt"
	"sort"

	"index-pump/internal/scheduler"
	"index-pump/internal/source"
	"index-pump/internal/transform"
)

// Config sizes the estimation run.
type Config struct {
	MaxWorkers          int
	ItemsPerBatch       int
	LargeTableThreshold int
	ChunkSize           int
	SampleLimit         int // rows per table; 0 scans everything
	BatchSize           int // row page size inside a work item
	Model               string
	PricePerMillion     float64 // 0 resolves from the price table
	TextColumnsMode     string
	ExcludedColumns     []string
}

// TableEstimate is the per-table projection.
type TableEstimate struct {
	TableKey string
	Rows     int64
	Tokens   int64
	Cost     float64
}

// Result is the full estimation outcome, partial-failure tolerant.
type Result struct {
	Tables      []TableEstimate
	TotalRows   int64
	TotalTokens int64
	TotalCost   float64
	Errors      []scheduler.ItemError
}

// Estimator wires discovery and row paging into the scheduler. Each worker
// owns its own token counter; the encoder inside is created lazily and
// reused across the worker's items.
type Estimator struct {
	src *source.Source
	cfg Config
	cb  scheduler.Callbacks
}

func NewEstimator(src *source.Source, cfg Config) *Estimator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 4
	}
	if cfg.ItemsPerBatch <= 0 {
		cfg.ItemsPerBatch = 8
	}
	if cfg.TextColumnsMode == "" {
		cfg.TextColumnsMode = transform.TextColumnsTextual
	}
	return &Estimator{src: src, cfg: cfg}
}

// SetCallbacks installs scheduler progress callbacks; must be called before
// Run.
func (e *Estimator) SetCallbacks(cb scheduler.Callbacks) { e.cb = cb }

// Run discovers and snapshots tables, builds the chunked work queue and
// drains it through the worker pool.
func (e *Estimator) Run(ctx context.Context, discover source.DiscoverOptions) (Result, error) {
	var result Result

	tables, err := e.src.DiscoverTables(ctx, discover)
	if err != nil {
		return result, fmt.Errorf("discovery failed: %w", err)
	}

	tablesByKey := make(map[string]*source.TableInfo, len(tables))
	work := make([]scheduler.TableWork, 0, len(tables))
	for _, t := range tables {
		snap, err := e.src.FetchTableSnapshot(ctx, t)
		if err != nil {
			return result, fmt.Errorf("snapshot failed: %w", err)
		}
		rowCount := snap.RowCount
		if e.cfg.SampleLimit > 0 && rowCount > int64(e.cfg.SampleLimit) {
			rowCount = int64(e.cfg.SampleLimit)
		}
		tablesByKey[t.Key()] = t
		work = append(work, scheduler.TableWork{TableKey: t.Key(), RowCount: rowCount})
	}

	items := scheduler.BuildQueue(work, e.cfg.LargeTableThreshold, e.cfg.ChunkSize)
	opts := scheduler.Options{MaxWorkers: e.cfg.MaxWorkers, ItemsPerBatch: e.cfg.ItemsPerBatch}

	rowCounts := make(map[string]int64, len(work))
	for _, w := range work {
		rowCounts[w.TableKey] = w.RowCount
	}
	factory := func(workerID int) (scheduler.Worker, error) {
		return &estimateWorker{
			src:       e.src,
			tables:    tablesByKey,
			rowCounts: rowCounts,
			counter:   NewCounter(e.cfg.Model),
			cfg:       e.cfg,
		}, nil
	}

	report, err := scheduler.Run(ctx, items, opts, factory, e.cb)
	if err != nil {
		return result, err
	}

	price := e.cfg.PricePerMillion
	for _, agg := range report.Tables {
		est := TableEstimate{
			TableKey: agg.TableKey,
			Rows:     agg.Rows,
			Tokens:   agg.Metric,
			Cost:     Cost(agg.Metric, price),
		}
		result.Tables = append(result.Tables, est)
		result.TotalRows += est.Rows
		result.TotalTokens += est.Tokens
		result.TotalCost += est.Cost
	}
	sort.Slice(result.Tables, func(i, j int) bool { return result.Tables[i].TableKey < result.Tables[j].TableKey })
	result.Errors = report.Errors
	return result, nil
}

// estimateWorker processes one item fully before requesting the next. The
// *sql.DB behind src pools connections per goroutine on demand, and the
// token counter is this worker's private lazily-built resource.
type estimateWorker struct {
	src       *source.Source
	tables    map[string]*source.TableInfo
	rowCounts map[string]int64
	counter   Counter
	cfg       Config
}

func (w *estimateWorker) Process(ctx context.Context, item scheduler.Item) (scheduler.ItemResult, error) {
	t, ok := w.tables[item.TableKey]
	if !ok {
		return scheduler.ItemResult{}, fmt.Errorf("unknown table %s", item.TableKey)
	}

	opts := transform.Options{
		TextColumnsMode: w.cfg.TextColumnsMode,
		ExcludedColumns: w.cfg.ExcludedColumns,
	}

	// A whole-table item scans up to the table's (possibly sampled) row
	// count; a chunk item scans exactly its offset window.
	offset := item.Offset
	remaining := w.rowCounts[item.TableKey]
	if item.Limit > 0 {
		remaining = int64(item.Limit)
	}

	var res scheduler.ItemResult
	for remaining > 0 {
		pageSize := w.cfg.BatchSize
		if int64(pageSize) > remaining {
			pageSize = int(remaining)
		}
		page, err := w.src.FetchTableRows(ctx, t, pageSize, offset)
		if err != nil {
			return res, err
		}
		if len(page) == 0 {
			break
		}

		texts := make([]string, 0, len(page))
		for _, row := range page {
			doc, err := transform.RowToDocument(row, t, opts)
			if err != nil {
				return res, err
			}
			texts = append(texts, doc.PageContent)
		}
		tokens, err := w.counter.CountTokens(texts)
		if err != nil {
			return res, err
		}
		res.Rows += int64(len(page))
		res.Metric += tokens
		offset += len(page)
		remaining -= int64(len(page))
	}
	return res, nil
}

func (w *estimateWorker) Close() error {
	return nil
}
