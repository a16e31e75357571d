// Package scheduler fans per-table work out across a bounded pool of
// workers, splitting large tables into bounded chunks so no single unit of
// work monopolizes a worker. The coordinator's message loop is the only
// place queue and aggregation state mutate, so no locks are needed.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"index-pump/internal/logger"
)

// Item is one unit of work: a whole table, or one chunk of a large table.
type Item struct {
	TableKey   string
	ChunkIndex int
	Offset     int
	Limit      int // 0 means the whole table
	ChunkCount int // 1 for whole-table items
}

// ItemResult is the per-item aggregate a worker hands back.
type ItemResult struct {
	Rows   int64
	Metric int64 // tokens for estimation; anything summable in general
}

// TableAggregate is the exactly-once table-complete event: the summed result
// over all of a table's chunks.
type TableAggregate struct {
	TableKey string
	Rows     int64
	Metric   int64
	Chunks   int
}

// ItemError records one failed work item.
type ItemError struct {
	TableKey   string
	ChunkIndex int
	Err        error
}

// Report is what a finished scheduling operation yields. Partial success is
// normal: completed tables land in Tables even when other items failed.
type Report struct {
	Tables []TableAggregate
	Errors []ItemError
}

// Worker processes items one at a time. Each worker owns its downstream
// resources (connection, encoder) and is closed when handed an empty batch.
type Worker interface {
	Process(ctx context.Context, item Item) (ItemResult, error)
	Close() error
}

// WorkerFactory builds one worker per pool slot.
type WorkerFactory func(workerID int) (Worker, error)

// Options sizes the pool and the dispatch batches.
type Options struct {
	MaxWorkers    int
	ItemsPerBatch int
}

// Callbacks are invoked synchronously from the coordinator's message loop
// and must be cheap and non-blocking.
type Callbacks struct {
	OnTableStart    func(tableKey string)
	OnChunkComplete func(tableKey string, chunkIndex int, res ItemResult)
	OnTableComplete func(agg TableAggregate)
	OnTableError    func(tableKey string, err error)
}

// TableWork is the queue-construction input: a table and its known row count.
type TableWork struct {
	TableKey string
	RowCount int64
}

// BuildQueue splits tables at or above largeTableThreshold into
// ceil(rowCount/chunkSize) chunk items and enqueues everything else whole.
func BuildQueue(tables []TableWork, largeTableThreshold, chunkSize int) []Item {
	var items []Item
	for _, t := range tables {
		if chunkSize > 0 && largeTableThreshold > 0 && t.RowCount >= int64(largeTableThreshold) {
			chunks := int((t.RowCount + int64(chunkSize) - 1) / int64(chunkSize))
			for i := 0; i < chunks; i++ {
				items = append(items, Item{
					TableKey:   t.TableKey,
					ChunkIndex: i,
					Offset:     i * chunkSize,
					Limit:      chunkSize,
					ChunkCount: chunks,
				})
			}
			continue
		}
		items = append(items, Item{TableKey: t.TableKey, ChunkCount: 1})
	}
	return items
}

// WorkerCount sizes the pool: min(maxWorkers, ceil(queueLen/itemsPerBatch)),
// never more workers than could each receive a batch.
func WorkerCount(queueLen int, opts Options) int {
	if queueLen == 0 {
		return 0
	}
	perBatch := opts.ItemsPerBatch
	if perBatch <= 0 {
		perBatch = 1
	}
	n := (queueLen + perBatch - 1) / perBatch
	if opts.MaxWorkers > 0 && n > opts.MaxWorkers {
		n = opts.MaxWorkers
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Coordinator messages. Workers never talk to each other; everything flows
// through these.
type batchRequest struct {
	workerID int
	reply    chan []Item
}

type itemDone struct {
	item Item
	res  ItemResult
	err  error
}

type workerExit struct {
	workerID int
	err      error
}

type message struct {
	batch *batchRequest
	done  *itemDone
	exit  *workerExit
}

type tableProgress struct {
	rows     int64
	metric   int64
	received int
	expected int
}

// Run drains the queue through the worker pool and returns the aggregated
// report. It fails only when every item errored and nothing succeeded;
// otherwise it resolves with whatever was collected.
func Run(ctx context.Context, items []Item, opts Options, factory WorkerFactory, cb Callbacks) (Report, error) {
	var report Report
	if len(items) == 0 {
		return report, nil
	}
	perBatch := opts.ItemsPerBatch
	if perBatch <= 0 {
		perBatch = 1
	}
	workers := WorkerCount(len(items), opts)

	msgCh := make(chan message, workers)
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		workerID := i
		g.Go(func() error {
			runWorker(ctx, workerID, factory, msgCh)
			return nil
		})
	}

	// Coordinator: single consumer of msgCh; sole owner of the queue and the
	// aggregation map.
	queue := items
	started := make(map[string]bool)
	aggregates := make(map[string]*tableProgress)
	successes := 0
	alive := workers

	for alive > 0 {
		msg := <-msgCh
		switch {
		case msg.batch != nil:
			n := perBatch
			if n > len(queue) {
				n = len(queue)
			}
			batch := queue[:n]
			queue = queue[n:]
			for _, it := range batch {
				if !started[it.TableKey] {
					started[it.TableKey] = true
					if cb.OnTableStart != nil {
						cb.OnTableStart(it.TableKey)
					}
				}
			}
			msg.batch.reply <- batch

		case msg.done != nil:
			d := msg.done
			if d.err != nil {
				report.Errors = append(report.Errors, ItemError{TableKey: d.item.TableKey, ChunkIndex: d.item.ChunkIndex, Err: d.err})
				if cb.OnTableError != nil {
					cb.OnTableError(d.item.TableKey, d.err)
				}
				continue
			}
			successes++
			agg := aggregates[d.item.TableKey]
			if agg == nil {
				agg = &tableProgress{expected: d.item.ChunkCount}
				aggregates[d.item.TableKey] = agg
			}
			agg.rows += d.res.Rows
			agg.metric += d.res.Metric
			agg.received++
			if d.item.ChunkCount > 1 && cb.OnChunkComplete != nil {
				cb.OnChunkComplete(d.item.TableKey, d.item.ChunkIndex, d.res)
			}
			// Exactly-once table-complete: only when every expected chunk
			// has reported, regardless of arrival order.
			if agg.received == agg.expected {
				complete := TableAggregate{
					TableKey: d.item.TableKey,
					Rows:     agg.rows,
					Metric:   agg.metric,
					Chunks:   agg.expected,
				}
				delete(aggregates, d.item.TableKey)
				report.Tables = append(report.Tables, complete)
				if cb.OnTableComplete != nil {
					cb.OnTableComplete(complete)
				}
			}

		case msg.exit != nil:
			alive--
			if msg.exit.err != nil {
				logger.Warnf("worker %d crashed: %v", msg.exit.workerID, msg.exit.err)
				report.Errors = append(report.Errors, ItemError{Err: msg.exit.err})
			}
		}
	}
	g.Wait()

	sort.Slice(report.Tables, func(i, j int) bool { return report.Tables[i].TableKey < report.Tables[j].TableKey })
	if successes == 0 && len(report.Errors) > 0 {
		return report, fmt.Errorf("all %d workers finished without a single result: %w", workers, report.Errors[0].Err)
	}
	return report, nil
}

// runWorker requests batches until handed an empty one, processing items one
// at a time. Item errors are reported and the worker moves on; a panic is
// treated as this worker's crash and ends only this worker.
func runWorker(ctx context.Context, workerID int, factory WorkerFactory, msgCh chan<- message) {
	var exitErr error
	defer func() {
		msgCh <- message{exit: &workerExit{workerID: workerID, err: exitErr}}
	}()

	w, err := factory(workerID)
	if err != nil {
		exitErr = fmt.Errorf("worker %d setup failed: %w", workerID, err)
		return
	}
	defer w.Close()

	for {
		reply := make(chan []Item, 1)
		msgCh <- message{batch: &batchRequest{workerID: workerID, reply: reply}}
		batch := <-reply
		if len(batch) == 0 {
			return // shutdown signal
		}
		for _, item := range batch {
			res, err := processGuarded(ctx, w, item)
			if err != nil && isPanicErr(err) {
				exitErr = err
				// Unfinished items of this batch are lost with the worker;
				// they surface as item errors so the report stays honest.
				msgCh <- message{done: &itemDone{item: item, err: err}}
				return
			}
			msgCh <- message{done: &itemDone{item: item, res: res, err: err}}
		}
	}
}

type panicError struct{ cause error }

func (p *panicError) Error() string { return p.cause.Error() }
func (p *panicError) Unwrap() error { return p.cause }

func isPanicErr(err error) bool {
	var pe *panicError
	return errors.As(err, &pe)
}

func processGuarded(ctx context.Context, w Worker, item Item) (res ItemResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{cause: fmt.Errorf("worker panic on %s chunk %d: %v", item.TableKey, item.ChunkIndex, r)}
		}
	}()
	return w.Process(ctx, item)
}
