package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"index-pump/internal/scheduler"
)

// funcWorker adapts a closure to the Worker interface.
type funcWorker struct {
	process func(ctx context.Context, item scheduler.Item) (scheduler.ItemResult, error)
	closed  bool
}

func (w *funcWorker) Process(ctx context.Context, item scheduler.Item) (scheduler.ItemResult, error) {
	return w.process(ctx, item)
}

func (w *funcWorker) Close() error {
	w.closed = true
	return nil
}

func TestBuildQueueChunking(t *testing.T) {
	tables := []scheduler.TableWork{
		{TableKey: "public.small", RowCount: 100},
		{TableKey: "public.big", RowCount: 120000},
	}
	items := scheduler.BuildQueue(tables, 50000, 25000)

	var small, big []scheduler.Item
	for _, it := range items {
		if it.TableKey == "public.small" {
			small = append(small, it)
		} else {
			big = append(big, it)
		}
	}
	if len(small) != 1 || small[0].ChunkCount != 1 || small[0].Limit != 0 {
		t.Errorf("small table should be one whole-table item: %+v", small)
	}
	// ceil(120000/25000) = 5 chunks.
	if len(big) != 5 {
		t.Fatalf("expected 5 chunks for the big table, got %d", len(big))
	}
	for i, it := range big {
		if it.ChunkIndex != i || it.Offset != i*25000 || it.Limit != 25000 || it.ChunkCount != 5 {
			t.Errorf("chunk %d malformed: %+v", i, it)
		}
	}
}

func TestWorkerCount(t *testing.T) {
	opts := scheduler.Options{MaxWorkers: 4, ItemsPerBatch: 8}
	cases := []struct{ queue, want int }{
		{0, 0},
		{1, 1},
		{8, 1},
		{9, 2},
		{100, 4}, // capped by MaxWorkers
	}
	for _, tc := range cases {
		if got := scheduler.WorkerCount(tc.queue, opts); got != tc.want {
			t.Errorf("WorkerCount(%d) = %d, want %d", tc.queue, got, tc.want)
		}
	}
}

func TestChunkAggregationExactlyOnce(t *testing.T) {
	items := scheduler.BuildQueue([]scheduler.TableWork{
		{TableKey: "public.big", RowCount: 100000},
		{TableKey: "public.small", RowCount: 10},
	}, 50000, 25000)

	factory := func(int) (scheduler.Worker, error) {
		return &funcWorker{process: func(_ context.Context, item scheduler.Item) (scheduler.ItemResult, error) {
			if item.ChunkCount > 1 {
				return scheduler.ItemResult{Rows: 25000, Metric: 7}, nil
			}
			return scheduler.ItemResult{Rows: 10, Metric: 3}, nil
		}}, nil
	}

	var mu sync.Mutex
	completes := map[string]int{}
	chunkEvents := 0
	cb := scheduler.Callbacks{
		OnChunkComplete: func(string, int, scheduler.ItemResult) {
			mu.Lock()
			chunkEvents++
			mu.Unlock()
		},
		OnTableComplete: func(agg scheduler.TableAggregate) {
			mu.Lock()
			completes[agg.TableKey]++
			mu.Unlock()
		},
	}

	report, err := scheduler.Run(context.Background(), items, scheduler.Options{MaxWorkers: 3, ItemsPerBatch: 2}, factory, cb)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if completes["public.big"] != 1 || completes["public.small"] != 1 {
		t.Errorf("table-complete must fire exactly once per table: %v", completes)
	}
	if chunkEvents != 4 {
		t.Errorf("expected 4 chunk-complete events, got %d", chunkEvents)
	}

	if len(report.Tables) != 2 {
		t.Fatalf("expected 2 aggregates, got %d", len(report.Tables))
	}
	for _, agg := range report.Tables {
		switch agg.TableKey {
		case "public.big":
			if agg.Rows != 100000 || agg.Metric != 28 || agg.Chunks != 4 {
				t.Errorf("big aggregate wrong: %+v", agg)
			}
		case "public.small":
			if agg.Rows != 10 || agg.Metric != 3 {
				t.Errorf("small aggregate wrong: %+v", agg)
			}
		}
	}
}

func TestItemFailureDoesNotStopOthers(t *testing.T) {
	tables := []scheduler.TableWork{
		{TableKey: "public.a", RowCount: 1},
		{TableKey: "public.bad", RowCount: 1},
		{TableKey: "public.c", RowCount: 1},
	}
	items := scheduler.BuildQueue(tables, 0, 0)

	factory := func(int) (scheduler.Worker, error) {
		return &funcWorker{process: func(_ context.Context, item scheduler.Item) (scheduler.ItemResult, error) {
			if item.TableKey == "public.bad" {
				return scheduler.ItemResult{}, errors.New("broken table")
			}
			return scheduler.ItemResult{Rows: 1, Metric: 1}, nil
		}}, nil
	}

	var tableErrs []string
	cb := scheduler.Callbacks{
		OnTableError: func(key string, err error) { tableErrs = append(tableErrs, key) },
	}

	report, err := scheduler.Run(context.Background(), items, scheduler.Options{MaxWorkers: 1, ItemsPerBatch: 2}, factory, cb)
	if err != nil {
		t.Fatalf("partial failure must not fail the operation: %v", err)
	}
	if len(report.Tables) != 2 {
		t.Errorf("expected 2 completed tables, got %d", len(report.Tables))
	}
	if len(report.Errors) != 1 || report.Errors[0].TableKey != "public.bad" {
		t.Errorf("expected one recorded error for public.bad: %+v", report.Errors)
	}
	if len(tableErrs) != 1 || tableErrs[0] != "public.bad" {
		t.Errorf("table-error callback wrong: %v", tableErrs)
	}
}

func TestAllItemsFailingFailsTheOperation(t *testing.T) {
	items := scheduler.BuildQueue([]scheduler.TableWork{{TableKey: "public.a", RowCount: 1}}, 0, 0)
	factory := func(int) (scheduler.Worker, error) {
		return &funcWorker{process: func(context.Context, scheduler.Item) (scheduler.ItemResult, error) {
			return scheduler.ItemResult{}, errors.New("always broken")
		}}, nil
	}
	_, err := scheduler.Run(context.Background(), items, scheduler.Options{MaxWorkers: 1, ItemsPerBatch: 1}, factory, scheduler.Callbacks{})
	if err == nil {
		t.Fatal("zero successes with errors must fail the operation")
	}
}

func TestWorkerPanicTerminatesOnlyThatWorker(t *testing.T) {
	tables := []scheduler.TableWork{
		{TableKey: "public.panics", RowCount: 1},
		{TableKey: "public.a", RowCount: 1},
		{TableKey: "public.b", RowCount: 1},
		{TableKey: "public.c", RowCount: 1},
	}
	items := scheduler.BuildQueue(tables, 0, 0)

	factory := func(int) (scheduler.Worker, error) {
		return &funcWorker{process: func(_ context.Context, item scheduler.Item) (scheduler.ItemResult, error) {
			if item.TableKey == "public.panics" {
				panic("worker crash")
			}
			return scheduler.ItemResult{Rows: 1}, nil
		}}, nil
	}

	report, err := scheduler.Run(context.Background(), items, scheduler.Options{MaxWorkers: 2, ItemsPerBatch: 1}, factory, scheduler.Callbacks{})
	if err != nil {
		t.Fatalf("surviving workers should carry the operation: %v", err)
	}
	if len(report.Tables) != 3 {
		t.Errorf("expected the 3 healthy tables to complete, got %d", len(report.Tables))
	}
	if len(report.Errors) == 0 {
		t.Error("the crash must be visible in the report errors")
	}
}

func TestEmptyQueue(t *testing.T) {
	report, err := scheduler.Run(context.Background(), nil, scheduler.Options{}, nil, scheduler.Callbacks{})
	if err != nil || len(report.Tables) != 0 {
		t.Errorf("empty queue should resolve immediately: %+v, %v", report, err)
	}
}
