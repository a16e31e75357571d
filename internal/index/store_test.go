package index_test

import (
	"context"
	"path/filepath"
	"testing"

	"index-pump/internal/index"
)

func openTestStore(t *testing.T) *index.Store {
	t.Helper()
	s, err := index.Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func strPtr(s string) *string { return &s }

func TestDocumentUpsertIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	docs := []index.Document{
		{DocID: "d1", PageContent: "first", Metadata: map[string]interface{}{"k": "v"}, RunID: "r1"},
		{DocID: "d2", PageContent: "second", Metadata: map[string]interface{}{}, RunID: "r1"},
	}
	if err := s.UpsertDocuments(ctx, "tbl::public.users", docs); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	// Same ids again: replaced, not duplicated.
	docs[0].PageContent = "first revised"
	docs[0].RunID = "r2"
	if err := s.UpsertDocuments(ctx, "tbl::public.users", docs); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	n, err := s.CountDocuments(ctx, "tbl::public.users")
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 documents after re-upsert, got %d", n)
	}

	results, err := s.Search(ctx, "tbl::public.users", "revised", nil, 10)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(results) != 1 || results[0].Document.RunID != "r2" {
		t.Errorf("expected the revised document from run r2, got %+v", results)
	}
}

func TestResetIndexIfExists(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// Resetting a ref that was never written is fine.
	if err := s.ResetIndexIfExists(ctx, "tbl::public.ghost"); err != nil {
		t.Fatalf("reset of unknown ref should not error: %v", err)
	}

	if err := s.UpsertDocuments(ctx, "tbl::public.a", []index.Document{{DocID: "x", PageContent: "x", RunID: "r"}}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertDocuments(ctx, "tbl::public.b", []index.Document{{DocID: "y", PageContent: "y", RunID: "r"}}); err != nil {
		t.Fatal(err)
	}
	if err := s.ResetIndexIfExists(ctx, "tbl::public.a"); err != nil {
		t.Fatal(err)
	}

	if n, _ := s.CountDocuments(ctx, "tbl::public.a"); n != 0 {
		t.Errorf("expected ref a empty after reset, got %d", n)
	}
	if n, _ := s.CountDocuments(ctx, "tbl::public.b"); n != 1 {
		t.Errorf("reset of ref a must not touch ref b, got %d", n)
	}
}

func TestCatalogRecordRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	got, err := s.GetCatalogRecord(ctx, "public", "users")
	if err != nil {
		t.Fatalf("get on empty store errored: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for a missing record, got %+v", got)
	}

	rec := &index.CatalogRecord{
		Schema:           "public",
		Table:            "users",
		SchemaHash:       "sh1",
		TableHash:        "th1",
		RowCount:         42,
		MaxUpdatedAt:     strPtr("2026-02-01T10:00:00.000Z"),
		LastSuccessRunID: strPtr("run-1"),
		LastSuccessAt:    strPtr("2026-02-01T10:00:05.000Z"),
		LastMode:         strPtr("full"),
	}
	if err := s.PutCatalogRecord(ctx, rec); err != nil {
		t.Fatal(err)
	}

	got, err = s.GetCatalogRecord(ctx, "public", "users")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.TableHash != "th1" || got.RowCount != 42 || *got.LastSuccessRunID != "run-1" {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if got.LastError != nil {
		t.Errorf("expected nil last_error, got %q", *got.LastError)
	}

	// Upsert keeps exactly one row and replaces fields.
	rec.TableHash = "th2"
	rec.LastError = strPtr("boom")
	if err := s.PutCatalogRecord(ctx, rec); err != nil {
		t.Fatal(err)
	}
	all, err := s.ListCatalogRecords(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 catalog record, got %d", len(all))
	}
	if all[0].TableHash != "th2" || all[0].LastError == nil || *all[0].LastError != "boom" {
		t.Errorf("upsert did not replace fields: %+v", all[0])
	}
}

func TestRunRecordRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec := &index.RunRecord{
		RunID:     "run-1",
		StartedAt: "2026-02-01T10:00:00.000Z",
		Status:    index.RunStatusRunning,
	}
	if err := s.PutRunRecord(ctx, rec); err != nil {
		t.Fatal(err)
	}

	rec.FinishedAt = strPtr("2026-02-01T10:01:00.000Z")
	rec.Status = index.RunStatusPartialSuccess
	rec.TablesTotal = 3
	rec.TablesReindexed = 1
	rec.TablesSkipped = 1
	rec.RowsUpserted = 17
	rec.Errors = []index.RunError{{TableKey: "public.orders", Message: "connection reset"}}
	if err := s.PutRunRecord(ctx, rec); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetRunRecord(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != index.RunStatusPartialSuccess || got.RowsUpserted != 17 {
		t.Errorf("unexpected run record: %+v", got)
	}
	if len(got.Errors) != 1 || got.Errors[0].TableKey != "public.orders" {
		t.Errorf("run errors did not round trip: %+v", got.Errors)
	}

	if missing, err := s.GetRunRecord(ctx, "nope"); err != nil || missing != nil {
		t.Errorf("expected nil for unknown run id, got %+v err %v", missing, err)
	}
}

func TestVectorEncodeDecode(t *testing.T) {
	vec := []float32{0.5, -1.25, 3}
	round := index.DecodeVector(index.EncodeVector(vec))
	if len(round) != len(vec) {
		t.Fatalf("length mismatch: %d", len(round))
	}
	for i := range vec {
		if round[i] != vec[i] {
			t.Errorf("component %d: got %v want %v", i, round[i], vec[i])
		}
	}

	if sim := index.CosineSimilarity(vec, vec); sim < 0.999 {
		t.Errorf("self similarity should be 1, got %v", sim)
	}
	if sim := index.CosineSimilarity(vec, nil); sim != 0 {
		t.Errorf("mismatched lengths should score 0, got %v", sim)
	}
}
