package transform_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"index-pump/internal/source"
	"index-pump/internal/transform"
)

func articleTable() *source.TableInfo {
	return &source.TableInfo{
		Schema: "public",
		Table:  "articles",
		Columns: []source.ColumnInfo{
			{Name: "id", DataType: "int", OrdinalPosition: 1},
			{Name: "title", DataType: "character varying", OrdinalPosition: 2},
			{Name: "body", DataType: "text", OrdinalPosition: 3},
			{Name: "view_count", DataType: "int", OrdinalPosition: 4},
			{Name: "updated_at", DataType: "timestamp", OrdinalPosition: 5},
		},
		PKColumns:       []string{"id"},
		UpdatedAtColumn: "updated_at",
	}
}

func TestBuildDocIDIdempotent(t *testing.T) {
	pk := map[string]interface{}{"id": 7}
	first := transform.BuildDocID("public", "articles", pk)
	second := transform.BuildDocID("public", "articles", pk)
	if first != second {
		t.Error("same identity must produce the same doc id")
	}

	if transform.BuildDocID("public", "articles", map[string]interface{}{"id": 8}) == first {
		t.Error("different primary key must change the doc id")
	}
	if transform.BuildDocID("public", "comments", pk) == first {
		t.Error("different table must change the doc id")
	}
	if transform.BuildDocID("audit", "articles", pk) == first {
		t.Error("different schema must change the doc id")
	}
}

func TestRowToDocumentContent(t *testing.T) {
	updated := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	row := map[string]interface{}{
		"id":         7,
		"title":      "hello",
		"body":       "world",
		"view_count": 123,
		"updated_at": updated,
	}

	doc, err := transform.RowToDocument(row, articleTable(), transform.Options{
		RunID:           "run-1",
		TextColumnsMode: transform.TextColumnsTextual,
	})
	if err != nil {
		t.Fatalf("transform failed: %v", err)
	}

	if !strings.Contains(doc.PageContent, "title: hello") || !strings.Contains(doc.PageContent, "body: world") {
		t.Errorf("textual columns missing from content:\n%s", doc.PageContent)
	}
	// int column is not textual in textual mode.
	if strings.Contains(doc.PageContent, "view_count") {
		t.Errorf("non-textual column leaked into content:\n%s", doc.PageContent)
	}

	meta := doc.Metadata
	if meta["schema"] != "public" || meta["table"] != "articles" {
		t.Errorf("identity metadata wrong: %+v", meta)
	}
	if meta["updated_at"] != "2026-03-01T09:30:00.000Z" {
		t.Errorf("updated_at not normalized: %v", meta["updated_at"])
	}
	if meta["row_fingerprint"] == "" || meta["pk_fingerprint"] == "" {
		t.Error("fingerprints missing from metadata")
	}
}

func TestRowToDocumentAllMode(t *testing.T) {
	row := map[string]interface{}{"id": 1, "title": "t", "view_count": 9}
	doc, err := transform.RowToDocument(row, articleTable(), transform.Options{
		RunID:           "run-1",
		TextColumnsMode: transform.TextColumnsAll,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(doc.PageContent, "view_count: 9") {
		t.Errorf("all mode should include numeric columns:\n%s", doc.PageContent)
	}
}

func TestExcludedColumnsNeverAppear(t *testing.T) {
	row := map[string]interface{}{"id": 1, "title": "secret title", "body": "fine"}
	doc, err := transform.RowToDocument(row, articleTable(), transform.Options{
		RunID:           "run-1",
		TextColumnsMode: transform.TextColumnsAll,
		ExcludedColumns: []string{"TITLE"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(doc.PageContent, "secret title") {
		t.Errorf("excluded column appeared in content:\n%s", doc.PageContent)
	}
}

func TestContentNeverEmpty(t *testing.T) {
	// All textual columns nil: fallback embeds the canonical row.
	row := map[string]interface{}{"id": 3, "title": nil, "body": nil, "view_count": 5}
	doc, err := transform.RowToDocument(row, articleTable(), transform.Options{
		RunID:           "run-1",
		TextColumnsMode: transform.TextColumnsTextual,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.PageContent) == 0 {
		t.Fatal("page content must never be empty")
	}
	if !strings.HasPrefix(doc.PageContent, "[public.articles]") {
		t.Errorf("fallback content should carry the table prefix:\n%s", doc.PageContent)
	}
}

func TestMissingPrimaryKeyColumn(t *testing.T) {
	row := map[string]interface{}{"title": "no id here"}
	_, err := transform.RowToDocument(row, articleTable(), transform.Options{RunID: "run-1"})
	if err == nil {
		t.Fatal("expected an error for a row lacking its PK column")
	}
	var pkErr *transform.MissingPrimaryKeyError
	if !errors.As(err, &pkErr) {
		t.Fatalf("expected MissingPrimaryKeyError, got %T: %v", err, err)
	}
	if pkErr.Column != "id" || pkErr.TableKey != "public.articles" {
		t.Errorf("error fields wrong: %+v", pkErr)
	}
}

func TestCaseInsensitivePKLookup(t *testing.T) {
	// Oracle-style drivers report upper-cased column labels.
	row := map[string]interface{}{"ID": 11, "TITLE": "x"}
	doc, err := transform.RowToDocument(row, articleTable(), transform.Options{
		RunID:           "run-1",
		TextColumnsMode: transform.TextColumnsAll,
	})
	if err != nil {
		t.Fatalf("case difference should not lose the PK: %v", err)
	}
	pk := doc.Metadata["primary_key"].(map[string]interface{})
	if pk["id"] != 11 {
		t.Errorf("expected pk id 11, got %v", pk["id"])
	}
}
