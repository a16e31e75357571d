// Package transform converts raw source rows into index documents with
// stable, idempotent ids.
package transform

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"index-pump/internal/canon"
	"index-pump/internal/index"
	"index-pump/internal/source"
)

// TextColumnsMode selects which columns contribute to page content.
const (
	TextColumnsTextual = "textual" // textual-type allowlist only
	TextColumnsAll     = "all"     // every non-excluded column
)

// textualTypes is the substring allowlist matched case-insensitively against
// the raw data type when TextColumnsTextual is active.
var textualTypes = []string{
	"text", "character varying", "varchar", "character", "char",
	"citext", "json", "jsonb", "uuid",
}

// MissingPrimaryKeyError reports a declared PK column absent from a fetched
// row. It aborts the table's reindex; the executor records it as a table
// failure.
type MissingPrimaryKeyError struct {
	TableKey string
	Column   string
}

func (e *MissingPrimaryKeyError) Error() string {
	return fmt.Sprintf("row from %s is missing primary key column %q", e.TableKey, e.Column)
}

// Options carries the per-run knobs for document construction.
type Options struct {
	RunID           string
	TextColumnsMode string   // TextColumnsTextual or TextColumnsAll
	ExcludedColumns []string // case-insensitive column blocklist for page content
}

// BuildDocID derives the deterministic document id for a logical row:
// the fingerprint of "{schema}.{table}|" plus the canonicalized primary-key
// object. Reprocessing the same row always yields the same id, which is what
// makes the upsert path idempotent.
func BuildDocID(schema, table string, primaryKey map[string]interface{}) string {
	return canon.Fingerprint(fmt.Sprintf("%s.%s|%s", schema, table, canon.Canonicalize(primaryKey)))
}

// RowToDocument builds the document for one row. The declared PK columns must
// all be present in the row; page content is never empty (a canonical dump of
// the whole row is the fallback).
func RowToDocument(row map[string]interface{}, t *source.TableInfo, opts Options) (index.Document, error) {
	primaryKey := make(map[string]interface{}, len(t.PKColumns))
	for _, col := range t.PKColumns {
		v, ok := lookupColumn(row, col)
		if !ok {
			return index.Document{}, &MissingPrimaryKeyError{TableKey: t.Key(), Column: col}
		}
		primaryKey[col] = v
	}

	content := buildPageContent(row, t, opts)

	var updatedAt interface{}
	if t.UpdatedAtColumn != "" {
		if v, ok := lookupColumn(row, t.UpdatedAtColumn); ok && v != nil {
			updatedAt = normalizeValue(v)
		}
	}

	doc := index.Document{
		DocID:       BuildDocID(t.Schema, t.Table, primaryKey),
		PageContent: content,
		RunID:       opts.RunID,
		Metadata: map[string]interface{}{
			"schema":          t.Schema,
			"table":           t.Table,
			"primary_key":     primaryKey,
			"pk_fingerprint":  canon.Fingerprint(primaryKey),
			"updated_at":      updatedAt,
			"row_fingerprint": source.RowHash(row),
			"run_id":          opts.RunID,
		},
	}
	return doc, nil
}

// buildPageContent renders "<column>: <value>" lines for the selected
// columns. Column order follows the table's ordinal order for columns we know
// about, then any extra row keys sorted by name, so output is stable.
func buildPageContent(row map[string]interface{}, t *source.TableInfo, opts Options) string {
	excluded := make(map[string]bool, len(opts.ExcludedColumns))
	for _, c := range opts.ExcludedColumns {
		excluded[strings.ToLower(c)] = true
	}

	var lines []string
	seen := make(map[string]bool, len(row))
	appendLine := func(name string, dataType string) {
		if excluded[strings.ToLower(name)] {
			return
		}
		if opts.TextColumnsMode != TextColumnsAll && !isTextualType(dataType) {
			return
		}
		v, ok := lookupColumn(row, name)
		if !ok {
			return
		}
		s := normalizeValue(v)
		if s == "" {
			return
		}
		lines = append(lines, name+": "+s)
	}

	for _, col := range t.Columns {
		appendLine(col.Name, col.DataType)
		seen[strings.ToLower(col.Name)] = true
	}
	// Row keys with no discovered column carry no type info; they only
	// qualify in "all" mode.
	var extras []string
	for k := range row {
		if !seen[strings.ToLower(k)] {
			extras = append(extras, k)
		}
	}
	sort.Strings(extras)
	for _, k := range extras {
		appendLine(k, "")
	}

	if len(lines) == 0 {
		// Nothing textual survived; embed the whole row so content is never
		// empty.
		return fmt.Sprintf("[%s] %s", t.Key(), canon.Canonicalize(row))
	}
	return strings.Join(lines, "\n")
}

func isTextualType(dataType string) bool {
	lower := strings.ToLower(dataType)
	for _, t := range textualTypes {
		if strings.Contains(lower, t) {
			return true
		}
	}
	return false
}

// lookupColumn finds a row value by column name, tolerating case differences
// between discovery metadata and driver column labels.
func lookupColumn(row map[string]interface{}, name string) (interface{}, bool) {
	if v, ok := row[name]; ok {
		return v, true
	}
	for k, v := range row {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return nil, false
}

// normalizeValue renders a row value for page content: nil becomes the empty
// string (line omitted), times the canonical UTC layout, nested structures
// their canonical JSON.
func normalizeValue(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case time.Time:
		return canon.FormatTime(x)
	case *time.Time:
		if x == nil {
			return ""
		}
		return canon.FormatTime(*x)
	case map[string]interface{}, []interface{}:
		return canon.Canonicalize(x)
	default:
		return fmt.Sprint(x)
	}
}
