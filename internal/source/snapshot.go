package source

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"index-pump/internal/canon"
	"index-pump/internal/dialect"
)

// FetchTableSnapshot computes the three cheap aggregates for a table (row
// count, max updated-at, lexicographic max primary key) in a single query and
// derives the schema and table hashes.
func (s *Source) FetchTableSnapshot(ctx context.Context, t *TableInfo) (*TableSnapshot, error) {
	qt := s.d.QualifiedTable(t.Schema, t.Table)

	selects := "SELECT COUNT(*)"
	if t.UpdatedAtColumn != "" {
		selects += fmt.Sprintf(", MAX(%s)", s.d.QuoteIdent(t.UpdatedAtColumn))
	} else {
		selects += ", NULL"
	}
	if t.HasPrimaryKey() {
		selects += fmt.Sprintf(", MAX(%s)", dialect.PKJoinExpr(s.d, t.PKColumns))
	} else {
		selects += ", NULL"
	}
	query := selects + " FROM " + qt

	var rowCount int64
	var maxUpdated, maxPK interface{}
	if err := s.db.QueryRowContext(ctx, query).Scan(&rowCount, &maxUpdated, &maxPK); err != nil {
		return nil, fmt.Errorf("failed to snapshot %s: %w", t.Key(), err)
	}

	snap := &TableSnapshot{
		Schema:       t.Schema,
		Table:        t.Table,
		RowCount:     rowCount,
		MaxUpdatedAt: normalizeSnapshotString(maxUpdated),
		MaxPK:        normalizeSnapshotString(maxPK),
	}
	snap.SchemaHash = SchemaHash(t.Columns)
	snap.TableHash = TableHash(snap.SchemaHash, snap.RowCount, snap.MaxUpdatedAt, snap.MaxPK)
	return snap, nil
}

// normalizeSnapshotString renders an aggregate scan target as a stable
// string: times in the canonical UTC layout, bytes as text, nil stays nil.
func normalizeSnapshotString(v interface{}) *string {
	if v == nil {
		return nil
	}
	var out string
	switch x := v.(type) {
	case time.Time:
		out = canon.FormatTime(x)
	case []byte:
		out = string(x)
	case string:
		out = x
	case sql.RawBytes:
		out = string(x)
	default:
		out = fmt.Sprint(x)
	}
	return &out
}
