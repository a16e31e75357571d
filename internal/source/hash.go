package source

import (
	"sort"

	"index-pump/internal/canon"
)

// SchemaHash fingerprints a table's column definitions. Columns are sorted by
// ordinal position and projected to the fields that constitute a structural
// change; the ordinal itself is only the sort key, so a renumbering that keeps
// the relative order (an unrelated ALTER, say) does not flip the hash.
func SchemaHash(columns []ColumnInfo) string {
	sorted := make([]ColumnInfo, len(columns))
	copy(sorted, columns)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].OrdinalPosition < sorted[j].OrdinalPosition
	})

	projected := make([]interface{}, len(sorted))
	for i, c := range sorted {
		var def interface{}
		if c.ColumnDefault != nil {
			def = *c.ColumnDefault
		}
		var pkPos interface{}
		if c.PKPosition != nil {
			pkPos = *c.PKPosition
		}
		projected[i] = map[string]interface{}{
			"column_name":    c.Name,
			"data_type":      c.DataType,
			"is_nullable":    c.IsNullable,
			"column_default": def,
			"pk_position":    pkPos,
		}
	}
	return canon.Fingerprint(projected)
}

// TableHash is the single content-change signal: a fingerprint over the
// schema hash plus three cheap aggregates. Any change in row count, the
// latest update timestamp, or the lexicographic max of the primary key flips
// it. In-place updates that touch none of the three are not detected.
func TableHash(schemaHash string, rowCount int64, maxUpdatedAt, maxPK *string) string {
	var upd, pk interface{}
	if maxUpdatedAt != nil {
		upd = *maxUpdatedAt
	}
	if maxPK != nil {
		pk = *maxPK
	}
	return canon.Fingerprint(map[string]interface{}{
		"schema_hash":    schemaHash,
		"row_count":      rowCount,
		"max_updated_at": upd,
		"max_pk":         pk,
	})
}

// RowHash fingerprints a full row; stored in document metadata as a content
// marker, not consulted by the planner.
func RowHash(row map[string]interface{}) string {
	return canon.Fingerprint(row)
}
