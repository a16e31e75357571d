package source

import "fmt"

// ColumnInfo is an immutable snapshot of one column at discovery time.
type ColumnInfo struct {
	Name            string
	DataType        string // raw source type string, normalized by the dialect
	IsNullable      bool
	ColumnDefault   *string
	OrdinalPosition int  // 1-based
	PKPosition      *int // 1-based position within a composite key, nil if not part of the key
	IsIdentity      bool
}

// ForeignKey records one FK edge; used by the seed workflow only.
type ForeignKey struct {
	Column    string
	RefTable  string
	RefColumn string
}

// TableInfo identifies a table uniquely by (Schema, Table). Columns are
// ordered by ordinal position, PKColumns by key order. Owned by the
// discovery stage and read-only afterward within a run.
type TableInfo struct {
	Schema          string
	Table           string
	Columns         []ColumnInfo
	PKColumns       []string
	UpdatedAtColumn string // resolved from the candidate list, "" if none
	ForeignKeys     []ForeignKey
	Dependencies    []string
}

// Key returns the canonical "schema.table" identity string.
func (t *TableInfo) Key() string {
	return TableKey(t.Schema, t.Table)
}

func (t *TableInfo) HasPrimaryKey() bool {
	return len(t.PKColumns) > 0
}

// ColumnNames returns the column names in ordinal order.
func (t *TableInfo) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// TableKey builds the canonical identity string for (schema, table).
func TableKey(schema, table string) string {
	return fmt.Sprintf("%s.%s", schema, table)
}

// TableSnapshot holds the cheap per-table aggregates and the derived hashes.
// Computed once per run per table; immutable.
type TableSnapshot struct {
	Schema       string
	Table        string
	RowCount     int64
	MaxUpdatedAt *string // canonical ISO-8601 UTC string, nil when no updated-at column or empty table
	MaxPK        *string // lexicographic max of the pipe-joined text-cast key, nil when empty or no key
	SchemaHash   string
	TableHash    string
}

func (s *TableSnapshot) Key() string {
	return TableKey(s.Schema, s.Table)
}
