package source_test

import (
	"testing"

	"index-pump/internal/source"
)

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func TestTableAllowed(t *testing.T) {
	cases := []struct {
		name     string
		include  []string
		exclude  []string
		table    string
		expected bool
	}{
		{"wildcard admits", []string{"*"}, nil, "orders", true},
		{"empty allowlist admits", nil, nil, "orders", true},
		{"explicit include case-insensitive", []string{"ORDERS"}, nil, "orders", true},
		{"not in allowlist", []string{"users"}, nil, "orders", false},
		{"exclude wins over wildcard", []string{"*"}, []string{"Orders"}, "orders", false},
		{"exclude wins over include", []string{"orders"}, []string{"orders"}, "orders", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := source.TableAllowed(tc.table, tc.include, tc.exclude); got != tc.expected {
				t.Errorf("TableAllowed(%q, %v, %v) = %v, want %v", tc.table, tc.include, tc.exclude, got, tc.expected)
			}
		})
	}
}

func TestResolveUpdatedAt(t *testing.T) {
	columns := []source.ColumnInfo{
		{Name: "id"},
		{Name: "Modified_At"},
		{Name: "updated_at"},
	}

	// First candidate in priority order wins, case-insensitively.
	got := source.ResolveUpdatedAt(columns, []string{"updated_at", "modified_at"})
	if got != "updated_at" {
		t.Errorf("expected updated_at, got %q", got)
	}

	got = source.ResolveUpdatedAt(columns, []string{"modified_at", "updated_at"})
	if got != "Modified_At" {
		t.Errorf("expected column's own casing Modified_At, got %q", got)
	}

	if got := source.ResolveUpdatedAt(columns, []string{"changed_at"}); got != "" {
		t.Errorf("expected no match, got %q", got)
	}
}

func baseColumns() []source.ColumnInfo {
	return []source.ColumnInfo{
		{Name: "id", DataType: "int", IsNullable: false, OrdinalPosition: 1, PKPosition: intPtr(1)},
		{Name: "title", DataType: "varchar", IsNullable: true, OrdinalPosition: 2},
		{Name: "body", DataType: "text", IsNullable: true, OrdinalPosition: 3, ColumnDefault: strPtr("''")},
	}
}

func TestSchemaHashSensitivity(t *testing.T) {
	base := source.SchemaHash(baseColumns())

	if source.SchemaHash(baseColumns()) != base {
		t.Fatal("schema hash is not deterministic")
	}

	// Any projected field change flips the hash.
	mutations := map[string]func(cols []source.ColumnInfo){
		"data type":   func(c []source.ColumnInfo) { c[1].DataType = "text" },
		"nullability": func(c []source.ColumnInfo) { c[1].IsNullable = false },
		"default":     func(c []source.ColumnInfo) { c[2].ColumnDefault = strPtr("'x'") },
		"pk position": func(c []source.ColumnInfo) { c[1].PKPosition = intPtr(2) },
		"name":        func(c []source.ColumnInfo) { c[1].Name = "subject" },
	}
	for name, mutate := range mutations {
		cols := baseColumns()
		mutate(cols)
		if source.SchemaHash(cols) == base {
			t.Errorf("changing %s did not change the schema hash", name)
		}
	}

	// Renumbering ordinals without changing relative order is invisible.
	renumbered := baseColumns()
	renumbered[0].OrdinalPosition = 10
	renumbered[1].OrdinalPosition = 20
	renumbered[2].OrdinalPosition = 30
	if source.SchemaHash(renumbered) != base {
		t.Error("ordinal renumbering with unchanged relative order changed the schema hash")
	}

	// Declaration-order shuffle with unchanged ordinals is invisible too.
	shuffled := baseColumns()
	shuffled[0], shuffled[2] = shuffled[2], shuffled[0]
	if source.SchemaHash(shuffled) != base {
		t.Error("column slice order changed the schema hash despite identical ordinals")
	}
}

func TestTableHashSensitivity(t *testing.T) {
	schemaHash := source.SchemaHash(baseColumns())
	upd := strPtr("2026-01-01T00:00:00.000Z")
	pk := strPtr("42")

	base := source.TableHash(schemaHash, 100, upd, pk)

	if source.TableHash(schemaHash, 100, upd, pk) != base {
		t.Fatal("table hash is not deterministic")
	}
	if source.TableHash(schemaHash, 101, upd, pk) == base {
		t.Error("row count change did not flip the table hash")
	}
	if source.TableHash(schemaHash, 100, strPtr("2026-01-02T00:00:00.000Z"), pk) == base {
		t.Error("max updated-at change did not flip the table hash")
	}
	if source.TableHash(schemaHash, 100, upd, strPtr("43")) == base {
		t.Error("max pk change did not flip the table hash")
	}
	if source.TableHash(schemaHash, 100, nil, pk) == base {
		t.Error("nil max updated-at should hash differently from a value")
	}
}

func TestSortByDependencies_Simple(t *testing.T) {
	tables := []*source.TableInfo{
		{Table: "order_items", Dependencies: []string{"orders"}},
		{Table: "orders", Dependencies: []string{"users"}},
		{Table: "users"},
	}
	sorted := source.SortByDependencies(tables)
	if sorted[0].Table != "users" || sorted[1].Table != "orders" || sorted[2].Table != "order_items" {
		t.Errorf("unexpected order: %s, %s, %s", sorted[0].Table, sorted[1].Table, sorted[2].Table)
	}
}

func TestSortByDependencies_Circular(t *testing.T) {
	// a -> b -> c -> a cycle plus an independent table.
	tables := []*source.TableInfo{
		{Table: "a", Dependencies: []string{"b"}},
		{Table: "b", Dependencies: []string{"c"}},
		{Table: "c", Dependencies: []string{"a"}},
		{Table: "standalone"},
	}
	sorted := source.SortByDependencies(tables)
	if len(sorted) != len(tables) {
		t.Fatalf("expected %d tables, got %d", len(tables), len(sorted))
	}
	if sorted[0].Table != "standalone" {
		t.Errorf("independent table should sort first, got %s", sorted[0].Table)
	}
	seen := make(map[string]bool)
	for _, tbl := range sorted {
		seen[tbl.Table] = true
	}
	for _, name := range []string{"a", "b", "c", "standalone"} {
		if !seen[name] {
			t.Errorf("table %s missing from sorted output", name)
		}
	}
}
