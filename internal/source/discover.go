package source

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"index-pump/internal/dialect"
)

// ErrNoTables is returned when discovery finds no tables after filtering.
var ErrNoTables = errors.New("no tables discovered")

// Source implements table discovery, snapshot aggregates and paginated row
// fetch over a *sql.DB and a Dialect.
type Source struct {
	db     *sql.DB
	d      dialect.Dialect
	schema string
}

func New(db *sql.DB, d dialect.Dialect, schema string) *Source {
	if schema == "" {
		schema = d.DefaultSchema()
	}
	return &Source{db: db, d: d, schema: schema}
}

func (s *Source) Schema() string { return s.schema }

func (s *Source) Dialect() dialect.Dialect { return s.d }

// DiscoverOptions narrows the discovered table set and drives updated-at
// column resolution.
type DiscoverOptions struct {
	Include             []string // allowlist; "*" admits everything
	Exclude             []string // blocklist, wins over the allowlist
	UpdatedAtCandidates []string // caller-supplied priority order
}

// TableAllowed reports whether a table passes the allow/deny lists. Matching
// is case-insensitive; an empty allowlist behaves like ["*"].
func TableAllowed(name string, include, exclude []string) bool {
	lower := strings.ToLower(name)
	for _, e := range exclude {
		if strings.ToLower(e) == lower {
			return false
		}
	}
	if len(include) == 0 {
		return true
	}
	for _, i := range include {
		if i == "*" || strings.ToLower(i) == lower {
			return true
		}
	}
	return false
}

// ResolveUpdatedAt returns the first candidate that case-insensitively
// matches an existing column name, or "" when none do.
func ResolveUpdatedAt(columns []ColumnInfo, candidates []string) string {
	for _, cand := range candidates {
		for _, c := range columns {
			if strings.EqualFold(c.Name, cand) {
				return c.Name
			}
		}
	}
	return ""
}

// DiscoverTables queries table, column, primary-key and foreign-key metadata
// for the configured schema, applies the allow/deny lists and resolves the
// updated-at column per table.
func (s *Source) DiscoverTables(ctx context.Context, opts DiscoverOptions) ([]*TableInfo, error) {
	tableMap := make(map[string]*TableInfo)
	var tables []*TableInfo

	// --- Step 1: tables ---
	rows, err := s.db.QueryContext(ctx, s.d.TablesQuery(), s.schema)
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		if !TableAllowed(name, opts.Include, opts.Exclude) {
			continue
		}
		t := &TableInfo{Schema: s.schema, Table: name}
		tableMap[strings.ToUpper(name)] = t
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tables: %w", err)
	}
	if len(tables) == 0 {
		return nil, ErrNoTables
	}

	// --- Step 2: columns ---
	colRows, err := s.db.QueryContext(ctx, s.d.ColumnsQuery(), s.schema)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns: %w", err)
	}
	defer colRows.Close()

	for colRows.Next() {
		var tName, cName, dType, isNull, colDefault sql.NullString
		var ordinal int
		var isIdentity int
		if err := colRows.Scan(&tName, &cName, &dType, &isNull, &colDefault, &ordinal, &isIdentity); err != nil {
			return nil, fmt.Errorf("failed to scan column (table: %s): %w", tName.String, err)
		}
		t, ok := tableMap[strings.ToUpper(tName.String)]
		if !ok {
			continue
		}

		col := ColumnInfo{
			Name:            cName.String,
			DataType:        s.d.NormalizeType(dType.String),
			IsNullable:      isNull.String == "YES" || isNull.String == "Y",
			OrdinalPosition: ordinal,
			IsIdentity:      isIdentity == 1,
		}
		if colDefault.Valid {
			def := colDefault.String
			col.ColumnDefault = &def
		}
		t.Columns = append(t.Columns, col)
	}
	if err := colRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating columns: %w", err)
	}

	// --- Step 3: primary keys ---
	pkRows, err := s.db.QueryContext(ctx, s.d.PrimaryKeysQuery(), s.schema)
	if err != nil {
		return nil, fmt.Errorf("failed to query primary keys: %w", err)
	}
	defer pkRows.Close()

	for pkRows.Next() {
		var tName, cName string
		var keyOrdinal int
		if err := pkRows.Scan(&tName, &cName, &keyOrdinal); err != nil {
			return nil, fmt.Errorf("failed to scan primary key: %w", err)
		}
		t, ok := tableMap[strings.ToUpper(tName)]
		if !ok {
			continue
		}
		t.PKColumns = append(t.PKColumns, cName)
		for i := range t.Columns {
			if strings.EqualFold(t.Columns[i].Name, cName) {
				pos := keyOrdinal
				t.Columns[i].PKPosition = &pos
			}
		}
	}
	if err := pkRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating primary keys: %w", err)
	}

	// --- Step 4: foreign keys (seed workflow dependency graph) ---
	fkRows, err := s.db.QueryContext(ctx, s.d.ForeignKeysQuery(), s.schema)
	if err != nil {
		return nil, fmt.Errorf("failed to query foreign keys: %w", err)
	}
	defer fkRows.Close()

	for fkRows.Next() {
		var tName, cName, rTable, rCol sql.NullString
		if err := fkRows.Scan(&tName, &cName, &rTable, &rCol); err != nil {
			return nil, fmt.Errorf("failed to scan foreign key: %w", err)
		}
		if !tName.Valid || !rTable.Valid || tName.String == rTable.String {
			continue
		}
		t, ok := tableMap[strings.ToUpper(tName.String)]
		if !ok {
			continue
		}
		// Only record references to tables we also discovered.
		ref, ok := tableMap[strings.ToUpper(rTable.String)]
		if !ok {
			continue
		}
		t.Dependencies = append(t.Dependencies, ref.Table)
		t.ForeignKeys = append(t.ForeignKeys, ForeignKey{
			Column:    cName.String,
			RefTable:  ref.Table,
			RefColumn: rCol.String,
		})
	}
	if err := fkRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating foreign keys: %w", err)
	}

	for _, t := range tables {
		t.UpdatedAtColumn = ResolveUpdatedAt(t.Columns, opts.UpdatedAtCandidates)
	}
	return tables, nil
}
