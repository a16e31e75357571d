package dialect

import "database/sql"

// Dialect abstracts database-specific SQL for introspection, snapshot
// aggregates, row paging and seeding. One implementation per engine.
type Dialect interface {
	Name() string
	DefaultSchema() string

	// Identifier and expression helpers.
	QuoteIdent(name string) string
	QualifiedTable(schema, table string) string
	Placeholder(index int) string // Returns ?, $1, @p1, :1
	TextCast(expr string) string
	ConcatExpr(parts ...string) string
	PageClause(limit, offset int) string

	// Metadata queries (schema introspection). Each takes the schema name
	// as its single bind parameter. Result column order is part of the
	// contract:
	//   TablesQuery:      table_name
	//   ColumnsQuery:     table_name, column_name, data_type, is_nullable,
	//                     column_default, ordinal_position, is_identity
	//   PrimaryKeysQuery: table_name, column_name, key_ordinal
	//   ForeignKeysQuery: table_name, column_name, referenced_table_name,
	//                     referenced_column_name
	TablesQuery() string
	ColumnsQuery() string
	PrimaryKeysQuery() string
	ForeignKeysQuery() string

	// Query generation (seed workflow).
	InsertQuery(schema, table string, cols []string) string
	TruncateQuery(schema, table string) string

	// Execution hooks (seed workflow) for FK checks and IDENTITY handling.
	BeforeSeed(tx *sql.Tx) error
	AfterSeed(tx *sql.Tx) error
	BeforeTable(tx *sql.Tx, table string, hasIdentity bool) error
	AfterTable(tx *sql.Tx, table string, hasIdentity bool) error

	// Helpers
	NormalizeType(sqlType string) string
}
