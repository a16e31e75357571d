package dialect

import (
	"database/sql"
	"fmt"
	"strings"
)

type PostgresDialect struct{}

func (d *PostgresDialect) Name() string { return "postgres" }

func (d *PostgresDialect) DefaultSchema() string { return "public" }

func (d *PostgresDialect) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (d *PostgresDialect) QualifiedTable(schema, table string) string {
	return qualify(d, schema, table)
}

func (d *PostgresDialect) Placeholder(index int) string {
	return fmt.Sprintf("$%d", index+1)
}

func (d *PostgresDialect) TextCast(expr string) string {
	return expr + "::text"
}

func (d *PostgresDialect) ConcatExpr(parts ...string) string {
	return infixConcat("||", parts)
}

func (d *PostgresDialect) PageClause(limit, offset int) string {
	return fmt.Sprintf("LIMIT %d OFFSET %d", limit, offset)
}

func (d *PostgresDialect) TablesQuery() string {
	return `SELECT table_name FROM information_schema.tables WHERE table_schema = $1 AND table_type = 'BASE TABLE' ORDER BY table_name`
}

func (d *PostgresDialect) ColumnsQuery() string {
	return `SELECT
    c.table_name,
    c.column_name,
    c.data_type,
    c.is_nullable,
    c.column_default,
    c.ordinal_position,
    CASE WHEN c.is_identity = 'YES' OR c.column_default LIKE 'nextval%' THEN 1 ELSE 0 END AS is_identity
FROM information_schema.columns c
WHERE c.table_schema = $1
ORDER BY c.table_name, c.ordinal_position`
}

// Primary keys come from pg_index rather than information_schema so the key
// ordinal reflects the index column order (the order upserts identify rows by).
func (d *PostgresDialect) PrimaryKeysQuery() string {
	return `SELECT
    t.relname AS table_name,
    a.attname AS column_name,
    k.ord AS key_ordinal
FROM pg_index i
JOIN pg_class t ON t.oid = i.indrelid
JOIN pg_namespace n ON n.oid = t.relnamespace
CROSS JOIN LATERAL unnest(i.indkey) WITH ORDINALITY AS k(attnum, ord)
JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = k.attnum
WHERE i.indisprimary AND n.nspname = $1
ORDER BY t.relname, k.ord`
}

func (d *PostgresDialect) ForeignKeysQuery() string {
	return `SELECT kcu.table_name, kcu.column_name, ccu.table_name AS referenced_table_name, ccu.column_name AS referenced_column_name
FROM information_schema.key_column_usage kcu
JOIN information_schema.constraint_column_usage ccu ON kcu.constraint_name = ccu.constraint_name
JOIN information_schema.table_constraints tc ON kcu.constraint_name = tc.constraint_name
WHERE kcu.table_schema = $1 AND tc.constraint_type = 'FOREIGN KEY'`
}

func (d *PostgresDialect) InsertQuery(schema, table string, cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = d.QuoteIdent(c)
	}
	vals := GeneratePlaceholders(len(cols), d.Placeholder)
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT DO NOTHING",
		d.QualifiedTable(schema, table), strings.Join(quoted, ", "), vals)
}

func (d *PostgresDialect) TruncateQuery(schema, table string) string {
	return fmt.Sprintf("TRUNCATE TABLE %s CASCADE", d.QualifiedTable(schema, table))
}

func (d *PostgresDialect) BeforeSeed(tx *sql.Tx) error {
	// Deferred constraints let circular FK graphs settle at commit time.
	_, err := tx.Exec("SET CONSTRAINTS ALL DEFERRED")
	return err
}

func (d *PostgresDialect) AfterSeed(tx *sql.Tx) error {
	_, err := tx.Exec("SET CONSTRAINTS ALL IMMEDIATE")
	return err
}

func (d *PostgresDialect) BeforeTable(tx *sql.Tx, table string, hasIdentity bool) error {
	// session_replication_role needs superuser; fall back to deferred
	// constraints when the grant is missing.
	if _, err := tx.Exec("SET session_replication_role = 'replica'"); err != nil {
		if _, err2 := tx.Exec("SET CONSTRAINTS ALL DEFERRED"); err2 != nil {
			return fmt.Errorf("replication_role failed: %v, deferred failed: %v", err, err2)
		}
	}
	return nil
}

func (d *PostgresDialect) AfterTable(tx *sql.Tx, table string, hasIdentity bool) error {
	_, err := tx.Exec("SET session_replication_role = 'origin'")
	return err
}

func (d *PostgresDialect) NormalizeType(sqlType string) string {
	t := strings.ToLower(sqlType)
	switch t {
	case "int4", "int2":
		return "int"
	case "int8":
		return "bigint"
	case "float4":
		return "float"
	case "float8":
		return "double"
	case "bpchar":
		return "char"
	default:
		return t
	}
}
