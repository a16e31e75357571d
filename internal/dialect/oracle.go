package dialect

import (
	"database/sql"
	"fmt"
	"strings"
)

// OracleDialect works against the current user's objects (USER_* views);
// the schema bind parameter is carried for interface symmetry only.
type OracleDialect struct{}

func (d *OracleDialect) Name() string { return "oracle" }

func (d *OracleDialect) DefaultSchema() string { return "" }

// Oracle stores unquoted identifiers upper-cased; names discovered from
// USER_* views round-trip as-is when quoted.
func (d *OracleDialect) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (d *OracleDialect) QualifiedTable(schema, table string) string {
	return qualify(d, schema, table)
}

func (d *OracleDialect) Placeholder(index int) string {
	return fmt.Sprintf(":%d", index+1)
}

func (d *OracleDialect) TextCast(expr string) string {
	return fmt.Sprintf("TO_CHAR(%s)", expr)
}

func (d *OracleDialect) ConcatExpr(parts ...string) string {
	return infixConcat("||", parts)
}

// 12c row-limiting clause; requires an ORDER BY, which row-page queries carry.
func (d *OracleDialect) PageClause(limit, offset int) string {
	return fmt.Sprintf("OFFSET %d ROWS FETCH NEXT %d ROWS ONLY", offset, limit)
}

func (d *OracleDialect) TablesQuery() string {
	return `SELECT TABLE_NAME FROM USER_TABLES WHERE :1 IS NOT NULL ORDER BY TABLE_NAME`
}

func (d *OracleDialect) ColumnsQuery() string {
	return `SELECT
    t.TABLE_NAME,
    t.COLUMN_NAME,
    t.DATA_TYPE,
    t.NULLABLE,
    t.DATA_DEFAULT,
    t.COLUMN_ID,
    CASE WHEN t.IDENTITY_COLUMN = 'YES' THEN 1 ELSE 0 END AS IS_IDENTITY
FROM USER_TAB_COLUMNS t
WHERE :1 IS NOT NULL
ORDER BY t.TABLE_NAME, t.COLUMN_ID`
}

func (d *OracleDialect) PrimaryKeysQuery() string {
	return `SELECT cc.TABLE_NAME, cc.COLUMN_NAME, cc.POSITION AS KEY_ORDINAL
FROM USER_CONS_COLUMNS cc
JOIN USER_CONSTRAINTS uc ON cc.CONSTRAINT_NAME = uc.CONSTRAINT_NAME
WHERE uc.CONSTRAINT_TYPE = 'P' AND :1 IS NOT NULL
ORDER BY cc.TABLE_NAME, cc.POSITION`
}

func (d *OracleDialect) ForeignKeysQuery() string {
	return `SELECT
    cc.TABLE_NAME,
    cc.COLUMN_NAME,
    r.TABLE_NAME AS REFERENCED_TABLE_NAME,
    rcc.COLUMN_NAME AS REFERENCED_COLUMN_NAME
FROM USER_CONSTRAINTS c
JOIN USER_CONS_COLUMNS cc ON c.CONSTRAINT_NAME = cc.CONSTRAINT_NAME
JOIN USER_CONSTRAINTS r ON c.R_CONSTRAINT_NAME = r.CONSTRAINT_NAME
JOIN USER_CONS_COLUMNS rcc ON r.CONSTRAINT_NAME = rcc.CONSTRAINT_NAME AND cc.POSITION = rcc.POSITION
WHERE c.CONSTRAINT_TYPE = 'R' AND :1 IS NOT NULL`
}

func (d *OracleDialect) InsertQuery(schema, table string, cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = d.QuoteIdent(c)
	}
	vals := GeneratePlaceholders(len(cols), d.Placeholder)
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		d.QualifiedTable(schema, table), strings.Join(quoted, ", "), vals)
}

func (d *OracleDialect) TruncateQuery(schema, table string) string {
	return fmt.Sprintf("TRUNCATE TABLE %s", d.QualifiedTable(schema, table))
}

func (d *OracleDialect) BeforeSeed(tx *sql.Tx) error {
	// Align session NLS formats with the generated timestamp literals, then
	// disable enabled FK constraints so insertion order is unconstrained.
	if _, err := tx.Exec("ALTER SESSION SET NLS_DATE_FORMAT = 'YYYY-MM-DD HH24:MI:SS'"); err != nil {
		return fmt.Errorf("failed to set NLS_DATE_FORMAT: %w", err)
	}
	if _, err := tx.Exec("ALTER SESSION SET NLS_TIMESTAMP_FORMAT = 'YYYY-MM-DD HH24:MI:SS'"); err != nil {
		return fmt.Errorf("failed to set NLS_TIMESTAMP_FORMAT: %w", err)
	}
	return d.toggleConstraints(tx, "ENABLED", "DISABLE")
}

func (d *OracleDialect) AfterSeed(tx *sql.Tx) error {
	return d.toggleConstraints(tx, "DISABLED", "ENABLE")
}

func (d *OracleDialect) toggleConstraints(tx *sql.Tx, fromStatus, action string) error {
	rows, err := tx.Query(`SELECT TABLE_NAME, CONSTRAINT_NAME FROM USER_CONSTRAINTS WHERE CONSTRAINT_TYPE = 'R' AND STATUS = :1`, fromStatus)
	if err != nil {
		return err
	}
	defer rows.Close()

	var constraints []struct{ Table, Name string }
	for rows.Next() {
		var t, n string
		if err := rows.Scan(&t, &n); err != nil {
			return err
		}
		constraints = append(constraints, struct{ Table, Name string }{t, n})
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	for _, c := range constraints {
		// DDL in Oracle commits implicitly; acceptable for the seed utility.
		query := fmt.Sprintf("ALTER TABLE %s %s CONSTRAINT %s", d.QuoteIdent(c.Table), action, d.QuoteIdent(c.Name))
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to %s constraint %s on %s: %w", strings.ToLower(action), c.Name, c.Table, err)
		}
	}
	return nil
}

func (d *OracleDialect) BeforeTable(tx *sql.Tx, table string, hasIdentity bool) error {
	return nil
}

func (d *OracleDialect) AfterTable(tx *sql.Tx, table string, hasIdentity bool) error {
	return nil
}

func (d *OracleDialect) NormalizeType(sqlType string) string {
	s := strings.ToLower(sqlType)
	switch {
	case strings.Contains(s, "char"), strings.Contains(s, "clob"):
		return "varchar"
	case strings.Contains(s, "number"), strings.Contains(s, "int"):
		return "int"
	case strings.Contains(s, "float"), strings.Contains(s, "binary_double"):
		return "float"
	case strings.Contains(s, "timestamp"), strings.Contains(s, "date"):
		return "datetime"
	default:
		return s
	}
}
