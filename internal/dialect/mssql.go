package dialect

import (
	"database/sql"
	"fmt"
	"strings"
)

// MSSQLDialect targets SQL Server. The go-mssqldb driver prefers @p1-style
// named parameters over ?.
type MSSQLDialect struct{}

func (d *MSSQLDialect) Name() string { return "sqlserver" }

func (d *MSSQLDialect) DefaultSchema() string { return "dbo" }

func (d *MSSQLDialect) QuoteIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func (d *MSSQLDialect) QualifiedTable(schema, table string) string {
	return qualify(d, schema, table)
}

func (d *MSSQLDialect) Placeholder(index int) string {
	return fmt.Sprintf("@p%d", index+1)
}

func (d *MSSQLDialect) TextCast(expr string) string {
	return fmt.Sprintf("CAST(%s AS NVARCHAR(MAX))", expr)
}

func (d *MSSQLDialect) ConcatExpr(parts ...string) string {
	return "CONCAT(" + strings.Join(parts, ", ") + ")"
}

// OFFSET/FETCH requires an ORDER BY clause; row-page queries always carry one.
func (d *MSSQLDialect) PageClause(limit, offset int) string {
	return fmt.Sprintf("OFFSET %d ROWS FETCH NEXT %d ROWS ONLY", offset, limit)
}

func (d *MSSQLDialect) TablesQuery() string {
	return `SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_SCHEMA = @p1 AND TABLE_TYPE = 'BASE TABLE' ORDER BY TABLE_NAME`
}

func (d *MSSQLDialect) ColumnsQuery() string {
	return `SELECT
    c.TABLE_NAME,
    c.COLUMN_NAME,
    c.DATA_TYPE,
    c.IS_NULLABLE,
    c.COLUMN_DEFAULT,
    c.ORDINAL_POSITION,
    COLUMNPROPERTY(OBJECT_ID(c.TABLE_SCHEMA + '.' + c.TABLE_NAME), c.COLUMN_NAME, 'IsIdentity') AS IS_IDENTITY
FROM INFORMATION_SCHEMA.COLUMNS c
WHERE c.TABLE_SCHEMA = @p1
ORDER BY c.TABLE_NAME, c.ORDINAL_POSITION`
}

func (d *MSSQLDialect) PrimaryKeysQuery() string {
	return `SELECT kcu.TABLE_NAME, kcu.COLUMN_NAME, kcu.ORDINAL_POSITION AS KEY_ORDINAL
FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS tc
JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu ON tc.CONSTRAINT_NAME = kcu.CONSTRAINT_NAME
WHERE tc.CONSTRAINT_TYPE = 'PRIMARY KEY' AND tc.TABLE_SCHEMA = @p1
ORDER BY kcu.TABLE_NAME, kcu.ORDINAL_POSITION`
}

func (d *MSSQLDialect) ForeignKeysQuery() string {
	return `SELECT
    fk_tab.name AS TABLE_NAME,
    fk_col.name AS COLUMN_NAME,
    pk_tab.name AS REFERENCED_TABLE_NAME,
    pk_col.name AS REFERENCED_COLUMN_NAME
FROM sys.foreign_key_columns fkc
JOIN sys.tables fk_tab ON fk_tab.object_id = fkc.parent_object_id
JOIN sys.schemas s ON s.schema_id = fk_tab.schema_id
JOIN sys.columns fk_col ON fk_col.object_id = fkc.parent_object_id AND fk_col.column_id = fkc.parent_column_id
JOIN sys.tables pk_tab ON pk_tab.object_id = fkc.referenced_object_id
JOIN sys.columns pk_col ON pk_col.object_id = fkc.referenced_object_id AND pk_col.column_id = fkc.referenced_column_id
WHERE s.name = @p1`
}

func (d *MSSQLDialect) InsertQuery(schema, table string, cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = d.QuoteIdent(c)
	}
	vals := GeneratePlaceholders(len(cols), d.Placeholder)
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		d.QualifiedTable(schema, table), strings.Join(quoted, ", "), vals)
}

// DELETE instead of TRUNCATE: TRUNCATE fails against tables referenced by
// foreign keys even when the constraint is disabled.
func (d *MSSQLDialect) TruncateQuery(schema, table string) string {
	return fmt.Sprintf("DELETE FROM %s", d.QualifiedTable(schema, table))
}

func (d *MSSQLDialect) BeforeSeed(tx *sql.Tx) error {
	_, err := tx.Exec(`EXEC sp_MSforeachtable 'ALTER TABLE ? NOCHECK CONSTRAINT all'`)
	return err
}

func (d *MSSQLDialect) AfterSeed(tx *sql.Tx) error {
	_, err := tx.Exec(`EXEC sp_MSforeachtable 'ALTER TABLE ? WITH CHECK CHECK CONSTRAINT all'`)
	return err
}

func (d *MSSQLDialect) BeforeTable(tx *sql.Tx, table string, hasIdentity bool) error {
	if _, err := tx.Exec(fmt.Sprintf("ALTER TABLE %s NOCHECK CONSTRAINT all", d.QuoteIdent(table))); err != nil {
		return err
	}
	if hasIdentity {
		_, err := tx.Exec(fmt.Sprintf("SET IDENTITY_INSERT %s ON", d.QuoteIdent(table)))
		return err
	}
	return nil
}

func (d *MSSQLDialect) AfterTable(tx *sql.Tx, table string, hasIdentity bool) error {
	// Constraints are re-enabled globally in AfterSeed; this keeps circular
	// FK graphs loadable.
	if hasIdentity {
		_, err := tx.Exec(fmt.Sprintf("SET IDENTITY_INSERT %s OFF", d.QuoteIdent(table)))
		return err
	}
	return nil
}

func (d *MSSQLDialect) NormalizeType(sqlType string) string {
	t := strings.ToLower(sqlType)
	switch t {
	case "nvarchar", "nchar", "ntext":
		return "varchar"
	case "bit":
		return "boolean"
	case "decimal", "numeric", "money", "smallmoney":
		return "decimal"
	case "float", "real":
		return "float"
	case "datetime2", "smalldatetime":
		return "datetime"
	case "image", "binary", "varbinary":
		return "blob"
	default:
		return t
	}
}
