// Package seed populates a source database with generated rows, a dev
// utility for exercising the sync pipeline against realistic data.
package seed

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"index-pump/internal/dialect"
	"index-pump/internal/logger"
	"index-pump/internal/source"
)

// Result reports one table's seeding outcome. Per-table failures are
// recorded here and do not stop the remaining tables.
type Result struct {
	TableKey string
	Target   int
	Inserted int
	Status   string
	ErrorMsg string
}

// Seed inserts count generated rows into every table, parents before
// children, reusing freshly-inserted primary keys to satisfy FK columns.
func Seed(ctx context.Context, db *sql.DB, d dialect.Dialect, tables []*source.TableInfo, count int, onProgress func()) []Result {
	ordered := source.SortByDependencies(tables)
	fkPool := make(map[string][]interface{})
	var results []Result

	for _, t := range ordered {
		res := seedTable(ctx, db, d, t, count, fkPool, onProgress)
		results = append(results, res)
		collectPKValues(ctx, db, d, t, fkPool)
	}
	return results
}

func seedTable(ctx context.Context, db *sql.DB, d dialect.Dialect, t *source.TableInfo, count int, fkPool map[string][]interface{}, onProgress func()) Result {
	res := Result{TableKey: t.Key(), Target: count, Status: "OK"}

	hasIdentity := false
	var insertCols []source.ColumnInfo
	for _, c := range t.Columns {
		if c.IsIdentity {
			hasIdentity = true
			continue
		}
		insertCols = append(insertCols, c)
	}
	if len(insertCols) == 0 {
		res.Status = "SKIPPED"
		res.ErrorMsg = "no insertable columns"
		return res
	}
	colNames := make([]string, len(insertCols))
	for i, c := range insertCols {
		colNames[i] = c.Name
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		res.Status = "FAILED"
		res.ErrorMsg = fmt.Sprintf("begin failed: %v", err)
		return res
	}
	defer tx.Rollback()

	if err := d.BeforeTable(tx, t.Table, hasIdentity); err != nil {
		logger.Warnf("before-table hook failed for %s: %v", t.Key(), err)
	}

	query := d.InsertQuery(t.Schema, t.Table, colNames)

	// Composite-PK and unique-ish collisions are handled by retrying; the
	// dialect insert statements ignore duplicate-key conflicts.
	attempts := 0
	for res.Inserted < count && attempts < count*10 {
		attempts++
		values := make([]interface{}, len(insertCols))
		for i, c := range insertCols {
			values[i] = columnValue(c, t, fkPool, attempts)
		}
		if _, err := tx.Exec(query, values...); err != nil {
			if attempts <= 3 {
				logger.Debugf("insert into %s failed (attempt %d): %v", t.Key(), attempts, err)
			}
			continue
		}
		res.Inserted++
		if onProgress != nil {
			onProgress()
		}
	}

	if err := d.AfterTable(tx, t.Table, hasIdentity); err != nil {
		logger.Warnf("after-table hook failed for %s: %v", t.Key(), err)
	}
	if err := tx.Commit(); err != nil {
		res.Status = "FAILED"
		res.ErrorMsg = fmt.Sprintf("commit failed: %v", err)
		res.Inserted = 0
		return res
	}

	if res.Inserted < count {
		res.Status = "PARTIAL"
		res.ErrorMsg = fmt.Sprintf("inserted %d of %d", res.Inserted, count)
	}
	return res
}

// columnValue satisfies FK columns from the pool of already-inserted parent
// keys, falling back to NULL (when allowed) or a small constant for circular
// graphs; everything else comes from the generator.
func columnValue(c source.ColumnInfo, t *source.TableInfo, fkPool map[string][]interface{}, attempt int) interface{} {
	for _, fk := range t.ForeignKeys {
		if !strings.EqualFold(fk.Column, c.Name) {
			continue
		}
		if vals := fkPool[fk.RefTable]; len(vals) > 0 {
			return vals[attempt%len(vals)]
		}
		if c.IsNullable {
			return nil
		}
		// Circular dependency with nothing inserted yet; assume the parent
		// will end up with id 1.
		return 1
	}
	return GenerateValue(c)
}

// collectPKValues refreshes the FK pool with the table's single-column
// primary key values for downstream children.
func collectPKValues(ctx context.Context, db *sql.DB, d dialect.Dialect, t *source.TableInfo, fkPool map[string][]interface{}) {
	if len(t.PKColumns) != 1 {
		return
	}
	query := fmt.Sprintf("SELECT %s FROM %s",
		d.QuoteIdent(t.PKColumns[0]), d.QualifiedTable(t.Schema, t.Table))
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		logger.Debugf("failed to collect pk values for %s: %v", t.Key(), err)
		return
	}
	defer rows.Close()

	var pool []interface{}
	for rows.Next() {
		var id interface{}
		if err := rows.Scan(&id); err == nil {
			if b, ok := id.([]byte); ok {
				id = string(b)
			}
			pool = append(pool, id)
		}
	}
	if err := rows.Err(); err != nil {
		logger.Debugf("error iterating pk values for %s: %v", t.Key(), err)
	}
	fkPool[t.Table] = pool
}

// Clean truncates every table in reverse dependency order inside one
// transaction, with the dialect's FK hooks disabling checks around it.
func Clean(ctx context.Context, db *sql.DB, d dialect.Dialect, tables []*source.TableInfo) error {
	ordered := source.SortByDependencies(tables)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin clean transaction: %w", err)
	}
	defer tx.Rollback()

	if err := d.BeforeSeed(tx); err != nil {
		logger.Warnf("before-seed hook failed: %v (continuing)", err)
	}
	for i := len(ordered) - 1; i >= 0; i-- {
		t := ordered[i]
		if _, err := tx.Exec(d.TruncateQuery(t.Schema, t.Table)); err != nil {
			logger.Warnf("failed to clean %s: %v (continuing)", t.Key(), err)
		}
	}
	if err := d.AfterSeed(tx); err != nil {
		logger.Warnf("after-seed hook failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit clean transaction: %w", err)
	}
	return nil
}
