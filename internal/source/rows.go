package source

import (
	"context"
	"fmt"
	"strings"
)

// FetchTableRows pages through a table in a stable order: by primary key when
// one exists, else by the full column list in ordinal order. Rows are decoded
// into map[string]interface{} with driver []byte values normalized to string.
func (s *Source) FetchTableRows(ctx context.Context, t *TableInfo, limit, offset int) ([]map[string]interface{}, error) {
	orderCols := t.PKColumns
	if len(orderCols) == 0 {
		orderCols = t.ColumnNames()
	}
	quoted := make([]string, len(orderCols))
	for i, c := range orderCols {
		quoted[i] = s.d.QuoteIdent(c)
	}

	query := fmt.Sprintf("SELECT * FROM %s ORDER BY %s %s",
		s.d.QualifiedTable(t.Schema, t.Table),
		strings.Join(quoted, ", "),
		s.d.PageClause(limit, offset))

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch rows from %s: %w", t.Key(), err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns for %s: %w", t.Key(), err)
	}

	var result []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row from %s: %w", t.Key(), err)
		}
		row := make(map[string]interface{}, len(cols))
		for i, c := range cols {
			row[c] = normalizeRowValue(values[i])
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows from %s: %w", t.Key(), err)
	}
	return result, nil
}

// Drivers surface text columns as []byte; stringify so canonicalization and
// page-content rendering see plain values.
func normalizeRowValue(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
