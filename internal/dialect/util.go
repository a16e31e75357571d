package dialect

import (
	"strings"
)

// GeneratePlaceholders returns a comma-separated list of count placeholders
// produced by placeholderFunc ("?, ?, ?" or "$1, $2, $3" and so on).
func GeneratePlaceholders(count int, placeholderFunc func(int) string) string {
	placeholders := make([]string, count)
	for i := 0; i < count; i++ {
		placeholders[i] = placeholderFunc(i)
	}
	return strings.Join(placeholders, ", ")
}

// DefaultNormalizeType lowercases the raw source type string.
func DefaultNormalizeType(sqlType string) string {
	return strings.ToLower(sqlType)
}

// qualify joins a quoted schema and table with a dot, omitting the schema
// part when empty.
func qualify(d Dialect, schema, table string) string {
	if schema == "" {
		return d.QuoteIdent(table)
	}
	return d.QuoteIdent(schema) + "." + d.QuoteIdent(table)
}

// infixConcat joins expression parts with an infix operator ("||" or "+").
func infixConcat(op string, parts []string) string {
	return strings.Join(parts, " "+op+" ")
}

// PKJoinExpr builds the pipe-joined text expression over the primary-key
// columns used by the snapshot aggregate: each component is text-cast and
// COALESCEd to the empty string, components are separated by a literal '|'.
// The lexicographic MAX over this expression is the content-change proxy for
// composite keys.
func PKJoinExpr(d Dialect, pkColumns []string) string {
	parts := make([]string, 0, len(pkColumns)*2)
	for i, col := range pkColumns {
		if i > 0 {
			parts = append(parts, "'|'")
		}
		parts = append(parts, "COALESCE("+d.TextCast(d.QuoteIdent(col))+", '')")
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return d.ConcatExpr(parts...)
}
