// Package datasource defines the read-only store used by the chat pipeline and
// the registry of SQL dialect adapters that implement it.
package datasource

import "context"

// MaxQueryLimit is the hard cap on rows returned by Query methods.
const MaxQueryLimit = 1000

// QueryExecutor runs bounded, read-only SQL against the travel database.
// Implementations are safe for concurrent use.
type QueryExecutor interface {
	// Query runs a SELECT statement and returns at most limit rows.
	//   - limit <= 0 or limit > MaxQueryLimit: MaxQueryLimit is used
	Query(ctx context.Context, sqlQuery string, limit int) (*QueryExecutionResult, error)

	// QueryWithParams runs a parameterized SELECT. Placeholders are written
	// PostgreSQL style ($1, $2, ...) and converted by dialects that differ.
	QueryWithParams(ctx context.Context, sqlQuery string, params []any, limit int) (*QueryExecutionResult, error)

	// Exists reports whether a row with column = value exists in table. Only
	// registered probe targets are accepted.
	Exists(ctx context.Context, table, column string, value any) (bool, error)

	// QuoteIdentifier quotes a table or column name for this dialect.
	QuoteIdentifier(name string) string

	// DialectName names the SQL dialect, e.g. "PostgreSQL".
	DialectName() string

	Close() error
}

// ColumnInfo describes a result column.
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// QueryExecutionResult holds the rows returned by a query. Columns preserve
// the select-list order, which map-shaped rows do not.
type QueryExecutionResult struct {
	Columns  []ColumnInfo     `json:"columns"`
	Rows     []map[string]any `json:"rows"`
	RowCount int              `json:"row_count"`
}

// ColumnNames returns the column names in select-list order.
func (r *QueryExecutionResult) ColumnNames() []string {
	names := make([]string, len(r.Columns))
	for i, c := range r.Columns {
		names[i] = c.Name
	}
	return names
}

// EffectiveLimit clamps a requested row limit to (0, MaxQueryLimit].
func EffectiveLimit(limit int) int {
	if limit <= 0 || limit > MaxQueryLimit {
		return MaxQueryLimit
	}
	return limit
}
