// Package mssql implements the datasource adapter for Microsoft SQL Server
// through database/sql and the go-mssqldb driver.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	_ "github.com/microsoft/go-mssqldb" // registers the "sqlserver" driver
	"go.uber.org/zap"

	"github.com/travelgo/chat-engine/pkg/adapters/datasource"
)

var (
	positionalParamPattern = regexp.MustCompile(`\$(\d+)`)
	orderByPattern         = regexp.MustCompile(`(?i)\border\s+by\b`)
)

// QueryExecutor provides SQL Server query execution.
type QueryExecutor struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewQueryExecutor opens a connection pool from connection settings.
func NewQueryExecutor(ctx context.Context, cfg datasource.ConnectionConfig, logger *zap.Logger) (*QueryExecutor, error) {
	db, err := sql.Open("sqlserver", ConnectionURL(cfg))
	if err != nil {
		return nil, fmt.Errorf("open sqlserver: %w", err)
	}
	if cfg.MaxConnections > 0 {
		db.SetMaxOpenConns(int(cfg.MaxConnections))
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlserver: %w", err)
	}
	return NewQueryExecutorFromDB(db, logger), nil
}

// NewQueryExecutorFromDB wraps an open *sql.DB. Close closes it.
func NewQueryExecutorFromDB(db *sql.DB, logger *zap.Logger) *QueryExecutor {
	return &QueryExecutor{db: db, logger: logger.Named("mssql")}
}

// ConnectionURL builds a sqlserver:// URL.
func ConnectionURL(cfg datasource.ConnectionConfig) string {
	query := url.Values{}
	query.Set("database", cfg.Database)
	if cfg.SSLMode == "disable" {
		query.Set("encrypt", "disable")
	}
	u := &url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		RawQuery: query.Encode(),
	}
	return u.String()
}

// Query runs a SELECT bounded by TOP.
func (e *QueryExecutor) Query(ctx context.Context, sqlQuery string, limit int) (*datasource.QueryExecutionResult, error) {
	return e.QueryWithParams(ctx, sqlQuery, nil, limit)
}

// QueryWithParams runs a parameterized SELECT. $n placeholders become @pn.
// SQL Server rejects ORDER BY inside a derived table, so ordered queries are
// bounded while scanning instead of with TOP.
func (e *QueryExecutor) QueryWithParams(ctx context.Context, sqlQuery string, params []any, limit int) (*datasource.QueryExecutionResult, error) {
	effectiveLimit := datasource.EffectiveLimit(limit)
	converted := convertPositionalParams(sqlQuery)

	queryToRun := converted
	if !orderByPattern.MatchString(converted) {
		queryToRun = fmt.Sprintf("SELECT TOP (%d) * FROM (%s) AS _limited", effectiveLimit, converted)
	}

	args := make([]any, len(params))
	for i, p := range params {
		args[i] = sql.Named("p"+strconv.Itoa(i+1), p)
	}

	rows, err := e.db.QueryContext(ctx, queryToRun, args...)
	if err != nil {
		e.logger.Debug("Query failed", zap.Error(err))
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("get columns: %w", err)
	}
	columns := make([]datasource.ColumnInfo, len(names))
	for i, name := range names {
		columns[i] = datasource.ColumnInfo{Name: name}
	}

	resultRows := make([]map[string]any, 0)
	for len(resultRows) < effectiveLimit && rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		rowMap := make(map[string]any, len(columns))
		for i, col := range columns {
			rowMap[col.Name] = normalizeValue(values[i])
		}
		resultRows = append(resultRows, rowMap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return &datasource.QueryExecutionResult{
		Columns:  columns,
		Rows:     resultRows,
		RowCount: len(resultRows),
	}, nil
}

// Exists runs a single EXISTS probe against a registered target.
func (e *QueryExecutor) Exists(ctx context.Context, table, column string, value any) (bool, error) {
	if err := datasource.CheckProbeTarget(table, column); err != nil {
		return false, err
	}

	query := fmt.Sprintf("SELECT CASE WHEN EXISTS (SELECT 1 FROM %s WHERE %s = @p1) THEN 1 ELSE 0 END",
		e.QuoteIdentifier(table), e.QuoteIdentifier(column))

	var found int
	if err := e.db.QueryRowContext(ctx, query, sql.Named("p1", value)).Scan(&found); err != nil {
		return false, fmt.Errorf("probe %s.%s: %w", table, column, err)
	}
	return found == 1, nil
}

// QuoteIdentifier uses SQL Server bracket quoting.
func (e *QueryExecutor) QuoteIdentifier(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// DialectName implements datasource.QueryExecutor.
func (e *QueryExecutor) DialectName() string {
	return "SQL Server"
}

// Close closes the underlying pool.
func (e *QueryExecutor) Close() error {
	return e.db.Close()
}

func convertPositionalParams(query string) string {
	return positionalParamPattern.ReplaceAllString(query, "@p$1")
}

// normalizeValue turns character and decimal bytes into strings. The travel
// schema has no binary columns.
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

var _ datasource.QueryExecutor = (*QueryExecutor)(nil)
