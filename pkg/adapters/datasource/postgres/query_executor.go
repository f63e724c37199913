// Package postgres implements the datasource adapter for PostgreSQL using a
// pgx connection pool. Every query runs inside a read-only transaction.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/travelgo/chat-engine/pkg/adapters/datasource"
)

// QueryExecutor provides PostgreSQL query execution.
type QueryExecutor struct {
	pool      *pgxpool.Pool
	typeMap   *pgtype.Map
	ownedPool bool
	logger    *zap.Logger
}

// NewQueryExecutor opens a pool from connection settings.
func NewQueryExecutor(ctx context.Context, cfg datasource.ConnectionConfig, logger *zap.Logger) (*QueryExecutor, error) {
	poolConfig, err := pgxpool.ParseConfig(ConnectionString(cfg))
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolConfig.MaxConns = cfg.MaxConnections
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	e := NewQueryExecutorFromPool(pool, logger)
	e.ownedPool = true
	return e, nil
}

// NewQueryExecutorFromPool wraps an existing pool. The caller keeps ownership.
func NewQueryExecutorFromPool(pool *pgxpool.Pool, logger *zap.Logger) *QueryExecutor {
	return &QueryExecutor{
		pool:    pool,
		typeMap: pgtype.NewMap(),
		logger:  logger.Named("postgres"),
	}
}

// ConnectionString builds a libpq keyword/value connection string.
func ConnectionString(cfg datasource.ConnectionConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, sslMode,
	)
}

// Query runs a SELECT wrapped with a LIMIT.
func (e *QueryExecutor) Query(ctx context.Context, sqlQuery string, limit int) (*datasource.QueryExecutionResult, error) {
	return e.QueryWithParams(ctx, sqlQuery, nil, limit)
}

// QueryWithParams runs a parameterized SELECT wrapped with a LIMIT.
func (e *QueryExecutor) QueryWithParams(ctx context.Context, sqlQuery string, params []any, limit int) (*datasource.QueryExecutionResult, error) {
	queryToRun := fmt.Sprintf("SELECT * FROM (%s) AS _limited LIMIT %d", sqlQuery, datasource.EffectiveLimit(limit))

	tx, err := e.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("begin read-only transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, queryToRun, params...)
	if err != nil {
		e.logger.Debug("Query failed", zap.Error(err))
		return nil, describeError(err)
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	columns := make([]datasource.ColumnInfo, len(fieldDescs))
	for i, fd := range fieldDescs {
		columns[i] = datasource.ColumnInfo{Name: fd.Name, Type: e.typeName(fd.DataTypeOID)}
	}

	resultRows := make([]map[string]any, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read row values: %w", err)
		}
		rowMap := make(map[string]any, len(columns))
		for i, col := range columns {
			rowMap[col.Name] = normalizeValue(values[i])
		}
		resultRows = append(resultRows, rowMap)
	}
	if err := rows.Err(); err != nil {
		return nil, describeError(err)
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

	query := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE %s = $1)",
		e.QuoteIdentifier(table), e.QuoteIdentifier(column))

	var exists bool
	if err := e.pool.QueryRow(ctx, query, value).Scan(&exists); err != nil {
		return false, describeError(err)
	}
	return exists, nil
}

// QuoteIdentifier uses PostgreSQL double-quote quoting.
func (e *QueryExecutor) QuoteIdentifier(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// DialectName implements datasource.QueryExecutor.
func (e *QueryExecutor) DialectName() string {
	return "PostgreSQL"
}

// Close releases the pool if this executor created it.
func (e *QueryExecutor) Close() error {
	if e.ownedPool {
		e.pool.Close()
	}
	return nil
}

func (e *QueryExecutor) typeName(oid uint32) string {
	if t, ok := e.typeMap.TypeForOID(oid); ok {
		return strings.ToUpper(t.Name)
	}
	return "UNKNOWN"
}

// describeError adds the SQLSTATE to server-side errors.
func describeError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("query failed (SQLSTATE %s): %w", pgErr.Code, err)
	}
	return fmt.Errorf("query failed: %w", err)
}

// normalizeValue converts pgx-specific values into JSON-friendly ones.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case pgtype.Numeric:
		f, err := t.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case [16]byte:
		return uuid.UUID(t).String()
	case []byte:
		return string(t)
	default:
		return v
	}
}

var _ datasource.QueryExecutor = (*QueryExecutor)(nil)
