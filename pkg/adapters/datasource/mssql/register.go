package mssql

import (
	"context"

	"go.uber.org/zap"

	"github.com/travelgo/chat-engine/pkg/adapters/datasource"
)

func init() {
	datasource.Register(datasource.AdapterRegistration{
		Type:        "sqlserver",
		DisplayName: "SQL Server",
		Factory: func(ctx context.Context, cfg datasource.ConnectionConfig, logger *zap.Logger) (datasource.QueryExecutor, error) {
			return NewQueryExecutor(ctx, cfg, logger)
		},
	})
}
