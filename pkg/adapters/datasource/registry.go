package datasource

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/travelgo/chat-engine/pkg/apperrors"
)

// ConnectionConfig holds the settings an adapter needs to open a connection.
type ConnectionConfig struct {
	Host           string
	Port           int
	User           string
	Password       string
	Database       string
	SSLMode        string
	MaxConnections int32
}

// AdapterRegistration describes one dialect adapter.
type AdapterRegistration struct {
	Type        string // "postgres", "sqlserver"
	DisplayName string // "PostgreSQL", "SQL Server"
	Factory     func(ctx context.Context, cfg ConnectionConfig, logger *zap.Logger) (QueryExecutor, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]AdapterRegistration)
)

// Register is called by each adapter's init() function.
func Register(reg AdapterRegistration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Type] = reg
}

// RegisteredTypes returns the registered adapter types, sorted.
func RegisteredTypes() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	types := make([]string, 0, len(registry))
	for t := range registry {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// NewQueryExecutor opens a connection with the adapter registered for dsType.
func NewQueryExecutor(ctx context.Context, dsType string, cfg ConnectionConfig, logger *zap.Logger) (QueryExecutor, error) {
	registryMu.RLock()
	reg, ok := registry[dsType]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%q: %w", dsType, apperrors.ErrUnsupportedDialect)
	}
	return reg.Factory(ctx, cfg, logger)
}
