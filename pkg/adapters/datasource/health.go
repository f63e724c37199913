package datasource

import (
	"context"
	"fmt"
)

// HealthChecker runs a trivial query through an executor.
type HealthChecker struct {
	executor QueryExecutor
}

// NewHealthChecker creates a HealthChecker for executor.
func NewHealthChecker(executor QueryExecutor) *HealthChecker {
	return &HealthChecker{executor: executor}
}

// Check returns an error when the database cannot answer SELECT 1.
func (c *HealthChecker) Check(ctx context.Context) error {
	result, err := c.executor.Query(ctx, "SELECT 1 AS ok", 1)
	if err != nil {
		return fmt.Errorf("health query: %w", err)
	}
	if result.RowCount != 1 {
		return fmt.Errorf("health query returned %d rows", result.RowCount)
	}
	return nil
}
