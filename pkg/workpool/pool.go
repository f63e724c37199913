// Package workpool runs independent units of work with bounded parallelism.
package workpool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config configures a Pool.
type Config struct {
	MaxConcurrent int           // Maximum concurrent items (default: 4)
	ItemTimeout   time.Duration // Per-item deadline; zero means none
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent: 4,
		ItemTimeout:   5 * time.Second,
	}
}

// Pool limits how many items run at once. Each item gets its own context
// derived from the caller's, so one item's timeout never cancels another.
type Pool struct {
	config Config
	logger *zap.Logger
}

// New creates a pool.
func New(config Config, logger *zap.Logger) *Pool {
	if config.MaxConcurrent < 1 {
		config.MaxConcurrent = 4
	}
	return &Pool{
		config: config,
		logger: logger.Named("workpool"),
	}
}

// Item is a unit of work.
type Item[T any] struct {
	ID      string // For logging
	Execute func(ctx context.Context) (T, error)
}

// Result is the outcome of one Item.
type Result[T any] struct {
	ID     string
	Result T
	Err    error
}

// Process executes all items and returns their results in submission order.
// Every item is attempted; failures are reported per item. A panicking item
// is reported as failed.
func Process[T any](ctx context.Context, pool *Pool, items []Item[T]) []Result[T] {
	if len(items) == 0 {
		return nil
	}

	results := make([]Result[T], len(items))
	sem := make(chan struct{}, pool.config.MaxConcurrent)

	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		go func(i int, item Item[T]) {
			defer wg.Done()
			results[i].ID = item.ID

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[i].Err = ctx.Err()
				return
			}

			results[i].Result, results[i].Err = runItem(ctx, pool, item)
		}(i, item)
	}
	wg.Wait()

	return results
}

func runItem[T any](ctx context.Context, pool *Pool, item Item[T]) (result T, err error) {
	if pool.config.ItemTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, pool.config.ItemTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			pool.logger.Error("Work item panicked", zap.String("id", item.ID), zap.Any("panic", r))
			err = fmt.Errorf("work item %s panicked: %v", item.ID, r)
		}
	}()

	return item.Execute(ctx)
}
