package llm

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// LazyClient builds its underlying TextClient on first use and reuses it for
// the life of the process. A construction failure is remembered and returned
// by every call, so a misconfigured provider fails fast instead of retrying
// initialization per request.
type LazyClient struct {
	build func() (TextClient, error)
	model string

	once   sync.Once
	client TextClient
	err    error
}

// NewLazyClient returns a handle that constructs the provider client from cfg
// on first use.
func NewLazyClient(cfg Config, logger *zap.Logger) *LazyClient {
	return NewLazyClientFunc(cfg.Model, func() (TextClient, error) {
		logger.Info("Initializing LLM client",
			zap.String("provider", cfg.Provider),
			zap.String("model", cfg.Model))
		return NewTextClient(context.Background(), &cfg, logger)
	})
}

// NewLazyClientFunc returns a handle that calls build once on first use.
func NewLazyClientFunc(model string, build func() (TextClient, error)) *LazyClient {
	return &LazyClient{build: build, model: model}
}

func (l *LazyClient) get() (TextClient, error) {
	l.once.Do(func() {
		l.client, l.err = l.build()
	})
	return l.client, l.err
}

// GenerateResponse implements TextClient.
func (l *LazyClient) GenerateResponse(ctx context.Context, prompt string, systemMessage string, temperature float64) (string, error) {
	client, err := l.get()
	if err != nil {
		return "", err
	}
	return client.GenerateResponse(ctx, prompt, systemMessage, temperature)
}

// GetModel implements TextClient.
func (l *LazyClient) GetModel() string {
	return l.model
}

var _ TextClient = (*LazyClient)(nil)
