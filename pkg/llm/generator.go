package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/travelgo/chat-engine/pkg/logging"
	"github.com/travelgo/chat-engine/pkg/metrics"
	"github.com/travelgo/chat-engine/pkg/models"
	"github.com/travelgo/chat-engine/pkg/retry"
	"github.com/travelgo/chat-engine/pkg/sql"
)

// Generator operations, used as metric labels.
const (
	opPropose  = "propose"
	opAnswer   = "answer"
	opThematic = "thematic"
)

// GeneratorConfig tunes a Generator.
type GeneratorConfig struct {
	Temperature       float64
	Timeout           time.Duration // Per call, including retries
	MaxQueries        int
	HeuristicFallback bool // Use fixed queries when proposal output is unparseable
	Retry             *retry.Config
	CircuitBreaker    CircuitBreakerConfig
}

// DefaultGeneratorConfig returns sensible defaults.
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		Temperature:       0.2,
		Timeout:           20 * time.Second,
		MaxQueries:        3,
		HeuristicFallback: true,
		Retry:             retry.DefaultConfig(),
		CircuitBreaker:    DefaultCircuitBreakerConfig(),
	}
}

// Generator proposes read-only queries and writes answers using a
// TextClient. Its methods never return errors: a failed proposal yields no
// candidates and a failed answer yields models.ReplyOutOfContext.
type Generator struct {
	client  TextClient
	dialect string
	cache   ProposalCache
	breaker *CircuitBreaker
	config  GeneratorConfig
	logger  *zap.Logger
	now     func() time.Time
}

// NewGenerator creates a generator. dialect is the SQL dialect name given to
// the model; cache may be nil.
func NewGenerator(client TextClient, dialect string, cache ProposalCache, config GeneratorConfig, logger *zap.Logger) *Generator {
	if config.MaxQueries < 1 {
		config.MaxQueries = DefaultGeneratorConfig().MaxQueries
	}
	return &Generator{
		client:  client,
		dialect: dialect,
		cache:   cache,
		breaker: NewCircuitBreaker(config.CircuitBreaker),
		config:  config,
		logger:  logger.Named("generator"),
		now:     time.Now,
	}
}

// ProposeQueries asks the model for candidate queries over allowedTables.
// hints are short facts extracted from the message. The result is untrusted
// and must be validated before execution.
func (g *Generator) ProposeQueries(ctx context.Context, message string, allowedTables, hints []string) []sql.CandidateQuery {
	cacheKey := ProposalCacheKey(g.dialect, message, allowedTables, hints)
	if g.cache != nil {
		if proposals, ok := g.cache.Get(ctx, cacheKey); ok {
			metrics.GeneratorCalls.WithLabelValues(opPropose, metrics.ResultCached).Inc()
			return proposals
		}
	}

	prompt := buildProposalPrompt(g.dialect, message, allowedTables, hints, g.config.MaxQueries, g.now())
	raw, err := g.call(ctx, opPropose, prompt, proposalSystemMessage)
	if err != nil {
		logging.ForRequest(ctx, g.logger).Warn("Query proposal failed", zap.String("error", logging.SanitizeError(err)))
		return nil
	}

	proposals, err := ParseProposals(raw, g.config.MaxQueries)
	if err != nil {
		logging.ForRequest(ctx, g.logger).Warn("Unparseable query proposal",
			zap.String("error", err.Error()),
			zap.Int("response_len", len(raw)))
		if !g.config.HeuristicFallback {
			return nil
		}
		metrics.GeneratorCalls.WithLabelValues(opPropose, metrics.ResultFallback).Inc()
		return heuristicQueries(message, g.dialect)
	}

	if g.cache != nil && len(proposals) > 0 {
		g.cache.Set(ctx, cacheKey, proposals)
	}
	return proposals
}

// Answer writes a reply grounded only in chunks.
func (g *Generator) Answer(ctx context.Context, message string, chunks []string) string {
	if len(chunks) == 0 {
		return models.ReplyOutOfContext
	}
	system := fmt.Sprintf(answerSystemMessage, models.ReplyOutOfContext)
	return g.reply(ctx, opAnswer, buildAnswerPrompt(message, chunks), system)
}

// AnswerThematic writes a general travel reply without database context.
func (g *Generator) AnswerThematic(ctx context.Context, message string) string {
	system := fmt.Sprintf(thematicSystemMessage, models.ReplyOutOfContext)
	return g.reply(ctx, opThematic, message, system)
}

func (g *Generator) reply(ctx context.Context, op, prompt, system string) string {
	out, err := g.call(ctx, op, prompt, system)
	if err != nil {
		logging.ForRequest(ctx, g.logger).Warn("Answer generation failed",
			zap.String("operation", op),
			zap.String("error", logging.SanitizeError(err)))
		return models.ReplyOutOfContext
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return models.ReplyOutOfContext
	}
	return out
}

// call runs one generation behind the circuit breaker with retries, bounded
// by the configured timeout.
func (g *Generator) call(ctx context.Context, op, prompt, system string) (string, error) {
	if err := g.breaker.Allow(); err != nil {
		metrics.GeneratorCalls.WithLabelValues(op, metrics.ResultError).Inc()
		return "", err
	}

	if g.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.config.Timeout)
		defer cancel()
	}

	var out string
	err := retry.DoIfRetryable(ctx, g.config.Retry, func() error {
		var err error
		out, err = g.client.GenerateResponse(ctx, prompt, system, g.config.Temperature)
		if err != nil {
			return ClassifyError(err)
		}
		return nil
	})
	if err != nil {
		g.breaker.RecordFailure()
		metrics.GeneratorCalls.WithLabelValues(op, metrics.ResultError).Inc()
		return "", err
	}

	g.breaker.RecordSuccess()
	metrics.GeneratorCalls.WithLabelValues(op, metrics.ResultSuccess).Inc()
	return out, nil
}
