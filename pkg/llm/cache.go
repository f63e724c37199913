package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/travelgo/chat-engine/pkg/sql"
)

const proposalKeyPrefix = "travelgo:proposals:"

// ProposalCache stores query proposals keyed by the prompt inputs so that a
// repeated question skips the generator call. Validation still runs on every
// cached proposal.
type ProposalCache interface {
	Get(ctx context.Context, key string) ([]sql.CandidateQuery, bool)
	Set(ctx context.Context, key string, proposals []sql.CandidateQuery)
}

// RedisProposalCache is a ProposalCache backed by Redis. Cache failures are
// logged and treated as misses.
type RedisProposalCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisProposalCache creates a Redis-backed proposal cache.
func NewRedisProposalCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisProposalCache {
	return &RedisProposalCache{
		client: client,
		ttl:    ttl,
		logger: logger.Named("proposal-cache"),
	}
}

// Get implements ProposalCache.
func (c *RedisProposalCache) Get(ctx context.Context, key string) ([]sql.CandidateQuery, bool) {
	val, err := c.client.Get(ctx, proposalKeyPrefix+key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("Proposal cache read failed", zap.Error(err))
		}
		return nil, false
	}

	var proposals []sql.CandidateQuery
	if err := json.Unmarshal([]byte(val), &proposals); err != nil {
		c.logger.Warn("Discarding corrupt cached proposals", zap.Error(err))
		return nil, false
	}
	return proposals, true
}

// Set implements ProposalCache.
func (c *RedisProposalCache) Set(ctx context.Context, key string, proposals []sql.CandidateQuery) {
	data, err := json.Marshal(proposals)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, proposalKeyPrefix+key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("Proposal cache write failed", zap.Error(err))
	}
}

// ProposalCacheKey hashes the inputs that determine a proposal. The current
// date is part of the key because proposals may embed date filters.
func ProposalCacheKey(dialect, message string, allowedTables, hints []string) string {
	h := sha256.New()
	for _, part := range []string{
		dialect,
		strings.ToLower(strings.TrimSpace(message)),
		strings.Join(allowedTables, ","),
		strings.Join(hints, ","),
		time.Now().Format("2006-01-02"),
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
