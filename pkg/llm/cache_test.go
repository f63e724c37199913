package llm

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/travelgo/chat-engine/pkg/sql"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisProposalCache_RoundTrip(t *testing.T) {
	mr, client := setupRedis(t)
	cache := NewRedisProposalCache(client, time.Minute, zap.NewNop())
	ctx := context.Background()

	_, ok := cache.Get(ctx, "k")
	assert.False(t, ok)

	proposals := []sql.CandidateQuery{{Table: "trips", SQL: "SELECT name FROM trips"}}
	cache.Set(ctx, "k", proposals)

	got, ok := cache.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, proposals, got)

	mr.FastForward(2 * time.Minute)
	_, ok = cache.Get(ctx, "k")
	assert.False(t, ok, "entry expires after ttl")
}

func TestRedisProposalCache_CorruptEntryIsMiss(t *testing.T) {
	mr, client := setupRedis(t)
	cache := NewRedisProposalCache(client, time.Minute, zap.NewNop())

	require.NoError(t, mr.Set(proposalKeyPrefix+"k", "{not json"))

	_, ok := cache.Get(context.Background(), "k")
	assert.False(t, ok)
}

func TestRedisProposalCache_UnavailableIsMiss(t *testing.T) {
	mr, client := setupRedis(t)
	cache := NewRedisProposalCache(client, time.Minute, zap.NewNop())
	mr.Close()

	cache.Set(context.Background(), "k", []sql.CandidateQuery{{Table: "trips", SQL: "SELECT 1 FROM trips"}})
	_, ok := cache.Get(context.Background(), "k")
	assert.False(t, ok)
}

func TestProposeQueries_UsesCache(t *testing.T) {
	_, client := setupRedis(t)
	cache := NewRedisProposalCache(client, time.Minute, zap.NewNop())

	mock := NewMockTextClient()
	mock.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temperature float64) (string, error) {
		return `[{"table":"trips","sql":"SELECT name FROM trips"}]`, nil
	}
	g := newTestGenerator(mock, cache)

	first := g.ProposeQueries(context.Background(), "trip ke bali", testTables, nil)
	second := g.ProposeQueries(context.Background(), "Trip ke Bali ", testTables, nil)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, mock.Calls(), "normalized repeat question served from cache")
}

func TestProposalCacheKey(t *testing.T) {
	a := ProposalCacheKey("PostgreSQL", "promo bali", []string{"promos"}, nil)
	b := ProposalCacheKey("SQL Server", "promo bali", []string{"promos"}, nil)
	c := ProposalCacheKey("PostgreSQL", "promo bali", []string{"promos"}, []string{"promos.promo_code=WELCOME200"})

	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}
