package leaderboard

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/park285/cheese-chess-web/internal/domain"
	"github.com/redis/go-redis/v9"
)

// Cache holds the top entries of each difficulty between inserts. Entries are
// stored under a generation that Invalidate advances, so a read that raced an
// insert can only write to a generation nobody reads any more.
type Cache interface {
	// Get returns the cached entries and the current generation, which a
	// subsequent Set must be given.
	Get(ctx context.Context, d domain.Difficulty) ([]domain.LeaderboardEntry, int64, bool, error)
	Set(ctx context.Context, d domain.Difficulty, gen int64, entries []domain.LeaderboardEntry) error
	Invalidate(ctx context.Context, d domain.Difficulty) error
}

const defaultCacheTTL = 30 * time.Second

type RedisCache struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

func NewRedisCache(rdb redis.UniversalClient, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func (c *RedisCache) genKey(d domain.Difficulty) string { return "chess:leaderboard:" + string(d) + ":gen" }

func (c *RedisCache) key(d domain.Difficulty, gen int64) string {
	return "chess:leaderboard:" + string(d) + ":" + strconv.FormatInt(gen, 10)
}

func (c *RedisCache) generation(ctx context.Context, d domain.Difficulty) (int64, error) {
	gen, err := c.rdb.Get(ctx, c.genKey(d)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (c *RedisCache) Get(ctx context.Context, d domain.Difficulty) ([]domain.LeaderboardEntry, int64, bool, error) {
	gen, err := c.generation(ctx, d)
	if err != nil {
		return nil, 0, false, err
	}
	raw, err := c.rdb.Get(ctx, c.key(d, gen)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, gen, false, nil
	}
	if err != nil {
		return nil, gen, false, err
	}
	var entries []domain.LeaderboardEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, gen, false, err
	}
	return entries, gen, true, nil
}

func (c *RedisCache) Set(ctx context.Context, d domain.Difficulty, gen int64, entries []domain.LeaderboardEntry) error {
	if entries == nil {
		entries = []domain.LeaderboardEntry{}
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, c.key(d, gen), raw, c.ttl).Err()
}

func (c *RedisCache) Invalidate(ctx context.Context, d domain.Difficulty) error {
	return c.rdb.Incr(ctx, c.genKey(d)).Err()
}
