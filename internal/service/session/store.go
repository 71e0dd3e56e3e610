package session

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/park285/cheese-chess-web/internal/game"
	"github.com/redis/go-redis/v9"
)

const defaultSessionTTL = 24 * time.Hour

// Store persists session snapshots so a game survives a process restart.
type Store interface {
	Save(ctx context.Context, snap game.Snapshot) error
	Load(ctx context.Context, id string) (game.Snapshot, bool, error)
	Delete(ctx context.Context, id string) error
}

type RedisStore struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

func NewRedisStore(rdb redis.UniversalClient, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (s *RedisStore) key(id string) string { return "chess:session:" + strings.TrimSpace(id) }

func (s *RedisStore) Save(ctx context.Context, snap game.Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.key(snap.ID), raw, s.ttl).Err()
}

func (s *RedisStore) Load(ctx context.Context, id string) (game.Snapshot, bool, error) {
	raw, err := s.rdb.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return game.Snapshot{}, false, nil
	}
	if err != nil {
		return game.Snapshot{}, false, err
	}
	var snap game.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return game.Snapshot{}, false, err
	}
	return snap, true, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return s.rdb.Del(ctx, s.key(id)).Err()
}

// MemoryStore is used when no Redis is configured. Snapshots do not outlive
// the process.
type MemoryStore struct {
	mu    sync.RWMutex
	snaps map[string]game.Snapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snaps: make(map[string]game.Snapshot)}
}

func (s *MemoryStore) Save(_ context.Context, snap game.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap.Moves = append([]string(nil), snap.Moves...)
	s.snaps[snap.ID] = snap
	return nil
}

func (s *MemoryStore) Load(_ context.Context, id string) (game.Snapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snaps[id]
	return snap, ok, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snaps, id)
	return nil
}
