package leaderboard

import (
	"context"
	"sync"
	"time"

	"github.com/park285/cheese-chess-web/internal/domain"
)

// memrepo keeps the three tables in process memory. Used in tests and when
// the service runs without a database in development.
type memrepo struct {
	mu     sync.Mutex
	now    func() time.Time
	nextID map[domain.Difficulty]int64
	tables map[domain.Difficulty][]domain.LeaderboardEntry
}

func NewMemoryRepository() Repository {
	return &memrepo{
		now:    time.Now,
		nextID: make(map[domain.Difficulty]int64),
		tables: make(map[domain.Difficulty][]domain.LeaderboardEntry),
	}
}

func (m *memrepo) Init(context.Context) error { return nil }

func (m *memrepo) Top(_ context.Context, d domain.Difficulty, limit int) ([]domain.LeaderboardEntry, error) {
	if _, err := TableName(d); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > Capacity {
		limit = Capacity
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.tables[d]
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return append([]domain.LeaderboardEntry{}, rows...), nil
}

func (m *memrepo) Insert(_ context.Context, d domain.Difficulty, playerName string, timeSeconds int) (Placement, error) {
	if _, err := TableName(d); err != nil {
		return Placement{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID[d]++
	entry := domain.LeaderboardEntry{
		ID:          m.nextID[d],
		PlayerName:  playerName,
		TimeSeconds: timeSeconds,
		CreatedAt:   m.now().UTC(),
	}

	rows := append(m.tables[d], entry)
	SortEntries(rows)
	if len(rows) > Capacity {
		rows = rows[:Capacity]
	}
	m.tables[d] = rows

	p := Placement{Entry: entry}
	for i, e := range rows {
		if e.ID == entry.ID {
			p.Rank = i + 1
			break
		}
	}
	return p, nil
}
