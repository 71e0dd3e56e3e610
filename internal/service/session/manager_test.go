package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/park285/cheese-chess-web/internal/chess"
	"github.com/park285/cheese-chess-web/internal/domain"
	"github.com/park285/cheese-chess-web/internal/game"
	"github.com/redis/go-redis/v9"
)

type replyEngine struct {
	mu    sync.Mutex
	moves []string
}

func (e *replyEngine) BestMove(_ context.Context, req chess.MoveRequest) (chess.MoveResponse, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.moves) == 0 {
		return chess.MoveResponse{}, errors.New("no scripted move")
	}
	mv := e.moves[0]
	e.moves = e.moves[1:]
	return chess.MoveResponse{Token: req.Token, Move: mv}, nil
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb, time.Hour), mr
}

func waitForSnapshot(t *testing.T, store Store, id string, cond func(game.Snapshot) bool) game.Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap, ok, err := store.Load(context.Background(), id)
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if ok && cond(snap) {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("snapshot for %s never satisfied condition", id)
	return game.Snapshot{}
}

func TestCreatePersistsEveryMove(t *testing.T) {
	store, _ := newRedisStore(t)
	m := NewManager(Config{DefaultPlayerName: "Guest"}, &replyEngine{moves: []string{"e7e5"}}, nil, store, nil)
	defer m.Shutdown()

	ctrl, err := m.Create(context.Background(), CreateRequest{Difficulty: domain.DifficultyEasy, HumanSide: domain.SideWhite})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if got := ctrl.State().PlayerName; got != "Guest" {
		t.Fatalf("expected default player name, got %q", got)
	}
	if _, err := ctrl.ApplyHumanMove("e2", "e4", ""); err != nil {
		t.Fatalf("human move: %v", err)
	}

	snap := waitForSnapshot(t, store, ctrl.ID(), func(s game.Snapshot) bool { return len(s.Moves) == 2 })
	if snap.Moves[0] != "e2e4" || snap.Moves[1] != "e7e5" {
		t.Fatalf("unexpected moves %v", snap.Moves)
	}
	if snap.Difficulty != domain.DifficultyEasy || snap.HumanSide != domain.SideWhite {
		t.Fatalf("unexpected identity %+v", snap)
	}
	if m.Count() != 1 {
		t.Fatalf("expected 1 live session, got %d", m.Count())
	}
}

func TestGetRestoresAfterRestart(t *testing.T) {
	store, _ := newRedisStore(t)
	first := NewManager(Config{}, &replyEngine{moves: []string{"e7e5"}}, nil, store, nil)

	ctrl, err := first.Create(context.Background(), CreateRequest{Difficulty: domain.DifficultyMedium, PlayerName: "Ann"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	id := ctrl.ID()
	if _, err := ctrl.ApplyHumanMove("e2", "e4", ""); err != nil {
		t.Fatalf("human move: %v", err)
	}
	waitForSnapshot(t, store, id, func(s game.Snapshot) bool { return len(s.Moves) == 2 })
	first.Shutdown()

	second := NewManager(Config{}, &replyEngine{}, nil, store, nil)
	defer second.Shutdown()
	restored, err := second.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	st := restored.State()
	if len(st.Moves) != 2 || st.PlayerName != "Ann" || st.Difficulty != domain.DifficultyMedium {
		t.Fatalf("unexpected restored state %+v", st)
	}
	if !st.HumanToMove() {
		t.Fatalf("expected the human to move after restore")
	}

	again, err := second.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("second get: %v", err)
	}
	if again != restored {
		t.Fatalf("expected the live controller to be reused")
	}
}

func TestGetUnknownSession(t *testing.T) {
	m := NewManager(Config{}, &replyEngine{}, nil, NewMemoryStore(), nil)
	defer m.Shutdown()

	if _, err := m.Get(context.Background(), "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := m.Get(context.Background(), "  "); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound for blank id, got %v", err)
	}
}

func TestSweepEvictsIdleSessions(t *testing.T) {
	clock := &manualClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	store := NewMemoryStore()
	var (
		mu     sync.Mutex
		active []int
	)
	m := NewManager(Config{IdleTimeout: time.Minute}, &replyEngine{}, nil, store, nil,
		WithClock(clock.Now),
		WithActiveObserver(func(n int) {
			mu.Lock()
			active = append(active, n)
			mu.Unlock()
		}),
	)
	defer m.Shutdown()

	ctrl, err := m.Create(context.Background(), CreateRequest{Difficulty: domain.DifficultyHard})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if n := m.Sweep(); n != 0 {
		t.Fatalf("fresh session should survive sweep, evicted %d", n)
	}

	clock.Advance(2 * time.Minute)
	if n := m.Sweep(); n != 1 {
		t.Fatalf("expected 1 eviction, got %d", n)
	}
	if m.Count() != 0 {
		t.Fatalf("expected no live sessions, got %d", m.Count())
	}
	if _, err := ctrl.ApplyHumanMove("e2", "e4", ""); !errors.Is(err, game.ErrClosed) {
		t.Fatalf("evicted controller should be closed, got %v", err)
	}

	restored, err := m.Get(context.Background(), ctrl.ID())
	if err != nil {
		t.Fatalf("restore evicted session: %v", err)
	}
	if restored == ctrl {
		t.Fatalf("expected a fresh controller after eviction")
	}

	mu.Lock()
	defer mu.Unlock()
	want := []int{1, 0, 1}
	if len(active) != len(want) {
		t.Fatalf("active reports = %v, want %v", active, want)
	}
	for i := range want {
		if active[i] != want[i] {
			t.Fatalf("active reports = %v, want %v", active, want)
		}
	}
}

func TestDeleteForgetsSnapshot(t *testing.T) {
	store, mr := newRedisStore(t)
	m := NewManager(Config{}, &replyEngine{}, nil, store, nil)
	defer m.Shutdown()

	ctrl, err := m.Create(context.Background(), CreateRequest{Difficulty: domain.DifficultyEasy})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !mr.Exists("chess:session:" + ctrl.ID()) {
		t.Fatalf("expected snapshot key after create")
	}
	if err := m.Delete(context.Background(), ctrl.ID()); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if mr.Exists("chess:session:" + ctrl.ID()) {
		t.Fatalf("snapshot key should be removed")
	}
	if _, err := m.Get(context.Background(), ctrl.ID()); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestRedisStoreExpires(t *testing.T) {
	store, mr := newRedisStore(t)
	snap := game.Snapshot{ID: "abc", Difficulty: domain.DifficultyEasy, HumanSide: domain.SideBlack, Moves: []string{"e2e4"}}
	if err := store.Save(context.Background(), snap); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, ok, err := store.Load(context.Background(), "abc")
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if got.HumanSide != domain.SideBlack || len(got.Moves) != 1 {
		t.Fatalf("unexpected snapshot %+v", got)
	}

	mr.FastForward(2 * time.Hour)
	if _, ok, err := store.Load(context.Background(), "abc"); err != nil || ok {
		t.Fatalf("expected expiry, ok=%v err=%v", ok, err)
	}
}
