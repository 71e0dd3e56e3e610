package game

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/park285/cheese-chess-web/internal/chess"
	"github.com/park285/cheese-chess-web/internal/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

// scriptedEngine answers searches from a fixed list of moves.
type scriptedEngine struct {
	mu    sync.Mutex
	moves []string
	err   error
	calls []chess.MoveRequest
}

func (e *scriptedEngine) BestMove(_ context.Context, req chess.MoveRequest) (chess.MoveResponse, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, req)
	if e.err != nil {
		return chess.MoveResponse{}, e.err
	}
	if len(e.moves) == 0 {
		return chess.MoveResponse{}, errors.New("script exhausted")
	}
	mv := e.moves[0]
	e.moves = e.moves[1:]
	return chess.MoveResponse{Token: req.Token, Move: mv}, nil
}

func (e *scriptedEngine) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

// blockingEngine holds every search until the test releases a move.
type blockingEngine struct {
	calls   chan chess.MoveRequest
	release chan string
}

func newBlockingEngine() *blockingEngine {
	return &blockingEngine{
		calls:   make(chan chess.MoveRequest, 8),
		release: make(chan string),
	}
}

func (e *blockingEngine) BestMove(ctx context.Context, req chess.MoveRequest) (chess.MoveResponse, error) {
	e.calls <- req
	select {
	case mv := <-e.release:
		return chess.MoveResponse{Token: req.Token, Move: mv}, nil
	case <-ctx.Done():
		return chess.MoveResponse{}, ctx.Err()
	}
}

type recordingSubmitter struct {
	mu   sync.Mutex
	subs []Submission
	err  error
}

func (s *recordingSubmitter) Submit(_ context.Context, sub Submission) (domain.LeaderboardEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, sub)
	if s.err != nil {
		return domain.LeaderboardEntry{}, s.err
	}
	return domain.LeaderboardEntry{ID: int64(len(s.subs)), PlayerName: sub.PlayerName, TimeSeconds: sub.TimeSeconds}, nil
}

func (s *recordingSubmitter) submissions() []Submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Submission(nil), s.subs...)
}

func waitForState(t *testing.T, c *Controller, cond func(State) bool) State {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		st := c.State()
		if cond(st) {
			return st
		}
		if time.Now().After(deadline) {
			t.Fatalf("condition not reached; state %+v", st)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func humanToMove(st State) bool { return st.HumanToMove() }
