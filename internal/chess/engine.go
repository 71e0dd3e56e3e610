package chess

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/park285/cheese-chess-web/internal/chess/uci"
	"github.com/park285/cheese-chess-web/internal/domain"
)

var ErrNoLegalMove = errors.New("engine reported no legal move")

// MoveRequest asks for one move in the given position. Token is echoed back
// so the caller can tell whether the answer is still wanted.
type MoveRequest struct {
	Token      string
	FEN        string
	Difficulty domain.Difficulty
}

type MoveResponse struct {
	Token    string
	Move     string
	EvalCP   int
	Depth    int
	Duration time.Duration
}

// SearchObserver receives the outcome of every search.
type SearchObserver func(d domain.Difficulty, elapsed time.Duration, err error)

type Option func(*Engine)

func WithSearchObserver(fn SearchObserver) Option {
	return func(e *Engine) { e.observe = fn }
}

func WithPoolCapacity(n int) Option {
	return func(e *Engine) { e.capacity = n }
}

type Engine struct {
	pool     *uci.Pool
	capacity int
	observe  SearchObserver
}

func NewEngine(binaryPath string, opts ...Option) (*Engine, error) {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}
	pool, err := uci.NewPool(uci.PoolConfig{BinaryPath: binaryPath, PerOptionsCapacity: e.capacity})
	if err != nil {
		return nil, err
	}
	e.pool = pool
	return e, nil
}

func (e *Engine) BestMove(ctx context.Context, req MoveRequest) (resp MoveResponse, err error) {
	start := time.Now()
	defer func() {
		if e.observe != nil {
			e.observe(req.Difficulty, time.Since(start), err)
		}
	}()

	preset, err := GetPreset(req.Difficulty)
	if err != nil {
		return MoveResponse{}, err
	}

	session, err := e.pool.Acquire(ctx, optionsFromPreset(preset))
	if err != nil {
		return MoveResponse{}, fmt.Errorf("acquire engine: %w", err)
	}
	var releaseErr error
	defer func() {
		e.pool.Release(session, releaseErr)
	}()

	if err := session.NewGame(ctx); err != nil {
		releaseErr = err
		return MoveResponse{}, err
	}

	out, err := session.Search(ctx, uci.SearchRequest{
		FEN:    req.FEN,
		Limits: limitsFromPreset(preset),
	})
	if err != nil {
		releaseErr = err
		return MoveResponse{}, err
	}
	if out.BestMove == "" {
		return MoveResponse{}, ErrNoLegalMove
	}

	return MoveResponse{
		Token:    req.Token,
		Move:     out.BestMove,
		EvalCP:   out.EvalCP,
		Depth:    out.Depth,
		Duration: time.Since(start),
	}, nil
}

func (e *Engine) Stats() uci.PoolStats {
	if e == nil || e.pool == nil {
		return uci.PoolStats{}
	}
	return e.pool.Stats()
}

func (e *Engine) Close() error {
	if e.pool == nil {
		return nil
	}
	return e.pool.Close()
}

func optionsFromPreset(p DifficultyPreset) uci.Options {
	return uci.Options{
		Threads:    p.Threads,
		SkillLevel: p.SkillLevel,
		HashMB:     p.HashMB,
	}
}

func limitsFromPreset(p DifficultyPreset) uci.Limits {
	return uci.Limits{
		Depth:          p.DepthCap,
		MoveTimeMillis: p.MoveTimeMillis,
	}
}
