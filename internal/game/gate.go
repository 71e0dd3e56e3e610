package game

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/park285/cheese-chess-web/internal/domain"
	"go.uber.org/zap"
)

// DefaultPlayerName is submitted when the player never set a name.
const DefaultPlayerName = "User"

const defaultSubmitTimeout = 10 * time.Second

var ErrSubmitterUnavailable = errors.New("leaderboard submitter not configured")

type Submission struct {
	Difficulty  domain.Difficulty
	PlayerName  string
	TimeSeconds int
}

// Submitter delivers a finished game to the leaderboard.
type Submitter interface {
	Submit(ctx context.Context, sub Submission) (domain.LeaderboardEntry, error)
}

type SubmitResult struct {
	Submission Submission
	Entry      domain.LeaderboardEntry
	Err        error
}

// SubmissionGate posts a game result at most once and only for a human win.
// A new gate is created for every game.
type SubmissionGate struct {
	submitter Submitter
	logger    *zap.Logger
	timeout   time.Duration
	onResult  func(SubmitResult)

	mu    sync.Mutex
	fired bool
	wg    sync.WaitGroup
}

func NewSubmissionGate(submitter Submitter, logger *zap.Logger, onResult func(SubmitResult)) *SubmissionGate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubmissionGate{
		submitter: submitter,
		logger:    logger,
		timeout:   defaultSubmitTimeout,
		onResult:  onResult,
	}
}

// Evaluate fires the submission when outcome is a human win and the gate has
// not fired yet. The post runs in the background; Evaluate never blocks on it.
func (g *SubmissionGate) Evaluate(outcome domain.Outcome, sub Submission) bool {
	if outcome != domain.OutcomeHumanWins {
		return false
	}
	g.mu.Lock()
	if g.fired {
		g.mu.Unlock()
		return false
	}
	g.fired = true
	g.mu.Unlock()

	sub.PlayerName = NormalizePlayerName(sub.PlayerName)
	g.wg.Add(1)
	go g.submit(sub)
	return true
}

func (g *SubmissionGate) submit(sub Submission) {
	defer g.wg.Done()

	res := SubmitResult{Submission: sub}
	if g.submitter == nil {
		res.Err = ErrSubmitterUnavailable
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
		res.Entry, res.Err = g.submitter.Submit(ctx, sub)
		cancel()
	}

	if res.Err != nil {
		g.logger.Warn("leaderboard submission failed",
			zap.String("difficulty", string(sub.Difficulty)),
			zap.String("player", sub.PlayerName),
			zap.Int("time_seconds", sub.TimeSeconds),
			zap.Error(res.Err),
		)
	} else {
		g.logger.Info("leaderboard submission stored",
			zap.String("difficulty", string(sub.Difficulty)),
			zap.String("player", sub.PlayerName),
			zap.Int("time_seconds", sub.TimeSeconds),
			zap.Int64("entry_id", res.Entry.ID),
		)
	}
	if g.onResult != nil {
		g.onResult(res)
	}
}

func (g *SubmissionGate) Fired() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.fired
}

// MarkFired closes the gate without submitting, for games restored after
// their result was already handled.
func (g *SubmissionGate) MarkFired() {
	g.mu.Lock()
	g.fired = true
	g.mu.Unlock()
}

// Wait blocks until an in-flight submission has finished.
func (g *SubmissionGate) Wait() {
	g.wg.Wait()
}

func NormalizePlayerName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultPlayerName
	}
	return name
}
