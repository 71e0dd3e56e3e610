package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/park285/cheese-chess-web/internal/domain"
	"github.com/park285/cheese-chess-web/internal/game"
	"go.uber.org/zap"
)

var (
	ErrNotConfigured     = errors.New("leaderboard store not configured")
	ErrInvalidPlayerName = errors.New("player name required")
	ErrInvalidTime       = errors.New("time must be a non-negative number of seconds")
)

// MaxTimeSeconds is the largest value the INTEGER time_seconds column holds.
const MaxTimeSeconds = math.MaxInt32

// InsertObserver is told about every insert attempt.
type InsertObserver func(d domain.Difficulty, err error)

type Option func(*Service)

func WithInsertObserver(fn InsertObserver) Option {
	return func(s *Service) { s.observe = fn }
}

// Service validates leaderboard requests before they reach storage. A nil
// repository means no database was configured; every storage call then
// returns ErrNotConfigured.
type Service struct {
	repo    Repository
	cache   Cache
	logger  *zap.Logger
	observe InsertObserver
}

func NewService(repo Repository, cache Cache, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{repo: repo, cache: cache, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Configured() bool {
	return s != nil && s.repo != nil
}

func (s *Service) Init(ctx context.Context) error {
	if !s.Configured() {
		return ErrNotConfigured
	}
	if err := s.repo.Init(ctx); err != nil {
		return err
	}
	s.logger.Info("leaderboard tables ready")
	return nil
}

// Top returns at most Capacity entries, fastest first.
func (s *Service) Top(ctx context.Context, d domain.Difficulty) ([]domain.LeaderboardEntry, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidDifficulty, d)
	}
	if !s.Configured() {
		return nil, ErrNotConfigured
	}

	cacheable := false
	var gen int64
	if s.cache != nil {
		entries, g, ok, err := s.cache.Get(ctx, d)
		if err != nil {
			s.logger.Warn("leaderboard cache read failed", zap.String("difficulty", string(d)), zap.Error(err))
		} else if ok {
			return entries, nil
		} else {
			cacheable, gen = true, g
		}
	}

	entries, err := s.withTables(ctx, func() ([]domain.LeaderboardEntry, error) {
		return s.repo.Top(ctx, d, Capacity)
	})
	if err != nil {
		return nil, err
	}

	if cacheable {
		if err := s.cache.Set(ctx, d, gen, entries); err != nil {
			s.logger.Warn("leaderboard cache write failed", zap.String("difficulty", string(d)), zap.Error(err))
		}
	}
	return entries, nil
}

// Record inserts a finished game and trims the table back to Capacity.
func (s *Service) Record(ctx context.Context, d domain.Difficulty, playerName string, timeSeconds int) (Placement, error) {
	if !d.Valid() {
		return Placement{}, fmt.Errorf("%w: %q", domain.ErrInvalidDifficulty, d)
	}
	name, err := NormalizeName(playerName)
	if err != nil {
		return Placement{}, err
	}
	if timeSeconds < 0 || timeSeconds > MaxTimeSeconds {
		return Placement{}, ErrInvalidTime
	}
	if !s.Configured() {
		return Placement{}, ErrNotConfigured
	}

	var placement Placement
	_, err = s.withTables(ctx, func() ([]domain.LeaderboardEntry, error) {
		var insertErr error
		placement, insertErr = s.repo.Insert(ctx, d, name, timeSeconds)
		return nil, insertErr
	})
	if s.observe != nil {
		s.observe(d, err)
	}
	if err != nil {
		return Placement{}, err
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, d); err != nil {
			s.logger.Warn("leaderboard cache invalidate failed", zap.String("difficulty", string(d)), zap.Error(err))
		}
	}
	s.logger.Info("leaderboard entry recorded",
		zap.String("difficulty", string(d)),
		zap.String("player", name),
		zap.Int("time_seconds", timeSeconds),
		zap.Int("rank", placement.Rank),
	)
	return placement, nil
}

// Submit lets the service act as the submission gate's target in-process.
func (s *Service) Submit(ctx context.Context, sub game.Submission) (domain.LeaderboardEntry, error) {
	p, err := s.Record(ctx, sub.Difficulty, sub.PlayerName, sub.TimeSeconds)
	if err != nil {
		return domain.LeaderboardEntry{}, err
	}
	return p.Entry, nil
}

// withTables runs fn and, if the tables do not exist yet, creates them and
// runs fn once more.
func (s *Service) withTables(ctx context.Context, fn func() ([]domain.LeaderboardEntry, error)) ([]domain.LeaderboardEntry, error) {
	out, err := fn()
	if !errors.Is(err, ErrTableMissing) {
		return out, err
	}
	s.logger.Warn("leaderboard tables missing, creating")
	if initErr := s.repo.Init(ctx); initErr != nil {
		return nil, fmt.Errorf("init after missing table: %w", initErr)
	}
	return fn()
}

// NormalizeName trims the name and cuts it to MaxPlayerNameRunes.
func NormalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrInvalidPlayerName
	}
	if utf8.RuneCountInString(name) > MaxPlayerNameRunes {
		runes := []rune(name)
		name = strings.TrimSpace(string(runes[:MaxPlayerNameRunes]))
	}
	return name, nil
}
