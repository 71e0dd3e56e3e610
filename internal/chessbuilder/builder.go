package chessbuilder

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os/exec"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/cheese-chess-web/internal/apiclient"
	corechess "github.com/park285/cheese-chess-web/internal/chess"
	"github.com/park285/cheese-chess-web/internal/config"
	"github.com/park285/cheese-chess-web/internal/domain"
	"github.com/park285/cheese-chess-web/internal/game"
	"github.com/park285/cheese-chess-web/internal/httpapi"
	"github.com/park285/cheese-chess-web/internal/leaderboard"
	"github.com/park285/cheese-chess-web/internal/metrics"
	"github.com/park285/cheese-chess-web/internal/msgcat"
	"github.com/park285/cheese-chess-web/internal/service/session"
)

type Deps struct {
	Engine      *corechess.Engine
	DB          *sql.DB
	Redis       *redis.Client
	Leaderboard *leaderboard.Service
	Sessions    *session.Manager
	Metrics     *metrics.Manager
	Server      *httpapi.Server

	logger *zap.Logger
}

// New wires the application. Only the engine is mandatory: without
// DATABASE_URL the leaderboard answers with a configuration error, and
// without REDIS_URL sessions live in memory.
func New(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (*Deps, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Deps{logger: logger, Metrics: metrics.NewManager()}

	for raw, depth := range cfg.PresetDepths {
		diff, err := domain.ParseDifficulty(raw)
		if err != nil {
			return nil, fmt.Errorf("preset_depths: %w: %q", err, raw)
		}
		if err := corechess.SetPresetDepth(diff, depth); err != nil {
			return nil, fmt.Errorf("preset_depths: %w", err)
		}
	}

	binary, err := exec.LookPath(cfg.StockfishPath)
	if err != nil {
		return nil, fmt.Errorf("locate engine %q: %w", cfg.StockfishPath, err)
	}
	engine, err := corechess.NewEngine(binary,
		corechess.WithPoolCapacity(cfg.EnginePoolSize),
		corechess.WithSearchObserver(d.Metrics.ObserveEngineSearch),
	)
	if err != nil {
		return nil, fmt.Errorf("init engine: %w", err)
	}
	d.Engine = engine

	if strings.TrimSpace(cfg.RedisURL) != "" {
		if err := d.openRedis(ctx, cfg.RedisURL); err != nil {
			d.Close()
			return nil, err
		}
	}

	var repo leaderboard.Repository
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		if err := d.openDB(ctx, cfg); err != nil {
			d.Close()
			return nil, err
		}
		repo = leaderboard.NewRepository(d.DB)
	} else {
		logger.Warn("DATABASE_URL not set; leaderboard disabled")
	}

	var lbCache leaderboard.Cache
	if d.Redis != nil && cfg.LeaderboardCacheTTL > 0 {
		lbCache = leaderboard.NewRedisCache(d.Redis, cfg.LeaderboardCacheTTL)
	}
	d.Leaderboard = leaderboard.NewService(repo, lbCache, logger,
		leaderboard.WithInsertObserver(func(diff domain.Difficulty, err error) {
			d.Metrics.ObserveSubmission(diff, submissionResult(err))
		}),
	)
	if d.Leaderboard.Configured() {
		initCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := d.Leaderboard.Init(initCtx); err != nil {
			// Tables are created lazily on first use as well.
			logger.Warn("leaderboard init failed", zap.Error(err))
		}
		cancel()
	}

	var submitter game.Submitter = d.Leaderboard
	if u := strings.TrimSpace(cfg.LeaderboardAPIURL); u != "" {
		submitter = &observedSubmitter{
			next:    apiclient.NewClient(u, apiclient.WithTimeout(8*time.Second)),
			metrics: d.Metrics,
		}
		logger.Info("leaderboard submissions go to remote api", zap.String("url", u))
	}

	var store session.Store = session.NewMemoryStore()
	if d.Redis != nil {
		store = session.NewRedisStore(d.Redis, cfg.SessionTTL())
	}

	d.Sessions = session.NewManager(session.Config{
		EngineDelay:       cfg.EngineDelay(),
		EngineTimeout:     cfg.EngineTimeout,
		TickInterval:      cfg.TickInterval,
		IdleTimeout:       cfg.IdleTimeout,
		DefaultPlayerName: cfg.DefaultPlayerName,
	}, engine, submitter, store, logger,
		session.WithControllerOptions(
			game.WithLogger(logger),
			game.WithStaleResponseHook(d.Metrics.IncStaleResponse),
			game.WithTerminalHook(d.Metrics.ObserveGameFinished),
		),
		session.WithActiveObserver(d.Metrics.SetActiveSessions),
	)

	messages, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("load messages: %w", err)
	}

	d.Server = httpapi.New(httpapi.Deps{
		Leaderboard: d.Leaderboard,
		Sessions:    d.Sessions,
		Messages:    messages,
		Metrics:     d.Metrics,
		Logger:      logger,
		Development: cfg.IsDevelopment(),
		Ready:       d.ready,
	})
	return d, nil
}

func (d *Deps) openRedis(ctx context.Context, raw string) error {
	opts, err := redis.ParseURL(raw)
	if err != nil {
		return fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return fmt.Errorf("ping redis: %w", err)
	}
	d.Redis = rdb
	return nil
}

func (d *Deps) openDB(ctx context.Context, cfg *config.AppConfig) error {
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		// Not fatal: requests report a connection error until the database
		// is reachable.
		d.logger.Warn("postgres ping failed", zap.Error(err))
	}
	d.DB = db
	return nil
}

func (d *Deps) ready() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if d.Redis != nil {
		if err := d.Redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	if d.DB != nil {
		if err := d.DB.PingContext(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	return nil
}

func (d *Deps) Handler() http.Handler { return d.Server.Handler() }

// Close stops sessions first so their final snapshots reach Redis.
func (d *Deps) Close() error {
	var errs []error
	if d.Sessions != nil {
		d.Sessions.Shutdown()
	}
	if d.Engine != nil {
		errs = append(errs, d.Engine.Close())
	}
	if d.Redis != nil {
		errs = append(errs, d.Redis.Close())
	}
	if d.DB != nil {
		errs = append(errs, d.DB.Close())
	}
	return errors.Join(errs...)
}

func submissionResult(err error) string {
	var apiErr *apiclient.APIError
	switch {
	case err == nil:
		return metrics.ResultAccepted
	case errors.As(err, &apiErr) && apiErr.Status < 500:
		return metrics.ResultRejected
	case errors.Is(err, leaderboard.ErrInvalidPlayerName), errors.Is(err, leaderboard.ErrInvalidTime), errors.Is(err, domain.ErrInvalidDifficulty):
		return metrics.ResultRejected
	default:
		return metrics.ResultFailed
	}
}

// observedSubmitter counts remote submissions; local ones are counted by the
// leaderboard service's insert observer.
type observedSubmitter struct {
	next    game.Submitter
	metrics *metrics.Manager
}

func (s *observedSubmitter) Submit(ctx context.Context, sub game.Submission) (domain.LeaderboardEntry, error) {
	entry, err := s.next.Submit(ctx, sub)
	s.metrics.ObserveSubmission(sub.Difficulty, submissionResult(err))
	return entry, err
}
