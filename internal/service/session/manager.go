package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/park285/cheese-chess-web/internal/domain"
	"github.com/park285/cheese-chess-web/internal/game"
	"go.uber.org/zap"
)

var ErrSessionNotFound = errors.New("game session not found")

const (
	defaultIdleTimeout = 30 * time.Minute
	persistTimeout     = 3 * time.Second
)

type Config struct {
	EngineDelay   time.Duration
	EngineTimeout time.Duration
	TickInterval  time.Duration
	IdleTimeout   time.Duration
	SweepInterval time.Duration
	// DefaultPlayerName seeds new sessions that did not send a name.
	DefaultPlayerName string
}

type CreateRequest struct {
	Difficulty domain.Difficulty
	HumanSide  domain.Side
	PlayerName string
}

type Option func(*Manager)

// WithControllerOptions is applied to every controller the manager creates
// or restores.
func WithControllerOptions(opts ...game.Option) Option {
	return func(m *Manager) { m.ctrlOpts = append(m.ctrlOpts, opts...) }
}

func WithActiveObserver(fn func(active int)) Option {
	return func(m *Manager) { m.onActive = fn }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

type entry struct {
	ctrl     *game.Controller
	lastSeen time.Time
	done     chan struct{}
}

// Manager owns the live controllers. Each controller is mirrored to the
// store after every change and evicted from memory once idle.
type Manager struct {
	cfg       Config
	engine    game.EngineClient
	submitter game.Submitter
	store     Store
	logger    *zap.Logger
	ctrlOpts  []game.Option
	onActive  func(int)
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

func NewManager(cfg Config, engine game.EngineClient, submitter game.Submitter, store Store, logger *zap.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if store == nil {
		store = NewMemoryStore()
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = cfg.IdleTimeout / 4
	}
	m := &Manager{
		cfg:       cfg,
		engine:    engine,
		submitter: submitter,
		store:     store,
		logger:    logger,
		now:       time.Now,
		sessions:  make(map[string]*entry),
		stop:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) controllerConfig() game.Config {
	return game.Config{
		EngineDelay:   m.cfg.EngineDelay,
		EngineTimeout: m.cfg.EngineTimeout,
		TickInterval:  m.cfg.TickInterval,
	}
}

func (m *Manager) controllerOptions() []game.Option {
	opts := []game.Option{game.WithLogger(m.logger), game.WithClock(m.now)}
	return append(opts, m.ctrlOpts...)
}

func (m *Manager) Create(ctx context.Context, req CreateRequest) (*game.Controller, error) {
	cfg := m.controllerConfig()
	cfg.Difficulty = req.Difficulty
	cfg.HumanSide = req.HumanSide
	cfg.PlayerName = strings.TrimSpace(req.PlayerName)
	if cfg.PlayerName == "" {
		cfg.PlayerName = m.cfg.DefaultPlayerName
	}

	ctrl, err := game.New(cfg, m.engine, m.submitter, m.controllerOptions()...)
	if err != nil {
		return nil, err
	}
	// Subscribe before the first save so an engine reply racing this call
	// is either in the snapshot or produces an event.
	m.register(ctrl)
	if err := m.store.Save(ctx, ctrl.Snapshot()); err != nil {
		m.logger.Warn("session snapshot save failed", zap.String("session_id", ctrl.ID()), zap.Error(err))
	}
	m.logger.Info("session created",
		zap.String("session_id", ctrl.ID()),
		zap.String("difficulty", string(cfg.Difficulty)),
		zap.String("human_side", string(ctrl.State().HumanSide)),
	)
	return ctrl, nil
}

// Get returns the live controller for id, restoring it from the store when
// it was evicted or the process restarted.
func (m *Manager) Get(ctx context.Context, id string) (*game.Controller, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrSessionNotFound
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.sessions[id]; ok {
		e.lastSeen = m.now()
		return e.ctrl, nil
	}

	snap, ok, err := m.store.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if !ok {
		return nil, ErrSessionNotFound
	}
	ctrl, err := game.Restore(m.controllerConfig(), snap, m.engine, m.submitter, m.controllerOptions()...)
	if err != nil {
		return nil, fmt.Errorf("restore session: %w", err)
	}
	m.registerLocked(ctrl)
	m.logger.Info("session restored", zap.String("session_id", id), zap.Int("plies", len(snap.Moves)))
	return ctrl, nil
}

// Delete closes the session and forgets its snapshot.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	e, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	active := len(m.sessions)
	m.mu.Unlock()

	if ok {
		m.closeEntry(e)
		m.reportActive(active)
	}
	return m.store.Delete(ctx, id)
}

func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) register(ctrl *game.Controller) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registerLocked(ctrl)
}

func (m *Manager) registerLocked(ctrl *game.Controller) {
	events, _ := ctrl.Subscribe(64)
	e := &entry{ctrl: ctrl, lastSeen: m.now(), done: make(chan struct{})}
	m.sessions[ctrl.ID()] = e
	go m.persistLoop(ctrl, events, e.done)
	m.reportActive(len(m.sessions))
}

// persistLoop mirrors every change to the store until the controller closes.
func (m *Manager) persistLoop(ctrl *game.Controller, events <-chan game.Event, done chan struct{}) {
	defer close(done)
	for ev := range events {
		if ev.Type == game.EventTimer {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		if err := m.store.Save(ctx, ctrl.Snapshot()); err != nil {
			m.logger.Warn("session snapshot save failed",
				zap.String("session_id", ctrl.ID()),
				zap.String("event", string(ev.Type)),
				zap.Error(err),
			)
		}
		cancel()
	}
}

func (m *Manager) closeEntry(e *entry) {
	e.ctrl.Close()
	<-e.done
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := m.store.Save(ctx, e.ctrl.Snapshot()); err != nil {
		m.logger.Warn("final snapshot save failed", zap.String("session_id", e.ctrl.ID()), zap.Error(err))
	}
}

// StartSweeper evicts idle sessions from memory until Shutdown.
func (m *Manager) StartSweeper() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-m.stop:
				return
			case <-ticker.C:
				m.Sweep()
			}
		}
	}()
}

// Sweep closes every session not touched within IdleTimeout. Snapshots stay
// in the store, so a later Get restores the game.
func (m *Manager) Sweep() int {
	cutoff := m.now().Add(-m.cfg.IdleTimeout)

	m.mu.Lock()
	var idle []*entry
	for id, e := range m.sessions {
		if e.lastSeen.Before(cutoff) && e.ctrl.UpdatedAt().Before(cutoff) {
			idle = append(idle, e)
			delete(m.sessions, id)
		}
	}
	active := len(m.sessions)
	m.mu.Unlock()

	for _, e := range idle {
		m.closeEntry(e)
		m.logger.Debug("idle session evicted", zap.String("session_id", e.ctrl.ID()))
	}
	if len(idle) > 0 {
		m.reportActive(active)
	}
	return len(idle)
}

// Shutdown stops the sweeper and closes every live session after saving it.
func (m *Manager) Shutdown() {
	m.stopOnce.Do(func() { close(m.stop) })
	m.wg.Wait()

	m.mu.Lock()
	all := make([]*entry, 0, len(m.sessions))
	for id, e := range m.sessions {
		all = append(all, e)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, e := range all {
		m.closeEntry(e)
	}
	m.reportActive(0)
}

func (m *Manager) reportActive(n int) {
	if m.onActive != nil {
		m.onActive(n)
	}
}
