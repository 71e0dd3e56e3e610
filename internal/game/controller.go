package game

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	nchess "github.com/corentings/chess/v2"
	"github.com/google/uuid"
	"github.com/park285/cheese-chess-web/internal/chess"
	"github.com/park285/cheese-chess-web/internal/domain"
	"go.uber.org/zap"
)

const defaultEngineTimeout = 30 * time.Second

var ErrEngineUnavailable = errors.New("engine unavailable")

// EngineClient computes the engine's reply for a position.
type EngineClient interface {
	BestMove(ctx context.Context, req chess.MoveRequest) (chess.MoveResponse, error)
}

type Config struct {
	ID         string
	Difficulty domain.Difficulty
	HumanSide  domain.Side
	PlayerName string
	// StartFEN is empty for the standard initial position.
	StartFEN string

	EngineDelay   time.Duration
	EngineTimeout time.Duration
	// TickInterval > 0 emits EventTimer while the clock runs.
	TickInterval time.Duration
}

type NewGameOptions struct {
	Difficulty domain.Difficulty
	HumanSide  domain.Side
}

// EngineReply routes an engine answer back into the controller. Token and Ply
// identify the request it answers.
type EngineReply struct {
	Token string
	Ply   int
	Move  string
}

type Option func(*Controller)

func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

func WithStaleResponseHook(fn func()) Option {
	return func(c *Controller) { c.onStale = fn }
}

func WithTerminalHook(fn func(domain.Outcome)) Option {
	return func(c *Controller) { c.onTerminal = fn }
}

type engineRequest struct {
	token string
	ply   int
}

type moveOption struct {
	to       nchess.Square
	promotes bool
}

// Controller is the single writer of one game session. Every mutation takes
// mu; engine searches run on their own goroutines and re-enter through
// ApplyEngineMove.
type Controller struct {
	engine     EngineClient
	submitter  Submitter
	logger     *zap.Logger
	now        func() time.Time
	onStale    func()
	onTerminal func(domain.Outcome)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	events *broker

	mu        sync.Mutex
	cfg       Config
	closed    bool
	game      *nchess.Game
	moves     []string
	outcome   domain.Outcome
	method    string
	pending   *engineRequest
	promotion *PendingPromotion
	engineErr string
	timer     *Timer
	gate      *SubmissionGate
	retired   []*SubmissionGate
	startedAt time.Time
	updatedAt time.Time
}

// New starts a session. When the engine has the first move the request is
// issued before New returns.
func New(cfg Config, engine EngineClient, submitter Submitter, opts ...Option) (*Controller, error) {
	c, err := newController(cfg, engine, submitter, opts...)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.requestEngineMoveLocked()
	c.mu.Unlock()
	return c, nil
}

// Restore rebuilds a session from its snapshot by replaying the moves. cfg
// supplies runtime tuning; identity comes from snap.
func Restore(cfg Config, snap Snapshot, engine EngineClient, submitter Submitter, opts ...Option) (*Controller, error) {
	cfg.ID = snap.ID
	cfg.Difficulty = snap.Difficulty
	cfg.HumanSide = snap.HumanSide
	cfg.PlayerName = snap.PlayerName
	cfg.StartFEN = snap.StartFEN

	c, err := newController(cfg, engine, submitter, opts...)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for i, mv := range snap.Moves {
		if err := c.pushLocked(mv); err != nil {
			c.cancel()
			return nil, fmt.Errorf("replay move %d %q: %w", i, mv, err)
		}
	}
	if snap.Method == methodResignation && c.game.Outcome() == nchess.NoOutcome {
		c.game.Resign(colorOf(c.cfg.HumanSide))
	}

	mover := sideOf(c.game.Position().Turn()).Opponent()
	terminal := c.resolveOutcomeLocked(mover)
	c.timer.Restore(snap.Elapsed, snap.TimerRunning && !terminal)
	if terminal || snap.Submitted {
		c.gate.MarkFired()
	}
	if !snap.StartedAt.IsZero() {
		c.startedAt = snap.StartedAt
	}
	if !snap.UpdatedAt.IsZero() {
		c.updatedAt = snap.UpdatedAt
	}
	c.requestEngineMoveLocked()
	return c, nil
}

func newController(cfg Config, engine EngineClient, submitter Submitter, opts ...Option) (*Controller, error) {
	if !cfg.Difficulty.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidDifficulty, cfg.Difficulty)
	}
	if cfg.HumanSide == "" {
		cfg.HumanSide = domain.SideWhite
	}
	if cfg.HumanSide != domain.SideWhite && cfg.HumanSide != domain.SideBlack {
		return nil, fmt.Errorf("invalid human side %q", cfg.HumanSide)
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.EngineTimeout <= 0 {
		cfg.EngineTimeout = defaultEngineTimeout
	}
	cfg.PlayerName = strings.TrimSpace(cfg.PlayerName)

	g, err := newGame(cfg.StartFEN)
	if err != nil {
		return nil, err
	}

	c := &Controller{
		engine:    engine,
		submitter: submitter,
		logger:    zap.NewNop(),
		now:       time.Now,
		events:    newBroker(),
		cfg:       cfg,
		game:      g,
		outcome:   domain.OutcomeOngoing,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("session_id", cfg.ID))
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.timer = c.newTimer()
	c.gate = c.newGate()
	c.startedAt = c.now()
	c.updatedAt = c.startedAt
	return c, nil
}

func newGame(fen string) (*nchess.Game, error) {
	if strings.TrimSpace(fen) == "" || fen == "startpos" {
		return nchess.NewGame(), nil
	}
	opt, err := nchess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("parse fen %q: %w", fen, err)
	}
	return nchess.NewGame(opt), nil
}

func (c *Controller) newTimer() *Timer {
	t := NewTimer(c.now)
	if c.cfg.TickInterval > 0 {
		t.OnTick(c.cfg.TickInterval, func(elapsed int) {
			c.events.publish(Event{Type: EventTimer, Elapsed: elapsed})
		})
	}
	return t
}

func (c *Controller) newGate() *SubmissionGate {
	return NewSubmissionGate(c.submitter, c.logger, func(res SubmitResult) {
		ev := Event{Type: EventLeaderboard, Entry: &res}
		if res.Err != nil {
			ev.Message = res.Err.Error()
		}
		c.events.publish(ev)
	})
}

func (c *Controller) ID() string {
	return c.cfg.ID
}

// ApplyHumanMove validates and plays the human's move. A pawn reaching the
// last rank without promotion suspends the move and returns
// ErrPromotionRequired; SelectPromotion completes it.
func (c *Controller) ApplyHumanMove(from, to, promotion string) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.humanMayMoveLocked(); err != nil {
		return c.stateLocked(), err
	}
	if c.promotion != nil {
		return c.stateLocked(), ErrPromotionPending
	}

	fromSq, err := parseSquare(from)
	if err != nil {
		return c.stateLocked(), err
	}
	toSq, err := parseSquare(to)
	if err != nil {
		return c.stateLocked(), err
	}

	options, reason := c.humanOptionsLocked(fromSq)
	if reason != "" {
		return c.stateLocked(), &MoveRejectedError{From: fromSq.String(), To: toSq.String(), Reason: reason}
	}

	var (
		found    bool
		promotes bool
	)
	for _, o := range options {
		if o.to == toSq {
			found = true
			promotes = promotes || o.promotes
		}
	}
	if !found {
		return c.stateLocked(), &MoveRejectedError{
			From:    fromSq.String(),
			To:      toSq.String(),
			Reason:  "destination not reachable",
			Targets: targetNames(options),
		}
	}

	uciMove := fromSq.String() + toSq.String()
	if promotes {
		if strings.TrimSpace(promotion) == "" {
			c.promotion = &PendingPromotion{From: fromSq.String(), To: toSq.String()}
			st := c.stateLocked()
			c.events.publish(Event{Type: EventState, State: &st})
			return st, ErrPromotionRequired
		}
		piece := normalizePromotion(promotion)
		if piece == "" {
			return c.stateLocked(), ErrInvalidPromotion
		}
		uciMove += piece
	}
	return c.applyHumanLocked(uciMove)
}

// SelectPromotion completes a suspended promotion with q, r, b or n.
func (c *Controller) SelectPromotion(piece string) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return c.stateLocked(), ErrClosed
	}
	if c.promotion == nil {
		return c.stateLocked(), ErrNoPendingPromotion
	}
	p := normalizePromotion(piece)
	if p == "" {
		return c.stateLocked(), ErrInvalidPromotion
	}
	return c.applyHumanLocked(c.promotion.From + c.promotion.To + p)
}

func (c *Controller) CancelPromotion() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.promotion != nil {
		c.promotion = nil
		st := c.stateLocked()
		c.events.publish(Event{Type: EventState, State: &st})
		return st
	}
	return c.stateLocked()
}

func (c *Controller) applyHumanLocked(uciMove string) (State, error) {
	mover := c.cfg.HumanSide
	if err := c.pushLocked(uciMove); err != nil {
		return c.stateLocked(), err
	}
	c.promotion = nil
	c.timer.Start()
	c.touchLocked()

	if !c.checkTerminalLocked(mover) {
		c.requestEngineMoveLocked()
	}
	st := c.stateLocked()
	c.events.publish(Event{Type: EventState, State: &st, Move: uciMove})
	return st, nil
}

// LegalTargets lists where the human's piece on square may move. It is
// empty when the square holds no human piece or the human cannot move now.
func (c *Controller) LegalTargets(square string) ([]string, error) {
	sq, err := parseSquare(square)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.humanMayMoveLocked() != nil {
		return []string{}, nil
	}
	options, _ := c.humanOptionsLocked(sq)
	return targetNames(options), nil
}

// RequestEngineMove issues a search for the current position when the engine
// is to move and nothing is outstanding. It reports whether a request was
// issued.
func (c *Controller) RequestEngineMove() (State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	issued := c.requestEngineMoveLocked()
	st := c.stateLocked()
	if issued {
		c.events.publish(Event{Type: EventState, State: &st})
	}
	return st, issued
}

func (c *Controller) requestEngineMoveLocked() bool {
	if c.closed || c.outcome.Terminal() || c.pending != nil || c.promotion != nil {
		return false
	}
	if sideOf(c.game.Position().Turn()) == c.cfg.HumanSide {
		return false
	}
	req := engineRequest{token: uuid.NewString(), ply: len(c.moves)}
	c.pending = &req
	c.engineErr = ""

	c.wg.Add(1)
	go c.runEngine(req, c.game.FEN(), c.cfg.Difficulty, c.cfg.EngineDelay, c.cfg.EngineTimeout)
	return true
}

func (c *Controller) runEngine(req engineRequest, fen string, d domain.Difficulty, delay, timeout time.Duration) {
	defer c.wg.Done()

	if delay > 0 {
		t := time.NewTimer(delay)
		select {
		case <-c.ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
	if c.engine == nil {
		c.engineFailed(req, ErrEngineUnavailable)
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, timeout)
	defer cancel()
	resp, err := c.engine.BestMove(ctx, chess.MoveRequest{Token: req.token, FEN: fen, Difficulty: d})
	if err != nil {
		c.engineFailed(req, err)
		return
	}
	c.ApplyEngineMove(EngineReply{Token: resp.Token, Ply: req.ply, Move: resp.Move})
}

// ApplyEngineMove plays an engine reply if it answers the outstanding
// request. Anything else is dropped silently.
func (c *Controller) ApplyEngineMove(reply EngineReply) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	if c.pending == nil || reply.Token != c.pending.token || reply.Ply != c.pending.ply || reply.Ply != len(c.moves) {
		c.logger.Debug("stale engine response discarded",
			zap.String("token", reply.Token),
			zap.Int("ply", reply.Ply),
			zap.Int("current_ply", len(c.moves)),
		)
		if c.onStale != nil {
			c.onStale()
		}
		return false
	}

	c.pending = nil
	mover := sideOf(c.game.Position().Turn())
	if err := c.pushLocked(reply.Move); err != nil {
		c.engineErr = err.Error()
		c.logger.Warn("engine returned unplayable move",
			zap.String("move", reply.Move),
			zap.Error(err),
		)
		st := c.stateLocked()
		c.events.publish(Event{Type: EventEngineError, State: &st, Message: c.engineErr})
		return false
	}
	c.touchLocked()
	c.checkTerminalLocked(mover)

	st := c.stateLocked()
	c.events.publish(Event{Type: EventEngineMove, State: &st, Move: strings.ToLower(reply.Move)})
	return true
}

func (c *Controller) engineFailed(req engineRequest, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.pending == nil || c.pending.token != req.token {
		return
	}
	c.pending = nil
	c.engineErr = err.Error()
	c.logger.Warn("engine search failed",
		zap.String("difficulty", string(c.cfg.Difficulty)),
		zap.Int("ply", req.ply),
		zap.Error(err),
	)
	st := c.stateLocked()
	c.events.publish(Event{Type: EventEngineError, State: &st, Message: c.engineErr})
}

// NewGame discards the current game. The pending promotion and the engine
// token are cleared, so a late engine answer for the old position is ignored.
func (c *Controller) NewGame(opts NewGameOptions) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return c.stateLocked(), ErrClosed
	}
	if opts.Difficulty != "" {
		if !opts.Difficulty.Valid() {
			return c.stateLocked(), fmt.Errorf("%w: %q", domain.ErrInvalidDifficulty, opts.Difficulty)
		}
		c.cfg.Difficulty = opts.Difficulty
	}
	if opts.HumanSide != "" {
		if opts.HumanSide != domain.SideWhite && opts.HumanSide != domain.SideBlack {
			return c.stateLocked(), fmt.Errorf("invalid human side %q", opts.HumanSide)
		}
		c.cfg.HumanSide = opts.HumanSide
	}

	g, err := newGame(c.cfg.StartFEN)
	if err != nil {
		return c.stateLocked(), err
	}
	c.game = g
	c.moves = nil
	c.outcome = domain.OutcomeOngoing
	c.method = ""
	c.pending = nil
	c.promotion = nil
	c.engineErr = ""
	c.timer.Reset()
	if c.gate.Fired() {
		c.retired = append(c.retired, c.gate)
	}
	c.gate = c.newGate()
	c.startedAt = c.now()
	c.touchLocked()

	c.logger.Info("new game",
		zap.String("difficulty", string(c.cfg.Difficulty)),
		zap.String("human_side", string(c.cfg.HumanSide)),
	)

	c.requestEngineMoveLocked()
	st := c.stateLocked()
	c.events.publish(Event{Type: EventState, State: &st})
	return st, nil
}

func (c *Controller) Resign() (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return c.stateLocked(), ErrClosed
	}
	if c.outcome.Terminal() {
		return c.stateLocked(), ErrGameOver
	}
	c.pending = nil
	c.promotion = nil
	c.game.Resign(colorOf(c.cfg.HumanSide))
	c.touchLocked()
	c.checkTerminalLocked(c.cfg.HumanSide.Opponent())

	st := c.stateLocked()
	c.events.publish(Event{Type: EventState, State: &st})
	return st, nil
}

func (c *Controller) SetPlayerName(name string) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.PlayerName = strings.TrimSpace(name)
	c.touchLocked()
	st := c.stateLocked()
	c.events.publish(Event{Type: EventState, State: &st})
	return st
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		ID:           c.cfg.ID,
		Difficulty:   c.cfg.Difficulty,
		HumanSide:    c.cfg.HumanSide,
		PlayerName:   c.cfg.PlayerName,
		StartFEN:     c.cfg.StartFEN,
		Moves:        append([]string(nil), c.moves...),
		Elapsed:      c.timer.Elapsed(),
		TimerRunning: c.timer.Running(),
		Outcome:      c.outcome,
		Method:       c.method,
		Submitted:    c.gate.Fired(),
		StartedAt:    c.startedAt,
		UpdatedAt:    c.updatedAt,
	}
}

// Position returns a copy of the current game for read-only use such as
// rendering.
func (c *Controller) Position() *nchess.Game {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.game.Clone()
}

func (c *Controller) UpdatedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.updatedAt
}

// Subscribe returns a channel of change notifications and a function that
// ends the subscription. The channel is closed when the controller closes.
func (c *Controller) Subscribe(buffer int) (<-chan Event, func()) {
	return c.events.subscribe(buffer)
}

// Close stops the tick goroutine, abandons any engine search and waits for
// in-flight leaderboard submissions.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.pending = nil
	c.cancel()
	c.timer.Close()
	gates := append(append([]*SubmissionGate(nil), c.retired...), c.gate)
	c.mu.Unlock()

	c.wg.Wait()
	for _, g := range gates {
		g.Wait()
	}
	c.events.close()
}

func (c *Controller) humanMayMoveLocked() error {
	switch {
	case c.closed:
		return ErrClosed
	case c.outcome.Terminal():
		return ErrGameOver
	case c.pending != nil:
		return ErrNotYourTurn
	case sideOf(c.game.Position().Turn()) != c.cfg.HumanSide:
		return ErrNotYourTurn
	}
	return nil
}

func (c *Controller) humanOptionsLocked(sq nchess.Square) ([]moveOption, string) {
	piece := c.game.Position().Board().Piece(sq)
	if piece == nchess.NoPiece {
		return nil, "no piece on " + sq.String()
	}
	if piece.Color() != colorOf(c.cfg.HumanSide) {
		return nil, "piece on " + sq.String() + " belongs to the engine"
	}
	var out []moveOption
	for _, mv := range c.game.ValidMoves() {
		if mv.S1() != sq {
			continue
		}
		out = append(out, moveOption{to: mv.S2(), promotes: mv.Promo() != nchess.NoPieceType})
	}
	return out, ""
}

func (c *Controller) pushLocked(uciMove string) error {
	uciMove = strings.ToLower(strings.TrimSpace(uciMove))
	mv, err := nchess.UCINotation{}.Decode(c.game.Position(), uciMove)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrIllegalMove, uciMove)
	}
	if err := c.game.Move(mv, nil); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrIllegalMove, uciMove, err)
	}
	c.moves = append(c.moves, uciMove)
	return nil
}

// checkTerminalLocked runs after every applied move. On the terminal
// transition the clock freezes and the submission gate is consulted.
func (c *Controller) checkTerminalLocked(mover domain.Side) bool {
	if c.outcome.Terminal() {
		return true
	}
	if !c.resolveOutcomeLocked(mover) {
		return false
	}

	c.pending = nil
	c.promotion = nil
	c.timer.Stop()
	elapsed := c.timer.Elapsed()

	c.logger.Info("game finished",
		zap.String("outcome", string(c.outcome)),
		zap.String("method", c.method),
		zap.Int("elapsed_seconds", elapsed),
		zap.Int("plies", len(c.moves)),
	)
	if c.onTerminal != nil {
		c.onTerminal(c.outcome)
	}
	c.gate.Evaluate(c.outcome, Submission{
		Difficulty:  c.cfg.Difficulty,
		PlayerName:  c.cfg.PlayerName,
		TimeSeconds: elapsed,
	})

	st := c.stateLocked()
	c.events.publish(Event{Type: EventTerminal, State: &st})
	return true
}

// resolveOutcomeLocked maps the oracle's verdict onto the human/engine
// outcome. A checkmate is credited to mover, never inferred from turn order.
func (c *Controller) resolveOutcomeLocked(mover domain.Side) bool {
	if c.game.Outcome() == nchess.NoOutcome {
		c.claimDrawLocked()
	}

	switch c.game.Outcome() {
	case nchess.NoOutcome:
		return false
	case nchess.Draw:
		c.outcome = domain.OutcomeDraw
	default:
		winner := mover
		if c.game.Method() != nchess.Checkmate {
			winner = domain.SideBlack
			if c.game.Outcome() == nchess.WhiteWon {
				winner = domain.SideWhite
			}
		}
		if winner == c.cfg.HumanSide {
			c.outcome = domain.OutcomeHumanWins
		} else {
			c.outcome = domain.OutcomeEngineWins
		}
	}
	c.method = methodName(c.game.Method())
	return true
}

// claimDrawLocked ends the game on a threefold repetition or fifty-move
// position without waiting for a claim.
func (c *Controller) claimDrawLocked() {
	for _, m := range c.game.EligibleDraws() {
		if m != nchess.ThreefoldRepetition && m != nchess.FiftyMoveRule {
			continue
		}
		if err := c.game.Draw(m); err == nil {
			return
		}
	}
}

func (c *Controller) touchLocked() {
	c.updatedAt = c.now()
}

func (c *Controller) stateLocked() State {
	pos := c.game.Position()
	st := State{
		ID:             c.cfg.ID,
		Difficulty:     c.cfg.Difficulty,
		HumanSide:      c.cfg.HumanSide,
		PlayerName:     c.cfg.PlayerName,
		FEN:            c.game.FEN(),
		Turn:           sideOf(pos.Turn()),
		Moves:          append([]string{}, c.moves...),
		SAN:            c.sanLocked(),
		Outcome:        c.outcome,
		Method:         c.method,
		EnginePending:  c.pending != nil,
		EngineError:    c.engineErr,
		ElapsedSeconds: c.timer.Elapsed(),
		TimerRunning:   c.timer.Running(),
		Submitted:      c.gate.Fired(),
		StartedAt:      c.startedAt,
		UpdatedAt:      c.updatedAt,
	}
	if n := len(c.moves); n > 0 {
		st.LastMove = c.moves[n-1]
	}
	if moves := c.game.Moves(); len(moves) > 0 {
		st.InCheck = moves[len(moves)-1].HasTag(nchess.Check)
	}
	if c.promotion != nil {
		p := *c.promotion
		st.PendingPromotion = &p
	}
	return st
}

func (c *Controller) sanLocked() []string {
	positions := c.game.Positions()
	moves := c.game.Moves()
	out := make([]string, len(moves))
	notation := nchess.AlgebraicNotation{}
	for i, mv := range moves {
		if i < len(positions) {
			out[i] = notation.Encode(positions[i], mv)
		}
	}
	return out
}

const methodResignation = "resignation"

func methodName(m nchess.Method) string {
	switch m {
	case nchess.Checkmate:
		return "checkmate"
	case nchess.Resignation:
		return methodResignation
	case nchess.Stalemate:
		return "stalemate"
	case nchess.InsufficientMaterial:
		return "insufficient_material"
	case nchess.ThreefoldRepetition:
		return "threefold_repetition"
	case nchess.FivefoldRepetition:
		return "fivefold_repetition"
	case nchess.FiftyMoveRule:
		return "fifty_move_rule"
	case nchess.SeventyFiveMoveRule:
		return "seventy_five_move_rule"
	default:
		return strings.ToLower(m.String())
	}
}

func parseSquare(s string) (nchess.Square, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 2 || s[0] < 'a' || s[0] > 'h' || s[1] < '1' || s[1] > '8' {
		return nchess.NoSquare, fmt.Errorf("%w: %q", ErrInvalidSquare, s)
	}
	return nchess.NewSquare(nchess.File(s[0]-'a'), nchess.Rank(s[1]-'1')), nil
}

func targetNames(options []moveOption) []string {
	seen := make(map[string]struct{}, len(options))
	out := make([]string, 0, len(options))
	for _, o := range options {
		name := o.to.String()
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func normalizePromotion(p string) string {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case "q", "queen":
		return "q"
	case "r", "rook":
		return "r"
	case "b", "bishop":
		return "b"
	case "n", "knight":
		return "n"
	default:
		return ""
	}
}

func sideOf(c nchess.Color) domain.Side {
	if c == nchess.White {
		return domain.SideWhite
	}
	return domain.SideBlack
}

func colorOf(s domain.Side) nchess.Color {
	if s == domain.SideWhite {
		return nchess.White
	}
	return nchess.Black
}
