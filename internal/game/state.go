package game

import (
	"time"

	"github.com/park285/cheese-chess-web/internal/domain"
)

type PendingPromotion struct {
	From string
	To   string
}

// State is a read-only copy of a session taken under the controller lock.
type State struct {
	ID               string
	Difficulty       domain.Difficulty
	HumanSide        domain.Side
	PlayerName       string
	FEN              string
	Turn             domain.Side
	Moves            []string
	SAN              []string
	LastMove         string
	InCheck          bool
	Outcome          domain.Outcome
	Method           string
	EnginePending    bool
	EngineError      string
	PendingPromotion *PendingPromotion
	ElapsedSeconds   int
	TimerRunning     bool
	Submitted        bool
	StartedAt        time.Time
	UpdatedAt        time.Time
}

func (s State) HumanToMove() bool {
	return !s.Outcome.Terminal() && !s.EnginePending && s.Turn == s.HumanSide
}

// Snapshot is the persisted form of a session. Replaying Moves from StartFEN
// rebuilds the position.
type Snapshot struct {
	ID           string            `json:"id"`
	Difficulty   domain.Difficulty `json:"difficulty"`
	HumanSide    domain.Side       `json:"human_side"`
	PlayerName   string            `json:"player_name"`
	StartFEN     string            `json:"start_fen,omitempty"`
	Moves        []string          `json:"moves"`
	Elapsed      int               `json:"elapsed"`
	TimerRunning bool              `json:"timer_running"`
	Outcome      domain.Outcome    `json:"outcome"`
	Method       string            `json:"method,omitempty"`
	Submitted    bool              `json:"submitted"`
	StartedAt    time.Time         `json:"started_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}
