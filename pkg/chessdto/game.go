package chessdto

import "time"

type PendingPromotion struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// GameState is the client view of one session.
type GameState struct {
	ID               string            `json:"id"`
	Difficulty       string            `json:"difficulty"`
	HumanSide        string            `json:"human_side"`
	PlayerName       string            `json:"player_name"`
	FEN              string            `json:"fen"`
	Turn             string            `json:"turn"`
	Moves            []string          `json:"moves"`
	SAN              []string          `json:"san"`
	LastMove         string            `json:"last_move,omitempty"`
	InCheck          bool              `json:"in_check"`
	Outcome          string            `json:"outcome"`
	Method           string            `json:"method,omitempty"`
	Message          string            `json:"message,omitempty"`
	EnginePending    bool              `json:"engine_pending"`
	EngineError      string            `json:"engine_error,omitempty"`
	PendingPromotion *PendingPromotion `json:"pending_promotion,omitempty"`
	ElapsedSeconds   int               `json:"elapsed_seconds"`
	ElapsedDisplay   string            `json:"elapsed_display"`
	TimerRunning     bool              `json:"timer_running"`
	Submitted        bool              `json:"submitted"`
	StartedAt        time.Time         `json:"started_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

type CreateGameRequest struct {
	Difficulty string `json:"difficulty"`
	HumanSide  string `json:"human_side"`
	PlayerName string `json:"player_name"`
}

type MoveRequest struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
}

type PromotionRequest struct {
	Piece string `json:"piece"`
}

// NewGameRequest fields are optional; empty keeps the current setting.
type NewGameRequest struct {
	Difficulty string `json:"difficulty,omitempty"`
	HumanSide  string `json:"human_side,omitempty"`
}

type PlayerRequest struct {
	Name string `json:"name"`
}

type TargetsResponse struct {
	Square  string   `json:"square"`
	Targets []string `json:"targets"`
}

// GameEvent is one frame of the events WebSocket.
type GameEvent struct {
	Type    string            `json:"type"`
	State   *GameState        `json:"state,omitempty"`
	Move    string            `json:"move,omitempty"`
	Elapsed int               `json:"elapsed,omitempty"`
	Entry   *LeaderboardEntry `json:"entry,omitempty"`
	Message string            `json:"message,omitempty"`
}

type Theme struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Light string `json:"light"`
	Dark  string `json:"dark"`
}
