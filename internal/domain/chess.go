package domain

import (
	"errors"
	"strings"
	"time"
)

var ErrInvalidDifficulty = errors.New("invalid difficulty level")

// Difficulty selects both the engine preset and the leaderboard partition.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Difficulties lists every valid difficulty in display order.
var Difficulties = []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard}

func ParseDifficulty(raw string) (Difficulty, error) {
	switch Difficulty(strings.ToLower(strings.TrimSpace(raw))) {
	case DifficultyEasy:
		return DifficultyEasy, nil
	case DifficultyMedium:
		return DifficultyMedium, nil
	case DifficultyHard:
		return DifficultyHard, nil
	default:
		return "", ErrInvalidDifficulty
	}
}

func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	default:
		return false
	}
}

// Side is the colour a participant plays.
type Side string

const (
	SideWhite Side = "white"
	SideBlack Side = "black"
)

func ParseSide(raw string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "white", "w":
		return SideWhite, nil
	case "black", "b":
		return SideBlack, nil
	default:
		return "", errors.New("invalid side")
	}
}

func (s Side) Opponent() Side {
	if s == SideWhite {
		return SideBlack
	}
	return SideWhite
}

// Outcome is the terminal classification of a game. Once it leaves
// OutcomeOngoing it never changes.
type Outcome string

const (
	OutcomeOngoing    Outcome = "ongoing"
	OutcomeHumanWins  Outcome = "human_wins"
	OutcomeEngineWins Outcome = "engine_wins"
	OutcomeDraw       Outcome = "draw"
)

func (o Outcome) Terminal() bool {
	return o != "" && o != OutcomeOngoing
}

// LeaderboardEntry is one ranked row of a difficulty table.
type LeaderboardEntry struct {
	ID          int64     `json:"id"`
	PlayerName  string    `json:"player_name"`
	TimeSeconds int       `json:"time_seconds"`
	CreatedAt   time.Time `json:"created_at"`
}
