package chessdto

import "time"

type LeaderboardEntry struct {
	ID          int64     `json:"id"`
	PlayerName  string    `json:"player_name"`
	TimeSeconds int       `json:"time_seconds"`
	CreatedAt   time.Time `json:"created_at"`
	// Rank is set on insert responses; 0 means the time did not place.
	Rank int `json:"rank,omitempty"`
}

type SubmitScoreRequest struct {
	Difficulty  string `json:"difficulty"`
	PlayerName  string `json:"player_name"`
	TimeSeconds *int   `json:"time_seconds"`
}
