package httpapi

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/park285/cheese-chess-web/internal/domain"
	"github.com/park285/cheese-chess-web/internal/leaderboard"
	"github.com/park285/cheese-chess-web/pkg/chessdto"
)

const (
	msgInvalidDifficulty = "Invalid difficulty level"
	msgConfigError       = "Database configuration error"
	msgConnectionError   = "Database connection error"
	msgInvalidBody       = "Invalid request body"
	msgInvalidPlayer     = "Invalid player name"
	msgInvalidTime       = "Invalid time"
)

func (s *Server) handleLeaderboardGet(w http.ResponseWriter, r *http.Request) {
	d := domain.Difficulty(r.URL.Query().Get("difficulty"))
	if !d.Valid() {
		writeJSON(w, http.StatusBadRequest, chessdto.ErrorResponse{Error: msgInvalidDifficulty})
		return
	}
	entries, err := s.deps.Leaderboard.Top(r.Context(), d)
	if err != nil {
		s.writeLeaderboardError(w, r, err)
		return
	}
	out := make([]chessdto.LeaderboardEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryDTO(e, 0))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleLeaderboardPost(w http.ResponseWriter, r *http.Request) {
	var req chessdto.SubmitScoreRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, chessdto.ErrorResponse{Error: msgInvalidBody})
		return
	}
	d := domain.Difficulty(req.Difficulty)
	if !d.Valid() {
		writeJSON(w, http.StatusBadRequest, chessdto.ErrorResponse{Error: msgInvalidDifficulty})
		return
	}
	if req.TimeSeconds == nil {
		writeJSON(w, http.StatusBadRequest, chessdto.ErrorResponse{Error: msgInvalidTime})
		return
	}
	placement, err := s.deps.Leaderboard.Record(r.Context(), d, req.PlayerName, *req.TimeSeconds)
	if err != nil {
		s.writeLeaderboardError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entryDTO(placement.Entry, placement.Rank))
}

func (s *Server) handleLeaderboardInit(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Leaderboard.Init(r.Context()); err != nil {
		s.writeLeaderboardError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeLeaderboardError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidDifficulty):
		writeJSON(w, http.StatusBadRequest, chessdto.ErrorResponse{Error: msgInvalidDifficulty})
	case errors.Is(err, leaderboard.ErrInvalidPlayerName):
		writeJSON(w, http.StatusBadRequest, chessdto.ErrorResponse{Error: msgInvalidPlayer})
	case errors.Is(err, leaderboard.ErrInvalidTime):
		writeJSON(w, http.StatusBadRequest, chessdto.ErrorResponse{Error: msgInvalidTime})
	case errors.Is(err, leaderboard.ErrNotConfigured):
		s.log.Error("DATABASE_URL is not set", zap.String("path", r.URL.Path))
		writeJSON(w, http.StatusInternalServerError, chessdto.ErrorResponse{Error: msgConfigError})
	default:
		s.log.Error("leaderboard request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		body := chessdto.ErrorResponse{Error: msgConnectionError}
		if s.deps.Development {
			body.Details = err.Error()
		}
		writeJSON(w, http.StatusInternalServerError, body)
	}
}

func entryDTO(e domain.LeaderboardEntry, rank int) chessdto.LeaderboardEntry {
	return chessdto.LeaderboardEntry{
		ID:          e.ID,
		PlayerName:  e.PlayerName,
		TimeSeconds: e.TimeSeconds,
		CreatedAt:   e.CreatedAt,
		Rank:        rank,
	}
}
