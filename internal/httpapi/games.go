package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/park285/cheese-chess-web/internal/domain"
	"github.com/park285/cheese-chess-web/internal/game"
	"github.com/park285/cheese-chess-web/internal/leaderboard"
	"github.com/park285/cheese-chess-web/internal/service/session"
	"github.com/park285/cheese-chess-web/pkg/chessdto"
)

func errorBody(code, message string, retryable bool) chessdto.DomainError {
	return chessdto.DomainError{Code: code, Message: message, Retryable: retryable}
}

func (s *Server) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	var req chessdto.CreateGameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid_request", "invalid request body", false))
		return
	}
	d, err := domain.ParseDifficulty(req.Difficulty)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid_difficulty", err.Error(), false))
		return
	}
	side, err := domain.ParseSide(req.HumanSide)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid_side", err.Error(), false))
		return
	}
	ctrl, err := s.deps.Sessions.Create(r.Context(), session.CreateRequest{
		Difficulty: d,
		HumanSide:  side,
		PlayerName: req.PlayerName,
	})
	if err != nil {
		s.writeGameError(w, r, nil, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.stateDTO(ctrl.State()))
}

// withGame resolves {id} and hands the controller to fn.
func (s *Server) withGame(fn func(w http.ResponseWriter, r *http.Request, ctrl *game.Controller)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctrl, err := s.deps.Sessions.Get(r.Context(), r.PathValue("id"))
		if err != nil {
			s.writeGameError(w, r, nil, err)
			return
		}
		fn(w, r, ctrl)
	}
}

func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	s.withGame(func(w http.ResponseWriter, _ *http.Request, ctrl *game.Controller) {
		writeJSON(w, http.StatusOK, s.stateDTO(ctrl.State()))
	})(w, r)
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	s.withGame(func(w http.ResponseWriter, r *http.Request, ctrl *game.Controller) {
		var req chessdto.MoveRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid_request", "invalid request body", false))
			return
		}
		st, err := ctrl.ApplyHumanMove(req.From, req.To, req.Promotion)
		if err != nil {
			s.writeGameError(w, r, &st, err)
			return
		}
		writeJSON(w, http.StatusOK, s.stateDTO(st))
	})(w, r)
}

func (s *Server) handlePromotion(w http.ResponseWriter, r *http.Request) {
	s.withGame(func(w http.ResponseWriter, r *http.Request, ctrl *game.Controller) {
		var req chessdto.PromotionRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid_request", "invalid request body", false))
			return
		}
		st, err := ctrl.SelectPromotion(req.Piece)
		if err != nil {
			s.writeGameError(w, r, &st, err)
			return
		}
		writeJSON(w, http.StatusOK, s.stateDTO(st))
	})(w, r)
}

func (s *Server) handleCancelPromotion(w http.ResponseWriter, r *http.Request) {
	s.withGame(func(w http.ResponseWriter, _ *http.Request, ctrl *game.Controller) {
		writeJSON(w, http.StatusOK, s.stateDTO(ctrl.CancelPromotion()))
	})(w, r)
}

func (s *Server) handleTargets(w http.ResponseWriter, r *http.Request) {
	s.withGame(func(w http.ResponseWriter, r *http.Request, ctrl *game.Controller) {
		square := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("square")))
		targets, err := ctrl.LegalTargets(square)
		if err != nil {
			s.writeGameError(w, r, nil, err)
			return
		}
		writeJSON(w, http.StatusOK, chessdto.TargetsResponse{Square: square, Targets: targets})
	})(w, r)
}

func (s *Server) handleEngineMove(w http.ResponseWriter, r *http.Request) {
	s.withGame(func(w http.ResponseWriter, _ *http.Request, ctrl *game.Controller) {
		st, issued := ctrl.RequestEngineMove()
		status := http.StatusOK
		if issued {
			status = http.StatusAccepted
		}
		writeJSON(w, status, s.stateDTO(st))
	})(w, r)
}

func (s *Server) handleNewGame(w http.ResponseWriter, r *http.Request) {
	s.withGame(func(w http.ResponseWriter, r *http.Request, ctrl *game.Controller) {
		// The body is optional; an empty one keeps the current settings.
		var req chessdto.NewGameRequest
		if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid_request", "invalid request body", false))
			return
		}
		var opts game.NewGameOptions
		if strings.TrimSpace(req.Difficulty) != "" {
			d, err := domain.ParseDifficulty(req.Difficulty)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, errorBody("invalid_difficulty", err.Error(), false))
				return
			}
			opts.Difficulty = d
		}
		if strings.TrimSpace(req.HumanSide) != "" {
			side, err := domain.ParseSide(req.HumanSide)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, errorBody("invalid_side", err.Error(), false))
				return
			}
			opts.HumanSide = side
		}
		st, err := ctrl.NewGame(opts)
		if err != nil {
			s.writeGameError(w, r, &st, err)
			return
		}
		writeJSON(w, http.StatusOK, s.stateDTO(st))
	})(w, r)
}

func (s *Server) handleResign(w http.ResponseWriter, r *http.Request) {
	s.withGame(func(w http.ResponseWriter, r *http.Request, ctrl *game.Controller) {
		st, err := ctrl.Resign()
		if err != nil {
			s.writeGameError(w, r, &st, err)
			return
		}
		writeJSON(w, http.StatusOK, s.stateDTO(st))
	})(w, r)
}

func (s *Server) handlePlayer(w http.ResponseWriter, r *http.Request) {
	s.withGame(func(w http.ResponseWriter, r *http.Request, ctrl *game.Controller) {
		var req chessdto.PlayerRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid_request", "invalid request body", false))
			return
		}
		name := strings.TrimSpace(req.Name)
		if name != "" {
			normalized, err := leaderboard.NormalizeName(name)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, errorBody("invalid_player_name", err.Error(), false))
				return
			}
			name = normalized
		}
		writeJSON(w, http.StatusOK, s.stateDTO(ctrl.SetPlayerName(name)))
	})(w, r)
}

type gameError struct {
	status    int
	code      string
	retryable bool
}

// gameErrors maps controller and session sentinels to HTTP answers, in
// match order.
var gameErrors = []struct {
	err error
	gameError
}{
	{game.ErrPromotionRequired, gameError{http.StatusConflict, "promotion_required", false}},
	{game.ErrPromotionPending, gameError{http.StatusConflict, "promotion_pending", false}},
	{game.ErrNoPendingPromotion, gameError{http.StatusConflict, "no_pending_promotion", false}},
	{game.ErrNotYourTurn, gameError{http.StatusConflict, "not_your_turn", true}},
	{game.ErrGameOver, gameError{http.StatusConflict, "game_over", false}},
	{game.ErrIllegalMove, gameError{http.StatusUnprocessableEntity, "illegal_move", false}},
	{game.ErrInvalidSquare, gameError{http.StatusBadRequest, "invalid_square", false}},
	{game.ErrInvalidPromotion, gameError{http.StatusBadRequest, "invalid_promotion", false}},
	{game.ErrClosed, gameError{http.StatusGone, "session_closed", true}},
	{domain.ErrInvalidDifficulty, gameError{http.StatusBadRequest, "invalid_difficulty", false}},
	{session.ErrSessionNotFound, gameError{http.StatusNotFound, "session_not_found", false}},
}

func (s *Server) writeGameError(w http.ResponseWriter, r *http.Request, st *game.State, err error) {
	body := errorBody("internal_error", err.Error(), true)
	status := http.StatusInternalServerError
	for _, m := range gameErrors {
		if errors.Is(err, m.err) {
			status = m.status
			body.Code = m.code
			body.Retryable = m.retryable
			break
		}
	}
	var rejected *game.MoveRejectedError
	if errors.As(err, &rejected) {
		body.Targets = rejected.Targets
		if body.Targets == nil {
			body.Targets = []string{}
		}
	}
	if st != nil && st.ID != "" {
		dto := s.stateDTO(*st)
		body.State = &dto
	}
	if status == http.StatusInternalServerError {
		s.log.Error("game request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		body.Message = "internal server error"
	} else {
		s.log.Debug("game request rejected",
			zap.String("path", r.URL.Path),
			zap.String("code", body.Code),
			zap.Error(err),
		)
	}
	writeJSON(w, status, body)
}

func (s *Server) stateDTO(st game.State) chessdto.GameState {
	dto := chessdto.GameState{
		ID:             st.ID,
		Difficulty:     string(st.Difficulty),
		HumanSide:      string(st.HumanSide),
		PlayerName:     st.PlayerName,
		FEN:            st.FEN,
		Turn:           string(st.Turn),
		Moves:          st.Moves,
		SAN:            st.SAN,
		LastMove:       st.LastMove,
		InCheck:        st.InCheck,
		Outcome:        string(st.Outcome),
		Method:         st.Method,
		EnginePending:  st.EnginePending,
		EngineError:    st.EngineError,
		ElapsedSeconds: st.ElapsedSeconds,
		ElapsedDisplay: leaderboard.FormatTime(st.ElapsedSeconds),
		TimerRunning:   st.TimerRunning,
		Submitted:      st.Submitted,
		StartedAt:      st.StartedAt,
		UpdatedAt:      st.UpdatedAt,
	}
	if dto.Moves == nil {
		dto.Moves = []string{}
	}
	if dto.SAN == nil {
		dto.SAN = []string{}
	}
	if st.PendingPromotion != nil {
		dto.PendingPromotion = &chessdto.PendingPromotion{From: st.PendingPromotion.From, To: st.PendingPromotion.To}
	}
	if s.deps.Messages != nil {
		switch {
		case st.Outcome.Terminal():
			dto.Message = s.deps.Messages.Result(string(st.Outcome), st.Method, dto.ElapsedDisplay)
		case st.EngineError != "":
			dto.Message, _ = s.deps.Messages.Render("engine.failed", nil)
		}
	}
	return dto
}
