package httpapi

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/cheese-chess-web/internal/game"
	"github.com/park285/cheese-chess-web/internal/leaderboard"
	"github.com/park285/cheese-chess-web/pkg/chessdto"
)

const (
	eventBuffer       = 32
	eventWriteTimeout = 5 * time.Second
	pingInterval      = 30 * time.Second
)

// handleEvents streams controller events as JSON frames. The first frame is
// the current state so a client never has to race a GET.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	ctrl, err := s.deps.Sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeGameError(w, r, nil, err)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		s.log.Debug("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	events, cancel := ctrl.Subscribe(eventBuffer)
	defer cancel()

	// Clients never send; CloseRead handles their close frame.
	ctx := conn.CloseRead(r.Context())

	st := s.stateDTO(ctrl.State())
	if err := s.writeEvent(ctx, conn, chessdto.GameEvent{Type: string(game.EventState), State: &st}); err != nil {
		return
	}

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			pctx, pcancel := context.WithTimeout(ctx, eventWriteTimeout)
			err := conn.Ping(pctx)
			pcancel()
			if err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "session closed")
				return
			}
			if err := s.writeEvent(ctx, conn, s.eventDTO(ev)); err != nil {
				s.log.Debug("websocket write failed", zap.String("session_id", ctrl.ID()), zap.Error(err))
				return
			}
		}
	}
}

func (s *Server) writeEvent(ctx context.Context, conn *websocket.Conn, ev chessdto.GameEvent) error {
	wctx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
	defer cancel()
	return wsjson.Write(wctx, conn, ev)
}

func (s *Server) eventDTO(ev game.Event) chessdto.GameEvent {
	out := chessdto.GameEvent{
		Type:    string(ev.Type),
		Move:    ev.Move,
		Elapsed: ev.Elapsed,
		Message: ev.Message,
	}
	if ev.State != nil {
		st := s.stateDTO(*ev.State)
		out.State = &st
	}
	if ev.Entry != nil {
		res := ev.Entry
		if res.Err == nil {
			entry := entryDTO(res.Entry, 0)
			out.Entry = &entry
		}
		if s.deps.Messages != nil {
			out.Message = s.submitMessage(res)
		}
	}
	return out
}

func (s *Server) submitMessage(res *game.SubmitResult) string {
	if res.Err != nil {
		msg, err := s.deps.Messages.Render("leaderboard.failed", map[string]any{"Error": res.Err.Error()})
		if err != nil {
			return res.Err.Error()
		}
		return msg
	}
	msg, _ := s.deps.Messages.Render("leaderboard.saved", map[string]any{
		"Player":     res.Submission.PlayerName,
		"Difficulty": string(res.Submission.Difficulty),
		"Time":       leaderboard.FormatTime(res.Submission.TimeSeconds),
	})
	return msg
}
