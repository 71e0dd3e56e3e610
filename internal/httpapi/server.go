package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/park285/cheese-chess-web/internal/leaderboard"
	"github.com/park285/cheese-chess-web/internal/metrics"
	"github.com/park285/cheese-chess-web/internal/msgcat"
	"github.com/park285/cheese-chess-web/internal/render"
	"github.com/park285/cheese-chess-web/internal/service/session"
)

const maxBodyBytes = 16 << 10

type Deps struct {
	Leaderboard *leaderboard.Service
	Sessions    *session.Manager
	Renderer    *render.Renderer
	Messages    *msgcat.Catalog
	Metrics     *metrics.Manager
	Logger      *zap.Logger
	// Development adds error details to leaderboard 500 responses.
	Development bool
	// Ready reports dependency health for /healthz; nil means always ready.
	Ready func() error
}

type Server struct {
	deps Deps
	log  *zap.Logger
	mux  *http.ServeMux
}

func New(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Renderer == nil {
		deps.Renderer = render.NewRenderer()
	}
	s := &Server{deps: deps, log: deps.Logger, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) routes() {
	s.handle("GET /api/leaderboard", s.handleLeaderboardGet)
	s.handle("POST /api/leaderboard", s.handleLeaderboardPost)
	s.handle("POST /api/leaderboard/init", s.handleLeaderboardInit)

	s.handle("POST /api/games", s.handleCreateGame)
	s.handle("GET /api/games/{id}", s.handleGetGame)
	s.handle("POST /api/games/{id}/moves", s.handleMove)
	s.handle("POST /api/games/{id}/promotion", s.handlePromotion)
	s.handle("DELETE /api/games/{id}/promotion", s.handleCancelPromotion)
	s.handle("GET /api/games/{id}/targets", s.handleTargets)
	s.handle("POST /api/games/{id}/engine-move", s.handleEngineMove)
	s.handle("POST /api/games/{id}/new", s.handleNewGame)
	s.handle("POST /api/games/{id}/resign", s.handleResign)
	s.handle("PUT /api/games/{id}/player", s.handlePlayer)
	s.handle("GET /api/games/{id}/events", s.handleEvents)
	s.handle("GET /api/games/{id}/board.png", s.handleBoard)
	s.handle("GET /api/themes", s.handleThemes)

	s.handle("GET /healthz", s.handleHealth)
	if s.deps.Metrics != nil {
		s.mux.Handle("GET /metrics", s.deps.Metrics.Handler())
	}
}

func (s *Server) handle(pattern string, fn http.HandlerFunc) {
	var h http.Handler = s.recoverer(fn)
	if s.deps.Metrics != nil {
		h = s.deps.Metrics.Middleware(pattern, h)
	}
	s.mux.Handle(pattern, h)
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error("handler panic",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Any("panic", rec),
				)
				writeJSON(w, http.StatusInternalServerError, errorBody("internal_error", "internal server error", false))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	}
	if s.deps.Sessions != nil {
		body["sessions"] = s.deps.Sessions.Count()
	}
	if s.deps.Ready != nil {
		if err := s.deps.Ready(); err != nil {
			body["status"] = "degraded"
			body["error"] = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, body)
			return
		}
	}
	writeJSON(w, http.StatusOK, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return dec.Decode(v)
}
