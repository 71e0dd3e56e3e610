package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/park285/cheese-chess-web/internal/chess"
	"github.com/park285/cheese-chess-web/internal/domain"
	"github.com/park285/cheese-chess-web/internal/leaderboard"
	"github.com/park285/cheese-chess-web/internal/metrics"
	"github.com/park285/cheese-chess-web/internal/msgcat"
	"github.com/park285/cheese-chess-web/internal/service/session"
	"github.com/park285/cheese-chess-web/pkg/chessdto"
)

type scriptEngine struct {
	mu    sync.Mutex
	moves []string
}

func (e *scriptEngine) BestMove(_ context.Context, req chess.MoveRequest) (chess.MoveResponse, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.moves) == 0 {
		return chess.MoveResponse{}, errors.New("script exhausted")
	}
	mv := e.moves[0]
	e.moves = e.moves[1:]
	return chess.MoveResponse{Token: req.Token, Move: mv}, nil
}

type brokenRepo struct{}

func (brokenRepo) Init(context.Context) error { return errors.New("dial tcp: connection refused") }
func (brokenRepo) Top(context.Context, domain.Difficulty, int) ([]domain.LeaderboardEntry, error) {
	return nil, errors.New("dial tcp: connection refused")
}
func (brokenRepo) Insert(context.Context, domain.Difficulty, string, int) (leaderboard.Placement, error) {
	return leaderboard.Placement{}, errors.New("dial tcp: connection refused")
}

type fixture struct {
	server   *Server
	handler  http.Handler
	sessions *session.Manager
	board    *leaderboard.Service
}

func newFixture(t *testing.T, repo leaderboard.Repository, engineMoves ...string) *fixture {
	t.Helper()
	lb := leaderboard.NewService(repo, nil, nil)
	msgs, err := msgcat.New("")
	if err != nil {
		t.Fatalf("msgcat: %v", err)
	}
	mgr := session.NewManager(session.Config{DefaultPlayerName: "User"}, &scriptEngine{moves: engineMoves}, lb, session.NewMemoryStore(), nil)
	t.Cleanup(mgr.Shutdown)
	srv := New(Deps{
		Leaderboard: lb,
		Sessions:    mgr,
		Messages:    msgs,
		Metrics:     metrics.NewManager(),
	})
	return &fixture{server: srv, handler: srv.Handler(), sessions: mgr, board: lb}
}

func (f *fixture) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			_ = json.NewEncoder(&buf).Encode(body)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](rec *httptest.ResponseRecorder) T {
	var out T
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return out
}

func (f *fixture) waitState(id string, cond func(chessdto.GameState) bool) chessdto.GameState {
	deadline := time.Now().Add(2 * time.Second)
	var st chessdto.GameState
	for time.Now().Before(deadline) {
		st = decode[chessdto.GameState](f.do(http.MethodGet, "/api/games/"+id, nil))
		if cond(st) {
			return st
		}
		time.Sleep(5 * time.Millisecond)
	}
	return st
}

func TestLeaderboardRoutes(t *testing.T) {
	Convey("Given a leaderboard backed by memory", t, func() {
		f := newFixture(t, leaderboard.NewMemoryRepository())

		Convey("When the difficulty is missing or unknown", func() {
			for _, path := range []string{"/api/leaderboard", "/api/leaderboard?difficulty=expert", "/api/leaderboard?difficulty=EASY"} {
				rec := f.do(http.MethodGet, path, nil)
				So(rec.Code, ShouldEqual, http.StatusBadRequest)
				So(strings.TrimSpace(rec.Body.String()), ShouldEqual, `{"error":"Invalid difficulty level"}`)
			}
		})

		Convey("When scores are posted", func() {
			for _, s := range []struct {
				name string
				secs int
			}{{"Bob", 60}, {"Alice", 45}, {"Carl", 90}} {
				secs := s.secs
				rec := f.do(http.MethodPost, "/api/leaderboard", chessdto.SubmitScoreRequest{Difficulty: "easy", PlayerName: s.name, TimeSeconds: &secs})
				So(rec.Code, ShouldEqual, http.StatusCreated)
			}

			Convey("Then the table reads fastest first", func() {
				rec := f.do(http.MethodGet, "/api/leaderboard?difficulty=easy", nil)
				So(rec.Code, ShouldEqual, http.StatusOK)
				rows := decode[[]chessdto.LeaderboardEntry](rec)
				So(len(rows), ShouldEqual, 3)
				So(rows[0].PlayerName, ShouldEqual, "Alice")
				So(rows[1].PlayerName, ShouldEqual, "Bob")
				So(rows[2].PlayerName, ShouldEqual, "Carl")
			})

			Convey("Then other difficulties stay empty", func() {
				rec := f.do(http.MethodGet, "/api/leaderboard?difficulty=hard", nil)
				So(strings.TrimSpace(rec.Body.String()), ShouldEqual, "[]")
			})
		})

		Convey("When a post is malformed", func() {
			neg := -1
			So(f.do(http.MethodPost, "/api/leaderboard", `{"difficulty":`).Code, ShouldEqual, http.StatusBadRequest)
			So(f.do(http.MethodPost, "/api/leaderboard", chessdto.SubmitScoreRequest{Difficulty: "easy", PlayerName: "A"}).Code, ShouldEqual, http.StatusBadRequest)
			rec := f.do(http.MethodPost, "/api/leaderboard", chessdto.SubmitScoreRequest{Difficulty: "easy", PlayerName: "A", TimeSeconds: &neg})
			So(decode[chessdto.ErrorResponse](rec).Error, ShouldEqual, "Invalid time")
			rec = f.do(http.MethodPost, "/api/leaderboard", `{"difficulty":"easy","player_name":"A","time_seconds":2147483648}`)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
			So(decode[chessdto.ErrorResponse](rec).Error, ShouldEqual, "Invalid time")
			zero := 0
			rec = f.do(http.MethodPost, "/api/leaderboard", chessdto.SubmitScoreRequest{Difficulty: "easy", PlayerName: "   ", TimeSeconds: &zero})
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
			So(decode[chessdto.ErrorResponse](rec).Error, ShouldEqual, "Invalid player name")
		})

		Convey("When init is called", func() {
			So(f.do(http.MethodPost, "/api/leaderboard/init", nil).Code, ShouldEqual, http.StatusNoContent)
		})
	})

	Convey("Given no database configured", t, func() {
		f := newFixture(t, nil)
		rec := f.do(http.MethodGet, "/api/leaderboard?difficulty=medium", nil)
		So(rec.Code, ShouldEqual, http.StatusInternalServerError)
		So(strings.TrimSpace(rec.Body.String()), ShouldEqual, `{"error":"Database configuration error"}`)

		Convey("Then an invalid difficulty is still a 400", func() {
			So(f.do(http.MethodGet, "/api/leaderboard?difficulty=x", nil).Code, ShouldEqual, http.StatusBadRequest)
		})
	})

	Convey("Given an unreachable database", t, func() {
		f := newFixture(t, brokenRepo{})

		Convey("Then production responses hide details", func() {
			rec := f.do(http.MethodGet, "/api/leaderboard?difficulty=hard", nil)
			So(rec.Code, ShouldEqual, http.StatusInternalServerError)
			So(strings.TrimSpace(rec.Body.String()), ShouldEqual, `{"error":"Database connection error"}`)
		})

		Convey("Then development responses carry details", func() {
			f.server.deps.Development = true
			rec := f.do(http.MethodGet, "/api/leaderboard?difficulty=hard", nil)
			body := decode[chessdto.ErrorResponse](rec)
			So(body.Error, ShouldEqual, "Database connection error")
			So(body.Details, ShouldContainSubstring, "connection refused")
		})
	})
}

func TestGameRoutes(t *testing.T) {
	Convey("Given a new game as white", t, func() {
		f := newFixture(t, leaderboard.NewMemoryRepository(), "e7e5")
		rec := f.do(http.MethodPost, "/api/games", chessdto.CreateGameRequest{Difficulty: "easy", HumanSide: "white"})
		So(rec.Code, ShouldEqual, http.StatusCreated)
		created := decode[chessdto.GameState](rec)
		So(created.ID, ShouldNotBeEmpty)
		So(created.Outcome, ShouldEqual, "ongoing")
		So(created.PlayerName, ShouldEqual, "User")
		base := "/api/games/" + created.ID

		Convey("When the human moves the engine answers", func() {
			rec := f.do(http.MethodPost, base+"/moves", chessdto.MoveRequest{From: "e2", To: "e4"})
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(decode[chessdto.GameState](rec).TimerRunning, ShouldBeTrue)

			st := f.waitState(created.ID, func(s chessdto.GameState) bool { return len(s.Moves) == 2 })
			So(st.Moves, ShouldResemble, []string{"e2e4", "e7e5"})
			So(st.SAN, ShouldResemble, []string{"e4", "e5"})
			So(st.Turn, ShouldEqual, "white")
		})

		Convey("When the move is illegal the legal targets come back", func() {
			rec := f.do(http.MethodPost, base+"/moves", chessdto.MoveRequest{From: "e2", To: "e5"})
			So(rec.Code, ShouldEqual, http.StatusUnprocessableEntity)
			body := decode[chessdto.DomainError](rec)
			So(body.Code, ShouldEqual, "illegal_move")
			So(body.Targets, ShouldResemble, []string{"e3", "e4"})
			So(body.State, ShouldNotBeNil)
			So(len(body.State.Moves), ShouldEqual, 0)
		})

		Convey("When a square is malformed", func() {
			rec := f.do(http.MethodPost, base+"/moves", chessdto.MoveRequest{From: "z9", To: "e4"})
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
			So(decode[chessdto.DomainError](rec).Code, ShouldEqual, "invalid_square")
		})

		Convey("When targets are requested", func() {
			rec := f.do(http.MethodGet, base+"/targets?square=g1", nil)
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(decode[chessdto.TargetsResponse](rec).Targets, ShouldResemble, []string{"f3", "h3"})
		})

		Convey("When the human resigns", func() {
			rec := f.do(http.MethodPost, base+"/resign", nil)
			So(rec.Code, ShouldEqual, http.StatusOK)
			st := decode[chessdto.GameState](rec)
			So(st.Outcome, ShouldEqual, "engine_wins")
			So(st.Method, ShouldEqual, "resignation")
			So(st.Message, ShouldEqual, "You resigned.")

			Convey("Then further moves are refused", func() {
				rec := f.do(http.MethodPost, base+"/moves", chessdto.MoveRequest{From: "e2", To: "e4"})
				So(rec.Code, ShouldEqual, http.StatusConflict)
				So(decode[chessdto.DomainError](rec).Code, ShouldEqual, "game_over")
			})

			Convey("Then a new game starts fresh", func() {
				rec := f.do(http.MethodPost, base+"/new", chessdto.NewGameRequest{Difficulty: "hard"})
				So(rec.Code, ShouldEqual, http.StatusOK)
				st := decode[chessdto.GameState](rec)
				So(st.Outcome, ShouldEqual, "ongoing")
				So(st.Difficulty, ShouldEqual, "hard")
				So(st.ElapsedSeconds, ShouldEqual, 0)
			})

			Convey("Then a new game accepts an empty streamed body", func() {
				req := httptest.NewRequest(http.MethodPost, base+"/new", struct{ io.Reader }{strings.NewReader("")})
				So(req.ContentLength, ShouldEqual, -1)
				rec := httptest.NewRecorder()
				f.handler.ServeHTTP(rec, req)
				So(rec.Code, ShouldEqual, http.StatusOK)
				st := decode[chessdto.GameState](rec)
				So(st.Outcome, ShouldEqual, "ongoing")
				So(st.Difficulty, ShouldEqual, "easy")
			})

			Convey("Then a malformed new-game body is rejected", func() {
				rec := f.do(http.MethodPost, base+"/new", `{"difficulty":`)
				So(rec.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When the player name is set", func() {
			rec := f.do(http.MethodPut, base+"/player", chessdto.PlayerRequest{Name: "  Magnus "})
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(decode[chessdto.GameState](rec).PlayerName, ShouldEqual, "Magnus")
		})

		Convey("When the board is rendered", func() {
			rec := f.do(http.MethodGet, base+"/board.png?theme=blue&size=32&square=e2", nil)
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(rec.Header().Get("Content-Type"), ShouldEqual, "image/png")
			So(bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")), ShouldBeTrue)
		})

		Convey("When the engine is asked to move on the human's turn", func() {
			rec := f.do(http.MethodPost, base+"/engine-move", nil)
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(decode[chessdto.GameState](rec).EnginePending, ShouldBeFalse)
		})
	})

	Convey("Given unknown input", t, func() {
		f := newFixture(t, leaderboard.NewMemoryRepository())

		So(f.do(http.MethodGet, "/api/games/nope", nil).Code, ShouldEqual, http.StatusNotFound)
		rec := f.do(http.MethodPost, "/api/games", chessdto.CreateGameRequest{Difficulty: "expert"})
		So(rec.Code, ShouldEqual, http.StatusBadRequest)
		So(decode[chessdto.DomainError](rec).Code, ShouldEqual, "invalid_difficulty")
		So(f.do(http.MethodPost, "/api/games", chessdto.CreateGameRequest{Difficulty: "easy", HumanSide: "red"}).Code, ShouldEqual, http.StatusBadRequest)
	})
}

func TestHumanWinReachesLeaderboard(t *testing.T) {
	Convey("Given the human plays black against a scripted fool's mate", t, func() {
		f := newFixture(t, leaderboard.NewMemoryRepository(), "f2f3", "g2g4")
		rec := f.do(http.MethodPost, "/api/games", chessdto.CreateGameRequest{Difficulty: "medium", HumanSide: "black", PlayerName: "Nina"})
		So(rec.Code, ShouldEqual, http.StatusCreated)
		id := decode[chessdto.GameState](rec).ID

		f.waitState(id, func(s chessdto.GameState) bool { return len(s.Moves) == 1 })
		So(f.do(http.MethodPost, "/api/games/"+id+"/moves", chessdto.MoveRequest{From: "e7", To: "e5"}).Code, ShouldEqual, http.StatusOK)
		f.waitState(id, func(s chessdto.GameState) bool { return len(s.Moves) == 3 })
		rec = f.do(http.MethodPost, "/api/games/"+id+"/moves", chessdto.MoveRequest{From: "d8", To: "h4"})
		So(rec.Code, ShouldEqual, http.StatusOK)

		st := decode[chessdto.GameState](rec)
		So(st.Outcome, ShouldEqual, "human_wins")
		So(st.Method, ShouldEqual, "checkmate")
		So(st.TimerRunning, ShouldBeFalse)
		So(st.Message, ShouldStartWith, "Checkmate! You won in")

		Convey("Then the time lands on the medium leaderboard once", func() {
			var rows []chessdto.LeaderboardEntry
			deadline := time.Now().Add(2 * time.Second)
			for time.Now().Before(deadline) {
				rows = decode[[]chessdto.LeaderboardEntry](f.do(http.MethodGet, "/api/leaderboard?difficulty=medium", nil))
				if len(rows) > 0 {
					break
				}
				time.Sleep(5 * time.Millisecond)
			}
			So(len(rows), ShouldEqual, 1)
			So(rows[0].PlayerName, ShouldEqual, "Nina")
		})
	})
}

func TestThemesAndHealth(t *testing.T) {
	Convey("Given the server", t, func() {
		f := newFixture(t, nil)

		Convey("Then six themes are listed", func() {
			rows := decode[[]chessdto.Theme](f.do(http.MethodGet, "/api/themes", nil))
			So(len(rows), ShouldEqual, 6)
			So(rows[0].Dark, ShouldEqual, "#779952")
		})

		Convey("Then health reports ok", func() {
			rec := f.do(http.MethodGet, "/healthz", nil)
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(rec.Body.String(), ShouldContainSubstring, `"status":"ok"`)
		})

		Convey("Then metrics are scraped", func() {
			f.do(http.MethodGet, "/api/themes", nil)
			rec := f.do(http.MethodGet, "/metrics", nil)
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(rec.Body.String(), ShouldContainSubstring, "chess_http_requests_total")
		})
	})
}
