package chessbuilder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/park285/cheese-chess-web/internal/apiclient"
	"github.com/park285/cheese-chess-web/internal/config"
	"github.com/park285/cheese-chess-web/internal/leaderboard"
	"github.com/park285/cheese-chess-web/internal/metrics"
	"github.com/park285/cheese-chess-web/pkg/chessdto"
)

func fakeEngine(t *testing.T) string {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	script := "#!/bin/sh\n" +
		"while IFS= read -r line; do\n" +
		"  case \"$line\" in\n" +
		"    uci) echo uciok ;;\n" +
		"    isready) echo readyok ;;\n" +
		"    go*) echo \"bestmove e7e5\" ;;\n" +
		"    quit) exit 0 ;;\n" +
		"  esac\n" +
		"done\n"
	bin := filepath.Join(t.TempDir(), "fake-uci")
	if err := os.WriteFile(bin, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake engine: %v", err)
	}
	return bin
}

func TestNewWiresRedisSessions(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.Defaults()
	cfg.StockfishPath = fakeEngine(t)
	cfg.RedisURL = "redis://" + mr.Addr() + "/0"
	cfg.EngineDelayMS = 0
	cfg.PresetDepths = map[string]int{"easy": 1}

	deps, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer deps.Close()
	if deps.Leaderboard.Configured() {
		t.Fatalf("leaderboard configured without DATABASE_URL")
	}

	h := deps.Handler()
	post := func(path string, body any) *httptest.ResponseRecorder {
		raw, _ := json.Marshal(body)
		req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := post("/api/games", chessdto.CreateGameRequest{Difficulty: "easy"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d body=%s", rec.Code, rec.Body.String())
	}
	var st chessdto.GameState
	_ = json.Unmarshal(rec.Body.Bytes(), &st)

	if rec := post("/api/games/"+st.ID+"/moves", chessdto.MoveRequest{From: "e2", To: "e4"}); rec.Code != http.StatusOK {
		t.Fatalf("move status = %d body=%s", rec.Code, rec.Body.String())
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		raw, err := mr.Get("chess:session:" + st.ID)
		if err == nil && bytes.Contains([]byte(raw), []byte("e7e5")) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("engine reply never persisted: %q", raw)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := deps.ready(); err != nil {
		t.Fatalf("ready: %v", err)
	}
	mr.SetError("LOADING redis is loading the dataset in memory")
	if err := deps.ready(); err == nil {
		t.Fatalf("ready should fail while redis errors")
	}
	mr.SetError("")
}

func TestNewRejectsMissingEngine(t *testing.T) {
	cfg := config.Defaults()
	cfg.StockfishPath = filepath.Join(t.TempDir(), "missing")
	if _, err := New(context.Background(), cfg, nil); err == nil {
		t.Fatalf("expected error for missing engine binary")
	}
}

func TestNewRejectsUnknownPresetDifficulty(t *testing.T) {
	cfg := config.Defaults()
	cfg.StockfishPath = fakeEngine(t)
	cfg.PresetDepths = map[string]int{"expert": 4}
	if _, err := New(context.Background(), cfg, nil); err == nil {
		t.Fatalf("expected error for unknown preset difficulty")
	}
}

func TestSubmissionResult(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, metrics.ResultAccepted},
		{leaderboard.ErrInvalidTime, metrics.ResultRejected},
		{&apiclient.APIError{Status: 400, Message: "Invalid time"}, metrics.ResultRejected},
		{&apiclient.APIError{Status: 503}, metrics.ResultFailed},
		{errors.New("dial tcp: refused"), metrics.ResultFailed},
	}
	for _, c := range cases {
		if got := submissionResult(c.err); got != c.want {
			t.Fatalf("submissionResult(%v) = %q, want %q", c.err, got, c.want)
		}
	}
}
