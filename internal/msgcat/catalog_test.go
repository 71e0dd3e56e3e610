package msgcat

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestResultMessages(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	cases := []struct {
		outcome, method, want string
	}{
		{"human_wins", "checkmate", "Checkmate! You won in 1:05."},
		{"engine_wins", "resignation", "You resigned."},
		{"draw", "stalemate", "Stalemate. The game is a draw."},
		{"draw", "something_new", "Draw."},
		{"ongoing", "", ""},
	}
	for _, tc := range cases {
		if got := c.Result(tc.outcome, tc.method, "1:05"); got != tc.want {
			t.Fatalf("Result(%s, %s) = %q, want %q", tc.outcome, tc.method, got, tc.want)
		}
	}
}

func TestRenderMissingKeyFails(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := c.Render("leaderboard.saved", map[string]any{"Time": "0:30"}); err == nil {
		t.Fatalf("expected missing template data to fail")
	}
	if _, err := c.Render("no.such.key", nil); err == nil {
		t.Fatalf("expected unknown key to fail")
	}
}

func TestOverrideDirectory(t *testing.T) {
	dir := t.TempDir()
	body := "result:\n  draw:\n    stalemate: \"Pat.\"\n"
	if err := os.WriteFile(filepath.Join(dir, "custom.yaml"), []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := New(dir)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if got := c.Result("draw", "stalemate", ""); got != "Pat." {
		t.Fatalf("override not applied, got %q", got)
	}
	if got := c.Result("draw", "fifty_move_rule", ""); !strings.Contains(got, "fifty-move") {
		t.Fatalf("defaults should survive overrides, got %q", got)
	}
}

func TestDuplicateOverrideKeysRejected(t *testing.T) {
	dir := t.TempDir()
	body := "engine:\n  failed: \"x\"\n"
	for _, name := range []string{"a.yaml", "b.yml"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if _, err := New(dir); err == nil || !strings.Contains(err.Error(), "duplicate override key") {
		t.Fatalf("expected duplicate key error, got %v", err)
	}
}
