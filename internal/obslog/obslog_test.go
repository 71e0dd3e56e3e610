package obslog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestInitWritesJSONToFile(t *testing.T) {
	prev := L()
	defer globalLogger.Store(prev)

	path := filepath.Join(t.TempDir(), "nested", "chess.log")
	logger, err := Init(Options{Level: "warn", Format: "json", ToFile: true, File: path})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if L() != logger {
		t.Fatalf("Init should install the logger globally")
	}

	logger.Info("dropped below level")
	logger.Warn("engine slow", zap.String("difficulty", "hard"))
	_ = logger.Sync()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(raw)
	if strings.Contains(out, "dropped below level") {
		t.Fatalf("info line should be filtered: %s", out)
	}
	if !strings.Contains(out, `"msg":"engine slow"`) || !strings.Contains(out, `"difficulty":"hard"`) {
		t.Fatalf("unexpected log output: %s", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"":        zapcore.InfoLevel,
		"DEBUG":   zapcore.DebugLevel,
		"warning": zapcore.WarnLevel,
		" error ": zapcore.ErrorLevel,
		"bogus":   zapcore.InfoLevel,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
