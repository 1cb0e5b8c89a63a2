package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNew_TeesConsoleAndFile(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "bot.log")

	logger, flush, err := New(Config{File: path, Level: "debug", Console: &console})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Debug("dialing", zap.String("addr", "localhost:7777"), zap.Int("attempt", 3))
	flush()

	if !strings.Contains(console.String(), "dialing") || !strings.Contains(console.String(), "DEBUG") {
		t.Fatalf("console=%q", console.String())
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(b), `"attempt": 3`) {
		t.Fatalf("file=%q", b)
	}
}

func TestNew_LevelFilters(t *testing.T) {
	var console bytes.Buffer
	logger, flush, err := New(Config{Level: "warn", Console: &console})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown")
	flush()
	if strings.Contains(console.String(), "hidden") || !strings.Contains(console.String(), "shown") {
		t.Fatalf("console=%q", console.String())
	}
}

func TestParseLevel(t *testing.T) {
	if l, err := ParseLevel(""); err != nil || l != zapcore.InfoLevel {
		t.Fatalf("empty level=%v err=%v", l, err)
	}
	if l, err := ParseLevel(" DEBUG "); err != nil || l != zapcore.DebugLevel {
		t.Fatalf("level=%v err=%v", l, err)
	}
	if _, err := ParseLevel("chatty"); err == nil {
		t.Fatalf("expected error")
	}
}
