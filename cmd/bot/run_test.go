package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"renderbot.ai/internal/config"
	"renderbot.ai/internal/persistence/archive"
	"renderbot.ai/internal/protocol"
	"renderbot.ai/internal/renderertest"
)

func testConfig(t *testing.T, srv *renderertest.Server) config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.Renderer.Host = "127.0.0.1"
	cfg.Renderer.Port = srv.Port()
	cfg.Renderer.RetryDelayMs = 1
	cfg.Navigation.MaxIterations = 10
	cfg.Navigation.Goal = config.Cell{X: 3, Z: 0}
	cfg.Data = config.Data{
		Dir:      t.TempDir(),
		EventLog: "game_events.txt",
		Archive:  "events",
		IndexDB:  "index.db",
		Snapshot: "world.snap.zst",
	}
	return cfg
}

func TestRun_ExploresAndPersists(t *testing.T) {
	w := renderertest.FlatWorld(5, 5)
	srv, err := renderertest.Start("127.0.0.1:0", w)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer srv.Close()
	cfg := testConfig(t, srv)

	res, err := run(context.Background(), cfg, runOptions{}, zap.NewNop())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !res.ReachedGoal || res.Events == 0 {
		t.Fatalf("result=%+v", res)
	}

	b, err := os.ReadFile(filepath.Join(cfg.Data.Dir, "game_events.txt"))
	if err != nil {
		t.Fatalf("read event log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	if len(lines) != res.Events || !strings.HasPrefix(lines[0], "WALK:true:") {
		t.Fatalf("event log=%q", b)
	}

	recs, err := archive.ReadDir(filepath.Join(cfg.Data.Dir, "events"))
	if err != nil || len(recs) != res.Events {
		t.Fatalf("archive records=%d err=%v", len(recs), err)
	}
	if _, err := os.Stat(filepath.Join(cfg.Data.Dir, "world.snap.zst")); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
}

func TestRun_FromSnapshotSkipsWorldInfo(t *testing.T) {
	w := renderertest.FlatWorld(5, 5)
	srv, err := renderertest.Start("127.0.0.1:0", w)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer srv.Close()
	cfg := testConfig(t, srv)
	cfg.Navigation.Policy = "idle"
	cfg.Navigation.MaxIterations = 2

	if _, err := run(context.Background(), cfg, runOptions{}, zap.NewNop()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	before := len(srv.Requests())

	snap := filepath.Join(cfg.Data.Dir, "world.snap.zst")
	cfg.Data.Snapshot = ""
	if _, err := run(context.Background(), cfg, runOptions{FromSnapshot: snap}, zap.NewNop()); err != nil {
		t.Fatalf("second run: %v", err)
	}
	for _, r := range srv.Requests()[before:] {
		if r == protocol.TagWorldInfo || r == protocol.TagWorldInfoSize {
			t.Fatalf("world info requested despite snapshot: %v", srv.Requests()[before:])
		}
	}
}

func TestRun_UnknownPolicy(t *testing.T) {
	cfg := config.Defaults()
	cfg.Navigation.Policy = "teleport"
	if _, err := run(context.Background(), cfg, runOptions{}, zap.NewNop()); err == nil {
		t.Fatalf("expected error")
	}
}
