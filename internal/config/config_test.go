package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"renderbot.ai/internal/link"
	"renderbot.ai/internal/protocol"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	t.Setenv(EnvRendererHost, "")
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	lc := c.Link()
	if lc.Host != "localhost" || lc.Port != 7777 || lc.ConnectRetries != 15 || lc.RequestTimeout != 5*time.Second {
		t.Fatalf("link config=%+v", lc)
	}
	nc := c.Nav()
	if nc.MaxIterations != 26 || nc.JumpHeight != 1.25 || nc.Goal != (protocol.Coord{X: -10, Z: 7}) {
		t.Fatalf("nav config=%+v", nc)
	}
	if got := c.Data.Path(c.Data.EventLog); got != filepath.Join("gamification", "game_events.txt") {
		t.Fatalf("event log path=%q", got)
	}
}

func TestLoad_FileOverridesAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bot.yaml")
	raw := `
renderer:
  host: renderer.internal
  port: 9000
  request_timeout_ms: 750
  world_read: legacy
navigation:
  max_iterations: 5
  goal: { x: 3, z: -4 }
data:
  dir: /var/lib/bot
`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	t.Setenv(EnvRendererHost, "")
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	lc := c.Link()
	if lc.Host != "renderer.internal" || lc.Port != 9000 || lc.RequestTimeout != 750*time.Millisecond || lc.WorldRead != link.WorldReadLegacy {
		t.Fatalf("link config=%+v", lc)
	}
	if lc.ConnectRetries != 15 {
		t.Fatalf("unset fields keep defaults, got retries=%d", lc.ConnectRetries)
	}
	if c.Nav().Goal != (protocol.Coord{X: 3, Z: -4}) || c.Nav().MaxIterations != 5 {
		t.Fatalf("nav=%+v", c.Nav())
	}
	if got := c.Data.Path("index.db"); got != "/var/lib/bot/index.db" {
		t.Fatalf("path=%q", got)
	}

	t.Setenv(EnvRendererHost, "10.0.0.9")
	c, err = Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Renderer.Host != "10.0.0.9" {
		t.Fatalf("env override ignored: %q", c.Renderer.Host)
	}
}

func TestLoad_Rejects(t *testing.T) {
	t.Setenv(EnvRendererHost, "")
	dir := t.TempDir()
	for name, raw := range map[string]string{
		"mode":   "renderer: { world_read: sideways }",
		"policy": "navigation: { policy: teleport }",
		"yaml":   "renderer: [",
		"log":    "data: { event_log: \"\" }",
	} {
		path := filepath.Join(dir, name+".yaml")
		if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		if _, err := Load(path); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoad_SampleConfig(t *testing.T) {
	t.Setenv(EnvRendererHost, "")
	c, err := Load(filepath.Join("..", "..", "configs", "bot.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Data.Archive != "events" || c.Navigation.Policy != "explore" {
		t.Fatalf("config=%+v", c)
	}
}
