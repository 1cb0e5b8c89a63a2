// Package config loads the bot's YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"renderbot.ai/internal/link"
	"renderbot.ai/internal/nav"
	"renderbot.ai/internal/protocol"
)

// EnvRendererHost overrides renderer.host when set.
const EnvRendererHost = "GAME_RENDERER_HOST"

type Config struct {
	Renderer   Renderer   `yaml:"renderer"`
	Navigation Navigation `yaml:"navigation"`
	Log        Log        `yaml:"log"`
	Data       Data       `yaml:"data"`
	Observer   Observer   `yaml:"observer"`
}

type Renderer struct {
	Host             string `yaml:"host"`
	Port             int    `yaml:"port"`
	ConnectRetries   int    `yaml:"connect_retries"`
	RetryDelayMs     int    `yaml:"retry_delay_ms"`
	RequestTimeoutMs int    `yaml:"request_timeout_ms"`
	WorldRead        string `yaml:"world_read"`
	Reconnect        bool   `yaml:"reconnect"`
}

type Navigation struct {
	MaxIterations int     `yaml:"max_iterations"`
	JumpHeight    float64 `yaml:"jump_height"`
	Goal          Cell    `yaml:"goal"`
	Policy        string  `yaml:"policy"`
}

type Cell struct {
	X float64 `yaml:"x"`
	Z float64 `yaml:"z"`
}

type Log struct {
	File       string `yaml:"file"`
	Level      string `yaml:"level"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Data locates the files a run produces. Relative paths resolve under Dir;
// an empty path disables that output, except EventLog.
type Data struct {
	Dir      string `yaml:"dir"`
	EventLog string `yaml:"event_log"`
	Archive  string `yaml:"archive"`
	IndexDB  string `yaml:"index_db"`
	Snapshot string `yaml:"snapshot"`
}

type Observer struct {
	Listen string `yaml:"listen"`
}

func Defaults() Config {
	return Config{
		Renderer: Renderer{
			Host:             "localhost",
			Port:             protocol.DefaultPort,
			ConnectRetries:   link.DefaultConnectRetries,
			RetryDelayMs:     int(link.DefaultRetryDelay / time.Millisecond),
			RequestTimeoutMs: int(link.DefaultRequestTimeout / time.Millisecond),
			WorldRead:        string(link.WorldReadFull),
			Reconnect:        true,
		},
		Navigation: Navigation{
			MaxIterations: nav.DefaultMaxIterations,
			JumpHeight:    nav.DefaultJumpHeight,
			Goal:          Cell{X: nav.DefaultGoal.X, Z: nav.DefaultGoal.Z},
			Policy:        "explore",
		},
		Log: Log{
			Level:      "info",
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 14,
		},
		Data: Data{
			Dir:      "gamification",
			EventLog: "game_events.txt",
		},
	}
}

// Load reads path over Defaults. An empty path yields the defaults. The
// environment override is applied last.
func Load(path string) (Config, error) {
	c := Defaults()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return c, err
		}
		if err := yaml.Unmarshal(raw, &c); err != nil {
			return c, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
	}
	if h := strings.TrimSpace(os.Getenv(EnvRendererHost)); h != "" {
		c.Renderer.Host = h
	}
	return c, c.Validate()
}

func (c Config) Validate() error {
	switch link.WorldReadMode(c.Renderer.WorldRead) {
	case link.WorldReadFull, link.WorldReadLegacy, "":
	default:
		return fmt.Errorf("renderer.world_read: unknown mode %q", c.Renderer.WorldRead)
	}
	if c.Renderer.Port < 0 || c.Renderer.Port > 65535 {
		return fmt.Errorf("renderer.port: %d out of range", c.Renderer.Port)
	}
	if c.Renderer.ConnectRetries < 0 {
		return fmt.Errorf("renderer.connect_retries: must be >= 0")
	}
	if c.Navigation.MaxIterations < 0 {
		return fmt.Errorf("navigation.max_iterations: must be >= 0")
	}
	if c.Navigation.Policy != "" {
		if _, ok := nav.PolicyByName(c.Navigation.Policy); !ok {
			return fmt.Errorf("navigation.policy: unknown policy %q", c.Navigation.Policy)
		}
	}
	if strings.TrimSpace(c.Data.EventLog) == "" {
		return fmt.Errorf("data.event_log: required")
	}
	return nil
}

func (c Config) Link() link.Config {
	r := c.Renderer
	lc := link.DefaultConfig(r.Host)
	lc.Port = r.Port
	lc.ConnectRetries = r.ConnectRetries
	lc.RetryDelay = time.Duration(r.RetryDelayMs) * time.Millisecond
	lc.RequestTimeout = time.Duration(r.RequestTimeoutMs) * time.Millisecond
	lc.WorldRead = link.WorldReadMode(r.WorldRead)
	lc.Reconnect = r.Reconnect
	return lc
}

func (c Config) Nav() nav.Config {
	n := c.Navigation
	return nav.Config{
		MaxIterations: n.MaxIterations,
		JumpHeight:    n.JumpHeight,
		Goal:          protocol.Coord{X: n.Goal.X, Z: n.Goal.Z},
	}
}

// Path resolves a data file against Data.Dir. Empty stays empty.
func (d Data) Path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(d.Dir, p)
}
