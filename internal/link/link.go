package link

import (
	"context"
	"errors"
	"net"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"renderbot.ai/internal/protocol"
)

const (
	DefaultConnectRetries = 15
	DefaultRetryDelay     = 200 * time.Millisecond
	DefaultRequestTimeout = 5 * time.Second
	DefaultFrameSize      = 64 * 1024
)

// WorldReadMode selects how the world_info payload is collected.
type WorldReadMode string

const (
	// WorldReadFull keeps reading until the declared size has arrived.
	WorldReadFull WorldReadMode = "full"
	// WorldReadLegacy performs at most one extra read when the first frame
	// is short, matching older clients byte for byte.
	WorldReadLegacy WorldReadMode = "legacy"
)

type Config struct {
	Host string
	Port int

	// ConnectRetries is the number of extra attempts after the first one,
	// taken only while the peer refuses the connection.
	ConnectRetries int
	RetryDelay     time.Duration
	RequestTimeout time.Duration

	WorldRead WorldReadMode
	// FrameSize bounds a single inbound read.
	FrameSize int

	// Reconnect lets a Session redial a broken link and retry idempotent
	// queries once.
	Reconnect bool

	dial func(ctx context.Context, network, addr string) (net.Conn, error)
}

func DefaultConfig(host string) Config {
	return Config{
		Host:           host,
		Port:           protocol.DefaultPort,
		ConnectRetries: DefaultConnectRetries,
		RetryDelay:     DefaultRetryDelay,
		RequestTimeout: DefaultRequestTimeout,
		WorldRead:      WorldReadFull,
		FrameSize:      DefaultFrameSize,
	}
}

func (c Config) normalized() Config {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port <= 0 {
		c.Port = protocol.DefaultPort
	}
	if c.ConnectRetries < 0 {
		c.ConnectRetries = 0
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.WorldRead == "" {
		c.WorldRead = WorldReadFull
	}
	if c.FrameSize <= 0 {
		c.FrameSize = DefaultFrameSize
	}
	return c
}

func (c Config) Addr() string { return net.JoinHostPort(c.Host, strconv.Itoa(c.Port)) }

// Dial connects to the renderer and starts the exchange that owns the
// stream. The caller must Close the returned exchange.
func Dial(ctx context.Context, cfg Config, logger *zap.Logger) (*Exchange, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.normalized()
	conn, err := connect(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return newExchange(conn, cfg, logger), nil
}

func connect(ctx context.Context, cfg Config, logger *zap.Logger) (net.Conn, error) {
	addr := cfg.Addr()
	dial := cfg.dial
	if dial == nil {
		var d net.Dialer
		dial = d.DialContext
	}

	attempts := 0
	for {
		attempts++
		conn, err := dial(ctx, "tcp", addr)
		if err == nil {
			logger.Info("connected to renderer", zap.String("addr", addr), zap.Int("attempts", attempts))
			return conn, nil
		}
		if !errors.Is(err, syscall.ECONNREFUSED) || attempts > cfg.ConnectRetries {
			return nil, &ConnectionError{Addr: addr, Attempts: attempts, Err: err}
		}
		logger.Debug("renderer refused connection; retrying",
			zap.String("addr", addr), zap.Int("attempt", attempts), zap.Duration("delay", cfg.RetryDelay))

		t := time.NewTimer(cfg.RetryDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, &ConnectionError{Addr: addr, Attempts: attempts, Err: ctx.Err()}
		case <-t.C:
		}
	}
}
