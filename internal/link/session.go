package link

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"renderbot.ai/internal/protocol"
)

// Session wraps an Exchange with the reconnect policy. With Reconnect set,
// a broken link is redialled before the next request, and idempotent
// queries that failed on the transport are retried once. Instructions are
// never replayed: a lost reply may still have moved the character.
type Session struct {
	cfg Config
	log *zap.Logger

	mu     sync.Mutex
	ex     *Exchange
	closed bool
	dials  int
}

// Open dials the renderer and returns a ready session.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.normalized()
	ex, err := Dial(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &Session{cfg: cfg, log: logger, ex: ex, dials: 1}, nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.ex == nil {
		return nil
	}
	err := s.ex.Close()
	s.ex = nil
	return err
}

// Dials reports how many connections the session has established.
func (s *Session) Dials() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials
}

func (s *Session) exchange(ctx context.Context) (*Exchange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.ex != nil && s.ex.State() != StateBroken {
		return s.ex, nil
	}
	if !s.cfg.Reconnect {
		return s.ex, nil
	}
	if s.ex != nil {
		_ = s.ex.Close()
		s.ex = nil
	}
	s.log.Info("reconnecting to renderer", zap.String("addr", s.cfg.Addr()))
	ex, err := Dial(ctx, s.cfg, s.log)
	if err != nil {
		return nil, err
	}
	s.ex = ex
	s.dials++
	return ex, nil
}

func (s *Session) SendInstruction(ctx context.Context, inst protocol.Instruction) (protocol.GameEvent, error) {
	ex, err := s.exchange(ctx)
	if err != nil {
		return protocol.GameEvent{}, err
	}
	return ex.SendInstruction(ctx, inst)
}

func (s *Session) RequestWorldInfo(ctx context.Context) (protocol.WorldInfo, error) {
	return retryQuery(ctx, s, (*Exchange).RequestWorldInfo)
}

func (s *Session) RequestCharacterStatus(ctx context.Context) (protocol.CharacterState, error) {
	return retryQuery(ctx, s, (*Exchange).RequestCharacterStatus)
}

func retryQuery[T any](ctx context.Context, s *Session, q func(*Exchange, context.Context) (T, error)) (T, error) {
	var zero T
	ex, err := s.exchange(ctx)
	if err != nil {
		return zero, err
	}
	v, err := q(ex, ctx)
	if err == nil || !s.cfg.Reconnect || !IsTransient(err) || ctx.Err() != nil {
		return v, err
	}
	s.log.Warn("query failed on transport; retrying after reconnect", zap.Error(err))
	ex, rerr := s.exchange(ctx)
	if rerr != nil {
		return zero, rerr
	}
	return q(ex, ctx)
}
