package link

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"renderbot.ai/internal/protocol"
)

// State of the exchange state machine.
type State int32

const (
	StateConnected State = iota + 1
	StateSending
	StateWaitingResponse
	StateBroken
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateSending:
		return "sending"
	case StateWaitingResponse:
		return "waiting_response"
	case StateBroken:
		return "broken"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Exchange runs strict one-in-flight request/response over the link. A
// single goroutine owns the connection; callers queue jobs and block for
// the result.
type Exchange struct {
	cfg  Config
	log  *zap.Logger
	conn net.Conn

	jobs chan *job
	stop chan struct{}
	done chan struct{}

	closeOnce sync.Once
	state     atomic.Int32
}

type job struct {
	ctx  context.Context
	name string
	run  func(s *stream) ([]byte, error)
	resp chan jobResult
}

type jobResult struct {
	raw []byte
	err error
}

func newExchange(conn net.Conn, cfg Config, logger *zap.Logger) *Exchange {
	e := &Exchange{
		cfg:  cfg,
		log:  logger,
		conn: conn,
		jobs: make(chan *job),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	e.state.Store(int32(StateConnected))
	go e.loop()
	return e
}

func (e *Exchange) State() State { return State(e.state.Load()) }

// Close releases the stream. It is safe to call more than once.
func (e *Exchange) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.state.Store(int32(StateClosed))
		close(e.stop)
		// Wake a blocked read so the loop can exit.
		err = e.conn.Close()
		<-e.done
	})
	return err
}

func (e *Exchange) loop() {
	defer close(e.done)
	s := &stream{e: e, buf: make([]byte, e.cfg.FrameSize)}
	for {
		select {
		case <-e.stop:
			return
		case j := <-e.jobs:
			if err := j.ctx.Err(); err != nil {
				j.resp <- jobResult{err: err}
				continue
			}
			if st := e.State(); st == StateBroken || st == StateClosed {
				j.resp <- jobResult{err: stateErr(st)}
				continue
			}
			raw, err := j.run(s)
			if err != nil && (IsTransient(err) || unframed(err)) {
				e.markBroken()
				e.log.Warn("renderer exchange failed", zap.String("request", j.name), zap.Error(err))
			} else {
				e.transition(StateConnected, StateSending, StateWaitingResponse)
			}
			j.resp <- jobResult{raw: raw, err: err}
		}
	}
}

func (e *Exchange) markBroken() {
	e.transition(StateBroken, StateConnected, StateSending, StateWaitingResponse)
}

// transition moves to `to` only from one of `from`, so a concurrent Close
// is never overwritten.
func (e *Exchange) transition(to State, from ...State) bool {
	for _, f := range from {
		if e.state.CompareAndSwap(int32(f), int32(to)) {
			return true
		}
	}
	return false
}

func stateErr(st State) error {
	if st == StateClosed {
		return ErrClosed
	}
	return ErrBroken
}

// submit queues a job and waits for it. If ctx ends first the stream is
// interrupted; the exchange is then broken because the reply may still
// arrive later.
func (e *Exchange) submit(ctx context.Context, name string, run func(s *stream) ([]byte, error)) ([]byte, error) {
	j := &job{ctx: ctx, name: name, run: run, resp: make(chan jobResult, 1)}
	select {
	case e.jobs <- j:
	case <-e.stop:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-j.resp:
		return r.raw, r.err
	case <-ctx.Done():
		_ = e.conn.SetDeadline(time.Now())
		if r := <-j.resp; r.err == nil {
			return r.raw, nil
		}
		e.markBroken()
		return nil, ctx.Err()
	}
}

// stream is the owning goroutine's view of the connection.
type stream struct {
	e   *Exchange
	buf []byte
}

func (s *stream) deadline(ctx context.Context) time.Time {
	d := time.Now().Add(s.e.cfg.RequestTimeout)
	if cd, ok := ctx.Deadline(); ok && cd.Before(d) {
		return cd
	}
	return d
}

func (s *stream) send(ctx context.Context, tag string) error {
	if !s.e.transition(StateSending, StateConnected, StateWaitingResponse) {
		return stateErr(s.e.State())
	}
	_ = s.e.conn.SetWriteDeadline(s.deadline(ctx))
	if _, err := io.WriteString(s.e.conn, tag); err != nil {
		return s.wrap(tag, err)
	}
	s.e.transition(StateWaitingResponse, StateSending)
	return nil
}

// frame reads exactly one inbound data chunk.
func (s *stream) frame(ctx context.Context, tag string) ([]byte, error) {
	_ = s.e.conn.SetReadDeadline(s.deadline(ctx))
	n, err := s.e.conn.Read(s.buf)
	if n > 0 {
		return append([]byte(nil), s.buf[:n]...), nil
	}
	if err == nil {
		err = io.ErrNoProgress
	}
	return nil, s.wrap(tag, err)
}

func (s *stream) roundTrip(ctx context.Context, tag string) ([]byte, error) {
	if err := s.send(ctx, tag); err != nil {
		return nil, err
	}
	return s.frame(ctx, tag)
}

// reply is a round trip whose frame must hold one complete JSON document.
func (s *stream) reply(ctx context.Context, tag string) ([]byte, error) {
	raw, err := s.roundTrip(ctx, tag)
	if err != nil {
		return nil, err
	}
	return checkFramed(tag, raw)
}

const reasonUndecodable = "undecodable"

// checkFramed rejects a payload that is not one JSON document. The rest of
// such a reply may still be in flight, so the stream position is lost.
func checkFramed(tag string, raw []byte) ([]byte, error) {
	var v json.RawMessage
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, &ProtocolError{Request: tag, Reason: reasonUndecodable, Err: err}
	}
	return raw, nil
}

func unframed(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe) && pe.Reason == reasonUndecodable
}

func (s *stream) wrap(tag string, err error) error {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &TimeoutError{Request: tag, After: s.e.cfg.RequestTimeout}
	}
	return &StreamError{Request: tag, Err: err}
}

// SendInstruction executes one instruction and returns the renderer's event.
func (e *Exchange) SendInstruction(ctx context.Context, inst protocol.Instruction) (protocol.GameEvent, error) {
	tag := inst.Tag()
	if tag == "" {
		return protocol.GameEvent{}, &ProtocolError{Request: inst.String(), Reason: "unknown instruction"}
	}
	raw, err := e.submit(ctx, tag, func(s *stream) ([]byte, error) {
		return s.reply(ctx, tag)
	})
	if err != nil {
		return protocol.GameEvent{}, err
	}

	var reply protocol.EventReply
	if err := protocol.Validate(protocol.SchemaEvent, raw); err != nil {
		if json.Unmarshal(raw, &reply) == nil {
			if missing := reply.Missing(); len(missing) > 0 {
				return protocol.GameEvent{}, &ProtocolError{Request: tag, Reason: "missing " + strings.Join(missing, ","), Err: err}
			}
		}
		return protocol.GameEvent{}, &ProtocolError{Request: tag, Reason: "schema", Err: err}
	}
	if err := json.Unmarshal(raw, &reply); err != nil {
		return protocol.GameEvent{}, &ProtocolError{Request: tag, Reason: "decode", Err: err}
	}
	ev := reply.Event(inst)
	e.log.Debug("instruction executed",
		zap.String("tag", tag), zap.String("status", string(ev.Status)), zap.String("message", ev.Message))
	return ev, nil
}

// RequestWorldInfo fetches the world snapshot in two phases: the declared
// payload size, then the payload itself.
func (e *Exchange) RequestWorldInfo(ctx context.Context) (protocol.WorldInfo, error) {
	raw, err := e.submit(ctx, protocol.TagWorldInfo, func(s *stream) ([]byte, error) {
		tok, err := s.roundTrip(ctx, protocol.TagWorldInfoSize)
		if err != nil {
			return nil, err
		}
		size, err := protocol.ParseSize(tok)
		if err != nil {
			return nil, &ProtocolError{Request: protocol.TagWorldInfoSize, Reason: "bad size token", Err: err}
		}

		payload, err := s.roundTrip(ctx, protocol.TagWorldInfo)
		if err != nil {
			return nil, err
		}
		switch e.cfg.WorldRead {
		case WorldReadLegacy:
			if len(payload) < size {
				more, err := s.frame(ctx, protocol.TagWorldInfo)
				if err != nil {
					return nil, err
				}
				payload = append(payload, more...)
			}
		default:
			for len(payload) < size {
				more, err := s.frame(ctx, protocol.TagWorldInfo)
				if err != nil {
					return nil, err
				}
				payload = append(payload, more...)
			}
		}
		e.log.Debug("world info received", zap.Int("declared", size), zap.Int("read", len(payload)))
		return checkFramed(protocol.TagWorldInfo, payload)
	})
	if err != nil {
		return protocol.WorldInfo{}, err
	}

	if err := protocol.Validate(protocol.SchemaWorldInfo, raw); err != nil {
		return protocol.WorldInfo{}, &ProtocolError{Request: protocol.TagWorldInfo, Reason: "schema", Err: err}
	}
	var w protocol.WorldInfo
	if err := json.Unmarshal(raw, &w); err != nil {
		return protocol.WorldInfo{}, &ProtocolError{Request: protocol.TagWorldInfo, Reason: "decode", Err: err}
	}
	return w, nil
}

// RequestCharacterStatus fetches the character's current pose.
func (e *Exchange) RequestCharacterStatus(ctx context.Context) (protocol.CharacterState, error) {
	tag := protocol.TagCharacterStatus
	raw, err := e.submit(ctx, tag, func(s *stream) ([]byte, error) {
		return s.reply(ctx, tag)
	})
	if err != nil {
		return protocol.CharacterState{}, err
	}
	if err := protocol.Validate(protocol.SchemaCharacterStatus, raw); err != nil {
		return protocol.CharacterState{}, &ProtocolError{Request: tag, Reason: "schema", Err: err}
	}
	var reply protocol.CharacterStatusReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return protocol.CharacterState{}, &ProtocolError{Request: tag, Reason: "decode", Err: err}
	}
	return reply.State(), nil
}
