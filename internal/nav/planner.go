// Package nav turns a height map and the character's pose into movement
// feasibility and drives the bounded exploration loop.
package nav

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"renderbot.ai/internal/heightmap"
	"renderbot.ai/internal/protocol"
)

const DefaultMaxIterations = 26

// DefaultGoal is the cell that ends the loop once it is the next cell ahead.
var DefaultGoal = protocol.Coord{X: -10, Z: 7}

// Config bounds a run. Zero MaxIterations and JumpHeight fall back to their
// defaults, but Goal is taken as given: (0,0) is a real cell, so callers
// that do not pick a goal should start from DefaultConfig.
type Config struct {
	MaxIterations int
	JumpHeight    float64
	Goal          protocol.Coord
}

func DefaultConfig() Config {
	return Config{
		MaxIterations: DefaultMaxIterations,
		JumpHeight:    DefaultJumpHeight,
		Goal:          DefaultGoal,
	}
}

// Renderer is the slice of the message exchange the planner drives.
type Renderer interface {
	RequestWorldInfo(ctx context.Context) (protocol.WorldInfo, error)
	RequestCharacterStatus(ctx context.Context) (protocol.CharacterState, error)
	SendInstruction(ctx context.Context, inst protocol.Instruction) (protocol.GameEvent, error)
}

// Sink receives every event the planner produces.
type Sink interface {
	Append(ev protocol.GameEvent) error
}

type sinkEntry struct {
	sink     Sink
	name     string
	required bool
}

type Planner struct {
	cfg Config
	r   Renderer
	log *zap.Logger

	heights *heightmap.Index
	state   protocol.CharacterState
	journal Journal
	sinks   []sinkEntry
}

func New(r Renderer, cfg Config, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.JumpHeight <= 0 {
		cfg.JumpHeight = DefaultJumpHeight
	}
	return &Planner{cfg: cfg, r: r, log: logger}
}

// AddSink registers an event destination. A failing required sink aborts
// the run; other sink failures are only logged.
func (p *Planner) AddSink(name string, s Sink, required bool) {
	p.sinks = append(p.sinks, sinkEntry{sink: s, name: name, required: required})
}

// LoadWorld fetches the world snapshot and rebuilds the height index.
func (p *Planner) LoadWorld(ctx context.Context) (protocol.WorldInfo, error) {
	w, err := p.r.RequestWorldInfo(ctx)
	if err != nil {
		return protocol.WorldInfo{}, fmt.Errorf("load world: %w", err)
	}
	p.heights = heightmap.FromWorld(w)
	p.log.Info("height index built", zap.Int("features", w.FeatureCount()), zap.Int("cells", p.heights.Len()))
	return w, nil
}

// UseIndex installs a prebuilt height index, e.g. one read from a snapshot.
func (p *Planner) UseIndex(idx *heightmap.Index) { p.heights = idx }

func (p *Planner) Index() *heightmap.Index { return p.heights }

// State is the last character snapshot fetched.
func (p *Planner) State() protocol.CharacterState { return p.state }

func (p *Planner) Journal() *Journal { return &p.journal }

// StepResult describes one iteration.
type StepResult struct {
	State protocol.CharacterState
	Flags Flags
	Move  Move
	Event *protocol.GameEvent
}

// Step runs one iteration: refresh the pose, evaluate feasibility, ask the
// policy, execute its move.
func (p *Planner) Step(ctx context.Context, policy Policy) (StepResult, error) {
	if p.heights == nil {
		return StepResult{}, errors.New("height index not loaded")
	}
	st, err := p.r.RequestCharacterStatus(ctx)
	if err != nil {
		return StepResult{}, fmt.Errorf("character status: %w", err)
	}
	p.state = st

	res := StepResult{State: st, Flags: Evaluate(p.heights, st, p.cfg.JumpHeight)}
	res.Move = policy(res.Flags)

	inst, ok := res.Move.Instruction()
	if !ok {
		return res, nil
	}
	ev, err := p.r.SendInstruction(ctx, inst)
	if err != nil {
		return res, fmt.Errorf("%s: %w", inst, err)
	}
	res.Event = &ev
	if err := p.record(ev); err != nil {
		return res, err
	}
	return res, nil
}

func (p *Planner) record(ev protocol.GameEvent) error {
	_ = p.journal.Append(ev)
	for _, s := range p.sinks {
		if err := s.sink.Append(ev); err != nil {
			if s.required {
				return fmt.Errorf("sink %s: %w", s.name, err)
			}
			p.log.Warn("event sink failed", zap.String("sink", s.name), zap.Error(err))
		}
	}
	return nil
}

// Result summarises a Run.
type Result struct {
	Iterations  int
	ReachedGoal bool
	Final       protocol.CharacterState
	Events      int
}

// Run loops until MaxIterations iterations have run, or until an iteration
// starts with the goal as the next cell. That iteration's move still runs.
// The height index is loaded first if none is installed.
func (p *Planner) Run(ctx context.Context, policy Policy) (Result, error) {
	if policy == nil {
		policy = Idle
	}
	if p.heights == nil {
		if _, err := p.LoadWorld(ctx); err != nil {
			return Result{}, err
		}
	}

	var res Result
	for res.Iterations < p.cfg.MaxIterations {
		if err := ctx.Err(); err != nil {
			return p.finish(res), err
		}
		step, err := p.Step(ctx, policy)
		res.Iterations++
		if err != nil {
			return p.finish(res), fmt.Errorf("iteration %d: %w", res.Iterations, err)
		}
		p.log.Debug("iteration",
			zap.Int("n", res.Iterations),
			zap.Float64("x", step.State.Current.X), zap.Float64("y", step.State.Current.Y), zap.Float64("z", step.State.Current.Z),
			zap.String("dir", step.State.Direction.String()),
			zap.Bool("walk", step.Flags.CanWalk), zap.Bool("jump", step.Flags.CanJump),
			zap.Bool("left", step.Flags.CanTurnLeft), zap.Bool("right", step.Flags.CanTurnRight),
			zap.String("move", step.Move.String()))
		if step.State.Next == p.cfg.Goal {
			res.ReachedGoal = true
			break
		}
	}
	res = p.finish(res)
	p.log.Info("navigation finished",
		zap.Int("iterations", res.Iterations), zap.Bool("reached_goal", res.ReachedGoal), zap.Int("events", res.Events))
	return res, nil
}

func (p *Planner) finish(res Result) Result {
	res.Final = p.state
	res.Events = p.journal.Len()
	return res
}
