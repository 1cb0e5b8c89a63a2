package nav

import (
	"context"
	"errors"
	"testing"

	"renderbot.ai/internal/heightmap"
	"renderbot.ai/internal/protocol"
	"renderbot.ai/internal/renderertest"
)

// scripted replays a fixed sequence of poses; the last one repeats.
type scripted struct {
	world    protocol.WorldInfo
	states   []protocol.CharacterState
	statusN  int
	sent     []protocol.Instruction
	sendErr  error
	worldErr error
}

func (s *scripted) RequestWorldInfo(ctx context.Context) (protocol.WorldInfo, error) {
	return s.world, s.worldErr
}

func (s *scripted) RequestCharacterStatus(ctx context.Context) (protocol.CharacterState, error) {
	st := s.states[len(s.states)-1]
	if s.statusN < len(s.states) {
		st = s.states[s.statusN]
	}
	s.statusN++
	return st, nil
}

func (s *scripted) SendInstruction(ctx context.Context, inst protocol.Instruction) (protocol.GameEvent, error) {
	if s.sendErr != nil {
		return protocol.GameEvent{}, s.sendErr
	}
	s.sent = append(s.sent, inst)
	return protocol.GameEvent{Instruction: inst, Status: "true", Message: "ok"}, nil
}

type failingSink struct{ calls int }

func (f *failingSink) Append(protocol.GameEvent) error {
	f.calls++
	return errors.New("disk full")
}

func standing(x, z float64, next protocol.Coord) protocol.CharacterState {
	return protocol.CharacterState{Current: protocol.Position{X: x, Y: 2, Z: z}, Next: next, Direction: protocol.DirXPositive}
}

func TestRun_IdleStopsAfterMaxIterations(t *testing.T) {
	r := &scripted{
		world:  protocol.WorldInfo{World: protocol.WorldData{Blocks: []protocol.Feature{{X: 1, Z: 0, Height: 1}}}},
		states: []protocol.CharacterState{standing(0, 0, protocol.Coord{X: 1, Z: 0})},
	}
	p := New(r, DefaultConfig(), nil)

	res, err := p.Run(context.Background(), Idle)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Iterations != 26 || r.statusN != 26 {
		t.Fatalf("iterations=%d status requests=%d want 26", res.Iterations, r.statusN)
	}
	if res.ReachedGoal || len(r.sent) != 0 || res.Events != 0 {
		t.Fatalf("unexpected result %+v sent=%v", res, r.sent)
	}
}

func TestRun_StopsAtGoalAfterExecutingMove(t *testing.T) {
	goal := protocol.Coord{X: -10, Z: 7}
	r := &scripted{
		world: protocol.WorldInfo{World: protocol.WorldData{Blocks: []protocol.Feature{{X: -10, Z: 7, Height: 1}, {X: -11, Z: 7, Height: 1}}}},
		states: []protocol.CharacterState{
			standing(-12, 7, protocol.Coord{X: -11, Z: 7}),
			standing(-11, 7, goal),
			standing(-10, 7, protocol.Coord{X: -9, Z: 7}),
		},
	}
	p := New(r, DefaultConfig(), nil)

	res, err := p.Run(context.Background(), Explore)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.ReachedGoal || res.Iterations != 2 {
		t.Fatalf("result=%+v", res)
	}
	if len(r.sent) != 2 || r.sent[1] != protocol.Walk {
		t.Fatalf("sent=%v: the goal iteration still executes its move", r.sent)
	}
	if p.Journal().Len() != 2 || res.Final.Next != goal {
		t.Fatalf("journal=%d final=%+v", p.Journal().Len(), res.Final)
	}
}

func TestRun_ConfigurableBounds(t *testing.T) {
	r := &scripted{
		world:  protocol.WorldInfo{},
		states: []protocol.CharacterState{standing(0, 0, protocol.Coord{X: 1, Z: 0})},
	}
	p := New(r, Config{MaxIterations: 3, Goal: protocol.Coord{X: 99, Z: 99}}, nil)
	res, err := p.Run(context.Background(), Idle)
	if err != nil || res.Iterations != 3 {
		t.Fatalf("res=%+v err=%v", res, err)
	}
}

func TestNew_ZeroGoalIsOrigin(t *testing.T) {
	r := &scripted{
		world:  protocol.WorldInfo{World: protocol.WorldData{Blocks: []protocol.Feature{{X: 0, Z: 0, Height: 1}}}},
		states: []protocol.CharacterState{standing(-1, 0, protocol.Coord{X: 0, Z: 0})},
	}
	p := New(r, Config{}, nil)
	res, err := p.Run(context.Background(), Idle)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.ReachedGoal || res.Iterations != 1 {
		t.Fatalf("res=%+v: a zero Goal targets (0,0)", res)
	}

	r.statusN = 0
	p = New(r, DefaultConfig(), nil)
	if res, _ := p.Run(context.Background(), Idle); res.ReachedGoal || res.Iterations != DefaultMaxIterations {
		t.Fatalf("default goal: res=%+v", res)
	}
}

func TestStep_RequiresIndex(t *testing.T) {
	p := New(&scripted{}, DefaultConfig(), nil)
	if _, err := p.Step(context.Background(), Idle); err == nil {
		t.Fatalf("expected error without height index")
	}
}

func TestRun_PropagatesExchangeErrors(t *testing.T) {
	boom := errors.New("boom")
	r := &scripted{
		world:   protocol.WorldInfo{World: protocol.WorldData{Blocks: []protocol.Feature{{X: 1, Z: 0, Height: 1}}}},
		states:  []protocol.CharacterState{standing(0, 0, protocol.Coord{X: 1, Z: 0})},
		sendErr: boom,
	}
	p := New(r, DefaultConfig(), nil)
	res, err := p.Run(context.Background(), Explore)
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped boom, got %v", err)
	}
	if res.Iterations != 1 {
		t.Fatalf("iterations=%d", res.Iterations)
	}

	r2 := &scripted{worldErr: boom}
	if _, err := New(r2, DefaultConfig(), nil).Run(context.Background(), Idle); !errors.Is(err, boom) {
		t.Fatalf("expected world load error, got %v", err)
	}
}

func TestRun_SinkFailures(t *testing.T) {
	mk := func() *scripted {
		return &scripted{
			world:  protocol.WorldInfo{World: protocol.WorldData{Blocks: []protocol.Feature{{X: 1, Z: 0, Height: 1}}}},
			states: []protocol.CharacterState{standing(0, 0, protocol.Coord{X: 1, Z: 0})},
		}
	}

	optional := &failingSink{}
	p := New(mk(), Config{MaxIterations: 4}, nil)
	p.AddSink("feed", optional, false)
	if _, err := p.Run(context.Background(), Explore); err != nil {
		t.Fatalf("optional sink failure must not abort: %v", err)
	}
	if optional.calls != 4 {
		t.Fatalf("sink calls=%d", optional.calls)
	}

	required := &failingSink{}
	p = New(mk(), Config{MaxIterations: 4}, nil)
	p.AddSink("eventlog", required, true)
	if _, err := p.Run(context.Background(), Explore); err == nil {
		t.Fatalf("required sink failure must abort")
	}
	if required.calls != 1 {
		t.Fatalf("sink calls=%d", required.calls)
	}
}

func TestRun_CancelledContext(t *testing.T) {
	r := &scripted{states: []protocol.CharacterState{standing(0, 0, protocol.Coord{X: 1, Z: 0})}}
	p := New(r, DefaultConfig(), nil)
	p.UseIndex(heightmap.Build())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Run(ctx, Idle); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

// Explore walks the simulated character along +X onto the goal cell.
func TestRun_AgainstSimulatedWorld(t *testing.T) {
	w := renderertest.FlatWorld(4, 4)
	r := &worldRenderer{w: w}
	p := New(r, Config{MaxIterations: 10, Goal: protocol.Coord{X: 3, Z: 0}}, nil)

	res, err := p.Run(context.Background(), Explore)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.ReachedGoal {
		t.Fatalf("expected to reach (3,0): %+v", res)
	}
	pos, _ := w.Character()
	if pos.X != 3 || pos.Z != 0 {
		t.Fatalf("character at %+v", pos)
	}
	for _, ev := range p.Journal().Events() {
		if !ev.Status.OK() {
			t.Fatalf("failed event %+v", ev)
		}
	}
}
