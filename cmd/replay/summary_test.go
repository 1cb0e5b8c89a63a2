package main

import (
	"strings"
	"testing"

	"renderbot.ai/internal/eventlog"
	"renderbot.ai/internal/heightmap"
	"renderbot.ai/internal/protocol"
)

func TestSummarize(t *testing.T) {
	log := "WALK:true:moved:1,2,0\nJUMP:false:blocked:1,2,0\nROTATE_LEFT:true:rotated:1,2,0\nWALK:true:moved:1,2,-1\n"
	evs, err := eventlog.ReadAll(strings.NewReader(log))
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	idx := heightmap.Build([]protocol.Feature{{X: 1, Z: 0, Height: 1}})

	s := Summarize(evs, idx)
	if s.Events != 4 || s.OK != 3 || s.Failed != 1 || s.ByTag["WALK"] != 2 {
		t.Fatalf("summary=%+v", s)
	}
	if s.Distance != 1 || s.Final != (protocol.Position{X: 1, Y: 2, Z: -1}) {
		t.Fatalf("distance=%v final=%+v", s.Distance, s.Final)
	}
	if s.OffMap != 1 {
		t.Fatalf("off_map=%d want 1", s.OffMap)
	}
	if got := s.String(); !strings.Contains(got, "JUMP=1 ROTATE_LEFT=1 WALK=2") {
		t.Fatalf("String=%q", got)
	}
}

func TestSummarize_NoIndex(t *testing.T) {
	s := Summarize([]protocol.GameEvent{{Instruction: protocol.Walk, Status: "ok"}}, nil)
	if s.OffMap != 0 || s.OK != 1 {
		t.Fatalf("summary=%+v", s)
	}
}
