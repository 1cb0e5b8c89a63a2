package archive

import (
	"path/filepath"
	"testing"
	"time"

	"renderbot.ai/internal/protocol"
)

func TestEventArchive_RotatesHourly(t *testing.T) {
	dir := t.TempDir()
	a := NewEventArchive(dir, "s1")
	clock := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	a.w.now = func() time.Time { return clock }

	if err := a.Append(protocol.GameEvent{Instruction: protocol.Walk, Status: "true", Message: "moved", Position: protocol.Position{X: 1, Y: 2}}); err != nil {
		t.Fatalf("append: %v", err)
	}
	clock = clock.Add(2 * time.Minute)
	if err := a.Append(protocol.GameEvent{Instruction: protocol.Jump, Status: "ok", Message: "jumped", Position: protocol.Position{X: 2, Y: 3}}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, err := Files(dir)
	if err != nil {
		t.Fatalf("files: %v", err)
	}
	if len(files) != 2 || filepath.Base(files[0]) != "events-2026-03-01-10.jsonl.zst" {
		t.Fatalf("files=%v", files)
	}

	recs, err := ReadDir(dir)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(recs) != 2 || recs[0].Seq != 1 || recs[1].Seq != 2 || recs[1].Session != "s1" {
		t.Fatalf("records=%+v", recs)
	}
	ev, err := recs[1].Event()
	if err != nil {
		t.Fatalf("event: %v", err)
	}
	if ev.Instruction != protocol.Jump || ev.Status != "ok" || ev.Position.Y != 3 {
		t.Fatalf("event=%+v", ev)
	}
}

func TestEventArchive_AppendsToExistingHour(t *testing.T) {
	dir := t.TempDir()
	fixed := func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) }
	for i := 0; i < 2; i++ {
		a := NewEventArchive(dir, "s")
		a.w.now = fixed
		if err := a.Append(protocol.GameEvent{Instruction: protocol.RotateLeft, Status: "true"}); err != nil {
			t.Fatalf("append: %v", err)
		}
		_ = a.Close()
	}
	recs, err := ReadDir(dir)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("records=%d want 2 across concatenated frames", len(recs))
	}
}
