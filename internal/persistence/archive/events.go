// Package archive keeps a compressed, replayable copy of every game event.
package archive

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"renderbot.ai/internal/protocol"
)

const Prefix = "events"

// Record is one archived event.
type Record struct {
	Time        time.Time         `json:"time"`
	Session     string            `json:"session"`
	Seq         int               `json:"seq"`
	Instruction string            `json:"instruction"`
	Status      protocol.Status   `json:"status"`
	Message     string            `json:"message"`
	Position    protocol.Position `json:"position"`
}

func (r Record) Event() (protocol.GameEvent, error) {
	inst, ok := protocol.ParseInstruction(r.Instruction)
	if !ok {
		return protocol.GameEvent{}, fmt.Errorf("record %d: unknown instruction %q", r.Seq, r.Instruction)
	}
	return protocol.GameEvent{Instruction: inst, Status: r.Status, Message: r.Message, Position: r.Position}, nil
}

// EventArchive appends the events of one session. It implements nav.Sink.
type EventArchive struct {
	w       *JSONLZstdWriter
	session string

	mu  sync.Mutex
	seq int
}

func NewEventArchive(dir, session string) *EventArchive {
	return &EventArchive{w: NewJSONLZstdWriter(dir, Prefix), session: session}
}

func (a *EventArchive) Append(ev protocol.GameEvent) error {
	a.mu.Lock()
	a.seq++
	rec := Record{
		Time:        a.w.now().UTC(),
		Session:     a.session,
		Seq:         a.seq,
		Instruction: ev.Instruction.Tag(),
		Status:      ev.Status,
		Message:     ev.Message,
		Position:    ev.Position,
	}
	a.mu.Unlock()
	return a.w.Write(rec)
}

func (a *EventArchive) Close() error { return a.w.Close() }

// Files lists the archive files under dir, oldest first.
func Files(dir string) ([]string, error) {
	out, err := filepath.Glob(filepath.Join(dir, Prefix+"-*.jsonl.zst"))
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

// ReadFile decodes every record in one archive file.
func ReadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var out []Record
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var r Record
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			return out, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		out = append(out, r)
	}
	return out, sc.Err()
}

// ReadDir decodes all archive files under dir in name order.
func ReadDir(dir string) ([]Record, error) {
	files, err := Files(dir)
	if err != nil {
		return nil, err
	}
	var out []Record
	for _, p := range files {
		recs, err := ReadFile(p)
		if err != nil {
			return out, err
		}
		out = append(out, recs...)
	}
	return out, nil
}
