// Package eventlog writes the session's events as newline-delimited text,
// one "<instruction>:<status>:<message>:<x>,<y>,<z>" line per event.
package eventlog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"renderbot.ai/internal/protocol"
)

// Format renders one event as a log line without the trailing newline.
func Format(ev protocol.GameEvent) string {
	var b strings.Builder
	b.WriteString(ev.Instruction.Tag())
	b.WriteByte(':')
	b.WriteString(string(ev.Status))
	b.WriteByte(':')
	b.WriteString(ev.Message)
	b.WriteByte(':')
	b.WriteString(num(ev.Position.X))
	b.WriteByte(',')
	b.WriteString(num(ev.Position.Y))
	b.WriteByte(',')
	b.WriteString(num(ev.Position.Z))
	return b.String()
}

func num(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

// Parse reads a line written by Format. The message may itself contain ':'.
func Parse(line string) (protocol.GameEvent, error) {
	line = strings.TrimRight(line, "\r\n")
	tag, rest, ok := strings.Cut(line, ":")
	if !ok {
		return protocol.GameEvent{}, fmt.Errorf("event line %q: missing fields", line)
	}
	inst, ok := protocol.ParseInstruction(tag)
	if !ok {
		return protocol.GameEvent{}, fmt.Errorf("event line %q: unknown instruction %q", line, tag)
	}
	status, rest, ok := strings.Cut(rest, ":")
	if !ok {
		return protocol.GameEvent{}, fmt.Errorf("event line %q: missing fields", line)
	}
	i := strings.LastIndexByte(rest, ':')
	if i < 0 {
		return protocol.GameEvent{}, fmt.Errorf("event line %q: missing position", line)
	}
	msg, posText := rest[:i], rest[i+1:]

	parts := strings.Split(posText, ",")
	if len(parts) != 3 {
		return protocol.GameEvent{}, fmt.Errorf("event line %q: position %q", line, posText)
	}
	var xyz [3]float64
	for k, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return protocol.GameEvent{}, fmt.Errorf("event line %q: position: %w", line, err)
		}
		xyz[k] = v
	}
	return protocol.GameEvent{
		Instruction: inst,
		Status:      protocol.Status(status),
		Message:     msg,
		Position:    protocol.Position{X: xyz[0], Y: xyz[1], Z: xyz[2]},
	}, nil
}

// ReadAll parses every non-empty line from r.
func ReadAll(r io.Reader) ([]protocol.GameEvent, error) {
	var out []protocol.GameEvent
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	n := 0
	for sc.Scan() {
		n++
		if strings.TrimSpace(sc.Text()) == "" {
			continue
		}
		ev, err := Parse(sc.Text())
		if err != nil {
			return out, fmt.Errorf("line %d: %w", n, err)
		}
		out = append(out, ev)
	}
	return out, sc.Err()
}

// FileLog appends event lines to a file. It implements nav.Sink.
type FileLog struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

func Open(path string) (*FileLog, error) {
	if path == "" {
		return nil, fmt.Errorf("empty event log path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileLog{f: f, path: path}, nil
}

func (l *FileLog) Path() string { return l.path }

func (l *FileLog) Append(ev protocol.GameEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return os.ErrClosed
	}
	_, err := l.f.WriteString(Format(ev) + "\n")
	return err
}

func (l *FileLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Sync()
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	l.f = nil
	return err
}
