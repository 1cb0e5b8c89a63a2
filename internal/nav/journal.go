package nav

import (
	"sync"

	"renderbot.ai/internal/protocol"
)

// Journal is the session's ordered, append-only event log.
type Journal struct {
	mu     sync.RWMutex
	events []protocol.GameEvent
}

func (j *Journal) Append(ev protocol.GameEvent) error {
	j.mu.Lock()
	j.events = append(j.events, ev)
	j.mu.Unlock()
	return nil
}

func (j *Journal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.events)
}

// Events returns a copy of the log in append order.
func (j *Journal) Events() []protocol.GameEvent {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return append([]protocol.GameEvent(nil), j.events...)
}
