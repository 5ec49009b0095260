package audit

import (
	"context"
	"sync"
)

// Log is an in-memory Recorder, used in tests and embedded setups.
type Log struct {
	mu     sync.Mutex
	events []Event
}

// NewLog creates an empty in-memory recorder.
func NewLog() *Log {
	return &Log{}
}

// Record appends the event.
func (l *Log) Record(_ context.Context, event Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	return nil
}

// Events returns a copy of all recorded events in order.
func (l *Log) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// ByKind returns recorded events of the given kind, in order.
func (l *Log) ByKind(kind string) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Event
	for _, e := range l.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}
