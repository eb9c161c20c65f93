package testutil

import (
	"sync"

	"dms/internal/dms"
)

// RecordingPublisher keeps every published event. Safe for concurrent use.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []dms.Event
}

func (p *RecordingPublisher) Publish(e dms.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

// Events returns a copy of the published events in order.
func (p *RecordingPublisher) Events() []dms.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]dms.Event(nil), p.events...)
}

// Types returns the published event types in order.
func (p *RecordingPublisher) Types() []dms.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]dms.EventType, len(p.events))
	for i, e := range p.events {
		types[i] = e.Type
	}
	return types
}

// Reset forgets everything published so far.
func (p *RecordingPublisher) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
}
