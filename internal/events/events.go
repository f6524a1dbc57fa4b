// Package events carries the kernel's status stream: one ordered event per
// cell state transition, consumed by the presentation layer.
package events

import (
	"sync"

	"github.com/google/uuid"
	"github.com/vk/cellgridgo/internal/cell"
)

// Event records a single cell status transition within a plan. Events are
// emitted as transitions happen, not only on completion, so a slow cell is
// visibly running before its result arrives.
type Event struct {
	PlanID uuid.UUID
	Cell   cell.ID
	Status cell.Status
	Err    error
}

// Sink consumes status events. Emit must not block the runner.
type Sink interface {
	Emit(Event)
}

// Stream is a channel-backed Sink. When the consumer falls behind and the
// buffer fills, the oldest event is dropped so the stream always converges on
// the latest statuses.
type Stream struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
}

// NewStream creates a stream with the given buffer size.
func NewStream(buffer int) *Stream {
	if buffer <= 0 {
		buffer = 256
	}
	return &Stream{ch: make(chan Event, buffer)}
}

// Emit implements Sink.
func (s *Stream) Emit(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for {
		select {
		case s.ch <- e:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}

// C returns the receive side of the stream.
func (s *Stream) C() <-chan Event {
	return s.ch
}

// Close closes the stream. Emit becomes a no-op.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Recorder is a Sink that retains every event, for tests and one-shot CLI
// runs that inspect the full transition history after the fact.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements Sink.
func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Tee fans one event out to several sinks.
type Tee []Sink

// Emit implements Sink.
func (t Tee) Emit(e Event) {
	for _, sink := range t {
		sink.Emit(e)
	}
}
