package report

import (
	"context"
	"sync"

	"github.com/futig/risk-report-backend/internal/entity"
)

// EventQueue is an EventSink with an unbounded buffer. Emit never blocks; a pump goroutine
// hands the events in order to whoever reads Events. The channel is closed after Close once
// everything emitted before it has been delivered, so the reader must drain it.
type EventQueue struct {
	mu      sync.Mutex
	pending []entity.WorkflowEvent
	closed  bool
	wake    chan struct{}
	out     chan entity.WorkflowEvent
}

func NewEventQueue() *EventQueue {
	q := &EventQueue{
		wake: make(chan struct{}, 1),
		out:  make(chan entity.WorkflowEvent),
	}
	go q.pump()
	return q
}

func (q *EventQueue) Emit(_ context.Context, event entity.WorkflowEvent) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.pending = append(q.pending, event)
	q.mu.Unlock()

	q.signal()
}

// Close stops accepting events. Already queued events are still delivered.
func (q *EventQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.signal()
}

func (q *EventQueue) Events() <-chan entity.WorkflowEvent {
	return q.out
}

func (q *EventQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *EventQueue) pump() {
	defer close(q.out)

	for {
		q.mu.Lock()
		batch := q.pending
		q.pending = nil
		closed := q.closed
		q.mu.Unlock()

		for _, event := range batch {
			q.out <- event
		}

		if len(batch) == 0 {
			if closed {
				return
			}
			<-q.wake
		}
	}
}

// RunSink defers building a sink until the run id is known from the start event.
// Events before the start event are dropped. A run emits sequentially, so Emit is not
// guarded for concurrent use.
type RunSink struct {
	build func(runID string) EventSink
	inner EventSink
}

func NewRunSink(build func(runID string) EventSink) *RunSink {
	return &RunSink{build: build}
}

func (s *RunSink) Emit(ctx context.Context, event entity.WorkflowEvent) {
	if event.Type == entity.EventStart {
		s.inner = s.build(event.RunID)
	}
	if s.inner != nil {
		s.inner.Emit(ctx, event)
	}
}

// MultiSink fans every event out to each sink in order. Nil sinks are skipped.
type MultiSink []EventSink

func (m MultiSink) Emit(ctx context.Context, event entity.WorkflowEvent) {
	for _, s := range m {
		if s != nil {
			s.Emit(ctx, event)
		}
	}
}

// SinkFunc adapts a function to EventSink
type SinkFunc func(ctx context.Context, event entity.WorkflowEvent)

func (f SinkFunc) Emit(ctx context.Context, event entity.WorkflowEvent) {
	f(ctx, event)
}

// Discard drops every event
var Discard EventSink = SinkFunc(func(context.Context, entity.WorkflowEvent) {})
