// Package events delivers domain events published by the dms service to
// sinks on a background consumer.
package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"dms/internal/dms"
)

// Sink receives delivered events.
type Sink interface {
	Handle(ctx context.Context, e dms.Event) error
}

// Observer is notified of delivery outcomes.
type Observer interface {
	EventDelivered(t dms.EventType, err error)
	EventDropped(t dms.EventType)
}

type nopObserver struct{}

func (nopObserver) EventDelivered(dms.EventType, error) {}
func (nopObserver) EventDropped(dms.EventType)          {}

// Queue is a bounded in-process event queue. Publish never blocks: when the
// buffer is full the event is dropped and counted.
type Queue struct {
	ch       chan dms.Event
	sinks    []Sink
	logger   dms.Logger
	observer Observer
	dropped  atomic.Int64

	closeOnce sync.Once
	closed    chan struct{}
}

var _ dms.Publisher = (*Queue)(nil)

// NewQueue creates a queue buffering up to size events.
func NewQueue(size int, logger dms.Logger, observer Observer, sinks ...Sink) *Queue {
	if size < 1 {
		size = 1
	}
	if logger == nil {
		logger = dms.NewNopLogger()
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &Queue{
		ch:       make(chan dms.Event, size),
		sinks:    sinks,
		logger:   logger,
		observer: observer,
		closed:   make(chan struct{}),
	}
}

// Publish enqueues e without blocking.
func (q *Queue) Publish(e dms.Event) {
	select {
	case <-q.closed:
		q.drop(e, "queue closed")
		return
	default:
	}
	select {
	case q.ch <- e:
	default:
		q.drop(e, "queue full")
	}
}

func (q *Queue) drop(e dms.Event, reason string) {
	q.dropped.Add(1)
	q.observer.EventDropped(e.Type)
	q.logger.Warn("event dropped", "type", e.Type, "file_id", e.FileID, "reason", reason)
}

// Dropped returns how many events were dropped so far.
func (q *Queue) Dropped() int64 { return q.dropped.Load() }

// Len returns the number of buffered events.
func (q *Queue) Len() int { return len(q.ch) }

// Close stops accepting events. Buffered events can still be drained.
func (q *Queue) Close() {
	q.closeOnce.Do(func() { close(q.closed) })
}

// Run delivers events until ctx is cancelled, then drains what is buffered.
func (q *Queue) Run(ctx context.Context) error {
	for {
		select {
		case e := <-q.ch:
			q.deliver(ctx, e)
		case <-ctx.Done():
			q.Close()
			return q.Drain(context.WithoutCancel(ctx))
		}
	}
}

// Drain delivers every buffered event and returns. One-shot commands call it
// before exiting.
func (q *Queue) Drain(ctx context.Context) error {
	for {
		select {
		case e := <-q.ch:
			q.deliver(ctx, e)
		default:
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

func (q *Queue) deliver(ctx context.Context, e dms.Event) {
	var errs []error
	for _, s := range q.sinks {
		if err := s.Handle(ctx, e); err != nil {
			q.logger.Error("event sink failed", "type", e.Type, "file_id", e.FileID, "error", err)
			errs = append(errs, err)
		}
	}
	q.observer.EventDelivered(e.Type, errors.Join(errs...))
}
