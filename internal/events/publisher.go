package events

import (
	"context"
	"errors"
)

// Publisher fans ledger events out to derived consumers. Events are derived
// data: services log publish failures and never roll back the operation.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// ErrBufferFull is returned when the in-process bus cannot keep up.
var ErrBufferFull = errors.New("event buffer full")

// Bus is the in-process channel publisher feeding the traceability worker.
type Bus struct {
	ch chan Event
}

func NewBus(size int) *Bus {
	if size <= 0 {
		size = 1024
	}
	return &Bus{ch: make(chan Event, size)}
}

// Publish enqueues without blocking the ledger operation. A full buffer drops
// the event; the traceability log is derivable and can be rebuilt.
func (b *Bus) Publish(_ context.Context, event Event) error {
	select {
	case b.ch <- event:
		return nil
	default:
		return ErrBufferFull
	}
}

// C exposes the consumption side for the worker.
func (b *Bus) C() <-chan Event { return b.ch }

// Fanout publishes to every sink, joining errors so one failing sink does not
// starve the others.
type Fanout struct {
	sinks []Publisher
}

func NewFanout(sinks ...Publisher) *Fanout {
	return &Fanout{sinks: sinks}
}

func (f *Fanout) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, sink := range f.sinks {
		if err := sink.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards events. Default wiring for tests that do not assert on them.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
