package sink

import (
	"context"
	"log/slog"

	"call-lab/domain/event"
)

// ConnSink buffers events bound for a single connection. The gateway write
// pump is the only consumer. A full buffer blocks the producer until space
// frees up or its deadline expires, at which point the event is dropped
// (clients reconcile via the presence snapshot on reconnect).
type ConnSink struct {
	Events chan event.DomainEvent
	log    *slog.Logger
}

func NewConnSink(log *slog.Logger, bufferSize int) *ConnSink {
	return &ConnSink{
		Events: make(chan event.DomainEvent, bufferSize),
		log:    log,
	}
}

// Consume is called by the fanout worker and the call coordinator.
// It hands the event to the connection's writer goroutine, waiting at
// most until ctx expires when the buffer is full.
func (s *ConnSink) Consume(ctx context.Context, e event.DomainEvent) error {
	select {
	case s.Events <- e:
		return nil
	case <-ctx.Done():
		s.log.Debug("Connection sink full, dropping event", "type", e.EventType())
		return ctx.Err()
	}
}
