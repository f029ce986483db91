package sink

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"call-lab/domain/event"
)

func TestConnSink_Delivers_When_Buffer_Has_Room(t *testing.T) {
	req := require.New(t)
	connSink := NewConnSink(slog.Default(), 1)

	err := connSink.Consume(context.Background(), event.CallAccepted{CallID: "c1"})
	req.NoError(err)
	req.Len(connSink.Events, 1)
}

func TestConnSink_Full_Buffer_Waits_For_The_Deadline(t *testing.T) {
	req := require.New(t)
	connSink := NewConnSink(slog.Default(), 1)
	req.NoError(connSink.Consume(context.Background(), event.CallAccepted{CallID: "c1"}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := connSink.Consume(ctx, event.CallAccepted{CallID: "c2"})

	req.ErrorIs(err, context.DeadlineExceeded)
	req.GreaterOrEqual(time.Since(start), 50*time.Millisecond)
	req.Len(connSink.Events, 1)
}

func TestConnSink_Full_Buffer_Unblocks_When_The_Consumer_Drains(t *testing.T) {
	req := require.New(t)
	connSink := NewConnSink(slog.Default(), 1)
	req.NoError(connSink.Consume(context.Background(), event.CallAccepted{CallID: "c1"}))

	go func() {
		time.Sleep(20 * time.Millisecond)
		<-connSink.Events
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req.NoError(connSink.Consume(ctx, event.CallAccepted{CallID: "c2"}))
}
