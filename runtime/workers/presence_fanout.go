package workers

import (
	"context"
	"log/slog"
	"time"

	"call-lab/contract"
	"call-lab/observability"
)

// PresenceFanout drains the presence broadcast queue and delivers each
// change to the sink of every open connection.
//
// It provides best-effort fan-out with no guarantees regarding delivery,
// ordering across identities, durability, or retries. A slow connection
// cannot stall the queue: each sink delivery is bounded by sinkTimeout.
//
// Changes for one identity keep their queue order, which is what makes the
// per-identity ordering observable to clients match the order the store
// applied them in.
type PresenceFanout struct {
	log         *slog.Logger
	broadcasts  chan contract.Broadcast
	registry    contract.IRegistry
	monitoring  *observability.Manager
	sinkTimeout time.Duration
}

func NewPresenceFanout(log *slog.Logger, broadcasts chan contract.Broadcast,
	registry contract.IRegistry, monitoring *observability.Manager,
	sinkTimeout time.Duration) *PresenceFanout {
	return &PresenceFanout{
		log:         log,
		broadcasts:  broadcasts,
		registry:    registry,
		monitoring:  monitoring,
		sinkTimeout: sinkTimeout,
	}
}

func (w *PresenceFanout) Run(ctx context.Context) error {
	for {
		select {
		case broadcast := <-w.broadcasts:
			w.fanout(ctx, broadcast)
		case <-ctx.Done():
			w.log.Debug("Context done, stopping presence fanout")
			return nil
		}
	}
}

// fanout delivers one change to every sink, then closes Done. Whoever
// queued the change can therefore wait until the whole cycle completed,
// which is the confirmation the gateway teardown path relies on.
func (w *PresenceFanout) fanout(ctx context.Context, broadcast contract.Broadcast) {
	defer close(broadcast.Done)

	for _, sink := range w.registry.AllSinks() {
		deliveryCtx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
		if err := sink.Consume(deliveryCtx, broadcast.Change); err != nil {
			w.monitoring.IncrDroppedEvents()
			w.log.Debug("Presence delivery skipped", "identity", broadcast.Change.Identity, "error", err)
		}
		cancel()
	}
	w.monitoring.IncrPresenceBroadcasts()
}
