package workers

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"

	"call-lab/observability"
)

// Counters are the live gauges the heartbeat samples on each tick.
type Counters interface {
	ActiveConnectionCount() int
	ActiveCallCount() int
	OnlineIdentityCount() int
}

type HeartbeatWorker struct {
	log        *slog.Logger
	counters   Counters
	monitoring *observability.Manager
	interval   time.Duration
}

func NewHeartbeatWorker(log *slog.Logger, counters Counters,
	monitoring *observability.Manager, interval time.Duration) *HeartbeatWorker {
	return &HeartbeatWorker{
		log:        log,
		counters:   counters,
		monitoring: monitoring,
		interval:   interval,
	}
}

// Run executes the main loop of the worker, logging health metrics (CPU, RAM, Status)
// and refreshing the gauges exposed on the query server.
func (w *HeartbeatWorker) Run(ctx context.Context) error {
	w.log.Info("Starting heartbeat worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.monitoring.UpdateGauges(
				w.counters.ActiveConnectionCount(),
				w.counters.ActiveCallCount(),
				w.counters.OnlineIdentityCount(),
			)

			rss, cpu, status, err := getSelfStats(p)
			if err != nil {
				w.log.Error("Failed to collect self stats", "err", err)
				continue
			}

			stats := w.monitoring.GetLatest()
			w.log.Info("Heartbeat",
				"pid_status", status,
				"cpu_percent", cpu,
				"ram_bytes", rss,
				"connections", stats.ActiveConnections,
				"calls", stats.ActiveCalls,
				"broadcasts", stats.PresenceBroadcasts,
			)
		}
	}
}

// getSelfStats retrieves technical metrics (Memory, CPU, and OS Status) for the given process.
func getSelfStats(p *process.Process) (uint64, float64, string, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, "", err
	}

	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, "", err
	}

	status, err := p.Status()
	if err != nil {
		return 0, 0, "", err
	}
	return memInfo.RSS, cpuPercent, status, nil
}
