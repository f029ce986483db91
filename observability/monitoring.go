package observability

import (
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// RecentCallInfo is one archived call, kept for the stats endpoint.
type RecentCallInfo struct {
	ID       string `json:"id"`
	Caller   string `json:"caller"`
	Callee   string `json:"callee"`
	Reason   string `json:"reason"`
	EndedAt  string `json:"ended_at"`
	Duration string `json:"duration"`
}

// Stats aggregates every metric exposed on the query server.
type Stats struct {
	ActiveConnections int `json:"active_connections"`
	ActiveCalls       int `json:"active_calls"`
	OnlineIdentities  int `json:"online_identities"`

	CallsInitiated     uint64 `json:"calls_initiated"`
	SignalsRelayed     uint64 `json:"signals_relayed"`
	PresenceBroadcasts uint64 `json:"presence_broadcasts"`
	DroppedEvents      uint64 `json:"dropped_events"`

	AllocMemMb  uint64           `json:"alloc_mem_mb"`
	NumGC       uint32           `json:"num_gc"`
	RecentCalls []RecentCallInfo `json:"recent_calls"`
}

// Manager collects real-time telemetry. Counters are atomics so the hot
// paths never contend on the mutex; gauges are sampled by the heartbeat
// worker on its tick.
type Manager struct {
	log         *slog.Logger
	mu          sync.RWMutex
	latestStats Stats

	callsInitiated     uint64
	signalsRelayed     uint64
	presenceBroadcasts uint64
	droppedEvents      uint64
}

func NewManager(log *slog.Logger) *Manager {
	return &Manager{
		log: log,
		latestStats: Stats{
			RecentCalls: make([]RecentCallInfo, 0),
		},
	}
}

func (m *Manager) IncrCallsInitiated() {
	atomic.AddUint64(&m.callsInitiated, 1)
}

func (m *Manager) IncrSignalsRelayed() {
	atomic.AddUint64(&m.signalsRelayed, 1)
}

func (m *Manager) IncrPresenceBroadcasts() {
	atomic.AddUint64(&m.presenceBroadcasts, 1)
}

func (m *Manager) IncrDroppedEvents() {
	atomic.AddUint64(&m.droppedEvents, 1)
}

// AddCall records an archived call, newest first, capped at 20.
func (m *Manager) AddCall(id, caller, callee, reason string, endedAt time.Time, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	call := RecentCallInfo{
		ID:       id,
		Caller:   caller,
		Callee:   callee,
		Reason:   reason,
		EndedAt:  endedAt.Format("15:04:05"),
		Duration: duration.Round(time.Millisecond).String(),
	}

	m.latestStats.RecentCalls = append([]RecentCallInfo{call}, m.latestStats.RecentCalls...)
	if len(m.latestStats.RecentCalls) > 20 {
		m.latestStats.RecentCalls = m.latestStats.RecentCalls[:20]
	}
}

// UpdateGauges is called by the heartbeat worker with freshly sampled
// values; it also refreshes the cumulative counters and memory stats.
func (m *Manager) UpdateGauges(connections, calls, online int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.latestStats.ActiveConnections = connections
	m.latestStats.ActiveCalls = calls
	m.latestStats.OnlineIdentities = online

	m.latestStats.CallsInitiated = atomic.LoadUint64(&m.callsInitiated)
	m.latestStats.SignalsRelayed = atomic.LoadUint64(&m.signalsRelayed)
	m.latestStats.PresenceBroadcasts = atomic.LoadUint64(&m.presenceBroadcasts)
	m.latestStats.DroppedEvents = atomic.LoadUint64(&m.droppedEvents)

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	m.latestStats.AllocMemMb = ms.Alloc / 1024 / 1024
	m.latestStats.NumGC = ms.NumGC

	m.log.Debug("Stats updated",
		"connections", connections,
		"calls", calls,
		"mem_mb", m.latestStats.AllocMemMb,
	)
}

func (m *Manager) GetLatest() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latestStats
}
