package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"call-lab/auth"
	"call-lab/domain"
	"call-lab/domain/event"
	"call-lab/observability"
	"call-lab/runtime"
	"call-lab/runtime/workers"
	"call-lab/services"
)

type memoryPresenceRepo struct {
	mu      sync.Mutex
	records map[domain.IdentityID]domain.PresenceRecord
}

func newMemoryPresenceRepo() *memoryPresenceRepo {
	return &memoryPresenceRepo{records: make(map[domain.IdentityID]domain.PresenceRecord)}
}

func (m *memoryPresenceRepo) Put(record domain.PresenceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.Identity] = record
	return nil
}

func (m *memoryPresenceRepo) Get(identity domain.IdentityID) (domain.PresenceRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[identity]
	return record, ok, nil
}

func (m *memoryPresenceRepo) List() ([]domain.PresenceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.PresenceRecord, 0, len(m.records))
	for _, record := range m.records {
		out = append(out, record)
	}
	return out, nil
}

// newWiredGateway assembles the real presence path: registry, store, fanout
// worker and gateway, with only the call side faked.
func newWiredGateway(t *testing.T) *httptest.Server {
	t.Helper()
	log := slog.Default()
	registry := runtime.NewRegistry()
	store := runtime.NewPresenceStore(log, newMemoryPresenceRepo(), nil, 64)
	monitoring := observability.NewManager(log)

	fanout := workers.NewPresenceFanout(log, store.Broadcasts(), registry, monitoring, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go fanout.Run(ctx)

	server := NewServer(log, auth.NewJWTVerifier(gatewaySecret), registry,
		services.NewPresenceService(store), &fakeCalls{}, 64, 2*time.Second)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return ts
}

// awaitPresenceChange reads frames until it sees the given identity in the
// given status, recording every change observed for that identity on the way.
func awaitPresenceChange(t *testing.T, ws *websocket.Conn, identity domain.IdentityID,
	status domain.Status) []domain.Status {
	t.Helper()
	req := require.New(t)
	var seen []domain.Status
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		envelope := readEnvelope(t, ws)
		if envelope.Type != "PresenceChanged" {
			continue
		}
		var change event.PresenceChanged
		req.NoError(json.Unmarshal(envelope.Payload, &change))
		if change.Identity != identity {
			continue
		}
		seen = append(seen, change.Status)
		if change.Status == status {
			return seen
		}
	}
	t.Fatalf("never observed %s in status %s, saw %v", identity, status, seen)
	return nil
}

func TestGateway_Explicit_Offline_Reaches_Watcher_Before_Teardown(t *testing.T) {
	req := require.New(t)
	ts := newWiredGateway(t)

	// Given a connected watcher
	watcher := dial(t, ts, "alice")
	readEnvelope(t, watcher) // snapshot

	// And a second client that came online
	bob := dial(t, ts, "bob")
	readEnvelope(t, bob) // snapshot
	seen := awaitPresenceChange(t, watcher, "bob", domain.StatusOnline)
	req.Equal([]domain.Status{domain.StatusOnline}, seen)

	// When that client reports offline and immediately closes the socket
	frame, _ := json.Marshal(Envelope{
		Type:    TypeSetPresence,
		Payload: json.RawMessage(`{"status":"offline"}`),
	})
	req.NoError(bob.WriteMessage(websocket.TextMessage, frame))
	req.NoError(bob.Close())

	// Then the watcher still receives the offline change
	awaitPresenceChange(t, watcher, "bob", domain.StatusOffline)
}
