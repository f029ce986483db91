package runtime

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"

	"call-lab/contract"
	"call-lab/domain"
	"call-lab/domain/event"
	"call-lab/errors"
	"call-lab/moderation"
)

// PresenceStore holds the last-known status per identity and feeds every
// change to the fanout worker. Records are created lazily on first
// connection and never deleted; writes go through to the repository so a
// restart keeps last-seen state.
//
// Every change returns a done channel closed after one full broadcast
// cycle. The gateway close path waits on it (bounded by the grace deadline)
// so an explicit status change is never beaten by the teardown of the very
// connection that issued it.
type PresenceStore struct {
	mu         sync.Mutex
	log        *slog.Logger
	records    map[domain.IdentityID]domain.PresenceRecord
	repository contract.IPresenceRepository
	filter     *moderation.StatusFilter
	broadcasts chan contract.Broadcast
}

func NewPresenceStore(log *slog.Logger, repository contract.IPresenceRepository,
	filter *moderation.StatusFilter, bufferSize int) *PresenceStore {
	return &PresenceStore{
		log:        log,
		records:    make(map[domain.IdentityID]domain.PresenceRecord),
		repository: repository,
		filter:     filter,
		broadcasts: make(chan contract.Broadcast, bufferSize),
	}
}

// Load hydrates last-known records from the repository at startup.
func (p *PresenceStore) Load() error {
	records, err := p.repository.List()
	if err != nil {
		return fmt.Errorf("hydrate presence records: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, record := range records {
		// Nobody is connected yet: whatever was stored, the identity is
		// offline until its first connection of this process lifetime.
		record.Status = domain.StatusOffline
		record.CustomStatus = ""
		p.records[record.Identity] = record
	}
	p.log.Info(fmt.Sprintf("%d presence records hydrated", len(records)))
	return nil
}

// Broadcasts is consumed by the presence fanout worker.
func (p *PresenceStore) Broadcasts() chan contract.Broadcast {
	return p.broadcasts
}

// SetStatus applies an explicit status intent, stamps lastSeenAt and queues
// a broadcast. The returned channel closes once the broadcast cycle for
// this exact change completed.
func (p *PresenceStore) SetStatus(identity domain.Identity, status domain.Status,
	customStatus string) (<-chan struct{}, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", errors.ErrInvalidStatus, status)
	}
	if customStatus != "" && p.filter != nil {
		customStatus = p.filter.Sanitize(customStatus)
	}

	p.mu.Lock()
	record := p.records[identity.ID]
	record.Identity = identity.ID
	if identity.DisplayName != "" {
		record.DisplayName = identity.DisplayName
	}
	record.Status = status
	record.CustomStatus = customStatus
	record.LastSeenAt = time.Now().UTC()
	p.records[identity.ID] = record
	p.mu.Unlock()

	// Durability is delegated to the external store; a failed put must not
	// block the broadcast.
	if err := p.repository.Put(record); err != nil {
		p.log.Warn("Failed to persist presence record", "identity", identity.ID, "error", err)
	}

	return p.publish(record), nil
}

// HandleOnline is the registry's BecameOnline hook.
func (p *PresenceStore) HandleOnline(identity domain.Identity) <-chan struct{} {
	done, _ := p.SetStatus(identity, domain.StatusOnline, "")
	return done
}

// HandleOffline is the registry's BecameOffline hook.
func (p *PresenceStore) HandleOffline(identity domain.Identity) <-chan struct{} {
	done, _ := p.SetStatus(identity, domain.StatusOffline, "")
	return done
}

// Snapshot returns every known record, for the reconciliation message sent
// on each new connection.
func (p *PresenceStore) Snapshot() []domain.PresenceRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	return lo.Values(p.records)
}

// Get returns the last-known record for one identity.
func (p *PresenceStore) Get(identity domain.IdentityID) (domain.PresenceRecord, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	record, ok := p.records[identity]
	return record, ok
}

// publish queues the change for the fanout worker. Fan-out is best-effort:
// if the queue is full the change is dropped and its done channel closes
// immediately so no teardown path can deadlock on it.
func (p *PresenceStore) publish(record domain.PresenceRecord) <-chan struct{} {
	broadcast := contract.Broadcast{
		Change: event.PresenceChanged{
			Identity:     record.Identity,
			Status:       record.Status,
			CustomStatus: record.CustomStatus,
			LastSeenAt:   record.LastSeenAt,
		},
		Done: make(chan struct{}),
	}

	select {
	case p.broadcasts <- broadcast:
	default:
		p.log.Warn("Presence broadcast queue full, dropping change", "identity", record.Identity)
		close(broadcast.Done)
	}
	return broadcast.Done
}
