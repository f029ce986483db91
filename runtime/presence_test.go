package runtime

import (
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"call-lab/domain"
	"call-lab/errors"
	"call-lab/moderation"
)

type fakePresenceRepo struct {
	mu      sync.Mutex
	records map[domain.IdentityID]domain.PresenceRecord
}

func newFakePresenceRepo() *fakePresenceRepo {
	return &fakePresenceRepo{records: make(map[domain.IdentityID]domain.PresenceRecord)}
}

func (f *fakePresenceRepo) Put(record domain.PresenceRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[record.Identity] = record
	return nil
}

func (f *fakePresenceRepo) Get(identity domain.IdentityID) (domain.PresenceRecord, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[identity]
	return record, ok, nil
}

func (f *fakePresenceRepo) List() ([]domain.PresenceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.PresenceRecord, 0, len(f.records))
	for _, record := range f.records {
		out = append(out, record)
	}
	return out, nil
}

func newStore(t *testing.T) (*PresenceStore, *fakePresenceRepo) {
	t.Helper()
	repo := newFakePresenceRepo()
	return NewPresenceStore(slog.Default(), repo, nil, 16), repo
}

func TestPresence_SetStatus_Stamps_LastSeen(t *testing.T) {
	req := require.New(t)
	store, repo := newStore(t)
	before := time.Now().UTC()

	// When alice goes busy
	done, err := store.SetStatus(domain.Identity{ID: "alice", DisplayName: "Alice"},
		domain.StatusBusy, "in a meeting")
	req.NoError(err)
	req.NotNil(done)

	// Then the record carries the moment of the change
	record, ok := store.Get("alice")
	req.True(ok)
	req.Equal(domain.StatusBusy, record.Status)
	req.Equal("in a meeting", record.CustomStatus)
	req.Equal("Alice", record.DisplayName)
	req.False(record.LastSeenAt.Before(before))

	// And the record was written through
	stored, ok, err := repo.Get("alice")
	req.NoError(err)
	req.True(ok)
	req.Equal(record, stored)
}

func TestPresence_SetStatus_Unknown_Status_Refused(t *testing.T) {
	req := require.New(t)
	store, _ := newStore(t)

	_, err := store.SetStatus(domain.Identity{ID: "alice"}, "sleeping", "")
	req.ErrorIs(err, errors.ErrInvalidStatus)

	_, ok := store.Get("alice")
	req.False(ok)
}

func TestPresence_Changes_Queued_In_Order(t *testing.T) {
	req := require.New(t)
	store, _ := newStore(t)
	alice := domain.Identity{ID: "alice"}

	// When alice changes status three times
	statuses := []domain.Status{domain.StatusOnline, domain.StatusAway, domain.StatusBusy}
	for _, status := range statuses {
		_, err := store.SetStatus(alice, status, "")
		req.NoError(err)
	}

	// Then the broadcasts come out in the order they were applied
	for _, status := range statuses {
		broadcast := <-store.Broadcasts()
		req.Equal(domain.IdentityID("alice"), broadcast.Change.Identity)
		req.Equal(status, broadcast.Change.Status)
		close(broadcast.Done)
	}
}

func TestPresence_Full_Queue_Closes_Done_Immediately(t *testing.T) {
	req := require.New(t)
	repo := newFakePresenceRepo()
	store := NewPresenceStore(slog.Default(), repo, nil, 1)
	alice := domain.Identity{ID: "alice"}

	// Given the queue is full and nobody drains it
	_, err := store.SetStatus(alice, domain.StatusOnline, "")
	req.NoError(err)

	// When another change cannot be queued
	done, err := store.SetStatus(alice, domain.StatusAway, "")
	req.NoError(err)

	// Then nothing can block on its confirmation
	select {
	case <-done:
	case <-time.After(time.Second):
		req.Fail("done channel not closed for dropped broadcast")
	}
}

func TestPresence_Online_Offline_Hooks_Clear_Custom_Status(t *testing.T) {
	req := require.New(t)
	store, _ := newStore(t)
	alice := domain.Identity{ID: "alice"}

	_, err := store.SetStatus(alice, domain.StatusBusy, "focus time")
	req.NoError(err)

	store.HandleOffline(alice)

	record, ok := store.Get("alice")
	req.True(ok)
	req.Equal(domain.StatusOffline, record.Status)
	req.Empty(record.CustomStatus)

	store.HandleOnline(alice)
	record, _ = store.Get("alice")
	req.Equal(domain.StatusOnline, record.Status)
}

func TestPresence_Load_Forces_Offline(t *testing.T) {
	req := require.New(t)
	repo := newFakePresenceRepo()
	req.NoError(repo.Put(domain.PresenceRecord{
		Identity:     "alice",
		DisplayName:  "Alice",
		Status:       domain.StatusBusy,
		CustomStatus: "stale",
		LastSeenAt:   time.Now().UTC().Add(-time.Hour),
	}))

	// When the store hydrates after a restart
	store := NewPresenceStore(slog.Default(), repo, nil, 16)
	req.NoError(store.Load())

	// Then nobody can be online before their first connection
	record, ok := store.Get("alice")
	req.True(ok)
	req.Equal(domain.StatusOffline, record.Status)
	req.Empty(record.CustomStatus)
	req.Equal("Alice", record.DisplayName)
}

func TestPresence_Custom_Status_Is_Censored(t *testing.T) {
	req := require.New(t)
	filter, err := moderation.NewStatusFilter([]string{"badword"}, '*')
	req.NoError(err)
	store := NewPresenceStore(slog.Default(), newFakePresenceRepo(), filter, 16)

	_, err = store.SetStatus(domain.Identity{ID: "alice"}, domain.StatusCustom, "such a BadWord here")
	req.NoError(err)

	record, _ := store.Get("alice")
	req.Equal("such a ******* here", record.CustomStatus)
}
