package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"

	"call-lab/domain"
)

const presencePrefix = "presence:"

type PresenceRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewPresenceRepository(db *badger.DB, log *slog.Logger) PresenceRepository {
	return PresenceRepository{db: db, log: log}
}

// DiskPresence is the stored form of a presence record.
type DiskPresence struct {
	Identity     string `json:"identity"`
	DisplayName  string `json:"display_name"`
	Status       string `json:"status"`
	CustomStatus string `json:"custom_status"`
	LastSeenAt   int64  `json:"last_seen_at"`
}

// Put persists the last-known record under "presence:{identity}".
// One key per identity: a new status overwrites the previous one.
func (r PresenceRepository) Put(record domain.PresenceRecord) error {
	key := fmt.Sprintf("%s%s", presencePrefix, record.Identity)
	bytes, err := json.Marshal(fromPresenceRecord(record))
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), bytes)
	})
}

// Get retrieves one identity's record. The second result is false when the
// identity was never seen.
func (r PresenceRepository) Get(identity domain.IdentityID) (domain.PresenceRecord, bool, error) {
	key := fmt.Sprintf("%s%s", presencePrefix, identity)
	var stored DiskPresence
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			return json.Unmarshal(value, &stored)
		})
	})
	if err == badger.ErrKeyNotFound {
		return domain.PresenceRecord{}, false, nil
	}
	if err != nil {
		return domain.PresenceRecord{}, false, err
	}
	return toPresenceRecord(stored), true, nil
}

// List retrieves every stored record via a prefix scan, for hydration at
// startup.
func (r PresenceRepository) List() ([]domain.PresenceRecord, error) {
	var records []domain.PresenceRecord
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte(presencePrefix)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(value []byte) error {
				var stored DiskPresence
				if err := json.Unmarshal(value, &stored); err != nil {
					return err
				}
				records = append(records, toPresenceRecord(stored))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func fromPresenceRecord(record domain.PresenceRecord) DiskPresence {
	return DiskPresence{
		Identity:     string(record.Identity),
		DisplayName:  record.DisplayName,
		Status:       string(record.Status),
		CustomStatus: record.CustomStatus,
		LastSeenAt:   record.LastSeenAt.UnixNano(),
	}
}

func toPresenceRecord(stored DiskPresence) domain.PresenceRecord {
	return domain.PresenceRecord{
		Identity:     domain.IdentityID(stored.Identity),
		DisplayName:  stored.DisplayName,
		Status:       domain.Status(stored.Status),
		CustomStatus: stored.CustomStatus,
		LastSeenAt:   time.Unix(0, stored.LastSeenAt).UTC(),
	}
}
