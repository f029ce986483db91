package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"

	"call-lab/domain"
)

const callPrefix = "call:"

type CallArchive struct {
	db  *badger.DB
	log *slog.Logger
}

func NewCallArchive(db *badger.DB, log *slog.Logger) CallArchive {
	return CallArchive{db: db, log: log}
}

// DiskCallSession is the stored form of a terminated call.
type DiskCallSession struct {
	ID          string `json:"id"`
	Caller      string `json:"caller"`
	Callee      string `json:"callee"`
	Kind        string `json:"kind"`
	Reason      string `json:"reason"`
	CreatedAt   int64  `json:"created_at"`
	ConnectedAt int64  `json:"connected_at,omitempty"`
	EndedAt     int64  `json:"ended_at"`
}

// Archive persists a terminal session.
// The key is formatted as "call:{ended_padded}:{call_id}" to:
//  1. Ensure chronological sorting using 19-digit zero padding (lexicographical order).
//  2. Prevent data loss by using the call id as a collision disconnector if
//     two calls end at the same nanosecond.
func (a CallArchive) Archive(session domain.CallSession) error {
	endedAt := session.CreatedAt
	if session.EndedAt != nil {
		endedAt = *session.EndedAt
	}
	key := fmt.Sprintf("%s%019d:%s", callPrefix, endedAt.UnixNano(), session.ID)
	bytes, err := json.Marshal(fromCallSession(session))
	if err != nil {
		return err
	}
	return a.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), bytes)
	})
}

// List retrieves the most recently ended sessions, newest first.
// Thanks to the padded timestamp in the key, a reverse scan is naturally
// sorted by end time. It stops once limit sessions are collected; a
// non-positive limit returns everything.
func (a CallArchive) List(limit int) ([]domain.CallSession, error) {
	var sessions []domain.CallSession
	err := a.db.View(func(txn *badger.Txn) error {
		prefix := []byte(callPrefix)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		// Oldest possible position: call:9999999999999999999
		seekKey := append(append([]byte{}, prefix...), []byte("9999999999999999999:")...)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(sessions) == limit {
				break
			}
			err := it.Item().Value(func(value []byte) error {
				var stored DiskCallSession
				if err := json.Unmarshal(value, &stored); err != nil {
					return err
				}
				sessions = append(sessions, toCallSession(stored))
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
	return sessions, nil
}

func fromCallSession(session domain.CallSession) DiskCallSession {
	stored := DiskCallSession{
		ID:        string(session.ID),
		Caller:    string(session.Caller),
		Callee:    string(session.Callee),
		Kind:      string(session.Kind),
		Reason:    string(session.Reason),
		CreatedAt: session.CreatedAt.UnixNano(),
	}
	if session.ConnectedAt != nil {
		stored.ConnectedAt = session.ConnectedAt.UnixNano()
	}
	if session.EndedAt != nil {
		stored.EndedAt = session.EndedAt.UnixNano()
	}
	return stored
}

func toCallSession(stored DiskCallSession) domain.CallSession {
	session := domain.CallSession{
		ID:        domain.CallID(stored.ID),
		Caller:    domain.IdentityID(stored.Caller),
		Callee:    domain.IdentityID(stored.Callee),
		Kind:      domain.CallKind(stored.Kind),
		State:     domain.CallEnded,
		Reason:    domain.EndReason(stored.Reason),
		CreatedAt: time.Unix(0, stored.CreatedAt).UTC(),
	}
	if stored.ConnectedAt != 0 {
		t := time.Unix(0, stored.ConnectedAt).UTC()
		session.ConnectedAt = &t
	}
	if stored.EndedAt != 0 {
		t := time.Unix(0, stored.EndedAt).UTC()
		session.EndedAt = &t
	}
	return session
}
