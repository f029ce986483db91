package repositories

import (
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"call-lab/domain"
)

func endedSession(caller, callee string, endedAt time.Time) domain.CallSession {
	createdAt := endedAt.Add(-time.Minute)
	connectedAt := endedAt.Add(-30 * time.Second)
	return domain.CallSession{
		ID:          domain.CallID(uuid.NewString()),
		Caller:      domain.IdentityID(caller),
		Callee:      domain.IdentityID(callee),
		Kind:        domain.CallVoice,
		State:       domain.CallEnded,
		Reason:      domain.ReasonHangup,
		CreatedAt:   createdAt,
		ConnectedAt: &connectedAt,
		EndedAt:     &endedAt,
	}
}

func Test_Archive_Round_Trip(t *testing.T) {
	req := require.New(t)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	defer db.Close()

	archive := NewCallArchive(db, slog.Default())
	session := endedSession("alice", "bob", time.Now().UTC())

	req.NoError(archive.Archive(session))

	sessions, err := archive.List(0)
	req.NoError(err)
	req.Len(sessions, 1)
	req.Equal(session, sessions[0])
}

func Test_Archive_Newest_First(t *testing.T) {
	req := require.New(t)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	defer db.Close()

	archive := NewCallArchive(db, slog.Default())
	at := time.Now().UTC()
	for i := 0; i < 3; i++ {
		session := endedSession(fmt.Sprintf("caller-%d", i), "bob", at.Add(time.Duration(i)*time.Minute))
		req.NoError(archive.Archive(session))
	}

	sessions, err := archive.List(0)
	req.NoError(err)
	req.Len(sessions, 3)
	req.Equal(domain.IdentityID("caller-2"), sessions[0].Caller)
	req.Equal(domain.IdentityID("caller-0"), sessions[2].Caller)
}

func Test_Archive_List_Honors_Limit(t *testing.T) {
	req := require.New(t)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	defer db.Close()

	archive := NewCallArchive(db, slog.Default())
	at := time.Now().UTC()
	for i := 0; i < 5; i++ {
		req.NoError(archive.Archive(endedSession("alice", "bob", at.Add(time.Duration(i)*time.Second))))
	}

	sessions, err := archive.List(2)
	req.NoError(err)
	req.Len(sessions, 2)
}

func Test_Archive_Session_Without_Connection(t *testing.T) {
	req := require.New(t)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	defer db.Close()

	archive := NewCallArchive(db, slog.Default())
	endedAt := time.Now().UTC()
	session := domain.CallSession{
		ID:        domain.CallID(uuid.NewString()),
		Caller:    "alice",
		Callee:    "bob",
		Kind:      domain.CallVideo,
		State:     domain.CallEnded,
		Reason:    domain.ReasonTimeout,
		CreatedAt: endedAt.Add(-45 * time.Second),
		EndedAt:   &endedAt,
	}

	// A call that never connected has no connectedAt
	req.NoError(archive.Archive(session))

	sessions, err := archive.List(0)
	req.NoError(err)
	req.Len(sessions, 1)
	req.Nil(sessions[0].ConnectedAt)
	req.Equal(domain.ReasonTimeout, sessions[0].Reason)
}
