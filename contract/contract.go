//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"call-lab/domain"
	"call-lab/domain/event"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself, the supervisor does.
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker,
// avoiding a manual naming method on the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink receives engine events bound for one consumer, typically the
// write pump of a single connection.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// IRegistry is the session registry: identity -> set of open connections.
// The became* results report the 0->1 and 1->0 edges the presence store
// reacts to.
type IRegistry interface {
	AddConnection(conn domain.Connection, sink EventSink) (becameOnline bool)
	RemoveConnection(identity domain.IdentityID, connID domain.ConnectionID) (removed, becameOffline bool)
	ConnectionsFor(identity domain.IdentityID) []domain.ConnectionID
	ActiveIdentities() []domain.IdentityID
	SinkFor(connID domain.ConnectionID) (EventSink, bool)
	SinksFor(identity domain.IdentityID) []EventSink
	AllSinks() []EventSink
}

// Broadcast is one presence change travelling through the fanout worker.
// Done is closed once a full delivery cycle to all active sinks completed;
// the gateway teardown path waits on it (bounded) before a close is allowed
// to take effect for presence purposes.
type Broadcast struct {
	Change event.PresenceChanged
	Done   chan struct{}
}

type IPresenceRepository interface {
	Put(record domain.PresenceRecord) error
	Get(identity domain.IdentityID) (domain.PresenceRecord, bool, error)
	List() ([]domain.PresenceRecord, error)
}

type ICallArchive interface {
	Archive(session domain.CallSession) error
	List(limit int) ([]domain.CallSession, error)
}
