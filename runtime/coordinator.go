package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"call-lab/contract"
	"call-lab/domain"
	"call-lab/domain/event"
	"call-lab/errors"
	"call-lab/observability"
)

// callEntry owns one call session. Every mutation happens under mu, which
// is what resolves the Accept-vs-ring-timer race: whichever operation
// acquires the lock first and applies a legal transition wins, the loser
// observes the new state and no-ops.
type callEntry struct {
	mu        sync.Mutex
	session   *domain.CallSession
	ringTimer *time.Timer
	degraded  bool
}

// Coordinator mediates call establishment between exactly two identities.
// It guarantees at most one non-terminal session per unordered identity
// pair and relays opaque negotiation payloads between the two bound
// connections. There is no lock spanning unrelated pairs.
type Coordinator struct {
	log         *slog.Logger
	registry    contract.IRegistry
	archive     contract.ICallArchive
	monitoring  *observability.Manager
	ringTimeout time.Duration
	sinkTimeout time.Duration

	mu     sync.Mutex // guards the two maps only, never held across entry locks
	byPair map[domain.PairKey]*callEntry
	byCall map[domain.CallID]*callEntry
}

func NewCoordinator(log *slog.Logger, registry contract.IRegistry,
	archive contract.ICallArchive, monitoring *observability.Manager,
	ringTimeout, sinkTimeout time.Duration) *Coordinator {
	return &Coordinator{
		log:         log,
		registry:    registry,
		archive:     archive,
		monitoring:  monitoring,
		ringTimeout: ringTimeout,
		sinkTimeout: sinkTimeout,
		byPair:      make(map[domain.PairKey]*callEntry),
		byCall:      make(map[domain.CallID]*callEntry),
	}
}

// Initiate creates a session in Ringing, notifies every connection of the
// callee and arms the ring timer. Two concurrent initiates for the same
// pair cannot both succeed: the map insert is atomic under c.mu.
func (c *Coordinator) Initiate(caller domain.Connection, callee domain.IdentityID,
	kind domain.CallKind) (domain.CallSession, error) {
	if !kind.Valid() {
		return domain.CallSession{}, fmt.Errorf("%w: kind %q", errors.ErrInvalidState, kind)
	}
	if callee == caller.Identity.ID {
		return domain.CallSession{}, fmt.Errorf("%w: cannot call self", errors.ErrInvalidState)
	}

	calleeConns := c.registry.ConnectionsFor(callee)
	if len(calleeConns) == 0 {
		return domain.CallSession{}, fmt.Errorf("%w: %s", errors.ErrCalleeOffline, callee)
	}

	session := &domain.CallSession{
		ID:            domain.CallID(uuid.NewString()),
		Caller:        caller.Identity.ID,
		Callee:        callee,
		Kind:          kind,
		State:         domain.CallRinging,
		CreatedAt:     time.Now().UTC(),
		InitiatorConn: caller.ID,
	}
	entry := &callEntry{session: session}
	pair := session.Pair()

	c.mu.Lock()
	if _, exists := c.byPair[pair]; exists {
		c.mu.Unlock()
		return domain.CallSession{}, fmt.Errorf("%w: pair %s", errors.ErrBusy, pair)
	}
	c.byPair[pair] = entry
	c.byCall[session.ID] = entry
	c.mu.Unlock()

	entry.mu.Lock()
	entry.ringTimer = time.AfterFunc(c.ringTimeout, func() { c.expire(session.ID) })
	entry.mu.Unlock()

	// The callee may have dropped its last device between the offline check
	// and the map insert. A session nobody can ring must not hold the pair
	// until the timer fires.
	if len(c.registry.ConnectionsFor(callee)) == 0 {
		entry.mu.Lock()
		if !session.Terminal() {
			if err := c.end(entry, domain.ReasonPeerDisconnected); err != nil {
				entry.mu.Unlock()
				return domain.CallSession{}, err
			}
			archived := *session
			entry.mu.Unlock()
			c.finish(archived)
		} else {
			entry.mu.Unlock()
		}
		return domain.CallSession{}, fmt.Errorf("%w: %s", errors.ErrCalleeOffline, callee)
	}

	incoming := event.CallIncoming{
		CallID:     session.ID,
		Caller:     caller.Identity.ID,
		CallerName: caller.Identity.DisplayName,
		Kind:       kind,
	}
	for _, connID := range calleeConns {
		c.deliver(connID, incoming)
	}

	c.monitoring.IncrCallsInitiated()
	c.log.Info("Call ringing", "call_id", session.ID, "caller", session.Caller, "callee", callee, "kind", kind)
	return *session, nil
}

// Accept binds the first accepting device of the callee and moves the call
// to Connecting. Later acceptances from other devices fail with
// AlreadyHandled.
func (c *Coordinator) Accept(conn domain.Connection, callID domain.CallID) error {
	entry, err := c.lookup(callID)
	if err != nil {
		return err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	session := entry.session
	if conn.Identity.ID != session.Callee {
		return fmt.Errorf("%w: accept from %s", errors.ErrUnauthorized, conn.Identity.ID)
	}
	switch session.State {
	case domain.CallRinging:
	case domain.CallConnecting, domain.CallConnected:
		return fmt.Errorf("%w: call %s", errors.ErrAlreadyHandled, callID)
	default:
		return fmt.Errorf("%w: accept in %s", errors.ErrInvalidState, session.State)
	}

	if err := c.transition(entry, domain.CallConnecting); err != nil {
		return err
	}
	if entry.ringTimer != nil {
		entry.ringTimer.Stop()
	}
	session.BoundRecipientConn = conn.ID

	c.deliver(session.InitiatorConn, event.CallAccepted{CallID: callID})
	c.log.Info("Call accepted", "call_id", callID, "bound_conn", conn.ID)
	return nil
}

// Reject is legal only from Ringing and only for the callee.
func (c *Coordinator) Reject(conn domain.Connection, callID domain.CallID) error {
	entry, err := c.lookup(callID)
	if err != nil {
		return err
	}

	entry.mu.Lock()
	session := entry.session
	if conn.Identity.ID != session.Callee {
		entry.mu.Unlock()
		return fmt.Errorf("%w: reject from %s", errors.ErrUnauthorized, conn.Identity.ID)
	}
	if session.State != domain.CallRinging {
		entry.mu.Unlock()
		return fmt.Errorf("%w: reject in %s", errors.ErrInvalidState, session.State)
	}
	if err := c.end(entry, domain.ReasonRejected); err != nil {
		entry.mu.Unlock()
		return err
	}
	archived := *session
	entry.mu.Unlock()

	c.deliver(session.InitiatorConn, event.CallRejected{CallID: callID})
	c.finish(archived)
	return nil
}

// MarkConnected records the first successful media establishment.
// Idempotent: once Connected, further calls are a no-op. connectedAt is set
// exactly once, on the Connecting -> Connected edge.
func (c *Coordinator) MarkConnected(conn domain.Connection, callID domain.CallID) error {
	entry, err := c.lookup(callID)
	if err != nil {
		return err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	session := entry.session
	if !session.IsBoundConn(conn.ID) {
		return fmt.Errorf("%w: connection %s", errors.ErrUnauthorized, conn.ID)
	}
	if session.State == domain.CallConnected {
		return nil
	}
	if session.State != domain.CallConnecting {
		return fmt.Errorf("%w: mark-connected in %s", errors.ErrInvalidState, session.State)
	}

	if session.ConnectedAt != nil {
		// connectedAt without the Connected state means the record was
		// corrupted; freeze this entity instead of guessing.
		c.degrade(entry, "connectedAt set while still connecting")
		return errors.ErrDegraded
	}
	if err := c.transition(entry, domain.CallConnected); err != nil {
		return err
	}
	now := time.Now().UTC()
	session.ConnectedAt = &now
	return nil
}

// RelaySignal forwards an opaque negotiation payload to the opposite bound
// connection. Payload contents are never interpreted.
func (c *Coordinator) RelaySignal(conn domain.Connection, callID domain.CallID,
	kind domain.SignalKind, payload []byte) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: signal kind %q", errors.ErrInvalidState, kind)
	}
	entry, err := c.lookup(callID)
	if err != nil {
		return err
	}

	entry.mu.Lock()
	session := entry.session
	if entry.degraded {
		entry.mu.Unlock()
		return errors.ErrDegraded
	}
	if session.State != domain.CallConnecting && session.State != domain.CallConnected {
		entry.mu.Unlock()
		return fmt.Errorf("%w: signal in %s", errors.ErrInvalidState, session.State)
	}
	if !session.IsBoundConn(conn.ID) {
		entry.mu.Unlock()
		return fmt.Errorf("%w: connection %s", errors.ErrUnauthorized, conn.ID)
	}
	target := session.InitiatorConn
	if conn.ID == session.InitiatorConn {
		target = session.BoundRecipientConn
	}
	entry.mu.Unlock()

	c.deliver(target, event.CallSignal{CallID: callID, Kind: kind, Payload: payload})
	c.monitoring.IncrSignalsRelayed()
	return nil
}

// End terminates from any non-terminal state, notifies the remaining party
// and releases the pair so a new call may be initiated.
func (c *Coordinator) End(conn domain.Connection, callID domain.CallID, reason domain.EndReason) error {
	entry, err := c.lookup(callID)
	if err != nil {
		return err
	}
	if reason == "" {
		reason = domain.ReasonHangup
	}

	entry.mu.Lock()
	session := entry.session
	if !session.IsParty(conn.Identity.ID) {
		entry.mu.Unlock()
		return fmt.Errorf("%w: end from %s", errors.ErrUnauthorized, conn.Identity.ID)
	}
	if session.Terminal() {
		entry.mu.Unlock()
		return fmt.Errorf("%w: call already ended", errors.ErrInvalidState)
	}
	wasRinging := session.State == domain.CallRinging
	if err := c.end(entry, reason); err != nil {
		entry.mu.Unlock()
		return err
	}
	archived := *session
	entry.mu.Unlock()

	ended := event.CallEnded{CallID: callID, Reason: reason}
	if wasRinging {
		// Nothing is bound yet on the callee side: stop the ring on every
		// device, whichever party ended the call.
		if conn.ID != session.InitiatorConn {
			c.deliver(session.InitiatorConn, ended)
		}
		for _, connID := range c.registry.ConnectionsFor(session.Callee) {
			if connID != conn.ID {
				c.deliver(connID, ended)
			}
		}
	} else {
		for _, connID := range []domain.ConnectionID{session.InitiatorConn, session.BoundRecipientConn} {
			if connID != "" && connID != conn.ID {
				c.deliver(connID, ended)
			}
		}
	}

	c.finish(archived)
	return nil
}

// HandleConnectionClosed is the auto-cleanup hook: when a bound connection
// (or the last device of a still-ringing callee) goes away, the session
// ends with PeerDisconnected and the survivor is notified without any
// explicit End from clients.
func (c *Coordinator) HandleConnectionClosed(conn domain.Connection) {
	c.mu.Lock()
	entries := make([]*callEntry, 0, len(c.byCall))
	for _, entry := range c.byCall {
		entries = append(entries, entry)
	}
	c.mu.Unlock()

	for _, entry := range entries {
		entry.mu.Lock()
		session := entry.session
		if session.Terminal() {
			entry.mu.Unlock()
			continue
		}

		affected := session.IsBoundConn(conn.ID)
		if !affected && session.State == domain.CallRinging &&
			session.Callee == conn.Identity.ID &&
			len(c.registry.ConnectionsFor(session.Callee)) == 0 {
			// Callee's last device dropped before anything was bound.
			affected = true
		}
		if !affected {
			entry.mu.Unlock()
			continue
		}

		wasRinging := session.State == domain.CallRinging
		if err := c.end(entry, domain.ReasonPeerDisconnected); err != nil {
			entry.mu.Unlock()
			continue
		}
		archived := *session
		entry.mu.Unlock()

		ended := event.CallEnded{CallID: session.ID, Reason: domain.ReasonPeerDisconnected}
		if conn.ID == session.InitiatorConn {
			if wasRinging {
				c.deliverAll(session.Callee, ended)
			} else {
				c.deliver(session.BoundRecipientConn, ended)
			}
		} else {
			c.deliver(session.InitiatorConn, ended)
		}

		c.log.Info("Call ended by peer disconnect", "call_id", session.ID, "closed_conn", conn.ID)
		c.finish(archived)
	}
}

// Session returns a copy of the live session, if any.
func (c *Coordinator) Session(callID domain.CallID) (domain.CallSession, bool) {
	entry, err := c.lookup(callID)
	if err != nil {
		return domain.CallSession{}, false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return *entry.session, true
}

// ActiveCallCount is exposed for the observability gauges.
func (c *Coordinator) ActiveCallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byCall)
}

// expire is the ring timer callback. Losing the race against Accept is
// normal: the state check under the entry lock makes it a silent no-op.
func (c *Coordinator) expire(callID domain.CallID) {
	entry, err := c.lookup(callID)
	if err != nil {
		return
	}

	entry.mu.Lock()
	session := entry.session
	if session.State != domain.CallRinging {
		entry.mu.Unlock()
		return
	}
	if err := c.end(entry, domain.ReasonTimeout); err != nil {
		entry.mu.Unlock()
		return
	}
	archived := *session
	entry.mu.Unlock()

	// Both parties observe the same outcome: the caller learns the call
	// timed out, every ringing callee device stops ringing.
	ended := event.CallEnded{CallID: callID, Reason: domain.ReasonTimeout}
	c.deliver(session.InitiatorConn, ended)
	c.deliverAll(session.Callee, ended)

	c.log.Info("Call timed out", "call_id", callID)
	c.finish(archived)
}

// lookup resolves a call entry without holding c.mu across entry locks.
func (c *Coordinator) lookup(callID domain.CallID) (*callEntry, error) {
	c.mu.Lock()
	entry, ok := c.byCall[callID]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", errors.ErrUnknownCall, callID)
	}
	return entry, nil
}

// transition applies a state change under the caller-held entry lock,
// asserting the edge is legal. An illegal edge reaching this point means
// the guards above it are broken, so the entity is frozen.
func (c *Coordinator) transition(entry *callEntry, next domain.CallState) error {
	if entry.degraded {
		return errors.ErrDegraded
	}
	if !entry.session.State.CanTransition(next) {
		c.degrade(entry, fmt.Sprintf("illegal edge %s -> %s", entry.session.State, next))
		return errors.ErrDegraded
	}
	entry.session.State = next
	return nil
}

// end moves the session to Ended(reason) under the caller-held entry lock.
func (c *Coordinator) end(entry *callEntry, reason domain.EndReason) error {
	if entry.ringTimer != nil {
		entry.ringTimer.Stop()
	}
	if err := c.transition(entry, domain.CallEnded); err != nil {
		return err
	}
	now := time.Now().UTC()
	entry.session.Reason = reason
	entry.session.EndedAt = &now
	return nil
}

// finish releases the pair for new calls and hands the terminal session to
// the archive. Never called with an entry lock held by this goroutine's
// c.mu path: c.mu is only ever taken bare or after entry locks.
func (c *Coordinator) finish(session domain.CallSession) {
	c.mu.Lock()
	delete(c.byCall, session.ID)
	if entry, ok := c.byPair[session.Pair()]; ok && entry.session.ID == session.ID {
		delete(c.byPair, session.Pair())
	}
	c.mu.Unlock()

	if err := c.archive.Archive(session); err != nil {
		c.log.Warn("Failed to archive call session", "call_id", session.ID, "error", err)
	}

	var endedAt time.Time
	var duration time.Duration
	if session.EndedAt != nil {
		endedAt = *session.EndedAt
		if session.ConnectedAt != nil {
			duration = endedAt.Sub(*session.ConnectedAt)
		}
	}
	c.monitoring.AddCall(string(session.ID), string(session.Caller), string(session.Callee),
		string(session.Reason), endedAt, duration)
}

func (c *Coordinator) degrade(entry *callEntry, detail string) {
	entry.degraded = true
	c.log.Error("Call entry frozen after invariant violation",
		"call_id", entry.session.ID, "detail", detail)
}

func (c *Coordinator) deliver(connID domain.ConnectionID, evt event.DomainEvent) {
	sink, ok := c.registry.SinkFor(connID)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.sinkTimeout)
	defer cancel()
	if err := sink.Consume(ctx, evt); err != nil {
		c.log.Debug("Failed to deliver call event", "conn", connID, "type", evt.EventType(), "error", err)
	}
}

func (c *Coordinator) deliverAll(identity domain.IdentityID, evt event.DomainEvent) {
	for _, connID := range c.registry.ConnectionsFor(identity) {
		c.deliver(connID, evt)
	}
}
