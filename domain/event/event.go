package event

import (
	"encoding/json"
	"time"

	"call-lab/domain"
)

// DomainEvent is anything the engine pushes to connected clients.
// EventType is the wire envelope type.
type DomainEvent interface {
	EventType() string
}

// PresenceSnapshot is sent once on every (re)connection so a client can
// reconcile state regardless of missed broadcasts.
type PresenceSnapshot struct {
	Records []domain.PresenceRecord `json:"records"`
}

func (PresenceSnapshot) EventType() string { return "PresenceSnapshot" }

type PresenceChanged struct {
	Identity     domain.IdentityID `json:"identity"`
	Status       domain.Status     `json:"status"`
	CustomStatus string            `json:"customStatus,omitempty"`
	LastSeenAt   time.Time         `json:"lastSeenAt"`
}

func (PresenceChanged) EventType() string { return "PresenceChanged" }

type CallIncoming struct {
	CallID     domain.CallID     `json:"callId"`
	Caller     domain.IdentityID `json:"callerIdentity"`
	CallerName string            `json:"callerName,omitempty"`
	Kind       domain.CallKind   `json:"kind"`
}

func (CallIncoming) EventType() string { return "CallIncoming" }

type CallAccepted struct {
	CallID domain.CallID `json:"callId"`
}

func (CallAccepted) EventType() string { return "CallAccepted" }

type CallRejected struct {
	CallID domain.CallID `json:"callId"`
}

func (CallRejected) EventType() string { return "CallRejected" }

// CallSignal carries an opaque negotiation payload between the two bound
// connections of a call. The engine never interprets Payload.
type CallSignal struct {
	CallID  domain.CallID     `json:"callId"`
	Kind    domain.SignalKind `json:"kind"`
	Payload json.RawMessage   `json:"payload"`
}

func (CallSignal) EventType() string { return "CallSignal" }

type CallEnded struct {
	CallID domain.CallID    `json:"callId"`
	Reason domain.EndReason `json:"reason"`
}

func (CallEnded) EventType() string { return "CallEnded" }

// OperationFailed is the synchronous typed rejection for any refused intent.
// Engine errors never surface as transport-level faults.
type OperationFailed struct {
	CorrelationID string `json:"correlationId,omitempty"`
	ErrorKind     string `json:"errorKind"`
	Detail        string `json:"detail,omitempty"`
}

func (OperationFailed) EventType() string { return "OperationFailed" }
