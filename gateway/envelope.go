// Package gateway is the websocket edge of the engine: it admits
// authenticated connections, decodes client envelopes into service calls
// and pumps engine events back out.
package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"call-lab/domain"
	"call-lab/domain/event"
)

// Client -> server envelope types.
const (
	TypeSetPresence   = "set_presence"
	TypeCallInitiate  = "call_initiate"
	TypeCallAccept    = "call_accept"
	TypeCallReject    = "call_reject"
	TypeCallConnected = "call_connected"
	TypeCallSignal    = "call_signal"
	TypeCallEnd       = "call_end"
)

// Envelope is the framing of every message in both directions. Payload
// stays raw until the type is known; CorrelationID is echoed back on
// failures so clients can match them to the request.
type Envelope struct {
	Type          string          `json:"type"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
}

type SetPresencePayload struct {
	Status       domain.Status `json:"status" validate:"required"`
	CustomStatus string        `json:"custom_status" validate:"max=256"`
}

type CallInitiatePayload struct {
	Callee domain.IdentityID `json:"callee" validate:"required"`
	Kind   domain.CallKind   `json:"kind" validate:"required,oneof=voice video"`
}

type CallAcceptPayload struct {
	CallID domain.CallID `json:"call_id" validate:"required"`
}

type CallRejectPayload struct {
	CallID domain.CallID `json:"call_id" validate:"required"`
}

type CallConnectedPayload struct {
	CallID domain.CallID `json:"call_id" validate:"required"`
}

type CallSignalPayload struct {
	CallID  domain.CallID     `json:"call_id" validate:"required"`
	Kind    domain.SignalKind `json:"kind" validate:"required,oneof=offer answer ice_candidate"`
	Payload json.RawMessage   `json:"payload" validate:"required"`
}

// CallEndPayload carries the reason a client reports for hanging up.
// Only reasons a client may legitimately report are accepted; the
// server-derived ones (timeout, peer_disconnected) cannot be forged.
type CallEndPayload struct {
	CallID domain.CallID    `json:"call_id" validate:"required"`
	Reason domain.EndReason `json:"reason,omitempty" validate:"omitempty,oneof=hangup rejected"`
}

var validate = validator.New()

// decodePayload unmarshals and validates one typed payload.
func decodePayload[T any](raw json.RawMessage) (T, error) {
	var payload T
	if err := json.Unmarshal(raw, &payload); err != nil {
		return payload, fmt.Errorf("malformed payload: %w", err)
	}
	if err := validate.Struct(&payload); err != nil {
		return payload, fmt.Errorf("invalid payload: %w", err)
	}
	return payload, nil
}

// EncodeEvent frames an engine event for the wire. The envelope type is the
// event's own type tag.
func EncodeEvent(e event.DomainEvent) ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	envelope := Envelope{Type: e.EventType(), Payload: payload}
	if failed, ok := e.(event.OperationFailed); ok {
		envelope.CorrelationID = failed.CorrelationID
	}
	return json.Marshal(envelope)
}
