package domain

import "time"

type CallID string

type CallKind string

const (
	CallVoice CallKind = "voice"
	CallVideo CallKind = "video"
)

func (k CallKind) Valid() bool {
	return k == CallVoice || k == CallVideo
}

type CallState string

const (
	CallRinging    CallState = "ringing"
	CallConnecting CallState = "connecting"
	CallConnected  CallState = "connected"
	CallEnded      CallState = "ended"
)

// CanTransition reports whether moving to next is a legal edge of the call
// state graph. Ended is terminal: nothing leaves it.
func (s CallState) CanTransition(next CallState) bool {
	switch s {
	case CallRinging:
		return next == CallConnecting || next == CallEnded
	case CallConnecting:
		return next == CallConnected || next == CallEnded
	case CallConnected:
		return next == CallEnded
	}
	return false
}

type EndReason string

const (
	ReasonRejected         EndReason = "rejected"
	ReasonTimeout          EndReason = "timeout"
	ReasonHangup           EndReason = "hangup"
	ReasonPeerDisconnected EndReason = "peer_disconnected"
)

// PairKey identifies the unordered identity pair of a call session.
// At most one non-terminal session may exist per key.
type PairKey string

func NewPairKey(a, b IdentityID) PairKey {
	if b < a {
		a, b = b, a
	}
	return PairKey(string(a) + "|" + string(b))
}

// CallSession is the state record of one call attempt between two identities.
// All mutation happens under the coordinator's per-call lock.
type CallSession struct {
	ID                 CallID       `json:"id"`
	Caller             IdentityID   `json:"caller"`
	Callee             IdentityID   `json:"callee"`
	Kind               CallKind     `json:"kind"`
	State              CallState    `json:"state"`
	Reason             EndReason    `json:"reason,omitempty"`
	CreatedAt          time.Time    `json:"createdAt"`
	ConnectedAt        *time.Time   `json:"connectedAt,omitempty"`
	EndedAt            *time.Time   `json:"endedAt,omitempty"`
	InitiatorConn      ConnectionID `json:"-"`
	BoundRecipientConn ConnectionID `json:"-"`
}

func (c *CallSession) Pair() PairKey {
	return NewPairKey(c.Caller, c.Callee)
}

func (c *CallSession) Terminal() bool {
	return c.State == CallEnded
}

// OtherParty returns the identity facing id in this session.
func (c *CallSession) OtherParty(id IdentityID) IdentityID {
	if id == c.Caller {
		return c.Callee
	}
	return c.Caller
}

// IsParty reports whether id is the caller or the callee.
func (c *CallSession) IsParty(id IdentityID) bool {
	return id == c.Caller || id == c.Callee
}

// IsBoundConn reports whether connID is one of the two connections bound to
// this session (the initiator's, or the accepting device of the callee).
func (c *CallSession) IsBoundConn(connID ConnectionID) bool {
	return connID == c.InitiatorConn ||
		(c.BoundRecipientConn != "" && connID == c.BoundRecipientConn)
}

type SignalKind string

const (
	SignalOffer        SignalKind = "offer"
	SignalAnswer       SignalKind = "answer"
	SignalIceCandidate SignalKind = "ice_candidate"
)

func (k SignalKind) Valid() bool {
	switch k {
	case SignalOffer, SignalAnswer, SignalIceCandidate:
		return true
	}
	return false
}
