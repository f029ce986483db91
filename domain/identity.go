package domain

import "time"

type IdentityID string

// Identity is owned by the external verifier. The engine never creates or
// mutates identities, it only references them.
type Identity struct {
	ID          IdentityID `json:"id"`
	DisplayName string     `json:"displayName"`
}

type ConnectionID string

// Connection is one live bidirectional channel for an identity.
// It exists only while the channel is open and is never reused after close.
// A connection belongs to exactly one identity for its entire lifetime.
type Connection struct {
	ID            ConnectionID `json:"connectionId"`
	Identity      Identity     `json:"identity"`
	EstablishedAt time.Time    `json:"establishedAt"`
}
