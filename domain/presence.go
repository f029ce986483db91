package domain

import "time"

type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
	StatusAway    Status = "away"
	StatusBusy    Status = "busy"
	StatusCustom  Status = "custom"
)

func (s Status) Valid() bool {
	switch s {
	case StatusOnline, StatusOffline, StatusAway, StatusBusy, StatusCustom:
		return true
	}
	return false
}

// PresenceRecord is the last-known status of an identity.
// Created lazily on first connection, mutated by session transitions or
// explicit SetStatus intents, never deleted.
type PresenceRecord struct {
	Identity     IdentityID `json:"identity"`
	DisplayName  string     `json:"displayName,omitempty"`
	Status       Status     `json:"status"`
	CustomStatus string     `json:"customStatus,omitempty"`
	LastSeenAt   time.Time  `json:"lastSeenAt"`
}
