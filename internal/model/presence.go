package model

import "time"

// PresenceRecord is the last reported online state for a user. LastSeen is
// nil until the first presence event for that user arrives.
type PresenceRecord struct {
	UserID   string     `json:"user_id"`
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}
