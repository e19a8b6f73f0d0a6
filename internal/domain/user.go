// Package domain contains core domain types for the zapbridge relay.
package domain

import (
	"time"
)

// User represents a chat user with their current dialogue binding.
type User struct {
	WaID            string     `json:"wa_id"`
	ActiveFlowID    string     `json:"active_flow_id,omitempty"`
	ActiveSessionID string     `json:"active_session_id,omitempty"`
	LastNotifiedAt  *time.Time `json:"last_notified_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// HasActiveSession returns true if the user has a known dialogue session.
func (u *User) HasActiveSession() bool {
	return u.ActiveSessionID != ""
}
