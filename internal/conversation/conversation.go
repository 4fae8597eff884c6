// Package conversation stores per-session question and answer history.
//
// Sessions are identified by opaque caller-chosen IDs. Appending to an
// unknown session creates it; the caller is expected to use IDs with enough
// entropy that accidental collisions do not occur (the HTTP layer generates
// UUIDs when the client does not supply one).
package conversation

import (
	"time"
)

// Turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is a single utterance in a conversation, either the user's question
// or the assistant's answer.
type Turn struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}
