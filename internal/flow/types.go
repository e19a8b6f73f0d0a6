// Package flow talks to the remote dialogue-flow service and decides when a
// conversation continues an existing session or starts a new one.
package flow

import (
	"context"
	"errors"

	"github.com/pbarbosa/zapbridge/internal/domain"
)

// ErrSessionNotFound reports that the remote flow no longer knows the
// session id used for a continue call.
var ErrSessionNotFound = errors.New("dialogue session not found")

// ErrRedirectUnresolvable reports that a redirect payload carried no
// recognizable target flow.
var ErrRedirectUnresolvable = errors.New("redirect target flow could not be determined")

// InputKindChoice is the input kind whose payload becomes a choice set.
const InputKindChoice = "choice input"

// Message is a single reply the flow wants delivered to the user.
type Message struct {
	Type    string `json:"type,omitempty"`
	Content string `json:"content"`
}

// Input describes what the flow is waiting for next.
type Input struct {
	Kind    string          `json:"kind"`
	Choices []domain.Choice `json:"choices,omitempty"`
}

// Redirect is an instruction from the flow to rebind the session to a
// different flow.
type Redirect struct {
	URL string `json:"url"`
}

// Response is one dialogue turn returned by the remote flow.
type Response struct {
	SessionID string    `json:"session_id"`
	Messages  []Message `json:"messages"`
	Input     *Input    `json:"input,omitempty"`
	Redirect  *Redirect `json:"redirect,omitempty"`
}

// Dialogue is the remote dialogue-flow collaborator. Implementations apply
// their own bounded timeouts; transport failures surface as plain errors,
// an unknown or expired session as ErrSessionNotFound.
type Dialogue interface {
	// Start begins a new session on the given flow, optionally seeded with
	// an initial message.
	Start(ctx context.Context, flowID, message string) (*Response, error)

	// Continue advances an existing session with the user's message.
	Continue(ctx context.Context, sessionID, message string) (*Response, error)
}
