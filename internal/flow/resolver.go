package flow

import (
	"context"
	"errors"
	"log/slog"

	"github.com/pbarbosa/zapbridge/internal/state"
)

// Resolver decides, per user and message, whether to continue the existing
// dialogue session or start a new one, and applies redirect instructions
// before a response is handed back.
type Resolver struct {
	state       *state.Store
	dialogue    Dialogue
	defaultFlow string
	logger      *slog.Logger
}

// NewResolver creates a resolver. defaultFlow is used when a session must
// start and the user has no active flow bound.
func NewResolver(st *state.Store, dialogue Dialogue, defaultFlow string, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		state:       st,
		dialogue:    dialogue,
		defaultFlow: defaultFlow,
		logger:      logger,
	}
}

// Advance sends the user's message to the remote flow. A known session id
// is continued; an unknown one is cleared and retried once as a fresh
// start. The returned response never carries an unapplied redirect.
func (r *Resolver) Advance(ctx context.Context, waID, message string) (*Response, error) {
	sessionID := r.state.ActiveSessionID(ctx, waID)

	var resp *Response
	var err error
	if sessionID != "" {
		resp, err = r.dialogue.Continue(ctx, sessionID, message)
		if errors.Is(err, ErrSessionNotFound) {
			// Single retry as a fresh start; never loops.
			r.logger.Info("dialogue session expired, restarting", "wa_id", waID, "session_id", sessionID)
			r.state.ClearActiveSession(ctx, waID)
			resp, err = r.start(ctx, waID, message)
		}
	} else {
		resp, err = r.start(ctx, waID, message)
	}
	if err != nil {
		return nil, err
	}

	if resp.SessionID != "" && resp.SessionID != sessionID {
		r.state.SetActiveSession(ctx, waID, resp.SessionID)
	}

	r.applyRedirect(ctx, waID, resp)
	return resp, nil
}

func (r *Resolver) start(ctx context.Context, waID, message string) (*Response, error) {
	flowID := r.state.ActiveFlowID(ctx, waID)
	if flowID == "" {
		flowID = r.defaultFlow
		r.state.SetActiveFlow(ctx, waID, flowID)
	}
	return r.dialogue.Start(ctx, flowID, message)
}

// applyRedirect rebinds the user's active flow when the response carries a
// redirect. The session id stays: the remote session continues under the
// new flow. An unresolvable redirect is logged and skipped.
func (r *Resolver) applyRedirect(ctx context.Context, waID string, resp *Response) {
	if resp.Redirect == nil {
		return
	}

	flowID, err := FlowFromRedirect(resp.Redirect.URL)
	if err != nil {
		r.logger.Warn("ignoring unresolvable redirect", "wa_id", waID, "url", resp.Redirect.URL, "error", err)
		return
	}

	r.logger.Info("following flow redirect", "wa_id", waID, "flow_id", flowID)
	r.state.SetActiveFlow(ctx, waID, flowID)
}
