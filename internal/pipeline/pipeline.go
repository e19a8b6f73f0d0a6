// Package pipeline orchestrates one inbound message end to end: per-user
// locking, transcription, choice resolution, the dialogue turn, and the
// resulting state updates.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/pbarbosa/zapbridge/internal/domain"
	"github.com/pbarbosa/zapbridge/internal/flow"
	"github.com/pbarbosa/zapbridge/internal/match"
	"github.com/pbarbosa/zapbridge/internal/state"
	"github.com/pbarbosa/zapbridge/internal/userlock"
)

// ErrInvalidUserID reports a malformed channel identity. The message is
// rejected before any state is touched.
var ErrInvalidUserID = errors.New("invalid user id")

// waIDPattern accepts a numeric channel id with an optional server suffix,
// e.g. "5511999990000" or "5511999990000@c.us".
var waIDPattern = regexp.MustCompile(`^[0-9]+(@[a-z0-9.]+)?$`)

// Transcriber converts an audio attachment to text. Implementations apply
// their own timeouts and retries.
type Transcriber interface {
	Transcribe(ctx context.Context, audioURL string) (string, error)
}

// Pipeline composes the relay core.
type Pipeline struct {
	locks       *userlock.Keyed
	state       *state.Store
	resolver    *flow.Resolver
	transcriber Transcriber // optional
	logger      *slog.Logger
}

// New creates a pipeline. transcriber may be nil when no speech-to-text
// collaborator is configured; audio messages then pass through unresolved.
func New(locks *userlock.Keyed, st *state.Store, resolver *flow.Resolver, transcriber Transcriber, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		locks:       locks,
		state:       st,
		resolver:    resolver,
		transcriber: transcriber,
		logger:      logger,
	}
}

// Handle processes one inbound message under the user's lock and returns
// the dialogue response to deliver. Messages for distinct users proceed
// concurrently; a second message from the same user waits for the first
// pipeline, including durable writes, to finish.
func (p *Pipeline) Handle(ctx context.Context, msg domain.InboundMessage) (*flow.Response, error) {
	if !waIDPattern.MatchString(msg.WaID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidUserID, msg.WaID)
	}

	var resp *flow.Response
	err := p.locks.Do(ctx, msg.WaID, func() error {
		var err error
		resp, err = p.process(ctx, msg)
		return err
	})
	return resp, err
}

func (p *Pipeline) process(ctx context.Context, msg domain.InboundMessage) (*flow.Response, error) {
	text := msg.Text

	if msg.HasAudio() && p.transcriber != nil {
		transcribed, err := p.transcriber.Transcribe(ctx, msg.AudioURL)
		if err != nil {
			p.logger.Error("transcription failed", "wa_id", msg.WaID, "event_id", msg.EventID, "error", err)
			return nil, fmt.Errorf("transcribe audio: %w", err)
		}
		text = transcribed
	}

	text = p.resolveChoice(ctx, msg, text)

	resp, err := p.resolver.Advance(ctx, msg.WaID, text)
	if err != nil {
		p.logger.Error("dialogue turn failed", "wa_id", msg.WaID, "event_id", msg.EventID, "error", err)
		return nil, err
	}

	p.applyInputSpec(ctx, msg.WaID, resp)
	return resp, nil
}

// resolveChoice matches free-form text against the user's live choice set.
// On a hit the matched choice's content becomes the effective message and
// the set is consumed. No match is a legitimate outcome: the raw text goes
// to the flow, which re-prompts.
func (p *Pipeline) resolveChoice(ctx context.Context, msg domain.InboundMessage, text string) string {
	if text == "" {
		return text
	}
	choices := p.state.ActiveChoices(ctx, msg.WaID)
	if len(choices) == 0 {
		return text
	}

	m := match.Resolve(text, choices)
	if m == nil {
		p.logger.Info("no choice matched", "wa_id", msg.WaID, "event_id", msg.EventID)
		return text
	}

	p.logger.Info("choice matched",
		"wa_id", msg.WaID,
		"event_id", msg.EventID,
		"choice_id", m.ChoiceID,
		"score", m.Score)
	p.state.ClearActiveChoices(ctx, msg.WaID)
	return m.Content
}

// applyInputSpec records what the flow is waiting for next: a choice input
// becomes the live choice set, any other input kind is remembered as the
// expected input, and no input clears both.
func (p *Pipeline) applyInputSpec(ctx context.Context, waID string, resp *flow.Response) {
	switch {
	case resp.Input == nil:
		p.state.ClearActiveChoices(ctx, waID)
		p.state.ClearExpectedInput(ctx, waID)
	case resp.Input.Kind == flow.InputKindChoice && len(resp.Input.Choices) > 0:
		p.state.SetActiveChoices(ctx, waID, resp.SessionID, resp.Input.Choices)
		p.state.ClearExpectedInput(ctx, waID)
	default:
		p.state.SetExpectedInput(ctx, waID, resp.Input.Kind)
	}
}
