// Package channel adapts external message delivery mechanisms to the relay
// pipeline. The core never depends on how messages are produced; adapters
// here turn a delivery mechanism into domain.InboundMessage values and
// carry replies back.
package channel

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/pbarbosa/zapbridge/internal/domain"
	"github.com/pbarbosa/zapbridge/internal/pipeline"
)

// Sender delivers outbound text to a user on the channel.
type Sender interface {
	SendText(ctx context.Context, waID, text string) error
}

const (
	reconnectBaseDelay = time.Second
	reconnectMaxDelay  = 30 * time.Second
)

// SocketClient consumes message events from the channel gateway's
// websocket and feeds them through the pipeline. Each event is dispatched
// on its own goroutine; the per-user lock inside the pipeline provides the
// only ordering guarantee, matching the event-driven delivery the gateway
// uses.
type SocketClient struct {
	url    string
	pipe   *pipeline.Pipeline
	logger *slog.Logger
}

// NewSocketClient creates a socket channel adapter.
func NewSocketClient(url string, pipe *pipeline.Pipeline, logger *slog.Logger) *SocketClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &SocketClient{
		url:    url,
		pipe:   pipe,
		logger: logger,
	}
}

type socketEvent struct {
	Event string        `json:"event"`
	Data  socketMessage `json:"data"`
}

type socketMessage struct {
	From     string `json:"from"`
	Body     string `json:"body,omitempty"`
	AudioURL string `json:"audioUrl,omitempty"`
}

type outboundEvent struct {
	Event string `json:"event"`
	To    string `json:"to"`
	Body  string `json:"body"`
}

// Run connects to the gateway and consumes events until ctx is cancelled,
// reconnecting with capped backoff after connection failures.
func (c *SocketClient) Run(ctx context.Context) error {
	delay := reconnectBaseDelay
	for {
		err := c.consume(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		c.logger.Warn("channel socket disconnected, reconnecting", "url", c.url, "delay", delay, "error", err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
		if delay > reconnectMaxDelay {
			delay = reconnectMaxDelay
		}
	}
}

func (c *SocketClient) consume(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := conn.Close(websocket.StatusNormalClosure, "shutting down"); closeErr != nil {
			c.logger.Debug("failed to close channel socket", "error", closeErr)
		}
	}()
	// Inbound traffic is unbounded JSON from the gateway.
	conn.SetReadLimit(1 << 20)

	c.logger.Info("channel socket connected", "url", c.url)
	sender := &socketSender{conn: conn}

	for {
		var ev socketEvent
		if err := wsjson.Read(ctx, conn, &ev); err != nil {
			return err
		}
		if ev.Event != "message" || ev.Data.From == "" {
			continue
		}

		msg := domain.InboundMessage{
			EventID:  uuid.NewString(),
			WaID:     ev.Data.From,
			Text:     ev.Data.Body,
			AudioURL: ev.Data.AudioURL,
		}
		go c.dispatch(ctx, sender, msg)
	}
}

// dispatch runs one message through the pipeline and delivers the replies.
// Failures are scoped to this message; the read loop keeps going.
func (c *SocketClient) dispatch(ctx context.Context, sender Sender, msg domain.InboundMessage) {
	resp, err := c.pipe.Handle(ctx, msg)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			c.logger.Error("message processing failed", "event_id", msg.EventID, "wa_id", msg.WaID, "error", err)
		}
		return
	}

	for _, m := range resp.Messages {
		if m.Content == "" {
			continue
		}
		if err := sender.SendText(ctx, msg.WaID, m.Content); err != nil {
			c.logger.Error("failed to deliver reply", "event_id", msg.EventID, "wa_id", msg.WaID, "error", err)
			return
		}
	}
}

// socketSender writes outbound events on the gateway connection. A mutex
// serializes writers since dispatches run concurrently.
type socketSender struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *socketSender) SendText(ctx context.Context, waID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return wsjson.Write(ctx, s.conn, outboundEvent{
		Event: "sendText",
		To:    waID,
		Body:  text,
	})
}
