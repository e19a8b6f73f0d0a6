package flow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pbarbosa/zapbridge/internal/domain"
)

// HTTPStatusError captures non-2xx upstream responses.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("flow: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

// Client is an HTTP client for a Typebot-style dialogue-flow API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// ClientConfig holds configuration for the flow client.
type ClientConfig struct {
	BaseURL        string
	Token          string // optional bearer token
	RequestTimeout time.Duration
}

// NewClient creates a flow client. A zero RequestTimeout defaults to 30s.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type chatRequest struct {
	Message string `json:"message,omitempty"`
}

type apiItem struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

type apiInput struct {
	Type   string    `json:"type"`
	Items  []apiItem `json:"items,omitempty"`
	Labels []string  `json:"labels,omitempty"`
}

type clientSideAction struct {
	Redirect *Redirect `json:"redirect,omitempty"`
}

type chatResponse struct {
	SessionID         string             `json:"sessionId"`
	Messages          []Message          `json:"messages"`
	Input             *apiInput          `json:"input,omitempty"`
	Redirect          *Redirect          `json:"redirect,omitempty"`
	ClientSideActions []clientSideAction `json:"clientSideActions,omitempty"`
}

// Start begins a new session on the given flow.
func (c *Client) Start(ctx context.Context, flowID, message string) (*Response, error) {
	url := fmt.Sprintf("%s/api/v1/flows/%s/startChat", c.baseURL, flowID)
	return c.chat(ctx, url, message)
}

// Continue advances an existing session. An HTTP 404 is reported as
// ErrSessionNotFound so the resolver can restart the conversation.
func (c *Client) Continue(ctx context.Context, sessionID, message string) (*Response, error) {
	url := fmt.Sprintf("%s/api/v1/sessions/%s/continueChat", c.baseURL, sessionID)
	resp, err := c.chat(ctx, url, message)
	if err != nil {
		var statusErr *HTTPStatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("session %s: %w", sessionID, ErrSessionNotFound)
		}
		return nil, err
	}
	return resp, nil
}

func (c *Client) chat(ctx context.Context, url, message string) (*Response, error) {
	body, err := json.Marshal(chatRequest{Message: message})
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call flow service: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, httpResp.Body)
		_ = httpResp.Body.Close()
	}()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(httpResp.Body, 512))
		return nil, &HTTPStatusError{
			StatusCode: httpResp.StatusCode,
			URL:        url,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}

	var raw chatResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode flow response: %w", err)
	}

	return raw.toResponse(), nil
}

// toResponse converts the wire shape into the collaborator contract,
// resolving the input payload and lifting a redirect out of the side-effect
// action list when the top-level field is absent.
func (r *chatResponse) toResponse() *Response {
	resp := &Response{
		SessionID: r.SessionID,
		Messages:  r.Messages,
		Redirect:  r.Redirect,
	}

	if resp.Redirect == nil {
		for _, a := range r.ClientSideActions {
			if a.Redirect != nil {
				resp.Redirect = a.Redirect
				break
			}
		}
	}

	if r.Input != nil {
		resp.Input = &Input{
			Kind:    r.Input.Type,
			Choices: r.Input.choices(),
		}
	}

	return resp
}

// choices builds the choice list from either the items list or, failing
// that, the plain labels list.
func (in *apiInput) choices() []domain.Choice {
	if len(in.Items) > 0 {
		out := make([]domain.Choice, 0, len(in.Items))
		for i, item := range in.Items {
			id := item.ID
			if id == "" {
				id = strconv.Itoa(i + 1)
			}
			out = append(out, domain.Choice{ID: id, Label: item.Content})
		}
		return out
	}

	out := make([]domain.Choice, 0, len(in.Labels))
	for i, label := range in.Labels {
		out = append(out, domain.Choice{ID: strconv.Itoa(i + 1), Label: label})
	}
	return out
}
