// Package backend is a client for the remote task and list service.
//
// Every operation is an HTTP POST of a JSON object to /<Concept>/<action>.
// The session token travels inside the body as "sessionToken". Responses are
// JSON objects; an "error" field means the action was rejected.
//
// Two kinds of failure reach callers through the error return:
//
//   - *DomainError: the service answered and rejected the action
//   - any other error: transport failure, non-JSON body, or an HTTP error
//     status without an error envelope
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTimeout bounds one request.
const DefaultTimeout = 30 * time.Second

// DomainError is an action the service rejected.
type DomainError struct {
	Action  string
	Status  int
	Message string
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("%s: %s", e.Action, e.Message)
}

// Config holds client settings.
type Config struct {
	BaseURL      string
	SessionToken string
	Timeout      time.Duration

	// HTTPClient overrides the default client. Its Timeout is left alone.
	HTTPClient *http.Client

	Logger zerolog.Logger
}

// Client talks to the remote service.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  zerolog.Logger
}

// New creates a Client.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("base URL is required")
	}

	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL: base,
		token:   cfg.SessionToken,
		http:    hc,
		logger:  cfg.Logger.With().Str("component", "backend").Logger(),
	}, nil
}

// call posts payload to action and decodes the response into out. out may be
// nil.
func (c *Client) call(ctx context.Context, action string, payload map[string]any, out any) error {
	if payload == nil {
		payload = map[string]any{}
	}
	if c.token != "" {
		payload["sessionToken"] = c.token
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: failed to encode request: %w", action, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+action, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: failed to build request: %w", action, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("%s: failed to read response: %w", action, err)
	}

	c.logger.Debug().
		Str("action", action).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("backend call")

	var envelope struct {
		Error *string `json:"error"`
	}
	jsonErr := json.Unmarshal(data, &envelope)
	if jsonErr == nil && envelope.Error != nil {
		return &DomainError{Action: action, Status: resp.StatusCode, Message: *envelope.Error}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s: unexpected status %s", action, resp.Status)
	}
	if jsonErr != nil {
		return fmt.Errorf("%s: invalid JSON response: %w", action, jsonErr)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", action, err)
	}
	return nil
}

func isoTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
