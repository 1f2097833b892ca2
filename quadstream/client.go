// Package quadstream implements the client for the QuadStream display
// service: session login, quad updates and webhook notifications.
package quadstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"go.quadlink.org/quadlink"
	"go.quadlink.org/quadlink/logger"
)

// DefaultBaseURL is the production QuadStream endpoint.
const DefaultBaseURL = "https://quadstream.tv"

// ErrNotLoggedIn is returned when an update is attempted before Login.
var ErrNotLoggedIn = errors.New("not logged in to quadstream")

// Client talks to the QuadStream API. Login stores the session cookie
// and the account's short stream ID used in the update path.
type Client struct {
	baseURL    string
	username   string
	secret     string
	httpClient *http.Client

	shortID string
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint (tests, staging).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// New creates a QuadStream client.
func New(username, secret string, opts ...Option) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}

	c := &Client{
		baseURL:  DefaultBaseURL,
		username: username,
		secret:   secret,
		httpClient: &http.Client{
			Jar:     jar,
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// LoggedIn reports whether a login succeeded earlier.
func (c *Client) LoggedIn() bool {
	return c.shortID != ""
}

// Login authenticates and stores the session cookie and short ID.
func (c *Client) Login(ctx context.Context) error {
	log := logger.FromContext(ctx)

	payload := map[string]string{
		"username": c.username,
		"secret":   c.secret,
	}

	var data struct {
		ShortID string `json:"short_id"`
	}
	if err := c.post(ctx, c.baseURL+"/stream/api/login", payload, &data); err != nil {
		return fmt.Errorf("quadstream login: %w", err)
	}
	if data.ShortID == "" {
		return errors.New("quadstream login response missing short_id")
	}

	c.shortID = data.ShortID
	log.InfoContext(ctx, "quadstream login successful", "shortID", c.shortID)
	return nil
}

// UpdateQuad pushes the quad's four slot URLs to the display service.
// Transient failures are retried with exponential backoff.
func (c *Client) UpdateQuad(ctx context.Context, quad quadlink.Quad) error {
	log := logger.FromContext(ctx)

	if !c.LoggedIn() {
		return ErrNotLoggedIn
	}

	url := fmt.Sprintf("%s/stream/api/stream/%s/update", c.baseURL, c.shortID)

	slots := quad.Slots()
	log.DebugContext(ctx, "quadstream request",
		"stream1", truncate(slots[0]),
		"stream2", truncate(slots[1]),
		"stream3", truncate(slots[2]),
		"stream4", truncate(slots[3]))

	expback := backoff.NewExponentialBackOff()
	expback.InitialInterval = time.Second

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, c.post(ctx, url, quad, nil)
	},
		backoff.WithBackOff(expback),
		backoff.WithMaxTries(3),
	)
	if err != nil {
		// a rejected session forces a fresh login before the next update
		var apiErr *apiError
		if errors.As(err, &apiErr) &&
			(apiErr.status == http.StatusUnauthorized || apiErr.status == http.StatusForbidden) {
			c.shortID = ""
		}
		return fmt.Errorf("quadstream update: %w", err)
	}

	log.InfoContext(ctx, "quadstream update successful")
	return nil
}

// SendWebhook notifies the configured webhook that the quad was
// updated. A missing URL is not an error.
func (c *Client) SendWebhook(ctx context.Context, webhookURL string, quad *quadlink.Quad) error {
	log := logger.FromContext(ctx)

	if webhookURL == "" {
		return nil
	}

	payload := map[string]any{"event": "quad_updated"}
	if quad != nil {
		payload["quad"] = quad
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted, http.StatusNoContent:
		log.InfoContext(ctx, "webhook successful")
		return nil
	default:
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}
}

// apiError is a non-200 answer from the QuadStream API.
type apiError struct {
	status int
	body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("status %d: %s", e.status, e.body)
}

// post sends a JSON body and optionally decodes a JSON response. A
// non-200 status is a permanent error: the server answered, retrying
// the same request will not help.
func (c *Client) post(ctx context.Context, url string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return backoff.Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return backoff.Permanent(&apiError{
			status: resp.StatusCode,
			body:   strings.TrimSpace(string(data)),
		})
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

func truncate(url string) string {
	if len(url) > 80 {
		return url[:80] + "..."
	}
	return url
}
