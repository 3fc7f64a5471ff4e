// Package gcal implements the REST client for the Google-Calendar-style
// event API the sync core reconciles against.
//
// Every call carries a context and a request timeout. Transient failures
// (transport errors, 429, 5xx) are retried a bounded number of times with
// exponential backoff before surfacing a *RemoteError; a timeout or
// exhausted retry leaves the caller's sync checkpoint untouched, which is
// safe because the next poll re-detects the same divergence.
package gcal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// Config holds client configuration.
type Config struct {
	// BaseURL is the API root, e.g. https://www.googleapis.com/calendar/v3
	BaseURL string

	// Token is the opaque bearer token sent on every request
	Token string

	// Timeout bounds each HTTP attempt (default 15s)
	Timeout time.Duration

	// MaxRetries is the number of retries after the first attempt,
	// clamped to 1..3 (default 2)
	MaxRetries int

	// RetryBackoff is the base delay before the first retry, doubled per
	// attempt with jitter (default 500ms)
	RetryBackoff time.Duration

	// Logger for request activity (default: stderr logger)
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Timeout:      15 * time.Second,
		MaxRetries:   2,
		RetryBackoff: 500 * time.Millisecond,
		Logger:       log.New(os.Stderr, "[gcal] ", log.LstdFlags),
	}
}

// Client talks to the remote calendar API.
type Client struct {
	baseURL    string
	token      string
	httpc      *http.Client
	maxRetries int
	backoff    time.Duration
	logger     *log.Logger
}

// NewClient creates a calendar API client from config. BaseURL is required;
// everything else falls back to DefaultConfig values.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil || cfg.BaseURL == "" {
		return nil, fmt.Errorf("gcal: base URL is required")
	}
	def := DefaultConfig()
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = def.Timeout
	}
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = def.MaxRetries
	}
	if retries > 3 {
		retries = 3
	}
	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = def.RetryBackoff
	}
	logger := cfg.Logger
	if logger == nil {
		logger = def.Logger
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		httpc:      &http.Client{Timeout: timeout},
		maxRetries: retries,
		backoff:    backoff,
		logger:     logger,
	}, nil
}

// listResponse is the wire shape of the events collection endpoint.
type listResponse struct {
	Items         []Event `json:"items"`
	NextPageToken string  `json:"nextPageToken,omitempty"`
}

// ListUpdatedSince returns every event whose remote updated stamp is at or
// after updatedMin, following pagination. Cancelled events are included so
// deletions propagate. Items are returned as decoded; callers validate each
// one and skip malformed payloads.
func (c *Client) ListUpdatedSince(ctx context.Context, calendarID string, updatedMin time.Time) ([]Event, error) {
	var events []Event
	pageToken := ""

	for {
		q := url.Values{}
		q.Set("singleEvents", "true")
		q.Set("showDeleted", "true")
		q.Set("maxResults", "250")
		if !updatedMin.IsZero() {
			q.Set("updatedMin", updatedMin.UTC().Format(time.RFC3339))
		}
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}

		path := fmt.Sprintf("/calendars/%s/events?%s", url.PathEscape(calendarID), q.Encode())
		body, err := c.do(ctx, http.MethodGet, path, nil, "list")
		if err != nil {
			return nil, err
		}

		var page listResponse
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, &RemoteError{Op: "list", Err: fmt.Errorf("failed to decode event list: %w", err)}
		}

		events = append(events, page.Items...)
		if page.NextPageToken == "" {
			return events, nil
		}
		pageToken = page.NextPageToken
	}
}

// GetEvent fetches a single event. A 404 wraps ErrEventNotFound.
func (c *Client) GetEvent(ctx context.Context, calendarID, eventID string) (*Event, error) {
	path := fmt.Sprintf("/calendars/%s/events/%s", url.PathEscape(calendarID), url.PathEscape(eventID))
	body, err := c.do(ctx, http.MethodGet, path, nil, "get")
	if err != nil {
		return nil, err
	}
	return decodeEvent(body, "get")
}

// InsertEvent creates an event and returns the remote's view of it,
// including the assigned id and updated stamp.
func (c *Client) InsertEvent(ctx context.Context, calendarID string, patch *EventPatch) (*Event, error) {
	path := fmt.Sprintf("/calendars/%s/events", url.PathEscape(calendarID))
	body, err := c.do(ctx, http.MethodPost, path, patch, "insert")
	if err != nil {
		return nil, err
	}
	return decodeEvent(body, "insert")
}

// UpdateEvent replaces an event's writable fields and returns the remote's
// updated view.
func (c *Client) UpdateEvent(ctx context.Context, calendarID, eventID string, patch *EventPatch) (*Event, error) {
	path := fmt.Sprintf("/calendars/%s/events/%s", url.PathEscape(calendarID), url.PathEscape(eventID))
	body, err := c.do(ctx, http.MethodPut, path, patch, "update")
	if err != nil {
		return nil, err
	}
	return decodeEvent(body, "update")
}

// DeleteEvent removes an event. Deleting an already-deleted event returns
// a RemoteError wrapping ErrEventNotFound; callers may treat that as done.
func (c *Client) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	path := fmt.Sprintf("/calendars/%s/events/%s", url.PathEscape(calendarID), url.PathEscape(eventID))
	_, err := c.do(ctx, http.MethodDelete, path, nil, "delete")
	return err
}

func decodeEvent(body []byte, op string) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, &RemoteError{Op: op, Err: fmt.Errorf("failed to decode event: %w", err)}
	}
	return &ev, nil
}

// do performs one API call with bounded retries. The request body is
// re-marshaled per attempt so retries never reuse a drained reader.
func (c *Client) do(ctx context.Context, method, path string, payload interface{}, op string) ([]byte, error) {
	var bodyBytes []byte
	if payload != nil {
		var err error
		bodyBytes, err = json.Marshal(payload)
		if err != nil {
			return nil, &RemoteError{Op: op, Err: fmt.Errorf("failed to encode request: %w", err)}
		}
	}

	var lastErr *RemoteError
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := c.backoff << (attempt - 1)
			wait += time.Duration(rand.Int63n(int64(wait)/2 + 1))
			c.logger.Printf("Retrying %s %s in %v (attempt %d/%d)", method, path, wait, attempt, c.maxRetries)
			select {
			case <-ctx.Done():
				return nil, &RemoteError{Op: op, Err: ctx.Err()}
			case <-time.After(wait):
			}
		}

		var reqBody io.Reader
		if bodyBytes != nil {
			reqBody = bytes.NewReader(bodyBytes)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
		if err != nil {
			return nil, &RemoteError{Op: op, Err: err}
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		if bodyBytes != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpc.Do(req)
		if err != nil {
			lastErr = &RemoteError{Op: op, Err: err}
			if ctx.Err() != nil {
				return nil, lastErr
			}
			continue
		}

		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = &RemoteError{Op: op, StatusCode: resp.StatusCode, Err: readErr}
			continue
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return respBody, nil
		case resp.StatusCode == http.StatusNotFound:
			return nil, &RemoteError{Op: op, StatusCode: resp.StatusCode, Err: ErrEventNotFound}
		case resp.StatusCode == 429 || resp.StatusCode >= 500:
			lastErr = &RemoteError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("%s", strings.TrimSpace(string(respBody)))}
			continue
		default:
			return nil, &RemoteError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("%s", strings.TrimSpace(string(respBody)))}
		}
	}

	return nil, lastErr
}
