package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Option configures the Client.
type Option func(*Client)

// Client provides typed access to the ProgressKit HTTP + WebSocket API.
type Client struct {
	baseURL    string
	wsURL      string
	httpClient *http.Client
	headers    http.Header
}

// NewClient constructs a new SDK client targeting the given baseURL (e.g., http://localhost:8080/api).
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("baseURL is required")
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	c := &Client{
		baseURL:    baseURL,
		wsURL:      deriveWSURL(baseURL),
		httpClient: http.DefaultClient,
		headers:    make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithAuthToken adds an Authorization: Bearer token header to all requests (HTTP + WS).
func WithAuthToken(token string) Option {
	return func(c *Client) {
		if strings.TrimSpace(token) != "" {
			c.headers.Set("Authorization", "Bearer "+token)
		}
	}
}

// WithAPIKey adds an X-API-Key header.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		if strings.TrimSpace(key) != "" {
			c.headers.Set("X-API-Key", key)
		}
	}
}

// WithHeader sets an arbitrary header applied to HTTP and WS calls.
func WithHeader(k, v string) Option {
	return func(c *Client) {
		if k != "" {
			c.headers.Set(k, v)
		}
	}
}

// RecordActivity records one learner action and returns the updated state.
func (c *Client) RecordActivity(ctx context.Context, userID string, activity Activity) (UserState, error) {
	if strings.TrimSpace(userID) == "" {
		return UserState{}, ErrEmptyUserID
	}
	u := fmt.Sprintf("%s/users/%s/activities", c.baseURL, url.PathEscape(userID))

	var st UserState
	if err := c.postJSON(ctx, u, activity, &st); err != nil {
		return UserState{}, err
	}
	return st, nil
}

// GetUser fetches the current progression state for a user.
func (c *Client) GetUser(ctx context.Context, userID string) (UserState, error) {
	if strings.TrimSpace(userID) == "" {
		return UserState{}, ErrEmptyUserID
	}
	u := fmt.Sprintf("%s/users/%s", c.baseURL, url.PathEscape(userID))

	var st UserState
	if err := c.getJSON(ctx, u, &st); err != nil {
		return UserState{}, err
	}
	return st, nil
}

// EvaluateAchievements re-runs achievement evaluation for a user and returns
// the resulting state. Useful after out-of-band stat changes.
func (c *Client) EvaluateAchievements(ctx context.Context, userID string) (UserState, error) {
	if strings.TrimSpace(userID) == "" {
		return UserState{}, ErrEmptyUserID
	}
	u := fmt.Sprintf("%s/users/%s/evaluate", c.baseURL, url.PathEscape(userID))

	var st UserState
	if err := c.postJSON(ctx, u, struct{}{}, &st); err != nil {
		return UserState{}, err
	}
	return st, nil
}

// GetProgress fetches the progress row for one achievement.
func (c *Client) GetProgress(ctx context.Context, userID, achievementID string) (Progress, error) {
	if strings.TrimSpace(userID) == "" {
		return Progress{}, ErrEmptyUserID
	}
	u := fmt.Sprintf("%s/users/%s/progress/%s", c.baseURL, url.PathEscape(userID), url.PathEscape(achievementID))

	var row Progress
	if err := c.getJSON(ctx, u, &row); err != nil {
		return Progress{}, err
	}
	return row, nil
}

// InitProgress creates an empty progress row for an achievement.
func (c *Client) InitProgress(ctx context.Context, userID, achievementID string) (Progress, error) {
	if strings.TrimSpace(userID) == "" {
		return Progress{}, ErrEmptyUserID
	}
	u := fmt.Sprintf("%s/users/%s/progress/%s/init", c.baseURL, url.PathEscape(userID), url.PathEscape(achievementID))

	var row Progress
	if err := c.postJSON(ctx, u, struct{}{}, &row); err != nil {
		return Progress{}, err
	}
	return row, nil
}

// UpdateProgress raises requirement counters on an achievement's progress row.
// alreadyCompleted reports the server treating the update as a no-op because
// the achievement was finished earlier.
func (c *Client) UpdateProgress(ctx context.Context, userID, achievementID string, updates []ProgressUpdate) (row Progress, alreadyCompleted bool, err error) {
	if strings.TrimSpace(userID) == "" {
		return Progress{}, false, ErrEmptyUserID
	}
	u := fmt.Sprintf("%s/users/%s/progress/%s", c.baseURL, url.PathEscape(userID), url.PathEscape(achievementID))

	payload := struct {
		Updates []ProgressUpdate `json:"updates"`
	}{Updates: updates}

	var raw json.RawMessage
	if err := c.postJSON(ctx, u, payload, &raw); err != nil {
		return Progress{}, false, err
	}

	// A completed row comes back wrapped with an already_completed flag.
	var wrapped struct {
		Progress         *Progress `json:"progress"`
		AlreadyCompleted bool      `json:"already_completed"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Progress != nil {
		return *wrapped.Progress, wrapped.AlreadyCompleted, nil
	}
	if err := json.Unmarshal(raw, &row); err != nil {
		return Progress{}, false, err
	}
	return row, false, nil
}

// RecomputeLeaderboard triggers a snapshot recompute for the given window.
// Zero-value fields fall back to the all_time/overall window.
func (c *Client) RecomputeLeaderboard(ctx context.Context, key WindowKey) (Snapshot, error) {
	u := c.baseURL + "/leaderboard/recompute"

	var snap Snapshot
	if err := c.postJSON(ctx, u, key, &snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// LeaderboardTop returns the top n entries of the live leaderboard.
func (c *Client) LeaderboardTop(ctx context.Context, n int) ([]Entry, error) {
	u, err := url.Parse(c.baseURL + "/leaderboard/top")
	if err != nil {
		return nil, err
	}
	if n > 0 {
		q := u.Query()
		q.Set("n", fmt.Sprintf("%d", n))
		u.RawQuery = q.Encode()
	}

	var body struct {
		Entries []Entry `json:"entries"`
	}
	if err := c.getJSON(ctx, u.String(), &body); err != nil {
		return nil, err
	}
	return body.Entries, nil
}

// Health probes /healthz and returns status + storage check.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	var hs HealthStatus
	if err := c.getJSON(ctx, c.baseURL+"/healthz", &hs); err != nil {
		return HealthStatus{}, err
	}
	return hs, nil
}

// SubscribeEvents connects to the WebSocket stream and emits Event values.
// The returned channel closes when ctx is done or the connection drops.
func (c *Client) SubscribeEvents(ctx context.Context) (<-chan Event, error) {
	if c.wsURL == "" {
		return nil, errors.New("wsURL is not set; ensure baseURL is http/https")
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, c.wsURL, c.headers)
	if err != nil {
		return nil, err
	}

	out := make(chan Event, 32)
	go func() {
		defer close(out)
		defer conn.Close()
		for {
			select {
			case <-ctx.Done():
				return
			default:
				var evt Event
				if err := conn.ReadJSON(&evt); err != nil {
					return
				}
				select {
				case out <- evt:
				default:
					// drop if consumer is slow
				}
			}
		}
	}()
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, rawURL string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeJSON(resp, target)
}

func (c *Client) postJSON(ctx context.Context, rawURL string, payload, target any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeJSON(resp, target)
}

func (c *Client) applyHeaders(r *http.Request) {
	for k, vals := range c.headers {
		for _, v := range vals {
			r.Header.Add(k, v)
		}
	}
}

func deriveWSURL(httpBase string) string {
	u, err := url.Parse(httpBase)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		// leave as-is for custom schemes
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String()
}
