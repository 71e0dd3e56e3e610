package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/park285/cheese-chess-web/internal/domain"
	"github.com/park285/cheese-chess-web/internal/game"
	"github.com/park285/cheese-chess-web/pkg/chessdto"
	"github.com/valyala/fasthttp"
)

// APIError is a non-2xx answer from the leaderboard API.
type APIError struct {
	Status  int
	Message string
	Details string
}

func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("leaderboard api: status=%d %s (%s)", e.Status, e.Message, e.Details)
	}
	return fmt.Sprintf("leaderboard api: status=%d %s", e.Status, e.Message)
}

// HeaderProvider allows injecting per-request headers.
type HeaderProvider func() map[string]string

// Client talks to the leaderboard HTTP API. It satisfies game.Submitter so a
// game server can record scores on a remote leaderboard service.
type Client struct {
	baseURL string
	http    *fasthttp.Client
	headers HeaderProvider

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

func WithMaxConnsPerHost(n int) Option {
	return func(c *Client) { c.http.MaxConnsPerHost = n }
}

func WithHeaderProvider(h HeaderProvider) Option {
	return func(c *Client) { c.headers = h }
}

// WithRetry sets the attempt count for idempotent reads. Writes are sent once.
func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 16},
		defaultTimeout: 10 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Top(ctx context.Context, d domain.Difficulty) ([]domain.LeaderboardEntry, error) {
	var rows []chessdto.LeaderboardEntry
	path := "/api/leaderboard?difficulty=" + url.QueryEscape(string(d))
	if err := c.doJSON(ctx, fasthttp.MethodGet, path, nil, &rows, true); err != nil {
		return nil, err
	}
	out := make([]domain.LeaderboardEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, entryFromDTO(r))
	}
	return out, nil
}

// Init asks the server to create its tables. It is idempotent server side,
// so it is retried like a read.
func (c *Client) Init(ctx context.Context) error {
	return c.doJSON(ctx, fasthttp.MethodPost, "/api/leaderboard/init", nil, nil, true)
}

func (c *Client) Submit(ctx context.Context, sub game.Submission) (domain.LeaderboardEntry, error) {
	secs := sub.TimeSeconds
	req := chessdto.SubmitScoreRequest{
		Difficulty:  string(sub.Difficulty),
		PlayerName:  sub.PlayerName,
		TimeSeconds: &secs,
	}
	var resp chessdto.LeaderboardEntry
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/api/leaderboard", req, &resp, false); err != nil {
		return domain.LeaderboardEntry{}, err
	}
	return entryFromDTO(resp), nil
}

func entryFromDTO(r chessdto.LeaderboardEntry) domain.LeaderboardEntry {
	return domain.LeaderboardEntry{
		ID:          r.ID,
		PlayerName:  r.PlayerName,
		TimeSeconds: r.TimeSeconds,
		CreatedAt:   r.CreatedAt,
	}
}

func (c *Client) doJSON(ctx context.Context, method, path string, in any, out any, retry bool) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	req.Header.SetContentType("application/json")

	if c.headers != nil {
		for k, v := range c.headers() {
			if strings.TrimSpace(k) != "" && strings.TrimSpace(v) != "" {
				req.Header.Set(k, v)
			}
		}
	}

	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		req.SetBody(payload)
	}

	attempts := 1
	if retry && c.retryMax > 1 {
		attempts = c.retryMax
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx))
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			if attempt == attempts {
				return lastErr
			}
			if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		status := resp.StatusCode()
		if status < 200 || status >= 300 {
			apiErr := decodeAPIError(status, resp.Body())
			if attempt == attempts || !shouldRetryStatus(status) {
				return apiErr
			}
			lastErr = apiErr
			if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		if out != nil && len(resp.Body()) > 0 {
			if err := json.Unmarshal(resp.Body(), out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
		}
		return nil
	}

	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return lastErr
}

func decodeAPIError(status int, body []byte) *APIError {
	var payload chessdto.ErrorResponse
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return &APIError{Status: status, Message: payload.Error, Details: payload.Details}
	}
	return &APIError{Status: status, Message: truncate(string(body), 512)}
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	return time.Duration(1<<uint(attempt-1)) * 50 * time.Millisecond
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
