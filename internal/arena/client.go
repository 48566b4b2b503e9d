package arena

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	"github.com/swingmate-app/challenge-engine/internal/challenge"
	"github.com/swingmate-app/challenge-engine/internal/protocol"
	"github.com/swingmate-app/challenge-engine/pkg/arenadto"
)

// APIError is a command rejection from the arena server, surfaced to the
// caller as an ordinary error value. It never mutates local session state;
// only the fanned-out event does.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return fmt.Sprintf("arena api error: status=%d", e.Status)
}

// Client is the durable command path: every mutating operation goes through
// here for persistence and acknowledgment, regardless of socket state.
type Client struct {
	baseURL string
	http    *fasthttp.Client
	cred    Credential

	defaultTimeout time.Duration
	retryMax       int
}

type ClientOption func(*Client)

func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.defaultTimeout = d }
}

func WithMaxConnsPerHost(n int) ClientOption {
	return func(c *Client) { c.http.MaxConnsPerHost = n }
}

func WithRetry(max int) ClientOption {
	return func(c *Client) { c.retryMax = max }
}

func NewClient(baseURL string, cred Credential, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 64},
		cred:           cred,
		defaultTimeout: 10 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListChallenges fetches the full current session set. This is the resync
// path after every reconnect and the polling fallback for anonymous mode.
func (c *Client) ListChallenges(ctx context.Context) ([]*challenge.Session, error) {
	var payloads []protocol.SessionPayload
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/v1/challenges", nil, &payloads, true); err != nil {
		return nil, err
	}
	out := make([]*challenge.Session, 0, len(payloads))
	for _, p := range payloads {
		out = append(out, p.ToSession())
	}
	return out, nil
}

func (c *Client) CreateChallenge(ctx context.Context, req arenadto.CreateChallengeRequest) (*challenge.Session, error) {
	var payload protocol.SessionPayload
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/v1/challenges", req, &payload, false); err != nil {
		return nil, err
	}
	return payload.ToSession(), nil
}

func (c *Client) JoinChallenge(ctx context.Context, id string) error {
	return c.doJSON(ctx, fasthttp.MethodPost, "/v1/challenges/"+id+"/join", nil, nil, false)
}

func (c *Client) LeaveChallenge(ctx context.Context, id string) error {
	return c.doJSON(ctx, fasthttp.MethodPost, "/v1/challenges/"+id+"/leave", nil, nil, false)
}

func (c *Client) SubmitScore(ctx context.Context, id string, score float64, recordedAt time.Time) error {
	req := arenadto.SubmitScoreRequest{Score: score, RecordedAt: recordedAt}
	return c.doJSON(ctx, fasthttp.MethodPost, "/v1/challenges/"+id+"/scores", req, nil, false)
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
	if !c.cred.Anonymous() {
		req.Header.Set("Authorization", "Bearer "+c.cred.Token())
	}
	if method != fasthttp.MethodGet {
		// servers deduplicate retried commands on this key
		req.Header.Set("X-Command-Id", uuid.NewString())
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
		deadline := c.computeDeadline(ctx)
		err := c.http.DoDeadline(req, resp, deadline)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			if attempt == attempts {
				return lastErr
			}
			if sleepErr := sleepWithContext(ctx, retryDelay(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		status := resp.StatusCode()
		if status < 200 || status >= 300 {
			apiErr := &APIError{Status: status}
			var body arenadto.ErrorResponse
			if jsonErr := json.Unmarshal(resp.Body(), &body); jsonErr == nil {
				apiErr.Code = body.Code
				apiErr.Message = body.Message
			}
			if attempt == attempts || !shouldRetryStatus(status) {
				return apiErr
			}
			lastErr = apiErr
			if sleepErr := sleepWithContext(ctx, retryDelay(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		if out != nil {
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

func retryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	return time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
}

func shouldRetryStatus(code int) bool {
	switch code {
	case fasthttp.StatusInternalServerError,
		fasthttp.StatusBadGateway,
		fasthttp.StatusServiceUnavailable,
		fasthttp.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
