package notifications

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/careloop/booking-platform/pkg/logging"
)

// ErrRetriesExhausted is returned once the stream client gives up
// reconnecting. Callers should surface the failure and fall back to
// polling rather than retrying forever.
var ErrRetriesExhausted = errors.New("notifications: stream retries exhausted")

// TokenSource supplies a fresh bearer token for each connection attempt,
// so a stream that outlives the original token can still reconnect.
type TokenSource func(ctx context.Context) (string, error)

// StreamClient consumes the notification SSE endpoint with automatic
// reconnection. Backoff grows linearly with the attempt number and the
// attempt counter resets after any successful connection.
type StreamClient struct {
	baseURL     string
	tokens      TokenSource
	client      *http.Client
	maxAttempts int
	backoffStep time.Duration
	logger      *logging.Logger
}

func NewStreamClient(baseURL string, tokens TokenSource, maxAttempts int, backoffStep time.Duration, logger *logging.Logger) *StreamClient {
	if logger == nil {
		logger = logging.Default()
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if backoffStep <= 0 {
		backoffStep = 2 * time.Second
	}
	return &StreamClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		tokens:      tokens,
		client:      &http.Client{},
		maxAttempts: maxAttempts,
		backoffStep: backoffStep,
		logger:      logger,
	}
}

// Run connects and invokes handle for every notification until ctx is
// cancelled or reconnection attempts are exhausted.
func (c *StreamClient) Run(ctx context.Context, handle func(Notification)) error {
	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		delivered, err := c.connect(ctx, handle)
		if err == nil || errors.Is(err, context.Canceled) {
			return ctx.Err()
		}
		if delivered {
			attempt = 0
		}

		attempt++
		if attempt >= c.maxAttempts {
			c.logger.Error("stream giving up", "attempts", attempt, "error", err)
			return fmt.Errorf("%w: last error: %v", ErrRetriesExhausted, err)
		}

		wait := time.Duration(attempt) * c.backoffStep
		c.logger.Warn("stream reconnecting", "attempt", attempt, "wait", wait, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// connect opens one stream and pumps events until it breaks. The
// returned bool reports whether at least one event arrived, which is
// what resets the backoff counter.
func (c *StreamClient) connect(ctx context.Context, handle func(Notification)) (bool, error) {
	token, err := c.tokens(ctx)
	if err != nil {
		return false, fmt.Errorf("notifications: fetch token: %w", err)
	}

	endpoint := c.baseURL + "/api/v1/notifications/sse?token=" + url.QueryEscape(token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("notifications: build request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("notifications: connect stream: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("notifications: stream returned status %d", resp.StatusCode)
	}

	delivered := false
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var event string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			event = ""
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			if event != "notification" {
				continue
			}
			var n Notification
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &n); err != nil {
				c.logger.Warn("skipping malformed event", "error", err)
				continue
			}
			delivered = true
			handle(n)
		}
	}
	if err := scanner.Err(); err != nil {
		return delivered, fmt.Errorf("notifications: read stream: %w", err)
	}
	return delivered, errors.New("notifications: stream closed by server")
}
