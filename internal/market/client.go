package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/osagaming/avicrm/internal/config"
)

const (
	maxPageSize      = 100
	tokenEarlyExpiry = 60 * time.Second
)

// Client is the messenger capability the sync engine consumes.
type Client interface {
	ListChats(ctx context.Context, userID string, limit, offset int) ([]map[string]any, error)
	GetChat(ctx context.Context, userID, chatID string) (map[string]any, error)
	ListMessages(ctx context.Context, userID, chatID string, limit, offset int) ([]map[string]any, error)
}

// Factory builds a Client bound to one shop's API credentials.
type Factory func(clientID, clientSecret string) Client

// NewFactory returns a Factory producing HTTP clients configured from cfg.
// The rate limiter and circuit breaker are shared across all shops so the
// daemon stays inside the marketplace's account-wide quota.
func NewFactory(cfg config.Market, logger *zap.Logger) Factory {
	limiter := rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.RateBurst)
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "market",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return func(clientID, clientSecret string) Client {
		return &httpClient{
			cfg:          cfg,
			clientID:     clientID,
			clientSecret: clientSecret,
			http:         &http.Client{Timeout: cfg.RequestTimeout()},
			limiter:      limiter,
			breaker:      breaker,
			logger:       logger,
		}
	}
}

type httpClient struct {
	cfg          config.Market
	clientID     string
	clientSecret string
	http         *http.Client
	limiter      *rate.Limiter
	breaker      *gobreaker.CircuitBreaker
	logger       *zap.Logger

	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// accessToken returns a cached OAuth2 client-credentials token, refreshing
// it shortly before expiry.
func (c *httpClient) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExp.Add(-tokenEarlyExpiry)) {
		return c.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return "", &APIError{Status: resp.StatusCode, Message: "token request failed"}
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", fmt.Errorf("decode token: %w", err)
	}
	if tok.AccessToken == "" {
		return "", errors.New("token response missing access_token")
	}

	c.token = tok.AccessToken
	c.tokenExp = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	return c.token, nil
}

// get performs an authenticated GET with rate limiting, circuit breaking and
// bounded retries on transient failures.
func (c *httpClient) get(ctx context.Context, path string, query url.Values) (map[string]any, error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		result, err := c.breaker.Execute(func() (any, error) {
			return c.getOnce(ctx, path, query)
		})
		if err == nil {
			return result.(map[string]any), nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("marketplace circuit open: %w", err)
		}

		lastErr = err
		status := 0
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			status = apiErr.Status
		}
		if !shouldRetry(err, status) {
			return nil, err
		}

		delay := backoff(attempt)
		if status == http.StatusTooManyRequests {
			if ra := retryAfter(err); ra > 0 {
				delay = ra
			}
		}
		c.logger.Warn("marketplace request retry",
			zap.String("path", path),
			zap.Int("attempt", attempt),
			zap.Int("status", status),
			zap.Duration("delay", delay),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, fmt.Errorf("marketplace retries exhausted: %w", lastErr)
}

func (c *httpClient) getOnce(ctx context.Context, path string, query url.Values) (map[string]any, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Message: errorMessage(body)}
		if resp.StatusCode == http.StatusForbidden {
			apiErr.Message = "Permission denied: the account tier does not include messenger API access"
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
				return nil, &rateLimitedError{APIError: apiErr, after: time.Duration(secs) * time.Second}
			}
		}
		return nil, apiErr
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return payload, nil
}

// ListChats fetches one page of a seller's chats.
func (c *httpClient) ListChats(ctx context.Context, userID string, limit, offset int) ([]map[string]any, error) {
	limit, offset = clampPage(limit, offset)
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	payload, err := c.get(ctx, "/messenger/v2/accounts/"+userID+"/chats", q)
	if err != nil {
		return nil, err
	}
	return itemList(payload, "chats", "items"), nil
}

// GetChat fetches a single chat's detail, preferring the v3 endpoint and
// falling back to v2 when the marketplace does not know it there.
func (c *httpClient) GetChat(ctx context.Context, userID, chatID string) (map[string]any, error) {
	payload, err := c.get(ctx, "/messenger/v3/accounts/"+userID+"/chats/"+chatID, nil)
	if IsNotFound(err) {
		payload, err = c.get(ctx, "/messenger/v2/accounts/"+userID+"/chats/"+chatID, nil)
	}
	return payload, err
}

// ListMessages fetches one page of a chat's messages.
func (c *httpClient) ListMessages(ctx context.Context, userID, chatID string, limit, offset int) ([]map[string]any, error) {
	limit, offset = clampPage(limit, offset)
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	payload, err := c.get(ctx, "/messenger/v3/accounts/"+userID+"/chats/"+chatID+"/messages/", q)
	if err != nil {
		return nil, err
	}
	return itemList(payload, "messages", "items", "data"), nil
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 50
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// itemList extracts the first present list-of-objects under the given keys.
func itemList(payload map[string]any, keys ...string) []map[string]any {
	for _, key := range keys {
		raw, ok := payload[key].([]any)
		if !ok {
			continue
		}
		items := make([]map[string]any, 0, len(raw))
		for _, entry := range raw {
			if m, ok := entry.(map[string]any); ok {
				items = append(items, m)
			}
		}
		return items
	}
	return nil
}

func errorMessage(body []byte) string {
	var wrapper struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &wrapper); err == nil && wrapper.Error.Message != "" {
		return wrapper.Error.Message
	}
	return ""
}

type rateLimitedError struct {
	*APIError
	after time.Duration
}

func (e *rateLimitedError) Unwrap() error { return e.APIError }

func retryAfter(err error) time.Duration {
	var rl *rateLimitedError
	if errors.As(err, &rl) {
		return rl.after
	}
	return 0
}

// shouldRetry reports whether a request should be attempted again.
func shouldRetry(err error, httpStatus int) bool {
	if httpStatus == 0 {
		if errors.Is(err, context.DeadlineExceeded) {
			return true
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return true
		}
		return false
	}
	if httpStatus == http.StatusTooManyRequests || httpStatus == http.StatusRequestTimeout {
		return true
	}
	return httpStatus >= 500 && httpStatus <= 599
}

func backoff(attempt int) time.Duration {
	base := []time.Duration{200 * time.Millisecond, 600 * time.Millisecond, 1400 * time.Millisecond}
	if attempt <= 0 {
		return base[0]
	}
	if attempt >= len(base) {
		return base[len(base)-1]
	}
	return base[attempt]
}
