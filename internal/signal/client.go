package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"time"
)

// APIError represents a non-2xx response from the metrics API.
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("metrics api error %d: %s", e.StatusCode, e.Message)
}

// IsRetryable returns true if the error should trigger a retry.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// HTTPSource reads community metrics from a JSON HTTP API at
// GET {baseURL}/v1/communities/{key}/metrics.
type HTTPSource struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger

	maxRetries   int
	retryBackoff time.Duration
	concurrency  int
	timeout      time.Duration
	now          func() time.Time
}

// HTTPOption configures an HTTPSource.
type HTTPOption func(*HTTPSource)

// NewHTTPSource creates a new metrics API client.
func NewHTTPSource(baseURL, apiKey string, opts ...HTTPOption) *HTTPSource {
	s := &HTTPSource{
		baseURL:      baseURL,
		apiKey:       apiKey,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		logger:       slog.Default(),
		maxRetries:   2,
		retryBackoff: 200 * time.Millisecond,
		concurrency:  8,
		timeout:      3 * time.Second,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithRetries sets the retry configuration.
func WithRetries(max int, backoff time.Duration) HTTPOption {
	return func(s *HTTPSource) {
		s.maxRetries = max
		s.retryBackoff = backoff
	}
}

// WithBatchLimits sets the per-request timeout and max in-flight requests
// used by FetchBatch.
func WithBatchLimits(concurrency int, timeout time.Duration) HTTPOption {
	return func(s *HTTPSource) {
		s.concurrency = concurrency
		s.timeout = timeout
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) HTTPOption {
	return func(s *HTTPSource) {
		s.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) HTTPOption {
	return func(s *HTTPSource) {
		s.httpClient = hc
	}
}

type metricsResponse struct {
	Subscribers   int64    `json:"subscribers"`
	ActiveUsers   int64    `json:"active_users"`
	GrowthRate    float64  `json:"growth_rate"`
	ActivityRatio *float64 `json:"activity_ratio"`
	Engagement    *float64 `json:"engagement"`
	ViralBoost    float64  `json:"viral_boost"`
	Sentiment     float64  `json:"sentiment"`
}

// FetchSnapshot fetches one community's metrics.
func (s *HTTPSource) FetchSnapshot(ctx context.Context, key string) (Snapshot, error) {
	body, err := s.doWithRetry(ctx, "/v1/communities/"+url.PathEscape(key)+"/metrics")
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return Snapshot{}, fmt.Errorf("%w: %s", ErrUnavailable, key)
		}
		return Snapshot{}, err
	}

	var m metricsResponse
	if err := json.Unmarshal(body, &m); err != nil {
		return Snapshot{}, fmt.Errorf("unmarshal metrics: %w", err)
	}

	snap := Snapshot{
		Key:           key,
		Subscribers:   m.Subscribers,
		ActiveUsers:   m.ActiveUsers,
		GrowthRate:    m.GrowthRate,
		ActivityRatio: 1,
		Engagement:    0.5,
		ViralBoost:    m.ViralBoost,
		Sentiment:     m.Sentiment,
		CapturedAt:    s.now(),
		Origin:        OriginLive,
	}
	if m.ActivityRatio != nil {
		snap.ActivityRatio = *m.ActivityRatio
	}
	if m.Engagement != nil {
		snap.Engagement = *m.Engagement
	}
	return snap.Normalize(), nil
}

// FetchBatch fetches every key concurrently. Failures are logged and left
// out of the result.
func (s *HTTPSource) FetchBatch(ctx context.Context, keys []string) (map[string]Snapshot, error) {
	snaps, errs := FetchEach(ctx, keys, s.concurrency, s.timeout, s.FetchSnapshot)
	for key, err := range errs {
		s.logger.Debug("metrics fetch failed", "key", key, "error", err)
	}
	if err := ctx.Err(); err != nil && len(snaps) == 0 {
		return nil, err
	}
	return snaps, nil
}

func (s *HTTPSource) doRequest(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			Body:       body,
		}
	}
	return body, nil
}

// doWithRetry performs a GET with exponential backoff and jitter.
func (s *HTTPSource) doWithRetry(ctx context.Context, path string) ([]byte, error) {
	var lastErr error
	backoff := s.retryBackoff

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 && backoff > 0 {
			// backoff * (0.5 to 1.5)
			jitter := backoff/2 + time.Duration(rand.Int64N(int64(backoff)))
			s.logger.Debug("retrying metrics request", "attempt", attempt, "backoff", jitter, "path", path)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(jitter):
			}
			backoff *= 2
		}

		body, err := s.doRequest(ctx, path)
		if err == nil {
			return body, nil
		}
		lastErr = err

		var apiErr *APIError
		if !errors.As(err, &apiErr) || !apiErr.IsRetryable() {
			return nil, err
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}
