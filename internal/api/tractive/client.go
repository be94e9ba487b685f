package tractive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/petgazer/internal/clock"
)

const (
	DefaultBaseURL   = "https://graph.tractive.com/3"
	DefaultClientID  = "5728aa1fc9077f7c32000186"
	DefaultUserAgent = "Mozilla/5.0 (compatible; petgazer/1.0)"
	apiVersion       = "2.0.0"

	defaultRetryAfter = 60 * time.Second
	maxDetailsBytes   = 500
)

// Options 客户端配置
type Options struct {
	BaseURL       string
	ClientID      string
	UserAgent     string
	Timeout       time.Duration
	RetryAttempts int
	BackoffFactor float64
	RateLimit     int
	Clock         clock.Clock
	HTTPClient    *http.Client
}

// Client Tractive API 客户端
type Client struct {
	httpClient    *http.Client
	baseURL       string
	clientID      string
	userAgent     string
	retryAttempts int
	backoffFactor float64
	limiter       *RateLimiter
	clock         clock.Clock
	logger        *zap.Logger

	mu    sync.RWMutex
	token string

	requests  atomic.Int64
	errors    atomic.Int64
	cacheHits atomic.Int64
	started   time.Time
}

// Request 一次 API 调用
type Request struct {
	Method  string
	Path    string
	Body    any
	Params  url.Values
	Headers map[string]string
}

// NewClient 创建新的 Tractive API 客户端
func NewClient(opts Options, logger *zap.Logger) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.ClientID == "" {
		opts.ClientID = DefaultClientID
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RetryAttempts < 0 {
		opts.RetryAttempts = 0
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 60
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		httpClient:    httpClient,
		baseURL:       strings.TrimRight(opts.BaseURL, "/"),
		clientID:      opts.ClientID,
		userAgent:     opts.UserAgent,
		retryAttempts: opts.RetryAttempts,
		backoffFactor: opts.BackoffFactor,
		limiter:       NewRateLimiter(opts.RateLimit, opts.Clock),
		clock:         opts.Clock,
		logger:        logger,
		started:       opts.Clock.Now(),
	}
}

// BaseURL API 根地址
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SetToken 设置访问令牌
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Token 当前令牌
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Request 执行请求并返回原始 JSON
// 空响应体返回 {}，非 JSON 的 2xx 响应返回 ErrInvalidJSON
func (c *Client) Request(ctx context.Context, req Request) (json.RawMessage, error) {
	var body []byte
	if req.Body != nil {
		var err error
		body, err = json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
	}

	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		start := c.clock.Now()
		c.requests.Add(1)
		status, header, data, err := c.send(ctx, req, body)
		c.logger.Debug("Tractive API call",
			zap.String("method", req.Method),
			zap.String("path", req.Path),
			zap.Int("status", status),
			zap.Int("attempt", attempt+1),
			zap.Duration("duration", c.clock.Now().Sub(start)))

		if err != nil {
			if ctx.Err() != nil {
				c.errors.Add(1)
				return nil, ctx.Err()
			}
			if attempt < c.retryAttempts {
				if err := c.backoff(ctx, attempt, nil); err != nil {
					return nil, err
				}
				continue
			}
			c.errors.Add(1)
			return nil, &APIError{Message: "request failed", Err: err}
		}

		if isRetryableStatus(status) && attempt < c.retryAttempts {
			c.logger.Warn("Retrying Tractive API call",
				zap.String("path", req.Path),
				zap.Int("status", status),
				zap.Int("attempt", attempt+1))
			if err := c.backoff(ctx, attempt, header); err != nil {
				return nil, err
			}
			continue
		}

		result, err := classify(status, header, data)
		if err != nil {
			c.errors.Add(1)
			return nil, err
		}
		return result, nil
	}
}

// Do 执行请求并解码到 out
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	raw, err := c.Request(ctx, req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		c.errors.Add(1)
		return &APIError{StatusCode: http.StatusOK, Message: "unexpected response shape", Err: fmt.Errorf("%w: %v", ErrInvalidJSON, err)}
	}
	return nil
}

// GetJSON GET 并解码
func (c *Client) GetJSON(ctx context.Context, path string, params url.Values, out any) error {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path, Params: params}, out)
}

// PostJSON POST JSON 请求体并解码
func (c *Client) PostJSON(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: path, Body: body}, out)
}

// PutJSON PUT JSON 请求体并解码
func (c *Client) PutJSON(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, Request{Method: http.MethodPut, Path: path, Body: body}, out)
}

func (c *Client) send(ctx context.Context, r Request, body []byte) (int, http.Header, []byte, error) {
	u := c.baseURL + r.Path
	if len(r.Params) > 0 {
		u += "?" + r.Params.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, u, reader)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Tractive-Client", c.clientID)
	req.Header.Set("X-Tractive-Version", apiVersion)
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, resp.Header, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, resp.Header, data, nil
}

// backoff 指数退避；429 时优先使用 Retry-After
func (c *Client) backoff(ctx context.Context, attempt int, header http.Header) error {
	delay := time.Duration(c.backoffFactor * math.Pow(2, float64(attempt)) * float64(time.Second))
	if header != nil {
		if d, ok := parseRetryAfter(header); ok {
			delay = d
		}
	}
	return c.clock.Sleep(ctx, delay)
}

func isRetryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func classify(status int, header http.Header, data []byte) (json.RawMessage, error) {
	switch {
	case status == http.StatusUnauthorized:
		return nil, fmt.Errorf("%w: invalid or expired token", ErrAuthentication)
	case status == http.StatusTooManyRequests:
		retryAfter, ok := parseRetryAfter(header)
		if !ok {
			retryAfter = defaultRetryAfter
		}
		return nil, &RateLimitError{RetryAfter: retryAfter}
	case status < 200 || status >= 300:
		return nil, newAPIError(status, data)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return json.RawMessage("{}"), nil
	}
	if !json.Valid(data) {
		return nil, &APIError{StatusCode: status, Message: "invalid json response", Details: truncate(data), Err: ErrInvalidJSON}
	}
	return json.RawMessage(data), nil
}

func newAPIError(status int, data []byte) *APIError {
	apiErr := &APIError{
		StatusCode: status,
		Message:    fmt.Sprintf("HTTP %d: %s", status, http.StatusText(status)),
		Details:    truncate(data),
	}

	var body struct {
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		if body.Message != "" {
			apiErr.Message = body.Message
		}
		if len(body.Details) > 0 && string(body.Details) != "null" {
			var s string
			if json.Unmarshal(body.Details, &s) == nil {
				apiErr.Details = s
			} else {
				apiErr.Details = string(body.Details)
			}
		}
	}
	return apiErr
}

func parseRetryAfter(header http.Header) (time.Duration, bool) {
	v := header.Get("Retry-After")
	if v == "" {
		return 0, false
	}
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs < 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

func truncate(data []byte) string {
	if len(data) > maxDetailsBytes {
		data = data[:maxDetailsBytes]
	}
	return string(data)
}

// Stats 会话统计
type Stats struct {
	TotalRequests     int64     `json:"total_requests"`
	Errors            int64     `json:"errors_encountered"`
	CacheHits         int64     `json:"cache_hits"`
	CacheHitRate      float64   `json:"cache_hit_rate"`
	RuntimeSeconds    float64   `json:"runtime_seconds"`
	RequestsPerMinute float64   `json:"requests_per_minute"`
	SessionStart      time.Time `json:"session_start"`
}

// RecordCacheHit 记录一次缓存命中
func (c *Client) RecordCacheHit() {
	c.cacheHits.Add(1)
}

// Stats 返回请求统计
func (c *Client) Stats() Stats {
	requests := c.requests.Load()
	hits := c.cacheHits.Load()
	runtime := c.clock.Now().Sub(c.started).Seconds()

	s := Stats{
		TotalRequests:  requests,
		Errors:         c.errors.Load(),
		CacheHits:      hits,
		CacheHitRate:   float64(hits) / float64(max(requests, 1)),
		RuntimeSeconds: runtime,
		SessionStart:   c.started,
	}
	if runtime > 0 {
		s.RequestsPerMinute = float64(requests) / (runtime / 60)
	}
	return s
}

// IsRateLimited 判断是否为限流错误
func IsRateLimited(err error) (*RateLimitError, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}
