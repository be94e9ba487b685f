package tractive

import (
	"errors"
	"fmt"
	"time"
)

// 错误定义
var (
	ErrAuthentication = errors.New("authentication failed")
	ErrInvalidJSON    = errors.New("invalid json response")
)

// RateLimitError HTTP 429，携带服务端建议的重试间隔
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// APIError 其它非 2xx 响应或重试耗尽的网络错误
type APIError struct {
	StatusCode int
	Message    string
	Details    string
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		if e.Err != nil {
			return fmt.Sprintf("api error: %s: %v", e.Message, e.Err)
		}
		return "api error: " + e.Message
	}
	return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// IsAuthError 是否需要重新认证
func IsAuthError(err error) bool {
	return errors.Is(err, ErrAuthentication)
}
