package tractive

import (
	"context"
	"sync"
	"time"

	"github.com/langchou/petgazer/internal/clock"
)

// RateWindow 限流滑动窗口长度
const RateWindow = 60 * time.Second

// RateLimiter 每 60 秒最多 N 次调用的滑动窗口限流
type RateLimiter struct {
	mu    sync.Mutex
	limit int
	clock clock.Clock
	calls []time.Time
}

// NewRateLimiter 创建限流器
func NewRateLimiter(limit int, clk clock.Clock) *RateLimiter {
	if limit <= 0 {
		limit = 1
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &RateLimiter{limit: limit, clock: clk}
}

// Wait 阻塞直到再发一次请求不会超过窗口上限，然后记录本次调用
// 等待期间不持锁，排队中的调用方可以各自响应 ctx 取消
func (r *RateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	for {
		now := r.clock.Now()
		r.evict(now)
		if len(r.calls) < r.limit {
			r.calls = append(r.calls, now)
			r.mu.Unlock()
			return nil
		}
		wait := RateWindow - now.Sub(r.calls[0])
		r.mu.Unlock()

		if err := r.clock.Sleep(ctx, wait); err != nil {
			return err
		}
		r.mu.Lock()
	}
}

// InWindow 当前窗口内的调用数
func (r *RateLimiter) InWindow() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evict(r.clock.Now())
	return len(r.calls)
}

func (r *RateLimiter) evict(now time.Time) {
	i := 0
	for i < len(r.calls) && now.Sub(r.calls[i]) >= RateWindow {
		i++
	}
	r.calls = r.calls[i:]
}
