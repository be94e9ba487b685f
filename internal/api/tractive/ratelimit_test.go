package tractive

import (
	"context"
	"testing"
	"time"

	"github.com/langchou/petgazer/internal/clock"
)

func TestRateLimiterBlocksThirdCallInWindow(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	clk := clock.NewFake(start)
	limiter := NewRateLimiter(2, clk)
	ctx := context.Background()

	if err := limiter.Wait(ctx); err != nil {
		t.Fatalf("first call: %v", err)
	}
	clk.Advance(10 * time.Second)
	if err := limiter.Wait(ctx); err != nil {
		t.Fatalf("second call: %v", err)
	}
	if sleeps := clk.Sleeps(); len(sleeps) != 0 {
		t.Fatalf("first two calls should not block, slept %v", sleeps)
	}

	if err := limiter.Wait(ctx); err != nil {
		t.Fatalf("third call: %v", err)
	}
	if elapsed := clk.Now().Sub(start); elapsed < RateWindow {
		t.Errorf("third call released after %s, want >= %s", elapsed, RateWindow)
	}
	if sleeps := clk.Sleeps(); len(sleeps) != 1 || sleeps[0] != 50*time.Second {
		t.Errorf("sleeps = %v, want [50s]", sleeps)
	}
}

func TestRateLimiterEvictsOldCalls(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	limiter := NewRateLimiter(1, clk)
	ctx := context.Background()

	if err := limiter.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	clk.Advance(61 * time.Second)
	if got := limiter.InWindow(); got != 0 {
		t.Fatalf("InWindow() = %d after window elapsed, want 0", got)
	}
	if err := limiter.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	if sleeps := clk.Sleeps(); len(sleeps) != 0 {
		t.Errorf("call after window should not block, slept %v", sleeps)
	}
}

func TestRateLimiterHonoursCancellation(t *testing.T) {
	limiter := NewRateLimiter(1, clock.Real())
	ctx, cancel := context.WithCancel(context.Background())

	if err := limiter.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	cancel()
	if err := limiter.Wait(ctx); err == nil {
		t.Fatal("expected context error while blocked")
	}
}

// parkedClock 的 Sleep 一直阻塞到 ctx 取消
type parkedClock struct {
	now    time.Time
	parked chan struct{}
}

func (c *parkedClock) Now() time.Time { return c.now }

func (c *parkedClock) Sleep(ctx context.Context, d time.Duration) error {
	c.parked <- struct{}{}
	<-ctx.Done()
	return ctx.Err()
}

func TestRateLimiterCancelsQueuedWaiter(t *testing.T) {
	clk := &parkedClock{now: time.Unix(1_700_000_000, 0), parked: make(chan struct{}, 2)}
	limiter := NewRateLimiter(1, clk)
	if err := limiter.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	defer cancelFirst()
	secondCtx, cancelSecond := context.WithCancel(context.Background())

	first := make(chan error, 1)
	second := make(chan error, 1)
	go func() { first <- limiter.Wait(firstCtx) }()
	go func() { second <- limiter.Wait(secondCtx) }()

	for i := 0; i < 2; i++ {
		select {
		case <-clk.parked:
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d waiters reached sleep, limiter holds its lock while waiting", i)
		}
	}

	cancelSecond()
	select {
	case err := <-second:
		if err != context.Canceled {
			t.Errorf("second waiter err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled waiter still blocked")
	}

	select {
	case err := <-first:
		t.Fatalf("first waiter returned early: %v", err)
	default:
	}
	cancelFirst()
	if err := <-first; err != context.Canceled {
		t.Errorf("first waiter err = %v", err)
	}
}
