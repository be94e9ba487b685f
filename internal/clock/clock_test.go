package clock

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFakeSleepAdvances(t *testing.T) {
	start := time.Unix(1000, 0)
	f := NewFake(start)

	if err := f.Sleep(context.Background(), 3*time.Second); err != nil {
		t.Fatal(err)
	}
	f.Advance(time.Minute)

	if got := f.Now().Sub(start); got != 63*time.Second {
		t.Errorf("elapsed = %v, want 63s", got)
	}
	if s := f.Sleeps(); len(s) != 1 || s[0] != 3*time.Second {
		t.Errorf("sleeps = %v", s)
	}
}

func TestSleepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := NewFake(time.Now()).Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("fake sleep err = %v", err)
	}
	if err := Real().Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("real sleep err = %v", err)
	}
}
