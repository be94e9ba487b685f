package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/langchou/petgazer/internal/api/tractive"
	"github.com/langchou/petgazer/internal/clock"
	"github.com/langchou/petgazer/internal/models"
)

func newResolver(t *testing.T, api *fakeAPI, clk *clock.Fake, events *EventBus) *LocationResolver {
	t.Helper()
	if events == nil {
		events = NewEventBus(clk, zaptest.NewLogger(t))
	}
	return NewLocationResolver(api, "T1", clk, events, zaptest.NewLogger(t), 24, 100)
}

func TestCurrentLocationPrimary(t *testing.T) {
	clk := clock.NewFake(time.Unix(10_000, 0))
	api := &fakeAPI{posReport: record(9_990, 47.1, 8.2, 10)}
	r := newResolver(t, api, clk, nil)

	fix, err := r.CurrentLocation(context.Background(), 0)
	if err != nil {
		t.Fatalf("CurrentLocation: %v", err)
	}
	if fix.Latitude() != 47.1 || fix.Longitude() != 8.2 || fix.Timestamp() != 9_990 {
		t.Errorf("fix = %+v", fix)
	}
	if len(api.positionCalls) != 0 {
		t.Errorf("fallback called %v", api.positionCalls)
	}
}

func TestCurrentLocationFallsBackOnMalformedPrimary(t *testing.T) {
	clk := clock.NewFake(time.Unix(100_000, 0))
	api := &fakeAPI{
		posReport: map[string]any{"time": 1.0, "latlong": []any{47.0}},
		positions: map[int]tractive.PositionSegments{
			3: {
				{record(90_000, 1, 1, 5), record(95_000, 2, 2, 5), record(91_000, 3, 3, 5)},
				{record(99_000, 9, 9, 5)},
			},
		},
		positionsErr: map[int]error{2: errors.New("temporary")},
	}
	events := NewEventBus(clk, zaptest.NewLogger(t))
	var fallbackHours any
	events.On(EventGPSFallbackUsed, func(e Event) { fallbackHours = e.Data["hours_back"] })
	r := newResolver(t, api, clk, events)

	fix, err := r.CurrentLocation(context.Background(), 0)
	if err != nil {
		t.Fatalf("CurrentLocation: %v", err)
	}
	if fix.Timestamp() != 95_000 || fix.Latitude() != 2 {
		t.Errorf("fix = ts %d lat %v, want latest entry of first segment", fix.Timestamp(), fix.Latitude())
	}
	if got := api.positionCalls; len(got) != 3 || got[0] != 1 || got[2] != 3 {
		t.Errorf("position windows = %v, want [1 2 3]", got)
	}
	if fallbackHours != 3 {
		t.Errorf("fallback event hours = %v", fallbackHours)
	}
}

func TestCurrentLocationExhausted(t *testing.T) {
	clk := clock.NewFake(time.Unix(100_000, 0))
	api := &fakeAPI{posReport: map[string]any{}}
	r := newResolver(t, api, clk, nil)

	_, err := r.CurrentLocation(context.Background(), 0)
	if !errors.Is(err, ErrGPSDataUnavailable) {
		t.Fatalf("err = %v, want ErrGPSDataUnavailable", err)
	}
	if len(api.positionCalls) != 24 {
		t.Errorf("windows tried = %d, want 24", len(api.positionCalls))
	}
}

func TestCurrentLocationAuthErrorPropagates(t *testing.T) {
	tests := []struct {
		name string
		api  *fakeAPI
	}{
		{name: "primary", api: &fakeAPI{posReportErr: tractive.ErrAuthentication}},
		{name: "fallback", api: &fakeAPI{
			posReport:    map[string]any{},
			positionsErr: map[int]error{1: tractive.ErrAuthentication},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newResolver(t, tt.api, clock.NewFake(time.Unix(100_000, 0)), nil)
			_, err := r.CurrentLocation(context.Background(), 0)
			if !tractive.IsAuthError(err) {
				t.Fatalf("err = %v, want auth error", err)
			}
			if len(tt.api.positionCalls) > 1 {
				t.Errorf("kept searching after auth failure: %v", tt.api.positionCalls)
			}
		})
	}
}

func TestCurrentLocationTransportErrorsPropagate(t *testing.T) {
	rateLimited := &tractive.RateLimitError{RetryAfter: 30 * time.Second}
	tests := []struct {
		name string
		api  *fakeAPI
	}{
		{name: "primary rate limited", api: &fakeAPI{posReportErr: rateLimited}},
		{name: "primary api error", api: &fakeAPI{posReportErr: &tractive.APIError{StatusCode: 503, Message: "unavailable"}}},
		{name: "fallback rate limited", api: &fakeAPI{
			posReport:    map[string]any{},
			positionsErr: map[int]error{2: rateLimited},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newResolver(t, tt.api, clock.NewFake(time.Unix(100_000, 0)), nil)
			_, err := r.CurrentLocation(context.Background(), 0)
			if err == nil {
				t.Fatal("expected error")
			}
			if errors.Is(err, ErrGPSDataUnavailable) {
				t.Fatalf("err = %v, transport error was swallowed", err)
			}
			if tt.api.posReportErr != nil {
				if !errors.Is(err, tt.api.posReportErr) {
					t.Errorf("err = %v, want %v", err, tt.api.posReportErr)
				}
				if len(tt.api.positionCalls) != 0 {
					t.Errorf("history searched after transport error: %v", tt.api.positionCalls)
				}
				return
			}
			if _, ok := tractive.IsRateLimited(err); !ok {
				t.Errorf("err = %v, want rate limit error", err)
			}
			if got := tt.api.positionCalls; len(got) != 2 {
				t.Errorf("position windows = %v, want stop at 2", got)
			}
		})
	}
}

func TestCurrentLocationMaxAge(t *testing.T) {
	clk := clock.NewFake(time.Unix(10_000, 0))
	api := &fakeAPI{posReport: record(10_000, 1, 1, 5)}
	r := newResolver(t, api, clk, nil)
	ctx := context.Background()

	if _, err := r.CurrentLocation(ctx, time.Minute); err != nil {
		t.Fatal(err)
	}
	api.posReport = record(10_030, 2, 2, 5)
	clk.Advance(30 * time.Second)

	fix, err := r.CurrentLocation(ctx, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if fix.Latitude() != 1 {
		t.Errorf("expected cached fix within max age, got lat %v", fix.Latitude())
	}

	clk.Advance(2 * time.Minute)
	fix, err = r.CurrentLocation(ctx, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if fix.Latitude() != 2 {
		t.Errorf("expected fresh fix after max age, got lat %v", fix.Latitude())
	}
}

func TestCurrentLocationPoorAccuracyEvent(t *testing.T) {
	events := NewEventBus(nil, zaptest.NewLogger(t))
	fired := 0
	events.On(EventPoorGPSAccuracy, func(e Event) { fired++ })
	events.On(EventPoorGPSAccuracy, func(e Event) { panic("faulty observer") })

	api := &fakeAPI{posReport: record(1, 1, 1, 250)}
	r := newResolver(t, api, clock.NewFake(time.Unix(10, 0)), events)

	fix, err := r.CurrentLocation(context.Background(), 0)
	if err != nil {
		t.Fatalf("CurrentLocation: %v", err)
	}
	if fix.AccuracyLevel() != models.AccuracyPoor {
		t.Errorf("accuracy = %s", fix.AccuracyLevel())
	}
	if fired != 1 {
		t.Errorf("poor accuracy event fired %d times", fired)
	}
}
