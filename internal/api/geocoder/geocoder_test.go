package geocoder

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/langchou/petgazer/internal/clock"
)

func TestReverseGeocode(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/reverse" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("User-Agent") == "" {
			t.Error("missing User-Agent")
		}
		if r.URL.Query().Get("lat") != "47.376900" || r.URL.Query().Get("accept-language") != "de" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"display_name":"Bahnhofstrasse 1, Zürich","address":{"road":"Bahnhofstrasse","house_number":"1","town":"Zürich","country":"Schweiz"}}`))
	}))
	defer srv.Close()

	clk := clock.NewFake(time.Unix(0, 0))
	c := NewClient(srv.URL, "de", clk, zaptest.NewLogger(t))

	addr, err := c.ReverseGeocode(context.Background(), 47.3769, 8.5417)
	if err != nil {
		t.Fatalf("ReverseGeocode: %v", err)
	}
	if addr.City != "Zürich" || addr.Short() != "Bahnhofstrasse 1, Zürich" {
		t.Errorf("address = %+v", addr)
	}

	// 四位小数内相同坐标命中缓存
	if _, err := c.ReverseGeocode(context.Background(), 47.37691, 8.54171); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 1 || c.CacheSize() != 1 {
		t.Errorf("calls = %d cache = %d", calls.Load(), c.CacheSize())
	}
	if len(clk.Sleeps()) != 0 {
		t.Errorf("cache hit should not throttle")
	}
}

func TestReverseGeocodeThrottles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"display_name":"somewhere","address":{}}`))
	}))
	defer srv.Close()

	clk := clock.NewFake(time.Unix(0, 0))
	c := NewClient(srv.URL, "", clk, zaptest.NewLogger(t))

	for _, lat := range []float64{1, 2, 3} {
		if _, err := c.ReverseGeocode(context.Background(), lat, 0); err != nil {
			t.Fatal(err)
		}
	}
	sleeps := clk.Sleeps()
	if len(sleeps) != 2 || sleeps[0] != time.Second || sleeps[1] != time.Second {
		t.Errorf("sleeps = %v, want [1s 1s]", sleeps)
	}
}

func TestReverseGeocodeErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "http error", status: http.StatusTooManyRequests, body: "slow down"},
		{name: "api error", status: http.StatusOK, body: `{"error":"Unable to geocode"}`},
		{name: "bad json", status: http.StatusOK, body: `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewClient(srv.URL, "", clock.NewFake(time.Unix(0, 0)), zaptest.NewLogger(t))
			if _, err := c.ReverseGeocode(context.Background(), 0, 0); err == nil {
				t.Fatal("expected error")
			}
			if c.CacheSize() != 0 {
				t.Error("failed lookup was cached")
			}
		})
	}
}
