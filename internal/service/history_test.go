package service

import (
	"context"
	"math"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/langchou/petgazer/internal/api/tractive"
	"github.com/langchou/petgazer/internal/clock"
	"github.com/langchou/petgazer/internal/models"
)

func mustFix(t *testing.T, lat, lon float64, ts int64, speed float64) models.GPSFix {
	t.Helper()
	fix, err := models.NewGPSFix(lat, lon, ts, 5, 0, speed, 0)
	if err != nil {
		t.Fatalf("NewGPSFix: %v", err)
	}
	return fix
}

func TestHistoryOrdersOutOfOrderPoints(t *testing.T) {
	api := &fakeAPI{positions: map[int]tractive.PositionSegments{
		24: {{
			record(100, 0, 0, 5),
			record(50, 0, 0.001, 5),
			record(150, 0, 0.002, 5),
			{"time": 120.0}, // 缺少坐标，丢弃
		}},
	}}
	engine := NewHistoryEngine(api, "T1", clock.NewFake(time.Unix(1_000_000, 0)), zaptest.NewLogger(t))

	result, err := engine.History(context.Background(), 24, true)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	h, ok := result.(models.PopulatedHistory)
	if !ok {
		t.Fatalf("result = %T, want PopulatedHistory", result)
	}
	if h.LocationCount() != 3 {
		t.Fatalf("locations = %d, want 3", h.LocationCount())
	}
	if h.StartTime.Unix() != 50 || h.EndTime.Unix() != 150 {
		t.Errorf("start/end = %d/%d, want 50/150", h.StartTime.Unix(), h.EndTime.Unix())
	}

	want := 0.0
	for _, m := range models.PairwiseMetrics(h.Locations) {
		want += m.Distance
	}
	if math.Abs(h.TotalDistance-want) > 1e-9 || want == 0 {
		t.Errorf("total distance = %v, want %v", h.TotalDistance, want)
	}
	if math.Abs(h.TimeSpanHours-100.0/3600) > 1e-9 {
		t.Errorf("time span = %v", h.TimeSpanHours)
	}
}

func TestHistoryEmpty(t *testing.T) {
	api := &fakeAPI{}
	engine := NewHistoryEngine(api, "T1", clock.NewFake(time.Unix(1_000_000, 0)), zaptest.NewLogger(t))

	result, err := engine.History(context.Background(), 6, true)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	empty, ok := result.(models.EmptyHistory)
	if !ok {
		t.Fatalf("result = %T, want EmptyHistory", result)
	}
	if empty.RequestedHours != 6 {
		t.Errorf("requested hours = %d", empty.RequestedHours)
	}
}

func TestBuildHistoryAnalytics(t *testing.T) {
	tests := []struct {
		name      string
		points    []models.GPSFix
		analytics bool
		wantMax   float64
		wantAvg   float64
	}{
		{
			name: "analytics disabled",
			points: []models.GPSFix{
				mustFix(t, 0, 0, 0, 0),
				mustFix(t, 0, 0.01, 60, 0),
			},
		},
		{
			name: "zero elapsed pair counts in mean",
			points: []models.GPSFix{
				mustFix(t, 0, 0, 0, 0),
				mustFix(t, 0, 0, 0, 0),
				mustFix(t, 0, 0, 10, 0),
			},
			analytics: true,
		},
		{
			name: "single point",
			points: []models.GPSFix{
				mustFix(t, 1, 1, 10, 0),
			},
			analytics: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, ok := BuildHistory(tt.points, 1, tt.analytics).(models.PopulatedHistory)
			if !ok {
				t.Fatal("expected PopulatedHistory")
			}
			if h.AnalyticsIncluded != tt.analytics {
				t.Errorf("analytics included = %v", h.AnalyticsIncluded)
			}
			if h.TotalDistance != 0 && !tt.analytics {
				t.Errorf("distance computed without analytics")
			}
			if h.MaxSpeed != tt.wantMax || h.AverageSpeed != tt.wantAvg {
				t.Errorf("max/avg = %v/%v, want %v/%v", h.MaxSpeed, h.AverageSpeed, tt.wantMax, tt.wantAvg)
			}
		})
	}
}

func TestSortFixesKeepsIdenticalPoints(t *testing.T) {
	points := []models.GPSFix{
		mustFix(t, 1, 1, 20, 0),
		mustFix(t, 1, 1, 10, 0),
		mustFix(t, 1, 1, 20, 0),
		mustFix(t, 2, 2, 20, 0),
	}
	got := SortFixes(points)
	if len(got) != 4 {
		t.Fatalf("len = %d, want 4", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Timestamp() < got[i-1].Timestamp() {
			t.Errorf("not sorted at %d", i)
		}
	}
}

func TestBuildHistoryCountsZeroElapsedPairs(t *testing.T) {
	points := SortFixes([]models.GPSFix{
		mustFix(t, 0, 0, 0, 0),
		mustFix(t, 0, 0.01, 100, 0),
		mustFix(t, 0, 0.01, 100, 0),
	})
	h, ok := BuildHistory(points, 1, true).(models.PopulatedHistory)
	if !ok {
		t.Fatal("expected populated history")
	}
	if len(h.Locations) != 3 {
		t.Fatalf("locations = %d, want 3", len(h.Locations))
	}
	// 第二对耗时为 0，速度记 0，计入平均值
	if h.MaxSpeed <= 0 {
		t.Fatalf("max speed = %v", h.MaxSpeed)
	}
	if diff := h.AverageSpeed - h.MaxSpeed/2; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("average speed = %v, want %v", h.AverageSpeed, h.MaxSpeed/2)
	}
}
