package service

import (
	"context"
	"sync"
	"time"

	"github.com/langchou/petgazer/internal/api/tractive"
)

// fakeAPI 实现 LocationAPI / StatusAPI
type fakeAPI struct {
	mu sync.Mutex

	posReport    map[string]any
	posReportErr error

	// positions 按回溯小时数返回
	positions     map[int]tractive.PositionSegments
	positionsErr  map[int]error
	positionCalls []int

	hw         *tractive.HardwareReport
	hwErr      error
	tracker    *tractive.Tracker
	hwCalls    int
	trackCalls int
	cacheHits  int
}

func (f *fakeAPI) GetPositionReport(ctx context.Context, trackerID string) (map[string]any, error) {
	return f.posReport, f.posReportErr
}

func (f *fakeAPI) GetPositions(ctx context.Context, trackerID string, from, to time.Time) (tractive.PositionSegments, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	hours := int(to.Sub(from) / time.Hour)
	f.positionCalls = append(f.positionCalls, hours)
	if err := f.positionsErr[hours]; err != nil {
		return nil, err
	}
	return f.positions[hours], nil
}

func (f *fakeAPI) GetHardwareReport(ctx context.Context, trackerID string) (*tractive.HardwareReport, error) {
	f.hwCalls++
	return f.hw, f.hwErr
}

func (f *fakeAPI) GetTracker(ctx context.Context, trackerID string) (*tractive.Tracker, error) {
	f.trackCalls++
	return f.tracker, nil
}

func (f *fakeAPI) RecordCacheHit() {
	f.cacheHits++
}

func record(ts float64, lat, lon, uncertainty float64) map[string]any {
	return map[string]any{
		"time":            ts,
		"latlong":         []any{lat, lon},
		"pos_uncertainty": uncertainty,
		"speed":           3.0,
	}
}

func floatPtr(f float64) *float64 { return &f }
func strPtr(s string) *string     { return &s }
func boolPtr(b bool) *bool        { return &b }
