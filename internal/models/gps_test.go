package models

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
)

func TestNewGPSFixValidation(t *testing.T) {
	tests := []struct {
		name        string
		lat, lon    float64
		uncertainty float64
		wantErr     bool
	}{
		{name: "valid", lat: 47.37, lon: 8.54, uncertainty: 10},
		{name: "poles and antimeridian", lat: -90, lon: 180},
		{name: "latitude too high", lat: 90.1, lon: 0, wantErr: true},
		{name: "longitude too low", lat: 0, lon: -180.5, wantErr: true},
		{name: "negative uncertainty", lat: 0, lon: 0, uncertainty: -1, wantErr: true},
		{name: "nan latitude", lat: math.NaN(), lon: 0, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGPSFix(tt.lat, tt.lon, 1, tt.uncertainty, 0, 0, 0)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidFix) {
					t.Errorf("err = %v, want ErrInvalidFix", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestParseGPSFix(t *testing.T) {
	fix, err := ParseGPSFix(map[string]any{
		"latlong":         []any{"47.5", json.Number("8.25")},
		"time":            1_697_408_000.0,
		"pos_uncertainty": 12,
		"alt":             410.0,
		"speed":           nil,
	})
	if err != nil {
		t.Fatalf("ParseGPSFix: %v", err)
	}
	if fix.Latitude() != 47.5 || fix.Longitude() != 8.25 {
		t.Errorf("coordinates = %v,%v", fix.Latitude(), fix.Longitude())
	}
	if fix.Timestamp() != 1_697_408_000 || fix.Altitude() != 410 || fix.Speed() != 0 {
		t.Errorf("fix = %+v", fix)
	}
	if fix.AccuracyLevel() != AccuracyGood {
		t.Errorf("accuracy = %s", fix.AccuracyLevel())
	}

	for _, raw := range []map[string]any{
		nil,
		{"latlong": []any{1.0}},
		{"latlong": "47,8"},
		{"latlong": []any{95.0, 0.0}},
		{"latlong": []any{1.0, 1.0}, "time": "yesterday"},
	} {
		if _, err := ParseGPSFix(raw); !errors.Is(err, ErrInvalidFix) {
			t.Errorf("ParseGPSFix(%v) err = %v, want ErrInvalidFix", raw, err)
		}
	}
}

func TestAccuracyLevelBoundaries(t *testing.T) {
	tests := []struct {
		uncertainty float64
		want        AccuracyLevel
	}{
		{0, AccuracyExcellent},
		{5, AccuracyExcellent},
		{5.1, AccuracyGood},
		{15, AccuracyGood},
		{50, AccuracyFair},
		{50.5, AccuracyPoor},
	}
	for _, tt := range tests {
		fix, err := NewGPSFix(0, 0, 0, tt.uncertainty, 0, 0, 0)
		if err != nil {
			t.Fatal(err)
		}
		if got := fix.AccuracyLevel(); got != tt.want {
			t.Errorf("uncertainty %v: got %s, want %s", tt.uncertainty, got, tt.want)
		}
	}
}

func TestHaversine(t *testing.T) {
	if d := Haversine(47.37, 8.54, 47.37, 8.54); d != 0 {
		t.Errorf("self distance = %v", d)
	}

	ab := Haversine(47.3769, 8.5417, 46.9480, 7.4474)
	ba := Haversine(46.9480, 7.4474, 47.3769, 8.5417)
	if math.Abs(ab-ba) > 1e-6 {
		t.Errorf("not symmetric: %v vs %v", ab, ba)
	}
	// 苏黎世到伯尔尼约 95 km
	if ab < 94_000 || ab > 96_500 {
		t.Errorf("Zurich-Bern = %v m", ab)
	}

	// 赤道上 1 度经度
	want := EarthRadiusMeters * math.Pi / 180
	if d := Haversine(0, 0, 0, 1); math.Abs(d-want) > 1e-6 {
		t.Errorf("one degree = %v, want %v", d, want)
	}
}

func TestGPSFixMarshalJSON(t *testing.T) {
	fix, err := NewGPSFix(1, 2, 3, 60, 0, 4, 90)
	if err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(fix)
	if err != nil {
		t.Fatal(err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if out["accuracy_level"] != "Poor" || out["is_moving"] != true || out["latitude"] != 1.0 {
		t.Errorf("json = %s", data)
	}
}
