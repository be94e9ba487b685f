//go:build integration

package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/langchou/petgazer/internal/models"
)

// 需要 TEST_DATABASE_URL 指向一个可写的 Postgres
func openTestDB(t *testing.T) *DB {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	db, err := New(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(db.Close)

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestArchivePositions(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	trackerID := "TEST" + time.Now().Format("150405.000000")
	t.Cleanup(func() {
		db.Pool.Exec(context.Background(), `DELETE FROM positions WHERE tracker_id = $1`, trackerID)
		db.Pool.Exec(context.Background(), `DELETE FROM device_status WHERE tracker_id = $1`, trackerID)
	})

	archive := NewArchive(db)
	var fixes []models.GPSFix
	for i, ts := range []int64{1_700_000_000, 1_700_000_060, 1_700_000_120} {
		f, err := models.NewGPSFix(47+float64(i)*0.001, 8, ts, 5, 400, 2, 90)
		if err != nil {
			t.Fatal(err)
		}
		fixes = append(fixes, f)
	}

	n, err := archive.SavePositions(ctx, trackerID, fixes)
	if err != nil || n != 3 {
		t.Fatalf("SavePositions = %d, %v", n, err)
	}
	// 重复写入被忽略
	n, err = archive.SavePositions(ctx, trackerID, fixes[1:])
	if err != nil || n != 0 {
		t.Fatalf("duplicate SavePositions = %d, %v", n, err)
	}

	got, err := archive.Positions.ListRange(ctx, trackerID, time.Unix(1_700_000_000, 0), time.Unix(1_700_000_060, 0))
	if err != nil || len(got) != 2 {
		t.Fatalf("ListRange = %v, %v", got, err)
	}
	latest, err := archive.Positions.Latest(ctx, trackerID)
	if err != nil || latest.Timestamp() != 1_700_000_120 {
		t.Fatalf("Latest = %+v, %v", latest, err)
	}
	if err := archive.Positions.SetAddress(ctx, trackerID, latest.Time(), &models.Address{City: "Zürich"}); err != nil {
		t.Fatalf("SetAddress: %v", err)
	}

	if _, err := archive.Positions.Latest(ctx, "missing"+trackerID); err != ErrNotFound {
		t.Errorf("Latest missing = %v, want ErrNotFound", err)
	}

	status := models.DeviceStatus{BatteryLevel: 55, HardwareStatus: "OK", Timestamp: 1_700_000_000, State: models.DeviceOperational}
	if err := archive.SaveStatus(ctx, trackerID, status); err != nil {
		t.Fatalf("SaveStatus: %v", err)
	}
	points, err := archive.Status.BatteryHistory(ctx, trackerID, time.Now().Add(-time.Hour))
	if err != nil || len(points) != 1 || points[0].Level != 55 {
		t.Fatalf("BatteryHistory = %v, %v", points, err)
	}
}
