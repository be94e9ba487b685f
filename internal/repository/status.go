package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/langchou/petgazer/internal/models"
)

// StatusRepository 设备状态仓库
type StatusRepository struct {
	db *DB
}

// NewStatusRepository 创建设备状态仓库
func NewStatusRepository(db *DB) *StatusRepository {
	return &StatusRepository{db: db}
}

// Create 写入一条状态快照
func (r *StatusRepository) Create(ctx context.Context, trackerID string, s models.DeviceStatus) error {
	query := `
		INSERT INTO device_status (tracker_id, battery_level, hardware_status, temperature_state, state, battery_save_mode, reported_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Pool.Exec(ctx, query,
		trackerID,
		s.BatteryLevel,
		s.HardwareStatus,
		string(s.TemperatureState),
		string(s.State),
		s.BatterySaveMode,
		s.Time().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert device status: %w", err)
	}
	return nil
}

// BatteryPoint 电量曲线上的一个点
type BatteryPoint struct {
	Level      int       `json:"battery_level"`
	RecordedAt time.Time `json:"recorded_at"`
}

// BatteryHistory 最近 since 以来的电量变化
func (r *StatusRepository) BatteryHistory(ctx context.Context, trackerID string, since time.Time) ([]BatteryPoint, error) {
	query := `
		SELECT battery_level, recorded_at FROM device_status
		WHERE tracker_id = $1 AND recorded_at >= $2
		ORDER BY recorded_at
	`
	rows, err := r.db.Pool.Query(ctx, query, trackerID, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("list battery history: %w", err)
	}
	defer rows.Close()

	var points []BatteryPoint
	for rows.Next() {
		var p BatteryPoint
		if err := rows.Scan(&p.Level, &p.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan battery point: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}
