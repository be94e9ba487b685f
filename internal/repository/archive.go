package repository

import (
	"context"
	"time"

	"github.com/langchou/petgazer/internal/models"
)

// Archive 监控循环的归档出口
type Archive struct {
	Positions *PositionRepository
	Status    *StatusRepository
}

// NewArchive 创建归档
func NewArchive(db *DB) *Archive {
	return &Archive{
		Positions: NewPositionRepository(db),
		Status:    NewStatusRepository(db),
	}
}

// SavePositions 批量写入位置，返回新增条数
func (a *Archive) SavePositions(ctx context.Context, trackerID string, fixes []models.GPSFix) (int64, error) {
	return a.Positions.SaveBatch(ctx, trackerID, fixes)
}

func (a *Archive) SaveStatus(ctx context.Context, trackerID string, status models.DeviceStatus) error {
	return a.Status.Create(ctx, trackerID, status)
}

// SaveAddress 为已归档的位置补充地址
func (a *Archive) SaveAddress(ctx context.Context, trackerID string, recordedAt time.Time, addr *models.Address) error {
	return a.Positions.SetAddress(ctx, trackerID, recordedAt, addr)
}

// ListPositions 区间内的归档位置
func (a *Archive) ListPositions(ctx context.Context, trackerID string, from, to time.Time) ([]models.GPSFix, error) {
	return a.Positions.ListRange(ctx, trackerID, from, to)
}

// LatestPosition 最近一次归档的位置
func (a *Archive) LatestPosition(ctx context.Context, trackerID string) (models.GPSFix, error) {
	return a.Positions.Latest(ctx, trackerID)
}

// BatteryHistory 电量曲线
func (a *Archive) BatteryHistory(ctx context.Context, trackerID string, since time.Time) ([]BatteryPoint, error) {
	return a.Status.BatteryHistory(ctx, trackerID, since)
}
