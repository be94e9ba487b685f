package export

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/petgazer/internal/clock"
	"github.com/langchou/petgazer/internal/models"
)

// chunk 单次历史查询的区间，与接口允许的最大回溯一致
const chunk = 30 * 24 * time.Hour

// Source 导出数据来源
type Source interface {
	HistoryPoints(ctx context.Context, from, to time.Time) ([]models.GPSFix, error)
	PetData(ctx context.Context) (models.PetData, error)
}

// Listener 数据源可选实现，导出写盘后收到通知
type Listener interface {
	DataExported(filename string, records, added int)
}

// Result 导出结果
type Result struct {
	Path     string `json:"path"`
	Records  int    `json:"records"`
	Added    int    `json:"added"`
	FromTime int64  `json:"from_time"`
}

// Exporter 增量导出：从文件最后一行（或宠物建档时间）开始拉取
type Exporter struct {
	source Source
	clock  clock.Clock
	logger *zap.Logger
}

func NewExporter(source Source, clk clock.Clock, logger *zap.Logger) *Exporter {
	return &Exporter{source: source, clock: clk, logger: logger}
}

// Points 读取已有文件并合并新数据，不写文件
func (e *Exporter) Points(ctx context.Context, store *CSVStore) ([]models.GPSFix, int64, int, error) {
	existing, skipped, err := store.Load()
	if err != nil {
		return nil, 0, 0, fmt.Errorf("read %s: %w", store.Path(), err)
	}
	if skipped > 0 {
		e.logger.Warn("Skipped malformed rows in existing export",
			zap.String("path", store.Path()),
			zap.Int("count", skipped))
	}

	now := e.clock.Now()
	start := e.startTime(ctx, existing, now)

	var fresh []models.GPSFix
	for from := start; from.Before(now); from = from.Add(chunk) {
		to := from.Add(chunk)
		if to.After(now) {
			to = now
		}
		points, err := e.source.HistoryPoints(ctx, from, to)
		if err != nil {
			return nil, 0, 0, fmt.Errorf("fetch positions %s - %s: %w", from.Format(time.DateOnly), to.Format(time.DateOnly), err)
		}
		fresh = append(fresh, points...)
	}

	merged := Merge(existing, fresh)
	return merged, start.Unix(), len(merged) - len(existing), nil
}

// Run 导出到 store
func (e *Exporter) Run(ctx context.Context, store *CSVStore, withDatetime bool) (Result, error) {
	merged, from, added, err := e.Points(ctx, store)
	if err != nil {
		return Result{}, err
	}
	if err := store.Save(Annotate(merged), withDatetime); err != nil {
		return Result{}, fmt.Errorf("write %s: %w", store.Path(), err)
	}

	e.logger.Info("GPS data exported",
		zap.String("path", store.Path()),
		zap.Int("records", len(merged)),
		zap.Int("added", added))
	if l, ok := e.source.(Listener); ok {
		l.DataExported(store.Path(), len(merged), added)
	}
	return Result{Path: store.Path(), Records: len(merged), Added: added, FromTime: from}, nil
}

func (e *Exporter) startTime(ctx context.Context, existing []models.GPSFix, now time.Time) time.Time {
	if last, ok := LastTimestamp(existing); ok {
		return time.Unix(last, 0)
	}
	pet, err := e.source.PetData(ctx)
	if err == nil && !pet.CreatedAt.IsZero() {
		return pet.CreatedAt
	}
	if err != nil {
		e.logger.Debug("Pet creation date unavailable", zap.Error(err))
	}
	return now.AddDate(-1, 0, 0)
}
