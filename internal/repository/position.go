package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/langchou/petgazer/internal/models"
)

// ErrNotFound 没有记录
var ErrNotFound = errors.New("record not found")

// PositionRepository 位置数据仓库
type PositionRepository struct {
	db *DB
}

// NewPositionRepository 创建位置仓库
func NewPositionRepository(db *DB) *PositionRepository {
	return &PositionRepository{db: db}
}

const insertPosition = `
	INSERT INTO positions (tracker_id, latitude, longitude, altitude, speed, course, uncertainty, recorded_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (tracker_id, recorded_at) DO NOTHING
`

// SaveBatch 批量写入，同一时间戳已存在的跳过，返回实际写入条数
func (r *PositionRepository) SaveBatch(ctx context.Context, trackerID string, fixes []models.GPSFix) (int64, error) {
	if len(fixes) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, f := range fixes {
		batch.Queue(insertPosition,
			trackerID,
			f.Latitude(),
			f.Longitude(),
			f.Altitude(),
			f.Speed(),
			f.Course(),
			f.Uncertainty(),
			f.Time().UTC(),
		)
	}

	br := r.db.Pool.SendBatch(ctx, batch)
	defer br.Close()

	var inserted int64
	for range fixes {
		tag, err := br.Exec()
		if err != nil {
			return inserted, fmt.Errorf("insert position: %w", err)
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

// SetAddress 写入逆地理编码结果
func (r *PositionRepository) SetAddress(ctx context.Context, trackerID string, recordedAt time.Time, addr *models.Address) error {
	query := `UPDATE positions SET address = $1 WHERE tracker_id = $2 AND recorded_at = $3`
	_, err := r.db.Pool.Exec(ctx, query, addr, trackerID, recordedAt.UTC())
	if err != nil {
		return fmt.Errorf("update position address: %w", err)
	}
	return nil
}

// ListRange 获取区间内的位置，按时间升序
func (r *PositionRepository) ListRange(ctx context.Context, trackerID string, from, to time.Time) ([]models.GPSFix, error) {
	query := `
		SELECT latitude, longitude, altitude, speed, course, uncertainty, recorded_at
		FROM positions
		WHERE tracker_id = $1 AND recorded_at >= $2 AND recorded_at <= $3
		ORDER BY recorded_at
	`
	rows, err := r.db.Pool.Query(ctx, query, trackerID, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	defer rows.Close()

	var fixes []models.GPSFix
	for rows.Next() {
		fix, err := scanFix(rows)
		if err != nil {
			return nil, err
		}
		fixes = append(fixes, fix)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	return fixes, nil
}

// Latest 获取最新位置
func (r *PositionRepository) Latest(ctx context.Context, trackerID string) (models.GPSFix, error) {
	query := `
		SELECT latitude, longitude, altitude, speed, course, uncertainty, recorded_at
		FROM positions WHERE tracker_id = $1 ORDER BY recorded_at DESC LIMIT 1
	`
	fix, err := scanFix(r.db.Pool.QueryRow(ctx, query, trackerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.GPSFix{}, ErrNotFound
	}
	return fix, err
}

func scanFix(row pgx.Row) (models.GPSFix, error) {
	var (
		lat, lon                             float64
		altitude, speed, course, uncertainty *float64
		recordedAt                           time.Time
	)
	if err := row.Scan(&lat, &lon, &altitude, &speed, &course, &uncertainty, &recordedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.GPSFix{}, err
		}
		return models.GPSFix{}, fmt.Errorf("scan position: %w", err)
	}
	return models.NewGPSFix(lat, lon, recordedAt.Unix(),
		deref(uncertainty), deref(altitude), deref(speed), deref(course))
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
