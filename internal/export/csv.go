package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/langchou/petgazer/internal/models"
)

// ErrMalformedCSV 已有导出文件缺少必需列
var ErrMalformedCSV = errors.New("malformed export file")

// 导出列
var (
	baseColumns      = []string{"time", "latitude", "longitude", "altitude", "speed", "course", "pos_uncertainty"}
	analyticsColumns = []string{"distance_meters", "calculated_speed_kmh", "cumulative_distance"}
)

const datetimeLayout = "2006-01-02 15:04:05"

// Row 带统计列的导出行
type Row struct {
	Fix                models.GPSFix
	DistanceMeters     float64
	CalculatedSpeedKmh float64
	CumulativeDistance float64
}

// CSVStore 增量导出文件
type CSVStore struct {
	path string
}

func NewCSVStore(path string) *CSVStore {
	return &CSVStore{path: path}
}

func (s *CSVStore) Path() string { return s.path }

// Load 读取已有文件，文件不存在时返回空；第二个返回值为跳过的坏行数
func (s *CSVStore) Load() ([]models.GPSFix, int, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()
	return Read(f)
}

// Save 写临时文件后替换
func (s *CSVStore) Save(rows []Row, withDatetime bool) error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".export-*.csv")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := Write(tmp, rows, withDatetime); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

// Read 按表头解析，time 可以是 unix 秒或日期字符串
// 无法解析或超出范围的行被跳过并计数，表头缺列或读取失败时返回错误
func Read(r io.Reader) ([]models.GPSFix, int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrMalformedCSV, err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{"time", "latitude", "longitude"} {
		if _, ok := col[required]; !ok {
			return nil, 0, fmt.Errorf("%w: missing column %q", ErrMalformedCSV, required)
		}
	}

	var fixes []models.GPSFix
	skipped := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				skipped++
				continue
			}
			return nil, 0, err
		}

		field := func(name string) string {
			i, ok := col[name]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		fix, err := parseRow(field)
		if err != nil {
			skipped++
			continue
		}
		fixes = append(fixes, fix)
	}
	return fixes, skipped, nil
}

func parseRow(field func(name string) string) (models.GPSFix, error) {
	ts, err := parseTime(field("time"))
	if err != nil {
		return models.GPSFix{}, err
	}
	var values [6]float64
	for i, name := range []string{"latitude", "longitude", "altitude", "speed", "course", "pos_uncertainty"} {
		raw := field(name)
		if raw == "" {
			continue
		}
		if values[i], err = strconv.ParseFloat(raw, 64); err != nil {
			return models.GPSFix{}, fmt.Errorf("%s: %w", name, err)
		}
	}
	return models.NewGPSFix(values[0], values[1], ts, values[5], values[2], values[3], values[4])
}

func parseTime(raw string) (int64, error) {
	if ts, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return ts, nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return int64(f), nil
	}
	for _, layout := range []string{datetimeLayout, time.RFC3339} {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return t.Unix(), nil
		}
	}
	return 0, fmt.Errorf("invalid time %q", raw)
}

// LastTimestamp 最新一行的时间
func LastTimestamp(fixes []models.GPSFix) (int64, bool) {
	if len(fixes) == 0 {
		return 0, false
	}
	last := fixes[0].Timestamp()
	for _, f := range fixes[1:] {
		if f.Timestamp() > last {
			last = f.Timestamp()
		}
	}
	return last, true
}

// Merge 按时间戳去重（新数据优先）并升序排序
func Merge(existing, fresh []models.GPSFix) []models.GPSFix {
	byTime := make(map[int64]models.GPSFix, len(existing)+len(fresh))
	for _, f := range existing {
		byTime[f.Timestamp()] = f
	}
	for _, f := range fresh {
		byTime[f.Timestamp()] = f
	}

	merged := make([]models.GPSFix, 0, len(byTime))
	for _, f := range byTime {
		merged = append(merged, f)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp() < merged[j].Timestamp()
	})
	return merged
}

// Annotate 计算相邻点距离、速度和累计距离，第一行为 0
func Annotate(fixes []models.GPSFix) []Row {
	rows := make([]Row, len(fixes))
	pairs := models.PairwiseMetrics(fixes)

	var cumulative float64
	for i, f := range fixes {
		rows[i].Fix = f
		if i == 0 {
			continue
		}
		p := pairs[i-1]
		cumulative += p.Distance
		rows[i].DistanceMeters = p.Distance
		rows[i].CalculatedSpeedKmh = p.Speed
		rows[i].CumulativeDistance = cumulative
	}
	return rows
}

// Write 写出表头和所有行
func Write(w io.Writer, rows []Row, withDatetime bool) error {
	header := append([]string(nil), baseColumns...)
	if withDatetime {
		header = append(header, "datetime")
	}
	header = append(header, analyticsColumns...)

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range rows {
		f := r.Fix
		record := []string{
			strconv.FormatInt(f.Timestamp(), 10),
			formatFloat(f.Latitude()),
			formatFloat(f.Longitude()),
			formatFloat(f.Altitude()),
			formatFloat(f.Speed()),
			formatFloat(f.Course()),
			formatFloat(f.Uncertainty()),
		}
		if withDatetime {
			record = append(record, f.Time().UTC().Format(datetimeLayout))
		}
		record = append(record,
			formatFloat(r.DistanceMeters),
			formatFloat(r.CalculatedSpeedKmh),
			formatFloat(r.CumulativeDistance),
		)
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
