package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"
)

// EarthRadiusMeters haversine 使用的地球半径
const EarthRadiusMeters = 6371000.0

// ErrInvalidFix GPS 数据不合法
var ErrInvalidFix = errors.New("invalid gps fix")

// AccuracyLevel GPS 精度等级
type AccuracyLevel string

const (
	AccuracyExcellent AccuracyLevel = "Excellent"
	AccuracyGood      AccuracyLevel = "Good"
	AccuracyFair      AccuracyLevel = "Fair"
	AccuracyPoor      AccuracyLevel = "Poor"
)

// GPSFix 一次定位结果，构造后不可变
type GPSFix struct {
	latitude    float64
	longitude   float64
	timestamp   int64
	uncertainty float64
	altitude    float64
	speed       float64
	course      float64
}

// NewGPSFix 创建定位结果并校验坐标范围
func NewGPSFix(lat, lon float64, timestamp int64, uncertainty, altitude, speed, course float64) (GPSFix, error) {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return GPSFix{}, fmt.Errorf("%w: latitude %v out of range", ErrInvalidFix, lat)
	}
	if math.IsNaN(lon) || lon < -180 || lon > 180 {
		return GPSFix{}, fmt.Errorf("%w: longitude %v out of range", ErrInvalidFix, lon)
	}
	if math.IsNaN(uncertainty) || uncertainty < 0 {
		return GPSFix{}, fmt.Errorf("%w: uncertainty %v is negative", ErrInvalidFix, uncertainty)
	}
	return GPSFix{
		latitude:    lat,
		longitude:   lon,
		timestamp:   timestamp,
		uncertainty: uncertainty,
		altitude:    altitude,
		speed:       speed,
		course:      course,
	}, nil
}

// ParseGPSFix 从 API 返回的位置记录解析
// latlong 必须是至少两个元素的数组，其余字段缺失时取 0
func ParseGPSFix(raw map[string]any) (GPSFix, error) {
	if raw == nil {
		return GPSFix{}, fmt.Errorf("%w: empty record", ErrInvalidFix)
	}
	latlong, ok := raw["latlong"].([]any)
	if !ok || len(latlong) < 2 {
		return GPSFix{}, fmt.Errorf("%w: missing latlong", ErrInvalidFix)
	}
	lat, err := toFloat(latlong[0])
	if err != nil {
		return GPSFix{}, fmt.Errorf("%w: latitude: %v", ErrInvalidFix, err)
	}
	lon, err := toFloat(latlong[1])
	if err != nil {
		return GPSFix{}, fmt.Errorf("%w: longitude: %v", ErrInvalidFix, err)
	}

	var fields [5]float64
	altKey := "altitude"
	if _, ok := raw[altKey]; !ok {
		altKey = "alt"
	}
	for i, key := range []string{"time", "pos_uncertainty", altKey, "speed", "course"} {
		v, present := raw[key]
		if !present || v == nil {
			continue
		}
		f, err := toFloat(v)
		if err != nil {
			return GPSFix{}, fmt.Errorf("%w: %s: %v", ErrInvalidFix, key, err)
		}
		fields[i] = f
	}

	return NewGPSFix(lat, lon, int64(fields[0]), fields[1], fields[2], fields[3], fields[4])
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case string:
		return strconv.ParseFloat(n, 64)
	case interface{ Float64() (float64, error) }:
		return n.Float64()
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}

func (f GPSFix) Latitude() float64    { return f.latitude }
func (f GPSFix) Longitude() float64   { return f.longitude }
func (f GPSFix) Timestamp() int64     { return f.timestamp }
func (f GPSFix) Uncertainty() float64 { return f.uncertainty }
func (f GPSFix) Altitude() float64    { return f.altitude }
func (f GPSFix) Speed() float64       { return f.speed }
func (f GPSFix) Course() float64      { return f.course }

// Time 定位时间
func (f GPSFix) Time() time.Time {
	return time.Unix(f.timestamp, 0)
}

// Coordinates 返回 (lat, lon)
func (f GPSFix) Coordinates() (float64, float64) {
	return f.latitude, f.longitude
}

// AccuracyLevel 按误差半径分级
func (f GPSFix) AccuracyLevel() AccuracyLevel {
	switch {
	case f.uncertainty <= 5:
		return AccuracyExcellent
	case f.uncertainty <= 15:
		return AccuracyGood
	case f.uncertainty <= 50:
		return AccuracyFair
	default:
		return AccuracyPoor
	}
}

// IsMoving 速度大于 1 km/h 视为移动
func (f GPSFix) IsMoving() bool {
	return f.speed > 1
}

// DistanceTo 到另一个定位点的大圆距离（米）
func (f GPSFix) DistanceTo(other GPSFix) float64 {
	return Haversine(f.latitude, f.longitude, other.latitude, other.longitude)
}

// Haversine 计算两点间大圆距离（米）
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Asin(math.Min(1, math.Sqrt(a)))
	return EarthRadiusMeters * c
}

// gpsFixJSON 对外序列化格式
type gpsFixJSON struct {
	Latitude      float64       `json:"latitude"`
	Longitude     float64       `json:"longitude"`
	Timestamp     int64         `json:"timestamp"`
	Uncertainty   float64       `json:"uncertainty"`
	Altitude      float64       `json:"altitude"`
	Speed         float64       `json:"speed"`
	Course        float64       `json:"course"`
	AccuracyLevel AccuracyLevel `json:"accuracy_level"`
	IsMoving      bool          `json:"is_moving"`
}

// MarshalJSON 输出带派生字段的 JSON
func (f GPSFix) MarshalJSON() ([]byte, error) {
	return json.Marshal(gpsFixJSON{
		Latitude:      f.latitude,
		Longitude:     f.longitude,
		Timestamp:     f.timestamp,
		Uncertainty:   f.uncertainty,
		Altitude:      f.altitude,
		Speed:         f.speed,
		Course:        f.course,
		AccuracyLevel: f.AccuracyLevel(),
		IsMoving:      f.IsMoving(),
	})
}
