package models

import "time"

// LocationHistory 历史轨迹查询结果：PopulatedHistory 或 EmptyHistory
type LocationHistory interface {
	LocationCount() int
	isLocationHistory()
}

// PopulatedHistory 至少包含一个点的轨迹，按时间升序
type PopulatedHistory struct {
	Locations         []GPSFix  `json:"locations"`
	StartTime         time.Time `json:"start_time"`
	EndTime           time.Time `json:"end_time"`
	TotalDistance     float64   `json:"total_distance"`
	MaxSpeed          float64   `json:"max_speed"`
	AverageSpeed      float64   `json:"average_speed"`
	TimeSpanHours     float64   `json:"time_span_hours"`
	AnalyticsIncluded bool      `json:"analytics_included"`
}

func (h PopulatedHistory) LocationCount() int { return len(h.Locations) }
func (PopulatedHistory) isLocationHistory()    {}

// TotalDistanceKm 总距离（公里）
func (h PopulatedHistory) TotalDistanceKm() float64 {
	return h.TotalDistance / 1000
}

// EmptyHistory 查询区间内没有有效点
type EmptyHistory struct {
	RequestedHours int `json:"requested_hours"`
}

func (EmptyHistory) LocationCount() int { return 0 }
func (EmptyHistory) isLocationHistory()  {}

// PairMetric 相邻两点之间的距离和速度
type PairMetric struct {
	Distance float64 // 米
	Speed    float64 // km/h，时间差为 0 时为 0
	Elapsed  int64   // 秒
}

// PairwiseMetrics 计算按时间排序的相邻点对
func PairwiseMetrics(points []GPSFix) []PairMetric {
	if len(points) < 2 {
		return nil
	}
	out := make([]PairMetric, 0, len(points)-1)
	for i := 1; i < len(points); i++ {
		prev, cur := points[i-1], points[i]
		m := PairMetric{
			Distance: prev.DistanceTo(cur),
			Elapsed:  cur.Timestamp() - prev.Timestamp(),
		}
		if m.Elapsed > 0 {
			m.Speed = m.Distance / float64(m.Elapsed) * 3.6
		}
		out = append(out, m)
	}
	return out
}

// Aggregate 总距离、最大速度、平均速度（时间差为 0 的点对也计入分母）
func Aggregate(pairs []PairMetric) (total, maxSpeed, avgSpeed float64) {
	if len(pairs) == 0 {
		return 0, 0, 0
	}
	var speedSum float64
	for _, p := range pairs {
		total += p.Distance
		speedSum += p.Speed
		if p.Speed > maxSpeed {
			maxSpeed = p.Speed
		}
	}
	return total, maxSpeed, speedSum / float64(len(pairs))
}
