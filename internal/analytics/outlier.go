package analytics

import (
	"math"
	"slices"
)

// PerformanceLevel buckets an outlier score
type PerformanceLevel string

const (
	PerformanceLow         PerformanceLevel = "low"
	PerformanceAverage     PerformanceLevel = "average"
	PerformanceHigh        PerformanceLevel = "high"
	PerformanceExceptional PerformanceLevel = "exceptional"
)

// OutlierScore rates a video against the median of its channel
type OutlierScore struct {
	VideoID             string           `json:"videoId"`
	Score               int              `json:"score"`
	MedianViews         float64          `json:"medianViews"`
	DeviationPercentage float64          `json:"deviationPercentage"`
	PerformanceLevel    PerformanceLevel `json:"performanceLevel"`
	XFactor             float64          `json:"xFactor"`
}

// ScoredVideo is the input of the scorer
type ScoredVideo struct {
	ID    string
	Views int64
}

// ScoreVideo scores subject against its siblings. The subject is excluded
// from the median even if it appears among siblings. With no siblings the
// median is the subject's own views, so a lone video always scores 50.
func ScoreVideo(subject ScoredVideo, siblings []ScoredVideo) OutlierScore {
	views := make([]float64, 0, len(siblings))
	for _, s := range siblings {
		if s.ID == subject.ID {
			continue
		}
		views = append(views, float64(s.Views))
	}

	median := float64(subject.Views)
	if len(views) > 0 {
		median = Median(views)
	}

	res := OutlierScore{VideoID: subject.ID, MedianViews: median, XFactor: 1}
	if median != 0 {
		res.DeviationPercentage = (float64(subject.Views) - median) / median * 100
		res.XFactor = float64(subject.Views) / median
	}

	score := math.Floor(50 + res.DeviationPercentage/4 + 0.5)
	res.Score = int(math.Max(0, math.Min(100, score)))
	res.PerformanceLevel = levelFor(res.Score)
	return res
}

// ScoreChannel scores every video against the rest of the channel
func ScoreChannel(videos []ScoredVideo) []OutlierScore {
	scores := make([]OutlierScore, 0, len(videos))
	for _, v := range videos {
		scores = append(scores, ScoreVideo(v, videos))
	}
	return scores
}

func levelFor(score int) PerformanceLevel {
	switch {
	case score < 30:
		return PerformanceLow
	case score >= 90:
		return PerformanceExceptional
	case score > 70:
		return PerformanceHigh
	default:
		return PerformanceAverage
	}
}

// Median returns the median of values; even-sized inputs average the two
// middle values. values is not modified.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
