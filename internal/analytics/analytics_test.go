package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCalculateTrend(t *testing.T) {
	tests := []struct {
		name      string
		current   float64
		previous  float64
		wantPct   float64
		wantPrior bool
	}{
		{"both zero", 0, 0, 0, false},
		{"new from zero", 10, 0, 100, false},
		{"negative from zero", -5, 0, -100, false},
		{"growth", 150, 100, 50, true},
		{"decline", 75, 100, -25, true},
		{"unchanged", 100, 100, 0, true},
		{"rounds half up", 17, 16, 6.3, true},
		{"negative half rounds up", 15, 16, -6.2, true},
		{"one decimal", 1, 3, -66.7, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateTrend(tt.current, tt.previous)
			assert.Equal(t, tt.current, got.Current)
			assert.Equal(t, tt.previous, got.Previous)
			assert.InDelta(t, tt.wantPct, got.PercentageChange, 1e-9)
			assert.Equal(t, tt.wantPrior, got.HasPriorData)
		})
	}
}

func TestMedian(t *testing.T) {
	assert.Equal(t, 0.0, Median(nil))
	assert.Equal(t, 3.0, Median([]float64{5, 1, 3}))
	assert.Equal(t, 2.5, Median([]float64{4, 1, 3, 2}))

	in := []float64{3, 1, 2}
	Median(in)
	assert.Equal(t, []float64{3, 1, 2}, in)
}

func TestScoreVideo(t *testing.T) {
	siblings := []ScoredVideo{
		{ID: "a", Views: 100},
		{ID: "b", Views: 200},
		{ID: "c", Views: 300},
	}

	tests := []struct {
		name      string
		subject   ScoredVideo
		siblings  []ScoredVideo
		score     int
		median    float64
		deviation float64
		xFactor   float64
		level     PerformanceLevel
	}{
		{
			name:     "at median",
			subject:  ScoredVideo{ID: "s", Views: 200},
			siblings: siblings,
			score:    50, median: 200, deviation: 0, xFactor: 1, level: PerformanceAverage,
		},
		{
			name:     "double the median",
			subject:  ScoredVideo{ID: "s", Views: 400},
			siblings: siblings,
			score:    75, median: 200, deviation: 100, xFactor: 2, level: PerformanceHigh,
		},
		{
			name:     "far above median clamps",
			subject:  ScoredVideo{ID: "s", Views: 2000},
			siblings: siblings,
			score:    100, median: 200, deviation: 900, xFactor: 10, level: PerformanceExceptional,
		},
		{
			name:     "no views",
			subject:  ScoredVideo{ID: "s", Views: 0},
			siblings: siblings,
			score:    25, median: 200, deviation: -100, xFactor: 0, level: PerformanceLow,
		},
		{
			name:     "subject excluded from siblings",
			subject:  ScoredVideo{ID: "b", Views: 200},
			siblings: siblings,
			score:    50, median: 200, deviation: 0, xFactor: 1, level: PerformanceAverage,
		},
		{
			name:     "lone video",
			subject:  ScoredVideo{ID: "s", Views: 12345},
			siblings: nil,
			score:    50, median: 12345, deviation: 0, xFactor: 1, level: PerformanceAverage,
		},
		{
			name:     "zero median",
			subject:  ScoredVideo{ID: "s", Views: 50},
			siblings: []ScoredVideo{{ID: "a", Views: 0}},
			score:    50, median: 0, deviation: 0, xFactor: 1, level: PerformanceAverage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ScoreVideo(tt.subject, tt.siblings)
			assert.Equal(t, tt.score, got.Score)
			assert.InDelta(t, tt.median, got.MedianViews, 1e-9)
			assert.InDelta(t, tt.deviation, got.DeviationPercentage, 1e-9)
			assert.InDelta(t, tt.xFactor, got.XFactor, 1e-9)
			assert.Equal(t, tt.level, got.PerformanceLevel)
		})
	}
}

func TestLevelBoundaries(t *testing.T) {
	assert.Equal(t, PerformanceLow, levelFor(29))
	assert.Equal(t, PerformanceAverage, levelFor(30))
	assert.Equal(t, PerformanceAverage, levelFor(70))
	assert.Equal(t, PerformanceHigh, levelFor(71))
	assert.Equal(t, PerformanceHigh, levelFor(89))
	assert.Equal(t, PerformanceExceptional, levelFor(90))
}

func TestScoreChannel(t *testing.T) {
	scores := ScoreChannel([]ScoredVideo{{ID: "a", Views: 100}, {ID: "b", Views: 100}, {ID: "c", Views: 400}})
	assert.Len(t, scores, 3)
	assert.Equal(t, 35, scores[0].Score)
	assert.Equal(t, "c", scores[2].VideoID)
	assert.Equal(t, 4.0, scores[2].XFactor)
}

func TestVPH(t *testing.T) {
	now := time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, 50.0, VPH(1200, now.Add(-24*time.Hour), now))
	assert.Equal(t, 300.0, VPH(300, now.Add(-10*time.Minute), now), "less than an hour counts as one")
	assert.Equal(t, 33.3, VPH(100, now.Add(-3*time.Hour), now))
	assert.Zero(t, VPH(0, now.Add(-time.Hour), now))
	assert.Zero(t, VPH(100, time.Time{}, now))
}
