package analytics

import (
	"math"
)

// TrendResult is the change of a metric against its previous value
type TrendResult struct {
	Current          float64 `json:"current"`
	Previous         float64 `json:"previous"`
	PercentageChange float64 `json:"percentageChange"`
	HasPriorData     bool    `json:"hasPriorData"`
}

// CalculateTrend returns the percentage change from previous to current.
// A zero previous value has no meaningful ratio: growth from zero is
// reported as +100% (or -100% for a negative current) without prior data.
func CalculateTrend(current, previous float64) TrendResult {
	res := TrendResult{Current: current, Previous: previous}

	switch {
	case previous == 0 && current == 0:
		return res
	case previous == 0 && current > 0:
		res.PercentageChange = 100
		return res
	case previous == 0:
		res.PercentageChange = -100
		return res
	}

	res.PercentageChange = Round1((current - previous) / previous * 100)
	res.HasPriorData = true
	return res
}

// Round1 rounds to one decimal place, halves towards positive infinity
func Round1(x float64) float64 {
	return math.Floor(x*10+0.5) / 10
}
