package analytics

import (
	"math"
	"time"
)

// VPH returns views per hour since publication, counting at least one hour
func VPH(views int64, publishedAt, now time.Time) float64 {
	if views <= 0 || publishedAt.IsZero() {
		return 0
	}
	hours := math.Max(now.Sub(publishedAt).Hours(), 1)
	return Round1(float64(views) / hours)
}
