package factors

import (
	"math"
	"time"

	"candlelens/internal/models"
)

// PickValueAtOrBefore returns the value of the latest point dated on or
// before target, clamped to [0, 100]. NaN readings are skipped.
func PickValueAtOrBefore(points []models.FactorPoint, target time.Time) (float64, bool) {
	var (
		best     float64
		bestDate time.Time
		found    bool
	)
	for _, p := range points {
		if math.IsNaN(p.Value) || p.Date.After(target) {
			continue
		}
		if !found || !p.Date.Before(bestDate) {
			best, bestDate, found = p.Value, p.Date, true
		}
	}
	if !found {
		return 0, false
	}
	return math.Max(0, math.Min(100, best)), true
}

// Snapshot picks every factor's reading at or before target. Factors with
// no reading are absent from the result.
func Snapshot(series models.FactorSeries, target time.Time) models.FactorSnapshot {
	snap := make(models.FactorSnapshot, len(series))
	for _, f := range models.AllFactors {
		if v, ok := PickValueAtOrBefore(series[f], target); ok {
			snap[f] = v
		}
	}
	return snap
}

// Align maps one factor onto bar dates, for drawing on the secondary axis.
func Align(points []models.FactorPoint, bars []models.Bar) []models.Point {
	out := make([]models.Point, len(bars))
	for i, b := range bars {
		out[i] = models.Point{X: i}
		if b.Date.IsZero() {
			continue
		}
		if v, ok := PickValueAtOrBefore(points, b.Date); ok {
			out[i].Y = &v
		}
	}
	return out
}
