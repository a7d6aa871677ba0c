package candle

import (
	"math"

	"candlelens/internal/models"
)

// Extremes holds the highest high and lowest low over traded bars.
type Extremes struct {
	MaxHigh      float64
	MaxHighIndex int
	MinLow       float64
	MinLowIndex  int
	Valid        bool
}

// FindExtremes scans bars with volume>0. Valid is false when none traded.
func FindExtremes(bars []models.Bar) Extremes {
	ext := Extremes{
		MaxHigh:      math.Inf(-1),
		MinLow:       math.Inf(1),
		MaxHighIndex: -1,
		MinLowIndex:  -1,
	}

	for i, b := range bars {
		if b.IsHalted() {
			continue
		}
		if b.High > ext.MaxHigh {
			ext.MaxHigh = b.High
			ext.MaxHighIndex = i
		}
		if b.Low < ext.MinLow {
			ext.MinLow = b.Low
			ext.MinLowIndex = i
		}
	}

	ext.Valid = ext.MaxHighIndex >= 0
	if !ext.Valid {
		ext.MaxHigh, ext.MinLow = 0, 0
	}
	return ext
}

// ValueRange returns suggested y-axis bounds: the traded extremes with a 5%
// margin, one unit when the range is flat, and 0-100 with nothing traded.
func ValueRange(bars []models.Bar) (lo, hi float64) {
	ext := FindExtremes(bars)
	if !ext.Valid {
		return 0, 100
	}

	margin := (ext.MaxHigh - ext.MinLow) * 0.05
	if margin == 0 {
		margin = 1
	}
	return ext.MinLow - margin, ext.MaxHigh + margin
}
