// Package candle converts raw OHLCV arrays into renderable bars.
package candle

import (
	"math"

	"candlelens/internal/models"
)

// Build converts parallel OHLCV arrays into bars.
//
// Iteration stops at the shortest array. An index with any non-finite field
// is skipped. A zero-volume bar is drawn flat at the last traded close; when
// no earlier bar traded its own close is kept and CarriedClose stays nil.
func Build(series models.OHLCSeries) []models.Bar {
	n := series.Len()
	bars := make([]models.Bar, 0, n)

	var carried *float64
	for i := 0; i < n; i++ {
		o, c, h, l, v := series.Opens[i], series.Closes[i], series.Highs[i], series.Lows[i], series.Volumes[i]
		if !finite(o, c, h, l, v) {
			continue
		}

		bar := models.Bar{
			Label:  series.Dates[i],
			Open:   o,
			Close:  c,
			High:   h,
			Low:    l,
			Volume: v,
		}
		if d, err := models.ParseDate(series.Dates[i]); err == nil {
			bar.Date = d
			bar.Label = models.FormatDate(d)
		}

		if v > 0 {
			switch {
			case c > o:
				bar.Color = models.ColorUp
			case c < o:
				bar.Color = models.ColorDown
			default:
				bar.Color = models.ColorFlat
			}
			price := c
			carried = &price
		} else {
			bar.Color = models.ColorFlat
			if carried != nil {
				price := *carried
				bar.Open, bar.Close, bar.High, bar.Low = price, price, price, price
				bar.CarriedClose = &price
			} else {
				bar.Open, bar.High, bar.Low = c, c, c
			}
		}

		bars = append(bars, bar)
	}

	return bars
}

func finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// HasHalt reports whether any bar had zero volume.
func HasHalt(bars []models.Bar) bool {
	for _, b := range bars {
		if b.IsHalted() {
			return true
		}
	}
	return false
}
