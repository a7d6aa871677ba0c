package geometry

import (
	"fmt"

	"candlelens/internal/candle"
	"candlelens/internal/models"
	"candlelens/pkg/utils"
)

const (
	labelGap        = 5
	labelHighOffset = 5
	labelLowOffset  = 15
)

// ExtremumLabels emits the "High"/"Low" labels for the traded extremes.
// Nothing is emitted when no bar traded.
func ExtremumLabels(bars []models.Bar, mapper Mapper, measure TextMeasurer, lineHeight float64, style Style) []Instruction {
	ext := candle.FindExtremes(bars)
	if !ext.Valid {
		return nil
	}

	high := bars[ext.MaxHighIndex]
	low := bars[ext.MinLowIndex]

	return []Instruction{
		placeLabel(
			fmt.Sprintf("High %s (%s)", utils.FormatNumber(ext.MaxHigh, 0), labelDate(high)),
			ext.MaxHighIndex, mapper.Y(ext.MaxHigh)-labelHighOffset,
			mapper, measure, lineHeight, style.TextColor,
		),
		placeLabel(
			fmt.Sprintf("Low %s (%s)", utils.FormatNumber(ext.MinLow, 0), labelDate(low)),
			ext.MinLowIndex, mapper.Y(ext.MinLow)+labelLowOffset,
			mapper, measure, lineHeight, style.TextColor,
		),
	}
}

func labelDate(b models.Bar) string {
	if b.Date.IsZero() {
		return b.Label
	}
	return utils.FormatDateSlash(b.Date)
}

// placeLabel positions text next to the bar at index. Bars right of the plot
// center get labels growing left, the rest grow right. If the chosen side
// overflows the area the side flips, and the result is clamped inside.
func placeLabel(text string, index int, baseline float64, mapper Mapper, measure TextMeasurer, lineHeight float64, color string) Instruction {
	area := mapper.Area()
	x := mapper.X(index)
	w := measure.MeasureText(text)

	anchor := AnchorLeft
	if x > area.MidX() {
		anchor = AnchorRight
	}

	left := labelLeft(anchor, x, w)
	if anchor == AnchorRight && left < area.Left {
		anchor = AnchorLeft
		left = labelLeft(anchor, x, w)
	} else if anchor == AnchorLeft && left+w > area.Right {
		anchor = AnchorRight
		left = labelLeft(anchor, x, w)
	}

	if left+w > area.Right {
		left = area.Right - w
	}
	if left < area.Left {
		left = area.Left
	}

	if baseline-lineHeight < area.Top {
		baseline = area.Top + lineHeight
	}
	if baseline > area.Bottom {
		baseline = area.Bottom
	}

	return Instruction{
		Kind:   KindLabel,
		Index:  index,
		Rect:   Rect{Left: left, Right: left + w, Top: baseline - lineHeight, Bottom: baseline},
		Color:  color,
		Text:   text,
		Anchor: anchor,
	}
}

func labelLeft(anchor Anchor, x, w float64) float64 {
	if anchor == AnchorRight {
		return x - labelGap - w
	}
	return x + labelGap
}

// AxisLabels emits ticks+1 evenly spaced price labels inside the left edge
// of the plot area, top to bottom.
func AxisLabels(mapper Mapper, lo, hi float64, ticks int, measure TextMeasurer, lineHeight float64, style Style) []Instruction {
	if ticks < 1 || !(hi > lo) {
		return nil
	}
	area := mapper.Area()
	step := (hi - lo) / float64(ticks)

	out := make([]Instruction, 0, ticks+1)
	for i := ticks; i >= 0; i-- {
		v := lo + step*float64(i)
		text := utils.Abbreviate(v)
		w := measure.MeasureText(text)

		baseline := mapper.Y(v) + lineHeight/2
		if baseline-lineHeight < area.Top {
			baseline = area.Top + lineHeight
		}
		if baseline > area.Bottom {
			baseline = area.Bottom
		}
		left := area.Left + 2
		out = append(out, Instruction{
			Kind:   KindLabel,
			Index:  -1,
			Rect:   Rect{Left: left, Right: left + w, Top: baseline - lineHeight, Bottom: baseline},
			Color:  style.HaltColor,
			Text:   text,
			Anchor: AnchorLeft,
		})
	}
	return out
}
