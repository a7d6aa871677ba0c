package geometry

import (
	"math"

	"candlelens/internal/models"
)

// boxPadding is the vertical padding applied to a box, as a share of its span.
const boxPadding = 0.15

// BuildBoxes derives bounding boxes for pattern matches.
//
// Indices are clamped to the bar range and a match whose clamped start lies
// after its end is skipped. UIDs are taken from the unclamped match.
func BuildBoxes(bars []models.Bar, matches []models.PatternMatch) []models.PatternBox {
	if len(bars) == 0 {
		return nil
	}

	last := len(bars) - 1
	boxes := make([]models.PatternBox, 0, len(matches))
	for _, m := range matches {
		start := clampIndex(m.StartIndex, last)
		end := clampIndex(m.EndIndex, last)
		if start > end {
			continue
		}

		hi, lo := math.Inf(-1), math.Inf(1)
		for _, b := range bars[start : end+1] {
			hi = math.Max(hi, b.High)
			lo = math.Min(lo, b.Low)
		}

		pad := (hi - lo) * boxPadding
		if pad == 0 {
			pad = 1
		}

		boxes = append(boxes, models.PatternBox{
			StartIndex: start,
			EndIndex:   end,
			MaxHigh:    hi + pad,
			MinLow:     lo - pad,
			UID:        m.UID(),
			Name:       m.Name,
			Direction:  m.Direction,
		})
	}
	return boxes
}

func clampIndex(i, last int) int {
	if i < 0 {
		return 0
	}
	if i > last {
		return last
	}
	return i
}

// ApplySelection marks the box whose UID equals uid as selected and clears
// every other box. An empty uid clears all.
func ApplySelection(boxes []models.PatternBox, uid string) []models.PatternBox {
	out := make([]models.PatternBox, len(boxes))
	for i, b := range boxes {
		b.Selected = uid != "" && b.UID == uid
		out[i] = b
	}
	return out
}

// BoxInstructions emits one rectangle per box, from the left edge of its
// start bar to the right edge of its end bar.
func BoxInstructions(boxes []models.PatternBox, mapper Mapper, style Style) []Instruction {
	half := mapper.BarWidth() / 2
	out := make([]Instruction, 0, len(boxes))
	for _, b := range boxes {
		color := style.UpColor
		if b.Direction == models.DirectionDown {
			color = style.DownColor
		}
		out = append(out, Instruction{
			Kind:  KindBox,
			Index: -1,
			Rect: Rect{
				Left:   mapper.X(b.StartIndex) - half,
				Right:  mapper.X(b.EndIndex) + half,
				Top:    mapper.Y(b.MaxHigh),
				Bottom: mapper.Y(b.MinLow),
			},
			Color:    color,
			Text:     b.Name,
			UID:      b.UID,
			Selected: b.Selected,
			Dashed:   !b.Selected,
		})
	}
	return out
}
