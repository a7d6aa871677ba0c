package geometry

import (
	"math"

	"candlelens/internal/models"
)

// Options controls Draw.
type Options struct {
	Style       Style
	Measurer    TextMeasurer
	LineHeight  float64
	SelectedUID string
	Overlays    []models.OverlaySeries
}

// DefaultOptions returns options with the default palette and a fixed
// 7px text advance.
func DefaultOptions() Options {
	return Options{
		Style:      DefaultStyle(),
		Measurer:   FixedAdvance(7),
		LineHeight: 12,
	}
}

// Draw produces the full instruction list for one frame: pattern boxes,
// then bars, then visible overlays, then extremum labels.
func Draw(bars []models.Bar, boxes []models.PatternBox, mapper Mapper, opts Options) []Instruction {
	if opts.Measurer == nil {
		opts.Measurer = FixedAdvance(7)
	}
	if opts.LineHeight <= 0 {
		opts.LineHeight = 12
	}

	var out []Instruction
	out = append(out, BoxInstructions(ApplySelection(boxes, opts.SelectedUID), mapper, opts.Style)...)
	out = append(out, BarInstructions(bars, mapper, opts.Style)...)
	for _, s := range opts.Overlays {
		if s.Visible {
			out = append(out, OverlayInstructions(s, len(bars), mapper)...)
		}
	}
	out = append(out, ExtremumLabels(bars, mapper, opts.Measurer, opts.LineHeight, opts.Style)...)
	return out
}

// BarInstructions emits bodies, wicks, ties and halt segments.
func BarInstructions(bars []models.Bar, mapper Mapper, style Style) []Instruction {
	half := mapper.BarWidth() / 2
	out := make([]Instruction, 0, len(bars)*2)

	for i, b := range bars {
		x := mapper.X(i)

		if b.IsHalted() {
			if b.CarriedClose == nil {
				continue
			}
			y := mapper.Y(*b.CarriedClose)
			out = append(out, Instruction{
				Kind:   KindFlat,
				Index:  i,
				Points: []Point{{X: x - half, Y: y}, {X: x + half, Y: y}},
				Color:  style.HaltColor,
			})
			continue
		}

		color := barColor(b.Color, style)
		out = append(out, Instruction{
			Kind:   KindWick,
			Index:  i,
			Points: []Point{{X: x, Y: mapper.Y(b.High)}, {X: x, Y: mapper.Y(b.Low)}},
			Color:  color,
		})

		if b.Open == b.Close {
			y := mapper.Y(b.Open)
			out = append(out, Instruction{
				Kind:   KindTie,
				Index:  i,
				Points: []Point{{X: x - half, Y: y}, {X: x + half, Y: y}},
				Color:  color,
			})
			continue
		}

		out = append(out, Instruction{
			Kind:  KindBody,
			Index: i,
			Rect: Rect{
				Left:   x - half,
				Right:  x + half,
				Top:    mapper.Y(math.Max(b.Open, b.Close)),
				Bottom: mapper.Y(math.Min(b.Open, b.Close)),
			},
			Color: color,
		})
	}
	return out
}

func barColor(c models.BarColor, style Style) string {
	switch c {
	case models.ColorUp:
		return style.UpColor
	case models.ColorDown:
		return style.DownColor
	default:
		return style.FlatColor
	}
}

// OverlayInstructions emits one polyline per contiguous run of values.
// Secondary series are mapped onto a fixed 0-100 scale over the plot area.
func OverlayInstructions(s models.OverlaySeries, barCount int, mapper Mapper) []Instruction {
	area := mapper.Area()
	y := mapper.Y
	if s.Secondary {
		y = func(v float64) float64 {
			return area.Bottom - v/100*area.Height()
		}
	}

	var out []Instruction
	var run []Point
	flush := func() {
		if len(run) > 1 {
			out = append(out, Instruction{Kind: KindPolyline, Index: -1, Points: run, Color: s.Color, Series: s.Key, Dashed: s.Secondary})
		}
		run = nil
	}

	for _, p := range s.Points {
		if p.Y == nil || p.X < 0 || p.X >= barCount || math.IsNaN(*p.Y) {
			flush()
			continue
		}
		run = append(run, Point{X: mapper.X(p.X), Y: y(*p.Y)})
	}
	flush()
	return out
}
