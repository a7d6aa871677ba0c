// Package geometry turns bars, pattern boxes and overlays into abstract
// draw instructions. It holds no state and performs no drawing itself.
package geometry

import "unicode/utf8"

// Rect is an axis-aligned rectangle in pixel space.
type Rect struct {
	Left   float64
	Top    float64
	Right  float64
	Bottom float64
}

// Width returns the horizontal extent.
func (r Rect) Width() float64 { return r.Right - r.Left }

// Height returns the vertical extent.
func (r Rect) Height() float64 { return r.Bottom - r.Top }

// MidX returns the horizontal center.
func (r Rect) MidX() float64 { return (r.Left + r.Right) / 2 }

// Point is a pixel coordinate.
type Point struct {
	X float64
	Y float64
}

// Mapper converts data coordinates to pixels.
type Mapper interface {
	Y(value float64) float64
	X(index int) float64
	BarWidth() float64
	Area() Rect
}

// TextMeasurer reports the rendered width of a string.
type TextMeasurer interface {
	MeasureText(s string) float64
}

// FixedAdvance measures text as a constant width per rune.
type FixedAdvance float64

// MeasureText implements TextMeasurer.
func (f FixedAdvance) MeasureText(s string) float64 {
	return float64(utf8.RuneCountInString(s)) * float64(f)
}

// LinearMapper maps bar indices evenly across the area and values linearly
// between Min and Max.
type LinearMapper struct {
	area  Rect
	count int
	min   float64
	max   float64
}

// NewLinearMapper creates a mapper for count bars spanning [min, max].
func NewLinearMapper(area Rect, count int, min, max float64) *LinearMapper {
	if count < 1 {
		count = 1
	}
	return &LinearMapper{area: area, count: count, min: min, max: max}
}

func (m *LinearMapper) slot() float64 {
	return m.area.Width() / float64(m.count)
}

// X returns the center of bar index.
func (m *LinearMapper) X(index int) float64 {
	return m.area.Left + (float64(index)+0.5)*m.slot()
}

// Y returns the pixel row for value; a degenerate range maps to the middle.
func (m *LinearMapper) Y(value float64) float64 {
	span := m.max - m.min
	if span == 0 {
		return m.area.Top + m.area.Height()/2
	}
	return m.area.Bottom - (value-m.min)/span*m.area.Height()
}

// BarWidth returns the body width of one bar.
func (m *LinearMapper) BarWidth() float64 {
	return m.slot() * 0.7
}

// Area returns the plot area.
func (m *LinearMapper) Area() Rect {
	return m.area
}
