// Package models provides domain models for the chart annotation engine.
package models

import (
	"fmt"
	"strings"
	"time"
)

// BarColor represents the rendering color class of a bar.
type BarColor string

const (
	ColorUp   BarColor = "up"
	ColorDown BarColor = "down"
	ColorFlat BarColor = "flat"
)

// Bar represents one period's OHLCV record plus derived rendering attributes.
type Bar struct {
	Date   time.Time
	Label  string // canonical YYYY-MM-DD
	Open   float64
	Close  float64
	High   float64
	Low    float64
	Volume float64
	Color  BarColor

	// CarriedClose is set only on zero-volume bars: the close of the most
	// recent prior bar that traded. Nil when no such bar exists.
	CarriedClose *float64
}

// IsHalted reports whether the bar had no volume.
func (b Bar) IsHalted() bool {
	return b.Volume == 0
}

// OHLCSeries holds the raw parallel arrays returned by the data service.
type OHLCSeries struct {
	Dates   []string
	Opens   []float64
	Closes  []float64
	Highs   []float64
	Lows    []float64
	Volumes []float64
}

// Len returns the usable length, i.e. the shortest of the parallel arrays.
func (s OHLCSeries) Len() int {
	n := len(s.Dates)
	for _, l := range []int{len(s.Opens), len(s.Closes), len(s.Highs), len(s.Lows), len(s.Volumes)} {
		if l < n {
			n = l
		}
	}
	return n
}

// Direction represents the expected direction of a pattern.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// PatternClass represents whether a pattern continues or reverses a trend.
type PatternClass string

const (
	ClassTrend    PatternClass = "trend"
	ClassReversal PatternClass = "reversal"
)

// PatternKind is a detection filter understood by the pattern service.
type PatternKind string

const (
	KindBullishReversal PatternKind = "bullish_reversal"
	KindBullishTrend    PatternKind = "bullish_trend"
	KindBearishReversal PatternKind = "bearish_reversal"
	KindBearishTrend    PatternKind = "bearish_trend"
)

// AllPatternKinds lists every detection filter.
var AllPatternKinds = []PatternKind{
	KindBullishReversal,
	KindBullishTrend,
	KindBearishReversal,
	KindBearishTrend,
}

// PatternMatch represents a detected chart pattern over an index range.
// Indices reference the current bar sequence and may be out of range.
type PatternMatch struct {
	StartIndex  int          `json:"start_idx"`
	EndIndex    int          `json:"end_idx"`
	StartDate   string       `json:"start_date"`
	EndDate     string       `json:"end_date"`
	Name        string       `json:"name"`
	Direction   Direction    `json:"direction"`
	Class       PatternClass `json:"clazz"`
	Explanation string       `json:"explain"`
}

// UID returns the identity used for box selection.
func (m PatternMatch) UID() string {
	return fmt.Sprintf("%d-%d-%s", m.StartIndex, m.EndIndex, m.Name)
}

// PatternBox is the derived bounding box of a pattern match.
type PatternBox struct {
	StartIndex int
	EndIndex   int
	MaxHigh    float64
	MinLow     float64
	UID        string
	Name       string
	Direction  Direction
	Selected   bool
}

// Point is one overlay sample; a nil Y means no value at that bar.
type Point struct {
	X int      `json:"x"`
	Y *float64 `json:"y"`
}

// OverlaySeries is an optional secondary series drawn over the chart.
type OverlaySeries struct {
	Key       string
	Label     string
	Color     string
	Secondary bool // drawn on the 0-100 axis
	Points    []Point
	Visible   bool
	Primed    bool
}

// Factor names a market-breadth factor.
type Factor string

const (
	FactorMomentum Factor = "momentum"
	FactorBreadth  Factor = "breadth"
	FactorLowVol   Factor = "lowvol"
	FactorEqBond   Factor = "eqbond"
)

// AllFactors lists every factor in scoring order.
var AllFactors = []Factor{FactorMomentum, FactorBreadth, FactorLowVol, FactorEqBond}

// FactorPoint is a dated percentile reading.
type FactorPoint struct {
	Date  time.Time
	Value float64
}

// FactorSeries maps factor name to its ordered readings.
type FactorSeries map[Factor][]FactorPoint

// FactorSnapshot holds point-in-time readings. A missing key means no reading.
type FactorSnapshot map[Factor]float64

// DateLayout is the canonical textual date form.
const DateLayout = "2006-01-02"

// ParseDate parses a date using any of the '.', '-' or '/' delimiters.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) > 10 {
		s = s[:10]
	}
	norm := strings.NewReplacer(".", "-", "/", "-").Replace(s)
	t, err := time.Parse(DateLayout, norm)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// NormalizeDate rewrites a date string into the canonical form.
func NormalizeDate(s string) (string, error) {
	t, err := ParseDate(s)
	if err != nil {
		return "", err
	}
	return FormatDate(t), nil
}

// FormatDate formats a date in the canonical form.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}
