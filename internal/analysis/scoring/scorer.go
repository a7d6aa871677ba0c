// Package scoring turns a pattern match and a factor snapshot into a
// favorability score.
package scoring

import (
	"math"

	"candlelens/internal/models"
)

// Weights defines the weight of each factor in the composite.
type Weights struct {
	Momentum float64
	Breadth  float64
	LowVol   float64
	EqBond   float64
}

// DefaultWeights returns the default factor weights.
func DefaultWeights() Weights {
	return Weights{
		Momentum: 0.35,
		Breadth:  0.30,
		LowVol:   0.20,
		EqBond:   0.15,
	}
}

func (w Weights) of(f models.Factor) float64 {
	switch f {
	case models.FactorMomentum:
		return w.Momentum
	case models.FactorBreadth:
		return w.Breadth
	case models.FactorLowVol:
		return w.LowVol
	case models.FactorEqBond:
		return w.EqBond
	}
	return 0
}

// Params holds every constant of the model.
//
// The sign fields state whether a high percentile of that factor favours
// upside (+1) or downside (-1). Momentum has no sign field: its direction
// depends on the pattern class.
type Params struct {
	Weights        Weights
	TrendKappa     float64
	ReversalKappa  float64
	Spread         float64
	MinProbability float64
	MaxProbability float64
	BreadthSign    float64
	LowVolSign     float64
	EqBondSign     float64
}

// DefaultParams returns the default model constants.
func DefaultParams() Params {
	return Params{
		Weights:        DefaultWeights(),
		TrendKappa:     0.90,
		ReversalKappa:  0.75,
		Spread:         0.45,
		MinProbability: 0.05,
		MaxProbability: 0.95,
		BreadthSign:    1,
		LowVolSign:     1,
		EqBondSign:     1,
	}
}

// Result is the outcome of scoring one pattern.
type Result struct {
	Score       int                       `json:"score"`
	Band        Band                      `json:"band"`
	Composite   float64                   `json:"composite"`
	Probability float64                   `json:"probability"`
	Kappa       float64                   `json:"kappa"`
	Components  map[models.Factor]float64 `json:"components"`
	Snapshot    models.FactorSnapshot     `json:"snapshot"`
}

// Model scores pattern matches.
type Model struct {
	params Params
}

// NewModel creates a model with the given parameters.
func NewModel(params Params) *Model {
	return &Model{params: params}
}

// NewDefaultModel creates a model with the default parameters.
func NewDefaultModel() *Model {
	return NewModel(DefaultParams())
}

// Params returns the model constants.
func (m *Model) Params() Params {
	return m.params
}

// Score computes the favorability of match given the factor readings.
// A factor missing from snapshot contributes zero.
func (m *Model) Score(match models.PatternMatch, snapshot models.FactorSnapshot) Result {
	p := m.params

	d := 1.0
	if match.Direction != models.DirectionUp {
		d = -1
	}
	trend := match.Class == models.ClassTrend

	components := make(map[models.Factor]float64, len(models.AllFactors))
	var composite float64
	for _, f := range models.AllFactors {
		z := 0.0
		if v, ok := snapshot[f]; ok && !math.IsNaN(v) {
			z = (v - 50) / 50
		}

		var s float64
		switch f {
		case models.FactorMomentum:
			if trend {
				s = d * z
			} else {
				s = -d * z
			}
		case models.FactorBreadth:
			s = p.BreadthSign * d * z
		case models.FactorLowVol:
			s = p.LowVolSign * d * z
		case models.FactorEqBond:
			s = p.EqBondSign * d * z
		}

		components[f] = s
		composite += p.Weights.of(f) * s
	}

	kappa := p.ReversalKappa
	if trend {
		kappa = p.TrendKappa
	}

	prob := clamp(0.5+kappa*composite*p.Spread, p.MinProbability, p.MaxProbability)
	score := int(math.Round(prob * 100))

	return Result{
		Score:       score,
		Band:        BandFor(score),
		Composite:   composite,
		Probability: prob,
		Kappa:       kappa,
		Components:  components,
		Snapshot:    snapshot,
	}
}

// clamp restricts a value to a range.
func clamp(value, minVal, maxVal float64) float64 {
	if value < minVal {
		return minVal
	}
	if value > maxVal {
		return maxVal
	}
	return value
}
