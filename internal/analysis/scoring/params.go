package scoring

import "candlelens/internal/config"

// ParamsFromConfig builds model constants from the [scoring] config section.
func ParamsFromConfig(c config.ScoringConfig) Params {
	return Params{
		Weights: Weights{
			Momentum: c.MomentumWeight,
			Breadth:  c.BreadthWeight,
			LowVol:   c.LowVolWeight,
			EqBond:   c.EqBondWeight,
		},
		TrendKappa:     c.TrendKappa,
		ReversalKappa:  c.ReversalKappa,
		Spread:         c.Spread,
		MinProbability: c.MinProbability,
		MaxProbability: c.MaxProbability,
		BreadthSign:    c.BreadthSign,
		LowVolSign:     c.LowVolSign,
		EqBondSign:     c.EqBondSign,
	}
}
