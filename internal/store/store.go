// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"candlelens/internal/analysis/scoring"
	"candlelens/internal/models"
)

// ScoreJournal records pattern scores so they can be reviewed later.
type ScoreJournal interface {
	SaveScore(ctx context.Context, rec *ScoreRecord) error
	ListScores(ctx context.Context, filter ScoreFilter) ([]ScoreRecord, error)

	// Lifecycle
	Close() error
}

// ScoreRecord is one journaled score. Factor readings are nil when the
// snapshot had no value for that factor.
type ScoreRecord struct {
	ID          int64               `json:"id"`
	Instrument  string              `json:"instrument"`
	PatternUID  string              `json:"pattern_uid"`
	PatternName string              `json:"pattern_name"`
	Direction   models.Direction    `json:"direction"`
	Class       models.PatternClass `json:"clazz"`
	EndDate     string              `json:"end_date"`
	Score       int                 `json:"score"`
	Band        scoring.Band        `json:"band"`
	Momentum    *float64            `json:"momentum"`
	Breadth     *float64            `json:"breadth"`
	LowVol      *float64            `json:"lowvol"`
	EqBond      *float64            `json:"eqbond"`
	CreatedAt   time.Time           `json:"created_at"`
}

// NewScoreRecord builds a journal record from a scored match.
func NewScoreRecord(instrument string, match models.PatternMatch, res scoring.Result) *ScoreRecord {
	reading := func(f models.Factor) *float64 {
		v, ok := res.Snapshot[f]
		if !ok {
			return nil
		}
		return &v
	}
	return &ScoreRecord{
		Instrument:  instrument,
		PatternUID:  match.UID(),
		PatternName: match.Name,
		Direction:   match.Direction,
		Class:       match.Class,
		EndDate:     match.EndDate,
		Score:       res.Score,
		Band:        res.Band,
		Momentum:    reading(models.FactorMomentum),
		Breadth:     reading(models.FactorBreadth),
		LowVol:      reading(models.FactorLowVol),
		EqBond:      reading(models.FactorEqBond),
	}
}

// ScoreFilter represents filters for querying journaled scores.
type ScoreFilter struct {
	Instrument string
	PatternUID string
	MinScore   int
	Since      time.Time
	Limit      int
}
