package overlay

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"

	"candlelens/internal/analysis/indicators"
	apperrors "candlelens/internal/errors"
	"candlelens/internal/factors"
	"candlelens/internal/models"
)

// FuncFetcher adapts a function to Fetcher.
type FuncFetcher func(ctx context.Context, key string) ([]models.Point, error)

// Fetch implements Fetcher.
func (f FuncFetcher) Fetch(ctx context.Context, key string) ([]models.Point, error) {
	return f(ctx, key)
}

// Chain tries each fetcher in order, moving on when one does not know the key.
type Chain []Fetcher

// Fetch implements Fetcher.
func (c Chain) Fetch(ctx context.Context, key string) ([]models.Point, error) {
	for _, f := range c {
		points, err := f.Fetch(ctx, key)
		if errors.Is(err, apperrors.ErrUnknownOverlay) {
			continue
		}
		return points, err
	}
	return nil, apperrors.Wrapf(apperrors.ErrUnknownOverlay, "no source for overlay %q", key)
}

// Preload implements Preloader. Members are asked in order and earlier ones
// win: preloaders get the remaining keys as one batch, other fetchers are
// asked key by key. A key whose fetch fails is left for SetVisible.
func (c Chain) Preload(ctx context.Context, keys []string) map[string][]models.Point {
	out := make(map[string][]models.Point, len(keys))
	pending := append([]string(nil), keys...)

	for _, f := range c {
		if len(pending) == 0 {
			break
		}
		if p, ok := f.(Preloader); ok {
			for k, points := range p.Preload(ctx, pending) {
				out[k] = points
			}
			pending = lo.Filter(pending, func(k string, _ int) bool {
				_, done := out[k]
				return !done
			})
			continue
		}

		var next []string
		for _, k := range pending {
			points, err := f.Fetch(ctx, k)
			switch {
			case errors.Is(err, apperrors.ErrUnknownOverlay):
				next = append(next, k)
			case err == nil:
				out[k] = points
			}
		}
		pending = next
	}
	return out
}

// StaticFetcher serves overlay arrays that arrived with the price history.
type StaticFetcher map[string][]*float64

// Fetch implements Fetcher.
func (s StaticFetcher) Fetch(ctx context.Context, key string) ([]models.Point, error) {
	values, ok := s[key]
	if !ok {
		return nil, apperrors.ErrUnknownOverlay
	}
	return indicators.Points(values), nil
}

// LocalFetcher computes price overlays from the current bars.
type LocalFetcher struct {
	Engine *indicators.Engine
	Bars   func() []models.Bar
}

// Fetch implements Fetcher.
func (l LocalFetcher) Fetch(ctx context.Context, key string) ([]models.Point, error) {
	if !l.Engine.Has(key) {
		return nil, apperrors.ErrUnknownOverlay
	}
	bars := l.Bars()
	if len(bars) == 0 {
		return nil, apperrors.ErrNoChart
	}
	values, err := l.Engine.Calculate(ctx, key, bars)
	if err != nil {
		return nil, fmt.Errorf("computing %s: %w", key, err)
	}
	return indicators.Points(values), nil
}

// Preload implements Preloader, computing every known key concurrently.
func (l LocalFetcher) Preload(ctx context.Context, keys []string) map[string][]models.Point {
	bars := l.Bars()
	if len(bars) == 0 {
		return nil
	}
	values := l.Engine.CalculateSelected(ctx, bars, keys)
	out := make(map[string][]models.Point, len(values))
	for k, v := range values {
		out[k] = indicators.Points(v)
	}
	return out
}

// FactorFetcher aligns a cached factor series onto the current bar dates.
type FactorFetcher struct {
	Series func(ctx context.Context) (models.FactorSeries, error)
	Bars   func() []models.Bar
}

// Fetch implements Fetcher.
func (f FactorFetcher) Fetch(ctx context.Context, key string) ([]models.Point, error) {
	factor, ok := factorFor(key)
	if !ok {
		return nil, apperrors.ErrUnknownOverlay
	}
	series, err := f.Series(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading factors: %w", err)
	}
	return factors.Align(series[factor], f.Bars()), nil
}

func factorFor(key string) (models.Factor, bool) {
	for _, f := range models.AllFactors {
		if string(f) == key {
			return f, true
		}
	}
	return "", false
}
