// Package overlay manages the lifecycle of optional chart overlays: lazy
// fetching on first show, in-flight de-duplication and generation resets.
package overlay

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	apperrors "candlelens/internal/errors"
	"candlelens/internal/models"
)

// Definition describes a known overlay kind.
type Definition struct {
	Key       string `json:"key"`
	Label     string `json:"label"`
	Color     string `json:"color"`
	Secondary bool   `json:"secondary"`
}

// Definitions lists every overlay kind in drawing order.
var Definitions = []Definition{
	{Key: "ma5", Label: "MA5", Color: "#e17055"},
	{Key: "ma20", Label: "MA20", Color: "#fdcb6e"},
	{Key: "ma60", Label: "MA60", Color: "#00b894"},
	{Key: "ma120", Label: "MA120", Color: "#6c5ce7"},
	{Key: "bb_upper", Label: "BB Upper", Color: "#636e72"},
	{Key: "bb_lower", Label: "BB Lower", Color: "#636e72"},
	{Key: "envelope_upper", Label: "Envelope Upper", Color: "#a29bfe"},
	{Key: "envelope_lower", Label: "Envelope Lower", Color: "#a29bfe"},
	{Key: "psar", Label: "PSAR", Color: "#d63031"},
	{Key: "breadth", Label: "BREADTH", Color: "#7e57c2", Secondary: true},
	{Key: "lowvol", Label: "LOWVOL", Color: "#26a69a", Secondary: true},
	{Key: "momentum", Label: "MOMENTUM", Color: "#ff7043", Secondary: true},
	{Key: "eqbond", Label: "EQBOND", Color: "#546e7a", Secondary: true},
}

// Keys returns every known overlay key in drawing order.
func Keys() []string {
	keys := make([]string, len(Definitions))
	for i, d := range Definitions {
		keys[i] = d.Key
	}
	return keys
}

// Fetcher loads the points of one overlay.
type Fetcher interface {
	Fetch(ctx context.Context, key string) ([]models.Point, error)
}

// Preloader is implemented by fetchers that can produce several overlays in
// one pass. Keys missing from the result are fetched one by one.
type Preloader interface {
	Preload(ctx context.Context, keys []string) map[string][]models.Point
}

type call struct {
	done chan struct{}
	err  error
}

// Manager owns one OverlaySeries per known kind.
type Manager struct {
	fetcher Fetcher
	logger  zerolog.Logger

	mu         sync.Mutex
	series     map[string]*models.OverlaySeries
	inflight   map[string]*call
	generation uint64
}

// NewManager creates a manager with every overlay hidden and unprimed.
func NewManager(fetcher Fetcher, logger zerolog.Logger) *Manager {
	m := &Manager{
		fetcher:  fetcher,
		logger:   logger.With().Str("component", "overlay").Logger(),
		series:   make(map[string]*models.OverlaySeries, len(Definitions)),
		inflight: make(map[string]*call),
	}
	m.resetLocked()
	return m
}

func (m *Manager) resetLocked() {
	for _, d := range Definitions {
		m.series[d.Key] = &models.OverlaySeries{
			Key:       d.Key,
			Label:     d.Label,
			Color:     d.Color,
			Secondary: d.Secondary,
			Points:    []models.Point{},
		}
	}
	m.inflight = make(map[string]*call)
}

// SetVisible shows or hides an overlay. Showing an unprimed overlay fetches
// its points, or joins the fetch already in flight for that key. Hiding keeps
// the points. A failed fetch leaves the overlay hidden and unprimed.
func (m *Manager) SetVisible(ctx context.Context, key string, visible bool) error {
	m.mu.Lock()
	s, ok := m.series[key]
	if !ok {
		m.mu.Unlock()
		return apperrors.Wrapf(apperrors.ErrUnknownOverlay, "overlay %q", key)
	}

	s.Visible = visible
	if !visible || s.Primed {
		m.mu.Unlock()
		return nil
	}

	if c, ok := m.inflight[key]; ok {
		m.mu.Unlock()
		return c.wait(ctx)
	}

	c := &call{done: make(chan struct{})}
	m.inflight[key] = c
	gen := m.generation
	m.mu.Unlock()

	points, err := m.fetcher.Fetch(ctx, key)

	m.mu.Lock()
	if m.inflight[key] == c {
		delete(m.inflight, key)
	}
	switch {
	case gen != m.generation:
		err = apperrors.ErrStaleResult
		m.logger.Debug().Str("overlay", key).Msg("Discarding overlay from previous generation")
	case err != nil:
		s.Visible = false
		s.Primed = false
		m.logger.Warn().Err(err).Str("overlay", key).Msg("Overlay fetch failed")
	default:
		s.Points = points
		s.Primed = true
		m.logger.Debug().Str("overlay", key).Int("points", len(points)).Msg("Overlay primed")
	}
	c.err = err
	m.mu.Unlock()

	close(c.done)
	return err
}

func (c *call) wait(ctx context.Context) error {
	select {
	case <-c.done:
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Apply sets visibility for every key in flags. Keys are processed in
// sorted order; all errors are joined.
func (m *Manager) Apply(ctx context.Context, flags map[string]bool) error {
	keys := make([]string, 0, len(flags))
	for k := range flags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	m.preload(ctx, keys, flags)

	var errs []error
	for _, k := range keys {
		if err := m.SetVisible(ctx, k, flags[k]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// preload primes the shown, unprimed overlays in one batch when the fetcher
// supports it.
func (m *Manager) preload(ctx context.Context, keys []string, flags map[string]bool) {
	p, ok := m.fetcher.(Preloader)
	if !ok {
		return
	}

	m.mu.Lock()
	var want []string
	for _, k := range keys {
		s, known := m.series[k]
		if !known || !flags[k] || s.Primed {
			continue
		}
		if _, busy := m.inflight[k]; !busy {
			want = append(want, k)
		}
	}
	gen := m.generation
	m.mu.Unlock()
	if len(want) < 2 {
		return
	}

	got := p.Preload(ctx, want)

	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.generation {
		return
	}
	for k, points := range got {
		s, known := m.series[k]
		if !known || s.Primed {
			continue
		}
		s.Points = points
		s.Primed = true
	}
	m.logger.Debug().Int("requested", len(want)).Int("primed", len(got)).Msg("Overlays preloaded")
}

// Reset discards every overlay's points and starts a new generation so that
// fetches still running for the old one are dropped. Overlays that were
// visible are fetched again.
func (m *Manager) Reset(ctx context.Context) error {
	m.mu.Lock()
	var visible []string
	for _, d := range Definitions {
		if m.series[d.Key].Visible {
			visible = append(visible, d.Key)
		}
	}
	m.generation++
	m.resetLocked()
	m.mu.Unlock()

	flags := make(map[string]bool, len(visible))
	for _, k := range visible {
		flags[k] = true
	}
	return m.Apply(ctx, flags)
}

// Clear hides every overlay and drops all points.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generation++
	m.resetLocked()
}

// Get returns a copy of one overlay's state.
func (m *Manager) Get(key string) (models.OverlaySeries, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.series[key]
	if !ok {
		return models.OverlaySeries{}, false
	}
	return copySeries(s), true
}

// Series returns a copy of every overlay in drawing order.
func (m *Manager) Series() []models.OverlaySeries {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.OverlaySeries, 0, len(Definitions))
	for _, d := range Definitions {
		out = append(out, copySeries(m.series[d.Key]))
	}
	return out
}

// Generation returns the current reset generation.
func (m *Manager) Generation() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generation
}

func copySeries(s *models.OverlaySeries) models.OverlaySeries {
	c := *s
	c.Points = make([]models.Point, len(s.Points))
	copy(c.Points, s.Points)
	return c
}
