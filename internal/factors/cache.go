// Package factors caches market-breadth factor series and answers
// point-in-time lookups against them.
package factors

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"candlelens/internal/models"
)

// Loader fetches the factor series for an instrument and window.
type Loader interface {
	LoadFactors(ctx context.Context, instrumentID, asOf string, windowDays int) (models.FactorSeries, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, instrumentID, asOf string, windowDays int) (models.FactorSeries, error)

// LoadFactors implements Loader.
func (f LoaderFunc) LoadFactors(ctx context.Context, instrumentID, asOf string, windowDays int) (models.FactorSeries, error) {
	return f(ctx, instrumentID, asOf, windowDays)
}

// Future is the eventual result of a factor load.
type Future struct {
	done   chan struct{}
	series models.FactorSeries
	err    error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Wait blocks until the result is available or ctx ends.
func (f *Future) Wait(ctx context.Context) (models.FactorSeries, error) {
	select {
	case <-f.done:
		return f.series, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type state int

const (
	statePending state = iota
	stateResolved
)

type entry struct {
	state  state
	future *Future
}

// Cache coalesces factor loads per (instrument, as-of date, window) key.
// Resolved entries are kept for the lifetime of the cache; failed loads are
// forgotten so the next Get retries.
type Cache struct {
	loader  Loader
	logger  zerolog.Logger
	mu      sync.Mutex
	entries map[string]*entry
}

// NewCache creates a cache backed by loader.
func NewCache(loader Loader, logger zerolog.Logger) *Cache {
	return &Cache{
		loader:  loader,
		logger:  logger.With().Str("component", "factor_cache").Logger(),
		entries: make(map[string]*entry),
	}
}

// Key returns the cache key for an instrument, as-of date and window.
func Key(instrumentID, asOf string, windowDays int) string {
	return fmt.Sprintf("%s-%s-%d", instrumentID, asOf, windowDays)
}

// Get returns the future for the key, starting a load when none is
// resolved or in flight. Concurrent callers share one load.
func (c *Cache) Get(instrumentID, asOf string, windowDays int) *Future {
	key := Key(instrumentID, asOf, windowDays)

	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return e.future
	}
	e := &entry{state: statePending, future: newFuture()}
	c.entries[key] = e
	c.mu.Unlock()

	go c.load(key, e, instrumentID, asOf, windowDays)
	return e.future
}

func (c *Cache) load(key string, e *entry, instrumentID, asOf string, windowDays int) {
	series, err := c.loader.LoadFactors(context.Background(), instrumentID, asOf, windowDays)

	c.mu.Lock()
	if err != nil {
		if c.entries[key] == e {
			delete(c.entries, key)
		}
		c.logger.Warn().Err(err).Str("key", key).Msg("Factor load failed")
	} else {
		e.state = stateResolved
		c.logger.Debug().Str("key", key).Msg("Factor series cached")
	}
	e.future.series, e.future.err = series, err
	c.mu.Unlock()

	close(e.future.done)
}

// Series is the blocking form of Get.
func (c *Cache) Series(ctx context.Context, instrumentID, asOf string, windowDays int) (models.FactorSeries, error) {
	return c.Get(instrumentID, asOf, windowDays).Wait(ctx)
}

// Peek returns a resolved series without starting a load.
func (c *Cache) Peek(instrumentID, asOf string, windowDays int) (models.FactorSeries, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[Key(instrumentID, asOf, windowDays)]
	if !ok || e.state != stateResolved {
		return nil, false
	}
	return e.future.series, true
}

// Len returns the number of pending and resolved entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
