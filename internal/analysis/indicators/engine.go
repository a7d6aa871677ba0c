// Package indicators computes price overlays locally from bars.
package indicators

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"candlelens/internal/models"
)

// Indicator computes one overlay series. Positions without a value are nil.
type Indicator interface {
	Name() string
	Period() int
	Calculate(bars []models.Bar) ([]*float64, error)
}

// Engine holds registered indicators and computes them with a worker pool.
type Engine struct {
	workers    int
	indicators map[string]Indicator
	mu         sync.RWMutex
}

// NewEngine creates a new indicator engine with the specified number of workers.
func NewEngine(workers int) *Engine {
	if workers <= 0 {
		workers = 4
	}
	return &Engine{
		workers:    workers,
		indicators: make(map[string]Indicator),
	}
}

// NewDefaultEngine returns an engine with every price overlay registered.
func NewDefaultEngine() *Engine {
	e := NewEngine(4)
	for _, p := range []int{5, 20, 60, 120} {
		e.Register(NewSMA(p))
	}
	e.Register(NewBollinger(BandUpper, 20, 2))
	e.Register(NewBollinger(BandLower, 20, 2))
	e.Register(NewEnvelope(BandUpper, 20, 0.10))
	e.Register(NewEnvelope(BandLower, 20, 0.10))
	e.Register(NewSAR(0.02, 0.2))
	return e
}

// Register registers an indicator under its name.
func (e *Engine) Register(ind Indicator) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.indicators[ind.Name()] = ind
}

// Has reports whether name is registered.
func (e *Engine) Has(name string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.indicators[name]
	return ok
}

// Calculate calculates a specific indicator by name.
func (e *Engine) Calculate(ctx context.Context, name string, bars []models.Bar) ([]*float64, error) {
	e.mu.RLock()
	ind, ok := e.indicators[name]
	e.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("indicator %s not found", name)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
		return ind.Calculate(bars)
	}
}

// CalculateSelected calculates the named indicators in parallel. Unknown
// names and failed calculations are left out of the result.
func (e *Engine) CalculateSelected(ctx context.Context, bars []models.Bar, names []string) map[string][]*float64 {
	e.mu.RLock()
	selected := make([]Indicator, 0, len(names))
	for _, name := range names {
		if ind, ok := e.indicators[name]; ok {
			selected = append(selected, ind)
		}
	}
	e.mu.RUnlock()

	results := make(map[string][]*float64)
	var mu sync.Mutex
	var wg sync.WaitGroup

	work := make(chan Indicator, len(selected))

	for i := 0; i < e.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ind := range work {
				select {
				case <-ctx.Done():
					return
				default:
					values, err := ind.Calculate(bars)
					if err == nil {
						mu.Lock()
						results[ind.Name()] = values
						mu.Unlock()
					}
				}
			}
		}()
	}

	for _, ind := range selected {
		work <- ind
	}
	close(work)

	wg.Wait()

	return results
}

// List returns the registered indicator names in sorted order.
func (e *Engine) List() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.indicators))
	for name := range e.indicators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
