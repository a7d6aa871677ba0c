package indicators

import (
	"errors"
	"fmt"

	"github.com/markcheno/go-talib"

	"candlelens/internal/models"
)

var (
	// ErrInsufficientData is returned when there's not enough data for calculation.
	ErrInsufficientData = errors.New("insufficient data for calculation")
	// ErrInvalidPeriod is returned when the period is invalid.
	ErrInvalidPeriod = errors.New("invalid period")
)

// Band selects the upper or lower line of a channel indicator.
type Band string

const (
	BandUpper Band = "upper"
	BandLower Band = "lower"
)

// SMA is a simple moving average of closes.
type SMA struct {
	period int
}

// NewSMA creates a new SMA indicator.
func NewSMA(period int) *SMA {
	return &SMA{period: period}
}

func (s *SMA) Name() string { return fmt.Sprintf("ma%d", s.period) }

func (s *SMA) Period() int { return s.period }

func (s *SMA) Calculate(bars []models.Bar) ([]*float64, error) {
	if s.period <= 0 {
		return nil, ErrInvalidPeriod
	}
	if len(bars) < s.period {
		return nil, ErrInsufficientData
	}
	return warmup(talib.Sma(closes(bars), s.period), s.period-1), nil
}

// Bollinger is one line of SMA-based Bollinger bands.
type Bollinger struct {
	band   Band
	period int
	k      float64
}

// NewBollinger creates a Bollinger band line with k standard deviations.
func NewBollinger(band Band, period int, k float64) *Bollinger {
	return &Bollinger{band: band, period: period, k: k}
}

func (b *Bollinger) Name() string {
	if b.band == BandUpper {
		return "bb_upper"
	}
	return "bb_lower"
}

func (b *Bollinger) Period() int { return b.period }

func (b *Bollinger) Calculate(bars []models.Bar) ([]*float64, error) {
	if b.period <= 1 {
		return nil, ErrInvalidPeriod
	}
	if len(bars) < b.period {
		return nil, ErrInsufficientData
	}
	upper, _, lower := talib.BBands(closes(bars), b.period, b.k, b.k, talib.SMA)
	if b.band == BandUpper {
		return warmup(upper, b.period-1), nil
	}
	return warmup(lower, b.period-1), nil
}

// Envelope is an SMA shifted up or down by a fixed percentage.
type Envelope struct {
	band   Band
	period int
	pct    float64
}

// NewEnvelope creates an envelope line at pct away from the SMA.
func NewEnvelope(band Band, period int, pct float64) *Envelope {
	return &Envelope{band: band, period: period, pct: pct}
}

func (e *Envelope) Name() string {
	if e.band == BandUpper {
		return "envelope_upper"
	}
	return "envelope_lower"
}

func (e *Envelope) Period() int { return e.period }

func (e *Envelope) Calculate(bars []models.Bar) ([]*float64, error) {
	if e.period <= 0 {
		return nil, ErrInvalidPeriod
	}
	if len(bars) < e.period {
		return nil, ErrInsufficientData
	}
	factor := 1 + e.pct
	if e.band == BandLower {
		factor = 1 - e.pct
	}
	ma := talib.Sma(closes(bars), e.period)
	for i := range ma {
		ma[i] *= factor
	}
	return warmup(ma, e.period-1), nil
}

// SAR is the parabolic stop-and-reverse.
type SAR struct {
	acceleration float64
	maximum      float64
}

// NewSAR creates a parabolic SAR with the given acceleration step and cap.
func NewSAR(acceleration, maximum float64) *SAR {
	return &SAR{acceleration: acceleration, maximum: maximum}
}

func (s *SAR) Name() string { return "psar" }

func (s *SAR) Period() int { return 2 }

func (s *SAR) Calculate(bars []models.Bar) ([]*float64, error) {
	if len(bars) < 2 {
		return nil, ErrInsufficientData
	}
	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	for i, b := range bars {
		highs[i], lows[i] = b.High, b.Low
	}
	return warmup(talib.Sar(highs, lows, s.acceleration, s.maximum), 1), nil
}

func closes(bars []models.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// warmup converts talib output to optional values, blanking the first skip
// positions that talib leaves as zero.
func warmup(values []float64, skip int) []*float64 {
	out := make([]*float64, len(values))
	for i := skip; i < len(values); i++ {
		v := values[i]
		out[i] = &v
	}
	return out
}

// Points pairs optional values with their bar index.
func Points(values []*float64) []models.Point {
	pts := make([]models.Point, len(values))
	for i, v := range values {
		pts[i] = models.Point{X: i, Y: v}
	}
	return pts
}
