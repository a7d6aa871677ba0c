// Package session holds the state of one chart view: the loaded bars, the
// detected patterns and their selection, the overlays and the factor cache.
// Every mutation goes through the session so that late remote results can be
// recognized and dropped.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"candlelens/internal/analysis/indicators"
	"candlelens/internal/analysis/scoring"
	"candlelens/internal/candle"
	"candlelens/internal/config"
	"candlelens/internal/datasource"
	apperrors "candlelens/internal/errors"
	"candlelens/internal/factors"
	"candlelens/internal/geometry"
	"candlelens/internal/logging"
	"candlelens/internal/models"
	"candlelens/internal/overlay"
	"candlelens/internal/store"
)

// Source is the remote data the session needs.
type Source interface {
	History(ctx context.Context, instrument string, days int, opts datasource.HistoryOptions) (*datasource.History, error)
	DetectPatterns(ctx context.Context, instrument string, days int, kinds []models.PatternKind) ([]models.PatternMatch, error)
	LatestTradingDate(ctx context.Context) (string, error)
}

// Options wires a session to its collaborators. Journal and Engine are
// optional.
type Options struct {
	Source  Source
	Factors *factors.Cache
	Model   *scoring.Model
	Journal store.ScoreJournal
	Engine  *indicators.Engine
	Chart   config.ChartConfig
	Logger  zerolog.Logger
}

// Session is one chart view.
type Session struct {
	id      string
	source  Source
	factors *factors.Cache
	model   *scoring.Model
	journal store.ScoreJournal
	chart   config.ChartConfig
	logger  zerolog.Logger

	overlays *overlay.Manager

	mu         sync.RWMutex
	loaded     bool
	instrument string
	days       int
	asOf       string
	bars       []models.Bar
	static     map[string][]*float64
	matches    []models.PatternMatch
	boxes      []models.PatternBox
	selected   string
	loadSeq    uint64
	detectSeq  uint64
}

// New creates an empty session.
func New(opts Options) *Session {
	id := uuid.NewString()
	s := &Session{
		id:      id,
		source:  opts.Source,
		factors: opts.Factors,
		model:   opts.Model,
		journal: opts.Journal,
		chart:   opts.Chart,
		logger:  logging.WithSession(opts.Logger, id),
	}
	if s.model == nil {
		s.model = scoring.NewDefaultModel()
	}
	if s.factors == nil {
		s.factors = factors.NewCache(factors.LoaderFunc(func(context.Context, string, string, int) (models.FactorSeries, error) {
			return nil, apperrors.ErrCacheMiss
		}), s.logger)
	}
	engine := opts.Engine
	if engine == nil {
		engine = indicators.NewDefaultEngine()
	}

	s.overlays = overlay.NewManager(overlay.Chain{
		overlay.FuncFetcher(s.fetchStatic),
		overlay.LocalFetcher{Engine: engine, Bars: s.Bars},
		overlay.FactorFetcher{Series: s.factorSeries, Bars: s.Bars},
	}, s.logger)
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Load fetches the price history for instrument over the last days trading
// days and makes it the current chart. Patterns, selection and overlays of the
// previous chart are reset; overlays that were visible are fetched again.
// On any error the previous chart is left untouched.
func (s *Session) Load(ctx context.Context, instrument string, days int) error {
	if instrument == "" {
		return apperrors.NewValidationError("instrument", instrument, "instrument is required")
	}
	if err := s.chart.ValidateDays(days); err != nil {
		return err
	}

	s.mu.Lock()
	s.loadSeq++
	seq := s.loadSeq
	s.mu.Unlock()

	logger := logging.WithInstrument(logging.WithOperation(s.logger, "load"), instrument)
	start := time.Now()

	var (
		history *datasource.History
		latest  string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		h, err := s.source.History(gctx, instrument, days, datasource.HistoryOptions{
			MovingAverages: true,
			Bollinger:      true,
			PSAR:           true,
		})
		if err != nil {
			return err
		}
		history = h
		return nil
	})
	g.Go(func() error {
		d, err := s.source.LatestTradingDate(gctx)
		if err != nil {
			// the last bar date stands in
			logger.Warn().Err(err).Msg("Latest trading date unavailable")
			return nil
		}
		latest = d
		return nil
	})
	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("Chart load failed")
		return err
	}

	bars := candle.Build(history.Series)
	if latest == "" && len(bars) > 0 {
		latest = bars[len(bars)-1].Label
	}

	s.mu.Lock()
	if seq != s.loadSeq {
		s.mu.Unlock()
		logger.Debug().Uint64("seq", seq).Msg("Discarding superseded chart load")
		return apperrors.ErrStaleResult
	}
	s.loaded = true
	s.instrument = instrument
	s.days = days
	s.asOf = latest
	s.bars = bars
	s.static = history.Overlays
	s.matches = nil
	s.boxes = nil
	s.selected = ""
	s.detectSeq++
	s.mu.Unlock()

	if candle.HasHalt(bars) {
		logger.Warn().Msg("Zero-volume bars present, trading may have been halted")
	}
	logger.Info().
		Int("bars", len(bars)).
		Str("as_of", latest).
		Dur("duration", time.Since(start)).
		Msg("Chart loaded")

	if latest != "" {
		s.factors.Get(instrument, latest, days)
	}

	if err := s.overlays.Reset(ctx); err != nil {
		logger.Warn().Err(err).Msg("Some overlays could not be restored")
	}
	return nil
}

// Detect asks for patterns of the given kinds on the current chart and
// replaces the previous matches. The selection is cleared.
func (s *Session) Detect(ctx context.Context, kinds []models.PatternKind) ([]models.PatternMatch, error) {
	if len(kinds) == 0 {
		return nil, apperrors.ErrNoPatternKinds
	}

	s.mu.Lock()
	if !s.loaded {
		s.mu.Unlock()
		return nil, apperrors.ErrNoChart
	}
	s.detectSeq++
	seq, loadSeq := s.detectSeq, s.loadSeq
	instrument, days := s.instrument, s.days
	s.mu.Unlock()

	logger := logging.WithInstrument(logging.WithOperation(s.logger, "detect"), instrument)

	matches, err := s.source.DetectPatterns(ctx, instrument, days, kinds)
	if err != nil {
		logger.Error().Err(err).Msg("Pattern detection failed")
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.detectSeq || loadSeq != s.loadSeq {
		logger.Debug().Uint64("seq", seq).Msg("Discarding superseded pattern result")
		return nil, apperrors.ErrStaleResult
	}
	s.matches = matches
	s.boxes = geometry.BuildBoxes(s.bars, matches)
	s.selected = ""

	logger.Info().Int("matches", len(matches)).Int("boxes", len(s.boxes)).Msg("Patterns detected")
	return append([]models.PatternMatch(nil), matches...), nil
}

// Select toggles the selection of the pattern with the given uid and returns
// the uid now selected, empty when the toggle cleared it.
func (s *Session) Select(uid string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if uid == "" || s.selected == uid {
		s.selected = ""
		return "", nil
	}
	if _, ok := lo.Find(s.boxes, func(b models.PatternBox) bool { return b.UID == uid }); !ok {
		return s.selected, apperrors.Wrapf(apperrors.ErrPatternNotFound, "pattern %q", uid)
	}
	s.selected = uid
	return uid, nil
}

// Score rates the pattern with the given uid against the factor readings at
// its end date. Factors that cannot be loaded count as neutral. The result is
// journaled when a journal is configured.
func (s *Session) Score(ctx context.Context, uid string) (scoring.Result, error) {
	s.mu.RLock()
	match, ok := lo.Find(s.matches, func(m models.PatternMatch) bool { return m.UID() == uid })
	instrument, days, asOf := s.instrument, s.days, s.asOf
	target := s.targetDateLocked(match)
	s.mu.RUnlock()

	if !ok {
		return scoring.Result{}, apperrors.Wrapf(apperrors.ErrPatternNotFound, "pattern %q", uid)
	}

	logger := logging.WithInstrument(logging.WithOperation(s.logger, "score"), instrument)

	var snapshot models.FactorSnapshot
	series, err := s.factors.Series(ctx, instrument, asOf, days)
	if err != nil {
		logger.Warn().Err(err).Msg("Factor series unavailable, scoring with neutral readings")
		snapshot = models.FactorSnapshot{}
	} else {
		snapshot = factors.Snapshot(series, target)
	}

	res := s.model.Score(match, snapshot)
	logging.LogScore(logger, instrument, match.Name, res.Score, string(res.Band))

	if s.journal != nil {
		if err := s.journal.SaveScore(ctx, store.NewScoreRecord(instrument, match, res)); err != nil {
			logger.Warn().Err(err).Msg("Failed to journal score")
		}
	}
	return res, nil
}

// targetDateLocked picks the date a pattern is scored at: its end date, the
// date of its end bar, or the last bar.
func (s *Session) targetDateLocked(m models.PatternMatch) time.Time {
	if t, err := models.ParseDate(m.EndDate); err == nil {
		return t
	}
	if len(s.bars) == 0 {
		return time.Time{}
	}
	i := m.EndIndex
	if i < 0 || i >= len(s.bars) {
		i = len(s.bars) - 1
	}
	return s.bars[i].Date
}

// SetOverlay shows or hides one overlay.
func (s *Session) SetOverlay(ctx context.Context, key string, visible bool) error {
	return s.overlays.SetVisible(ctx, key, visible)
}

// ApplyOverlays applies an overlay configuration record.
func (s *Session) ApplyOverlays(ctx context.Context, flags map[string]bool) error {
	return s.overlays.Apply(ctx, flags)
}

// Overlays returns the state of every overlay.
func (s *Session) Overlays() []models.OverlaySeries {
	return s.overlays.Series()
}

// Draw produces the instructions for the current frame. The selection and
// visible overlays of the session override those in opts.
func (s *Session) Draw(mapper geometry.Mapper, opts geometry.Options) []geometry.Instruction {
	visible := lo.Filter(s.overlays.Series(), func(o models.OverlaySeries, _ int) bool { return o.Visible })

	s.mu.RLock()
	defer s.mu.RUnlock()
	opts.SelectedUID = s.selected
	opts.Overlays = visible
	return geometry.Draw(s.bars, s.boxes, mapper, opts)
}

// Bars returns the current bars.
func (s *Session) Bars() []models.Bar {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Bar(nil), s.bars...)
}

// Boxes returns the current pattern boxes with the selection applied.
func (s *Session) Boxes() []models.PatternBox {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return geometry.ApplySelection(s.boxes, s.selected)
}

// Matches returns the current pattern matches.
func (s *Session) Matches() []models.PatternMatch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.PatternMatch(nil), s.matches...)
}

// Selected returns the selected pattern uid.
func (s *Session) Selected() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected
}

// Instrument returns the loaded instrument and window.
func (s *Session) Instrument() (string, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.instrument, s.days
}

// AsOf returns the latest trading date of the loaded chart.
func (s *Session) AsOf() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.asOf
}

// HasHalt reports whether the loaded chart contains zero-volume bars.
func (s *Session) HasHalt() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return candle.HasHalt(s.bars)
}

// Extremes returns the price extremes of the loaded chart.
func (s *Session) Extremes() candle.Extremes {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return candle.FindExtremes(s.bars)
}

func (s *Session) fetchStatic(ctx context.Context, key string) ([]models.Point, error) {
	s.mu.RLock()
	values, ok := s.static[key]
	n := len(s.bars)
	s.mu.RUnlock()
	if !ok || len(values) != n {
		return nil, apperrors.ErrUnknownOverlay
	}
	return overlay.StaticFetcher{key: values}.Fetch(ctx, key)
}

func (s *Session) factorSeries(ctx context.Context) (models.FactorSeries, error) {
	s.mu.RLock()
	loaded, instrument, days, asOf := s.loaded, s.instrument, s.days, s.asOf
	s.mu.RUnlock()
	if !loaded {
		return nil, apperrors.ErrNoChart
	}
	return s.factors.Series(ctx, instrument, asOf, days)
}
