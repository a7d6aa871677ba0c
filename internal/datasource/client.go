// Package datasource talks to the remote chart data service.
package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"candlelens/internal/config"
	apperrors "candlelens/internal/errors"
	"candlelens/internal/logging"
	"candlelens/internal/models"
	"candlelens/internal/respcache"
)

const (
	endpointOHLC       = "/get_ohlc_history"
	endpointPatterns   = "/detect_patterns"
	endpointMetrics    = "/get_metrics"
	endpointLatestDate = "/get_latest_trading_date"
)

// History is a price history with any overlay arrays the service attached.
type History struct {
	Series   models.OHLCSeries
	Overlays map[string][]*float64
}

// HistoryOptions asks the service to attach overlay arrays.
type HistoryOptions struct {
	MovingAverages bool
	Bollinger      bool
	PSAR           bool
}

// Client is the chart data service client.
type Client struct {
	http       *resty.Client
	cache      respcache.Cache
	ttl        time.Duration
	minPeriods int
	logger     zerolog.Logger
}

// NewClient creates a client for the configured service. A nil cache
// disables response caching.
func NewClient(cfg config.DataSourceConfig, cache respcache.Cache, ttl time.Duration, logger zerolog.Logger) *Client {
	if cache == nil {
		cache = respcache.Nop{}
	}
	http := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader("Accept", "application/json")
	if cfg.Timeout > 0 {
		http.SetTimeout(cfg.Timeout)
	}
	if cfg.UserAgent != "" {
		http.SetHeader("User-Agent", cfg.UserAgent)
	}
	minp := cfg.MinPeriods
	if minp <= 0 {
		minp = 5
	}
	return &Client{
		http:       http,
		cache:      cache,
		ttl:        ttl,
		minPeriods: minp,
		logger:     logger.With().Str("component", "datasource").Logger(),
	}
}

// History fetches the price history for an instrument. Responses are served
// from the response cache when present.
func (c *Client) History(ctx context.Context, instrument string, days int, opts HistoryOptions) (*History, error) {
	form := map[string]string{
		"code":      instrument,
		"days":      strconv.Itoa(days),
		"ma":        strconv.FormatBool(opts.MovingAverages),
		"bollinger": strconv.FormatBool(opts.Bollinger),
		"psar":      strconv.FormatBool(opts.PSAR),
	}
	cacheKey := fmt.Sprintf("ohlc:%s:%d:%t:%t:%t", instrument, days, opts.MovingAverages, opts.Bollinger, opts.PSAR)

	body, hit := c.cached(ctx, cacheKey)
	if !hit {
		var err error
		body, err = c.do(ctx, endpointOHLC, func(r *resty.Request) (*resty.Response, error) {
			return r.SetFormData(form).Post(endpointOHLC)
		})
		if err != nil {
			return nil, err
		}
	}

	h, err := parseHistory(instrument, body)
	if err != nil {
		return nil, err
	}

	if !hit {
		if err := c.cache.Set(ctx, cacheKey, body, c.ttl); err != nil {
			c.logger.Warn().Err(err).Str("key", cacheKey).Msg("Response cache write failed")
		}
	}
	return h, nil
}

func parseHistory(instrument string, body []byte) (*History, error) {
	var resp ohlcResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, apperrors.NewDataError("ohlc", instrument, "decoding response", fmt.Errorf("%w: %v", apperrors.ErrMalformedResponse, err))
	}
	if resp.Error != "" {
		return nil, apperrors.NewDataError("ohlc", instrument, resp.Error, apperrors.ErrRemote)
	}

	required := map[string]bool{
		"dates":   resp.Dates != nil,
		"opens":   resp.Opens != nil,
		"closes":  resp.Closes != nil,
		"highs":   resp.Highs != nil,
		"lows":    resp.Lows != nil,
		"volumes": resp.Volumes != nil,
	}
	var missing []string
	for name, ok := range required {
		if !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, apperrors.NewDataError("ohlc", instrument, "missing "+strings.Join(missing, ", "), apperrors.ErrMalformedResponse)
	}

	dates := make([]string, len(resp.Dates))
	for i, d := range resp.Dates {
		if norm, err := models.NormalizeDate(d); err == nil {
			dates[i] = norm
		} else {
			dates[i] = d
		}
	}

	return &History{
		Series: models.OHLCSeries{
			Dates:   dates,
			Opens:   floats(resp.Opens),
			Closes:  floats(resp.Closes),
			Highs:   floats(resp.Highs),
			Lows:    floats(resp.Lows),
			Volumes: floats(resp.Volumes),
		},
		Overlays: resp.overlays(),
	}, nil
}

// DetectPatterns asks the service for pattern matches of the given kinds.
func (c *Client) DetectPatterns(ctx context.Context, instrument string, days int, kinds []models.PatternKind) ([]models.PatternMatch, error) {
	req := patternRequest{Code: instrument, Days: days, Patterns: make([]string, len(kinds))}
	for i, k := range kinds {
		req.Patterns[i] = string(k)
	}

	body, err := c.do(ctx, endpointPatterns, func(r *resty.Request) (*resty.Response, error) {
		return r.SetHeader("Content-Type", "application/json").SetBody(req).Post(endpointPatterns)
	})
	if err != nil {
		return nil, err
	}

	var resp patternResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, apperrors.NewDataError("patterns", instrument, "decoding response", fmt.Errorf("%w: %v", apperrors.ErrMalformedResponse, err))
	}
	if resp.Error != "" {
		return nil, apperrors.NewDataError("patterns", instrument, resp.Error, apperrors.ErrRemote)
	}

	matches := make([]models.PatternMatch, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		matches = append(matches, m.toModel())
	}
	return matches, nil
}

func (m patternMatch) toModel() models.PatternMatch {
	out := models.PatternMatch{
		StartIndex:  flexInt(m.StartIndex),
		EndIndex:    flexInt(m.EndIndex),
		StartDate:   normalizeOrKeep(m.StartDate),
		EndDate:     normalizeOrKeep(m.EndDate),
		Name:        m.Name,
		Direction:   models.DirectionDown,
		Class:       models.ClassReversal,
		Explanation: m.Explain,
	}
	if strings.EqualFold(m.Direction, string(models.DirectionUp)) {
		out.Direction = models.DirectionUp
	}
	if strings.EqualFold(m.Class, string(models.ClassTrend)) {
		out.Class = models.ClassTrend
	}
	return out
}

// flexInt converts an index; NaN maps to -1 so the box is clamped away.
// Out of range values saturate so they still clamp to the last bar.
func flexInt(f FlexFloat) int {
	v := float64(f)
	switch {
	case math.IsNaN(v):
		return -1
	case v >= math.MaxInt32:
		return math.MaxInt32
	case v <= math.MinInt32:
		return math.MinInt32
	}
	return int(v)
}

func normalizeOrKeep(s string) string {
	if s == "" {
		return ""
	}
	if norm, err := models.NormalizeDate(s); err == nil {
		return norm
	}
	return s
}

// LoadFactors fetches factor percentile series as of the given date.
// It implements factors.Loader.
func (c *Client) LoadFactors(ctx context.Context, instrument, asOf string, windowDays int) (models.FactorSeries, error) {
	body, err := c.do(ctx, endpointMetrics, func(r *resty.Request) (*resty.Response, error) {
		return r.SetQueryParams(map[string]string{
			"code":   instrument,
			"days":   strconv.Itoa(windowDays),
			"minp":   strconv.Itoa(c.minPeriods),
			"latest": asOf,
		}).Get(endpointMetrics)
	})
	if err != nil {
		return nil, err
	}

	var resp metricsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, apperrors.NewDataError("metrics", instrument, "decoding response", fmt.Errorf("%w: %v", apperrors.ErrMalformedResponse, err))
	}
	if resp.Error != "" {
		return nil, apperrors.NewDataError("metrics", instrument, resp.Error, apperrors.ErrRemote)
	}

	series := make(models.FactorSeries, len(models.AllFactors))
	for _, f := range models.AllFactors {
		rows := resp.Series[string(f)]
		points := make([]models.FactorPoint, 0, len(rows))
		for _, r := range rows {
			v := float64(r.Value)
			if math.IsNaN(v) {
				continue
			}
			d, err := models.ParseDate(r.Date)
			if err != nil {
				continue
			}
			points = append(points, models.FactorPoint{Date: d, Value: v})
		}
		sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })
		series[f] = points
	}
	return series, nil
}

// LatestTradingDate returns the most recent trading date in canonical form.
func (c *Client) LatestTradingDate(ctx context.Context) (string, error) {
	body, err := c.do(ctx, endpointLatestDate, func(r *resty.Request) (*resty.Response, error) {
		return r.Get(endpointLatestDate)
	})
	if err != nil {
		return "", err
	}

	var resp latestDateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", apperrors.NewDataError("latest_date", "", "decoding response", fmt.Errorf("%w: %v", apperrors.ErrMalformedResponse, err))
	}
	raw := resp.LatestTradingDate
	if raw == "" {
		raw = resp.LatestDate
	}
	if raw == "" {
		return "", apperrors.NewDataError("latest_date", "", "no date in response", apperrors.ErrMalformedResponse)
	}
	norm, err := models.NormalizeDate(raw)
	if err != nil {
		return "", apperrors.NewDataError("latest_date", "", "bad date", fmt.Errorf("%w: %v", apperrors.ErrMalformedResponse, err))
	}
	return norm, nil
}

// do issues one request and returns the body of a 2xx response.
func (c *Client) do(ctx context.Context, endpoint string, send func(*resty.Request) (*resty.Response, error)) ([]byte, error) {
	start := time.Now()
	resp, err := send(c.http.R().SetContext(ctx))
	if err != nil {
		logging.LogFetch(c.logger, "", endpoint, time.Since(start), err)
		return nil, apperrors.NewFetchError(endpoint, 0, err)
	}

	if resp.IsError() {
		msg := strings.TrimSpace(resp.String())
		var er errorResponse
		if json.Unmarshal(resp.Body(), &er) == nil && er.Error != "" {
			msg = er.Error
		}
		ferr := apperrors.NewFetchError(endpoint, resp.StatusCode(), fmt.Errorf("%w: %s", apperrors.ErrRemote, msg))
		logging.LogFetch(c.logger, resp.Request.Method, endpoint, time.Since(start), ferr)
		return nil, ferr
	}

	logging.LogFetch(c.logger, resp.Request.Method, endpoint, time.Since(start), nil)
	return resp.Body(), nil
}

func (c *Client) cached(ctx context.Context, key string) ([]byte, bool) {
	body, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Response cache read failed")
		return nil, false
	}
	if ok {
		c.logger.Debug().Str("key", key).Msg("Response cache hit")
	}
	return body, ok
}
