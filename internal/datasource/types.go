package datasource

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// FlexFloat decodes a JSON number, a numeric string or null. Null and
// unparseable values decode to NaN.
type FlexFloat float64

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = FlexFloat(math.NaN())
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			*f = FlexFloat(math.NaN())
			return nil
		}
		s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			v = math.NaN()
		}
		*f = FlexFloat(v)
		return nil
	}

	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		v = math.NaN()
	}
	*f = FlexFloat(v)
	return nil
}

func floats(in []FlexFloat) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}

func optionals(in []FlexFloat) []*float64 {
	out := make([]*float64, len(in))
	for i, v := range in {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			continue
		}
		out[i] = &f
	}
	return out
}

// ohlcResponse is the /get_ohlc_history payload.
type ohlcResponse struct {
	Dates   []string    `json:"dates"`
	Opens   []FlexFloat `json:"opens"`
	Closes  []FlexFloat `json:"closes"`
	Highs   []FlexFloat `json:"highs"`
	Lows    []FlexFloat `json:"lows"`
	Volumes []FlexFloat `json:"volumes"`
	MA5     []FlexFloat `json:"ma5"`
	MA20    []FlexFloat `json:"ma20"`
	MA60    []FlexFloat `json:"ma60"`
	MA120   []FlexFloat `json:"ma120"`
	BU      []FlexFloat `json:"BU"`
	BL      []FlexFloat `json:"BL"`
	PSAR    []FlexFloat `json:"psar"`
	Error   string      `json:"error"`
}

// overlays maps the optional overlay arrays onto overlay keys.
func (r *ohlcResponse) overlays() map[string][]*float64 {
	out := make(map[string][]*float64)
	for key, arr := range map[string][]FlexFloat{
		"ma5":      r.MA5,
		"ma20":     r.MA20,
		"ma60":     r.MA60,
		"ma120":    r.MA120,
		"bb_upper": r.BU,
		"bb_lower": r.BL,
		"psar":     r.PSAR,
	} {
		if arr != nil {
			out[key] = optionals(arr)
		}
	}
	return out
}

type patternRequest struct {
	Code     string   `json:"code"`
	Days     int      `json:"days"`
	Patterns []string `json:"patterns"`
}

type patternResponse struct {
	Matches []patternMatch `json:"matches"`
	Error   string         `json:"error"`
}

type patternMatch struct {
	StartIndex FlexFloat `json:"start_idx"`
	EndIndex   FlexFloat `json:"end_idx"`
	StartDate  string    `json:"start_date"`
	EndDate    string    `json:"end_date"`
	Name       string    `json:"name"`
	Direction  string    `json:"direction"`
	Class      string    `json:"clazz"`
	Explain    string    `json:"explain"`
}

type factorRow struct {
	Date  string    `json:"date"`
	Value FlexFloat `json:"value"`
}

type metricsResponse struct {
	Series map[string][]factorRow `json:"series"`
	Error  string                 `json:"error"`
}

type latestDateResponse struct {
	LatestTradingDate string `json:"latest_trading_date"`
	LatestDate        string `json:"latest_date"`
}

type errorResponse struct {
	Error string `json:"error"`
}
