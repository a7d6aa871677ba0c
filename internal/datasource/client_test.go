package datasource

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"candlelens/internal/config"
	apperrors "candlelens/internal/errors"
	"candlelens/internal/geometry"
	"candlelens/internal/models"
	"candlelens/internal/respcache"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, cache respcache.Cache) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.DataSourceConfig{BaseURL: srv.URL, Timeout: 5 * time.Second}, cache, time.Hour, zerolog.Nop())
}

func TestFlexFloat(t *testing.T) {
	var got []FlexFloat
	if err := json.Unmarshal([]byte(`[1.5, "2,000", null, "abc", "  7 "]`), &got); err != nil {
		t.Fatal(err)
	}
	if got[0] != 1.5 || got[1] != 2000 || got[4] != 7 {
		t.Errorf("decoded = %v", got)
	}
	if !math.IsNaN(float64(got[2])) || !math.IsNaN(float64(got[3])) {
		t.Errorf("null and bad values must decode to NaN, got %v %v", got[2], got[3])
	}
}

func TestHistory_ParsesAndCaches(t *testing.T) {
	var calls int32
	handler := func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.URL.Path != "/get_ohlc_history" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Error(err)
			return
		}
		if r.PostForm.Get("code") != "005930" || r.PostForm.Get("days") != "30" {
			t.Errorf("form = %v", r.PostForm)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"dates": ["2024.01.02", "2024/01/03"],
			"opens": [100, "101"],
			"closes": [102, null],
			"highs": [103, 104],
			"lows": [99, 98],
			"volumes": [1000, 0],
			"ma5": [null, 101.5],
			"BU": [110, 111]
		}`))
	}

	cache, err := respcache.NewBuntCache("")
	if err != nil {
		t.Fatal(err)
	}
	defer cache.Close()
	c := newTestClient(t, handler, cache)

	for i := 0; i < 2; i++ {
		h, err := c.History(context.Background(), "005930", 30, HistoryOptions{MovingAverages: true})
		if err != nil {
			t.Fatalf("History() error = %v", err)
		}
		if h.Series.Dates[0] != "2024-01-02" || h.Series.Dates[1] != "2024-01-03" {
			t.Errorf("dates = %v, want canonical", h.Series.Dates)
		}
		if h.Series.Opens[1] != 101 || !math.IsNaN(h.Series.Closes[1]) {
			t.Errorf("opens/closes = %v/%v", h.Series.Opens, h.Series.Closes)
		}
		if ma := h.Overlays["ma5"]; len(ma) != 2 || ma[0] != nil || *ma[1] != 101.5 {
			t.Errorf("ma5 = %v", ma)
		}
		if _, ok := h.Overlays["bb_upper"]; !ok {
			t.Error("BU should map to bb_upper")
		}
		if _, ok := h.Overlays["psar"]; ok {
			t.Error("absent psar should not be reported")
		}
	}

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("server calls = %d, want 1 (second served from cache)", got)
	}
}

func TestHistory_MissingArrayIsMalformed(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"dates": ["2024-01-02"], "opens": [1], "closes": [1], "highs": [1], "lows": [1]}`))
	}, nil)

	_, err := c.History(context.Background(), "X", 10, HistoryOptions{})
	if !apperrors.Is(err, apperrors.ErrMalformedResponse) {
		t.Errorf("error = %v, want ErrMalformedResponse", err)
	}
	var de *apperrors.DataError
	if !apperrors.As(err, &de) || de.Instrument != "X" {
		t.Errorf("error = %#v, want DataError for X", err)
	}
}

func TestHistory_ServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "days out of range"}`))
	}, nil)

	_, err := c.History(context.Background(), "X", 500, HistoryOptions{})
	var fe *apperrors.FetchError
	if !apperrors.As(err, &fe) || fe.StatusCode != http.StatusBadRequest {
		t.Fatalf("error = %v, want FetchError 400", err)
	}
	if !apperrors.Is(err, apperrors.ErrRemote) {
		t.Errorf("error = %v, want ErrRemote in chain", err)
	}
}

func TestDetectPatterns(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req patternRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Error(err)
			return
		}
		if req.Code != "005930" || req.Days != 60 || len(req.Patterns) != 2 {
			t.Errorf("request = %+v", req)
		}
		w.Write([]byte(`{"matches": [
			{"start_idx": 3, "end_idx": "9", "start_date": "2024.02.01", "end_date": "2024.02.09",
			 "name": "Double Bottom", "direction": "up", "clazz": "reversal", "explain": "two lows"},
			{"start_idx": 10, "end_idx": 20, "name": "Bear Flag", "direction": "down", "clazz": "trend"}
		]}`))
	}, nil)

	got, err := c.DetectPatterns(context.Background(), "005930", 60,
		[]models.PatternKind{models.KindBullishReversal, models.KindBearishTrend})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("matches = %d, want 2", len(got))
	}
	m := got[0]
	if m.StartIndex != 3 || m.EndIndex != 9 || m.StartDate != "2024-02-01" || m.Direction != models.DirectionUp || m.Class != models.ClassReversal {
		t.Errorf("match[0] = %+v", m)
	}
	if m.UID() != "3-9-Double Bottom" {
		t.Errorf("UID() = %q", m.UID())
	}
	if got[1].Direction != models.DirectionDown || got[1].Class != models.ClassTrend {
		t.Errorf("match[1] = %+v", got[1])
	}
}

func TestFlexInt_Saturates(t *testing.T) {
	tests := []struct {
		in   float64
		want int
	}{
		{7.9, 7},
		{math.NaN(), -1},
		{1e20, math.MaxInt32},
		{math.Inf(1), math.MaxInt32},
		{-1e20, math.MinInt32},
		{math.Inf(-1), math.MinInt32},
	}
	for _, tt := range tests {
		if got := flexInt(FlexFloat(tt.in)); got != tt.want {
			t.Errorf("flexInt(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestDetectPatterns_HugeIndexClampsToLastBar(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"matches": [{"start_idx": 2, "end_idx": 1e20, "name": "Runaway", "direction": "up", "clazz": "trend"}]}`))
	}, nil)

	got, err := c.DetectPatterns(context.Background(), "005930", 10, models.AllPatternKinds)
	if err != nil {
		t.Fatal(err)
	}

	bars := make([]models.Bar, 10)
	for i := range bars {
		bars[i] = models.Bar{Open: 10, Close: 11, High: 12, Low: 9, Volume: 1, Color: models.ColorUp}
	}
	boxes := geometry.BuildBoxes(bars, got)
	if len(boxes) != 1 || boxes[0].StartIndex != 2 || boxes[0].EndIndex != 9 {
		t.Errorf("boxes = %+v, want one box over [2,9]", boxes)
	}
}

func TestLoadFactors(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("code") != "005930" || q.Get("days") != "30" || q.Get("minp") != "5" || q.Get("latest") != "2024-03-04" {
			t.Errorf("query = %v", q)
		}
		w.Write([]byte(`{"series": {
			"momentum": [{"date": "2024-03-04", "value": 70}, {"date": "2024-03-01", "value": "65"}],
			"breadth": [{"date": "2024-03-04", "value": null}],
			"lowvol": []
		}}`))
	}, nil)

	s, err := c.LoadFactors(context.Background(), "005930", "2024-03-04", 30)
	if err != nil {
		t.Fatal(err)
	}
	mom := s[models.FactorMomentum]
	if len(mom) != 2 || mom[0].Value != 65 || mom[1].Value != 70 {
		t.Errorf("momentum = %+v, want sorted by date", mom)
	}
	if len(s[models.FactorBreadth]) != 0 {
		t.Errorf("null readings must be dropped, got %+v", s[models.FactorBreadth])
	}
	if _, ok := s[models.FactorEqBond]; !ok {
		t.Error("every factor should have an entry")
	}
}

func TestLatestTradingDate(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
		err  bool
	}{
		{"primary key", `{"latest_trading_date": "2024.03.04"}`, "2024-03-04", false},
		{"fallback key", `{"latest_date": "2024/03/05"}`, "2024-03-05", false},
		{"empty", `{}`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}, nil)
			got, err := c.LatestTradingDate(context.Background())
			if (err != nil) != tt.err || got != tt.want {
				t.Errorf("LatestTradingDate() = %q, %v", got, err)
			}
		})
	}
}
