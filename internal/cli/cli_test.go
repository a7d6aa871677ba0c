package cli

import (
	"bytes"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"

	apperrors "candlelens/internal/errors"
	"candlelens/internal/models"
)

// Property: FormatSigned always carries a sign for non-zero values and parses
// back to the value rounded to three decimals.
func TestProperty_FormatSigned(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("signed and parseable", prop.ForAll(
		func(v float64) bool {
			s := FormatSigned(v)
			if v != 0 && !strings.HasPrefix(s, "+") && !strings.HasPrefix(s, "-") {
				return false
			}
			parsed, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return false
			}
			return math.Abs(parsed-v) <= 0.0005+1e-12
		},
		gen.Float64Range(-1, 1),
	))

	properties.TestingRun(t)
}

func TestFormatReading(t *testing.T) {
	v := 42.25
	if got := FormatReading(&v); got != "42.2" && got != "42.3" {
		t.Errorf("FormatReading(42.25) = %q", got)
	}
	if got := FormatReading(nil); got != "-" {
		t.Errorf("FormatReading(nil) = %q", got)
	}
	if got := FormatSigned(math.NaN()); got != "-" {
		t.Errorf("FormatSigned(NaN) = %q", got)
	}
}

func TestParseKinds(t *testing.T) {
	tests := []struct {
		name    string
		in      []string
		want    int
		wantErr bool
	}{
		{"empty selects all", nil, len(models.AllPatternKinds), false},
		{"blanks select all", []string{" ", ""}, len(models.AllPatternKinds), false},
		{"normalized and deduplicated", []string{"Bullish_Reversal", "bullish_reversal ", "bearish_trend"}, 2, false},
		{"unknown", []string{"sideways"}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseKinds(tt.in)
			if tt.wantErr {
				if !apperrors.Is(err, apperrors.ErrInputValidation) {
					t.Errorf("error = %v, want validation error", err)
				}
				return
			}
			if err != nil || len(got) != tt.want {
				t.Errorf("ParseKinds() = %v, %v", got, err)
			}
		})
	}
}

// fakeService serves a 20 bar history, two patterns and factor series.
func fakeService(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/get_ohlc_history", func(w http.ResponseWriter, r *http.Request) {
		var dates []string
		var opens, closes, highs, lows, volumes []float64
		for i := 0; i < 20; i++ {
			dates = append(dates, "2024-01-"+pad(i+1))
			p := 1000 + float64(i*10)
			opens = append(opens, p)
			closes = append(closes, p+5)
			highs = append(highs, p+8)
			lows = append(lows, p-3)
			vol := 500.0
			if i == 7 {
				vol = 0
			}
			volumes = append(volumes, vol)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"dates": dates, "opens": opens, "closes": closes,
			"highs": highs, "lows": lows, "volumes": volumes,
		})
	})
	mux.HandleFunc("/get_latest_trading_date", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"latest_trading_date": "2024.01.20"}`))
	})
	mux.HandleFunc("/detect_patterns", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"matches": [
			{"start_idx": 2, "end_idx": 6, "start_date": "2024-01-03", "end_date": "2024-01-07", "name": "Morning Star", "direction": "up", "clazz": "reversal"},
			{"start_idx": 10, "end_idx": 18, "start_date": "2024-01-11", "end_date": "2024-01-19", "name": "Rising Three", "direction": "up", "clazz": "trend"}
		]}`))
	})
	mux.HandleFunc("/get_metrics", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"series": {
			"momentum": [{"date": "2024-01-02", "value": 80}],
			"breadth": [{"date": "2024-01-02", "value": 60}],
			"lowvol": [{"date": "2024-01-02", "value": 50}],
			"eqbond": [{"date": "2024-01-02", "value": 50}]
		}}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func pad(d int) string {
	if d < 10 {
		return "0" + strconv.Itoa(d)
	}
	return strconv.Itoa(d)
}

func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", dir}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestCommands_EndToEnd(t *testing.T) {
	srv := fakeService(t)
	dir := t.TempDir()
	t.Setenv("CANDLELENS_BASE_URL", srv.URL)
	t.Setenv("CANDLELENS_LOG_LEVEL", "error")

	out, err := run(t, dir, "version")
	if err != nil || !strings.Contains(out, "candlelens v") {
		t.Fatalf("version = %q, %v", out, err)
	}
	if _, err := os.Stat(filepath.Join(dir, "config.toml")); err != nil {
		t.Errorf("config template not created: %v", err)
	}

	png := filepath.Join(dir, "chart.png")
	out, err = run(t, dir, "chart", "005930", "--days", "20", "--overlay", "ma5",
		"--patterns", "bullish_trend", "--select", "10-18-Rising Three", "--png", png, "--json")
	if err != nil {
		t.Fatalf("chart error = %v\n%s", err, out)
	}
	var summary chartSummary
	if err := json.Unmarshal([]byte(out), &summary); err != nil {
		t.Fatalf("chart output is not JSON: %v\n%s", err, out)
	}
	if summary.Bars != 20 || summary.AsOf != "2024-01-20" || !summary.Halted {
		t.Errorf("summary = %+v", summary)
	}
	if summary.High == nil || summary.High.Date != "2024-01-20" || summary.Low.Date != "2024-01-01" {
		t.Errorf("extremes = %+v %+v", summary.High, summary.Low)
	}
	if summary.Selected != "10-18-Rising Three" || len(summary.Patterns) != 2 {
		t.Errorf("patterns = %d selected = %q", len(summary.Patterns), summary.Selected)
	}
	if len(summary.Overlays) != 1 || summary.Overlays[0] != "ma5" {
		t.Errorf("overlays = %v", summary.Overlays)
	}
	if fi, err := os.Stat(png); err != nil || fi.Size() == 0 {
		t.Errorf("png not written: %v", err)
	}

	out, err = run(t, dir, "patterns", "005930", "--days", "20", "--score")
	if err != nil {
		t.Fatalf("patterns error = %v", err)
	}
	if !strings.Contains(out, "Morning Star") || !strings.Contains(out, "Rising Three") {
		t.Errorf("patterns output = %s", out)
	}

	out, err = run(t, dir, "score", "005930", "10-18-Rising Three", "--days", "20", "--json")
	if err != nil {
		t.Fatalf("score error = %v", err)
	}
	var res struct {
		Score int    `json:"score"`
		Band  string `json:"band"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil || res.Score < 5 || res.Score > 95 || res.Band == "" {
		t.Errorf("score output = %s (%v)", out, err)
	}

	out, err = run(t, dir, "scores", "--instrument", "005930", "--json")
	if err != nil {
		t.Fatalf("scores error = %v", err)
	}
	var records []map[string]interface{}
	if err := json.Unmarshal([]byte(out), &records); err != nil || len(records) != 3 {
		t.Errorf("journal has %d records, want 3 (two from --score, one from score)", len(records))
	}

	if _, err := run(t, dir, "chart", "005930", "--days", "5"); !apperrors.Is(err, apperrors.ErrInputValidation) {
		t.Errorf("chart --days 5 error = %v, want validation error", err)
	}
	if _, err := run(t, dir, "chart", "005930", "--days", "20", "--overlay", "nope"); !apperrors.Is(err, apperrors.ErrUnknownOverlay) {
		t.Errorf("unknown overlay error = %v", err)
	}

	out, err = run(t, dir, "overlays")
	if err != nil || !strings.Contains(out, "momentum") || !strings.Contains(out, "0-100") {
		t.Errorf("overlays output = %q, %v", out, err)
	}
}

func TestCommands_FailureReleasesResources(t *testing.T) {
	srv := fakeService(t)
	dir := t.TempDir()
	t.Setenv("CANDLELENS_BASE_URL", srv.URL)
	t.Setenv("CANDLELENS_LOG_LEVEL", "error")

	app := &App{Logger: zerolog.Nop()}
	cmd := newRootCmd(app)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"--config", dir, "chart", "005930", "--days", "5"})

	if err := cmd.Execute(); !apperrors.Is(err, apperrors.ErrInputValidation) {
		t.Fatalf("Execute() error = %v, want validation error", err)
	}
	if app.Cache != nil || app.Journal != nil {
		t.Error("cache and journal must be closed after a failed command")
	}
}

func TestChartCommand_TextSummary(t *testing.T) {
	srv := fakeService(t)
	dir := t.TempDir()
	t.Setenv("CANDLELENS_BASE_URL", srv.URL)
	t.Setenv("CANDLELENS_LOG_LEVEL", "error")

	out, err := run(t, dir, "chart", "005930", "--days", "20")
	if err != nil {
		t.Fatalf("chart error = %v\n%s", err, out)
	}
	for _, want := range []string{"High:      1,198 (2024/01/20)", "Low:       997 (2024/01/01)", "Zero-volume days"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}
