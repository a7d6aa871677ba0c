package cli

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"candlelens/internal/analysis/scoring"
	"candlelens/internal/candle"
	apperrors "candlelens/internal/errors"
	"candlelens/internal/models"
	"candlelens/internal/overlay"
	"candlelens/internal/render"
	"candlelens/internal/session"
	"candlelens/internal/store"
	"candlelens/pkg/utils"
)

// addChartCommands adds the chart, pattern and scoring commands.
func addChartCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newChartCmd(app))
	rootCmd.AddCommand(newPatternsCmd(app))
	rootCmd.AddCommand(newScoreCmd(app))
	rootCmd.AddCommand(newScoresCmd(app))
	rootCmd.AddCommand(newOverlaysCmd(app))
}

func (app *App) days(cmd *cobra.Command) int {
	days, _ := cmd.Flags().GetInt("days")
	if days == 0 {
		return app.Config.Chart.DefaultDays
	}
	return days
}

// loadChart loads instrument into a new session and applies the configured
// overlays plus any named on the command line.
func (app *App) loadChart(cmd *cobra.Command, instrument string, extra []string) (*session.Session, error) {
	sess := app.NewSession()
	if err := sess.Load(cmd.Context(), instrument, app.days(cmd)); err != nil {
		return nil, err
	}

	flags := make(map[string]bool, len(app.Config.Chart.Overlays)+len(extra))
	for k, v := range app.Config.Chart.Overlays {
		flags[k] = v
	}
	for _, k := range extra {
		flags[k] = true
	}
	if err := sess.ApplyOverlays(cmd.Context(), flags); err != nil {
		if apperrors.Is(err, apperrors.ErrUnknownOverlay) {
			return nil, err
		}
		app.Logger.Warn().Err(err).Msg("Some overlays could not be shown")
	}
	return sess, nil
}

type chartSummary struct {
	Instrument string                `json:"instrument"`
	Days       int                   `json:"days"`
	AsOf       string                `json:"as_of"`
	Bars       int                   `json:"bars"`
	High       *extremum             `json:"high,omitempty"`
	Low        *extremum             `json:"low,omitempty"`
	Halted     bool                  `json:"halted"`
	Overlays   []string              `json:"overlays"`
	Patterns   []models.PatternMatch `json:"patterns,omitempty"`
	Selected   string                `json:"selected,omitempty"`
	Image      string                `json:"image,omitempty"`
}

type extremum struct {
	Value float64 `json:"value"`
	Date  string  `json:"date"`
	at    time.Time
}

func newExtremum(value float64, bar models.Bar) *extremum {
	return &extremum{Value: value, Date: bar.Label, at: bar.Date}
}

// label renders the extremum the way the chart labels it.
func (e *extremum) label() string {
	if e.at.IsZero() {
		return e.Date
	}
	return utils.FormatDateSlash(e.at)
}

func newChartCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chart <instrument>",
		Short: "Load a chart and optionally render it to PNG",
		Long: `Load the daily price history of an instrument and summarize it.

With --png the chart is drawn with pattern boxes, extremum labels and the
visible overlays. Overlays enabled in config.toml are always shown.`,
		Example: `  candlelens chart 005930 --days 60 --overlay ma20 --overlay momentum --png chart.png
  candlelens chart 005930 --patterns bullish_reversal --select "12-20-Double Bottom" --png chart.png`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			instrument := args[0]

			overlays, _ := cmd.Flags().GetStringSlice("overlay")
			kindNames, _ := cmd.Flags().GetStringSlice("patterns")
			selectUID, _ := cmd.Flags().GetString("select")
			pngPath, _ := cmd.Flags().GetString("png")

			sess, err := app.loadChart(cmd, instrument, overlays)
			if err != nil {
				return err
			}

			summary := summarize(sess)
			if cmd.Flags().Changed("patterns") || selectUID != "" {
				kinds, err := ParseKinds(kindNames)
				if err != nil {
					return err
				}
				if summary.Patterns, err = sess.Detect(cmd.Context(), kinds); err != nil {
					return err
				}
			}
			if selectUID != "" {
				if summary.Selected, err = sess.Select(selectUID); err != nil {
					return err
				}
			}

			if pngPath != "" {
				if err := writeChartPNG(app, sess, pngPath); err != nil {
					return err
				}
				summary.Image = pngPath
			}

			if output.IsJSON() {
				return output.JSON(summary)
			}
			printSummary(output, summary)
			return nil
		},
	}

	cmd.Flags().Int("days", 0, "trading days to load (default from config)")
	cmd.Flags().StringSlice("overlay", nil, "overlay to show, repeatable (see 'candlelens overlays')")
	cmd.Flags().StringSlice("patterns", nil, "detect pattern kinds (empty for all)")
	cmd.Flags().String("select", "", "pattern uid to highlight")
	cmd.Flags().String("png", "", "write the chart to this PNG file")

	return cmd
}

func summarize(sess *session.Session) chartSummary {
	instrument, days := sess.Instrument()
	bars := sess.Bars()
	s := chartSummary{
		Instrument: instrument,
		Days:       days,
		AsOf:       sess.AsOf(),
		Bars:       len(bars),
		Halted:     sess.HasHalt(),
		Overlays: lo.FilterMap(sess.Overlays(), func(o models.OverlaySeries, _ int) (string, bool) {
			return o.Key, o.Visible
		}),
	}
	if ext := sess.Extremes(); ext.Valid {
		s.High = newExtremum(ext.MaxHigh, bars[ext.MaxHighIndex])
		s.Low = newExtremum(ext.MinLow, bars[ext.MinLowIndex])
	}
	return s
}

func printSummary(output *Output, s chartSummary) {
	output.Bold("%s  %d days as of %s", s.Instrument, s.Days, s.AsOf)
	output.Printf("  Bars:      %d\n", s.Bars)
	if s.High != nil {
		output.Printf("  High:      %s (%s)\n", utils.FormatNumber(s.High.Value, 0), s.High.label())
		output.Printf("  Low:       %s (%s)\n", utils.FormatNumber(s.Low.Value, 0), s.Low.label())
	}
	if len(s.Overlays) > 0 {
		output.Printf("  Overlays:  %v\n", s.Overlays)
	}
	if s.Halted {
		output.Warning("  ⚠ Zero-volume days found, trading may have been halted")
	}
	if len(s.Patterns) > 0 {
		output.Println()
		printPatterns(output, s.Patterns, nil)
	}
	if s.Selected != "" {
		output.Info("  Selected: %s", s.Selected)
	}
	if s.Image != "" {
		output.Success("✓ Chart written to %s", s.Image)
	}
}

func writeChartPNG(app *App, sess *session.Session, path string) error {
	bars := sess.Bars()
	if len(bars) == 0 {
		return apperrors.ErrNoChart
	}
	low, high := candle.ValueRange(bars)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	opts := render.DefaultOptions()
	opts.Width, opts.Height = app.Config.Chart.Width, app.Config.Chart.Height
	if err := render.WritePNG(f, sess, len(bars), low, high, opts); err != nil {
		return fmt.Errorf("rendering chart: %w", err)
	}
	return f.Close()
}

func newPatternsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patterns <instrument>",
		Short: "Detect chart patterns",
		Example: `  candlelens patterns 005930 --kinds bullish_reversal,bullish_trend
  candlelens patterns 005930 --score`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			kindNames, _ := cmd.Flags().GetStringSlice("kinds")
			withScore, _ := cmd.Flags().GetBool("score")

			kinds, err := ParseKinds(kindNames)
			if err != nil {
				return err
			}
			sess := app.NewSession()
			if err := sess.Load(cmd.Context(), args[0], app.days(cmd)); err != nil {
				return err
			}
			matches, err := sess.Detect(cmd.Context(), kinds)
			if err != nil {
				return err
			}

			var scores map[string]scoring.Result
			if withScore {
				scores = make(map[string]scoring.Result, len(matches))
				for _, m := range matches {
					res, err := sess.Score(cmd.Context(), m.UID())
					if err != nil {
						return err
					}
					scores[m.UID()] = res
				}
			}

			if output.IsJSON() {
				type row struct {
					models.PatternMatch
					UID    string          `json:"uid"`
					Result *scoring.Result `json:"result,omitempty"`
				}
				rows := lo.Map(matches, func(m models.PatternMatch, _ int) row {
					r := row{PatternMatch: m, UID: m.UID()}
					if res, ok := scores[m.UID()]; ok {
						r.Result = &res
					}
					return r
				})
				return output.JSON(rows)
			}

			if len(matches) == 0 {
				output.Dim("No patterns found")
				return nil
			}
			printPatterns(output, matches, scores)
			return nil
		},
	}

	cmd.Flags().Int("days", 0, "trading days to load (default from config)")
	cmd.Flags().StringSlice("kinds", nil, "pattern kinds: bullish_reversal, bullish_trend, bearish_reversal, bearish_trend")
	cmd.Flags().Bool("score", false, "score every detected pattern")

	return cmd
}

func printPatterns(output *Output, matches []models.PatternMatch, scores map[string]scoring.Result) {
	headers := []string{"UID", "Pattern", "Direction", "Class", "From", "To"}
	if scores != nil {
		headers = append(headers, "Score", "Band")
	}
	rows := make([][]string, 0, len(matches))
	for _, m := range matches {
		row := []string{m.UID(), m.Name, output.Direction(m.Direction), string(m.Class), m.StartDate, m.EndDate}
		if res, ok := scores[m.UID()]; ok {
			row = append(row, strconv.Itoa(res.Score), output.Band(res.Band))
		}
		rows = append(rows, row)
	}
	output.Table(headers, rows)
}

func newScoreCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "score <instrument> <pattern-uid>",
		Short: "Score one detected pattern against the market factors",
		Example: `  candlelens score 005930 "12-20-Double Bottom"`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			sess := app.NewSession()
			if err := sess.Load(cmd.Context(), args[0], app.days(cmd)); err != nil {
				return err
			}
			if _, err := sess.Detect(cmd.Context(), models.AllPatternKinds); err != nil {
				return err
			}
			res, err := sess.Score(cmd.Context(), args[1])
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(res)
			}

			output.Bold("%s  %s", args[0], args[1])
			output.Printf("  Score:        %d  %s\n", res.Score, output.Band(res.Band))
			output.Dim("  %s", res.Band.Description())
			output.Printf("  Composite:    %s  (kappa %.2f, p=%.3f)\n", FormatSigned(res.Composite), res.Kappa, res.Probability)
			output.Println()

			rows := make([][]string, 0, len(models.AllFactors))
			for _, f := range models.AllFactors {
				reading := "-"
				if v, ok := res.Snapshot[f]; ok {
					reading = fmt.Sprintf("%.1f", v)
				}
				rows = append(rows, []string{string(f), reading, FormatSigned(res.Components[f])})
			}
			output.Table([]string{"Factor", "Percentile", "Contribution"}, rows)
			return nil
		},
	}

	cmd.Flags().Int("days", 0, "trading days to load (default from config)")
	return cmd
}

func newScoresCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scores",
		Short: "List journaled pattern scores",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Journal == nil {
				return fmt.Errorf("score journal unavailable at %s", app.Config.Store.Path)
			}

			filter := store.ScoreFilter{}
			filter.Instrument, _ = cmd.Flags().GetString("instrument")
			filter.PatternUID, _ = cmd.Flags().GetString("uid")
			filter.MinScore, _ = cmd.Flags().GetInt("min")
			filter.Limit, _ = cmd.Flags().GetInt("limit")

			records, err := app.Journal.ListScores(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(records)
			}
			if len(records) == 0 {
				output.Dim("No scores recorded")
				return nil
			}

			rows := lo.Map(records, func(r store.ScoreRecord, _ int) []string {
				return []string{
					r.CreatedAt.Local().Format("2006-01-02 15:04"),
					r.Instrument,
					r.PatternName,
					output.Direction(r.Direction),
					r.EndDate,
					strconv.Itoa(r.Score),
					output.Band(r.Band),
					FormatReading(r.Momentum),
					FormatReading(r.Breadth),
					FormatReading(r.LowVol),
					FormatReading(r.EqBond),
				}
			})
			output.Table([]string{"When", "Instrument", "Pattern", "Direction", "End", "Score", "Band", "Mom", "Breadth", "LowVol", "EqBond"}, rows)
			return nil
		},
	}

	cmd.Flags().String("instrument", "", "only this instrument")
	cmd.Flags().String("uid", "", "only this pattern uid")
	cmd.Flags().Int("min", 0, "minimum score")
	cmd.Flags().Int("limit", 20, "maximum rows")
	return cmd
}

func newOverlaysCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "overlays",
		Short: "List the available chart overlays",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			type row struct {
				overlay.Definition
				Default bool `json:"default"`
			}
			rows := lo.Map(overlay.Definitions, func(d overlay.Definition, _ int) row {
				return row{Definition: d, Default: app.Config.Chart.Overlays[d.Key]}
			})
			if output.IsJSON() {
				return output.JSON(rows)
			}

			output.Table([]string{"Key", "Label", "Color", "Axis", "Default"}, lo.Map(rows, func(r row, _ int) []string {
				axis := "price"
				if r.Secondary {
					axis = "0-100"
				}
				return []string{r.Key, r.Label, r.Color, axis, strconv.FormatBool(r.Default)}
			}))
			return nil
		},
	}
}
