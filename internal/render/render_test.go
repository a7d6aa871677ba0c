package render

import (
	"bytes"
	"image/png"
	"testing"

	"candlelens/internal/geometry"
	"candlelens/internal/models"
)

type staticFrame []models.Bar

func (f staticFrame) Draw(mapper geometry.Mapper, opts geometry.Options) []geometry.Instruction {
	boxes := geometry.BuildBoxes(f, []models.PatternMatch{{StartIndex: 0, EndIndex: 1, Name: "Engulfing", Direction: models.DirectionUp}})
	opts.SelectedUID = boxes[0].UID
	return geometry.Draw(f, boxes, mapper, opts)
}

func TestWritePNG(t *testing.T) {
	carried := 10.5
	frame := staticFrame{
		{Label: "2024-01-02", Open: 10, Close: 11, High: 12, Low: 9, Volume: 100, Color: models.ColorUp},
		{Label: "2024-01-03", Open: 11, Close: 10.5, High: 11.5, Low: 10, Volume: 80, Color: models.ColorDown},
		{Label: "2024-01-04", Open: 10.5, Close: 10.5, High: 10.5, Low: 10.5, Volume: 0, Color: models.ColorFlat, CarriedClose: &carried},
		{Label: "2024-01-05", Open: 10.5, Close: 10.5, High: 11, Low: 10, Volume: 50, Color: models.ColorFlat},
	}

	opts := DefaultOptions()
	opts.Width, opts.Height = 320, 200

	var buf bytes.Buffer
	if err := WritePNG(&buf, frame, len(frame), 8.5, 12.5, opts); err != nil {
		t.Fatalf("WritePNG() error = %v", err)
	}

	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("output is not a PNG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 320 || b.Dy() != 200 {
		t.Errorf("image size = %dx%d, want 320x200", b.Dx(), b.Dy())
	}
}

func TestNewCanvas_RejectsEmptySize(t *testing.T) {
	if _, err := NewCanvas(Options{Width: 0, Height: 100}); err == nil {
		t.Error("expected error for zero width")
	}
}

func TestCanvasMeasureText(t *testing.T) {
	c, err := NewCanvas(DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	short, long := c.MeasureText("Low"), c.MeasureText("High 12,345 (2024/01/05)")
	if short <= 0 || long <= short {
		t.Errorf("MeasureText widths = %v, %v", short, long)
	}
	if c.LineHeight() <= 0 {
		t.Error("line height should be positive")
	}
}

// The top bar sits at the right edge of a narrow canvas; its label must be
// measured with the real font and pulled back inside the plot.
func TestWritePNG_LabelsFitPlotArea(t *testing.T) {
	opts := DefaultOptions()
	opts.Width, opts.Height = 260, 200
	c, err := NewCanvas(opts)
	if err != nil {
		t.Fatal(err)
	}

	bars := []models.Bar{
		{Label: "2024-01-02", Open: 1000, Close: 1100, High: 1200, Low: 900, Volume: 10, Color: models.ColorUp},
		{Label: "2024-01-03", Open: 1100, Close: 1000, High: 1150, Low: 950, Volume: 10, Color: models.ColorDown},
		{Label: "2024-01-04", Open: 1000, Close: 99_000_000, High: 99_999_999, Low: 1000, Volume: 10, Color: models.ColorUp},
	}
	area := c.Area(24)
	mapper := geometry.NewLinearMapper(area, len(bars), 0, 100_000_000)
	labels := geometry.ExtremumLabels(bars, mapper, c, c.LineHeight(), geometry.DefaultStyle())
	if len(labels) != 2 {
		t.Fatalf("labels = %d, want 2", len(labels))
	}
	for _, l := range labels {
		if got := c.MeasureText(l.Text); got <= 0 || l.Rect.Right-l.Rect.Left < got-0.001 {
			t.Errorf("label %q width = %v, measured %v", l.Text, l.Rect.Right-l.Rect.Left, got)
		}
		if l.Rect.Left < area.Left || l.Rect.Right > area.Right {
			t.Errorf("label %q leaves plot area: %+v", l.Text, l.Rect)
		}
	}
}
