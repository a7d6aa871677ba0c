// Package render executes geometry instructions onto a raster image.
package render

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/golang/freetype/truetype"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"candlelens/internal/geometry"
)

// Options controls the output image.
type Options struct {
	Width      int
	Height     int
	Background string
	FontSize   float64
}

// DefaultOptions returns an 1200x600 white canvas.
func DefaultOptions() Options {
	return Options{Width: 1200, Height: 600, Background: "#ffffff", FontSize: 10}
}

// Canvas wraps a go-chart renderer for one frame.
type Canvas struct {
	r    chart.Renderer
	font *truetype.Font
	opts Options
}

// NewCanvas creates a PNG canvas and paints the background.
func NewCanvas(opts Options) (*Canvas, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("invalid canvas size %dx%d", opts.Width, opts.Height)
	}
	if opts.FontSize <= 0 {
		opts.FontSize = 10
	}

	r, err := chart.PNG(opts.Width, opts.Height)
	if err != nil {
		return nil, fmt.Errorf("creating renderer: %w", err)
	}
	font, err := chart.GetDefaultFont()
	if err != nil {
		return nil, fmt.Errorf("loading font: %w", err)
	}
	c := &Canvas{r: r, font: font, opts: opts}
	c.textStyle(drawing.ColorBlack)
	if opts.Background != "" {
		c.fillRect(geometry.Rect{Right: float64(opts.Width), Bottom: float64(opts.Height)}, color(opts.Background))
	}
	return c, nil
}

// Area returns the full canvas rectangle inset by margin pixels.
func (c *Canvas) Area(margin float64) geometry.Rect {
	return geometry.Rect{
		Left:   margin,
		Top:    margin,
		Right:  float64(c.opts.Width) - margin,
		Bottom: float64(c.opts.Height) - margin,
	}
}

// MeasureText implements geometry.TextMeasurer with the canvas font.
func (c *Canvas) MeasureText(s string) float64 {
	c.textStyle(drawing.ColorBlack)
	return float64(c.r.MeasureText(s).Width())
}

// LineHeight returns the pixel height of one line of text.
func (c *Canvas) LineHeight() float64 {
	c.textStyle(drawing.ColorBlack)
	return float64(c.r.MeasureText("Hg").Height())
}

// textStyle resets the renderer style for text. ResetStyle drops the font
// size, so every text operation goes through here.
func (c *Canvas) textStyle(col drawing.Color) {
	c.r.ResetStyle()
	c.r.SetFont(c.font)
	c.r.SetFontSize(c.opts.FontSize)
	c.r.SetFontColor(col)
}

// Draw executes instructions in order.
func (c *Canvas) Draw(instructions []geometry.Instruction) {
	for _, in := range instructions {
		col := color(in.Color)
		switch in.Kind {
		case geometry.KindBody:
			c.fillRect(in.Rect, col)
		case geometry.KindWick, geometry.KindTie, geometry.KindFlat:
			c.polyline(in.Points, col, 1, false)
		case geometry.KindPolyline:
			c.polyline(in.Points, col, 1.5, in.Dashed)
		case geometry.KindBox:
			c.box(in, col)
		case geometry.KindLabel:
			c.textStyle(col)
			c.r.Text(in.Text, px(in.Rect.Left), px(in.Rect.Bottom))
		}
	}
}

// Save writes the PNG.
func (c *Canvas) Save(w io.Writer) error {
	return c.r.Save(w)
}

func (c *Canvas) fillRect(r geometry.Rect, col drawing.Color) {
	c.r.ResetStyle()
	c.r.SetFillColor(col)
	c.r.SetStrokeColor(col)
	c.r.SetStrokeWidth(1)
	c.rectPath(r)
	c.r.FillStroke()
}

func (c *Canvas) box(in geometry.Instruction, col drawing.Color) {
	fill := col.WithAlpha(24)
	width := 1.0
	if in.Selected {
		fill = col.WithAlpha(64)
		width = 2
	}

	c.r.ResetStyle()
	c.r.SetFillColor(fill)
	c.r.SetStrokeColor(col)
	c.r.SetStrokeWidth(width)
	if in.Dashed {
		c.r.SetStrokeDashArray([]float64{4, 3})
	}
	c.rectPath(in.Rect)
	c.r.FillStroke()

	if in.Text != "" {
		c.textStyle(col)
		c.r.Text(in.Text, px(in.Rect.Left)+2, px(in.Rect.Top)-3)
	}
}

func (c *Canvas) rectPath(r geometry.Rect) {
	c.r.MoveTo(px(r.Left), px(r.Top))
	c.r.LineTo(px(r.Right), px(r.Top))
	c.r.LineTo(px(r.Right), px(r.Bottom))
	c.r.LineTo(px(r.Left), px(r.Bottom))
	c.r.Close()
}

func (c *Canvas) polyline(points []geometry.Point, col drawing.Color, width float64, dashed bool) {
	if len(points) < 2 {
		return
	}
	c.r.ResetStyle()
	c.r.SetStrokeColor(col)
	c.r.SetStrokeWidth(width)
	if dashed {
		c.r.SetStrokeDashArray([]float64{5, 3})
	}
	c.r.MoveTo(px(points[0].X), px(points[0].Y))
	for _, p := range points[1:] {
		c.r.LineTo(px(p.X), px(p.Y))
	}
	c.r.Stroke()
}

func color(hex string) drawing.Color {
	if hex == "" {
		return drawing.ColorBlack
	}
	return drawing.ColorFromHex(strings.TrimPrefix(hex, "#"))
}

func px(v float64) int {
	return int(math.Round(v))
}

const axisTicks = 4

// Frame produces the instructions of one chart frame for a mapper.
type Frame interface {
	Draw(mapper geometry.Mapper, opts geometry.Options) []geometry.Instruction
}

// WritePNG draws barCount bars of frame spanning [lo, hi] and writes a PNG.
func WritePNG(w io.Writer, frame Frame, barCount int, lo, hi float64, opts Options) error {
	c, err := NewCanvas(opts)
	if err != nil {
		return err
	}
	mapper := geometry.NewLinearMapper(c.Area(24), barCount, lo, hi)

	drawOpts := geometry.DefaultOptions()
	drawOpts.Measurer = c
	drawOpts.LineHeight = c.LineHeight()

	c.Draw(geometry.AxisLabels(mapper, lo, hi, axisTicks, c, drawOpts.LineHeight, drawOpts.Style))
	c.Draw(frame.Draw(mapper, drawOpts))
	return c.Save(w)
}
