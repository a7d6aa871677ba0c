package geometry

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"candlelens/internal/candle"
	"candlelens/internal/models"
)

func testMapper(n int) *LinearMapper {
	return NewLinearMapper(Rect{Left: 0, Top: 0, Right: 1000, Bottom: 500}, n, 0, 100)
}

func ofKind(ins []Instruction, k Kind) []Instruction {
	var out []Instruction
	for _, i := range ins {
		if i.Kind == k {
			out = append(out, i)
		}
	}
	return out
}

func TestDraw_TradedUpBarHasWick(t *testing.T) {
	bars := candle.Build(models.OHLCSeries{
		Dates:   []string{"2024-01-02"},
		Opens:   []float64{10},
		Closes:  []float64{12},
		Highs:   []float64{13},
		Lows:    []float64{9},
		Volumes: []float64{100},
	})
	if bars[0].Color != models.ColorUp {
		t.Fatalf("color = %s, want up", bars[0].Color)
	}

	m := testMapper(1)
	ins := Draw(bars, nil, m, DefaultOptions())

	wicks := ofKind(ins, KindWick)
	if len(wicks) != 1 {
		t.Fatalf("wicks = %d, want 1", len(wicks))
	}
	if wicks[0].Points[0].Y != m.Y(13) || wicks[0].Points[1].Y != m.Y(9) {
		t.Errorf("wick = %+v, want from y(13) to y(9)", wicks[0].Points)
	}
	if len(ofKind(ins, KindFlat)) != 0 {
		t.Error("traded bar must not draw a flat marker")
	}
	if len(ofKind(ins, KindBody)) != 1 {
		t.Error("expected one body")
	}
}

func TestDraw_LeadingHaltDrawsNothing(t *testing.T) {
	bars := candle.Build(models.OHLCSeries{
		Dates:   []string{"2024-01-02"},
		Opens:   []float64{5},
		Closes:  []float64{5},
		Highs:   []float64{5},
		Lows:    []float64{5},
		Volumes: []float64{0},
	})

	ins := BarInstructions(bars, testMapper(1), DefaultStyle())
	if len(ins) != 0 {
		t.Errorf("instructions = %+v, want none", ins)
	}
	if labels := ExtremumLabels(bars, testMapper(1), FixedAdvance(7), 12, DefaultStyle()); labels != nil {
		t.Errorf("labels = %+v, want none without traded bars", labels)
	}
}

func TestDraw_HaltAfterTradeDrawsFlatAndTie(t *testing.T) {
	bars := candle.Build(models.OHLCSeries{
		Dates:   []string{"2024-01-02", "2024-01-03", "2024-01-04"},
		Opens:   []float64{20, 0, 30},
		Closes:  []float64{25, 0, 30},
		Highs:   []float64{26, 0, 31},
		Lows:    []float64{19, 0, 29},
		Volumes: []float64{1, 0, 1},
	})
	m := testMapper(3)
	ins := BarInstructions(bars, m, DefaultStyle())

	flats := ofKind(ins, KindFlat)
	if len(flats) != 1 || flats[0].Index != 1 || flats[0].Points[0].Y != m.Y(25) {
		t.Errorf("flat = %+v, want one at y(25) for bar 1", flats)
	}
	ties := ofKind(ins, KindTie)
	if len(ties) != 1 || ties[0].Index != 2 {
		t.Errorf("tie = %+v, want one on bar 2", ties)
	}
	if len(ofKind(ins, KindWick)) != 2 {
		t.Error("expected wicks on traded bars only")
	}
}

func TestBuildBoxes_ClampsAndPads(t *testing.T) {
	bars := make([]models.Bar, 10)
	for i := range bars {
		bars[i] = models.Bar{High: float64(10 + i), Low: float64(i), Volume: 1}
	}

	matches := []models.PatternMatch{
		{StartIndex: -3, EndIndex: 40, Name: "wedge", Direction: models.DirectionUp},
		{StartIndex: 7, EndIndex: 2, Name: "inverted"},
		{StartIndex: 4, EndIndex: 4, Name: "single"},
	}
	boxes := BuildBoxes(bars, matches)
	if len(boxes) != 2 {
		t.Fatalf("boxes = %d, want 2", len(boxes))
	}

	b := boxes[0]
	if b.StartIndex != 0 || b.EndIndex != 9 {
		t.Errorf("clamped = [%d,%d], want [0,9]", b.StartIndex, b.EndIndex)
	}
	if b.UID != "-3-40-wedge" {
		t.Errorf("UID = %q, want unclamped uid", b.UID)
	}
	// span 0..19, padding 15%
	if b.MaxHigh != 19+19*0.15 || b.MinLow != 0-19*0.15 {
		t.Errorf("bounds = %v..%v", b.MinLow, b.MaxHigh)
	}

	single := boxes[1]
	if single.MaxHigh != 14+10*0.15 || single.MinLow != 4-10*0.15 {
		t.Errorf("single bounds = %v..%v", single.MinLow, single.MaxHigh)
	}
}

func TestBuildBoxes_FlatSpanGetsUnitPadding(t *testing.T) {
	bars := []models.Bar{{High: 5, Low: 5}, {High: 5, Low: 5}}
	boxes := BuildBoxes(bars, []models.PatternMatch{{StartIndex: 0, EndIndex: 1, Name: "flat"}})
	if boxes[0].MaxHigh != 6 || boxes[0].MinLow != 4 {
		t.Errorf("bounds = %v..%v, want 4..6", boxes[0].MinLow, boxes[0].MaxHigh)
	}
}

func TestBuildBoxes_NoBars(t *testing.T) {
	if boxes := BuildBoxes(nil, []models.PatternMatch{{StartIndex: 0, EndIndex: 1}}); len(boxes) != 0 {
		t.Errorf("boxes = %+v, want none", boxes)
	}
}

func TestBoxInstructions_Selection(t *testing.T) {
	bars := []models.Bar{{High: 2, Low: 1}, {High: 3, Low: 1}, {High: 4, Low: 2}}
	boxes := BuildBoxes(bars, []models.PatternMatch{
		{StartIndex: 0, EndIndex: 1, Name: "a"},
		{StartIndex: 1, EndIndex: 2, Name: "b", Direction: models.DirectionDown},
	})
	m := testMapper(3)

	ins := BoxInstructions(ApplySelection(boxes, "1-2-b"), m, DefaultStyle())
	if ins[0].Selected || !ins[1].Selected {
		t.Errorf("selection = %v/%v, want only second", ins[0].Selected, ins[1].Selected)
	}
	if ins[1].Color != DefaultStyle().DownColor {
		t.Errorf("down box color = %s", ins[1].Color)
	}
	if ins[0].Rect.Left != m.X(0)-m.BarWidth()/2 || ins[0].Rect.Right != m.X(1)+m.BarWidth()/2 {
		t.Errorf("box span = %+v", ins[0].Rect)
	}

	for _, i := range BoxInstructions(ApplySelection(boxes, ""), m, DefaultStyle()) {
		if i.Selected {
			t.Errorf("empty selection must leave every box unselected, got %s", i.UID)
		}
	}
}

func TestExtremumLabels_SideAndClamp(t *testing.T) {
	bars := make([]models.Bar, 10)
	for i := range bars {
		bars[i] = models.Bar{Open: 50, Close: 51, High: 60, Low: 40, Volume: 1, Label: "2024-01-02"}
	}
	bars[9].High = 90 // right edge
	bars[0].Low = 10  // left edge

	m := testMapper(10)
	area := m.Area()
	labels := ExtremumLabels(bars, m, FixedAdvance(7), 12, DefaultStyle())
	if len(labels) != 2 {
		t.Fatalf("labels = %d, want 2", len(labels))
	}

	high, low := labels[0], labels[1]
	if high.Anchor != AnchorRight || high.Rect.Right > m.X(9) {
		t.Errorf("high label = %+v, want growing left of bar 9", high)
	}
	if low.Anchor != AnchorLeft || low.Rect.Left < m.X(0) {
		t.Errorf("low label = %+v, want growing right of bar 0", low)
	}
	for _, l := range labels {
		if l.Rect.Left < area.Left || l.Rect.Right > area.Right || l.Rect.Top < area.Top || l.Rect.Bottom > area.Bottom {
			t.Errorf("label %q leaves plot area: %+v", l.Text, l.Rect)
		}
	}
}

func TestPlaceLabel_FlipsWhenOverflowing(t *testing.T) {
	// narrow area: a label right of center does not fit on the left
	m := NewLinearMapper(Rect{Left: 0, Top: 0, Right: 200, Bottom: 100}, 4, 0, 10)
	l := placeLabel("Label text 123", 2, 50, m, FixedAdvance(10), 12, "#000")
	if l.Anchor != AnchorLeft {
		t.Errorf("anchor = %s, want flipped to left", l.Anchor)
	}
	if l.Rect.Left < 0 || l.Rect.Right > 200 {
		t.Errorf("label = %+v, want inside area", l.Rect)
	}
}

func TestAxisLabels_AbbreviatedInsideArea(t *testing.T) {
	m := NewLinearMapper(Rect{Left: 10, Top: 10, Right: 410, Bottom: 210}, 5, 0, 2_000_000)
	labels := AxisLabels(m, 0, 2_000_000, 4, FixedAdvance(7), 12, DefaultStyle())
	if len(labels) != 5 {
		t.Fatalf("labels = %d, want 5", len(labels))
	}
	want := []string{"2M", "1.5M", "1M", "500K", "0"}
	for i, l := range labels {
		if l.Text != want[i] {
			t.Errorf("label %d = %q, want %q", i, l.Text, want[i])
		}
		if l.Rect.Top < 10 || l.Rect.Bottom > 210 {
			t.Errorf("label %q leaves plot area: %+v", l.Text, l.Rect)
		}
	}
	if AxisLabels(m, 5, 5, 4, FixedAdvance(7), 12, DefaultStyle()) != nil {
		t.Error("empty range should produce no labels")
	}
}

func TestOverlayInstructions_BreaksOnGaps(t *testing.T) {
	v := func(f float64) *float64 { return &f }
	s := models.OverlaySeries{
		Key:     "ma5",
		Visible: true,
		Points: []models.Point{
			{X: 0, Y: nil}, {X: 1, Y: v(10)}, {X: 2, Y: v(11)},
			{X: 3, Y: nil}, {X: 4, Y: v(12)}, {X: 5, Y: v(13)}, {X: 6, Y: v(14)},
		},
	}

	lines := OverlayInstructions(s, 7, testMapper(7))
	if len(lines) != 2 {
		t.Fatalf("polylines = %d, want 2", len(lines))
	}
	if len(lines[0].Points) != 2 || len(lines[1].Points) != 3 {
		t.Errorf("run lengths = %d/%d, want 2/3", len(lines[0].Points), len(lines[1].Points))
	}
}

func TestBuildBoxes_ClampProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("boxes stay within bar range", prop.ForAll(
		func(n, start, end int) bool {
			bars := make([]models.Bar, n)
			for i := range bars {
				bars[i] = models.Bar{High: float64(i + 1), Low: float64(i), Volume: 1}
			}
			boxes := BuildBoxes(bars, []models.PatternMatch{{StartIndex: start, EndIndex: end, Name: "p"}})
			for _, b := range boxes {
				if b.StartIndex < 0 || b.EndIndex > n-1 || b.StartIndex > b.EndIndex {
					return false
				}
				if b.MaxHigh <= b.MinLow {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 60),
		gen.IntRange(-50, 100),
		gen.IntRange(-50, 100),
	))

	properties.TestingRun(t)
}
