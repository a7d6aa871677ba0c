package geometry

// Kind tags a draw instruction.
type Kind string

const (
	KindBody     Kind = "body"
	KindWick     Kind = "wick"
	KindFlat     Kind = "flat"
	KindTie      Kind = "tie"
	KindLabel    Kind = "label"
	KindBox      Kind = "box"
	KindPolyline Kind = "polyline"
)

// Anchor is the side a label grows toward from its reference point.
type Anchor string

const (
	AnchorLeft  Anchor = "left"  // text grows rightwards
	AnchorRight Anchor = "right" // text grows leftwards
)

// Instruction is one abstract drawing step.
//
// Lines and polylines use Points; bodies, boxes and labels use Rect.
// Labels place Text with its baseline at Rect.Bottom.
type Instruction struct {
	Kind     Kind
	Index    int // bar index, -1 when not bar-bound
	Points   []Point
	Rect     Rect
	Color    string
	Text     string
	Anchor   Anchor
	UID      string
	Selected bool
	Dashed   bool
	Series   string // overlay key for polylines
}

// Style holds the colors used for instructions.
type Style struct {
	UpColor   string
	DownColor string
	FlatColor string
	HaltColor string
	TextColor string
}

// DefaultStyle returns the chart palette.
func DefaultStyle() Style {
	return Style{
		UpColor:   "#ff7675",
		DownColor: "#74b9ff",
		FlatColor: "#888888",
		HaltColor: "#b2bec3",
		TextColor: "#2d3436",
	}
}
