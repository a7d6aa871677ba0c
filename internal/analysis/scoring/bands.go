package scoring

// Band is a qualitative label for a score.
type Band string

const (
	BandUnfavorable  Band = "unfavorable"
	BandNeutral      Band = "neutral"
	BandMildFavor    Band = "mild-favor"
	BandFavor        Band = "favor"
	BandStrongFavor  Band = "strong-favor"
	BandExtremeFavor Band = "extreme-favor"
)

// bandTable lists lower bounds in descending order.
var bandTable = []struct {
	min  int
	band Band
}{
	{85, BandExtremeFavor},
	{75, BandStrongFavor},
	{65, BandFavor},
	{55, BandMildFavor},
	{45, BandNeutral},
}

// BandFor maps a 0-100 score to its band.
func BandFor(score int) Band {
	for _, b := range bandTable {
		if score >= b.min {
			return b.band
		}
	}
	return BandUnfavorable
}

// Description returns a one-line reading of the band.
func (b Band) Description() string {
	switch b {
	case BandExtremeFavor:
		return "factor backdrop strongly aligned with the pattern"
	case BandStrongFavor:
		return "factor backdrop clearly supports the pattern"
	case BandFavor:
		return "factor backdrop supports the pattern"
	case BandMildFavor:
		return "factor backdrop slightly supports the pattern"
	case BandNeutral:
		return "factor backdrop is mixed"
	default:
		return "factor backdrop works against the pattern"
	}
}
