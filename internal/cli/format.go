package cli

import (
	"fmt"
	"math"
	"strings"

	"github.com/samber/lo"

	apperrors "candlelens/internal/errors"
	"candlelens/internal/models"
)

// FormatSigned formats a score component with an explicit sign.
func FormatSigned(v float64) string {
	if math.IsNaN(v) {
		return "-"
	}
	if v == 0 {
		return "0.000"
	}
	return fmt.Sprintf("%+.3f", v)
}

// FormatReading formats an optional factor percentile.
func FormatReading(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f", *v)
}

// ParseKinds parses pattern kind names. An empty list selects every kind.
func ParseKinds(names []string) ([]models.PatternKind, error) {
	names = lo.Filter(lo.Map(names, func(n string, _ int) string {
		return strings.ToLower(strings.TrimSpace(n))
	}), func(n string, _ int) bool { return n != "" })
	if len(names) == 0 {
		return models.AllPatternKinds, nil
	}

	kinds := make([]models.PatternKind, 0, len(names))
	for _, n := range lo.Uniq(names) {
		k := models.PatternKind(n)
		if !lo.Contains(models.AllPatternKinds, k) {
			return nil, apperrors.NewValidationError("kinds", n, "unknown pattern kind")
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}
