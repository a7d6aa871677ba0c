// Package utils provides shared utility functions.
package utils

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// FormatNumber formats a number with thousands separators and the given
// number of decimals.
func FormatNumber(value float64, decimals int) string {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return "-"
	}
	negative := value < 0
	if negative {
		value = -value
	}

	str := fmt.Sprintf("%.*f", decimals, value)
	intPart, decPart, _ := strings.Cut(str, ".")

	result := groupThousands(intPart)
	if decPart != "" {
		result += "." + decPart
	}
	if negative {
		result = "-" + result
	}
	return result
}

// groupThousands inserts a comma every three digits from the right.
func groupThousands(s string) string {
	n := len(s)
	if n <= 3 {
		return s
	}

	var b strings.Builder
	head := n % 3
	if head > 0 {
		b.WriteString(s[:head])
	}
	for i := head; i < n; i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// Abbreviate formats an axis value in compact form (K/M).
func Abbreviate(value float64) string {
	abs := math.Abs(value)
	switch {
	case abs >= 1_000_000:
		return trimZero(fmt.Sprintf("%.1f", value/1_000_000)) + "M"
	case abs >= 1_000:
		return trimZero(fmt.Sprintf("%.1f", value/1_000)) + "K"
	default:
		return FormatNumber(value, 0)
	}
}

func trimZero(s string) string {
	return strings.TrimSuffix(s, ".0")
}

// FormatPercent formats a percentage with sign.
func FormatPercent(value float64) string {
	sign := ""
	if value > 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%.2f%%", sign, value)
}

// FormatDateSlash formats a date as YYYY/MM/DD for chart labels.
func FormatDateSlash(t time.Time) string {
	return t.Format("2006/01/02")
}
