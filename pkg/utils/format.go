// Package utils provides shared formatting and retry helpers.
package utils

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var currencySymbols = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"JPY": "¥",
	"INR": "₹",
}

// CurrencySymbol returns the symbol for an ISO code, or the code followed by
// a space when unknown.
func CurrencySymbol(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if s, ok := currencySymbols[code]; ok {
		return s
	}
	if code == "" {
		return ""
	}
	return code + " "
}

// FormatCurrency formats an amount with thousands separators, the given
// number of decimal places and a currency symbol, e.g. "-$1,234.50".
func FormatCurrency(amount decimal.Decimal, symbol string, places int) string {
	s := FormatAmountPlaces(amount, places)
	if strings.HasPrefix(s, "-") {
		return "-" + symbol + s[1:]
	}
	return symbol + s
}

// FormatAmountPlaces formats an amount with thousands separators, rounding
// half away from zero to places decimals. Negative places count as zero.
func FormatAmountPlaces(amount decimal.Decimal, places int) string {
	if places < 0 {
		places = 0
	}
	str := amount.StringFixed(int32(places))
	str = strings.TrimPrefix(str, "-")

	whole, frac, hasFrac := strings.Cut(str, ".")
	result := groupThousands(whole)
	if hasFrac {
		result += "." + frac
	}
	if amount.Round(int32(places)).IsNegative() {
		return "-" + result
	}
	return result
}

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

// FormatPercent formats a ratio as a percentage, 0.0325 -> "3.25%".
func FormatPercent(ratio float64) string {
	return fmt.Sprintf("%.2f%%", ratio*100)
}

// FormatSignedPercent formats a ratio as a percentage with an explicit sign
// for positive values.
func FormatSignedPercent(ratio float64) string {
	if ratio > 0 {
		return "+" + FormatPercent(ratio)
	}
	return FormatPercent(ratio)
}

// FormatBps formats a ratio in basis points, 0.0325 -> "325 bps".
func FormatBps(ratio float64) string {
	return fmt.Sprintf("%.0f bps", ratio*10000)
}

// FormatMultiplier formats a scenario multiplier, 1.3 -> "1.30x".
func FormatMultiplier(m float64) string {
	return fmt.Sprintf("%.2fx", m)
}

// TruncateString shortens s to maxLen runes, marking the cut with "...".
func TruncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
