package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ifrs9-ecl/pkg/utils"
)

// FormatDate formats a date for display.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02")
}

// FormatDateTime formats a timestamp for display in local time.
func FormatDateTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

// FormatDuration formats a duration for display.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
	return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
}

// FormatLarge scales an amount to the configured unit: thousands,
// millions or billions. Anything else prints the full amount.
func FormatLarge(amount decimal.Decimal, unit string, places int) string {
	var divisor int64
	var suffix string
	switch strings.ToLower(unit) {
	case "thousands":
		divisor, suffix = 1_000, "K"
	case "millions":
		divisor, suffix = 1_000_000, "M"
	case "billions":
		divisor, suffix = 1_000_000_000, "B"
	default:
		return utils.FormatAmountPlaces(amount, places)
	}
	return amount.Div(decimal.NewFromInt(divisor)).StringFixed(int32(places)) + suffix
}

// PadRight pads a string to the right.
func PadRight(s string, length int) string {
	if n := visibleLen(s); n < length {
		return s + strings.Repeat(" ", length-n)
	}
	return s
}
