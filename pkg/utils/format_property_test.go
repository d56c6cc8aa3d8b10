package utils

import (
	"fmt"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
)

// Property: FormatCurrency groups digits in threes, keeps exactly the
// requested decimal places and preserves the rounded value.
func TestProperty_CurrencyFormatting(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())
	properties := gopter.NewProperties(parameters)

	properties.Property("FormatCurrency produces grouped fixed-decimal output", prop.ForAll(
		func(units int64, exp int32, places int) bool {
			amount := decimal.New(units, -exp)
			formatted := FormatCurrency(amount, "$", places)

			pattern := `^\d{1,3}(,\d{3})*$`
			if places > 0 {
				pattern = fmt.Sprintf(`^\d{1,3}(,\d{3})*\.\d{%d}$`, places)
			}
			groupedPattern := regexp.MustCompile(pattern)

			rounded := amount.Round(int32(places))
			if rounded.IsNegative() {
				if !strings.HasPrefix(formatted, "-$") {
					t.Logf("Expected -$ prefix for %s, got %s", amount, formatted)
					return false
				}
			} else if !strings.HasPrefix(formatted, "$") {
				t.Logf("Expected $ prefix for %s, got %s", amount, formatted)
				return false
			}

			numPart := strings.TrimPrefix(strings.TrimPrefix(formatted, "-"), "$")
			if !groupedPattern.MatchString(numPart) {
				t.Logf("Invalid grouping for %s: %s", amount, formatted)
				return false
			}

			parsed, err := decimal.NewFromString(strings.ReplaceAll(numPart, ",", ""))
			if err != nil {
				return false
			}
			if rounded.IsNegative() {
				parsed = parsed.Neg()
			}
			if !parsed.Equal(rounded) {
				t.Logf("Value drift for %s: %s vs %s", amount, parsed, rounded)
				return false
			}
			return true
		},
		gen.Int64Range(-1e15, 1e15),
		gen.Int32Range(0, 6),
		gen.IntRange(0, 4),
	))

	properties.TestingRun(t)
}
