package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ifrs9-ecl/internal/models"
)

// Property: saving a run and loading it back preserves every amount
// exactly, including item count and totals.
func TestProperty_RunRoundTripConsistency(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "runs_property.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	scenarioGen := gen.OneConstOf("base", "optimistic", "pessimistic", "probability_weighted")

	properties.Property("Run round-trip: save then load returns identical amounts", prop.ForAll(
		func(scenario string, count int, scale int32) bool {
			ctx := context.Background()
			want := sampleResult(scenario, count)
			// Rescale amounts so decimals with many fractional digits are covered.
			for i := range want.ItemResults {
				want.ItemResults[i].ECL = want.ItemResults[i].ECL.Shift(-scale)
			}

			runID, err := store.SaveRun(ctx, &Run{Result: want})
			if err != nil {
				t.Logf("Failed to save run: %v", err)
				return false
			}
			got, err := store.GetRun(ctx, runID)
			if err != nil {
				t.Logf("Failed to get run: %v", err)
				return false
			}

			if len(got.Result.ItemResults) != count || got.Result.TotalItems != count {
				t.Logf("Count mismatch: expected %d, got %d", count, len(got.Result.ItemResults))
				return false
			}
			if !got.Result.TotalECL.Equal(want.TotalECL) {
				t.Logf("Total mismatch: %s vs %s", want.TotalECL, got.Result.TotalECL)
				return false
			}
			sum := decimal.Zero
			for i, it := range got.Result.ItemResults {
				if !it.ECL.Equal(want.ItemResults[i].ECL) || it.ExposureID != want.ItemResults[i].ExposureID {
					t.Logf("Item mismatch at %d: %s vs %s", i, want.ItemResults[i].ECL, it.ECL)
					return false
				}
				sum = sum.Add(it.EAD)
			}
			return sum.Equal(got.Result.TotalExposure) && got.Result.Stage(models.Stage1).Count == want.Stage(models.Stage1).Count
		},
		scenarioGen,
		gen.IntRange(0, 40),
		gen.Int32Range(0, 12),
	))

	properties.TestingRun(t)
}
