package staging

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"ifrs9-ecl/internal/models"
)

type stagingInput struct {
	dpd, times             int
	forborne, restructured bool
	originationPD          float64
	currentPD              float64
}

func (in stagingInput) exposure() models.Exposure {
	e := exposure("P")
	e.DaysPastDue = in.dpd
	e.TimesPastDue12m = in.times
	e.IsForborne = in.forborne
	e.IsRestructured = in.restructured
	e.OriginationPD = models.Float64Ptr(in.originationPD)
	return e
}

func stagingInputGen() gopter.Gen {
	return gopter.CombineGens(
		gen.IntRange(0, 365),
		gen.IntRange(0, 6),
		gen.Bool(),
		gen.Bool(),
		gen.Float64Range(0, 0.2),
		gen.Float64Range(0, 0.5),
	).Map(func(v []interface{}) stagingInput {
		return stagingInput{
			dpd:           v[0].(int),
			times:         v[1].(int),
			forborne:      v[2].(bool),
			restructured:  v[3].(bool),
			originationPD: v[4].(float64),
			currentPD:     v[5].(float64),
		}
	})
}

// Property: classification depends only on its inputs.
func TestProperty_ClassificationIsPure(t *testing.T) {
	f := newFramework()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())
	properties := gopter.NewProperties(parameters)

	properties.Property("classifying twice yields the same stage", prop.ForAll(
		func(in stagingInput, priorIdx int) bool {
			e := in.exposure()
			e.CurrentStage = models.AllStages[priorIdx]
			pd := in.currentPD

			first := f.ClassifyStage(e, &pd)
			second := f.ClassifyStage(e, &pd)

			// The recorded stage is not an input.
			e.CurrentStage = models.Stage1
			third := f.ClassifyStage(e, &pd)

			if first != second || first != third {
				t.Logf("non-deterministic stage for %+v: %s %s %s", in, first, second, third)
				return false
			}
			return true
		},
		stagingInputGen(),
		gen.IntRange(0, 2),
	))

	properties.TestingRun(t)
}

// Property: more days past due never lowers the stage.
func TestProperty_StageMonotonicInDaysPastDue(t *testing.T) {
	f := newFramework()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())
	properties := gopter.NewProperties(parameters)

	properties.Property("stage rank is non-decreasing in days past due", prop.ForAll(
		func(in stagingInput, step int) bool {
			pd := in.currentPD
			lower := f.ClassifyStage(in.exposure(), &pd)

			in.dpd += step
			higher := f.ClassifyStage(in.exposure(), &pd)

			if higher.Rank() < lower.Rank() {
				t.Logf("stage decreased from %s to %s for %+v", lower, higher, in)
				return false
			}
			return true
		},
		stagingInputGen(),
		gen.IntRange(0, 120),
	))

	properties.Property("more than 90 days past due is always Stage 3", prop.ForAll(
		func(in stagingInput, dpd int) bool {
			in.dpd = dpd
			pd := in.currentPD
			return f.IsCreditImpaired(in.exposure()) && f.ClassifyStage(in.exposure(), &pd) == models.Stage3
		},
		stagingInputGen(),
		gen.IntRange(91, 2000),
	))

	properties.TestingRun(t)
}
