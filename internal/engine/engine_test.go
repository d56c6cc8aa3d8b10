package engine

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ifrs9-ecl/internal/config"
	apperrors "ifrs9-ecl/internal/errors"
	"ifrs9-ecl/internal/models"
	"ifrs9-ecl/internal/scenario"
)

func newEngine() *Engine {
	return New(config.Default(), zerolog.Nop())
}

func testExposure(id string) models.Exposure {
	e := models.NewExposure(id, "B-"+id,
		time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2029, 1, 1, 0, 0, 0, 0, time.UTC),
		decimal.NewFromInt(1_000_000))
	e.ReportingDate = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	e.UndrawnCommitment = decimal.NewFromInt(500_000)
	e.ProductType = "Mortgage"
	e.Sector = "Retail"
	e.CreditScore = 575
	return e
}

func TestStage1ECL(t *testing.T) {
	t.Parallel()
	eng := newEngine()

	r, change, err := eng.CalculateECL(testExposure("A"), nil, true)
	require.NoError(t, err)
	assert.False(t, change.Changed())

	assert.Equal(t, models.Stage1, r.Stage)
	assert.Equal(t, TwelveMonthHorizon, r.TimeHorizonMonths)
	assert.InDelta(t, 0.10, r.PD, 1e-12)
	assert.Equal(t, 0.45, r.LGD)
	assert.True(t, r.EAD.Equal(decimal.NewFromInt(1_375_000)))
	assert.True(t, r.ECL.Equal(decimal.NewFromInt(61_875)), r.ECL.String())
	assert.True(t, r.UnsecuredExposure.Equal(r.EAD))
	assert.Nil(t, r.PeriodECL)
	assert.False(t, r.IsLifetime())
	assert.Equal(t, 0.05, r.DiscountRate)
	assert.Nil(t, r.PresentValueECL)
}

func TestStage3LifetimeECL(t *testing.T) {
	t.Parallel()
	eng := newEngine()

	x := testExposure("D")
	x.DaysPastDue = 95
	x.CurrentStage = models.Stage3

	r, change, err := eng.CalculateECL(x, nil, true)
	require.NoError(t, err)
	assert.False(t, change.Changed())

	// 12m PD 0.5 at stage 3 hazard defaults the whole balance in month one.
	assert.Equal(t, models.Stage3, r.Stage)
	assert.Equal(t, 0.99, r.PD)
	assert.Equal(t, 0.45, r.LGD)
	assert.Equal(t, []float64{1.0}, r.PeriodPD)
	require.Len(t, r.PeriodECL, 1)
	assert.True(t, r.ECL.Equal(decimal.RequireFromString("618750")), r.ECL.String())
	assert.Equal(t, 60, r.TimeHorizonMonths)
	assert.True(t, r.IsLifetime())
}

func TestStage2AppliesDownturn(t *testing.T) {
	t.Parallel()
	eng := newEngine()

	x := testExposure("B")
	x.DaysPastDue = 45

	r, change, err := eng.CalculateECL(x, nil, true)
	require.NoError(t, err)

	assert.Equal(t, models.Stage1, change.From)
	assert.Equal(t, models.Stage2, change.To)
	assert.Equal(t, models.Stage2, r.Stage)
	assert.InDelta(t, 0.5625, r.LGD, 1e-12)
	assert.True(t, r.ECL.Equal(decimal.RequireFromString("773437.5")), r.ECL.String())

	// The input is untouched.
	assert.Equal(t, models.Stage1, x.CurrentStage)
}

func TestLifetimeECLIsSumOfPeriods(t *testing.T) {
	t.Parallel()
	eng := newEngine()

	x := testExposure("C")
	x.CreditScore = 850
	x.IsForborne = true
	x.CollateralValue = decimal.NewFromInt(800_000)
	x.CollateralType = "Real Estate"

	r, _, err := eng.CalculateECL(x, nil, true)
	require.NoError(t, err)
	require.Equal(t, models.Stage2, r.Stage)
	require.Greater(t, len(r.PeriodPD), 12)
	require.Len(t, r.PeriodECL, len(r.PeriodPD))

	sum := decimal.Zero
	for _, p := range r.PeriodECL {
		sum = sum.Add(p)
	}
	assert.True(t, sum.Equal(r.ECL))
	assert.True(t, r.UnsecuredExposure.Equal(decimal.NewFromInt(735_000)))
}

func TestLifetimeECLPastMaturity(t *testing.T) {
	t.Parallel()
	eng := newEngine()

	x := testExposure("M")
	x.CurrentStage = models.Stage2
	x.ReportingDate = x.MaturityDate.AddDate(0, 1, 0)

	r, _, err := eng.CalculateECL(x, nil, false)
	require.NoError(t, err)
	assert.Equal(t, 0, r.TimeHorizonMonths)
	assert.NotNil(t, r.PeriodPD)
	assert.Empty(t, r.PeriodPD)
	assert.True(t, r.ECL.IsZero())
}

func TestWithoutStagingUsesRecordedStage(t *testing.T) {
	t.Parallel()
	eng := newEngine()

	x := testExposure("S")
	x.DaysPastDue = 120

	r, change, err := eng.CalculateECL(x, nil, false)
	require.NoError(t, err)
	assert.Equal(t, models.Stage1, r.Stage)
	assert.False(t, change.Changed())
}

func TestUnknownStageFails(t *testing.T) {
	t.Parallel()
	eng := newEngine()

	x := testExposure("U")
	x.CurrentStage = "Stage 9"

	_, _, err := eng.CalculateECL(x, nil, false)
	var calcErr *apperrors.CalculationError
	require.True(t, apperrors.As(err, &calcErr))
	assert.Equal(t, "U", calcErr.ExposureID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidExposure)
}

func TestScenarioAdjustments(t *testing.T) {
	t.Parallel()
	eng := newEngine()

	s := scenario.DefaultScenarios()[2]
	s.EADMultiplier = 1.1
	r, _, err := eng.CalculateECL(testExposure("A"), &s, true)
	require.NoError(t, err)

	assert.Equal(t, "pessimistic", r.ScenarioName)
	assert.Equal(t, models.ScenarioPessimistic, r.ScenarioType)
	assert.InDelta(t, 0.13, r.PD, 1e-12)
	assert.InDelta(t, 0.54, r.LGD, 1e-12)
	assert.True(t, r.EAD.Equal(decimal.NewFromInt(1_512_500)))
}

func TestIdentityScenarioMatchesBase(t *testing.T) {
	t.Parallel()
	eng := newEngine()
	identity := scenario.DefaultScenarios()[0]
	require.True(t, identity.IsIdentity())

	for _, x := range samplePortfolio() {
		base, _, err := eng.CalculateECL(x, nil, true)
		require.NoError(t, err)
		adjusted, _, err := eng.CalculateECL(x, &identity, true)
		require.NoError(t, err)

		assert.Equal(t, base.PD, adjusted.PD, x.ID)
		assert.Equal(t, base.LGD, adjusted.LGD, x.ID)
		assert.True(t, base.EAD.Equal(adjusted.EAD), x.ID)
		assert.True(t, base.ECL.Equal(adjusted.ECL), x.ID)
		assert.Equal(t, base.PeriodPD, adjusted.PeriodPD, x.ID)
	}
}

func samplePortfolio() []models.Exposure {
	a := testExposure("A")

	b := testExposure("B")
	b.DaysPastDue = 45
	b.Sector = "Construction"
	b.InternalRating = "BB"

	c := testExposure("C")
	c.CreditScore = 780
	c.IsRestructured = true
	c.ProductType = "Credit Card"
	c.CollateralValue = decimal.NewFromInt(400_000)
	c.CollateralType = "Equipment"

	d := testExposure("D")
	d.DaysPastDue = 95
	d.InternalRating = "D"

	return []models.Exposure{a, b, c, d}
}

func TestCalculatePortfolioECL(t *testing.T) {
	t.Parallel()
	eng := newEngine()

	exposures := samplePortfolio()
	bad := testExposure("X")
	bad.CurrentStage = ""
	exposures = append(exposures, bad)

	p, err := eng.CalculatePortfolioECL(context.Background(), exposures, nil, false)
	require.NoError(t, err)

	assert.Equal(t, 4, p.TotalItems)
	assert.Equal(t, []string{"X"}, p.Failed)
	assert.Empty(t, p.StageChanges)
	assert.Nil(t, p.ScenarioProbability)

	total := decimal.Zero
	exposure := decimal.Zero
	for _, r := range p.ItemResults {
		total = total.Add(r.ECL)
		exposure = exposure.Add(r.EAD)
	}
	assert.True(t, p.TotalECL.Equal(total))
	assert.True(t, p.TotalExposure.Equal(exposure))

	count := 0
	stageECL := decimal.Zero
	for _, s := range models.AllStages {
		count += p.Stage(s).Count
		stageECL = stageECL.Add(p.Stage(s).ECL)
	}
	assert.Equal(t, p.TotalItems, count)
	assert.True(t, stageECL.Equal(p.TotalECL))

	assert.Contains(t, p.ECLBySector, "Construction")
	assert.Contains(t, p.ECLByProduct, "Credit Card")
	assert.Contains(t, p.ECLByRating, UnratedKey)
	assert.Contains(t, p.ECLByRating, "BB")
}

func TestCalculatePortfolioECLRecordsStageChanges(t *testing.T) {
	t.Parallel()
	eng := newEngine()

	exposures := samplePortfolio()
	p, err := eng.CalculatePortfolioECL(context.Background(), exposures, nil, true)
	require.NoError(t, err)

	moved := make(map[string]models.Stage)
	for _, c := range p.StageChanges {
		moved[c.ExposureID] = c.To
	}
	assert.Equal(t, map[string]models.Stage{
		"B": models.Stage2,
		"C": models.Stage2,
		"D": models.Stage3,
	}, moved)
	assert.Equal(t, 1, p.Stage(models.Stage1).Count)
	assert.Equal(t, 2, p.Stage(models.Stage2).Count)
	assert.Equal(t, 1, p.Stage(models.Stage3).Count)

	for _, x := range exposures {
		assert.Equal(t, models.Stage1, x.CurrentStage)
	}
}

func TestCalculatePortfolioECLCancelled(t *testing.T) {
	t.Parallel()
	eng := newEngine()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := eng.CalculatePortfolioECL(ctx, samplePortfolio(), nil, true)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunScenarios(t *testing.T) {
	t.Parallel()
	eng := newEngine()
	exposures := samplePortfolio()

	m := scenario.NewManager(config.Default().Macro, zerolog.Nop())
	require.NoError(t, m.CreateDefaultScenarios())

	results, err := eng.RunScenarios(context.Background(), exposures, m.List(), 2, true)
	require.NoError(t, err)
	require.Len(t, results, 3)

	base, err := eng.CalculatePortfolioECL(context.Background(), exposures, nil, true)
	require.NoError(t, err)
	assert.True(t, results["base"].TotalECL.Equal(base.TotalECL))
	assert.Equal(t, 0.5, *results["base"].ScenarioProbability)

	assert.True(t, results["pessimistic"].TotalECL.GreaterThan(results["base"].TotalECL))
	assert.True(t, results["optimistic"].TotalECL.LessThan(results["base"].TotalECL))

	weighted, err := m.WeightedPortfolioResult(results)
	require.NoError(t, err)
	expected := decimal.Zero
	for _, s := range m.List() {
		expected = expected.Add(results[s.Name].TotalECL.Mul(decimal.NewFromFloat(s.Probability)))
	}
	assert.True(t, weighted.TotalECL.Equal(expected))

	_, err = eng.RunScenarios(context.Background(), exposures, nil, 2, true)
	assert.ErrorIs(t, err, apperrors.ErrNoScenarioResults)
}

func TestRunScenariosFailsWhenAScenarioPanics(t *testing.T) {
	t.Parallel()
	eng := newEngine()
	exposures := samplePortfolio()

	m := scenario.NewManager(config.Default().Macro, zerolog.Nop())
	require.NoError(t, m.CreateDefaultScenarios())

	results, err := eng.runScenarios(context.Background(), m.List(), 2,
		func(ctx context.Context, s *models.ScenarioConfig) (*models.PortfolioECLResult, error) {
			if s.Name == "pessimistic" {
				panic("aggregate: nil stage totals")
			}
			return eng.CalculatePortfolioECL(ctx, exposures, s, true)
		})
	require.Error(t, err)
	assert.Nil(t, results)

	var scenarioErr *apperrors.ScenarioError
	require.ErrorAs(t, err, &scenarioErr)
	assert.Equal(t, "pessimistic", scenarioErr.Scenario)
	assert.Contains(t, err.Error(), "panic")
}
