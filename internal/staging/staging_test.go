package staging

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ifrs9-ecl/internal/config"
	"ifrs9-ecl/internal/models"
)

func newFramework() *Framework {
	return NewFramework(config.Default().Staging, zerolog.Nop())
}

func exposure(id string) models.Exposure {
	e := models.NewExposure(id, "B-"+id,
		time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2028, 6, 1, 0, 0, 0, 0, time.UTC),
		decimal.NewFromInt(250_000))
	e.ReportingDate = time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
	return e
}

type fixedPD float64

func (f fixedPD) TwelveMonthPD(models.Exposure, *float64) float64 { return float64(f) }

func TestClassifyStage(t *testing.T) {
	t.Parallel()
	f := newFramework()

	tests := []struct {
		name      string
		mutate    func(*models.Exposure)
		currentPD *float64
		want      models.Stage
	}{
		{"performing", func(e *models.Exposure) {}, nil, models.Stage1},
		{"dpd 95 impaired", func(e *models.Exposure) { e.DaysPastDue = 95 }, nil, models.Stage3},
		{"dpd 90 is not default", func(e *models.Exposure) { e.DaysPastDue = 90 }, nil, models.Stage2},
		{"forborne with arrears", func(e *models.Exposure) { e.IsForborne = true; e.DaysPastDue = 1 }, nil, models.Stage3},
		{"forborne current", func(e *models.Exposure) { e.IsForborne = true }, nil, models.Stage2},
		{"restructured 31 dpd", func(e *models.Exposure) { e.IsRestructured = true; e.DaysPastDue = 31 }, nil, models.Stage3},
		{"restructured 30 dpd", func(e *models.Exposure) { e.IsRestructured = true; e.DaysPastDue = 30 }, nil, models.Stage2},
		{"dpd 31", func(e *models.Exposure) { e.DaysPastDue = 31 }, nil, models.Stage2},
		{"dpd 30", func(e *models.Exposure) { e.DaysPastDue = 30 }, nil, models.Stage1},
		{"two past due events", func(e *models.Exposure) { e.TimesPastDue12m = 2 }, nil, models.Stage2},
		{"one past due event", func(e *models.Exposure) { e.TimesPastDue12m = 1 }, nil, models.Stage1},
		{"absolute pd increase", func(e *models.Exposure) { e.OriginationPD = models.Float64Ptr(0.02) }, models.Float64Ptr(0.0235), models.Stage2},
		{"small pd increase", func(e *models.Exposure) { e.OriginationPD = models.Float64Ptr(0.02) }, models.Float64Ptr(0.0229), models.Stage1},
		{"relative pd increase", func(e *models.Exposure) { e.OriginationPD = models.Float64Ptr(0.0005) }, models.Float64Ptr(0.0016), models.Stage2},
		{"pd without origination", func(e *models.Exposure) {}, models.Float64Ptr(0.5), models.Stage1},
		{"origination zero pd", func(e *models.Exposure) { e.OriginationPD = models.Float64Ptr(0) }, models.Float64Ptr(0.0001), models.Stage1},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			e := exposure("X")
			tt.mutate(&e)
			assert.Equal(t, tt.want, f.ClassifyStage(e, tt.currentPD))
		})
	}
}

func TestClassifyStageDoesNotMutate(t *testing.T) {
	f := newFramework()
	e := exposure("X")
	e.DaysPastDue = 120
	before := e

	change := f.Restage(e, nil)
	assert.Equal(t, before, e)
	assert.Equal(t, models.Stage1, change.From)
	assert.Equal(t, models.Stage3, change.To)
	assert.True(t, change.Changed())
	assert.Equal(t, "Stage 1_to_Stage 3", change.Key())
}

func TestPerformStageMigration(t *testing.T) {
	f := newFramework()

	a := exposure("A")
	b := exposure("B")
	b.DaysPastDue = 45
	c := exposure("C")
	c.DaysPastDue = 100
	c.CurrentStage = models.Stage2
	d := exposure("D")
	d.OriginationPD = models.Float64Ptr(0.001)
	input := []models.Exposure{a, b, c, d}

	updated, stats := f.PerformStageMigration(input, fixedPD(0.05))
	require.Len(t, updated, 4)

	assert.Equal(t, models.Stage1, updated[0].CurrentStage)
	assert.Equal(t, models.Stage2, updated[1].CurrentStage)
	assert.Equal(t, models.Stage1, updated[1].PreviousStage)
	assert.Equal(t, models.Stage3, updated[2].CurrentStage)
	assert.Equal(t, models.Stage2, updated[2].PreviousStage)
	assert.Equal(t, models.Stage2, updated[3].CurrentStage)

	assert.Equal(t, MigrationStats{
		"Stage 1_to_Stage 1": 1,
		"Stage 1_to_Stage 2": 2,
		"Stage 2_to_Stage 3": 1,
	}, stats)
	assert.Equal(t, 3, stats.TotalMigrations())

	// Inputs are untouched.
	assert.Equal(t, models.Stage1, input[1].CurrentStage)
	assert.Equal(t, models.Stage2, input[2].CurrentStage)

	// Without a PD source the PD test is skipped.
	updated, _ = f.PerformStageMigration([]models.Exposure{d}, nil)
	assert.Equal(t, models.Stage1, updated[0].CurrentStage)
}

func TestCheckCureEligibility(t *testing.T) {
	t.Parallel()
	f := newFramework()

	e := exposure("X")
	e.CurrentStage = models.Stage2
	assert.True(t, f.CheckCureEligibility(e, 3))
	assert.False(t, f.CheckCureEligibility(e, 2))

	e.DaysPastDue = 1
	assert.False(t, f.CheckCureEligibility(e, 12))

	e.DaysPastDue = 0
	e.TimesPastDue12m = 1
	assert.False(t, f.CheckCureEligibility(e, 12))

	e.TimesPastDue12m = 0
	e.CurrentStage = models.Stage3
	assert.False(t, f.CheckCureEligibility(e, 24))

	e.CurrentStage = models.Stage1
	assert.False(t, f.CheckCureEligibility(e, 24))
}

func TestStageSummary(t *testing.T) {
	t.Parallel()
	f := newFramework()

	a := exposure("A")
	b := exposure("B")
	b.CurrentStage = models.Stage2
	b.OutstandingAmount = decimal.NewFromInt(750_000)

	s := f.StageSummary([]models.Exposure{a, b})
	assert.Equal(t, 2, s.TotalCount)
	assert.True(t, s.TotalExposure.Equal(decimal.NewFromInt(1_000_000)))
	assert.Equal(t, 1, s.Stages[models.Stage1].Count)
	assert.InDelta(t, 25.0, s.Stages[models.Stage1].ExposurePct, 1e-9)
	assert.InDelta(t, 75.0, s.Stages[models.Stage2].ExposurePct, 1e-9)
	assert.Equal(t, 0, s.Stages[models.Stage3].Count)

	empty := f.StageSummary(nil)
	assert.Equal(t, 0.0, empty.Stages[models.Stage1].ExposurePct)
}
