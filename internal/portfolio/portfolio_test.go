package portfolio

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "ifrs9-ecl/internal/errors"
	"ifrs9-ecl/internal/models"
)

func exposure(id string, outstanding int64) models.Exposure {
	e := models.NewExposure(id, "B-"+id,
		time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
		decimal.NewFromInt(outstanding))
	e.ReportingDate = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return e
}

func samplePortfolio() *Portfolio {
	a := exposure("A", 100)
	a.Sector = "Retail"
	a.CreditScore = 700
	a.CollateralValue = decimal.NewFromInt(200)

	b := exposure("B", 300)
	b.Sector = "Energy"
	b.ProductType = "Credit Card"
	b.UndrawnCommitment = decimal.NewFromInt(100)
	b.CurrentStage = models.Stage2
	b.DaysPastDue = 40
	b.CreditScore = 600
	b.CollateralValue = decimal.NewFromInt(600)

	c := exposure("C", 500)
	c.Sector = "Retail"
	c.CurrentStage = models.Stage3
	c.DaysPastDue = 120
	c.CreditScore = 500
	c.InternalRating = "D"

	return New([]models.Exposure{a, b, c}, zerolog.Nop())
}

func TestAddGetRemove(t *testing.T) {
	t.Parallel()
	p := samplePortfolio()
	require.Equal(t, 3, p.Len())

	got, ok := p.Get("B")
	require.True(t, ok)
	assert.Equal(t, "Energy", got.Sector)

	replacement := exposure("A", 999)
	p.Add(replacement)
	assert.Equal(t, 3, p.Len())
	got, _ = p.Get("A")
	assert.True(t, got.OutstandingAmount.Equal(decimal.NewFromInt(999)))
	assert.Equal(t, "A", p.Items()[2].ID)

	assert.True(t, p.Remove("B"))
	assert.False(t, p.Remove("B"))
	_, ok = p.Get("B")
	assert.False(t, ok)

	// The index follows the shifted items.
	got, ok = p.Get("C")
	require.True(t, ok)
	assert.Equal(t, "C", got.ID)
}

func TestFilters(t *testing.T) {
	t.Parallel()
	p := samplePortfolio()

	assert.Equal(t, 2, p.BySector("Retail").Len())
	assert.Equal(t, 1, p.ByStage(models.Stage3).Len())
	assert.Equal(t, 1, p.ByProduct("Credit Card").Len())
	assert.Equal(t, 1, p.ByRating("D").Len())
	assert.Equal(t, 0, p.ByRating("AAA").Len())
	assert.Equal(t, 3, p.Len())
}

func TestTotalsAndAverages(t *testing.T) {
	t.Parallel()
	p := samplePortfolio()

	assert.True(t, p.TotalExposure().Equal(decimal.NewFromInt(1000)))
	assert.True(t, p.TotalOutstanding().Equal(decimal.NewFromInt(900)))
	assert.True(t, p.TotalUndrawn().Equal(decimal.NewFromInt(100)))
	assert.True(t, p.TotalCollateral().Equal(decimal.NewFromInt(800)))
	assert.InDelta(t, 600.0, p.AverageCreditScore(), 1e-9)

	// C has no collateral and is excluded.
	assert.InDelta(t, 0.5, p.AverageLTV(), 1e-9)

	assert.Equal(t, 2, p.PastDueCount())
	assert.Equal(t, 1, p.DefaultedCount())

	assert.Equal(t, map[string]int{"Retail": 2, "Energy": 1}, p.SectorDistribution())
	assert.True(t, p.SectorExposure()["Energy"].Equal(decimal.NewFromInt(400)))
	assert.Equal(t, 2, p.ProductDistribution()["Term Loan"])
	assert.True(t, p.ProductExposure()["Term Loan"].Equal(decimal.NewFromInt(600)))
}

func TestEmptyPortfolio(t *testing.T) {
	t.Parallel()
	p := New(nil, zerolog.Nop())

	assert.Zero(t, p.AverageCreditScore())
	assert.Zero(t, p.AverageLTV())
	s := p.Summary()
	assert.Zero(t, s.TotalItems)
	assert.Zero(t, s.StageRatio[models.Stage1])
}

func TestSummary(t *testing.T) {
	t.Parallel()
	s := samplePortfolio().Summary()

	assert.Equal(t, 3, s.TotalItems)
	assert.Equal(t, 1, s.StageDistribution[models.Stage1])
	assert.True(t, s.StageExposure[models.Stage3].Equal(decimal.NewFromInt(500)))
	assert.InDelta(t, 0.1, s.StageRatio[models.Stage1], 1e-12)
	assert.InDelta(t, 0.4, s.StageRatio[models.Stage2], 1e-12)
	assert.InDelta(t, 0.5, s.StageRatio[models.Stage3], 1e-12)
}

func TestApplyStageChanges(t *testing.T) {
	t.Parallel()
	p := samplePortfolio()

	applied := p.ApplyStageChanges([]models.StageChange{
		{ExposureID: "A", From: models.Stage1, To: models.Stage2},
		{ExposureID: "B", From: models.Stage2, To: models.Stage2},
		{ExposureID: "Z", From: models.Stage1, To: models.Stage3},
	})
	assert.Equal(t, 1, applied)

	a, _ := p.Get("A")
	assert.Equal(t, models.Stage2, a.CurrentStage)
	assert.Equal(t, models.Stage1, a.PreviousStage)
}

func TestDuplicateLogsSentinelWithSingleComponent(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	p := New([]models.Exposure{exposure("A", 100), exposure("B", 200)}, logger)
	filtered := p.Filter(func(e models.Exposure) bool { return e.ID == "A" })
	require.Equal(t, 1, filtered.Len())

	filtered.Add(exposure("A", 300))

	line := strings.TrimSpace(buf.String())
	require.NotEmpty(t, line)
	assert.Equal(t, 1, strings.Count(line, `"component"`), line)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "portfolio", entry["component"])
	assert.Equal(t, "A", entry["item_id"])
	assert.Equal(t, apperrors.ErrDuplicateExposure.Error(), entry["error"])
}
