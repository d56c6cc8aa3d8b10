package validation

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "ifrs9-ecl/internal/errors"
	"ifrs9-ecl/internal/models"
)

var fixedNow = time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)

func newValidator(strict bool) *Validator {
	return NewValidator(strict, zerolog.Nop()).WithClock(func() time.Time { return fixedNow })
}

func validExposure(id string) models.Exposure {
	e := models.NewExposure(id, "B-"+id,
		time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2028, 3, 1, 0, 0, 0, 0, time.UTC),
		decimal.NewFromInt(250_000))
	e.ReportingDate = time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
	e.CreditScore = 690
	e.InterestRate = 6.5
	return e
}

func fields(r Report) []string {
	out := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		out[i] = e.Field
	}
	return out
}

func TestValidateExposureValid(t *testing.T) {
	t.Parallel()
	r := newValidator(false).ValidateExposure(validExposure("A"))
	assert.True(t, r.Valid(), r.Messages())
	assert.NoError(t, r.Err())
}

func TestValidateExposureRules(t *testing.T) {
	t.Parallel()
	v := newValidator(false)

	tests := []struct {
		name   string
		mutate func(*models.Exposure)
		field  string
	}{
		{"missing id", func(e *models.Exposure) { e.ID = " " }, "item_id"},
		{"missing borrower", func(e *models.Exposure) { e.BorrowerID = "" }, "borrower_id"},
		{"negative outstanding", func(e *models.Exposure) { e.OutstandingAmount = decimal.NewFromInt(-1) }, "outstanding_amount"},
		{"negative undrawn", func(e *models.Exposure) { e.UndrawnCommitment = decimal.NewFromInt(-5) }, "undrawn_commitment"},
		{"negative rate", func(e *models.Exposure) { e.InterestRate = -0.1 }, "interest_rate"},
		{"excessive rate", func(e *models.Exposure) { e.InterestRate = 150 }, "interest_rate"},
		{"maturity not after origination", func(e *models.Exposure) {
			e.MaturityDate = e.OriginationDate
			e.ReportingDate = e.OriginationDate
		}, "origination_date"},
		{"future origination", func(e *models.Exposure) {
			e.OriginationDate = fixedNow.AddDate(0, 1, 0)
			e.ReportingDate = e.OriginationDate
		}, "origination_date"},
		{"reporting before origination", func(e *models.Exposure) { e.ReportingDate = e.OriginationDate.AddDate(0, 0, -1) }, "reporting_date"},
		{"score too low", func(e *models.Exposure) { e.CreditScore = 299 }, "credit_score"},
		{"score too high", func(e *models.Exposure) { e.CreditScore = 851 }, "credit_score"},
		{"origination pd", func(e *models.Exposure) { e.OriginationPD = models.Float64Ptr(1.2) }, "origination_pd"},
		{"previous pd", func(e *models.Exposure) { e.PreviousPD = models.Float64Ptr(-0.1) }, "previous_pd"},
		{"negative dpd", func(e *models.Exposure) { e.DaysPastDue = -3 }, "days_past_due"},
		{"negative times past due", func(e *models.Exposure) { e.TimesPastDue12m = -1 }, "times_past_due_12m"},
		{"dpd over 90 not stage 3", func(e *models.Exposure) { e.DaysPastDue = 91 }, "current_stage"},
		{"forborne in stage 1", func(e *models.Exposure) { e.IsForborne = true }, "current_stage"},
		{"restructured in stage 1", func(e *models.Exposure) { e.IsRestructured = true }, "current_stage"},
		{"collateral without type", func(e *models.Exposure) { e.CollateralValue = decimal.NewFromInt(10) }, "collateral_type"},
		{"past maturity", func(e *models.Exposure) { e.ReportingDate = e.MaturityDate.AddDate(0, 0, 1) }, "reporting_date"},
		{"unknown stage", func(e *models.Exposure) { e.CurrentStage = "Stage 4" }, "current_stage"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := validExposure("X")
			tt.mutate(&e)

			r := v.ValidateExposure(e)
			require.False(t, r.Valid())
			assert.Equal(t, []string{tt.field}, fields(r), r.Messages())
			assert.ErrorIs(t, r.Err(), apperrors.ErrInvalidExposure)
		})
	}
}

func TestValidateExposureCollectsEveryViolation(t *testing.T) {
	t.Parallel()
	e := validExposure("M")
	e.CreditScore = 100
	e.DaysPastDue = 120
	e.IsRestructured = true
	e.OutstandingAmount = decimal.NewFromInt(-10)

	r := newValidator(false).ValidateExposure(e)
	assert.Equal(t, []string{"outstanding_amount", "credit_score", "current_stage", "current_stage"}, fields(r))
	assert.Len(t, r.Messages(), 4)
}

func TestStage3DefaultIsConsistent(t *testing.T) {
	t.Parallel()
	e := validExposure("D")
	e.DaysPastDue = 120
	e.IsForborne = true
	e.CurrentStage = models.Stage3

	assert.True(t, newValidator(false).ValidateExposure(e).Valid())
}

func TestValidatePortfolio(t *testing.T) {
	t.Parallel()
	bad := validExposure("B")
	bad.CreditScore = 0

	invalid := newValidator(false).ValidatePortfolio([]models.Exposure{validExposure("A"), bad, validExposure("C")})
	require.Len(t, invalid, 1)
	assert.Equal(t, "B", invalid[0].ExposureID)
}

func TestFilterValid(t *testing.T) {
	t.Parallel()
	bad := validExposure("B")
	bad.DaysPastDue = -1
	exposures := []models.Exposure{validExposure("A"), bad, validExposure("C")}

	valid, invalid, err := newValidator(false).FilterValid(exposures)
	require.NoError(t, err)
	require.Len(t, valid, 2)
	assert.Equal(t, "A", valid[0].ID)
	assert.Equal(t, "C", valid[1].ID)
	require.Len(t, invalid, 1)
	assert.Equal(t, "B", invalid[0].ExposureID)

	valid, invalid, err = newValidator(true).FilterValid(exposures)
	require.Error(t, err)
	assert.Nil(t, valid)
	require.Len(t, invalid, 1)

	var verr *apperrors.ValidationError
	require.True(t, apperrors.As(err, &verr))
	assert.Equal(t, "B", verr.Value)
	assert.Contains(t, verr.Message, "days_past_due")
}
