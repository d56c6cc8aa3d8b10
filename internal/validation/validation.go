// Package validation checks exposures against data-quality and staging
// consistency rules before they reach the calculator.
package validation

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	apperrors "ifrs9-ecl/internal/errors"
	"ifrs9-ecl/internal/logging"
	"ifrs9-ecl/internal/models"
)

// Score bounds and the interest rate (in percent) above which a rate is
// treated as a data error.
const (
	MinCreditScore  = 300
	MaxCreditScore  = 850
	MaxInterestRate = 100.0
)

// Report lists every rule an exposure violated.
type Report struct {
	ExposureID string
	Errors     []*apperrors.ValidationError
}

// Valid reports whether no rule was violated.
func (r Report) Valid() bool {
	return len(r.Errors) == 0
}

// Messages returns the violation messages in rule order.
func (r Report) Messages() []string {
	out := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		out[i] = e.Field + ": " + e.Message
	}
	return out
}

// Err joins the violations into a single error, nil when valid.
func (r Report) Err() error {
	if r.Valid() {
		return nil
	}
	return apperrors.NewValidationError("item_id", r.ExposureID, strings.Join(r.Messages(), "; "))
}

// Validator applies the exposure rules. In strict mode FilterValid fails on
// the first invalid exposure instead of dropping it.
type Validator struct {
	strict bool
	now    func() time.Time
	logger zerolog.Logger
}

// NewValidator creates a validator.
func NewValidator(strict bool, logger zerolog.Logger) *Validator {
	return &Validator{
		strict: strict,
		now:    time.Now,
		logger: logging.WithComponent(logger, "validation"),
	}
}

// WithClock returns a copy that uses now for "in the future" checks.
func (v *Validator) WithClock(now func() time.Time) *Validator {
	cp := *v
	cp.now = now
	return &cp
}

// ValidateExposure runs every rule and returns the full report.
func (v *Validator) ValidateExposure(e models.Exposure) Report {
	var errs []*apperrors.ValidationError
	add := func(field string, value interface{}, format string, args ...interface{}) {
		errs = append(errs, apperrors.NewValidationError(field, value, fmt.Sprintf(format, args...)))
	}

	v.requiredFields(e, add)
	v.amounts(e, add)
	v.dates(e, add)
	v.creditMetrics(e, add)
	v.performance(e, add)
	v.businessRules(e, add)

	return Report{ExposureID: e.ID, Errors: errs}
}

type addFunc func(field string, value interface{}, format string, args ...interface{})

func (v *Validator) requiredFields(e models.Exposure, add addFunc) {
	if strings.TrimSpace(e.ID) == "" {
		add("item_id", e.ID, "item_id is required")
	}
	if strings.TrimSpace(e.BorrowerID) == "" {
		add("borrower_id", e.BorrowerID, "borrower_id is required")
	}
	if e.OriginationDate.IsZero() {
		add("origination_date", "", "origination_date is required")
	}
	if e.MaturityDate.IsZero() {
		add("maturity_date", "", "maturity_date is required")
	}
}

func (v *Validator) amounts(e models.Exposure, add addFunc) {
	nonNegative := func(field string, d decimal.Decimal) {
		if d.IsNegative() {
			add(field, d.String(), "%s must be non-negative", field)
		}
	}
	nonNegative("outstanding_amount", e.OutstandingAmount)
	nonNegative("undrawn_commitment", e.UndrawnCommitment)
	nonNegative("collateral_value", e.CollateralValue)

	switch {
	case e.InterestRate < 0:
		add("interest_rate", e.InterestRate, "interest_rate must be non-negative")
	case e.InterestRate > MaxInterestRate:
		add("interest_rate", e.InterestRate, "interest_rate seems unreasonably high: %.2f%%", e.InterestRate)
	}
}

func (v *Validator) dates(e models.Exposure, add addFunc) {
	if e.OriginationDate.IsZero() || e.MaturityDate.IsZero() {
		return
	}
	if !e.OriginationDate.Before(e.MaturityDate) {
		add("origination_date", day(e.OriginationDate),
			"origination_date must be before maturity_date (%s)", day(e.MaturityDate))
	}
	if e.OriginationDate.After(v.now()) {
		add("origination_date", day(e.OriginationDate), "origination_date is in the future")
	}
	if !e.ReportingDate.IsZero() && e.ReportingDate.Before(e.OriginationDate) {
		add("reporting_date", day(e.ReportingDate),
			"reporting_date is before origination_date (%s)", day(e.OriginationDate))
	}
}

func (v *Validator) creditMetrics(e models.Exposure, add addFunc) {
	if e.CreditScore < MinCreditScore || e.CreditScore > MaxCreditScore {
		add("credit_score", e.CreditScore, "credit_score must be between %d and %d", MinCreditScore, MaxCreditScore)
	}
	probability := func(field string, p *float64) {
		if p != nil && (*p < 0 || *p > 1) {
			add(field, *p, "%s must be between 0 and 1", field)
		}
	}
	probability("origination_pd", e.OriginationPD)
	probability("previous_pd", e.PreviousPD)
}

func (v *Validator) performance(e models.Exposure, add addFunc) {
	if e.DaysPastDue < 0 {
		add("days_past_due", e.DaysPastDue, "days_past_due must be non-negative")
	}
	if e.TimesPastDue12m < 0 {
		add("times_past_due_12m", e.TimesPastDue12m, "times_past_due_12m must be non-negative")
	}
}

func (v *Validator) businessRules(e models.Exposure, add addFunc) {
	if !e.CurrentStage.IsValid() {
		add("current_stage", string(e.CurrentStage), "unknown stage")
	}
	if e.DaysPastDue > 90 && e.CurrentStage != models.Stage3 {
		add("current_stage", string(e.CurrentStage),
			"exposure %d days past due should be in %s", e.DaysPastDue, models.Stage3)
	}
	if (e.IsForborne || e.IsRestructured) && e.CurrentStage == models.Stage1 {
		add("current_stage", string(e.CurrentStage), "forborne or restructured exposure should not be in %s", models.Stage1)
	}
	if e.CollateralValue.IsPositive() && strings.TrimSpace(e.CollateralType) == "" {
		add("collateral_type", "", "collateral_type is required when collateral_value is %s", e.CollateralValue)
	}
	if !e.ReportingDate.IsZero() && !e.MaturityDate.IsZero() && e.ReportingDate.After(e.MaturityDate) {
		add("reporting_date", day(e.ReportingDate), "exposure is past maturity (%s)", day(e.MaturityDate))
	}
}

// ValidatePortfolio returns the reports of invalid exposures in input order.
func (v *Validator) ValidatePortfolio(exposures []models.Exposure) []Report {
	var invalid []Report
	for _, e := range exposures {
		if r := v.ValidateExposure(e); !r.Valid() {
			invalid = append(invalid, r)
		}
	}
	return invalid
}

// FilterValid returns the valid exposures and the reports of the rest. In
// strict mode the first invalid exposure aborts with its joined error.
func (v *Validator) FilterValid(exposures []models.Exposure) ([]models.Exposure, []Report, error) {
	valid := make([]models.Exposure, 0, len(exposures))
	var invalid []Report

	for _, e := range exposures {
		r := v.ValidateExposure(e)
		if r.Valid() {
			valid = append(valid, e)
			continue
		}
		if v.strict {
			return nil, []Report{r}, r.Err()
		}
		invalid = append(invalid, r)
	}

	if len(invalid) > 0 {
		v.logger.Warn().
			Int("invalid_count", len(invalid)).
			Int("valid_count", len(valid)).
			Msg("Dropped invalid exposures")
	}
	return valid, invalid, nil
}

func day(t time.Time) string {
	return t.Format("2006-01-02")
}
