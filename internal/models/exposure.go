package models

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// DaysPerMonth is the average month length used for term calculations.
const DaysPerMonth = 30.44

// DefaultDaysPastDue is the days-past-due level above which an exposure is
// treated as defaulted.
const DefaultDaysPastDue = 90

// Exposure represents a single credit facility in the portfolio.
type Exposure struct {
	ID         string `json:"item_id"`
	BorrowerID string `json:"borrower_id"`

	OriginationDate time.Time `json:"origination_date"`
	MaturityDate    time.Time `json:"maturity_date"`
	ReportingDate   time.Time `json:"reporting_date"`

	OutstandingAmount decimal.Decimal `json:"outstanding_amount"`
	UndrawnCommitment decimal.Decimal `json:"undrawn_commitment"`
	InterestRate      float64         `json:"interest_rate"`

	Sector      string `json:"sector"`
	ProductType string `json:"product_type"`
	Currency    string `json:"currency"`

	CollateralValue decimal.Decimal `json:"collateral_value"`
	CollateralType  string          `json:"collateral_type,omitempty"`

	CreditScore    int    `json:"credit_score"`
	InternalRating string `json:"internal_rating,omitempty"`
	ExternalRating string `json:"external_rating,omitempty"`

	DaysPastDue     int  `json:"days_past_due"`
	TimesPastDue12m int  `json:"times_past_due_12m"`
	IsForborne      bool `json:"is_forborne"`
	IsRestructured  bool `json:"is_restructured"`

	CurrentStage     Stage `json:"current_stage"`
	PreviousStage    Stage `json:"previous_stage,omitempty"`
	OriginationStage Stage `json:"origination_stage"`

	OriginationPD *float64 `json:"origination_pd,omitempty"`
	PreviousPD    *float64 `json:"previous_pd,omitempty"`

	Country string `json:"country,omitempty"`
	Region  string `json:"region,omitempty"`
}

// NewExposure returns an exposure with the loader defaults applied.
func NewExposure(id, borrowerID string, origination, maturity time.Time, outstanding decimal.Decimal) Exposure {
	return Exposure{
		ID:                id,
		BorrowerID:        borrowerID,
		OriginationDate:   origination,
		MaturityDate:      maturity,
		ReportingDate:     time.Now().UTC().Truncate(24 * time.Hour),
		OutstandingAmount: outstanding,
		UndrawnCommitment: decimal.Zero,
		CollateralValue:   decimal.Zero,
		Sector:            "Other",
		ProductType:       "Term Loan",
		Currency:          "USD",
		CreditScore:       500,
		CurrentStage:      Stage1,
		OriginationStage:  Stage1,
		Country:           "US",
	}
}

// TotalExposure returns outstanding plus undrawn commitment.
func (e Exposure) TotalExposure() decimal.Decimal {
	return e.OutstandingAmount.Add(e.UndrawnCommitment)
}

// LoanToValue returns outstanding / collateral, or +Inf without collateral.
func (e Exposure) LoanToValue() float64 {
	if !e.CollateralValue.IsPositive() {
		return math.Inf(1)
	}
	return e.OutstandingAmount.Div(e.CollateralValue).InexactFloat64()
}

// RemainingTermMonths returns the whole months from reporting date to
// maturity, floored at zero.
func (e Exposure) RemainingTermMonths() int {
	if !e.MaturityDate.After(e.ReportingDate) {
		return 0
	}
	months := int(float64(daysBetween(e.ReportingDate, e.MaturityDate)) / DaysPerMonth)
	if months < 0 {
		return 0
	}
	return months
}

// AgeMonths returns the whole months from origination to reporting date.
func (e Exposure) AgeMonths() int {
	return int(float64(daysBetween(e.OriginationDate, e.ReportingDate)) / DaysPerMonth)
}

// IsPastDue reports whether any payment is overdue.
func (e Exposure) IsPastDue() bool {
	return e.DaysPastDue > 0
}

// IsDefaulted reports whether the exposure is more than 90 days past due or
// already in Stage 3.
func (e Exposure) IsDefaulted() bool {
	return e.DaysPastDue > DefaultDaysPastDue || e.CurrentStage == Stage3
}

// WithStage returns a copy carrying stage as current stage and the old
// current stage as previous stage.
func (e Exposure) WithStage(stage Stage) Exposure {
	e.PreviousStage = e.CurrentStage
	e.CurrentStage = stage
	return e
}

func daysBetween(from, to time.Time) int {
	a := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	b := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

// Float64Ptr returns a pointer to v, used for optional PD fields.
func Float64Ptr(v float64) *float64 {
	return &v
}
