package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ECLResult is the outcome of one ECL calculation for one exposure.
type ECLResult struct {
	ExposureID string `json:"item_id"`
	Stage      Stage  `json:"stage"`

	PD  float64         `json:"probability_of_default"`
	LGD float64         `json:"loss_given_default"`
	EAD decimal.Decimal `json:"exposure_at_default"`

	ECL               decimal.Decimal `json:"ecl_amount"`
	TimeHorizonMonths int             `json:"time_horizon_months"`

	ScenarioName string       `json:"scenario_name,omitempty"`
	ScenarioType ScenarioType `json:"scenario_type,omitempty"`

	PeriodECL []decimal.Decimal `json:"period_ecl,omitempty"`
	PeriodPD  []float64         `json:"period_pd,omitempty"`

	CollateralValue   decimal.Decimal `json:"collateral_value"`
	UnsecuredExposure decimal.Decimal `json:"unsecured_exposure"`

	DiscountRate    float64          `json:"discount_rate"`
	PresentValueECL *decimal.Decimal `json:"present_value_ecl,omitempty"`
}

// ECLRate returns ECL / EAD, or 0 when EAD is zero.
func (r ECLResult) ECLRate() float64 {
	if !r.EAD.IsPositive() {
		return 0
	}
	return r.ECL.Div(r.EAD).InexactFloat64()
}

// IsLifetime reports whether the result was measured on a lifetime horizon.
func (r ECLResult) IsLifetime() bool {
	return r.Stage.UsesLifetimeECL()
}

// StageChange records a stage reassignment produced by staging. The
// exposure itself is left untouched; callers apply the change.
type StageChange struct {
	ExposureID string `json:"item_id"`
	From       Stage  `json:"from"`
	To         Stage  `json:"to"`
}

// Changed reports whether the stage moved.
func (c StageChange) Changed() bool {
	return c.From != c.To
}

// Key returns the migration key, e.g. "Stage 1_to_Stage 2".
func (c StageChange) Key() string {
	return MigrationKey(c.From, c.To)
}

// MigrationKey formats a from/to stage pair.
func MigrationKey(from, to Stage) string {
	return string(from) + "_to_" + string(to)
}

// StageTotals holds the ECL, exposure and count for one stage.
type StageTotals struct {
	ECL      decimal.Decimal `json:"ecl"`
	Exposure decimal.Decimal `json:"exposure"`
	Count    int             `json:"count"`
}

// Coverage returns ECL / exposure, or 0 when exposure is zero.
func (t StageTotals) Coverage() float64 {
	if !t.Exposure.IsPositive() {
		return 0
	}
	return t.ECL.Div(t.Exposure).InexactFloat64()
}

// PortfolioECLResult aggregates per-exposure results.
type PortfolioECLResult struct {
	TotalECL      decimal.Decimal `json:"total_ecl"`
	TotalExposure decimal.Decimal `json:"total_exposure"`
	TotalItems    int             `json:"total_items"`

	Stages map[Stage]*StageTotals `json:"stages"`

	ItemResults []ECLResult `json:"item_results,omitempty"`

	ECLBySector  map[string]decimal.Decimal `json:"ecl_by_sector"`
	ECLByProduct map[string]decimal.Decimal `json:"ecl_by_product"`
	ECLByRating  map[string]decimal.Decimal `json:"ecl_by_rating"`

	ScenarioName        string       `json:"scenario_name,omitempty"`
	ScenarioType        ScenarioType `json:"scenario_type,omitempty"`
	ScenarioProbability *float64     `json:"scenario_probability,omitempty"`

	CalculationDate   time.Time         `json:"calculation_date"`
	CalculationMethod CalculationMethod `json:"calculation_method"`

	// Failed lists exposure ids skipped because their calculation failed.
	Failed []string `json:"failed,omitempty"`

	// StageChanges lists the reclassifications staging produced. They are
	// not applied to the input exposures.
	StageChanges []StageChange `json:"stage_changes,omitempty"`
}

// NewPortfolioECLResult returns an empty result with all stage buckets and
// breakdown maps allocated.
func NewPortfolioECLResult() *PortfolioECLResult {
	stages := make(map[Stage]*StageTotals, len(AllStages))
	for _, s := range AllStages {
		stages[s] = &StageTotals{ECL: decimal.Zero, Exposure: decimal.Zero}
	}
	return &PortfolioECLResult{
		TotalECL:          decimal.Zero,
		TotalExposure:     decimal.Zero,
		Stages:            stages,
		ECLBySector:       make(map[string]decimal.Decimal),
		ECLByProduct:      make(map[string]decimal.Decimal),
		ECLByRating:       make(map[string]decimal.Decimal),
		CalculationDate:   time.Now().UTC(),
		CalculationMethod: MethodIndividual,
	}
}

// Stage returns the totals for stage, never nil.
func (p *PortfolioECLResult) Stage(stage Stage) StageTotals {
	if t, ok := p.Stages[stage]; ok && t != nil {
		return *t
	}
	return StageTotals{ECL: decimal.Zero, Exposure: decimal.Zero}
}

// CoverageRatio returns total ECL / total exposure.
func (p *PortfolioECLResult) CoverageRatio() float64 {
	if !p.TotalExposure.IsPositive() {
		return 0
	}
	return p.TotalECL.Div(p.TotalExposure).InexactFloat64()
}

// StageCoverage returns the ECL coverage within a stage.
func (p *PortfolioECLResult) StageCoverage(stage Stage) float64 {
	return p.Stage(stage).Coverage()
}

// StageRatio returns stage exposure / total exposure.
func (p *PortfolioECLResult) StageRatio(stage Stage) float64 {
	if !p.TotalExposure.IsPositive() {
		return 0
	}
	return p.Stage(stage).Exposure.Div(p.TotalExposure).InexactFloat64()
}

// StageSummary is the summary view of one stage.
type StageSummary struct {
	ECL      decimal.Decimal `json:"ecl"`
	Exposure decimal.Decimal `json:"exposure"`
	Count    int             `json:"count"`
	Coverage float64         `json:"coverage"`
	Ratio    float64         `json:"ratio"`
}

// PortfolioSummary is the headline view of a portfolio result.
type PortfolioSummary struct {
	TotalECL      decimal.Decimal        `json:"total_ecl"`
	TotalExposure decimal.Decimal        `json:"total_exposure"`
	CoverageRatio float64                `json:"coverage_ratio"`
	TotalItems    int                    `json:"total_items"`
	Stages        map[Stage]StageSummary `json:"stages"`
	ScenarioName  string                 `json:"scenario_name,omitempty"`
	Calculated    time.Time              `json:"calculation_date"`
}

// Summary returns the headline figures.
func (p *PortfolioECLResult) Summary() PortfolioSummary {
	stages := make(map[Stage]StageSummary, len(AllStages))
	for _, s := range AllStages {
		t := p.Stage(s)
		stages[s] = StageSummary{
			ECL:      t.ECL,
			Exposure: t.Exposure,
			Count:    t.Count,
			Coverage: t.Coverage(),
			Ratio:    p.StageRatio(s),
		}
	}
	return PortfolioSummary{
		TotalECL:      p.TotalECL,
		TotalExposure: p.TotalExposure,
		CoverageRatio: p.CoverageRatio(),
		TotalItems:    p.TotalItems,
		Stages:        stages,
		ScenarioName:  p.ScenarioName,
		Calculated:    p.CalculationDate,
	}
}
