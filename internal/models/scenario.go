package models

import (
	"fmt"

	apperrors "ifrs9-ecl/internal/errors"
)

// Macroeconomic variable names shared by scenarios, the macro model and the
// elasticity tables.
const (
	VarGDPGrowth        = "gdp_growth"
	VarUnemploymentRate = "unemployment_rate"
	VarInterestRate     = "interest_rate"
	VarCreditSpreads    = "credit_spreads"
	VarHousePriceIndex  = "house_price_index"
	VarStockMarketIndex = "stock_market_index"
)

// MacroVariables lists every macroeconomic variable in a stable order.
var MacroVariables = []string{
	VarGDPGrowth,
	VarUnemploymentRate,
	VarInterestRate,
	VarCreditSpreads,
	VarHousePriceIndex,
	VarStockMarketIndex,
}

// MacroAdjustments holds scenario deltas from the macroeconomic baseline.
// GDP growth and unemployment are in percentage points, interest rate and
// credit spreads in basis points, the indices in percent.
type MacroAdjustments struct {
	GDPGrowth        float64 `json:"gdp_growth" yaml:"gdp_growth" mapstructure:"gdp_growth"`
	UnemploymentRate float64 `json:"unemployment_rate" yaml:"unemployment_rate" mapstructure:"unemployment_rate"`
	InterestRate     float64 `json:"interest_rate" yaml:"interest_rate" mapstructure:"interest_rate"`
	CreditSpreads    float64 `json:"credit_spreads" yaml:"credit_spreads" mapstructure:"credit_spreads"`
	HousePriceIndex  float64 `json:"house_price_index" yaml:"house_price_index" mapstructure:"house_price_index"`
	StockMarketIndex float64 `json:"stock_market_index" yaml:"stock_market_index" mapstructure:"stock_market_index"`
}

// ToMap returns the deltas keyed by variable name.
func (m MacroAdjustments) ToMap() map[string]float64 {
	return map[string]float64{
		VarGDPGrowth:        m.GDPGrowth,
		VarUnemploymentRate: m.UnemploymentRate,
		VarInterestRate:     m.InterestRate,
		VarCreditSpreads:    m.CreditSpreads,
		VarHousePriceIndex:  m.HousePriceIndex,
		VarStockMarketIndex: m.StockMarketIndex,
	}
}

// IsZero reports whether every delta is zero.
func (m MacroAdjustments) IsZero() bool {
	return m == MacroAdjustments{}
}

// DefaultProjectionHorizon is the projection horizon for scenarios that do
// not set one.
const DefaultProjectionHorizon = 60

// ScenarioConfig describes one economic scenario and its weight.
type ScenarioConfig struct {
	Name        string       `json:"name" yaml:"name"`
	Type        ScenarioType `json:"scenario_type" yaml:"scenario_type"`
	Probability float64      `json:"probability" yaml:"probability"`
	Description string       `json:"description,omitempty" yaml:"description"`

	Macro MacroAdjustments `json:"macro_adjustments" yaml:"macro_adjustments"`

	PDMultiplier  float64 `json:"pd_multiplier" yaml:"pd_multiplier"`
	LGDMultiplier float64 `json:"lgd_multiplier" yaml:"lgd_multiplier"`
	EADMultiplier float64 `json:"ead_multiplier" yaml:"ead_multiplier"`

	LGDDownturnFactor  float64 `json:"lgd_downturn_factor" yaml:"lgd_downturn_factor"`
	CureRateAdjustment float64 `json:"cure_rate_adjustment" yaml:"cure_rate_adjustment"`

	ProjectionHorizonMonths int `json:"projection_horizon_months" yaml:"projection_horizon_months"`
}

// NewScenarioConfig returns a validated scenario with neutral multipliers.
func NewScenarioConfig(name string, scenarioType ScenarioType, probability float64) (ScenarioConfig, error) {
	s := ScenarioConfig{
		Name:                    name,
		Type:                    scenarioType,
		Probability:             probability,
		PDMultiplier:            1.0,
		LGDMultiplier:           1.0,
		EADMultiplier:           1.0,
		LGDDownturnFactor:       1.0,
		ProjectionHorizonMonths: DefaultProjectionHorizon,
	}
	if err := s.Validate(); err != nil {
		return ScenarioConfig{}, err
	}
	return s, nil
}

// Validate checks the probability weight and projection horizon.
func (s ScenarioConfig) Validate() error {
	if s.Probability < 0 || s.Probability > 1 {
		return apperrors.NewScenarioError(s.Name,
			fmt.Sprintf("probability %.4f out of range", s.Probability),
			apperrors.ErrInvalidProbability)
	}
	if s.ProjectionHorizonMonths < 1 {
		return apperrors.NewScenarioError(s.Name,
			fmt.Sprintf("projection horizon %d", s.ProjectionHorizonMonths),
			apperrors.ErrInvalidHorizon)
	}
	return nil
}

// IsIdentity reports whether the scenario leaves PD, LGD and EAD unchanged.
func (s ScenarioConfig) IsIdentity() bool {
	return s.PDMultiplier == 1 && s.LGDMultiplier == 1 && s.EADMultiplier == 1 &&
		s.LGDDownturnFactor == 1 && s.Macro.IsZero()
}
