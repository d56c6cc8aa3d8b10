// Package scenario provides the macroeconomic model, forward-looking
// adjustments and multi-scenario management.
package scenario

import (
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"

	apperrors "ifrs9-ecl/internal/errors"
	"ifrs9-ecl/internal/logging"
	"ifrs9-ecl/internal/models"
)

// Variable is a snapshot of one macroeconomic variable.
type Variable struct {
	Name        string  `json:"name"`
	Current     float64 `json:"current_value"`
	Baseline    float64 `json:"baseline_value"`
	Unit        string  `json:"unit,omitempty"`
	Description string  `json:"description,omitempty"`
}

// Change returns current − baseline.
func (v Variable) Change() float64 {
	return v.Current - v.Baseline
}

// RelativeChange returns (current − baseline) / |baseline|, or 0 for a zero
// baseline.
func (v Variable) RelativeChange() float64 {
	if v.Baseline == 0 {
		return 0
	}
	return (v.Current - v.Baseline) / math.Abs(v.Baseline)
}

type variableInfo struct {
	unit        string
	description string
}

var variableMetadata = map[string]variableInfo{
	models.VarGDPGrowth:        {"%", "Real GDP growth rate (annual)"},
	models.VarUnemploymentRate: {"%", "Unemployment rate"},
	models.VarInterestRate:     {"%", "Policy interest rate"},
	models.VarCreditSpreads:    {"bps", "Corporate credit spreads"},
	models.VarHousePriceIndex:  {"index", "House price index"},
	models.VarStockMarketIndex: {"index", "Stock market index"},
}

// DefaultBaseline returns the built-in baseline values.
func DefaultBaseline() map[string]float64 {
	return map[string]float64{
		models.VarGDPGrowth:        2.5,
		models.VarUnemploymentRate: 4.0,
		models.VarInterestRate:     2.5,
		models.VarCreditSpreads:    150,
		models.VarHousePriceIndex:  100,
		models.VarStockMarketIndex: 100,
	}
}

// stressScenarios are additive shocks applied by ApplyStressScenario.
var stressScenarios = map[string]map[string]float64{
	"recession": {
		models.VarGDPGrowth:        -4.0,
		models.VarUnemploymentRate: 4.0,
		models.VarInterestRate:     -1.0,
		models.VarCreditSpreads:    250,
		models.VarHousePriceIndex:  -20.0,
		models.VarStockMarketIndex: -30.0,
	},
	"boom": {
		models.VarGDPGrowth:        2.0,
		models.VarUnemploymentRate: -2.0,
		models.VarInterestRate:     1.0,
		models.VarCreditSpreads:    -50,
		models.VarHousePriceIndex:  10.0,
		models.VarStockMarketIndex: 20.0,
	},
	"stagflation": {
		models.VarGDPGrowth:        -1.0,
		models.VarUnemploymentRate: 3.0,
		models.VarInterestRate:     2.0,
		models.VarCreditSpreads:    150,
		models.VarHousePriceIndex:  -5.0,
		models.VarStockMarketIndex: -10.0,
	},
	"financial_crisis": {
		models.VarGDPGrowth:        -3.0,
		models.VarUnemploymentRate: 3.5,
		models.VarInterestRate:     -0.5,
		models.VarCreditSpreads:    400,
		models.VarHousePriceIndex:  -25.0,
		models.VarStockMarketIndex: -40.0,
	},
}

// StressScenarios returns the names accepted by ApplyStressScenario.
func StressScenarios() []string {
	names := make([]string, 0, len(stressScenarios))
	for name := range stressScenarios {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MacroModel holds baseline and current values of named macro variables.
// It is not safe for concurrent mutation; use Clone per scenario.
type MacroModel struct {
	names    []string
	baseline map[string]float64
	current  map[string]float64
	logger   zerolog.Logger
}

// NewMacroModel creates a model starting at baseline. An empty baseline
// uses DefaultBaseline.
func NewMacroModel(baseline map[string]float64, logger zerolog.Logger) *MacroModel {
	if len(baseline) == 0 {
		baseline = DefaultBaseline()
	}

	m := &MacroModel{
		baseline: make(map[string]float64, len(baseline)),
		current:  make(map[string]float64, len(baseline)),
		logger:   logging.WithComponent(logger, "macro"),
	}
	for name, v := range baseline {
		m.baseline[name] = v
		m.current[name] = v
	}
	m.names = orderedNames(baseline)
	return m
}

// orderedNames lists the standard variables first, then any extras sorted.
func orderedNames(values map[string]float64) []string {
	names := make([]string, 0, len(values))
	seen := make(map[string]bool, len(values))
	for _, name := range models.MacroVariables {
		if _, ok := values[name]; ok {
			names = append(names, name)
			seen[name] = true
		}
	}
	var extra []string
	for name := range values {
		if !seen[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	return append(names, extra...)
}

// Names returns the variable names in display order.
func (m *MacroModel) Names() []string {
	out := make([]string, len(m.names))
	copy(out, m.names)
	return out
}

// Variable returns a snapshot of one variable.
func (m *MacroModel) Variable(name string) (Variable, error) {
	current, ok := m.current[name]
	if !ok {
		return Variable{}, apperrors.Wrapf(apperrors.ErrUnknownVariable, "%s", name)
	}
	info := variableMetadata[name]
	return Variable{
		Name:        name,
		Current:     current,
		Baseline:    m.baseline[name],
		Unit:        info.unit,
		Description: info.description,
	}, nil
}

// Variables returns snapshots of all variables.
func (m *MacroModel) Variables() []Variable {
	vars := make([]Variable, 0, len(m.names))
	for _, name := range m.names {
		v, _ := m.Variable(name)
		vars = append(vars, v)
	}
	return vars
}

// Set overwrites the current value of a variable.
func (m *MacroModel) Set(name string, value float64) error {
	if _, ok := m.current[name]; !ok {
		return apperrors.Wrapf(apperrors.ErrUnknownVariable, "%s", name)
	}
	m.current[name] = value

	m.logger.Debug().
		Str("variable", name).
		Float64("value", value).
		Float64("change", value-m.baseline[name]).
		Msg("Macro variable updated")
	return nil
}

// ApplyShock adds each shock to the current value. Unknown variables are
// logged and skipped.
func (m *MacroModel) ApplyShock(shocks map[string]float64) {
	for _, name := range orderedNames(shocks) {
		shock := shocks[name]
		old, ok := m.current[name]
		if !ok {
			m.logger.Warn().Str("variable", name).Msg("Unknown variable in shock")
			continue
		}
		m.current[name] = old + shock

		m.logger.Debug().
			Str("variable", name).
			Float64("shock", shock).
			Float64("old_value", old).
			Float64("new_value", old+shock).
			Msg("Applied shock to macro variable")
	}
}

// ApplyMultiplicativeShock multiplies each current value by its factor.
// Unknown variables are logged and skipped.
func (m *MacroModel) ApplyMultiplicativeShock(factors map[string]float64) {
	for _, name := range orderedNames(factors) {
		factor := factors[name]
		old, ok := m.current[name]
		if !ok {
			m.logger.Warn().Str("variable", name).Msg("Unknown variable in shock")
			continue
		}
		m.current[name] = old * factor

		m.logger.Debug().
			Str("variable", name).
			Float64("multiplier", factor).
			Float64("old_value", old).
			Float64("new_value", old*factor).
			Msg("Applied multiplicative shock")
	}
}

// ApplyStressScenario applies a named preset shock: recession, boom,
// stagflation or financial_crisis.
func (m *MacroModel) ApplyStressScenario(name string) error {
	shocks, ok := stressScenarios[name]
	if !ok {
		return apperrors.Wrapf(apperrors.ErrUnknownStress, "%s (known: %v)", name, StressScenarios())
	}
	m.ApplyShock(shocks)

	m.logger.Info().Str("scenario", name).Msg("Applied stress scenario")
	return nil
}

// ResetToBaseline restores every current value to its baseline.
func (m *MacroModel) ResetToBaseline() {
	for name, v := range m.baseline {
		m.current[name] = v
	}
}

// Changes returns current − baseline for every variable.
func (m *MacroModel) Changes() map[string]float64 {
	changes := make(map[string]float64, len(m.current))
	for name, v := range m.current {
		changes[name] = v - m.baseline[name]
	}
	return changes
}

// RelativeChanges returns the zero-safe relative change of every variable.
func (m *MacroModel) RelativeChanges() map[string]float64 {
	changes := make(map[string]float64, len(m.current))
	for name, v := range m.current {
		base := m.baseline[name]
		if base == 0 {
			changes[name] = 0
			continue
		}
		changes[name] = (v - base) / math.Abs(base)
	}
	return changes
}

// ProjectForward compounds monthly growth rates from the current values and
// returns one snapshot per month. Variables without a rate stay flat.
func (m *MacroModel) ProjectForward(months int, growthRates map[string]float64) []map[string]float64 {
	if months <= 0 {
		return nil
	}

	state := make(map[string]float64, len(m.current))
	for name, v := range m.current {
		state[name] = v
	}

	projections := make([]map[string]float64, 0, months)
	for i := 0; i < months; i++ {
		for name, rate := range growthRates {
			if v, ok := state[name]; ok {
				state[name] = v * (1 + rate)
			}
		}
		snapshot := make(map[string]float64, len(state))
		for name, v := range state {
			snapshot[name] = v
		}
		projections = append(projections, snapshot)
	}
	return projections
}

// Clone returns an independent copy sharing no state.
func (m *MacroModel) Clone() *MacroModel {
	c := &MacroModel{
		names:    m.Names(),
		baseline: make(map[string]float64, len(m.baseline)),
		current:  make(map[string]float64, len(m.current)),
		logger:   m.logger,
	}
	for name, v := range m.baseline {
		c.baseline[name] = v
	}
	for name, v := range m.current {
		c.current[name] = v
	}
	return c
}

// MacroSummary is the state of a macro model.
type MacroSummary struct {
	Current  map[string]float64 `json:"current_values"`
	Baseline map[string]float64 `json:"baseline_values"`
	Absolute map[string]float64 `json:"absolute_changes"`
	Relative map[string]float64 `json:"relative_changes"`
}

// Summary returns current values, baselines and changes.
func (m *MacroModel) Summary() MacroSummary {
	current := make(map[string]float64, len(m.current))
	baseline := make(map[string]float64, len(m.baseline))
	for name, v := range m.current {
		current[name] = v
		baseline[name] = m.baseline[name]
	}
	return MacroSummary{
		Current:  current,
		Baseline: baseline,
		Absolute: m.Changes(),
		Relative: m.RelativeChanges(),
	}
}

// String implements fmt.Stringer.
func (m *MacroModel) String() string {
	return fmt.Sprintf("MacroModel(%d variables)", len(m.names))
}
