package scenario

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ifrs9-ecl/internal/config"
	apperrors "ifrs9-ecl/internal/errors"
	"ifrs9-ecl/internal/logging"
	"ifrs9-ecl/internal/models"
)

// ProbabilityTolerance is the allowed deviation of the probability sum
// from 1.
const ProbabilityTolerance = 0.01

// WeightedScenarioName names the probability-weighted portfolio result.
const WeightedScenarioName = "probability_weighted"

// Manager holds the registered scenarios, each with its own macro model.
type Manager struct {
	mu       sync.RWMutex
	order    []string
	byName   map[string]models.ScenarioConfig
	macro    map[string]*MacroModel
	baseline *MacroModel
	forward  *ForwardLooking
	overlay  bool
	logger   zerolog.Logger
}

// NewManager creates an empty manager. The macro baseline and elasticities
// come from cfg.
func NewManager(cfg config.MacroConfig, logger zerolog.Logger) *Manager {
	return &Manager{
		byName:   make(map[string]models.ScenarioConfig),
		macro:    make(map[string]*MacroModel),
		baseline: NewMacroModel(cfg.Baseline, logger),
		forward:  NewForwardLooking(cfg, logger),
		overlay:  cfg.ApplyOverlay,
		logger:   logging.WithComponent(logger, "scenarios"),
	}
}

// Forward returns the forward-looking adjustment model.
func (m *Manager) Forward() *ForwardLooking {
	return m.forward
}

// Add validates and registers s, replacing any scenario with the same name.
// Its macro model is the baseline shifted by s.Macro.
func (m *Manager) Add(s models.ScenarioConfig) error {
	if err := s.Validate(); err != nil {
		return err
	}

	model := m.baseline.Clone()
	model.ResetToBaseline()
	if !s.Macro.IsZero() {
		model.ApplyShock(s.Macro.ToMap())
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byName[s.Name]; !exists {
		m.order = append(m.order, s.Name)
	}
	m.byName[s.Name] = s
	m.macro[s.Name] = model

	m.logger.Info().
		Str("scenario", s.Name).
		Str("type", string(s.Type)).
		Float64("probability", s.Probability).
		Msg("Scenario added")
	return nil
}

// AddAll registers every scenario, stopping at the first invalid one.
func (m *Manager) AddAll(scenarios []models.ScenarioConfig) error {
	for _, s := range scenarios {
		if err := m.Add(s); err != nil {
			return err
		}
	}
	return nil
}

// Remove unregisters a scenario and reports whether it existed.
func (m *Manager) Remove(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byName[name]; !ok {
		return false
	}
	delete(m.byName, name)
	delete(m.macro, name)
	for i, n := range m.order {
		if n == name {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}

	m.logger.Info().Str("scenario", name).Msg("Scenario removed")
	return true
}

// Get returns a registered scenario.
func (m *Manager) Get(name string) (models.ScenarioConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.byName[name]
	if !ok {
		return models.ScenarioConfig{}, apperrors.NewScenarioError(name, "not registered", apperrors.ErrScenarioNotFound)
	}
	return s, nil
}

// List returns the scenarios in registration order.
func (m *Manager) List() []models.ScenarioConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.ScenarioConfig, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.byName[name])
	}
	return out
}

// Names returns the scenario names in registration order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// Len returns the number of registered scenarios.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.order)
}

// MacroModel returns a copy of a scenario's macro model.
func (m *Manager) MacroModel(name string) (*MacroModel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	model, ok := m.macro[name]
	if !ok {
		return nil, apperrors.NewScenarioError(name, "no macro model", apperrors.ErrScenarioNotFound)
	}
	return model.Clone(), nil
}

// DefaultScenarios returns the standard base, optimistic and pessimistic
// set weighted 50/25/25.
func DefaultScenarios() []models.ScenarioConfig {
	base, _ := models.NewScenarioConfig("base", models.ScenarioBase, 0.50)
	base.Description = "Base case economic scenario"

	optimistic, _ := models.NewScenarioConfig("optimistic", models.ScenarioOptimistic, 0.25)
	optimistic.Description = "Optimistic economic scenario"
	optimistic.Macro = models.MacroAdjustments{
		GDPGrowth:        1.5,
		UnemploymentRate: -1.0,
		CreditSpreads:    -50,
	}
	optimistic.PDMultiplier = 0.85
	optimistic.LGDMultiplier = 0.90

	pessimistic, _ := models.NewScenarioConfig("pessimistic", models.ScenarioPessimistic, 0.25)
	pessimistic.Description = "Pessimistic economic scenario"
	pessimistic.Macro = models.MacroAdjustments{
		GDPGrowth:        -2.0,
		UnemploymentRate: 2.0,
		CreditSpreads:    100,
	}
	pessimistic.PDMultiplier = 1.3
	pessimistic.LGDMultiplier = 1.2

	return []models.ScenarioConfig{base, optimistic, pessimistic}
}

// CreateDefaultScenarios registers DefaultScenarios.
func (m *Manager) CreateDefaultScenarios() error {
	if err := m.AddAll(DefaultScenarios()); err != nil {
		return err
	}
	m.logger.Info().Int("count", 3).Msg("Created default scenarios")
	return nil
}

// TotalProbability returns the sum of scenario probabilities.
func (m *Manager) TotalProbability() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	total := 0.0
	for _, name := range m.order {
		total += m.byName[name].Probability
	}
	return total
}

// ValidateProbabilities reports whether the probabilities sum to 1 within
// ProbabilityTolerance.
func (m *Manager) ValidateProbabilities() bool {
	total := m.TotalProbability()
	diff := total - 1
	if diff < 0 {
		diff = -diff
	}
	if diff > ProbabilityTolerance {
		m.logger.Warn().Float64("total_probability", total).Msg("Scenario probabilities do not sum to 1")
		return false
	}
	return true
}

// NormalizeProbabilities rescales probabilities to sum to 1. A zero total
// gives equal weights.
func (m *Manager) NormalizeProbabilities() {
	total := m.TotalProbability()

	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.order)
	if n == 0 {
		return
	}
	for _, name := range m.order {
		s := m.byName[name]
		if total == 0 {
			s.Probability = 1 / float64(n)
		} else {
			s.Probability /= total
		}
		m.byName[name] = s
	}

	m.logger.Info().Float64("original_total", total).Msg("Normalized scenario probabilities")
}

// Resolve returns the scenario to calculate with. When the macro overlay
// is enabled its multipliers are scaled by the forward-looking multipliers
// of its macro model.
func (m *Manager) Resolve(name string) (models.ScenarioConfig, error) {
	s, err := m.Get(name)
	if err != nil {
		return models.ScenarioConfig{}, err
	}
	if !m.overlay {
		return s, nil
	}

	model, err := m.MacroModel(name)
	if err != nil {
		return models.ScenarioConfig{}, err
	}
	mult := m.forward.ScenarioMultipliers(model)
	s.PDMultiplier *= mult.PD
	s.LGDMultiplier *= mult.LGD
	s.EADMultiplier *= mult.EAD

	m.logger.Debug().
		Str("scenario", name).
		Float64("pd_multiplier", s.PDMultiplier).
		Float64("lgd_multiplier", s.LGDMultiplier).
		Float64("ead_multiplier", s.EADMultiplier).
		Msg("Applied macro overlay")
	return s, nil
}

// ResolveAll resolves every registered scenario in order.
func (m *Manager) ResolveAll() ([]models.ScenarioConfig, error) {
	names := m.Names()
	out := make([]models.ScenarioConfig, 0, len(names))
	for _, name := range names {
		s, err := m.Resolve(name)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// weightFor returns the probability of a registered scenario and whether
// it is registered.
func (m *Manager) weightFor(name string) (float64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byName[name]
	return s.Probability, ok
}

// orderedResultNames returns result keys in registration order followed by
// unregistered keys sorted.
func (m *Manager) orderedResultNames(results map[string]*models.PortfolioECLResult) []string {
	names := make([]string, 0, len(results))
	seen := make(map[string]bool, len(results))
	for _, name := range m.Names() {
		if r, ok := results[name]; ok && r != nil {
			names = append(names, name)
			seen[name] = true
		}
	}
	var extra []string
	for name, r := range results {
		if !seen[name] && r != nil {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	return append(names, extra...)
}

// WeightedECL returns Σ probability × total ECL. Results for unregistered
// scenarios are skipped with a warning.
func (m *Manager) WeightedECL(results map[string]*models.PortfolioECLResult) decimal.Decimal {
	total := decimal.Zero
	for _, name := range m.orderedResultNames(results) {
		p, ok := m.weightFor(name)
		if !ok {
			m.logger.Warn().Str("scenario", name).Msg("Scenario not found, skipping")
			continue
		}
		total = total.Add(results[name].TotalECL.Mul(decimal.NewFromFloat(p)))
	}
	return total
}

// WeightedPortfolioResult combines per-scenario results into one
// probability-weighted result. ECL figures are weighted; exposures and
// counts are taken from the first scenario in registration order.
func (m *Manager) WeightedPortfolioResult(results map[string]*models.PortfolioECLResult) (*models.PortfolioECLResult, error) {
	names := m.orderedResultNames(results)
	if len(names) == 0 {
		return nil, apperrors.ErrNoScenarioResults
	}

	first := results[names[0]]
	weighted := models.NewPortfolioECLResult()
	weighted.ScenarioName = WeightedScenarioName
	weighted.TotalExposure = first.TotalExposure
	weighted.TotalItems = first.TotalItems
	weighted.CalculationMethod = first.CalculationMethod
	for _, s := range models.AllStages {
		t := first.Stage(s)
		weighted.Stages[s].Exposure = t.Exposure
		weighted.Stages[s].Count = t.Count
	}

	for _, name := range names {
		p, ok := m.weightFor(name)
		if !ok {
			m.logger.Warn().Str("scenario", name).Msg("Scenario not found, skipping")
			continue
		}
		w := decimal.NewFromFloat(p)
		r := results[name]

		weighted.TotalECL = weighted.TotalECL.Add(r.TotalECL.Mul(w))
		for _, s := range models.AllStages {
			weighted.Stages[s].ECL = weighted.Stages[s].ECL.Add(r.Stage(s).ECL.Mul(w))
		}
		addWeighted(weighted.ECLBySector, r.ECLBySector, w)
		addWeighted(weighted.ECLByProduct, r.ECLByProduct, w)
		addWeighted(weighted.ECLByRating, r.ECLByRating, w)
	}

	m.logger.Info().
		Str("weighted_ecl", weighted.TotalECL.StringFixed(2)).
		Int("scenarios", len(names)).
		Msg("Calculated probability-weighted ECL")

	return weighted, nil
}

func addWeighted(dst, src map[string]decimal.Decimal, w decimal.Decimal) {
	for k, v := range src {
		dst[k] = dst[k].Add(v.Mul(w))
	}
}

// ScenarioComparison is one scenario's row in a Comparison.
type ScenarioComparison struct {
	Name          string                           `json:"name"`
	Probability   float64                          `json:"probability"`
	TotalECL      decimal.Decimal                  `json:"total_ecl"`
	CoverageRatio float64                          `json:"coverage_ratio"`
	StageECL      map[models.Stage]decimal.Decimal `json:"stage_ecl"`
}

// Comparison contrasts portfolio ECL across scenarios.
type Comparison struct {
	Scenarios   []ScenarioComparison `json:"scenarios"`
	WeightedECL decimal.Decimal      `json:"weighted_ecl"`
	MinECL      decimal.Decimal      `json:"min_ecl"`
	MaxECL      decimal.Decimal      `json:"max_ecl"`
	RangeECL    decimal.Decimal      `json:"ecl_range"`
}

// Compare summarizes results side by side with the weighted ECL and the
// min, max and range of total ECL.
func (m *Manager) Compare(results map[string]*models.PortfolioECLResult) (Comparison, error) {
	names := m.orderedResultNames(results)
	if len(names) == 0 {
		return Comparison{}, apperrors.ErrNoScenarioResults
	}

	c := Comparison{
		Scenarios:   make([]ScenarioComparison, 0, len(names)),
		WeightedECL: m.WeightedECL(results),
	}
	for i, name := range names {
		r := results[name]
		p, _ := m.weightFor(name)

		stageECL := make(map[models.Stage]decimal.Decimal, len(models.AllStages))
		for _, s := range models.AllStages {
			stageECL[s] = r.Stage(s).ECL
		}
		c.Scenarios = append(c.Scenarios, ScenarioComparison{
			Name:          name,
			Probability:   p,
			TotalECL:      r.TotalECL,
			CoverageRatio: r.CoverageRatio(),
			StageECL:      stageECL,
		})

		if i == 0 || r.TotalECL.LessThan(c.MinECL) {
			c.MinECL = r.TotalECL
		}
		if i == 0 || r.TotalECL.GreaterThan(c.MaxECL) {
			c.MaxECL = r.TotalECL
		}
	}
	c.RangeECL = c.MaxECL.Sub(c.MinECL)
	return c, nil
}

// ManagerSummary describes the registered scenarios.
type ManagerSummary struct {
	Count            int                           `json:"scenario_count"`
	Names            []string                      `json:"scenario_names"`
	TotalProbability float64                       `json:"total_probability"`
	Valid            bool                          `json:"probabilities_valid"`
	Scenarios        []models.ScenarioConfig       `json:"scenarios"`
	Macro            map[string]map[string]float64 `json:"macro_changes"`
}

// Summary returns the registered scenarios with their macro changes.
func (m *Manager) Summary() ManagerSummary {
	names := m.Names()
	macro := make(map[string]map[string]float64, len(names))
	for _, name := range names {
		if model, err := m.MacroModel(name); err == nil {
			macro[name] = model.Changes()
		}
	}
	return ManagerSummary{
		Count:            len(names),
		Names:            names,
		TotalProbability: m.TotalProbability(),
		Valid:            m.ValidateProbabilities(),
		Scenarios:        m.List(),
		Macro:            macro,
	}
}
