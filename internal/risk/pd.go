// Package risk provides the PD, LGD and EAD calculators.
package risk

import (
	"math"

	"github.com/rs/zerolog"

	"ifrs9-ecl/internal/config"
	"ifrs9-ecl/internal/logging"
	"ifrs9-ecl/internal/models"
)

// survivalCutoff ends a marginal PD curve once survival drops below it.
const survivalCutoff = 0.01

// referencePD scales the monthly hazard rate by the 12-month PD.
const referencePD = 0.01

// PDCalculator computes probabilities of default.
type PDCalculator struct {
	cfg    config.PDConfig
	logger zerolog.Logger
}

// NewPDCalculator creates a PD calculator from a config snapshot.
func NewPDCalculator(cfg config.PDConfig, logger zerolog.Logger) *PDCalculator {
	return &PDCalculator{
		cfg:    cfg,
		logger: logging.WithComponent(logger, "pd"),
	}
}

// TwelveMonthPD returns the bounded 12-month PD. A non-nil override replaces
// the score-implied PD; performance adjustments still apply.
func (c *PDCalculator) TwelveMonthPD(e models.Exposure, override *float64) float64 {
	var pd float64
	if override != nil {
		pd = *override
	} else {
		pd = c.ScoreToPD(e.CreditScore)
	}

	pd = c.Bound(pd * PerformanceMultiplier(e))

	c.logger.Debug().
		Str("item_id", e.ID).
		Int("credit_score", e.CreditScore).
		Float64("pd", pd).
		Msg("Calculated 12-month PD")

	return pd
}

// ScoreToPD maps a credit score onto the logistic PD curve.
func (c *PDCalculator) ScoreToPD(score int) float64 {
	span := c.cfg.CreditScoreMax - c.cfg.CreditScoreMin
	normalized := 0.0
	if span > 0 {
		normalized = (float64(score) - c.cfg.CreditScoreMin) / span
	}
	normalized = math.Max(0, math.Min(1, normalized))

	return c.cfg.LogisticCeiling / (1 + math.Exp(c.cfg.LogisticSteepness*(normalized-0.5)))
}

// PerformanceMultiplier compounds the delinquency, past-due history and
// forbearance adjustments.
func PerformanceMultiplier(e models.Exposure) float64 {
	m := 1.0

	switch dpd := e.DaysPastDue; {
	case dpd <= 0:
	case dpd <= 30:
		m *= 1.5
	case dpd <= 60:
		m *= 2.0
	case dpd <= 90:
		m *= 3.0
	default:
		m *= 5.0
	}

	if e.TimesPastDue12m > 0 {
		m *= 1 + 0.2*float64(e.TimesPastDue12m)
	}

	if e.IsForborne || e.IsRestructured {
		m *= 1.5
	}

	return m
}

// Bound clamps pd to the configured floor and ceiling.
func (c *PDCalculator) Bound(pd float64) float64 {
	return math.Max(c.cfg.Floor, math.Min(c.cfg.Ceiling, pd))
}

// HazardRate returns the monthly hazard rate for a stage.
func (c *PDCalculator) HazardRate(stage models.Stage) float64 {
	switch stage {
	case models.Stage1:
		return c.cfg.TermStructure.Stage1MonthlyRate
	case models.Stage2:
		return c.cfg.TermStructure.Stage2MonthlyRate
	default:
		return c.cfg.TermStructure.Stage3MonthlyRate
	}
}

// MarginalPDCurve returns monthly marginal default probabilities over
// min(horizon, remaining term) months for an exposure in stage. Each month
// defaults survival × hazard × (pd12m / 1%), capped at survival. The curve
// stops once survival falls below 1%.
func (c *PDCalculator) MarginalPDCurve(e models.Exposure, stage models.Stage, pd12m float64, horizonMonths int) []float64 {
	months := horizonMonths
	if remaining := e.RemainingTermMonths(); remaining < months {
		months = remaining
	}
	if months <= 0 {
		return []float64{}
	}

	hazard := c.HazardRate(stage)
	curve := make([]float64, 0, months)
	survival := 1.0

	for m := 0; m < months; m++ {
		marginal := math.Min(survival*hazard*pd12m/referencePD, survival)
		curve = append(curve, marginal)

		survival -= marginal
		if survival < survivalCutoff {
			break
		}
	}

	return curve
}

// CumulativePD folds a marginal curve into 1 − final survival.
func CumulativePD(marginal []float64) float64 {
	survival := 1.0
	for _, m := range marginal {
		survival -= m
	}
	return 1 - survival
}

// MarginalDefaultProbability returns the default probability between two
// survival points.
func MarginalDefaultProbability(startSurvival, endSurvival float64) float64 {
	return startSurvival - endSurvival
}

// LifetimePD returns the cumulative PD to maturity for an exposure in stage,
// bounded like the 12-month PD. Exposures with 12 months or less remaining
// use the 12-month PD.
func (c *PDCalculator) LifetimePD(e models.Exposure, stage models.Stage, override *float64) float64 {
	pd12m := c.TwelveMonthPD(e, override)

	remaining := e.RemainingTermMonths()
	if remaining <= 12 {
		return pd12m
	}

	curve := c.MarginalPDCurve(e, stage, pd12m, remaining)
	lifetime := c.Bound(CumulativePD(curve))

	c.logger.Debug().
		Str("item_id", e.ID).
		Float64("pd_12m", pd12m).
		Int("remaining_months", remaining).
		Float64("lifetime_pd", lifetime).
		Msg("Calculated lifetime PD")

	return lifetime
}

// LifetimePDCurve returns the marginal and cumulative curves to maturity.
func (c *PDCalculator) LifetimePDCurve(e models.Exposure, stage models.Stage, override *float64) (marginal, cumulative []float64) {
	pd12m := c.TwelveMonthPD(e, override)
	marginal = c.MarginalPDCurve(e, stage, pd12m, e.RemainingTermMonths())

	cumulative = make([]float64, len(marginal))
	survival := 1.0
	for i, m := range marginal {
		survival -= m
		cumulative[i] = 1 - survival
	}

	return marginal, cumulative
}

// ApplyScenario scales pd by a scenario multiplier and re-bounds it.
func (c *PDCalculator) ApplyScenario(pd, multiplier float64) float64 {
	return c.Bound(pd * multiplier)
}

// Floor returns the configured PD floor.
func (c *PDCalculator) Floor() float64 { return c.cfg.Floor }

// Ceiling returns the configured PD ceiling.
func (c *PDCalculator) Ceiling() float64 { return c.cfg.Ceiling }
