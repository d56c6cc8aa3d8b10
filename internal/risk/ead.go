package risk

import (
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ifrs9-ecl/internal/config"
	"ifrs9-ecl/internal/logging"
	"ifrs9-ecl/internal/models"
)

// projectionPrecision bounds decimal growth during month-by-month projection.
const projectionPrecision = 10

// EADCalculator computes exposure at default.
type EADCalculator struct {
	cfg    config.EADConfig
	logger zerolog.Logger
}

// NewEADCalculator creates an EAD calculator from a config snapshot.
func NewEADCalculator(cfg config.EADConfig, logger zerolog.Logger) *EADCalculator {
	return &EADCalculator{
		cfg:    cfg,
		logger: logging.WithComponent(logger, "ead"),
	}
}

// CCF resolves the credit conversion factor: override, then product table,
// then the default.
func (c *EADCalculator) CCF(e models.Exposure, override *float64) float64 {
	if override != nil {
		return *override
	}
	if f, ok := c.cfg.CCFByProduct[models.NormalizeKey(e.ProductType)]; ok {
		return f
	}
	return c.cfg.CCF
}

// CurrentEAD returns outstanding + undrawn × CCF.
func (c *EADCalculator) CurrentEAD(e models.Exposure, override *float64) decimal.Decimal {
	ccf := c.CCF(e, override)
	ead := e.OutstandingAmount.Add(e.UndrawnCommitment.Mul(decimal.NewFromFloat(ccf)))

	c.logger.Debug().
		Str("item_id", e.ID).
		Str("outstanding", e.OutstandingAmount.String()).
		Str("undrawn", e.UndrawnCommitment.String()).
		Float64("ccf", ccf).
		Str("ead", ead.String()).
		Msg("Calculated current EAD")

	return ead
}

// ProjectEAD rolls balances forward monthsAhead months, applying a monthly
// prepayment rate to outstanding and moving drawdownRate of the undrawn
// commitment into outstanding, then applies the CCF to the terminal
// balances.
func (c *EADCalculator) ProjectEAD(e models.Exposure, monthsAhead int, override *float64, prepaymentRate, drawdownRate float64) decimal.Decimal {
	outstanding := e.OutstandingAmount
	undrawn := e.UndrawnCommitment

	retain := decimal.NewFromFloat(1 - prepaymentRate)
	draw := decimal.NewFromFloat(drawdownRate)

	for m := 0; m < monthsAhead; m++ {
		outstanding = outstanding.Mul(retain).Round(projectionPrecision)
		drawdown := undrawn.Mul(draw).Round(projectionPrecision)
		outstanding = outstanding.Add(drawdown)
		undrawn = undrawn.Sub(drawdown)
	}

	ccf := decimal.NewFromFloat(c.CCF(e, override))
	return outstanding.Add(undrawn.Mul(ccf))
}

// ApplyScenario returns the current EAD scaled by a scenario multiplier.
func (c *EADCalculator) ApplyScenario(e models.Exposure, multiplier float64) decimal.Decimal {
	base := c.CurrentEAD(e, nil)
	return ScaleEAD(base, multiplier)
}

// ScaleEAD multiplies an EAD by a rate. A multiplier of exactly 1 returns
// ead unchanged.
func ScaleEAD(ead decimal.Decimal, multiplier float64) decimal.Decimal {
	if multiplier == 1 {
		return ead
	}
	return ead.Mul(decimal.NewFromFloat(multiplier))
}
