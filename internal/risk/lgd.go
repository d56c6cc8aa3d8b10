package risk

import (
	"math"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ifrs9-ecl/internal/config"
	"ifrs9-ecl/internal/logging"
	"ifrs9-ecl/internal/models"
)

// LGDCalculator computes loss given default from collateral coverage.
type LGDCalculator struct {
	cfg    config.LGDConfig
	logger zerolog.Logger
}

// NewLGDCalculator creates an LGD calculator from a config snapshot.
func NewLGDCalculator(cfg config.LGDConfig, logger zerolog.Logger) *LGDCalculator {
	return &LGDCalculator{
		cfg:    cfg,
		logger: logging.WithComponent(logger, "lgd"),
	}
}

// Haircut returns the collateral haircut for a collateral type. An empty
// type has no haircut; an unknown type gets the default haircut.
func (c *LGDCalculator) Haircut(collateralType string) float64 {
	if collateralType == "" {
		return 0
	}
	if h, ok := c.cfg.CollateralHaircuts[models.NormalizeKey(collateralType)]; ok {
		return h
	}
	return c.cfg.DefaultHaircut
}

// UnsecuredExposure returns the part of ead not covered by haircut
// collateral, floored at zero. Without collateral the whole ead is
// unsecured.
func (c *LGDCalculator) UnsecuredExposure(e models.Exposure, ead decimal.Decimal) decimal.Decimal {
	if e.CollateralValue.IsZero() {
		return ead
	}

	haircut := decimal.NewFromFloat(1 - c.Haircut(e.CollateralType))
	effective := e.CollateralValue.Mul(haircut)

	unsecured := ead.Sub(effective)
	if unsecured.IsNegative() {
		return decimal.Zero
	}
	return unsecured
}

// LGD returns the bounded LGD for an exposure at ead. Downturn applies the
// configured downturn multiplier before bounding.
func (c *LGDCalculator) LGD(e models.Exposure, ead decimal.Decimal, downturn bool) float64 {
	unsecured := c.UnsecuredExposure(e, ead)

	var base float64
	switch {
	case unsecured.GreaterThanOrEqual(ead):
		base = c.cfg.UnsecuredBase
	case unsecured.IsZero():
		base = c.cfg.SecuredBase
	default:
		ratio := unsecured.Div(ead).InexactFloat64()
		base = ratio*c.cfg.UnsecuredBase + (1-ratio)*c.cfg.SecuredBase
	}

	if downturn {
		base = c.ApplyDownturn(base)
	}

	lgd := c.Bound(base)

	c.logger.Debug().
		Str("item_id", e.ID).
		Str("ead", ead.String()).
		Str("collateral", e.CollateralValue.String()).
		Str("unsecured", unsecured.String()).
		Float64("lgd", lgd).
		Bool("downturn", downturn).
		Msg("Calculated LGD")

	return lgd
}

// ApplyDownturn scales lgd by the configured downturn multiplier. The
// result is not bounded.
func (c *LGDCalculator) ApplyDownturn(lgd float64) float64 {
	return c.ApplyDownturnWith(lgd, c.cfg.DownturnMultiplier)
}

// ApplyDownturnWith scales lgd by an explicit downturn multiplier.
func (c *LGDCalculator) ApplyDownturnWith(lgd, multiplier float64) float64 {
	return lgd * multiplier
}

// LGDWithCureRate returns the base LGD reduced by the share of defaults
// expected to cure.
func (c *LGDCalculator) LGDWithCureRate(e models.Exposure, ead decimal.Decimal, cureRate float64) float64 {
	return c.LGD(e, ead, false) * (1 - cureRate)
}

// ApplyScenario composes a scenario multiplier and downturn factor onto
// lgd and re-bounds it.
func (c *LGDCalculator) ApplyScenario(lgd, multiplier, downturnFactor float64) float64 {
	adjusted := c.Bound(lgd * multiplier * downturnFactor)

	c.logger.Debug().
		Float64("base_lgd", lgd).
		Float64("multiplier", multiplier).
		Float64("downturn_factor", downturnFactor).
		Float64("adjusted_lgd", adjusted).
		Msg("Applied scenario adjustment to LGD")

	return adjusted
}

// Bound clamps lgd to the configured floor and ceiling.
func (c *LGDCalculator) Bound(lgd float64) float64 {
	return math.Max(c.cfg.Floor, math.Min(c.cfg.Ceiling, lgd))
}

// Floor returns the configured LGD floor.
func (c *LGDCalculator) Floor() float64 { return c.cfg.Floor }

// Ceiling returns the configured LGD ceiling.
func (c *LGDCalculator) Ceiling() float64 { return c.cfg.Ceiling }
