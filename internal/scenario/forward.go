package scenario

import (
	"math"
	"sort"

	"github.com/rs/zerolog"

	"ifrs9-ecl/internal/config"
	"ifrs9-ecl/internal/logging"
	"ifrs9-ecl/internal/models"
)

// Bounds for forward-looking adjustments.
const (
	adjustedPDFloor    = 0.0001
	adjustedPDCeiling  = 0.99
	adjustedLGDFloor   = 0.01
	adjustedLGDCeiling = 1.0
)

// Reference values used to turn a macro state into flat multipliers.
const (
	referencePD  = 0.02
	referenceLGD = 0.45
	referenceEAD = 1.0
)

// Drawdown stress per percentage point of GDP decline and unemployment rise.
const (
	gdpDeclineStress        = 0.02
	unemploymentRiseStress  = 0.015
	basisPointsPerPercent   = 100.0
	indexPointsPerUnitShare = 100.0
)

// Multipliers are flat PD, LGD and EAD scalars derived from a macro state.
type Multipliers struct {
	PD  float64 `json:"pd_multiplier"`
	LGD float64 `json:"lgd_multiplier"`
	EAD float64 `json:"ead_multiplier"`
}

// ForwardLooking converts macro deviations into elasticity-weighted
// adjustments.
type ForwardLooking struct {
	cfg    config.MacroConfig
	logger zerolog.Logger
}

// NewForwardLooking creates an adjustment model from a config snapshot.
func NewForwardLooking(cfg config.MacroConfig, logger zerolog.Logger) *ForwardLooking {
	return &ForwardLooking{
		cfg:    cfg,
		logger: logging.WithComponent(logger, "forward_looking"),
	}
}

// PDFactor returns Σ elasticity × change over the PD elasticities, with
// credit spreads converted from basis points to percentage points.
func (f *ForwardLooking) PDFactor(macro *MacroModel) float64 {
	return elasticityFactor(f.cfg.PDElasticities, macro.Changes(), func(name string, change float64) float64 {
		if name == models.VarCreditSpreads {
			return change / basisPointsPerPercent
		}
		return change
	})
}

// LGDFactor returns Σ elasticity × change over the LGD elasticities, with
// the house price index change expressed as a share.
func (f *ForwardLooking) LGDFactor(macro *MacroModel) float64 {
	return elasticityFactor(f.cfg.LGDElasticities, macro.Changes(), func(name string, change float64) float64 {
		if name == models.VarHousePriceIndex {
			return change / indexPointsPerUnitShare
		}
		return change
	})
}

func elasticityFactor(elasticities, changes map[string]float64, normalize func(string, float64) float64) float64 {
	names := make([]string, 0, len(elasticities))
	for name := range elasticities {
		names = append(names, name)
	}
	sort.Strings(names)

	factor := 0.0
	for _, name := range names {
		change, ok := changes[name]
		if !ok {
			continue
		}
		factor += elasticities[name] * normalize(name, change)
	}
	return factor
}

// AdjustPD scales basePD by the macro factor and, when e is given, its
// sector sensitivity. The result is clamped to [1bp, 99%].
func (f *ForwardLooking) AdjustPD(basePD float64, macro *MacroModel, e *models.Exposure) float64 {
	factor := f.PDFactor(macro)

	sensitivity := 1.0
	if e != nil {
		sensitivity = f.SectorSensitivity(e.Sector)
	}

	adjusted := clamp(basePD*(1+factor*sensitivity), adjustedPDFloor, adjustedPDCeiling)

	f.logger.Debug().
		Float64("base_pd", basePD).
		Float64("factor", factor).
		Float64("sector_sensitivity", sensitivity).
		Float64("adjusted_pd", adjusted).
		Msg("PD adjusted")

	return adjusted
}

// AdjustLGD scales baseLGD by the macro factor and, when e has a collateral
// type, its collateral sensitivity. The result is clamped to [1%, 100%].
func (f *ForwardLooking) AdjustLGD(baseLGD float64, macro *MacroModel, e *models.Exposure) float64 {
	factor := f.LGDFactor(macro)

	sensitivity := 1.0
	if e != nil && e.CollateralType != "" {
		sensitivity = f.CollateralSensitivity(e.CollateralType)
	}

	adjusted := clamp(baseLGD*(1+factor*sensitivity), adjustedLGDFloor, adjustedLGDCeiling)

	f.logger.Debug().
		Float64("base_lgd", baseLGD).
		Float64("factor", factor).
		Float64("collateral_sensitivity", sensitivity).
		Float64("adjusted_lgd", adjusted).
		Msg("LGD adjusted")

	return adjusted
}

// EADStress returns the drawdown stress implied by falling GDP growth and
// rising unemployment.
func (f *ForwardLooking) EADStress(macro *MacroModel) float64 {
	changes := macro.Changes()
	stress := 0.0
	if gdp := changes[models.VarGDPGrowth]; gdp < 0 {
		stress += -gdp * gdpDeclineStress
	}
	if unemployment := changes[models.VarUnemploymentRate]; unemployment > 0 {
		stress += unemployment * unemploymentRiseStress
	}
	return stress
}

// AdjustEAD returns baseEAD × (1 + stress + ccfAdjustment).
func (f *ForwardLooking) AdjustEAD(baseEAD float64, macro *MacroModel, ccfAdjustment float64) float64 {
	return baseEAD * (1 + f.EADStress(macro) + ccfAdjustment)
}

// SectorSensitivity returns the cyclical sensitivity of a sector, 1.0 when
// unlisted.
func (f *ForwardLooking) SectorSensitivity(sector string) float64 {
	if s, ok := f.cfg.SectorSensitivities[models.NormalizeKey(sector)]; ok {
		return s
	}
	return 1.0
}

// CollateralSensitivity returns the stress sensitivity of a collateral
// type, 1.0 when unlisted.
func (f *ForwardLooking) CollateralSensitivity(collateralType string) float64 {
	if s, ok := f.cfg.CollateralSensitivities[models.NormalizeKey(collateralType)]; ok {
		return s
	}
	return 1.0
}

// ScenarioMultipliers runs the three adjustments against fixed reference
// values and returns the resulting ratios.
func (f *ForwardLooking) ScenarioMultipliers(macro *MacroModel) Multipliers {
	m := Multipliers{
		PD:  f.AdjustPD(referencePD, macro, nil) / referencePD,
		LGD: f.AdjustLGD(referenceLGD, macro, nil) / referenceLGD,
		EAD: f.AdjustEAD(referenceEAD, macro, 0) / referenceEAD,
	}

	f.logger.Debug().
		Float64("pd_multiplier", m.PD).
		Float64("lgd_multiplier", m.LGD).
		Float64("ead_multiplier", m.EAD).
		Msg("Calculated scenario multipliers")

	return m
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
