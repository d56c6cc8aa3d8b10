// Package staging provides IFRS 9 stage classification.
//
// Classification is a pure function of an exposure's current facts,
// evaluated in priority order: credit-impaired (Stage 3), significant
// increase in credit risk (Stage 2), otherwise performing (Stage 1).
// Nothing here mutates the exposures it is given.
package staging

import (
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ifrs9-ecl/internal/config"
	"ifrs9-ecl/internal/logging"
	"ifrs9-ecl/internal/models"
)

// PDSource supplies the current 12-month PD used by the PD-based SICR test.
type PDSource interface {
	TwelveMonthPD(e models.Exposure, override *float64) float64
}

// Framework classifies exposures into stages.
type Framework struct {
	cfg    config.StagingConfig
	logger zerolog.Logger
}

// NewFramework creates a staging framework from a config snapshot.
func NewFramework(cfg config.StagingConfig, logger zerolog.Logger) *Framework {
	return &Framework{
		cfg:    cfg,
		logger: logging.WithComponent(logger, "staging"),
	}
}

// ClassifyStage returns the stage for e. currentPD is optional and only
// feeds the PD-based SICR test.
func (f *Framework) ClassifyStage(e models.Exposure, currentPD *float64) models.Stage {
	if f.IsCreditImpaired(e) {
		return models.Stage3
	}
	if f.DetectSICR(e, currentPD) {
		return models.Stage2
	}
	return models.Stage1
}

// IsCreditImpaired reports whether e meets any Stage 3 criterion.
func (f *Framework) IsCreditImpaired(e models.Exposure) bool {
	switch {
	case e.DaysPastDue > f.cfg.DaysPastDueDefault:
		f.logger.Debug().Str("item_id", e.ID).Int("dpd", e.DaysPastDue).Msg("Credit impairment: DPD above default threshold")
		return true
	case e.IsForborne && e.DaysPastDue > 0:
		f.logger.Debug().Str("item_id", e.ID).Msg("Credit impairment: forborne with DPD")
		return true
	case e.IsRestructured && e.DaysPastDue > f.cfg.DaysPastDueThreshold:
		f.logger.Debug().Str("item_id", e.ID).Msg("Credit impairment: restructured with significant DPD")
		return true
	}
	return false
}

// DetectSICR reports whether e shows a significant increase in credit risk.
func (f *Framework) DetectSICR(e models.Exposure, currentPD *float64) bool {
	if e.DaysPastDue > f.cfg.SICR.DaysPastDue {
		f.logger.Debug().Str("item_id", e.ID).Int("dpd", e.DaysPastDue).Msg("SICR detected: DPD above threshold")
		return true
	}

	if e.TimesPastDue12m >= f.cfg.MultiplePastDueEvents {
		f.logger.Debug().Str("item_id", e.ID).Int("times_past_due", e.TimesPastDue12m).Msg("SICR detected: multiple past due events")
		return true
	}

	if currentPD != nil && e.OriginationPD != nil && f.pdIncreaseSignificant(*currentPD, *e.OriginationPD) {
		f.logger.Debug().
			Str("item_id", e.ID).
			Float64("current_pd", *currentPD).
			Float64("origination_pd", *e.OriginationPD).
			Msg("SICR detected: PD increase")
		return true
	}

	if e.IsForborne || e.IsRestructured {
		f.logger.Debug().Str("item_id", e.ID).Msg("SICR detected: forbearance or restructuring")
		return true
	}

	return false
}

func (f *Framework) pdIncreaseSignificant(current, origination float64) bool {
	if (current-origination)*10000 >= f.cfg.SICR.PDIncreaseBps {
		return true
	}
	if origination > 0 && (current/origination-1)*100 >= f.cfg.SICR.RelativeIncreasePct {
		return true
	}
	return false
}

// Restage classifies e and returns the change it implies. The exposure is
// not modified.
func (f *Framework) Restage(e models.Exposure, currentPD *float64) models.StageChange {
	return models.StageChange{
		ExposureID: e.ID,
		From:       e.CurrentStage,
		To:         f.ClassifyStage(e, currentPD),
	}
}

// MigrationStats counts stage transitions keyed by "<from>_to_<to>",
// including unchanged "X_to_X" entries.
type MigrationStats map[string]int

// TotalMigrations returns the number of exposures whose stage moved.
func (m MigrationStats) TotalMigrations() int {
	total := 0
	for _, from := range models.AllStages {
		for _, to := range models.AllStages {
			if from != to {
				total += m[models.MigrationKey(from, to)]
			}
		}
	}
	return total
}

// PerformStageMigration restages every exposure and returns updated copies
// carrying the prior stage as previous stage, plus transition counts. When
// pd is nil the PD-based SICR test is skipped.
func (f *Framework) PerformStageMigration(exposures []models.Exposure, pd PDSource) ([]models.Exposure, MigrationStats) {
	stats := make(MigrationStats)
	updated := make([]models.Exposure, len(exposures))

	for i, e := range exposures {
		var currentPD *float64
		if pd != nil {
			v := pd.TwelveMonthPD(e, nil)
			currentPD = &v
		}

		change := f.Restage(e, currentPD)
		updated[i] = e.WithStage(change.To)
		stats[change.Key()]++

		if change.Changed() {
			logging.LogStageMigration(f.logger, e.ID, string(change.From), string(change.To))
		}
	}

	f.logger.Info().
		Int("total_items", len(exposures)).
		Int("total_migrations", stats.TotalMigrations()).
		Msg("Stage migration complete")

	return updated, stats
}

// CheckCureEligibility reports whether a Stage 2 exposure may return to
// Stage 1. It requires a full cure period in good standing, no current
// delinquency and no past-due events in the last 12 months. Stage 3
// exposures are never eligible here. Callers apply the result.
func (f *Framework) CheckCureEligibility(e models.Exposure, monthsInGoodStanding int) bool {
	if e.CurrentStage != models.Stage2 {
		return false
	}
	if monthsInGoodStanding < f.cfg.CurePeriod {
		return false
	}
	return e.DaysPastDue == 0 && e.TimesPastDue12m == 0
}

// StageBucket summarises the exposures in one stage.
type StageBucket struct {
	Count       int             `json:"count"`
	Exposure    decimal.Decimal `json:"exposure"`
	ExposurePct float64         `json:"exposure_pct"`
}

// Summary is the stage distribution of a set of exposures.
type Summary struct {
	Stages        map[models.Stage]StageBucket `json:"stages"`
	TotalCount    int                          `json:"total_count"`
	TotalExposure decimal.Decimal              `json:"total_exposure"`
}

// StageSummary counts exposures and total exposure by current stage.
func (f *Framework) StageSummary(exposures []models.Exposure) Summary {
	counts := make(map[models.Stage]int)
	amounts := make(map[models.Stage]decimal.Decimal)
	total := decimal.Zero

	for _, e := range exposures {
		counts[e.CurrentStage]++
		amounts[e.CurrentStage] = amounts[e.CurrentStage].Add(e.TotalExposure())
		total = total.Add(e.TotalExposure())
	}

	summary := Summary{
		Stages:        make(map[models.Stage]StageBucket, len(models.AllStages)),
		TotalCount:    len(exposures),
		TotalExposure: total,
	}
	for _, s := range models.AllStages {
		amount := amounts[s]
		pct := 0.0
		if total.IsPositive() {
			pct = amount.Div(total).Mul(decimal.NewFromInt(100)).InexactFloat64()
		}
		summary.Stages[s] = StageBucket{Count: counts[s], Exposure: amount, ExposurePct: pct}
	}
	return summary
}
