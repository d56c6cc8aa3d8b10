// Package engine orchestrates staging and the PD, LGD and EAD calculators
// into per-exposure and portfolio ECL results.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ifrs9-ecl/internal/config"
	apperrors "ifrs9-ecl/internal/errors"
	"ifrs9-ecl/internal/logging"
	"ifrs9-ecl/internal/models"
	"ifrs9-ecl/internal/performance"
	"ifrs9-ecl/internal/risk"
	"ifrs9-ecl/internal/staging"
)

// TwelveMonthHorizon is the horizon of Stage 1 results.
const TwelveMonthHorizon = 12

// UnratedKey buckets exposures without an internal rating.
const UnratedKey = "Unrated"

// Engine computes ECL from one configuration snapshot. It holds no state
// between calculations and is safe for concurrent use.
type Engine struct {
	cfg     config.ECLConfig
	pd      *risk.PDCalculator
	lgd     *risk.LGDCalculator
	ead     *risk.EADCalculator
	staging *staging.Framework
	logger  zerolog.Logger
}

// New composes the calculators from cfg.
func New(cfg *config.Config, logger zerolog.Logger) *Engine {
	return &Engine{
		cfg:     cfg.ECL,
		pd:      risk.NewPDCalculator(cfg.PD, logger),
		lgd:     risk.NewLGDCalculator(cfg.LGD, logger),
		ead:     risk.NewEADCalculator(cfg.EAD, logger),
		staging: staging.NewFramework(cfg.Staging, logger),
		logger:  logging.WithComponent(logger, "engine"),
	}
}

// PD returns the PD calculator.
func (e *Engine) PD() *risk.PDCalculator { return e.pd }

// LGD returns the LGD calculator.
func (e *Engine) LGD() *risk.LGDCalculator { return e.lgd }

// EAD returns the EAD calculator.
func (e *Engine) EAD() *risk.EADCalculator { return e.ead }

// Staging returns the staging framework.
func (e *Engine) Staging() *staging.Framework { return e.staging }

// ApplyStagingByDefault reports the configured staging flag.
func (e *Engine) ApplyStagingByDefault() bool { return e.cfg.ApplyStaging }

// CalculateECL calculates ECL for one exposure. With applyStaging the
// exposure is reclassified first and the calculation uses the new stage;
// the input is not modified and the returned StageChange tells the caller
// what to apply. A nil scenario means the unadjusted base calculation.
func (e *Engine) CalculateECL(x models.Exposure, scenario *models.ScenarioConfig, applyStaging bool) (result models.ECLResult, change models.StageChange, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperrors.NewCalculationError(x.ID, "calculate_ecl", fmt.Errorf("panic: %v", r))
		}
	}()

	change = models.StageChange{ExposureID: x.ID, From: x.CurrentStage, To: x.CurrentStage}
	if applyStaging {
		pd12m := e.pd.TwelveMonthPD(x, nil)
		change = e.staging.Restage(x, &pd12m)
		if change.Changed() {
			logger := logging.WithExposure(e.logger, x.ID)
			logger.Debug().
				Str("from_stage", string(change.From)).
				Str("to_stage", string(change.To)).
				Msg("Stage reclassified")
		}
		x = x.WithStage(change.To)
	}

	switch {
	case x.CurrentStage == models.Stage1:
		return e.CalculateStage1ECL(x, scenario), change, nil
	case x.CurrentStage.UsesLifetimeECL():
		return e.CalculateLifetimeECL(x, scenario), change, nil
	default:
		return models.ECLResult{}, change, apperrors.NewCalculationError(x.ID, "route",
			apperrors.Wrapf(apperrors.ErrInvalidExposure, "unknown stage %q", x.CurrentStage))
	}
}

// CalculateStage1ECL returns the 12-month ECL: EAD × PD × LGD with no
// downturn.
func (e *Engine) CalculateStage1ECL(x models.Exposure, scenario *models.ScenarioConfig) models.ECLResult {
	adjust := scenario != nil && !scenario.IsIdentity()
	pd := e.pd.TwelveMonthPD(x, nil)
	ead := e.ead.CurrentEAD(x, nil)
	if adjust {
		pd = e.pd.ApplyScenario(pd, scenario.PDMultiplier)
		ead = risk.ScaleEAD(ead, scenario.EADMultiplier)
	}

	lgd := e.lgd.LGD(x, ead, false)
	if adjust {
		lgd = e.lgd.ApplyScenario(lgd, scenario.LGDMultiplier, scenario.LGDDownturnFactor)
	}

	ecl := ead.Mul(decimal.NewFromFloat(pd)).Mul(decimal.NewFromFloat(lgd))

	result := e.newResult(x, models.Stage1, pd, lgd, ead, scenario)
	result.ECL = ecl
	result.TimeHorizonMonths = TwelveMonthHorizon

	logger := logging.WithExposure(e.logger, x.ID)
	logger.Debug().
		Float64("pd", pd).
		Float64("lgd", lgd).
		Str("ead", ead.StringFixed(2)).
		Str("ecl", ecl.StringFixed(2)).
		Msg("Calculated Stage 1 ECL")

	return result
}

// CalculateLifetimeECL returns the lifetime ECL for a Stage 2 or Stage 3
// exposure. The reported PD is the cumulative lifetime PD; the ECL is the
// sum of the monthly EAD × marginal PD × LGD series.
func (e *Engine) CalculateLifetimeECL(x models.Exposure, scenario *models.ScenarioConfig) models.ECLResult {
	adjust := scenario != nil && !scenario.IsIdentity()
	stage := x.CurrentStage

	pd := e.pd.LifetimePD(x, stage, nil)
	ead := e.ead.CurrentEAD(x, nil)
	if adjust {
		pd = e.pd.ApplyScenario(pd, scenario.PDMultiplier)
		ead = risk.ScaleEAD(ead, scenario.EADMultiplier)
	}

	lgd := e.lgd.LGD(x, ead, stage == models.Stage2)
	if adjust {
		lgd = e.lgd.ApplyScenario(lgd, scenario.LGDMultiplier, scenario.LGDDownturnFactor)
	}

	marginal, _ := e.pd.LifetimePDCurve(x, stage, nil)
	if adjust && scenario.PDMultiplier != 1 {
		for i := range marginal {
			marginal[i] *= scenario.PDMultiplier
		}
	}

	lgdDec := decimal.NewFromFloat(lgd)
	periodECL := make([]decimal.Decimal, len(marginal))
	ecl := decimal.Zero
	for i, mpd := range marginal {
		periodECL[i] = ead.Mul(decimal.NewFromFloat(mpd)).Mul(lgdDec)
		ecl = ecl.Add(periodECL[i])
	}

	result := e.newResult(x, stage, pd, lgd, ead, scenario)
	result.ECL = ecl
	result.TimeHorizonMonths = x.RemainingTermMonths()
	result.PeriodECL = periodECL
	result.PeriodPD = marginal

	logger := logging.WithExposure(e.logger, x.ID)
	logger.Debug().
		Str("stage", string(stage)).
		Float64("lifetime_pd", pd).
		Float64("lgd", lgd).
		Str("ead", ead.StringFixed(2)).
		Str("ecl", ecl.StringFixed(2)).
		Int("periods", len(marginal)).
		Msg("Calculated lifetime ECL")

	return result
}

func (e *Engine) newResult(x models.Exposure, stage models.Stage, pd, lgd float64, ead decimal.Decimal, scenario *models.ScenarioConfig) models.ECLResult {
	r := models.ECLResult{
		ExposureID:        x.ID,
		Stage:             stage,
		PD:                pd,
		LGD:               lgd,
		EAD:               ead,
		CollateralValue:   x.CollateralValue,
		UnsecuredExposure: e.lgd.UnsecuredExposure(x, ead),
		DiscountRate:      e.cfg.DiscountRate,
	}
	if scenario != nil {
		r.ScenarioName = scenario.Name
		r.ScenarioType = scenario.Type
	}
	return r
}

// CalculatePortfolioECL calculates every exposure and aggregates the
// successes. A failing exposure is logged, listed in Failed and left out
// of the totals. Only a cancelled ctx aborts the run.
func (e *Engine) CalculatePortfolioECL(ctx context.Context, exposures []models.Exposure, scenario *models.ScenarioConfig, applyStaging bool) (*models.PortfolioECLResult, error) {
	start := time.Now()
	name := "base"
	if scenario != nil {
		name = scenario.Name
	}
	logger := logging.WithScenario(e.logger, name)

	logger.Info().Int("item_count", len(exposures)).Msg("Calculating portfolio ECL")

	results := make([]models.ECLResult, 0, len(exposures))
	var changes []models.StageChange
	var failed []string

	for _, x := range exposures {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		r, change, err := e.CalculateECL(x, scenario, applyStaging)
		if err != nil {
			logging.LogItemFailure(logger, x.ID, err)
			failed = append(failed, x.ID)
			continue
		}
		if change.Changed() {
			changes = append(changes, change)
		}
		results = append(results, r)
	}

	portfolio := e.Aggregate(results, exposures, scenario)
	portfolio.Failed = failed
	portfolio.StageChanges = changes

	logging.LogPortfolioRun(logger, name, portfolio.TotalItems, len(failed),
		portfolio.TotalECL.StringFixed(2), portfolio.TotalExposure.StringFixed(2),
		portfolio.CoverageRatio(), time.Since(start))

	return portfolio, nil
}

// Aggregate folds item results into a portfolio result. Sector, product
// and rating come from the exposure with the result's id.
func (e *Engine) Aggregate(results []models.ECLResult, exposures []models.Exposure, scenario *models.ScenarioConfig) *models.PortfolioECLResult {
	lookup := make(map[string]*models.Exposure, len(exposures))
	for i := range exposures {
		lookup[exposures[i].ID] = &exposures[i]
	}

	p := models.NewPortfolioECLResult()
	p.CalculationMethod = models.CalculationMethod(e.cfg.CalculationMethod)
	p.ItemResults = results
	p.TotalItems = len(results)

	for _, r := range results {
		p.TotalECL = p.TotalECL.Add(r.ECL)
		p.TotalExposure = p.TotalExposure.Add(r.EAD)

		t, ok := p.Stages[r.Stage]
		if !ok {
			t = &models.StageTotals{ECL: decimal.Zero, Exposure: decimal.Zero}
			p.Stages[r.Stage] = t
		}
		t.ECL = t.ECL.Add(r.ECL)
		t.Exposure = t.Exposure.Add(r.EAD)
		t.Count++

		if x, ok := lookup[r.ExposureID]; ok {
			p.ECLBySector[x.Sector] = p.ECLBySector[x.Sector].Add(r.ECL)
			p.ECLByProduct[x.ProductType] = p.ECLByProduct[x.ProductType].Add(r.ECL)
			rating := x.InternalRating
			if rating == "" {
				rating = UnratedKey
			}
			p.ECLByRating[rating] = p.ECLByRating[rating].Add(r.ECL)
		}
	}

	if scenario != nil {
		p.ScenarioName = scenario.Name
		p.ScenarioType = scenario.Type
		prob := scenario.Probability
		p.ScenarioProbability = &prob
	}
	return p
}

// RunScenarios calculates the portfolio under every scenario in parallel
// on a worker pool and returns the results keyed by scenario name. Each
// pass works from the same read-only exposures.
func (e *Engine) RunScenarios(ctx context.Context, exposures []models.Exposure, scenarios []models.ScenarioConfig, workers int, applyStaging bool) (map[string]*models.PortfolioECLResult, error) {
	return e.runScenarios(ctx, scenarios, workers, func(ctx context.Context, s *models.ScenarioConfig) (*models.PortfolioECLResult, error) {
		return e.CalculatePortfolioECL(ctx, exposures, s, applyStaging)
	})
}

type scenarioCalc func(ctx context.Context, s *models.ScenarioConfig) (*models.PortfolioECLResult, error)

// runScenarios fans calc out over the pool. A scenario that errors or
// panics fails the whole run so no weighting happens over a partial set.
func (e *Engine) runScenarios(ctx context.Context, scenarios []models.ScenarioConfig, workers int, calc scenarioCalc) (map[string]*models.PortfolioECLResult, error) {
	if len(scenarios) == 0 {
		return nil, apperrors.ErrNoScenarioResults
	}
	if workers <= 0 {
		workers = e.cfg.Workers
	}
	if workers > len(scenarios) {
		workers = len(scenarios)
	}

	pool := performance.NewWorkerPool(workers)
	pool.Start()
	defer pool.Stop()

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		results  = make(map[string]*models.PortfolioECLResult, len(scenarios))
		firstErr error
	)

	record := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if firstErr == nil {
			firstErr = err
		}
	}

	for i := range scenarios {
		s := scenarios[i]
		wg.Add(1)
		err := pool.SubmitContext(ctx, func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					record(apperrors.NewScenarioError(s.Name, "portfolio calculation panicked", fmt.Errorf("panic: %v", r)))
				}
			}()

			r, err := calc(ctx, &s)
			if err != nil {
				record(apperrors.NewScenarioError(s.Name, "portfolio calculation failed", err))
				return
			}

			mu.Lock()
			results[s.Name] = r
			mu.Unlock()
		})
		if err != nil {
			wg.Done()
			record(err)
			break
		}
	}

	wg.Wait()
	stats := pool.Stats()
	if firstErr != nil {
		return nil, firstErr
	}

	e.logger.Info().
		Int("scenarios", len(results)).
		Int("workers", pool.Workers()).
		Uint64("tasks_done", stats.TasksDone).
		Msg("Scenario runs complete")

	return results, nil
}
