// Package portfolio provides an indexed collection of exposures with filter
// and aggregate helpers.
package portfolio

import (
	"math"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	apperrors "ifrs9-ecl/internal/errors"
	"ifrs9-ecl/internal/logging"
	"ifrs9-ecl/internal/models"
)

// Portfolio is an ordered set of exposures indexed by id.
type Portfolio struct {
	mu     sync.RWMutex
	items  []models.Exposure
	index  map[string]int
	base   zerolog.Logger
	logger zerolog.Logger
}

// New creates a portfolio from exposures. Later duplicates replace earlier
// ones.
func New(exposures []models.Exposure, logger zerolog.Logger) *Portfolio {
	p := &Portfolio{
		items:  make([]models.Exposure, 0, len(exposures)),
		index:  make(map[string]int, len(exposures)),
		base:   logger,
		logger: logging.WithComponent(logger, "portfolio"),
	}
	p.AddMany(exposures)
	return p
}

// Add appends e, replacing any exposure with the same id.
func (p *Portfolio) Add(e models.Exposure) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.add(e)
}

func (p *Portfolio) add(e models.Exposure) {
	if _, ok := p.index[e.ID]; ok {
		logger := logging.WithExposure(p.logger, e.ID)
		logger.Warn().Err(apperrors.ErrDuplicateExposure).Msg("Replacing existing item")
		p.remove(e.ID)
	}
	p.index[e.ID] = len(p.items)
	p.items = append(p.items, e)
}

// AddMany adds every exposure in order.
func (p *Portfolio) AddMany(exposures []models.Exposure) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range exposures {
		p.add(e)
	}
}

// Remove deletes an exposure and reports whether it existed.
func (p *Portfolio) Remove(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remove(id)
}

func (p *Portfolio) remove(id string) bool {
	i, ok := p.index[id]
	if !ok {
		return false
	}
	p.items = append(p.items[:i], p.items[i+1:]...)
	delete(p.index, id)
	for j := i; j < len(p.items); j++ {
		p.index[p.items[j].ID] = j
	}
	return true
}

// Get returns the exposure with id.
func (p *Portfolio) Get(id string) (models.Exposure, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	i, ok := p.index[id]
	if !ok {
		return models.Exposure{}, false
	}
	return p.items[i], true
}

// Items returns a copy of the exposures in insertion order.
func (p *Portfolio) Items() []models.Exposure {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]models.Exposure, len(p.items))
	copy(out, p.items)
	return out
}

// Len returns the number of exposures.
func (p *Portfolio) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.items)
}

// Filter returns a new portfolio with the exposures keep accepts.
func (p *Portfolio) Filter(keep func(models.Exposure) bool) *Portfolio {
	var out []models.Exposure
	for _, e := range p.Items() {
		if keep(e) {
			out = append(out, e)
		}
	}
	return New(out, p.base)
}

// ByStage returns the exposures currently in stage.
func (p *Portfolio) ByStage(stage models.Stage) *Portfolio {
	return p.Filter(func(e models.Exposure) bool { return e.CurrentStage == stage })
}

// BySector returns the exposures in sector.
func (p *Portfolio) BySector(sector string) *Portfolio {
	return p.Filter(func(e models.Exposure) bool { return e.Sector == sector })
}

// ByProduct returns the exposures of a product type.
func (p *Portfolio) ByProduct(product string) *Portfolio {
	return p.Filter(func(e models.Exposure) bool { return e.ProductType == product })
}

// ByRating returns the exposures with an internal rating.
func (p *Portfolio) ByRating(rating string) *Portfolio {
	return p.Filter(func(e models.Exposure) bool { return e.InternalRating == rating })
}

// ApplyStageChanges writes staging results back onto the held exposures,
// recording the prior stage. It returns the number applied.
func (p *Portfolio) ApplyStageChanges(changes []models.StageChange) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	applied := 0
	for _, c := range changes {
		i, ok := p.index[c.ExposureID]
		if !ok || !c.Changed() {
			continue
		}
		p.items[i] = p.items[i].WithStage(c.To)
		applied++
	}
	return applied
}

func (p *Portfolio) sum(field func(models.Exposure) decimal.Decimal) decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	total := decimal.Zero
	for _, e := range p.items {
		total = total.Add(field(e))
	}
	return total
}

// TotalExposure returns Σ outstanding + undrawn.
func (p *Portfolio) TotalExposure() decimal.Decimal {
	return p.sum(models.Exposure.TotalExposure)
}

// TotalOutstanding returns Σ outstanding.
func (p *Portfolio) TotalOutstanding() decimal.Decimal {
	return p.sum(func(e models.Exposure) decimal.Decimal { return e.OutstandingAmount })
}

// TotalUndrawn returns Σ undrawn commitment.
func (p *Portfolio) TotalUndrawn() decimal.Decimal {
	return p.sum(func(e models.Exposure) decimal.Decimal { return e.UndrawnCommitment })
}

// TotalCollateral returns Σ collateral value.
func (p *Portfolio) TotalCollateral() decimal.Decimal {
	return p.sum(func(e models.Exposure) decimal.Decimal { return e.CollateralValue })
}

// AverageCreditScore returns the mean credit score, 0 when empty.
func (p *Portfolio) AverageCreditScore() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.items) == 0 {
		return 0
	}
	total := 0
	for _, e := range p.items {
		total += e.CreditScore
	}
	return float64(total) / float64(len(p.items))
}

// AverageLTV returns the mean loan-to-value over collateralised exposures,
// 0 when there are none.
func (p *Portfolio) AverageLTV() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	total, n := 0.0, 0
	for _, e := range p.items {
		ltv := e.LoanToValue()
		if math.IsInf(ltv, 0) {
			continue
		}
		total += ltv
		n++
	}
	if n == 0 {
		return 0
	}
	return total / float64(n)
}

// StageDistribution counts exposures per current stage.
func (p *Portfolio) StageDistribution() map[models.Stage]int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[models.Stage]int)
	for _, e := range p.items {
		out[e.CurrentStage]++
	}
	return out
}

// StageExposure sums total exposure per current stage.
func (p *Portfolio) StageExposure() map[models.Stage]decimal.Decimal {
	return groupExposure(p, func(e models.Exposure) models.Stage { return e.CurrentStage })
}

// SectorDistribution counts exposures per sector.
func (p *Portfolio) SectorDistribution() map[string]int {
	return p.groupCount(func(e models.Exposure) string { return e.Sector })
}

// SectorExposure sums total exposure per sector.
func (p *Portfolio) SectorExposure() map[string]decimal.Decimal {
	return groupExposure(p, func(e models.Exposure) string { return e.Sector })
}

// ProductDistribution counts exposures per product type.
func (p *Portfolio) ProductDistribution() map[string]int {
	return p.groupCount(func(e models.Exposure) string { return e.ProductType })
}

// ProductExposure sums total exposure per product type.
func (p *Portfolio) ProductExposure() map[string]decimal.Decimal {
	return groupExposure(p, func(e models.Exposure) string { return e.ProductType })
}

func (p *Portfolio) groupCount(key func(models.Exposure) string) map[string]int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]int)
	for _, e := range p.items {
		out[key(e)]++
	}
	return out
}

func groupExposure[K comparable](p *Portfolio, key func(models.Exposure) K) map[K]decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[K]decimal.Decimal)
	for _, e := range p.items {
		k := key(e)
		out[k] = out[k].Add(e.TotalExposure())
	}
	return out
}

// PastDueCount counts exposures with any days past due.
func (p *Portfolio) PastDueCount() int {
	return p.count(models.Exposure.IsPastDue)
}

// DefaultedCount counts defaulted exposures.
func (p *Portfolio) DefaultedCount() int {
	return p.count(models.Exposure.IsDefaulted)
}

func (p *Portfolio) count(pred func(models.Exposure) bool) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n := 0
	for _, e := range p.items {
		if pred(e) {
			n++
		}
	}
	return n
}

// Summary is the headline view of a portfolio.
type Summary struct {
	TotalItems         int                              `json:"total_items"`
	TotalExposure      decimal.Decimal                  `json:"total_exposure"`
	TotalOutstanding   decimal.Decimal                  `json:"total_outstanding"`
	TotalUndrawn       decimal.Decimal                  `json:"total_undrawn"`
	TotalCollateral    decimal.Decimal                  `json:"total_collateral"`
	AverageCreditScore float64                          `json:"average_credit_score"`
	AverageLTV         float64                          `json:"average_ltv"`
	PastDueCount       int                              `json:"past_due_count"`
	DefaultedCount     int                              `json:"defaulted_count"`
	StageDistribution  map[models.Stage]int             `json:"stage_distribution"`
	StageExposure      map[models.Stage]decimal.Decimal `json:"stage_exposure"`
	StageRatio         map[models.Stage]float64         `json:"stage_ratio"`
}

// Summary returns the portfolio statistics.
func (p *Portfolio) Summary() Summary {
	total := p.TotalExposure()
	stageExposure := p.StageExposure()

	ratios := make(map[models.Stage]float64, len(models.AllStages))
	for _, s := range models.AllStages {
		if total.IsPositive() {
			ratios[s] = stageExposure[s].Div(total).InexactFloat64()
		} else {
			ratios[s] = 0
		}
	}

	return Summary{
		TotalItems:         p.Len(),
		TotalExposure:      total,
		TotalOutstanding:   p.TotalOutstanding(),
		TotalUndrawn:       p.TotalUndrawn(),
		TotalCollateral:    p.TotalCollateral(),
		AverageCreditScore: p.AverageCreditScore(),
		AverageLTV:         p.AverageLTV(),
		PastDueCount:       p.PastDueCount(),
		DefaultedCount:     p.DefaultedCount(),
		StageDistribution:  p.StageDistribution(),
		StageExposure:      stageExposure,
		StageRatio:         ratios,
	}
}
