// Package store archives portfolio calculation runs. The calculator never
// reads from it; it is a result sink with lookup for reporting.
package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"ifrs9-ecl/internal/models"
)

// RunStore persists and retrieves calculation runs.
type RunStore interface {
	SaveRun(ctx context.Context, run *Run) (string, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]RunRecord, error)
	GetRun(ctx context.Context, id string) (*Run, error)
	DeleteRun(ctx context.Context, id string) error
	Close() error
}

// Run is one archived portfolio result with its provenance.
type Run struct {
	ID        string
	CreatedAt time.Time
	Source    string
	Label     string
	Result    *models.PortfolioECLResult
}

// RunRecord is the listing view of a run.
type RunRecord struct {
	ID            string          `json:"id"`
	CreatedAt     time.Time       `json:"created_at"`
	Source        string          `json:"source"`
	Label         string          `json:"label,omitempty"`
	ScenarioName  string          `json:"scenario_name,omitempty"`
	TotalItems    int             `json:"total_items"`
	FailedItems   int             `json:"failed_items"`
	TotalECL      decimal.Decimal `json:"total_ecl"`
	TotalExposure decimal.Decimal `json:"total_exposure"`
}

// CoverageRatio returns total ECL / total exposure.
func (r RunRecord) CoverageRatio() float64 {
	if !r.TotalExposure.IsPositive() {
		return 0
	}
	return r.TotalECL.Div(r.TotalExposure).InexactFloat64()
}

// RunFilter narrows ListRuns.
type RunFilter struct {
	ScenarioName string
	Since        time.Time
	Limit        int
}
