package dataio

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"

	apperrors "ifrs9-ecl/internal/errors"
	"ifrs9-ecl/internal/models"
)

// resultRow is the CSV shape of one ECL result. Amounts keep their exact
// decimal text.
type resultRow struct {
	ItemID            string `csv:"item_id"`
	Stage             string `csv:"stage"`
	PD                string `csv:"probability_of_default"`
	LGD               string `csv:"loss_given_default"`
	EAD               string `csv:"exposure_at_default"`
	ECL               string `csv:"ecl_amount"`
	ECLRate           string `csv:"ecl_rate"`
	TimeHorizonMonths int    `csv:"time_horizon_months"`
	ScenarioName      string `csv:"scenario_name"`
	ScenarioType      string `csv:"scenario_type"`
	CollateralValue   string `csv:"collateral_value"`
	UnsecuredExposure string `csv:"unsecured_exposure"`
	DiscountRate      string `csv:"discount_rate"`
	PresentValueECL   string `csv:"present_value_ecl"`
}

func newResultRow(r models.ECLResult) *resultRow {
	row := &resultRow{
		ItemID:            r.ExposureID,
		Stage:             string(r.Stage),
		PD:                formatFloat(r.PD),
		LGD:               formatFloat(r.LGD),
		EAD:               r.EAD.String(),
		ECL:               r.ECL.String(),
		ECLRate:           formatFloat(r.ECLRate()),
		TimeHorizonMonths: r.TimeHorizonMonths,
		ScenarioName:      r.ScenarioName,
		ScenarioType:      string(r.ScenarioType),
		CollateralValue:   r.CollateralValue.String(),
		UnsecuredExposure: r.UnsecuredExposure.String(),
		DiscountRate:      formatFloat(r.DiscountRate),
	}
	if r.PresentValueECL != nil {
		row.PresentValueECL = r.PresentValueECL.String()
	}
	return row
}

// WriteResultsCSV writes one row per result.
func WriteResultsCSV(w io.Writer, results []models.ECLResult) error {
	rows := make([]*resultRow, len(results))
	for i, r := range results {
		rows[i] = newResultRow(r)
	}
	return gocsv.Marshal(&rows, w)
}

// ExportResultsCSV writes results to path, creating parent directories.
func ExportResultsCSV(path string, results []models.ECLResult) error {
	return writeFile(path, func(w io.Writer) error {
		return WriteResultsCSV(w, results)
	})
}

// WritePortfolioCSV writes exposures in the canonical column layout that
// ReadCSV accepts.
func WritePortfolioCSV(w io.Writer, exposures []models.Exposure) error {
	rows := make([]*exposureRow, len(exposures))
	for i, e := range exposures {
		rows[i] = newExposureRow(e)
	}
	return gocsv.Marshal(&rows, w)
}

// ExportPortfolioCSV writes exposures to path.
func ExportPortfolioCSV(path string, exposures []models.Exposure) error {
	return writeFile(path, func(w io.Writer) error {
		return WritePortfolioCSV(w, exposures)
	})
}

func newExposureRow(e models.Exposure) *exposureRow {
	row := &exposureRow{
		ItemID:            e.ID,
		BorrowerID:        e.BorrowerID,
		OriginationDate:   e.OriginationDate.Format(DateLayout),
		MaturityDate:      e.MaturityDate.Format(DateLayout),
		ReportingDate:     e.ReportingDate.Format(DateLayout),
		OutstandingAmount: e.OutstandingAmount.String(),
		UndrawnCommitment: e.UndrawnCommitment.String(),
		InterestRate:      formatFloat(e.InterestRate),
		Sector:            e.Sector,
		ProductType:       e.ProductType,
		Currency:          e.Currency,
		CollateralValue:   e.CollateralValue.String(),
		CollateralType:    e.CollateralType,
		CreditScore:       strconv.Itoa(e.CreditScore),
		InternalRating:    e.InternalRating,
		ExternalRating:    e.ExternalRating,
		DaysPastDue:       strconv.Itoa(e.DaysPastDue),
		TimesPastDue12m:   strconv.Itoa(e.TimesPastDue12m),
		IsForborne:        strconv.FormatBool(e.IsForborne),
		IsRestructured:    strconv.FormatBool(e.IsRestructured),
		CurrentStage:      string(e.CurrentStage),
		PreviousStage:     string(e.PreviousStage),
		OriginationStage:  string(e.OriginationStage),
		Country:           e.Country,
		Region:            e.Region,
	}
	if e.OriginationPD != nil {
		row.OriginationPD = formatFloat(*e.OriginationPD)
	}
	if e.PreviousPD != nil {
		row.PreviousPD = formatFloat(*e.PreviousPD)
	}
	return row
}

// ExportResultsJSON writes the full portfolio result, item results
// included.
func ExportResultsJSON(path string, result *models.PortfolioECLResult) error {
	return writeJSON(path, result)
}

// Report is the summary document written by ExportSummaryJSON.
type Report struct {
	Summary      models.PortfolioSummary    `json:"summary"`
	ECLBySector  map[string]decimal.Decimal `json:"ecl_by_sector"`
	ECLByProduct map[string]decimal.Decimal `json:"ecl_by_product"`
	ECLByRating  map[string]decimal.Decimal `json:"ecl_by_rating"`
	Failed       []string                   `json:"failed,omitempty"`
	StageChanges []models.StageChange       `json:"stage_changes,omitempty"`
}

// NewReport builds the summary document for a portfolio result.
func NewReport(result *models.PortfolioECLResult) Report {
	return Report{
		Summary:      result.Summary(),
		ECLBySector:  result.ECLBySector,
		ECLByProduct: result.ECLByProduct,
		ECLByRating:  result.ECLByRating,
		Failed:       result.Failed,
		StageChanges: result.StageChanges,
	}
}

// ExportSummaryJSON writes the portfolio summary without item results.
func ExportSummaryJSON(path string, result *models.PortfolioECLResult) error {
	return writeJSON(path, NewReport(result))
}

func writeJSON(path string, v interface{}) error {
	return writeFile(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	})
}

func writeFile(path string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return apperrors.NewDataError(path, 0, "cannot create output directory", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return apperrors.NewDataError(path, 0, "cannot create output file", err)
	}
	if err := write(f); err != nil {
		f.Close()
		return apperrors.NewDataError(path, 0, "cannot write output", err)
	}
	if err := f.Close(); err != nil {
		return apperrors.NewDataError(path, 0, "cannot close output", err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
