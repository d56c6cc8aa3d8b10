package dataio

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "ifrs9-ecl/internal/errors"
	"ifrs9-ecl/internal/models"
)

const aliasedCSV = `loan_id,client_id,start_date,end_date,as_of_date,balance,undrawn,dpd,stage,forborne,rating,industry,notes
L1,C1,2021-01-15,2026-01-15,2024-06-30,"1,250,000.50",10000,0,Stage 1,no,BBB,Retail,first
L2,C2,2020-05-01,2030-05-01,2024-06-30,500000,,45.0,2,yes,,Construction,
L3,C3,not-a-date,2030-05-01,2024-06-30,100,,0,1,no,,Retail,
L4,C4,2020-05-01,2030-05-01,2024-06-30,100,,0,Stage 7,no,,Retail,
,C5,2020-05-01,2030-05-01,2024-06-30,100,,0,1,no,,Retail,
`

func TestReadCSVWithAliases(t *testing.T) {
	t.Parallel()

	exposures, err := ReadCSV(strings.NewReader(aliasedCSV), "test", nil, zerolog.Nop())
	require.NoError(t, err)
	require.Len(t, exposures, 2)

	l1 := exposures[0]
	assert.Equal(t, "L1", l1.ID)
	assert.Equal(t, "C1", l1.BorrowerID)
	assert.True(t, l1.OriginationDate.Equal(time.Date(2021, 1, 15, 0, 0, 0, 0, time.UTC)))
	assert.True(t, l1.ReportingDate.Equal(time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)))
	assert.True(t, l1.OutstandingAmount.Equal(decimal.RequireFromString("1250000.50")))
	assert.True(t, l1.UndrawnCommitment.Equal(decimal.NewFromInt(10000)))
	assert.Equal(t, "BBB", l1.InternalRating)
	assert.Equal(t, "Retail", l1.Sector)
	assert.Equal(t, models.Stage1, l1.CurrentStage)
	assert.False(t, l1.IsForborne)

	l2 := exposures[1]
	assert.Equal(t, 45, l2.DaysPastDue)
	assert.Equal(t, models.Stage2, l2.CurrentStage)
	assert.True(t, l2.IsForborne)
	assert.True(t, l2.UndrawnCommitment.IsZero())
	assert.Empty(t, l2.InternalRating)
	// Defaults survive when the column is absent.
	assert.Equal(t, "Term Loan", l2.ProductType)
	assert.Equal(t, 500, l2.CreditScore)
}

func TestReadCSVCustomMapping(t *testing.T) {
	t.Parallel()

	data := "ref,borrower,opened,matures,amount\nR1,B1,2022-02-01,2027-02-01,42\n"
	custom := map[string]string{
		"ref":      "item_id",
		"borrower": "borrower_id",
		"opened":   "origination_date",
		"matures":  "maturity_date",
		"amount":   "outstanding_amount",
	}

	exposures, err := ReadCSV(strings.NewReader(data), "custom", custom, zerolog.Nop())
	require.NoError(t, err)
	require.Len(t, exposures, 1)
	assert.Equal(t, "R1", exposures[0].ID)
	assert.True(t, exposures[0].OutstandingAmount.Equal(decimal.NewFromInt(42)))
}

func TestCanonicalHeader(t *testing.T) {
	t.Parallel()

	got := CanonicalHeader([]string{"\ufeffID", "item_id", " Balance ", "DPD", "unused"}, nil)
	assert.Equal(t, []string{"id", "item_id", "outstanding_amount", "days_past_due", "unused"}, got)
}

func TestReadCSVEmpty(t *testing.T) {
	t.Parallel()

	_, err := ReadCSV(strings.NewReader(""), "empty", nil, zerolog.Nop())
	var dataErr *apperrors.DataError
	require.True(t, apperrors.As(err, &dataErr))
	assert.Equal(t, "empty", dataErr.Source)
}

func TestLoadCSVMissingFile(t *testing.T) {
	t.Parallel()

	_, err := LoadCSV(filepath.Join(t.TempDir(), "missing.csv"), nil, zerolog.Nop())
	var dataErr *apperrors.DataError
	assert.True(t, apperrors.As(err, &dataErr))
}

func sampleExposure() models.Exposure {
	e := models.NewExposure("P1", "B1",
		time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2031, 3, 1, 0, 0, 0, 0, time.UTC),
		decimal.RequireFromString("98765.4321"))
	e.ReportingDate = time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	e.UndrawnCommitment = decimal.NewFromInt(5000)
	e.InterestRate = 7.25
	e.Sector = "Manufacturing"
	e.CollateralValue = decimal.NewFromInt(40000)
	e.CollateralType = "Equipment"
	e.CreditScore = 712
	e.DaysPastDue = 12
	e.TimesPastDue12m = 2
	e.IsRestructured = true
	e.CurrentStage = models.Stage2
	e.PreviousStage = models.Stage1
	e.OriginationPD = models.Float64Ptr(0.015)
	e.Region = "EMEA"
	return e
}

func TestPortfolioCSVRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out", "portfolio.csv")
	want := sampleExposure()
	require.NoError(t, ExportPortfolioCSV(path, []models.Exposure{want}))

	got, err := LoadCSV(path, nil, zerolog.Nop())
	require.NoError(t, err)
	require.Len(t, got, 1)
	g := got[0]

	assert.Equal(t, want.ID, g.ID)
	assert.True(t, want.OriginationDate.Equal(g.OriginationDate))
	assert.True(t, want.MaturityDate.Equal(g.MaturityDate))
	assert.True(t, want.ReportingDate.Equal(g.ReportingDate))
	assert.True(t, want.OutstandingAmount.Equal(g.OutstandingAmount))
	assert.True(t, want.UndrawnCommitment.Equal(g.UndrawnCommitment))
	assert.True(t, want.CollateralValue.Equal(g.CollateralValue))
	assert.Equal(t, want.InterestRate, g.InterestRate)
	assert.Equal(t, want.CollateralType, g.CollateralType)
	assert.Equal(t, want.CreditScore, g.CreditScore)
	assert.Equal(t, want.DaysPastDue, g.DaysPastDue)
	assert.Equal(t, want.TimesPastDue12m, g.TimesPastDue12m)
	assert.Equal(t, want.IsRestructured, g.IsRestructured)
	assert.Equal(t, want.CurrentStage, g.CurrentStage)
	assert.Equal(t, want.PreviousStage, g.PreviousStage)
	require.NotNil(t, g.OriginationPD)
	assert.Equal(t, 0.015, *g.OriginationPD)
	assert.Nil(t, g.PreviousPD)
	assert.Equal(t, "EMEA", g.Region)
}

func sampleResult() models.ECLResult {
	pv := decimal.RequireFromString("900.10")
	return models.ECLResult{
		ExposureID:        "P1",
		Stage:             models.Stage2,
		PD:                0.125,
		LGD:               0.45,
		EAD:               decimal.RequireFromString("20000.00"),
		ECL:               decimal.RequireFromString("1125.005"),
		TimeHorizonMonths: 48,
		ScenarioName:      "base",
		ScenarioType:      models.ScenarioBase,
		CollateralValue:   decimal.Zero,
		UnsecuredExposure: decimal.RequireFromString("20000.00"),
		DiscountRate:      0.05,
		PresentValueECL:   &pv,
	}
}

func TestWriteResultsCSV(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteResultsCSV(&buf, []models.ECLResult{sampleResult()}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "item_id,stage,probability_of_default,loss_given_default,exposure_at_default,ecl_amount"))
	assert.Contains(t, lines[1], "P1,Stage 2,0.125,0.45,20000,1125.005")
	assert.Contains(t, lines[1], ",48,base,base,")
	assert.True(t, strings.HasSuffix(lines[1], ",0.05,900.1"))
}

func TestExportJSON(t *testing.T) {
	t.Parallel()

	result := models.NewPortfolioECLResult()
	result.TotalECL = decimal.RequireFromString("1125.005")
	result.TotalExposure = decimal.RequireFromString("20000")
	result.TotalItems = 1
	result.ItemResults = []models.ECLResult{sampleResult()}
	result.ECLBySector["Retail"] = result.TotalECL
	result.StageChanges = []models.StageChange{{ExposureID: "P1", From: models.Stage1, To: models.Stage2}}

	dir := t.TempDir()

	full := filepath.Join(dir, "results.json")
	require.NoError(t, ExportResultsJSON(full, result))
	var decoded models.PortfolioECLResult
	raw, err := os.ReadFile(full)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Len(t, decoded.ItemResults, 1)
	assert.True(t, decoded.TotalECL.Equal(result.TotalECL))

	summary := filepath.Join(dir, "summary.json")
	require.NoError(t, ExportSummaryJSON(summary, result))
	raw, err = os.ReadFile(summary)
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &doc))
	s := doc["summary"].(map[string]interface{})
	// Amounts are written as exact decimal strings.
	assert.Equal(t, "1125.005", s["total_ecl"])
	assert.Equal(t, "1125.005", doc["ecl_by_sector"].(map[string]interface{})["Retail"])
	assert.NotContains(t, doc, "item_results")
	assert.Len(t, doc["stage_changes"], 1)
}
