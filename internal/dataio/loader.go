// Package dataio reads exposure portfolios from CSV and writes calculation
// results to CSV and JSON.
package dataio

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	apperrors "ifrs9-ecl/internal/errors"
	"ifrs9-ecl/internal/logging"
	"ifrs9-ecl/internal/models"
)

// DateLayout is the canonical date format for portfolio files.
const DateLayout = "2006-01-02"

var dateLayouts = []string{DateLayout, "2006/01/02", "02/01/2006", time.RFC3339, "2006-01-02 15:04:05"}

// ColumnAliases maps each canonical column to the header names accepted for
// it, in priority order.
var ColumnAliases = map[string][]string{
	"item_id":            {"item_id", "loan_id", "id", "exposure_id"},
	"borrower_id":        {"borrower_id", "client_id", "customer_id"},
	"origination_date":   {"origination_date", "inception_date", "start_date"},
	"maturity_date":      {"maturity_date", "end_date", "expiry_date"},
	"reporting_date":     {"reporting_date", "as_of_date", "valuation_date"},
	"outstanding_amount": {"outstanding_amount", "outstanding", "balance", "exposure"},
	"undrawn_commitment": {"undrawn_commitment", "undrawn", "available_credit"},
	"interest_rate":      {"interest_rate", "rate", "coupon"},
	"sector":             {"sector", "industry"},
	"product_type":       {"product_type", "product", "loan_type"},
	"currency":           {"currency", "ccy"},
	"collateral_value":   {"collateral_value", "collateral", "security_value"},
	"collateral_type":    {"collateral_type", "security_type"},
	"credit_score":       {"credit_score", "score", "fico_score"},
	"internal_rating":    {"internal_rating", "rating", "grade"},
	"external_rating":    {"external_rating", "external_grade"},
	"days_past_due":      {"days_past_due", "dpd", "delinquency_days"},
	"times_past_due_12m": {"times_past_due_12m", "times_past_due"},
	"is_forborne":        {"is_forborne", "forborne", "forbearance"},
	"is_restructured":    {"is_restructured", "restructured"},
	"current_stage":      {"current_stage", "stage", "ifrs9_stage"},
	"previous_stage":     {"previous_stage", "prior_stage"},
	"origination_stage":  {"origination_stage", "initial_stage"},
	"origination_pd":     {"origination_pd", "initial_pd"},
	"previous_pd":        {"previous_pd", "prior_pd"},
	"country":            {"country", "jurisdiction"},
	"region":             {"region", "geography"},
}

// exposureRow is one portfolio line as text; coercion happens per row so a
// bad value only drops that row.
type exposureRow struct {
	ItemID            string `csv:"item_id"`
	BorrowerID        string `csv:"borrower_id"`
	OriginationDate   string `csv:"origination_date"`
	MaturityDate      string `csv:"maturity_date"`
	ReportingDate     string `csv:"reporting_date"`
	OutstandingAmount string `csv:"outstanding_amount"`
	UndrawnCommitment string `csv:"undrawn_commitment"`
	InterestRate      string `csv:"interest_rate"`
	Sector            string `csv:"sector"`
	ProductType       string `csv:"product_type"`
	Currency          string `csv:"currency"`
	CollateralValue   string `csv:"collateral_value"`
	CollateralType    string `csv:"collateral_type"`
	CreditScore       string `csv:"credit_score"`
	InternalRating    string `csv:"internal_rating"`
	ExternalRating    string `csv:"external_rating"`
	DaysPastDue       string `csv:"days_past_due"`
	TimesPastDue12m   string `csv:"times_past_due_12m"`
	IsForborne        string `csv:"is_forborne"`
	IsRestructured    string `csv:"is_restructured"`
	CurrentStage      string `csv:"current_stage"`
	PreviousStage     string `csv:"previous_stage"`
	OriginationStage  string `csv:"origination_stage"`
	OriginationPD     string `csv:"origination_pd"`
	PreviousPD        string `csv:"previous_pd"`
	Country           string `csv:"country"`
	Region            string `csv:"region"`
}

// LoadCSV reads a portfolio file. custom maps file headers to canonical
// columns and takes precedence over ColumnAliases.
func LoadCSV(path string, custom map[string]string, logger zerolog.Logger) ([]models.Exposure, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.NewDataError(path, 0, "cannot open portfolio file", err)
	}
	defer f.Close()
	return ReadCSV(f, path, custom, logger)
}

// ReadCSV parses a portfolio from r. Rows that fail coercion are logged and
// skipped; source labels errors and log lines.
func ReadCSV(r io.Reader, source string, custom map[string]string, logger zerolog.Logger) ([]models.Exposure, error) {
	log := logging.WithComponent(logger, "dataio").With().Str("source", source).Logger()

	normalized, err := normalizeHeader(r, custom)
	if err != nil {
		return nil, apperrors.NewDataError(source, 1, "cannot read header", err)
	}

	var rows []*exposureRow
	if err := gocsv.UnmarshalBytes(normalized, &rows); err != nil {
		return nil, apperrors.NewDataError(source, 0, "cannot decode rows", err)
	}

	exposures := make([]models.Exposure, 0, len(rows))
	skipped := 0
	for i, row := range rows {
		e, err := row.toExposure()
		if err != nil {
			// Header is line 1.
			line := i + 2
			log.Warn().Err(err).Int("row", line).Str("item_id", row.ItemID).Msg("Skipping row")
			skipped++
			continue
		}
		exposures = append(exposures, e)
	}

	log.Info().Int("loaded", len(exposures)).Int("skipped", skipped).Msg("Portfolio loaded")
	return exposures, nil
}

// normalizeHeader rewrites the header row to canonical column names.
func normalizeHeader(r io.Reader, custom map[string]string) ([]byte, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("empty file")
	}

	records[0] = CanonicalHeader(records[0], custom)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// CanonicalHeader maps header names to canonical columns. For each canonical
// column the highest priority alias present wins; other matches keep their
// original name and are ignored downstream.
func CanonicalHeader(header []string, custom map[string]string) []string {
	out := make([]string, len(header))
	position := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		out[i] = name
		if _, dup := position[name]; !dup {
			position[name] = i
		}
	}

	for canonical, aliases := range ColumnAliases {
		for _, alias := range aliases {
			if i, ok := position[alias]; ok {
				out[i] = canonical
				break
			}
		}
	}

	for i, h := range header {
		if target, ok := custom[strings.TrimSpace(h)]; ok {
			out[i] = target
		}
	}
	return out
}

func (r *exposureRow) toExposure() (models.Exposure, error) {
	id := strings.TrimSpace(r.ItemID)
	if id == "" {
		return models.Exposure{}, fmt.Errorf("item_id is required")
	}
	origination, err := parseDate("origination_date", r.OriginationDate)
	if err != nil {
		return models.Exposure{}, err
	}
	maturity, err := parseDate("maturity_date", r.MaturityDate)
	if err != nil {
		return models.Exposure{}, err
	}
	outstanding, err := parseDecimal("outstanding_amount", r.OutstandingAmount)
	if err != nil {
		return models.Exposure{}, err
	}

	e := models.NewExposure(id, strings.TrimSpace(r.BorrowerID), origination, maturity, outstanding)

	p := &rowParser{}
	if present(r.ReportingDate) {
		e.ReportingDate = p.date("reporting_date", r.ReportingDate)
	}
	if present(r.UndrawnCommitment) {
		e.UndrawnCommitment = p.decimal("undrawn_commitment", r.UndrawnCommitment)
	}
	if present(r.CollateralValue) {
		e.CollateralValue = p.decimal("collateral_value", r.CollateralValue)
	}
	if present(r.InterestRate) {
		e.InterestRate = p.float("interest_rate", r.InterestRate)
	}
	if present(r.CreditScore) {
		e.CreditScore = p.integer("credit_score", r.CreditScore)
	}
	if present(r.DaysPastDue) {
		e.DaysPastDue = p.integer("days_past_due", r.DaysPastDue)
	}
	if present(r.TimesPastDue12m) {
		e.TimesPastDue12m = p.integer("times_past_due_12m", r.TimesPastDue12m)
	}
	if present(r.IsForborne) {
		e.IsForborne = p.boolean("is_forborne", r.IsForborne)
	}
	if present(r.IsRestructured) {
		e.IsRestructured = p.boolean("is_restructured", r.IsRestructured)
	}
	if present(r.CurrentStage) {
		e.CurrentStage = p.stage("current_stage", r.CurrentStage)
	}
	if present(r.PreviousStage) {
		e.PreviousStage = p.stage("previous_stage", r.PreviousStage)
	}
	if present(r.OriginationStage) {
		e.OriginationStage = p.stage("origination_stage", r.OriginationStage)
	}
	if present(r.OriginationPD) {
		e.OriginationPD = models.Float64Ptr(p.float("origination_pd", r.OriginationPD))
	}
	if present(r.PreviousPD) {
		e.PreviousPD = models.Float64Ptr(p.float("previous_pd", r.PreviousPD))
	}
	if p.err != nil {
		return models.Exposure{}, p.err
	}

	setString(&e.Sector, r.Sector)
	setString(&e.ProductType, r.ProductType)
	setString(&e.Currency, r.Currency)
	setString(&e.CollateralType, r.CollateralType)
	setString(&e.InternalRating, r.InternalRating)
	setString(&e.ExternalRating, r.ExternalRating)
	setString(&e.Country, r.Country)
	setString(&e.Region, r.Region)
	return e, nil
}

// rowParser keeps the first coercion error so optional fields read linearly.
type rowParser struct {
	err error
}

func (p *rowParser) fail(err error) {
	if p.err == nil {
		p.err = err
	}
}

func (p *rowParser) date(field, v string) time.Time {
	t, err := parseDate(field, v)
	p.fail(err)
	return t
}

func (p *rowParser) decimal(field, v string) decimal.Decimal {
	d, err := parseDecimal(field, v)
	p.fail(err)
	return d
}

func (p *rowParser) float(field, v string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		p.fail(fmt.Errorf("%s: invalid number %q", field, v))
	}
	return f
}

func (p *rowParser) integer(field, v string) int {
	s := strings.TrimSpace(v)
	n, err := strconv.Atoi(s)
	if err == nil {
		return n
	}
	// Spreadsheet exports often write integers as "45.0".
	f, ferr := strconv.ParseFloat(s, 64)
	if ferr != nil || f != float64(int(f)) {
		p.fail(fmt.Errorf("%s: invalid integer %q", field, v))
		return 0
	}
	return int(f)
}

func (p *rowParser) boolean(field, v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes", "y":
		return true
	case "0", "false", "f", "no", "n":
		return false
	}
	p.fail(fmt.Errorf("%s: invalid boolean %q", field, v))
	return false
}

func (p *rowParser) stage(field, v string) models.Stage {
	s, ok := models.ParseStage(v)
	if !ok {
		p.fail(fmt.Errorf("%s: invalid stage %q", field, v))
	}
	return s
}

func parseDate(field, v string) (time.Time, error) {
	s := strings.TrimSpace(v)
	if s == "" {
		return time.Time{}, fmt.Errorf("%s is required", field)
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Truncate(24 * time.Hour), nil
		}
	}
	return time.Time{}, fmt.Errorf("%s: cannot parse date %q", field, v)
}

func parseDecimal(field, v string) (decimal.Decimal, error) {
	s := strings.ReplaceAll(strings.TrimSpace(v), ",", "")
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: invalid amount %q", field, v)
	}
	return d, nil
}

func present(v string) bool {
	s := strings.ToLower(strings.TrimSpace(v))
	return s != "" && s != "nan" && s != "null" && s != "na"
}

func setString(dst *string, v string) {
	if present(v) {
		*dst = strings.TrimSpace(v)
	}
}
