package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	apperrors "ifrs9-ecl/internal/errors"
	"ifrs9-ecl/internal/logging"
	"ifrs9-ecl/internal/models"
	"ifrs9-ecl/internal/performance"
	"ifrs9-ecl/pkg/id"
)

// itemBatchSize bounds how many item rows are written per batch.
const itemBatchSize = 500

// Breakdown dimensions stored in run_breakdowns.
const (
	dimensionSector  = "sector"
	dimensionProduct = "product"
	dimensionRating  = "rating"
)

// SQLiteStore implements RunStore using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewSQLiteStore opens or creates the archive at dbPath.
func NewSQLiteStore(dbPath string, logger zerolog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabaseError, fmt.Sprintf("failed to open database: %v", err))
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{
		db:     db,
		logger: logging.WithComponent(logger, "store"),
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, apperrors.Wrap(apperrors.ErrDatabaseError, fmt.Sprintf("failed to initialize schema: %v", err))
	}

	return store, nil
}

// initSchema creates all required tables and indexes. Amounts are TEXT so
// decimals survive exactly.
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL,
		source TEXT,
		label TEXT,
		scenario_name TEXT,
		scenario_type TEXT,
		scenario_probability REAL,
		calculation_date DATETIME NOT NULL,
		calculation_method TEXT NOT NULL,
		total_items INTEGER NOT NULL,
		total_ecl TEXT NOT NULL,
		total_exposure TEXT NOT NULL,
		failed TEXT,
		stage_changes TEXT
	);

	CREATE TABLE IF NOT EXISTS run_stages (
		run_id TEXT NOT NULL,
		stage TEXT NOT NULL,
		ecl TEXT NOT NULL,
		exposure TEXT NOT NULL,
		count INTEGER NOT NULL,
		PRIMARY KEY (run_id, stage),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS run_breakdowns (
		run_id TEXT NOT NULL,
		dimension TEXT NOT NULL,
		name TEXT NOT NULL,
		ecl TEXT NOT NULL,
		PRIMARY KEY (run_id, dimension, name),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS run_items (
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		item_id TEXT NOT NULL,
		stage TEXT NOT NULL,
		pd REAL NOT NULL,
		lgd REAL NOT NULL,
		ead TEXT NOT NULL,
		ecl TEXT NOT NULL,
		horizon_months INTEGER NOT NULL,
		scenario_name TEXT,
		scenario_type TEXT,
		collateral_value TEXT NOT NULL,
		unsecured_exposure TEXT NOT NULL,
		discount_rate REAL NOT NULL,
		present_value_ecl TEXT,
		period_ecl TEXT,
		period_pd TEXT,
		PRIMARY KEY (run_id, seq),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
	CREATE INDEX IF NOT EXISTS idx_runs_scenario ON runs(scenario_name);
	CREATE INDEX IF NOT EXISTS idx_run_items_item ON run_items(item_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveRun archives run and returns its id. A missing id or timestamp is
// generated.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *Run) (string, error) {
	if run == nil || run.Result == nil {
		return "", apperrors.Wrap(apperrors.ErrDatabaseError, "run has no result")
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	run.CreatedAt = run.CreatedAt.UTC()
	if run.ID == "" {
		run.ID = id.At(run.CreatedAt)
	}
	r := run.Result

	failed, _ := json.Marshal(r.Failed)
	changes, _ := json.Marshal(r.StageChanges)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", dbError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	var probability sql.NullFloat64
	if r.ScenarioProbability != nil {
		probability = sql.NullFloat64{Float64: *r.ScenarioProbability, Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, created_at, source, label, scenario_name, scenario_type, scenario_probability,
			calculation_date, calculation_method, total_items, total_ecl, total_exposure, failed, stage_changes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.CreatedAt, run.Source, run.Label, r.ScenarioName, string(r.ScenarioType), probability,
		r.CalculationDate.UTC(), string(r.CalculationMethod), r.TotalItems, r.TotalECL.String(), r.TotalExposure.String(),
		string(failed), string(changes))
	if err != nil {
		return "", dbError("failed to insert run", err)
	}

	for _, stage := range models.AllStages {
		t := r.Stage(stage)
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO run_stages (run_id, stage, ecl, exposure, count) VALUES (?, ?, ?, ?, ?)
		`, run.ID, string(stage), t.ECL.String(), t.Exposure.String(), t.Count); err != nil {
			return "", dbError("failed to insert stage totals", err)
		}
	}

	if err := saveBreakdowns(ctx, tx, run.ID, r); err != nil {
		return "", err
	}
	if err := saveItems(ctx, tx, run.ID, r.ItemResults); err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", dbError("failed to commit transaction", err)
	}

	s.logger.Info().
		Str("run_id", run.ID).
		Str("scenario", r.ScenarioName).
		Int("items", len(r.ItemResults)).
		Msg("Run archived")
	return run.ID, nil
}

func saveBreakdowns(ctx context.Context, tx *sql.Tx, runID string, r *models.PortfolioECLResult) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_breakdowns (run_id, dimension, name, ecl) VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return dbError("failed to prepare statement", err)
	}
	defer stmt.Close()

	dims := []struct {
		name   string
		values map[string]decimal.Decimal
	}{
		{dimensionSector, r.ECLBySector},
		{dimensionProduct, r.ECLByProduct},
		{dimensionRating, r.ECLByRating},
	}
	for _, d := range dims {
		for k, v := range d.values {
			if _, err := stmt.ExecContext(ctx, runID, d.name, k, v.String()); err != nil {
				return dbError("failed to insert breakdown", err)
			}
		}
	}
	return nil
}

func saveItems(ctx context.Context, tx *sql.Tx, runID string, items []models.ECLResult) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_items (run_id, seq, item_id, stage, pd, lgd, ead, ecl, horizon_months, scenario_name,
			scenario_type, collateral_value, unsecured_exposure, discount_rate, present_value_ecl, period_ecl, period_pd)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return dbError("failed to prepare statement", err)
	}
	defer stmt.Close()

	seq := 0
	batch := performance.NewBatchProcessor(itemBatchSize, func(batch []models.ECLResult) error {
		for _, it := range batch {
			periodECL, _ := json.Marshal(it.PeriodECL)
			periodPD, _ := json.Marshal(it.PeriodPD)
			var pv sql.NullString
			if it.PresentValueECL != nil {
				pv = sql.NullString{String: it.PresentValueECL.String(), Valid: true}
			}
			if _, err := stmt.ExecContext(ctx, runID, seq, it.ExposureID, string(it.Stage), it.PD, it.LGD,
				it.EAD.String(), it.ECL.String(), it.TimeHorizonMonths, it.ScenarioName, string(it.ScenarioType),
				it.CollateralValue.String(), it.UnsecuredExposure.String(), it.DiscountRate, pv,
				string(periodECL), string(periodPD)); err != nil {
				return dbError("failed to insert item result", err)
			}
			seq++
		}
		return nil
	})

	for _, it := range items {
		if err := batch.Add(it); err != nil {
			return err
		}
	}
	return batch.Flush()
}

// ListRuns returns archived runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]RunRecord, error) {
	query := `SELECT id, created_at, source, label, scenario_name, total_items, failed, total_ecl, total_exposure
		FROM runs WHERE 1=1`
	args := []interface{}{}

	if filter.ScenarioName != "" {
		query += " AND scenario_name = ?"
		args = append(args, filter.ScenarioName)
	}
	if !filter.Since.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, filter.Since.UTC())
	}
	query += " ORDER BY id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbError("failed to query runs", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		var (
			rec                 RunRecord
			source, label, name sql.NullString
			failed              sql.NullString
			ecl, exposure       string
		)
		if err := rows.Scan(&rec.ID, &rec.CreatedAt, &source, &label, &name, &rec.TotalItems, &failed, &ecl, &exposure); err != nil {
			return nil, dbError("failed to scan run", err)
		}
		rec.Source, rec.Label, rec.ScenarioName = source.String, label.String, name.String

		var failedIDs []string
		if failed.Valid {
			_ = json.Unmarshal([]byte(failed.String), &failedIDs)
		}
		rec.FailedItems = len(failedIDs)

		if rec.TotalECL, err = decimal.NewFromString(ecl); err != nil {
			return nil, dbError("corrupt total_ecl", err)
		}
		if rec.TotalExposure, err = decimal.NewFromString(exposure); err != nil {
			return nil, dbError("corrupt total_exposure", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, dbError("error iterating runs", err)
	}
	return records, nil
}

// GetRun loads a run with its stage totals, breakdowns and item results.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	var (
		run                      Run
		source, label, name, typ sql.NullString
		probability              sql.NullFloat64
		method                   string
		failed, changes          sql.NullString
		ecl, exposure            string
	)
	r := models.NewPortfolioECLResult()

	err := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, source, label, scenario_name, scenario_type, scenario_probability,
			calculation_date, calculation_method, total_items, total_ecl, total_exposure, failed, stage_changes
		FROM runs WHERE id = ?
	`, runID).Scan(&run.ID, &run.CreatedAt, &source, &label, &name, &typ, &probability,
		&r.CalculationDate, &method, &r.TotalItems, &ecl, &exposure, &failed, &changes)
	if err == sql.ErrNoRows {
		return nil, apperrors.Wrapf(apperrors.ErrDataNotFound, "run %s", runID)
	}
	if err != nil {
		return nil, dbError("failed to get run", err)
	}

	run.Source, run.Label = source.String, label.String
	r.ScenarioName = name.String
	r.ScenarioType = models.ScenarioType(typ.String)
	if probability.Valid {
		p := probability.Float64
		r.ScenarioProbability = &p
	}
	r.CalculationMethod = models.CalculationMethod(method)
	if r.TotalECL, err = decimal.NewFromString(ecl); err != nil {
		return nil, dbError("corrupt total_ecl", err)
	}
	if r.TotalExposure, err = decimal.NewFromString(exposure); err != nil {
		return nil, dbError("corrupt total_exposure", err)
	}
	if failed.Valid {
		_ = json.Unmarshal([]byte(failed.String), &r.Failed)
	}
	if changes.Valid {
		_ = json.Unmarshal([]byte(changes.String), &r.StageChanges)
	}

	if err := s.loadStages(ctx, runID, r); err != nil {
		return nil, err
	}
	if err := s.loadBreakdowns(ctx, runID, r); err != nil {
		return nil, err
	}
	if err := s.loadItems(ctx, runID, r); err != nil {
		return nil, err
	}

	run.Result = r
	return &run, nil
}

func (s *SQLiteStore) loadStages(ctx context.Context, runID string, r *models.PortfolioECLResult) error {
	rows, err := s.db.QueryContext(ctx, `SELECT stage, ecl, exposure, count FROM run_stages WHERE run_id = ?`, runID)
	if err != nil {
		return dbError("failed to query stages", err)
	}
	defer rows.Close()

	for rows.Next() {
		var stage, ecl, exposure string
		t := &models.StageTotals{}
		if err := rows.Scan(&stage, &ecl, &exposure, &t.Count); err != nil {
			return dbError("failed to scan stage", err)
		}
		if t.ECL, err = decimal.NewFromString(ecl); err != nil {
			return dbError("corrupt stage ecl", err)
		}
		if t.Exposure, err = decimal.NewFromString(exposure); err != nil {
			return dbError("corrupt stage exposure", err)
		}
		r.Stages[models.Stage(stage)] = t
	}
	return rows.Err()
}

func (s *SQLiteStore) loadBreakdowns(ctx context.Context, runID string, r *models.PortfolioECLResult) error {
	rows, err := s.db.QueryContext(ctx, `SELECT dimension, name, ecl FROM run_breakdowns WHERE run_id = ?`, runID)
	if err != nil {
		return dbError("failed to query breakdowns", err)
	}
	defer rows.Close()

	target := map[string]map[string]decimal.Decimal{
		dimensionSector:  r.ECLBySector,
		dimensionProduct: r.ECLByProduct,
		dimensionRating:  r.ECLByRating,
	}
	for rows.Next() {
		var dim, key, ecl string
		if err := rows.Scan(&dim, &key, &ecl); err != nil {
			return dbError("failed to scan breakdown", err)
		}
		m, ok := target[dim]
		if !ok {
			continue
		}
		v, err := decimal.NewFromString(ecl)
		if err != nil {
			return dbError("corrupt breakdown ecl", err)
		}
		m[key] = v
	}
	return rows.Err()
}

func (s *SQLiteStore) loadItems(ctx context.Context, runID string, r *models.PortfolioECLResult) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT item_id, stage, pd, lgd, ead, ecl, horizon_months, scenario_name, scenario_type,
			collateral_value, unsecured_exposure, discount_rate, present_value_ecl, period_ecl, period_pd
		FROM run_items WHERE run_id = ? ORDER BY seq ASC
	`, runID)
	if err != nil {
		return dbError("failed to query items", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			it                                 models.ECLResult
			stage, ead, ecl, collateral, unsec string
			name, typ, pv, periodECL, periodPD sql.NullString
		)
		if err := rows.Scan(&it.ExposureID, &stage, &it.PD, &it.LGD, &ead, &ecl, &it.TimeHorizonMonths,
			&name, &typ, &collateral, &unsec, &it.DiscountRate, &pv, &periodECL, &periodPD); err != nil {
			return dbError("failed to scan item", err)
		}
		it.Stage = models.Stage(stage)
		it.ScenarioName = name.String
		it.ScenarioType = models.ScenarioType(typ.String)

		amounts := []struct {
			dst *decimal.Decimal
			src string
		}{{&it.EAD, ead}, {&it.ECL, ecl}, {&it.CollateralValue, collateral}, {&it.UnsecuredExposure, unsec}}
		for _, a := range amounts {
			if *a.dst, err = decimal.NewFromString(a.src); err != nil {
				return dbError("corrupt item amount", err)
			}
		}
		if pv.Valid {
			v, err := decimal.NewFromString(pv.String)
			if err != nil {
				return dbError("corrupt present value", err)
			}
			it.PresentValueECL = &v
		}
		if periodECL.Valid {
			_ = json.Unmarshal([]byte(periodECL.String), &it.PeriodECL)
		}
		if periodPD.Valid {
			_ = json.Unmarshal([]byte(periodPD.String), &it.PeriodPD)
		}
		r.ItemResults = append(r.ItemResults, it)
	}
	return rows.Err()
}

// DeleteRun removes a run and its child rows.
func (s *SQLiteStore) DeleteRun(ctx context.Context, runID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, runID)
	if err != nil {
		return dbError("failed to delete run", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dbError("failed to delete run", err)
	}
	if n == 0 {
		return apperrors.Wrapf(apperrors.ErrDataNotFound, "run %s", runID)
	}
	return nil
}

// dbError tags err with ErrDatabaseError and keeps the driver error in the
// chain so callers can inspect its code.
func dbError(message string, err error) error {
	return fmt.Errorf("%s: %w: %w", message, apperrors.ErrDatabaseError, err)
}

// IsBusy reports whether err comes from SQLite refusing a write because
// another connection holds the lock.
func IsBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if !apperrors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
}
