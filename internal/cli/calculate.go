package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"ifrs9-ecl/internal/dataio"
	"ifrs9-ecl/internal/logging"
	"ifrs9-ecl/internal/models"
	"ifrs9-ecl/internal/performance"
	"ifrs9-ecl/internal/scenario"
	"ifrs9-ecl/internal/store"
	"ifrs9-ecl/internal/validation"
	"ifrs9-ecl/pkg/utils"
)

// addCalculationCommands adds the portfolio commands.
func addCalculationCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newCalculateCmd(app))
	rootCmd.AddCommand(newStageCmd(app))
	rootCmd.AddCommand(newValidateCmd(app))
}

type calculateOptions struct {
	scenario      string
	allScenarios  bool
	scenariosFile string
	noStaging     bool
	validate      bool
	strict        bool
	outputDir     string
	formats       []string
	archive       bool
	label         string
	workers       int
	mapping       map[string]string
	topN          int
}

// calculationReport is the JSON view of a calculate run.
type calculationReport struct {
	Source string `json:"source"`
	dataio.Report
	Comparison *scenario.Comparison `json:"comparison,omitempty"`
	Invalid    []invalidExposure    `json:"invalid,omitempty"`
	RunID      string               `json:"run_id,omitempty"`
	Files      []string             `json:"files,omitempty"`
	Duration   string               `json:"duration"`
}

type invalidExposure struct {
	ExposureID string   `json:"exposure_id"`
	Errors     []string `json:"errors"`
}

func newCalculateCmd(app *App) *cobra.Command {
	opts := &calculateOptions{}

	cmd := &cobra.Command{
		Use:   "calculate <portfolio.csv>",
		Short: "Calculate ECL for a portfolio",
		Long: `Calculate expected credit losses for every exposure in a portfolio CSV.

Without scenario flags the base parameters are used. --scenario runs one
named scenario and --all-scenarios runs every registered scenario in
parallel and reports the probability-weighted result.`,
		Example: `  ecl calculate loans.csv
  ecl calculate loans.csv --all-scenarios --output-dir out/
  ecl calculate loans.csv --scenario pessimistic --no-staging
  ecl calculate loans.csv --map "Loan Ref=loan_id" --archive --label "Q3 close"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCalculate(cmd, app, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.scenario, "scenario", "s", "", "run a single named scenario")
	cmd.Flags().BoolVarP(&opts.allScenarios, "all-scenarios", "a", false, "run all scenarios and weight the results")
	cmd.Flags().StringVar(&opts.scenariosFile, "scenarios-file", "", "YAML file of scenario definitions")
	cmd.Flags().BoolVar(&opts.noStaging, "no-staging", false, "use the recorded stage of each exposure")
	cmd.Flags().BoolVar(&opts.validate, "validate", false, "drop exposures that fail validation")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "fail on the first invalid exposure")
	cmd.Flags().StringVarP(&opts.outputDir, "output-dir", "o", "", "directory to export results to")
	cmd.Flags().StringSliceVar(&opts.formats, "format", []string{"csv", "json"}, "export formats: csv, json")
	cmd.Flags().BoolVar(&opts.archive, "archive", false, "archive the run in the run store")
	cmd.Flags().StringVar(&opts.label, "label", "", "label for the archived run")
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", 0, "scenario workers (default from config)")
	cmd.Flags().StringToStringVar(&opts.mapping, "map", nil, "extra column mappings, source=field")
	cmd.Flags().IntVar(&opts.topN, "top", 5, "rows shown per breakdown")
	cmd.MarkFlagsMutuallyExclusive("scenario", "all-scenarios")

	return cmd
}

func runCalculate(cmd *cobra.Command, app *App, path string, opts *calculateOptions) error {
	ctx := cmd.Context()
	output := app.output(cmd)
	logger := logging.WithOperation(app.Logger, "calculate")
	start := time.Now()

	exposures, invalid, err := loadPortfolio(app, path, opts.mapping, opts.validate || opts.strict, opts.strict)
	if err != nil {
		return err
	}
	if len(exposures) == 0 {
		return fmt.Errorf("no valid exposures in %s", path)
	}

	eng := app.Engine()
	applyStaging := eng.ApplyStagingByDefault() && !opts.noStaging

	var (
		result     *models.PortfolioECLResult
		comparison *scenario.Comparison
	)

	switch {
	case opts.allScenarios:
		mgr, err := app.Scenarios(opts.scenariosFile)
		if err != nil {
			return err
		}
		scenarios, err := mgr.ResolveAll()
		if err != nil {
			return err
		}
		results, err := eng.RunScenarios(ctx, exposures, scenarios, opts.workers, applyStaging)
		if err != nil {
			return err
		}
		result, err = mgr.WeightedPortfolioResult(results)
		if err != nil {
			return err
		}
		c, err := mgr.Compare(results)
		if err != nil {
			return err
		}
		comparison = &c

	case opts.scenario != "":
		mgr, err := app.Scenarios(opts.scenariosFile)
		if err != nil {
			return err
		}
		s, err := mgr.Resolve(opts.scenario)
		if err != nil {
			return err
		}
		result, err = eng.CalculatePortfolioECL(ctx, exposures, &s, applyStaging)
		if err != nil {
			return err
		}

	default:
		result, err = eng.CalculatePortfolioECL(ctx, exposures, nil, applyStaging)
		if err != nil {
			return err
		}
	}

	report := calculationReport{
		Source:     path,
		Report:     dataio.NewReport(result),
		Comparison: comparison,
		Invalid:    invalid,
	}

	if opts.outputDir != "" {
		files, err := exportResults(opts.outputDir, opts.formats, result)
		if err != nil {
			return err
		}
		report.Files = files
	}

	if opts.archive || app.Config.Store.Enabled {
		runID, err := archiveRun(ctx, app, &store.Run{Source: path, Label: opts.label, Result: result})
		if err != nil {
			return err
		}
		report.RunID = runID
	}

	elapsed := time.Since(start)
	report.Duration = elapsed.String()
	logging.LogPortfolioRun(logger, result.ScenarioName, result.TotalItems, len(result.Failed),
		result.TotalECL.String(), result.TotalExposure.String(), result.CoverageRatio(), elapsed)

	if output.IsJSON() {
		return output.JSON(report)
	}

	renderResult(output, app, result, opts.topN)
	if comparison != nil {
		output.Println()
		renderComparison(output, *comparison)
	}
	var mem *performance.MemStats
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		stats := performance.MemoryStats()
		mem = &stats
		logger.Debug().
			Uint64("heap_alloc", stats.HeapAlloc).
			Uint64("total_alloc", stats.TotalAlloc).
			Uint32("num_gc", stats.NumGC).
			Int("goroutines", stats.Goroutines).
			Msg("Memory after run")
	}
	renderRunNotes(output, report, elapsed, mem)
	return nil
}

// loadPortfolio reads a portfolio CSV and, when check is set, drops
// exposures that fail validation.
func loadPortfolio(app *App, path string, mapping map[string]string, check, strict bool) ([]models.Exposure, []invalidExposure, error) {
	exposures, err := dataio.LoadCSV(path, mapping, app.Logger)
	if err != nil {
		return nil, nil, err
	}
	if !check {
		return exposures, nil, nil
	}

	valid, reports, err := validation.NewValidator(strict, app.Logger).FilterValid(exposures)
	if err != nil {
		return nil, nil, err
	}
	invalid := make([]invalidExposure, 0, len(reports))
	for _, r := range reports {
		invalid = append(invalid, invalidExposure{ExposureID: r.ExposureID, Errors: r.Messages()})
	}
	return valid, invalid, nil
}

// exportResults writes the result files into dir and returns their paths.
func exportResults(dir string, formats []string, result *models.PortfolioECLResult) ([]string, error) {
	var files []string
	for _, format := range formats {
		switch strings.ToLower(strings.TrimSpace(format)) {
		case "csv":
			path := filepath.Join(dir, "ecl_results.csv")
			if err := dataio.ExportResultsCSV(path, result.ItemResults); err != nil {
				return files, err
			}
			files = append(files, path)
		case "json":
			path := filepath.Join(dir, "ecl_results.json")
			if err := dataio.ExportResultsJSON(path, result); err != nil {
				return files, err
			}
			summary := filepath.Join(dir, "ecl_summary.json")
			if err := dataio.ExportSummaryJSON(summary, result); err != nil {
				return files, err
			}
			files = append(files, path, summary)
		default:
			return files, fmt.Errorf("unknown export format %q", format)
		}
	}
	return files, nil
}

// archiveRun saves the run, retrying while SQLite reports the database busy.
func archiveRun(ctx context.Context, app *App, run *store.Run) (string, error) {
	st, err := app.RunStore()
	if err != nil {
		return "", err
	}
	defer app.Close()

	retry := utils.DefaultRetryConfig()
	retry.Retryable = store.IsBusy
	return utils.RetryWithResult(ctx, retry, func() (string, error) {
		return st.SaveRun(ctx, run)
	})
}

func renderResult(output *Output, app *App, result *models.PortfolioECLResult, topN int) {
	name := result.ScenarioName
	if name == "" {
		name = "base"
	}
	cfg := app.Config.Output

	output.Box("Portfolio ECL", []string{
		fmt.Sprintf("Scenario:       %s", name),
		fmt.Sprintf("Exposures:      %d", result.TotalItems),
		fmt.Sprintf("Total Exposure: %s (%s)", output.Money(result.TotalExposure),
			FormatLarge(result.TotalExposure, cfg.LargeNumberFormat, cfg.DecimalPlaces)),
		fmt.Sprintf("Total ECL:      %s", output.BoldText(output.Money(result.TotalECL))),
		fmt.Sprintf("Coverage:       %s", utils.FormatPercent(result.CoverageRatio())),
	})
	output.Println()

	table := NewTable(output, "Stage", "Count", "Exposure", "ECL", "Coverage", "Share")
	for _, s := range models.AllStages {
		t := result.Stage(s)
		table.AddRow(
			output.Stage(s),
			fmt.Sprintf("%d", t.Count),
			output.Money(t.Exposure),
			output.Money(t.ECL),
			utils.FormatPercent(t.Coverage()),
			utils.FormatPercent(result.StageRatio(s)),
		)
	}
	table.Render()

	renderBreakdown(output, "ECL by Sector", result.ECLBySector, result.TotalECL, topN)
	renderBreakdown(output, "ECL by Product", result.ECLByProduct, result.TotalECL, topN)
}

func renderBreakdown(output *Output, title string, values map[string]decimal.Decimal, total decimal.Decimal, topN int) {
	if len(values) == 0 {
		return
	}
	output.Println()
	output.Bold(title)

	names := sortedByAmount(values)
	hidden := 0
	if topN > 0 && len(names) > topN {
		hidden = len(names) - topN
		names = names[:topN]
	}

	table := NewTable(output, "Name", "ECL", "Share")
	for _, name := range names {
		share := 0.0
		if total.IsPositive() {
			share = values[name].Div(total).InexactFloat64()
		}
		table.AddRow(name, output.Money(values[name]), utils.FormatPercent(share))
	}
	table.Render()
	if hidden > 0 {
		output.Dim("... %d more", hidden)
	}
}

// sortedByAmount returns the keys ordered by descending amount, then name.
func sortedByAmount(values map[string]decimal.Decimal) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if c := values[keys[i]].Cmp(values[keys[j]]); c != 0 {
			return c > 0
		}
		return keys[i] < keys[j]
	})
	return keys
}

func renderComparison(output *Output, c scenario.Comparison) {
	output.Bold("Scenario Comparison")
	table := NewTable(output, "Scenario", "Probability", "ECL", "Coverage", "vs Weighted")
	for _, s := range c.Scenarios {
		table.AddRow(
			s.Name,
			utils.FormatPercent(s.Probability),
			output.Money(s.TotalECL),
			utils.FormatPercent(s.CoverageRatio),
			output.Delta(s.TotalECL.Sub(c.WeightedECL)),
		)
	}
	table.Render()
	output.Printf("Weighted ECL %s, range %s (%s to %s)\n",
		output.BoldText(output.Money(c.WeightedECL)),
		output.Money(c.RangeECL), output.Money(c.MinECL), output.Money(c.MaxECL))
}

func renderRunNotes(output *Output, report calculationReport, elapsed time.Duration, mem *performance.MemStats) {
	output.Println()
	if n := len(report.StageChanges); n > 0 {
		output.Info("%d exposures restaged", n)
	}
	if n := len(report.Failed); n > 0 {
		output.Warning("%d exposures failed: %s", n, utils.TruncateString(strings.Join(report.Failed, ", "), 80))
	}
	if n := len(report.Invalid); n > 0 {
		output.Warning("%d exposures dropped by validation", n)
	}
	for _, f := range report.Files {
		output.Success("✓ Wrote %s", f)
	}
	if report.RunID != "" {
		output.Success("✓ Archived run %s", report.RunID)
	}
	output.Dim("Completed in %s", FormatDuration(elapsed))
	if mem != nil {
		output.Dim("Memory: heap %s, total alloc %s, %d GC cycles, %d goroutines",
			performance.FormatBytes(mem.HeapAlloc), performance.FormatBytes(mem.TotalAlloc),
			mem.NumGC, mem.Goroutines)
	}
}
