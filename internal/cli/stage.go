package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"ifrs9-ecl/internal/config"
	"ifrs9-ecl/internal/dataio"
	"ifrs9-ecl/internal/models"
	"ifrs9-ecl/internal/staging"
	"ifrs9-ecl/pkg/utils"
)

type stageReport struct {
	Source     string                 `json:"source"`
	SICR       config.SICRThresholds  `json:"sicr_thresholds"`
	Before     staging.Summary        `json:"before"`
	After      staging.Summary        `json:"after"`
	Migrations staging.MigrationStats `json:"migrations"`
	Changes    []models.StageChange   `json:"changes"`
	Output     string                 `json:"output,omitempty"`
}

func newStageCmd(app *App) *cobra.Command {
	var (
		outPath string
		mapping map[string]string
	)

	cmd := &cobra.Command{
		Use:   "stage <portfolio.csv>",
		Short: "Reclassify exposures and report stage migrations",
		Long: `Run the staging rules over a portfolio and report how exposures move
between Stage 1, Stage 2 and Stage 3. With --output the restaged
portfolio is written as CSV.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)

			exposures, err := dataio.LoadCSV(args[0], mapping, app.Logger)
			if err != nil {
				return err
			}

			eng := app.Engine()
			framework := eng.Staging()
			restaged, stats := framework.PerformStageMigration(exposures, eng.PD())

			report := stageReport{
				Source:     args[0],
				SICR:       app.Config.Staging.SICR,
				Before:     framework.StageSummary(exposures),
				After:      framework.StageSummary(restaged),
				Migrations: stats,
				Changes:    make([]models.StageChange, 0),
			}
			for i := range restaged {
				if restaged[i].CurrentStage != exposures[i].CurrentStage {
					report.Changes = append(report.Changes, models.StageChange{
						ExposureID: restaged[i].ID,
						From:       exposures[i].CurrentStage,
						To:         restaged[i].CurrentStage,
					})
				}
			}

			if outPath != "" {
				if err := dataio.ExportPortfolioCSV(outPath, restaged); err != nil {
					return err
				}
				report.Output = outPath
			}

			if output.IsJSON() {
				return output.JSON(report)
			}
			renderStageReport(output, report)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outPath, "output", "o", "", "write the restaged portfolio to this CSV")
	cmd.Flags().StringToStringVar(&mapping, "map", nil, "extra column mappings, source=field")

	return cmd
}

// sicrTriggers describes when an exposure counts as significantly
// deteriorated, e.g. "PD +100 bps or +50.00% relative, 30+ dpd".
func sicrTriggers(t config.SICRThresholds) string {
	return fmt.Sprintf("PD %s or %s relative, %d+ dpd",
		"+"+utils.FormatBps(t.PDIncreaseBps/10000),
		utils.FormatSignedPercent(t.RelativeIncreasePct/100),
		t.DaysPastDue)
}

func renderStageReport(output *Output, r stageReport) {
	output.Dim("SICR triggers: %s", sicrTriggers(r.SICR))
	output.Println()
	output.Bold("Stage Distribution")
	table := NewTable(output, "Stage", "Before", "After", "Exposure", "Share")
	for _, s := range models.AllStages {
		before := r.Before.Stages[s]
		after := r.After.Stages[s]
		table.AddRow(
			output.Stage(s),
			fmt.Sprintf("%d", before.Count),
			fmt.Sprintf("%d", after.Count),
			output.Money(after.Exposure),
			utils.FormatPercent(after.ExposurePct/100),
		)
	}
	table.Render()
	output.Println()

	if r.Migrations.TotalMigrations() == 0 {
		output.Success("✓ No stage migrations")
	} else {
		output.Bold("Migrations")
		migrations := NewTable(output, "Movement", "Count")
		for _, from := range models.AllStages {
			for _, to := range models.AllStages {
				n := r.Migrations[models.MigrationKey(from, to)]
				if from == to || n == 0 {
					continue
				}
				migrations.AddRow(fmt.Sprintf("%s → %s", output.Stage(from), output.Stage(to)), fmt.Sprintf("%d", n))
			}
		}
		migrations.Render()
		output.Info("%d of %d exposures moved", r.Migrations.TotalMigrations(), r.After.TotalCount)
	}

	if r.Output != "" {
		output.Success("✓ Wrote %s", r.Output)
	}
}
