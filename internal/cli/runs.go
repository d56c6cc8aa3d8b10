package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"ifrs9-ecl/internal/dataio"
	apperrors "ifrs9-ecl/internal/errors"
	"ifrs9-ecl/internal/models"
	"ifrs9-ecl/internal/store"
	"ifrs9-ecl/pkg/id"
	"ifrs9-ecl/pkg/utils"
)

// addRunCommands adds the run archive commands.
func addRunCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Browse archived calculation runs",
	}

	cmd.AddCommand(newRunsListCmd(app))
	cmd.AddCommand(newRunsShowCmd(app))
	cmd.AddCommand(newRunsDeleteCmd(app))

	rootCmd.AddCommand(cmd)
}

func newRunsListCmd(app *App) *cobra.Command {
	var (
		scenarioName string
		since        string
		limit        int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List archived runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)

			filter := store.RunFilter{ScenarioName: scenarioName, Limit: limit}
			if since != "" {
				t, err := parseSince(since, time.Now())
				if err != nil {
					return err
				}
				filter.Since = t
			}

			st, err := app.RunStore()
			if err != nil {
				return err
			}
			defer app.Close()
			records, err := st.ListRuns(cmd.Context(), filter)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(records)
			}
			if !filter.Since.IsZero() {
				output.Dim("Runs since %s", FormatDate(filter.Since))
			}
			if len(records) == 0 {
				output.Dim("No archived runs")
				return nil
			}

			table := NewTable(output, "ID", "Created", "Scenario", "Items", "ECL", "Coverage", "Label")
			for _, r := range records {
				name := r.ScenarioName
				if name == "" {
					name = "base"
				}
				items := fmt.Sprintf("%d", r.TotalItems)
				if r.FailedItems > 0 {
					items += output.Yellow(fmt.Sprintf(" (%d failed)", r.FailedItems))
				}
				table.AddRow(
					r.ID,
					FormatDateTime(r.CreatedAt),
					name,
					items,
					output.Money(r.TotalECL),
					utils.FormatPercent(r.CoverageRatio()),
					utils.TruncateString(r.Label, 30),
				)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().StringVarP(&scenarioName, "scenario", "s", "", "only runs of this scenario")
	cmd.Flags().StringVar(&since, "since", "", "only runs after a date (2006-01-02) or within a duration (72h)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum runs to list")

	return cmd
}

// parseSince accepts a date or a look-back duration.
func parseSince(v string, now time.Time) (time.Time, error) {
	if d, err := time.ParseDuration(v); err == nil {
		return now.Add(-d), nil
	}
	t, err := time.Parse(dataio.DateLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --since %q: want a date like 2006-01-02 or a duration like 72h", v)
	}
	return t, nil
}

func parseRunID(arg string) (string, error) {
	if !id.Valid(arg) {
		return "", apperrors.Wrapf(apperrors.ErrDataNotFound, "run %s: malformed id", arg)
	}
	return arg, nil
}

func newRunsShowCmd(app *App) *cobra.Command {
	var items bool

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show an archived run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			runID, err := parseRunID(args[0])
			if err != nil {
				return err
			}

			st, err := app.RunStore()
			if err != nil {
				return err
			}
			defer app.Close()
			run, err := st.GetRun(cmd.Context(), runID)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				if !items {
					return output.JSON(struct {
						ID        string    `json:"id"`
						CreatedAt time.Time `json:"created_at"`
						Source    string    `json:"source"`
						Label     string    `json:"label,omitempty"`
						dataio.Report
					}{run.ID, run.CreatedAt, run.Source, run.Label, dataio.NewReport(run.Result)})
				}
				return output.JSON(run.Result)
			}

			output.Bold("Run %s", run.ID)
			output.Printf("  Created: %s\n", FormatDateTime(run.CreatedAt))
			output.Printf("  Source:  %s\n", run.Source)
			if run.Label != "" {
				output.Printf("  Label:   %s\n", run.Label)
			}
			output.Println()
			renderResult(output, app, run.Result, 5)

			if items {
				output.Println()
				renderItems(output, run.Result.ItemResults)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&items, "items", false, "include per-exposure results")

	return cmd
}

func renderItems(output *Output, results []models.ECLResult) {
	table := NewTable(output, "Exposure", "Stage", "PD", "LGD", "EAD", "ECL", "Horizon")
	for _, r := range results {
		horizon := fmt.Sprintf("%dm", r.TimeHorizonMonths)
		if r.IsLifetime() {
			horizon += " lifetime"
		}
		table.AddRow(
			r.ExposureID,
			output.Stage(r.Stage),
			utils.FormatPercent(r.PD),
			utils.FormatPercent(r.LGD),
			output.Money(r.EAD),
			output.Money(r.ECL),
			horizon,
		)
	}
	table.Render()
}

func newRunsDeleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete an archived run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			runID, err := parseRunID(args[0])
			if err != nil {
				return err
			}

			st, err := app.RunStore()
			if err != nil {
				return err
			}
			defer app.Close()
			retry := utils.DefaultRetryConfig()
			retry.Retryable = store.IsBusy
			err = utils.Retry(cmd.Context(), retry, func() error {
				return st.DeleteRun(cmd.Context(), runID)
			})
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]string{"deleted": runID})
			}
			output.Success("✓ Deleted run %s", runID)
			return nil
		},
	}
}
