package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"ifrs9-ecl/internal/models"
	"ifrs9-ecl/internal/scenario"
	"ifrs9-ecl/pkg/utils"
)

// addScenarioCommands adds the scenario inspection commands.
func addScenarioCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:     "scenarios",
		Aliases: []string{"scenario"},
		Short:   "Inspect macroeconomic scenarios",
	}
	cmd.PersistentFlags().String("scenarios-file", "", "YAML file of scenario definitions")

	cmd.AddCommand(newScenariosListCmd(app))
	cmd.AddCommand(newScenariosMultipliersCmd(app))
	cmd.AddCommand(newScenariosStressCmd(app))

	rootCmd.AddCommand(cmd)
}

func scenarioManager(cmd *cobra.Command, app *App) (*scenario.Manager, error) {
	file, _ := cmd.Flags().GetString("scenarios-file")
	return app.Scenarios(file)
}

func newScenariosListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List scenarios with their probabilities and multipliers",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			mgr, err := scenarioManager(cmd, app)
			if err != nil {
				return err
			}

			summary := mgr.Summary()
			if output.IsJSON() {
				return output.JSON(summary)
			}

			table := NewTable(output, "Name", "Type", "Probability", "PD", "LGD", "EAD", "Horizon")
			for _, s := range summary.Scenarios {
				table.AddRow(
					s.Name,
					string(s.Type),
					utils.FormatPercent(s.Probability),
					utils.FormatMultiplier(s.PDMultiplier),
					utils.FormatMultiplier(s.LGDMultiplier),
					utils.FormatMultiplier(s.EADMultiplier),
					fmt.Sprintf("%dm", s.ProjectionHorizonMonths),
				)
			}
			table.Render()
			output.Println()

			total := utils.FormatPercent(summary.TotalProbability)
			if summary.Valid {
				output.Success("✓ Probabilities sum to %s", total)
			} else {
				output.Warning("Probabilities sum to %s", total)
			}
			return nil
		},
	}
}

type multiplierRow struct {
	Scenario string `json:"scenario"`
	scenario.Multipliers
	Changes map[string]float64 `json:"macro_changes"`
}

func newScenariosMultipliersCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "multipliers",
		Short: "Show forward-looking multipliers implied by each scenario's macro deltas",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			mgr, err := scenarioManager(cmd, app)
			if err != nil {
				return err
			}

			rows := make([]multiplierRow, 0, mgr.Len())
			for _, name := range mgr.Names() {
				model, err := mgr.MacroModel(name)
				if err != nil {
					return err
				}
				rows = append(rows, multiplierRow{
					Scenario:    name,
					Multipliers: mgr.Forward().ScenarioMultipliers(model),
					Changes:     model.Changes(),
				})
			}

			if output.IsJSON() {
				return output.JSON(rows)
			}
			renderMultipliers(output, rows)
			if !app.Config.Macro.ApplyOverlay {
				output.Dim("Macro overlay is off; calculations use the direct multipliers.")
			}
			return nil
		},
	}
}

func newScenariosStressCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "stress [preset...]",
		Short: "Show the multipliers of the preset stress shocks",
		Long: fmt.Sprintf(`Apply preset macroeconomic stress shocks to the baseline and show the
resulting forward-looking multipliers. Presets: %v`, scenario.StressScenarios()),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			presets := args
			if len(presets) == 0 {
				presets = scenario.StressScenarios()
			}

			forward := scenario.NewForwardLooking(app.Config.Macro, app.Logger)
			rows := make([]multiplierRow, 0, len(presets))
			for _, name := range presets {
				model := scenario.NewMacroModel(app.Config.Macro.Baseline, app.Logger)
				if err := model.ApplyStressScenario(name); err != nil {
					return err
				}
				rows = append(rows, multiplierRow{
					Scenario:    name,
					Multipliers: forward.ScenarioMultipliers(model),
					Changes:     model.Changes(),
				})
			}

			if output.IsJSON() {
				return output.JSON(rows)
			}
			renderMultipliers(output, rows)
			return nil
		},
	}
}

func renderMultipliers(output *Output, rows []multiplierRow) {
	table := NewTable(output, "Scenario", "PD", "LGD", "EAD", "PD Δ", "LGD Δ", "GDP", "Unemployment", "Spreads")
	for _, r := range rows {
		table.AddRow(
			r.Scenario,
			colorMultiplier(output, r.PD),
			colorMultiplier(output, r.LGD),
			colorMultiplier(output, r.EAD),
			utils.FormatSignedPercent(r.PD-1),
			utils.FormatSignedPercent(r.LGD-1),
			fmt.Sprintf("%+.2f", r.Changes[models.VarGDPGrowth]),
			fmt.Sprintf("%+.2f", r.Changes[models.VarUnemploymentRate]),
			fmt.Sprintf("%+.0f", r.Changes[models.VarCreditSpreads]),
		)
	}
	table.Render()
}

// colorMultiplier shows multipliers that raise losses in red.
func colorMultiplier(output *Output, m float64) string {
	s := utils.FormatMultiplier(m)
	switch {
	case m > 1:
		return output.Red(s)
	case m < 1:
		return output.Green(s)
	}
	return s
}
