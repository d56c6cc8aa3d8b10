package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"ifrs9-ecl/internal/dataio"
	"ifrs9-ecl/internal/portfolio"
	"ifrs9-ecl/internal/validation"
	"ifrs9-ecl/pkg/utils"
)

type validationReport struct {
	Source  string            `json:"source"`
	Total   int               `json:"total"`
	Valid   int               `json:"valid"`
	Invalid []invalidExposure `json:"invalid"`
	Summary portfolio.Summary `json:"portfolio"`
}

func newValidateCmd(app *App) *cobra.Command {
	var mapping map[string]string

	cmd := &cobra.Command{
		Use:   "validate <portfolio.csv>",
		Short: "Check a portfolio against the data-quality rules",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)

			exposures, err := dataio.LoadCSV(args[0], mapping, app.Logger)
			if err != nil {
				return err
			}

			reports := validation.NewValidator(false, app.Logger).ValidatePortfolio(exposures)
			report := validationReport{
				Source:  args[0],
				Total:   len(exposures),
				Valid:   len(exposures) - len(reports),
				Invalid: make([]invalidExposure, 0, len(reports)),
				Summary: portfolio.New(exposures, app.Logger).Summary(),
			}
			for _, r := range reports {
				report.Invalid = append(report.Invalid, invalidExposure{ExposureID: r.ExposureID, Errors: r.Messages()})
			}

			if output.IsJSON() {
				if err := output.JSON(report); err != nil {
					return err
				}
			} else {
				renderValidation(output, report)
			}

			if len(reports) > 0 {
				return fmt.Errorf("%d of %d exposures failed validation", len(reports), len(exposures))
			}
			return nil
		},
	}

	cmd.Flags().StringToStringVar(&mapping, "map", nil, "extra column mappings, source=field")

	return cmd
}

func renderValidation(output *Output, r validationReport) {
	s := r.Summary
	output.Box("Portfolio", []string{
		fmt.Sprintf("Exposures:        %d", s.TotalItems),
		fmt.Sprintf("Total Exposure:   %s", output.Money(s.TotalExposure)),
		fmt.Sprintf("Collateral:       %s", output.Money(s.TotalCollateral)),
		fmt.Sprintf("Avg Credit Score: %.0f", s.AverageCreditScore),
		fmt.Sprintf("Avg LTV:          %s", utils.FormatPercent(s.AverageLTV)),
		fmt.Sprintf("Past Due:         %d", s.PastDueCount),
		fmt.Sprintf("Defaulted:        %d", s.DefaultedCount),
	})
	output.Println()

	if len(r.Invalid) == 0 {
		output.Success("✓ All %d exposures are valid", r.Total)
		return
	}

	table := NewTable(output, "Exposure", "Errors")
	for _, inv := range r.Invalid {
		table.AddRow(inv.ExposureID, utils.TruncateString(strings.Join(inv.Errors, "; "), 100))
	}
	table.Render()
	output.Println()
	output.Error("✗ %d of %d exposures are invalid", len(r.Invalid), r.Total)
}
