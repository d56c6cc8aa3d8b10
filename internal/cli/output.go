// Package cli provides the command-line interface for the ECL engine.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"ifrs9-ecl/internal/models"
	"ifrs9-ecl/pkg/utils"
)

// Output handles formatted output for the CLI.
type Output struct {
	writer       io.Writer
	jsonMode     bool
	colorEnabled bool
	symbol       string
	places       int
}

// NewOutput creates a new Output instance.
func NewOutput(cmd *cobra.Command) *Output {
	jsonMode, _ := cmd.Flags().GetBool("json")
	noColor, _ := cmd.Flags().GetBool("no-color")
	return &Output{
		writer:       cmd.OutOrStdout(),
		jsonMode:     jsonMode,
		colorEnabled: !jsonMode && !noColor && isTerminal(cmd.OutOrStdout()),
		symbol:       utils.CurrencySymbol("USD"),
		places:       2,
	}
}

// isTerminal checks if w is a terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fileInfo, err := f.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}

// IsJSON returns true if JSON output mode is enabled.
func (o *Output) IsJSON() bool {
	return o.jsonMode
}

// SetCurrencySymbol sets the symbol used by Money.
func (o *Output) SetCurrencySymbol(symbol string) {
	if symbol != "" {
		o.symbol = symbol
	}
}

// SetDecimalPlaces sets the number of decimals Money prints.
func (o *Output) SetDecimalPlaces(places int) {
	if places >= 0 {
		o.places = places
	}
}

// JSON outputs data as JSON.
func (o *Output) JSON(data interface{}) error {
	encoder := json.NewEncoder(o.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// Println prints a message with newline.
func (o *Output) Println(args ...interface{}) {
	fmt.Fprintln(o.writer, args...)
}

// Printf prints a formatted message.
func (o *Output) Printf(format string, args ...interface{}) {
	fmt.Fprintf(o.writer, format, args...)
}

// Success prints a success message in green.
func (o *Output) Success(format string, args ...interface{}) {
	o.line(color.FgGreen, format, args...)
}

// Error prints an error message in red.
func (o *Output) Error(format string, args ...interface{}) {
	o.line(color.FgRed, format, args...)
}

// Warning prints a warning message in yellow.
func (o *Output) Warning(format string, args ...interface{}) {
	o.line(color.FgYellow, format, args...)
}

// Info prints an info message in cyan.
func (o *Output) Info(format string, args ...interface{}) {
	o.line(color.FgCyan, format, args...)
}

// Bold prints a bold message.
func (o *Output) Bold(format string, args ...interface{}) {
	o.line(color.Bold, format, args...)
}

// Dim prints a dimmed message.
func (o *Output) Dim(format string, args ...interface{}) {
	o.line(color.Faint, format, args...)
}

func (o *Output) line(attr color.Attribute, format string, args ...interface{}) {
	fmt.Fprintln(o.writer, o.paint(fmt.Sprintf(format, args...), attr))
}

func (o *Output) paint(text string, attrs ...color.Attribute) string {
	c := color.New(attrs...)
	if o.colorEnabled {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	return c.Sprint(text)
}

// Green returns green colored text.
func (o *Output) Green(text string) string { return o.paint(text, color.FgGreen) }

// Red returns red colored text.
func (o *Output) Red(text string) string { return o.paint(text, color.FgRed) }

// Yellow returns yellow colored text.
func (o *Output) Yellow(text string) string { return o.paint(text, color.FgYellow) }


// BoldText returns bold text.
func (o *Output) BoldText(text string) string { return o.paint(text, color.Bold) }

// DimText returns dimmed text.
func (o *Output) DimText(text string) string { return o.paint(text, color.Faint) }

// Money formats an amount with the output currency symbol.
func (o *Output) Money(amount decimal.Decimal) string {
	return utils.FormatCurrency(amount, o.symbol, o.places)
}

// Stage returns the stage label colored by severity.
func (o *Output) Stage(s models.Stage) string {
	switch s {
	case models.Stage1:
		return o.Green(string(s))
	case models.Stage2:
		return o.Yellow(string(s))
	case models.Stage3:
		return o.Red(string(s))
	}
	return string(s)
}

// Delta formats a signed change in ECL; increases are red.
func (o *Output) Delta(change decimal.Decimal) string {
	formatted := o.Money(change)
	switch {
	case change.IsPositive():
		return o.Red("+" + formatted)
	case change.IsNegative():
		return o.Green(formatted)
	}
	return formatted
}

// Table represents a simple table for output.
type Table struct {
	headers []string
	rows    [][]string
	output  *Output
}

// NewTable creates a new table.
func NewTable(output *Output, headers ...string) *Table {
	return &Table{
		headers: headers,
		rows:    make([][]string, 0),
		output:  output,
	}
}

// AddRow adds a row to the table.
func (t *Table) AddRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

// Render renders the table.
func (t *Table) Render() {
	if len(t.headers) == 0 {
		return
	}

	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = visibleLen(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(widths) && visibleLen(cell) > widths[i] {
				widths[i] = visibleLen(cell)
			}
		}
	}

	t.printRow(t.headers, widths, true)
	t.printSeparator(widths)
	for _, row := range t.rows {
		t.printRow(row, widths, false)
	}
}

func (t *Table) printRow(cells []string, widths []int, isHeader bool) {
	var parts []string
	for i, cell := range cells {
		if i >= len(widths) {
			break
		}
		padded := cell
		if i < len(cells)-1 {
			padded = PadRight(cell, widths[i])
		}
		if isHeader {
			padded = t.output.BoldText(padded)
		}
		parts = append(parts, padded)
	}
	t.output.Println(strings.Join(parts, "  "))
}

func (t *Table) printSeparator(widths []int) {
	var parts []string
	for _, w := range widths {
		parts = append(parts, strings.Repeat("─", w))
	}
	t.output.Println(t.output.DimText(strings.Join(parts, "──")))
}

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// stripANSI removes ANSI escape codes from a string.
func stripANSI(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}

func visibleLen(s string) int {
	return len([]rune(stripANSI(s)))
}

// Box draws a box around content.
func (o *Output) Box(title string, content []string) {
	maxLen := visibleLen(title)
	for _, line := range content {
		if l := visibleLen(line); l > maxLen {
			maxLen = l
		}
	}

	width := maxLen + 4
	border := strings.Repeat("─", width-2)

	o.Println(o.DimText("┌" + border + "┐"))
	o.Printf("%s %s%s %s\n", o.DimText("│"), o.BoldText(title), strings.Repeat(" ", width-4-visibleLen(title)), o.DimText("│"))
	o.Println(o.DimText("├" + border + "┤"))
	for _, line := range content {
		padding := width - 4 - visibleLen(line)
		o.Printf("%s %s%s %s\n", o.DimText("│"), line, strings.Repeat(" ", padding), o.DimText("│"))
	}
	o.Println(o.DimText("└" + border + "┘"))
}
