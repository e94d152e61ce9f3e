package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"wheel-ledger/internal/models"
)

// Color codes for terminal output
const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorCyan   = "\033[36m"
	ColorWhite  = "\033[37m"
	ColorBold   = "\033[1m"
	ColorDim    = "\033[2m"
)

// Output handles formatted output for the CLI.
type Output struct {
	writer       io.Writer
	jsonMode     bool
	colorEnabled bool
}

// NewOutput creates a new Output instance.
func NewOutput(cmd *cobra.Command) *Output {
	jsonMode, _ := cmd.Flags().GetBool("json")
	return &Output{
		writer:       cmd.OutOrStdout(),
		jsonMode:     jsonMode,
		colorEnabled: !jsonMode && isTerminal(cmd.OutOrStdout()),
	}
}

// isTerminal checks if w is a character device.
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

// DisableColor turns colored output off.
func (o *Output) DisableColor() {
	o.colorEnabled = false
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
	o.colored(ColorGreen, format, args...)
}

// Error prints an error message in red.
func (o *Output) Error(format string, args ...interface{}) {
	o.colored(ColorRed, format, args...)
}

// Warning prints a warning message in yellow.
func (o *Output) Warning(format string, args ...interface{}) {
	o.colored(ColorYellow, format, args...)
}

// Info prints an info message in cyan.
func (o *Output) Info(format string, args ...interface{}) {
	o.colored(ColorCyan, format, args...)
}

// Bold prints a bold message.
func (o *Output) Bold(format string, args ...interface{}) {
	o.colored(ColorBold, format, args...)
}

// Dim prints a dimmed message.
func (o *Output) Dim(format string, args ...interface{}) {
	o.colored(ColorDim, format, args...)
}

func (o *Output) colored(color, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if o.colorEnabled {
		fmt.Fprintf(o.writer, "%s%s%s\n", color, msg, ColorReset)
	} else {
		fmt.Fprintln(o.writer, msg)
	}
}

// ColoredString returns a colored string without newline.
func (o *Output) ColoredString(color, text string) string {
	if o.colorEnabled {
		return color + text + ColorReset
	}
	return text
}

// Green returns green colored text.
func (o *Output) Green(text string) string {
	return o.ColoredString(ColorGreen, text)
}

// Red returns red colored text.
func (o *Output) Red(text string) string {
	return o.ColoredString(ColorRed, text)
}

// Yellow returns yellow colored text.
func (o *Output) Yellow(text string) string {
	return o.ColoredString(ColorYellow, text)
}

// PnLColor returns the appropriate color for P&L.
func (o *Output) PnLColor(pnl decimal.Decimal) string {
	switch pnl.Sign() {
	case 1:
		return ColorGreen
	case -1:
		return ColorRed
	}
	return ColorWhite
}

// FormatPnL formats P&L with sign and color.
func (o *Output) FormatPnL(pnl decimal.Decimal) string {
	return o.ColoredString(o.PnLColor(pnl), FormatPnL(pnl))
}

// FormatPercent formats percentage with sign and color.
func (o *Output) FormatPercent(pct decimal.Decimal) string {
	return o.ColoredString(o.PnLColor(pct), FormatPercent(pct))
}

// Diagnosis colors a position diagnosis.
func (o *Output) Diagnosis(d string) string {
	switch d {
	case models.DiagnosisRisk:
		return o.Red("● " + d)
	case models.DiagnosisLosing:
		return o.Yellow("● " + d)
	case models.DiagnosisWinning:
		return o.Green("● " + d)
	default:
		return "● " + d
	}
}

// ScoreLabel colors a score label.
func (o *Output) ScoreLabel(score int, label string) string {
	text := fmt.Sprintf("%d %s", score, label)
	switch {
	case score >= 70:
		return o.Green(text)
	case score >= 50:
		return o.Yellow(text)
	default:
		return o.Red(text)
	}
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
		widths[i] = displayWidth(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(widths) {
				widths[i] = max(widths[i], displayWidth(cell))
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
		padded := cell + strings.Repeat(" ", max(0, widths[i]-displayWidth(cell)))
		if isHeader && t.output.colorEnabled {
			padded = ColorBold + padded + ColorReset
		}
		parts = append(parts, padded)
	}
	t.output.Println(strings.TrimRight(strings.Join(parts, "  "), " "))
}

func (t *Table) printSeparator(widths []int) {
	var parts []string
	for _, w := range widths {
		parts = append(parts, strings.Repeat("─", w))
	}
	sep := strings.Join(parts, "──")
	if t.output.colorEnabled {
		sep = ColorDim + sep + ColorReset
	}
	t.output.Println(sep)
}

// displayWidth counts the runes of s that are not part of an ANSI escape.
func displayWidth(s string) int {
	return len([]rune(stripANSI(s)))
}

// stripANSI removes the escape codes this package emits.
func stripANSI(s string) string {
	escapes := []string{
		ColorReset, ColorRed, ColorGreen, ColorYellow,
		ColorCyan, ColorWhite, ColorBold, ColorDim,
	}
	for _, esc := range escapes {
		s = strings.ReplaceAll(s, esc, "")
	}
	return s
}

// Box draws a box around content.
func (o *Output) Box(title string, content []string) {
	width := displayWidth(title)
	for _, line := range content {
		width = max(width, displayWidth(line))
	}
	border := strings.Repeat("─", width+2)

	o.Printf("┌%s┐\n", border)
	o.Printf("│ %s%s │\n", o.ColoredString(ColorBold, title), strings.Repeat(" ", width-displayWidth(title)))
	o.Printf("├%s┤\n", border)
	for _, line := range content {
		o.Printf("│ %s%s │\n", line, strings.Repeat(" ", width-displayWidth(line)))
	}
	o.Printf("└%s┘\n", border)
}
