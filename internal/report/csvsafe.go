// Package report writes resolved quotes as spreadsheet-safe CSV.
package report

import "strings"

// formulaLeaders are first characters spreadsheets treat as the start of a
// formula or a control sequence.
const formulaLeaders = "=+-@|%\t\r\n"

// EscapeCSVCell prefixes a cell with a single quote when a spreadsheet would
// otherwise evaluate it. Card names come from upstream APIs and are untrusted.
func EscapeCSVCell(value string) string {
	if value == "" || !strings.ContainsRune(formulaLeaders, rune(value[0])) {
		return value
	}
	return "'" + value
}

// EscapeCSVRow escapes all cells in a row
func EscapeCSVRow(row []string) []string {
	escaped := make([]string, len(row))
	for i, cell := range row {
		escaped[i] = EscapeCSVCell(cell)
	}
	return escaped
}
