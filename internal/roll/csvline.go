// Package roll implements ingestion and export of electoral-roll data:
// CSV/XLSX parsing, header mapping, batched imports with per-row error
// isolation, and export back to the fixed interchange format.
package roll

import "strings"

// ParseLine tokenizes one CSV line into ordered field values. A double
// quote toggles an "inside quoted field" mode and the comma only separates
// outside that mode, which is how spreadsheet tools quote fields that
// contain commas. No doubled-quote escaping beyond the toggle.
func ParseLine(line string) []string {
	var fields []string
	var current strings.Builder
	inQuotes := false

	for _, ch := range line {
		switch {
		case ch == '"':
			inQuotes = !inQuotes
		case ch == ',' && !inQuotes:
			fields = append(fields, current.String())
			current.Reset()
		default:
			current.WriteRune(ch)
		}
	}
	fields = append(fields, current.String())
	return fields
}

// SplitLines splits full CSV text into lines, tolerating CRLF endings.
// A trailing empty line is not a row.
func SplitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
