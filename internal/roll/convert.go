package roll

import (
	"strconv"
	"strings"
	"time"
)

// Spreadsheet serial dates count days from this epoch, so that day 2 is
// 1900-01-01. 25569 is the serial for 1970-01-01 and doubles as the
// heuristic threshold separating serial dates from implausible integers.
var serialDateEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

const serialDateThreshold = 25569

// dobLayouts are tried in order for free-text date-of-birth values.
// DD/MM/YYYY first because that is the roll interchange format.
var dobLayouts = []string{
	"02/01/2006",
	"2/1/2006",
	"2006-01-02",
	"02-01-2006",
	"02.01.2006",
}

// SerialDate converts a spreadsheet day count to a UTC date. Day 2 is
// 1900-01-01 and day 25569 is 1970-01-01.
func SerialDate(n int) time.Time {
	return serialDateEpoch.AddDate(0, 0, n)
}

// ParseOptionalInt parses an integer field, storing null on failure rather
// than failing the row.
func ParseOptionalInt(s string) *int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return nil
	}
	return &n
}

// ParseDOB handles the dual date format of upstream spreadsheet exports:
// a serial-date integer when the value exceeds the 1970-01-01 threshold,
// otherwise general date parsing. Unparseable values store null.
func ParseDOB(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	if n, err := strconv.Atoi(s); err == nil && n > serialDateThreshold {
		t := SerialDate(n)
		return &t
	}

	for _, layout := range dobLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
