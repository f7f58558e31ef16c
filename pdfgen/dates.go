package pdfgen

import (
	"strings"
	"time"
)

const (
	notAvailable = "N/A"
	invalidDate  = "Data inválida"
)

var dateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05Z",
}

var dateSentinels = map[string]bool{
	"n/a":  true,
	"none": true,
	"null": true,
	"-":    true,
}

// FormatDate reformats a timestamp to dd-mm-yyyy HH:MM:SS. Blank and
// sentinel inputs become the "N/A" marker. Unparseable non-empty inputs
// yield the invalid-date marker under the strict policy and pass through
// verbatim otherwise.
func FormatDate(raw string, strict bool) string {
	s := strings.TrimSpace(raw)
	if s == "" || dateSentinels[strings.ToLower(s)] {
		return notAvailable
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("02-01-2006 15:04:05")
		}
	}
	if strict {
		return invalidDate
	}
	return raw
}
