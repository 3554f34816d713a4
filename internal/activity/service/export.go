package service

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/calybase/calybase-backend/internal/activity/domain"
)

const (
	FormatCSV  = "csv"
	FormatJSON = "json"

	anonymousLabel = "Anonyme"
)

var csvHeader = []string{"Timestamp", "User", "Action", "Category", "Details", "Session"}

// Export renders entries as CSV or indented JSON. An empty set is an error
// so callers can show a notice instead of producing an empty file.
func Export(entries []domain.Entry, format string) ([]byte, error) {
	if len(entries) == 0 {
		return nil, domain.ErrNothingToExport
	}
	switch strings.ToLower(format) {
	case FormatCSV:
		return []byte(ExportCSV(entries)), nil
	case FormatJSON:
		return ExportJSON(entries)
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedFormat, format)
	}
}

// ExportCSV quotes every field and doubles embedded quotes. Rows are joined
// with a bare newline and the output has no trailing newline.
func ExportCSV(entries []domain.Entry) string {
	rows := make([]string, 0, len(entries)+1)
	rows = append(rows, strings.Join(csvHeader, ","))

	for _, e := range entries {
		user := e.UserEmail
		if user == "" {
			user = anonymousLabel
		}
		fields := []string{
			FormatTimestamp(e.Timestamp),
			user,
			e.Action,
			e.Category,
			string(detailsJSON(e.Details)),
			e.SessionID,
		}
		for i, f := range fields {
			fields[i] = quoteCSV(f)
		}
		rows = append(rows, strings.Join(fields, ","))
	}

	return strings.Join(rows, "\n")
}

func quoteCSV(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// FormatTimestamp renders t as UTC ISO-8601 with milliseconds.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

func ExportJSON(entries []domain.Entry) ([]byte, error) {
	out, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode audit entries: %w", err)
	}
	return out, nil
}

// ExportFilename returns activity-logs-YYYY-MM-DD.<format>.
func ExportFilename(now time.Time, format string) string {
	return fmt.Sprintf("activity-logs-%s.%s", now.UTC().Format("2006-01-02"), strings.ToLower(format))
}

func ContentType(format string) string {
	if strings.ToLower(format) == FormatJSON {
		return "application/json"
	}
	return "text/csv"
}
