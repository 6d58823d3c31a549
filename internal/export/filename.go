package export

import (
	"regexp"
	"strings"

	"immobilog/pkg/domain"
)

var (
	nonAlnum       = regexp.MustCompile(`[^a-z0-9]+`)
	pathSeparators = strings.NewReplacer("/", "_", "\\", "_")
)

// SanitizeName lowercases s, collapses every run of non-alphanumeric
// characters into one underscore, and trims leading and trailing underscores.
func SanitizeName(s string) string {
	return strings.Trim(nonAlnum.ReplaceAllString(strings.ToLower(s), "_"), "_")
}

// ReportFilename is immobilization_report_<animal>_<YYYY-MM-DD>.md where the
// date is the event start in UTC.
func ReportFilename(a domain.Animal, ev domain.ImmobilizationEvent) string {
	name := SanitizeName(a.DisplayName())
	if name == "" {
		name = "unknown"
	}
	return "immobilization_report_" + name + "_" + ev.StartTime.UTC().Format("2006-01-02") + ".md"
}

// EventFilename is immobilization-event-<id>-<animal name|unknown>.<ext>.
func EventFilename(ev domain.ImmobilizationEvent, a *domain.Animal, ext string) string {
	name := "unknown"
	if a != nil && a.Name != "" {
		name = pathSeparators.Replace(a.Name)
	}
	return "immobilization-event-" + ev.ID + "-" + name + "." + strings.TrimPrefix(ext, ".")
}
