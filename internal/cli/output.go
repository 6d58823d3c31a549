package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"immobilog/internal/core"
	"immobilog/pkg/domain"
)

func okMark() string    { return color.New(color.FgGreen).Sprint("✓") }
func warnMark() string  { return color.New(color.FgYellow).Sprint("!") }
func errorMark() string { return color.New(color.FgRed).Sprint("✗") }

func heading(w io.Writer, title string) {
	fmt.Fprintln(w, color.New(color.Bold).Sprint(title))
}

func success(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", okMark(), fmt.Sprintf(format, args...))
}

func notice(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", warnMark(), fmt.Sprintf(format, args...))
}

// reportResult prints the outcome of a lifecycle command. An ignored command
// is not an error: the session is unchanged and the reason is shown.
func reportResult(w io.Writer, res core.Result, applied string) {
	if res.Ignored() {
		notice(w, "ignored: %s", res.Reason)
		return
	}
	success(w, "%s", applied)
}

func newTable(w io.Writer, header ...string) *tabwriter.Writer {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	return tw
}

func row(tw *tabwriter.Writer, cells ...string) {
	fmt.Fprintln(tw, strings.Join(cells, "\t"))
}

func num(v float64) string { return humanize.Ftoa(v) }

func optNum(v *float64) string {
	if v == nil {
		return "-"
	}
	return num(*v)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func doseText(r domain.DoseResult) string {
	if r.DoseMg == nil {
		return "N/A"
	}
	return fmt.Sprintf("%.2f", *r.DoseMg)
}

func writeDoses(w io.Writer, results []domain.DoseResult) error {
	tw := newTable(w, "DRUG", "CATEGORY", "ROUTE", "CONC (mg/ml)", "DOSE (mg)", "VOLUME (ml)", "NOTES")
	for _, r := range results {
		category := string(r.Category)
		if r.Secondary {
			category += " (secondary)"
		}
		row(tw, r.Drug, category, orDash(r.Route), num(r.Concentration), doseText(r), fmt.Sprintf("%.2f", r.VolumeMl), orDash(r.Notes))
	}
	return tw.Flush()
}
