package export

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Human-readable timestamp layouts used in reports and the timeline.
const (
	DateTimeLayout = "2006-01-02 15:04:05"
	TimeLayout     = "15:04:05"
	isoMillis      = "2006-01-02T15:04:05.000Z07:00"
)

// Options controls presentation details shared by the projections.
type Options struct {
	// Location is used for human-readable timestamps. Nil means time.Local.
	Location *time.Location
	// Now stamps generated documents. Nil means time.Now.
	Now func() time.Time
}

func (o Options) loc() *time.Location {
	if o.Location == nil {
		return time.Local
	}
	return o.Location
}

func (o Options) now() time.Time {
	if o.Now == nil {
		return time.Now()
	}
	return o.Now()
}

func (o Options) dateTime(t time.Time) string { return t.In(o.loc()).Format(DateTimeLayout) }

func (o Options) clock(t time.Time) string { return t.In(o.loc()).Format(TimeLayout) }

func isoTime(t time.Time) string { return t.UTC().Format(isoMillis) }

// number renders a measurement or reading without trailing zeros.
func number(v float64) string { return humanize.Ftoa(v) }

// fixed2 renders a computed dose the way the calculator displays it.
func fixed2(v float64) string { return fmt.Sprintf("%.2f", v) }

// minutes rounds a duration to whole minutes.
func minutes(d time.Duration) int64 { return int64(d.Round(time.Minute) / time.Minute) }

// FieldLabel turns a camelCase field name into a title-cased label, e.g.
// "upperCanineLength" becomes "Upper Canine Length".
func FieldLabel(key string) string {
	var b strings.Builder
	for i, r := range key {
		if i > 0 && unicode.IsUpper(r) {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return cases.Title(language.English, cases.NoLower).String(b.String())
}
