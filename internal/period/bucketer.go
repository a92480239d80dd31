// Package period splits a reporting period into labelled buckets.
//
// All boundaries are local midnights in the bucketer's location.
package period

import (
	"strconv"
	"time"

	"gastos/internal/core"
)

var monthLabels = [12]string{"Ene", "Feb", "Mar", "Abr", "May", "Jun", "Jul", "Ago", "Sep", "Oct", "Nov", "Dic"}

var weekOfMonthLabels = [4]string{"Sem 1", "Sem 2", "Sem 3", "Sem 4"}

// Window is the half-open interval [Start, End) covered by a period.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether ts falls inside the window. The zero time is never
// contained.
func (w Window) Contains(ts time.Time) bool {
	if ts.IsZero() {
		return false
	}
	return !ts.Before(w.Start) && ts.Before(w.End)
}

// Bucketer computes windows and bucket labels. A nil Location means UTC.
type Bucketer struct {
	Location *time.Location
}

// New returns a bucketer for loc.
func New(loc *time.Location) Bucketer {
	return Bucketer{Location: loc}
}

func (b Bucketer) loc() *time.Location {
	if b.Location == nil {
		return time.UTC
	}
	return b.Location
}

// StartOfDay returns local midnight of the day containing t.
func (b Bucketer) StartOfDay(t time.Time) time.Time {
	t = t.In(b.loc())
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, b.loc())
}

// StartOfMonth returns local midnight of the first day of t's month.
func (b Bucketer) StartOfMonth(t time.Time) time.Time {
	t = t.In(b.loc())
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, b.loc())
}

// BucketsFor returns the window of period p around ref and its bucket labels
// in display order. Unknown periods are treated as Month.
func (b Bucketer) BucketsFor(p core.Period, ref time.Time) (Window, []string) {
	ref = ref.In(b.loc())
	switch p {
	case core.Week:
		start := time.Date(ref.Year(), ref.Month(), ref.Day()-6, 0, 0, 0, 0, b.loc())
		labels := make([]string, 7)
		for i := range labels {
			labels[i] = strconv.Itoa(start.AddDate(0, 0, i).Day())
		}
		return Window{Start: start, End: start.AddDate(0, 0, 7)}, labels
	case core.Year:
		start := time.Date(ref.Year(), time.January, 1, 0, 0, 0, 0, b.loc())
		return Window{Start: start, End: start.AddDate(1, 0, 0)}, append([]string(nil), monthLabels[:]...)
	default:
		start := b.StartOfMonth(ref)
		return Window{Start: start, End: start.AddDate(0, 1, 0)}, append([]string(nil), weekOfMonthLabels[:]...)
	}
}

// Classify returns the bucket label ts falls into for period p. Callers must
// first check the timestamp against the window from BucketsFor.
func (b Bucketer) Classify(p core.Period, ts time.Time) string {
	ts = ts.In(b.loc())
	switch p {
	case core.Week:
		return strconv.Itoa(ts.Day())
	case core.Year:
		return monthLabels[ts.Month()-1]
	default:
		return weekOfMonthLabels[weekOfMonth(ts.Day())]
	}
}

// weekOfMonth maps a day of month to 0..3. Days 22 to the end share the last
// bucket.
func weekOfMonth(day int) int {
	i := (day - 1) / 7
	if i > 3 {
		i = 3
	}
	return i
}
