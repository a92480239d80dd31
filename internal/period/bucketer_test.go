package period

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gastos/internal/core"
)

func date(y int, m time.Month, d, h int) time.Time {
	return time.Date(y, m, d, h, 0, 0, 0, time.UTC)
}

func TestBucketsFor_Week(t *testing.T) {
	b := New(time.UTC)
	w, labels := b.BucketsFor(core.Week, date(2024, time.January, 31, 15))

	assert.Equal(t, date(2024, time.January, 25, 0), w.Start)
	assert.Equal(t, date(2024, time.February, 1, 0), w.End)
	assert.Equal(t, []string{"25", "26", "27", "28", "29", "30", "31"}, labels)
}

func TestBucketsFor_WeekAcrossMonths(t *testing.T) {
	b := New(time.UTC)
	_, labels := b.BucketsFor(core.Week, date(2024, time.March, 2, 9))
	assert.Equal(t, []string{"25", "26", "27", "28", "29", "1", "2"}, labels)
}

func TestBucketsFor_Month(t *testing.T) {
	b := New(time.UTC)
	w, labels := b.BucketsFor(core.Month, date(2024, time.January, 31, 0))

	assert.Equal(t, date(2024, time.January, 1, 0), w.Start)
	assert.Equal(t, date(2024, time.February, 1, 0), w.End)
	assert.Equal(t, []string{"Sem 1", "Sem 2", "Sem 3", "Sem 4"}, labels)
}

func TestBucketsFor_Year(t *testing.T) {
	b := New(time.UTC)
	w, labels := b.BucketsFor(core.Year, date(2024, time.June, 15, 0))

	assert.Equal(t, date(2024, time.January, 1, 0), w.Start)
	assert.Equal(t, date(2025, time.January, 1, 0), w.End)
	require.Len(t, labels, 12)
	assert.Equal(t, "Ene", labels[0])
	assert.Equal(t, "Dic", labels[11])
}

func TestClassify_MonthBuckets(t *testing.T) {
	b := New(time.UTC)
	tests := []struct {
		day  int
		want string
	}{
		{1, "Sem 1"}, {7, "Sem 1"},
		{8, "Sem 2"}, {14, "Sem 2"},
		{15, "Sem 3"}, {21, "Sem 3"},
		{22, "Sem 4"}, {31, "Sem 4"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, b.Classify(core.Month, date(2024, time.January, tt.day, 23)), "day %d", tt.day)
	}
}

func TestClassify_AlwaysReturnsDeclaredLabel(t *testing.T) {
	b := New(time.UTC)
	ref := date(2024, time.December, 31, 12)
	for _, p := range []core.Period{core.Week, core.Month, core.Year} {
		w, labels := b.BucketsFor(p, ref)
		for ts := w.Start; ts.Before(w.End); ts = ts.Add(5 * time.Hour) {
			assert.Contains(t, labels, b.Classify(p, ts), "period %s ts %s", p, ts)
		}
	}
}

func TestWindow_Contains(t *testing.T) {
	w := Window{Start: date(2024, time.January, 1, 0), End: date(2024, time.February, 1, 0)}

	assert.True(t, w.Contains(w.Start))
	assert.True(t, w.Contains(date(2024, time.January, 31, 23)))
	assert.False(t, w.Contains(w.End))
	assert.False(t, w.Contains(date(2023, time.December, 31, 23)))
	assert.False(t, w.Contains(time.Time{}))
}

func TestBucketer_Location(t *testing.T) {
	bogota := time.FixedZone("COT", -5*3600)
	b := New(bogota)

	// 2024-02-01 03:00 UTC is still January 31st in Bogotá.
	ts := date(2024, time.February, 1, 3)
	w, _ := b.BucketsFor(core.Month, ts)
	assert.Equal(t, time.January, w.Start.Month())
	assert.True(t, w.Contains(ts))
	assert.Equal(t, "Sem 4", b.Classify(core.Month, ts))
	assert.Equal(t, time.Date(2024, time.January, 31, 0, 0, 0, 0, bogota), b.StartOfDay(ts))
}

func TestBucketer_NilLocationIsUTC(t *testing.T) {
	var b Bucketer
	w, _ := b.BucketsFor(core.Month, date(2024, time.May, 5, 5))
	assert.Equal(t, date(2024, time.May, 1, 0), w.Start)
}
