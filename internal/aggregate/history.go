package aggregate

import (
	"time"

	"github.com/shopspring/decimal"

	"gastos/internal/core"
)

// DayGroup is the history list section of a single calendar day.
type DayGroup struct {
	Day      time.Time       `json:"day"`
	Total    decimal.Decimal `json:"total"`
	Expenses []core.Expense  `json:"expenses"`
}

// GroupByDay splits a date-descending snapshot into one group per local
// calendar day, keeping snapshot order inside and across groups. Expenses
// without a date are skipped.
func GroupByDay(expenses []core.Expense, loc *time.Location) []DayGroup {
	if loc == nil {
		loc = time.UTC
	}
	groups := []DayGroup{}
	index := map[time.Time]int{}
	for _, e := range expenses {
		if e.Date.IsZero() {
			continue
		}
		t := e.Date.In(loc)
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
		i, ok := index[day]
		if !ok {
			i = len(groups)
			index[day] = i
			groups = append(groups, DayGroup{Day: day, Total: decimal.Zero})
		}
		groups[i].Total = groups[i].Total.Add(e.Amount)
		groups[i].Expenses = append(groups[i].Expenses, e)
	}
	return groups
}
