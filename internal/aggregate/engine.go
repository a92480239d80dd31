// Package aggregate derives every display view from a ledger snapshot.
//
// Compute is a pure function: the same inputs always yield the same view, and
// the whole view is rebuilt on every call. Personal ledgers are small enough
// that a full pass is cheaper than tracking what changed.
package aggregate

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"gastos/internal/budget"
	"gastos/internal/categories"
	"gastos/internal/core"
	"gastos/internal/period"
)

// RecentLimit is the length of the recent expenses preview.
const RecentLimit = 5

var hundred = decimal.NewFromInt(100)

type (
	// Inputs are everything a view depends on.
	Inputs struct {
		Expenses []core.Expense // snapshot order: date desc
		Custom   []core.Category
		Period   core.Period
		Budget   decimal.Decimal
		Now      time.Time
		Location *time.Location
	}

	// CategoryTotal is one row of the category breakdown.
	CategoryTotal struct {
		CategoryID string          `json:"categoryId"`
		Name       string          `json:"name"`
		Icon       string          `json:"icon"`
		Color      string          `json:"color"`
		Amount     decimal.Decimal `json:"amount"`
		Percent    decimal.Decimal `json:"percent"`
	}

	// Bucket is one point of the period time series.
	Bucket struct {
		Label  string          `json:"label"`
		Amount decimal.Decimal `json:"amount"`
	}

	// View is the full derived state shown to the user.
	View struct {
		TodayTotal  decimal.Decimal `json:"todayTotal"`
		MonthTotal  decimal.Decimal `json:"monthTotal"`
		Budget      decimal.Decimal `json:"budget"`
		Utilization decimal.Decimal `json:"utilization"`
		Remaining   decimal.Decimal `json:"remaining"`
		Recent      []core.Expense  `json:"recent"`

		Period      core.Period     `json:"period"`
		PeriodStart time.Time       `json:"periodStart"`
		PeriodEnd   time.Time       `json:"periodEnd"`
		PeriodTotal decimal.Decimal `json:"periodTotal"`
		Breakdown   []CategoryTotal `json:"breakdown"`
		Series      []Bucket        `json:"series"`

		History []DayGroup `json:"history"`
	}
)

// Window returns the reporting window of the view.
func (v View) Window() period.Window {
	return period.Window{Start: v.PeriodStart, End: v.PeriodEnd}
}

// EmptyView is the view shown when nobody is signed in.
func EmptyView(p core.Period, now time.Time, loc *time.Location) View {
	return Compute(Inputs{Period: p, Now: now, Location: loc})
}

// Compute builds the view for in.
func Compute(in Inputs) View {
	if in.Period == "" {
		in.Period = core.Month
	}
	loc := in.Location
	if loc == nil {
		loc = time.UTC
	}
	b := period.New(loc)
	now := in.Now.In(loc)

	dayStart := b.StartOfDay(now)
	today := period.Window{Start: dayStart, End: dayStart.AddDate(0, 0, 1)}
	monthStart := b.StartOfMonth(now)
	month := period.Window{Start: monthStart, End: monthStart.AddDate(0, 1, 0)}
	win, labels := b.BucketsFor(in.Period, now)

	v := View{
		TodayTotal:  decimal.Zero,
		MonthTotal:  decimal.Zero,
		Budget:      in.Budget,
		Recent:      make([]core.Expense, 0, RecentLimit),
		Period:      in.Period,
		PeriodStart: win.Start,
		PeriodEnd:   win.End,
		PeriodTotal: decimal.Zero,
		Breakdown:   []CategoryTotal{},
		Series:      make([]Bucket, len(labels)),
	}

	bucketIdx := make(map[string]int, len(labels))
	for i, l := range labels {
		bucketIdx[l] = i
		v.Series[i] = Bucket{Label: l, Amount: decimal.Zero}
	}

	byCategory := map[string]int{}
	for _, e := range in.Expenses {
		if month.Contains(e.Date) {
			v.MonthTotal = v.MonthTotal.Add(e.Amount)
			if len(v.Recent) < RecentLimit {
				v.Recent = append(v.Recent, e)
			}
		}
		if today.Contains(e.Date) {
			v.TodayTotal = v.TodayTotal.Add(e.Amount)
		}
		if !win.Contains(e.Date) {
			continue
		}

		v.PeriodTotal = v.PeriodTotal.Add(e.Amount)
		i := bucketIdx[b.Classify(in.Period, e.Date)]
		v.Series[i].Amount = v.Series[i].Amount.Add(e.Amount)

		cat := categories.Resolve(e.CategoryID, in.Custom)
		j, ok := byCategory[cat.ID]
		if !ok {
			j = len(v.Breakdown)
			byCategory[cat.ID] = j
			v.Breakdown = append(v.Breakdown, CategoryTotal{
				CategoryID: cat.ID,
				Name:       cat.Name,
				Icon:       cat.Icon,
				Color:      cat.Color,
				Amount:     decimal.Zero,
			})
		}
		v.Breakdown[j].Amount = v.Breakdown[j].Amount.Add(e.Amount)
	}

	v.Utilization = budget.Utilization(v.MonthTotal, in.Budget)
	v.Remaining = budget.Remaining(v.MonthTotal, in.Budget)

	if !v.PeriodTotal.IsPositive() {
		v.Breakdown = []CategoryTotal{}
	} else {
		// first encounter order breaks ties
		sort.SliceStable(v.Breakdown, func(i, j int) bool {
			return v.Breakdown[i].Amount.GreaterThan(v.Breakdown[j].Amount)
		})
		for i := range v.Breakdown {
			v.Breakdown[i].Percent = Percent(v.Breakdown[i].Amount, v.PeriodTotal)
		}
	}

	v.History = GroupByDay(in.Expenses, loc)
	return v
}

// Percent returns part as a percentage of total rounded to one decimal.
// Callers must ensure total is positive.
func Percent(part, total decimal.Decimal) decimal.Decimal {
	return part.Div(total).Mul(hundred).Round(1)
}
