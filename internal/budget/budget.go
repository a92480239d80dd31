// Package budget derives utilization from a user's spending ceiling and
// persists that ceiling in the profile document.
package budget

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"gastos/internal/core"
	"gastos/internal/store"
)

var hundred = decimal.NewFromInt(100)

// Utilization returns spent as a percentage of budget, capped at 100. An unset
// budget (zero or negative) always yields 0.
func Utilization(spent, budget decimal.Decimal) decimal.Decimal {
	if !budget.IsPositive() {
		return decimal.Zero
	}
	pct := spent.Div(budget).Mul(hundred)
	if pct.GreaterThan(hundred) {
		return hundred
	}
	return pct
}

// Remaining returns budget minus spent. Negative values signal overspend.
func Remaining(spent, budget decimal.Decimal) decimal.Decimal {
	return budget.Sub(spent)
}

// Tracker reads and writes the budget ceiling.
type Tracker struct {
	profiles store.ProfileStore
}

func NewTracker(profiles store.ProfileStore) *Tracker {
	return &Tracker{profiles: profiles}
}

// Set validates and stores the ceiling, merging it into the profile.
func (t *Tracker) Set(ctx context.Context, uid string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return core.ErrInvalidBudget
	}
	if err := t.profiles.MergeProfile(ctx, uid, store.ProfilePatch{Budget: &amount}); err != nil {
		return core.Persistence("set budget", err)
	}
	return nil
}

// Load returns the stored ceiling, or zero when the user never set one.
func (t *Tracker) Load(ctx context.Context, uid string) (decimal.Decimal, error) {
	p, err := t.profiles.GetProfile(ctx, uid)
	if errors.Is(err, core.ErrNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, core.Persistence("load budget", err)
	}
	return p.Budget, nil
}
