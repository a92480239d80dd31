// Package store declares the persistence ports the core depends on.
//
// The layout mirrors a per-user document store:
//
//	users/{uid}                       profile (display name, email, budget)
//	users/{uid}/expenses/{id}         expense records
//	users/{uid}/settings/categories   custom category list
//	users/{uid}/settings/preferences  notification flag, currency
package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"gastos/internal/core"
)

type (
	// Query filters a ledger read. Results are always ordered by date
	// descending, ties by insertion order.
	Query struct {
		Since time.Time // inclusive lower bound, zero means unbounded
		Limit int       // zero means unlimited
	}

	// ProfilePatch is merged into the profile document. Nil fields are left
	// untouched.
	ProfilePatch struct {
		DisplayName *string
		Email       *string
		Budget      *decimal.Decimal
	}

	// PreferencesPatch is merged into the preferences document.
	PreferencesPatch struct {
		NotificationsEnabled *bool
		Currency             *string
	}
)

// Ports for outbound adapters.
type (
	ExpenseStore interface {
		// AddExpense stores e and returns the id assigned to it.
		AddExpense(ctx context.Context, uid string, e core.Expense) (string, error)
		// GetExpense returns core.ErrNotFound for unknown ids.
		GetExpense(ctx context.Context, uid, id string) (core.Expense, error)
		// UpdateExpense overwrites the record with e.ID. Unknown ids return
		// core.ErrNotFound.
		UpdateExpense(ctx context.Context, uid string, e core.Expense) error
		// DeleteExpense returns core.ErrNotFound when nothing was deleted.
		DeleteExpense(ctx context.Context, uid, id string) error
		QueryExpenses(ctx context.Context, uid string, q Query) ([]core.Expense, error)
	}

	ProfileStore interface {
		// GetProfile returns core.ErrNotFound when the user has no profile yet.
		GetProfile(ctx context.Context, uid string) (core.Profile, error)
		MergeProfile(ctx context.Context, uid string, p ProfilePatch) error
	}

	SettingsStore interface {
		// GetCategories returns an empty list when nothing was saved.
		GetCategories(ctx context.Context, uid string) ([]core.Category, error)
		PutCategories(ctx context.Context, uid string, custom []core.Category) error
		// GetPreferences returns core.DefaultPreferences when nothing was saved.
		GetPreferences(ctx context.Context, uid string) (core.Preferences, error)
		MergePreferences(ctx context.Context, uid string, p PreferencesPatch) error
	}

	// ChangeFeed carries "the ledger of uid changed" notifications.
	ChangeFeed interface {
		Publish(ctx context.Context, uid string) error
		// Watch returns a channel that receives at least one value after
		// every Publish for uid. Notifications may be coalesced. The channel
		// is closed once ctx is done.
		Watch(ctx context.Context, uid string) (<-chan struct{}, error)
	}

	// UserLister enumerates the users that own at least one expense.
	UserLister interface {
		ListUserIDs(ctx context.Context) ([]string, error)
	}

	// Backend is the full persistence collaborator.
	Backend interface {
		ExpenseStore
		ProfileStore
		SettingsStore
	}
)

// Apply merges the patch into p.
func (pp ProfilePatch) Apply(p core.Profile) core.Profile {
	if pp.DisplayName != nil {
		p.DisplayName = *pp.DisplayName
	}
	if pp.Email != nil {
		p.Email = *pp.Email
	}
	if pp.Budget != nil {
		p.Budget = *pp.Budget
	}
	return p
}

// Apply merges the patch into p.
func (pp PreferencesPatch) Apply(p core.Preferences) core.Preferences {
	if pp.NotificationsEnabled != nil {
		p.NotificationsEnabled = *pp.NotificationsEnabled
	}
	if pp.Currency != nil {
		p.Currency = *pp.Currency
	}
	return p
}
