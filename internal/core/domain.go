package core

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const (
	Week  Period = "week"
	Month Period = "month"
	Year  Period = "year"
)

// MaxNoteLength is the longest note, in characters, an expense may carry.
const MaxNoteLength = 100

// CustomCategoryPrefix prefixes the id of every user-defined category.
const CustomCategoryPrefix = "custom_"

type (
	// Period selects the reporting window of the statistics views.
	Period string

	// Expense is one discrete monetary transaction of a user.
	Expense struct {
		ID         string          `json:"id"`
		Amount     decimal.Decimal `json:"amount"`
		CategoryID string          `json:"categoryId"`
		Note       string          `json:"note,omitempty"`
		Date       time.Time       `json:"date"`      // chosen by the user, may be backdated
		CreatedAt  time.Time       `json:"createdAt"` // set once on creation
	}

	// ExpensePatch replaces the set fields of an existing expense.
	// ID and CreatedAt are never replaceable.
	ExpensePatch struct {
		Amount     *decimal.Decimal
		CategoryID *string
		Note       *string
		Date       *time.Time
	}

	// Category is the display metadata an expense is tagged with.
	Category struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Icon  string `json:"icon"`
		Color string `json:"color"`
	}

	// Profile is the per-user document holding the budget ceiling.
	Profile struct {
		DisplayName string          `json:"displayName"`
		Email       string          `json:"email"`
		Budget      decimal.Decimal `json:"budget"` // zero means unset
	}

	// Preferences are per-user application settings.
	Preferences struct {
		NotificationsEnabled bool   `json:"notificationsEnabled"`
		Currency             string `json:"currency"`
	}
)

// Currencies the user can pick from.
var SupportedCurrencies = []string{"COP", "USD", "EUR", "MXN"}

// DefaultPreferences are used until the user saves their own.
func DefaultPreferences() Preferences {
	return Preferences{NotificationsEnabled: true, Currency: "COP"}
}

// ParsePeriod parses a period selector. The empty string selects Month.
func ParsePeriod(s string) (Period, error) {
	switch Period(strings.ToLower(strings.TrimSpace(s))) {
	case Week:
		return Week, nil
	case Month, "":
		return Month, nil
	case Year:
		return Year, nil
	default:
		return "", ErrInvalidPeriod
	}
}

// Validate checks the expense invariants against the current instant.
func (e Expense) Validate(now time.Time) error {
	if !e.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if utf8.RuneCountInString(e.Note) > MaxNoteLength {
		return ErrNoteTooLong
	}
	if e.Date.IsZero() {
		return ErrMissingDate
	}
	if e.Date.After(now) {
		return ErrFutureDate
	}
	return nil
}

// Apply returns e with every set field of the patch replaced.
func (p ExpensePatch) Apply(e Expense) Expense {
	if p.Amount != nil {
		e.Amount = *p.Amount
	}
	if p.CategoryID != nil {
		e.CategoryID = *p.CategoryID
	}
	if p.Note != nil {
		e.Note = *p.Note
	}
	if p.Date != nil {
		e.Date = *p.Date
	}
	return e
}

// IsEmpty reports whether the patch changes nothing.
func (p ExpensePatch) IsEmpty() bool {
	return p.Amount == nil && p.CategoryID == nil && p.Note == nil && p.Date == nil
}

// IsCustom reports whether the category was defined by the user.
func (c Category) IsCustom() bool {
	return strings.HasPrefix(c.ID, CustomCategoryPrefix)
}

// Validate checks the preferences against the supported currencies.
func (p Preferences) Validate() error {
	for _, c := range SupportedCurrencies {
		if p.Currency == c {
			return nil
		}
	}
	return ErrUnsupportedCurrency
}

// NameOrDefault returns the display name, falling back to the local part of
// the email and finally to a generic label.
func (p Profile) NameOrDefault() string {
	if name := strings.TrimSpace(p.DisplayName); name != "" {
		return name
	}
	if local, _, ok := strings.Cut(p.Email, "@"); ok && local != "" {
		return local
	}
	return "Usuario"
}
