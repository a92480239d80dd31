// Package categories merges the built-in category set with a user's custom
// categories and resolves category ids to display metadata.
//
// The registry never stores the custom list: callers pass it in and persist
// the returned list themselves.
package categories

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"time"

	"gastos/internal/core"
)

// FallbackID is the built-in category unknown ids resolve to.
const FallbackID = "others"

// DefaultIcon is used when a custom category is created without an icon.
const DefaultIcon = "✈️"

// builtins in declared order. The fallback must stay last.
var builtins = []core.Category{
	{ID: "food", Name: "Alimentación", Icon: "🍔", Color: "#FF6B6B"},
	{ID: "transport", Name: "Transporte", Icon: "🚗", Color: "#4ECDC4"},
	{ID: "entertainment", Name: "Entretenimiento", Icon: "🎮", Color: "#FFE66D"},
	{ID: "shopping", Name: "Compras", Icon: "🛍️", Color: "#95E1D3"},
	{ID: "health", Name: "Salud", Icon: "🏥", Color: "#F38181"},
	{ID: "bills", Name: "Facturas", Icon: "📄", Color: "#AA96DA"},
	{ID: "education", Name: "Educación", Icon: "📚", Color: "#FCBAD3"},
	{ID: FallbackID, Name: "Otros", Icon: "💰", Color: "#A8D8EA"},
}

// AvailableIcons are the glyphs offered when creating a custom category.
var AvailableIcons = []string{
	"🍔", "🚗", "🎮", "🛍️", "🏥", "📄", "📚", "💰",
	"✈️", "🏠", "💼", "🎬", "🎵", "⚽", "📱", "💻",
	"🎨", "🍕", "☕", "🎓", "🏋️", "🎯", "📷", "🎁",
}

// Builtins returns a copy of the built-in categories in declared order.
func Builtins() []core.Category {
	return append([]core.Category(nil), builtins...)
}

// Fallback returns the category unknown ids resolve to.
func Fallback() core.Category {
	return builtins[len(builtins)-1]
}

// Resolve looks id up in custom first, then in the built-ins, and falls back
// to the "others" category. It never fails.
func Resolve(id string, custom []core.Category) core.Category {
	for _, c := range custom {
		if c.ID == id {
			return c
		}
	}
	for _, c := range builtins {
		if c.ID == id {
			return c
		}
	}
	return Fallback()
}

// Merged returns the built-ins followed by custom in creation order.
func Merged(custom []core.Category) []core.Category {
	out := make([]core.Category, 0, len(builtins)+len(custom))
	out = append(out, builtins...)
	return append(out, custom...)
}

// RemoveCustom returns custom without the category id. Absent ids are a no-op.
func RemoveCustom(id string, custom []core.Category) []core.Category {
	out := make([]core.Category, 0, len(custom))
	for _, c := range custom {
		if c.ID != id {
			out = append(out, c)
		}
	}
	return out
}

// Registry creates custom categories. The zero value is not usable; use New.
type Registry struct {
	mu    sync.Mutex
	now   func() time.Time
	color func() uint32
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the clock used to derive custom ids.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithColorSource overrides the random source used for custom colours.
func WithColorSource(color func() uint32) Option {
	return func(r *Registry) { r.color = color }
}

// New returns a registry using the wall clock and a pseudo-random colour.
func New(opts ...Option) *Registry {
	r := &Registry{
		now:   time.Now,
		color: func() uint32 { return rand.Uint32N(0xFFFFFF) },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve is a convenience wrapper around the package level Resolve.
func (r *Registry) Resolve(id string, custom []core.Category) core.Category {
	return Resolve(id, custom)
}

// Merged is a convenience wrapper around the package level Merged.
func (r *Registry) Merged(custom []core.Category) []core.Category {
	return Merged(custom)
}

// RemoveCustom is a convenience wrapper around the package level RemoveCustom.
func (r *Registry) RemoveCustom(id string, custom []core.Category) []core.Category {
	return RemoveCustom(id, custom)
}

// AddCustom creates a category named name and returns it with the appended
// list. The id is custom_<unix millis>, bumped past any id already in the list
// so two categories created within the same millisecond stay distinct.
func (r *Registry) AddCustom(name, icon string, custom []core.Category) (core.Category, []core.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return core.Category{}, custom, core.ErrEmptyCategoryName
	}
	if strings.TrimSpace(icon) == "" {
		icon = DefaultIcon
	}

	r.mu.Lock()
	stamp := r.now().UnixMilli()
	color := r.color() & 0xFFFFFF
	r.mu.Unlock()

	for _, c := range custom {
		if n, ok := customStamp(c.ID); ok && n >= stamp {
			stamp = n + 1
		}
	}

	cat := core.Category{
		ID:    core.CustomCategoryPrefix + strconv.FormatInt(stamp, 10),
		Name:  name,
		Icon:  icon,
		Color: fmt.Sprintf("#%06X", color),
	}
	out := make([]core.Category, 0, len(custom)+1)
	out = append(out, custom...)
	return cat, append(out, cat), nil
}

func customStamp(id string) (int64, bool) {
	digits, ok := strings.CutPrefix(id, core.CustomCategoryPrefix)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	return n, err == nil
}
