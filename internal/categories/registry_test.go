package categories

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gastos/internal/core"
)

func fixedRegistry(t time.Time) *Registry {
	return New(
		WithClock(func() time.Time { return t }),
		WithColorSource(func() uint32 { return 0x12ab34 }),
	)
}

func TestAddCustom_Mascotas(t *testing.T) {
	r := New()

	cat, list, err := r.AddCustom("Mascotas", "🐶", nil)
	require.NoError(t, err)

	require.Len(t, list, 1)
	assert.Regexp(t, regexp.MustCompile(`^custom_\d+$`), cat.ID)
	assert.Equal(t, "Mascotas", cat.Name)
	assert.Equal(t, "🐶", cat.Icon)
	assert.Regexp(t, regexp.MustCompile(`^#[0-9A-F]{6}$`), cat.Color)
	assert.Equal(t, cat, list[0])
	assert.True(t, cat.IsCustom())
}

func TestAddCustom_Validation(t *testing.T) {
	r := New()

	for _, name := range []string{"", "   ", "\t\n"} {
		_, list, err := r.AddCustom(name, "🐶", nil)
		assert.ErrorIs(t, err, core.ErrEmptyCategoryName)
		assert.True(t, errors.Is(err, core.ErrValidation))
		assert.Empty(t, list)
	}
}

func TestAddCustom_TrimsNameAndDefaultsIcon(t *testing.T) {
	r := fixedRegistry(time.UnixMilli(1700000000000))

	cat, _, err := r.AddCustom("  Viajes ", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "Viajes", cat.Name)
	assert.Equal(t, DefaultIcon, cat.Icon)
	assert.Equal(t, "custom_1700000000000", cat.ID)
	assert.Equal(t, "#12AB34", cat.Color)
}

func TestAddCustom_IDsIncreaseWithFrozenClock(t *testing.T) {
	r := fixedRegistry(time.UnixMilli(1700000000000))

	var list []core.Category
	var err error
	for _, name := range []string{"a", "b", "c"} {
		_, list, err = r.AddCustom(name, "", list)
		require.NoError(t, err)
	}

	require.Len(t, list, 3)
	assert.Equal(t, "custom_1700000000000", list[0].ID)
	assert.Equal(t, "custom_1700000000001", list[1].ID)
	assert.Equal(t, "custom_1700000000002", list[2].ID)
}

func TestAddCustom_DoesNotAliasInput(t *testing.T) {
	r := New()
	base := make([]core.Category, 0, 4)
	_, a, err := r.AddCustom("a", "", base)
	require.NoError(t, err)
	_, b, err := r.AddCustom("b", "", base)
	require.NoError(t, err)

	assert.Equal(t, "a", a[0].Name)
	assert.Equal(t, "b", b[0].Name)
}

func TestResolve(t *testing.T) {
	custom := []core.Category{
		{ID: "custom_1", Name: "Mascotas", Icon: "🐶", Color: "#000001"},
		// a custom entry shadowing a built-in id wins
		{ID: "food", Name: "Comida", Icon: "🍕", Color: "#000002"},
	}

	tests := []struct {
		id   string
		want string
	}{
		{"custom_1", "Mascotas"},
		{"food", "Comida"},
		{"transport", "Transporte"},
		{"others", "Otros"},
		{"custom_999", "Otros"},
		{"", "Otros"},
		{"💥garbage\x00", "Otros"},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(tt.id, custom).Name)
		})
	}
}

func TestResolve_AfterRemoval(t *testing.T) {
	r := New()
	cat, list, err := r.AddCustom("Mascotas", "🐶", nil)
	require.NoError(t, err)

	list = r.RemoveCustom(cat.ID, list)
	assert.Equal(t, Fallback(), r.Resolve(cat.ID, list))
}

func TestRemoveCustom(t *testing.T) {
	list := []core.Category{
		{ID: "custom_1", Name: "a"},
		{ID: "custom_2", Name: "b"},
		{ID: "custom_3", Name: "c"},
	}

	t.Run("absent id is a no-op", func(t *testing.T) {
		got := RemoveCustom("custom_9", list)
		assert.Equal(t, list, got)
	})

	t.Run("present id removed", func(t *testing.T) {
		got := RemoveCustom("custom_2", list)
		require.Len(t, got, len(list)-1)
		for _, c := range got {
			assert.NotEqual(t, "custom_2", c.ID)
		}
		assert.Equal(t, "custom_2", list[1].ID, "input must not be modified")
	})
}

func TestMerged(t *testing.T) {
	custom := []core.Category{{ID: "custom_1", Name: "Mascotas"}}
	got := Merged(custom)

	require.Len(t, got, 9)
	wantIDs := []string{"food", "transport", "entertainment", "shopping", "health", "bills", "education", "others", "custom_1"}
	for i, id := range wantIDs {
		assert.Equal(t, id, got[i].ID)
	}
}

func TestBuiltinsAndIcons(t *testing.T) {
	b := Builtins()
	require.Len(t, b, 8)
	assert.Equal(t, FallbackID, Fallback().ID)
	assert.Equal(t, "#A8D8EA", Fallback().Color)

	b[0].Name = "changed"
	assert.Equal(t, "Alimentación", Builtins()[0].Name)

	assert.Len(t, AvailableIcons, 24)
	assert.Contains(t, AvailableIcons, DefaultIcon)
}
