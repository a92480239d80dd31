package budget

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gastos/internal/core"
	"gastos/internal/store/memory"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestUtilization(t *testing.T) {
	tests := []struct {
		name   string
		spent  decimal.Decimal
		budget decimal.Decimal
		want   decimal.Decimal
	}{
		{"unset budget", d(5000), d(0), d(0)},
		{"negative budget", d(5000), d(-10), d(0)},
		{"no spend", d(0), d(1000), d(0)},
		{"half", d(500), d(1000), d(50)},
		{"exactly full", d(1000), d(1000), d(100)},
		{"double spend capped", d(2000), d(1000), d(100)},
		{"overspend scenario", d(150000), d(100000), d(100)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Utilization(tt.spent, tt.budget)
			assert.True(t, tt.want.Equal(got), "want %s got %s", tt.want, got)
		})
	}
}

func TestRemaining(t *testing.T) {
	assert.True(t, d(-50000).Equal(Remaining(d(150000), d(100000))))
	assert.True(t, d(-700).Equal(Remaining(d(700), d(0))))
	assert.True(t, d(300).Equal(Remaining(d(700), d(1000))))
}

func TestTracker(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	tr := NewTracker(s)

	got, err := tr.Load(ctx, "u")
	require.NoError(t, err)
	assert.True(t, got.IsZero(), "missing profile means unset budget")

	for _, bad := range []decimal.Decimal{d(0), d(-1)} {
		err := tr.Set(ctx, "u", bad)
		assert.ErrorIs(t, err, core.ErrInvalidBudget)
		assert.ErrorIs(t, err, core.ErrValidation)
	}

	require.NoError(t, tr.Set(ctx, "u", d(100000)))
	got, err = tr.Load(ctx, "u")
	require.NoError(t, err)
	assert.True(t, d(100000).Equal(got))

	s.Fail(errors.New("down"))
	assert.ErrorIs(t, tr.Set(ctx, "u", d(5)), core.ErrPersistence)
	_, err = tr.Load(ctx, "u")
	assert.ErrorIs(t, err, core.ErrPersistence)
}
