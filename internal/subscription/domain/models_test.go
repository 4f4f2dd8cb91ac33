package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAnnualizeCents(t *testing.T) {
	cases := []struct {
		name   string
		amount int64
		cycle  BillingCycle
		want   int64
	}{
		{"monthly", 1_248_000, BillingCycleMonthly, 14_976_000},
		{"quarterly", 10_000, BillingCycleQuarterly, 40_000},
		{"yearly", 99_900, BillingCycleYearly, 99_900},
		{"unknown cycle treated as yearly", 500, BillingCycle("biennial"), 500},
		{"zero", 0, BillingCycleMonthly, 0},
		{"negative", -10, BillingCycleMonthly, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, AnnualizeCents(tc.amount, tc.cycle))
		})
	}
}

func TestDaysUntil(t *testing.T) {
	now := time.Date(2026, 4, 10, 22, 30, 0, 0, time.UTC)
	tomorrowMorning := time.Date(2026, 4, 11, 1, 0, 0, 0, time.UTC)
	overdue := time.Date(2026, 4, 7, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, 1, DaysUntil(&tomorrowMorning, now))
	assert.Equal(t, 0, DaysUntil(&now, now))
	assert.Equal(t, -3, DaysUntil(&overdue, now))
	assert.Equal(t, NoRenewalDays, DaysUntil(nil, now))
}
