package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAggregate(t *testing.T) {
	asOf := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	daysAgo := func(d int) *time.Time {
		ts := asOf.Add(-time.Duration(d) * 24 * time.Hour)
		return &ts
	}

	tests := []struct {
		name     string
		rows     []ToolAccess
		active   int
		lastDays int
	}{
		{
			name:     "no rows",
			rows:     nil,
			active:   0,
			lastDays: NoActivityDays,
		},
		{
			name: "never active",
			rows: []ToolAccess{
				{Status: AccessStatusActive},
				{Status: AccessStatusInactive},
			},
			active:   0,
			lastDays: NoActivityDays,
		},
		{
			name: "fresh and stale rows",
			rows: []ToolAccess{
				{Status: AccessStatusActive, LastActiveAt: daysAgo(2)},
				{Status: AccessStatusActive, LastActiveAt: daysAgo(30)},
				{Status: AccessStatusActive, LastActiveAt: daysAgo(31)},
			},
			active:   2,
			lastDays: 2,
		},
		{
			name: "revoked access is not active but still dates activity",
			rows: []ToolAccess{
				{Status: AccessStatusRevoked, LastActiveAt: daysAgo(1)},
				{Status: AccessStatusActive, LastActiveAt: daysAgo(90)},
			},
			active:   0,
			lastDays: 1,
		},
		{
			name: "future timestamp clamps to zero days",
			rows: []ToolAccess{
				{Status: AccessStatusActive, LastActiveAt: daysAgo(-1)},
			},
			active:   1,
			lastDays: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Aggregate(tt.rows, asOf, DefaultFreshnessWindow)
			assert.Equal(t, len(tt.rows), m.TotalUsers)
			assert.Equal(t, tt.active, m.ActiveUsers)
			assert.Equal(t, tt.lastDays, m.LastActivityDays)
			assert.Equal(t, asOf, m.AsOf)
		})
	}
}

func TestAggregateDefaultsWindow(t *testing.T) {
	asOf := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	last := asOf.Add(-10 * 24 * time.Hour)
	m := Aggregate([]ToolAccess{{Status: AccessStatusActive, LastActiveAt: &last}}, asOf, 0)
	assert.Equal(t, 1, m.ActiveUsers)
	assert.True(t, m.HasActivity())
}
