package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name                   string
		users, maxUsers        int
		dependents, maxDepends int
		want                   float64
	}{
		{"all zero org", 0, 0, 0, 0, 0},
		{"single tool without edges", 10, 10, 0, 0, 0.4},
		{"top on both axes", 50, 50, 8, 8, 1},
		{"dependents only", 0, 100, 4, 4, 0.6},
		{"half and half", 25, 50, 2, 4, 0.5},
		{"count above max is clamped", 200, 100, 10, 5, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(tt.users, tt.maxUsers, tt.dependents, tt.maxDepends)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.LessOrEqual(t, got, 1.0)
		})
	}
}

func TestScoreStaysInRange(t *testing.T) {
	for users := 0; users <= 12; users += 3 {
		for maxUsers := 0; maxUsers <= 12; maxUsers += 4 {
			for deps := 0; deps <= 6; deps += 2 {
				for maxDeps := 0; maxDeps <= 6; maxDeps += 3 {
					s := Score(users, maxUsers, deps, maxDeps)
					assert.GreaterOrEqual(t, s, 0.0)
					assert.LessOrEqual(t, s, 1.0)
				}
			}
		}
	}
}

func TestIsKeystone(t *testing.T) {
	assert.False(t, IsKeystone(CriticalThreshold))
	assert.True(t, IsKeystone(CriticalThreshold+0.01))
	assert.False(t, IsKeystone(0))
}
