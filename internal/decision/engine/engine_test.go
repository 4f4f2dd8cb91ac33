package engine

import (
	"testing"
	"time"

	decisiondomain "github.com/smallbiznis/spendwise/internal/decision/domain"
	subscriptiondomain "github.com/smallbiznis/spendwise/internal/subscription/domain"
	usagedomain "github.com/smallbiznis/spendwise/internal/usage/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

func factors(mutate func(f *decisiondomain.DecisionFactors)) decisiondomain.DecisionFactors {
	renewal := now.Add(90 * day)
	f := decisiondomain.DecisionFactors{
		ToolName:         "Figma",
		ActiveUsers:      40,
		PaidSeats:        50,
		LastActivityDays: 2,
		RenewalDays:      90,
		RenewalDate:      &renewal,
		AnnualCostCents:  1_200_000,
		KeystoneScore:    0.1,
		OwnerActive:      true,
	}
	if mutate != nil {
		mutate(&f)
	}
	return f
}

func TestScenarioHealthyUsageKeeps(t *testing.T) {
	eval := Evaluate(factors(func(f *decisiondomain.DecisionFactors) {
		f.PaidSeats = 156
		f.ActiveUsers = 124
		f.KeystoneScore = 0.2
		f.LastActivityDays = 5
		f.RenewalDays = 18
		f.AnnualCostCents = 14_976_000
	}), now)

	assert.Equal(t, decisiondomain.DecisionTypeKeep, eval.Type)
	assert.Equal(t, RuleDefault, eval.Rule)
	assert.Equal(t, 0.7, eval.Confidence)
	assert.Zero(t, eval.SavingsCents)
	assert.Nil(t, eval.DueDate)
}

func TestScenarioModerateUnderutilizationReviews(t *testing.T) {
	f := factors(func(f *decisiondomain.DecisionFactors) {
		f.PaidSeats = 30
		f.ActiveUsers = 12
		f.KeystoneScore = 0.1
		f.OwnerActive = true
	})
	eval := Evaluate(f, now)

	assert.Equal(t, decisiondomain.DecisionTypeReview, eval.Type)
	assert.Equal(t, RuleModerateUnderutilization, eval.Rule)
	assert.InDelta(t, float64(f.AnnualCostCents)*0.3, float64(eval.SavingsCents), 1)
	assert.Equal(t, 0.6, eval.Confidence)
	assert.Equal(t, 0.4, eval.RiskScore)
}

func TestScenarioZeroUsageCancels(t *testing.T) {
	f := factors(func(f *decisiondomain.DecisionFactors) {
		f.ActiveUsers = 0
		f.LastActivityDays = 90
		f.KeystoneScore = 0.1
	})
	eval := Evaluate(f, now)

	assert.Equal(t, decisiondomain.DecisionTypeCancel, eval.Type)
	assert.InDelta(t, 0.23, eval.RiskScore, 1e-9)
	assert.Equal(t, f.AnnualCostCents, eval.SavingsCents)
	assert.Equal(t, decisiondomain.RiskLevelLow, eval.RiskLevel)
	assert.True(t, eval.RequiresApproval)
}

func TestFirstMatchWins(t *testing.T) {
	// Matches zero usage and severe underutilization.
	f := factors(func(f *decisiondomain.DecisionFactors) {
		f.ActiveUsers = 0
		f.PaidSeats = 20
		f.LastActivityDays = 75
	})
	require.True(t, severeUnderutilization.Matches(withUtilization(f)))

	eval := Evaluate(f, now)
	assert.Equal(t, decisiondomain.DecisionTypeCancel, eval.Type)
	assert.Equal(t, RuleZeroUsage, eval.Rule)
}

func TestKeystoneProtectionBeatsEverything(t *testing.T) {
	eval := Evaluate(factors(func(f *decisiondomain.DecisionFactors) {
		f.KeystoneScore = 0.71
		f.ActiveUsers = 0
		f.LastActivityDays = usagedomain.NoActivityDays
		f.OwnerActive = false
	}), now)

	assert.Equal(t, decisiondomain.DecisionTypeKeep, eval.Type)
	assert.Equal(t, RuleKeystoneProtection, eval.Rule)
	assert.Equal(t, 0.95, eval.Confidence)
	assert.Equal(t, decisiondomain.RiskLevelCritical, eval.RiskLevel)
}

func TestKeystoneThresholdIsExclusive(t *testing.T) {
	eval := Evaluate(factors(func(f *decisiondomain.DecisionFactors) {
		f.KeystoneScore = 0.7
	}), now)
	assert.NotEqual(t, RuleKeystoneProtection, eval.Rule)
}

func TestOrphanedOwnerReviews(t *testing.T) {
	eval := Evaluate(factors(func(f *decisiondomain.DecisionFactors) {
		f.OwnerActive = false
		f.OwnerName = "Dana"
	}), now)

	assert.Equal(t, decisiondomain.DecisionTypeReview, eval.Type)
	assert.Equal(t, RuleOrphanedOwner, eval.Rule)
	assert.Equal(t, decisiondomain.PriorityHigh, eval.Priority)
	assert.Zero(t, eval.SavingsCents)
	assert.True(t, eval.RequiresApproval)

	last := eval.Factors[len(eval.Factors)-1]
	assert.Equal(t, "owner_status", last.Name)
	assert.Equal(t, "Owner Dana is no longer active", last.Explanation)
}

func TestSevereUnderutilizationDownsizes(t *testing.T) {
	eval := Evaluate(factors(func(f *decisiondomain.DecisionFactors) {
		f.PaidSeats = 100
		f.ActiveUsers = 10
		f.RenewalDays = 5
		f.AnnualCostCents = 1_000_000
	}), now)

	require.Equal(t, decisiondomain.DecisionTypeDownsize, eval.Type)
	require.NotNil(t, eval.RecommendedSeats)
	assert.Equal(t, 12, *eval.RecommendedSeats)
	assert.Equal(t, int64(880_000), eval.SavingsCents)
	assert.Equal(t, decisiondomain.PriorityUrgent, eval.Priority)
}

func TestRecommendedSeatsWithinBounds(t *testing.T) {
	for paid := 0; paid <= 60; paid++ {
		for active := 0; active <= paid; active++ {
			seats := RecommendedSeats(active, paid)
			assert.LessOrEqual(t, seats, paid, "active=%d paid=%d", active, paid)
			assert.GreaterOrEqual(t, seats, active, "active=%d paid=%d", active, paid)

			eval := Evaluate(factors(func(f *decisiondomain.DecisionFactors) {
				f.ActiveUsers = active
				f.PaidSeats = paid
			}), now)
			if eval.RecommendedSeats != nil {
				assert.LessOrEqual(t, *eval.RecommendedSeats, paid)
				assert.GreaterOrEqual(t, *eval.RecommendedSeats, active)
			}
		}
	}
}

func TestRenewalProximityAcceptsOverdue(t *testing.T) {
	eval := Evaluate(factors(func(f *decisiondomain.DecisionFactors) {
		f.ActiveUsers = 30
		f.PaidSeats = 50
		f.RenewalDays = -4
	}), now)

	assert.Equal(t, RuleRenewalProximity, eval.Rule)
	assert.Equal(t, decisiondomain.PriorityHigh, eval.Priority)
	assert.Equal(t, int64(240_000), eval.SavingsCents)
}

func TestZeroPaidSeatsIsZeroUtilization(t *testing.T) {
	eval := Evaluate(factors(func(f *decisiondomain.DecisionFactors) {
		f.PaidSeats = 0
		f.ActiveUsers = 3
	}), now)

	assert.Equal(t, RuleModerateUnderutilization, eval.Rule)
	assert.Equal(t, 0.0, eval.Factors[0].Value)
}

func TestEveryOutcomeCarriesFactors(t *testing.T) {
	cases := []decisiondomain.DecisionFactors{
		factors(func(f *decisiondomain.DecisionFactors) { f.KeystoneScore = 0.9 }),
		factors(func(f *decisiondomain.DecisionFactors) { f.OwnerActive = false }),
		factors(func(f *decisiondomain.DecisionFactors) { f.ActiveUsers = 0; f.LastActivityDays = 61 }),
		factors(func(f *decisiondomain.DecisionFactors) { f.ActiveUsers = 2; f.PaidSeats = 40 }),
		factors(func(f *decisiondomain.DecisionFactors) { f.ActiveUsers = 20; f.PaidSeats = 50 }),
		factors(func(f *decisiondomain.DecisionFactors) { f.ActiveUsers = 30; f.RenewalDays = 10 }),
		factors(nil),
	}

	seen := map[string]bool{}
	for _, f := range cases {
		eval := Evaluate(f, now)
		seen[eval.Rule] = true
		require.GreaterOrEqual(t, len(eval.Factors), 5, eval.Rule)
		assert.Equal(t, "utilization_rate", eval.Factors[0].Name)
		if eval.Type != decisiondomain.DecisionTypeKeep {
			assert.Greater(t, len(eval.Factors), 5, eval.Rule)
		}
	}
	assert.Len(t, seen, len(DefaultRules()))
}

func TestNoRenewalDateFallsBackToDueWindow(t *testing.T) {
	eval := Evaluate(factors(func(f *decisiondomain.DecisionFactors) {
		f.RenewalDate = nil
		f.RenewalDays = subscriptiondomain.NoRenewalDays
		f.ActiveUsers = 20
	}), now)

	require.Equal(t, RuleModerateUnderutilization, eval.Rule)
	require.NotNil(t, eval.DueDate)
	assert.True(t, eval.DueDate.Equal(now.Add(60*day)))
	assert.Equal(t, "No renewal date", eval.Factors[3].Explanation)
}

func TestCustomRuleOrder(t *testing.T) {
	e := New(renewalProximity, moderateUnderutilization)

	eval := e.Evaluate(factors(func(f *decisiondomain.DecisionFactors) {
		f.ActiveUsers = 20
		f.RenewalDays = 3
	}), now)
	assert.Equal(t, RuleRenewalProximity, eval.Rule)

	fallthroughEval := e.Evaluate(factors(nil), now)
	assert.Equal(t, RuleDefault, fallthroughEval.Rule)
}

func TestBaseFactorImpacts(t *testing.T) {
	base := BaseFactors(withUtilization(factors(func(f *decisiondomain.DecisionFactors) {
		f.ActiveUsers = 45
		f.LastActivityDays = 45
		f.KeystoneScore = 0.5
		f.RenewalDays = 5
		f.AnnualCostCents = 123_456_789
	})))

	assert.Equal(t, decisiondomain.ImpactPositive, base[0].Impact)
	assert.Equal(t, decisiondomain.ImpactNeutral, base[1].Impact)
	assert.Equal(t, decisiondomain.ImpactPositive, base[2].Impact)
	assert.Equal(t, decisiondomain.ImpactNegative, base[3].Impact)
	assert.Equal(t, "$1,234,567/year", base[4].Explanation)
}

func TestPriorityFor(t *testing.T) {
	assert.Equal(t, decisiondomain.PriorityUrgent, PriorityFor(-2))
	assert.Equal(t, decisiondomain.PriorityUrgent, PriorityFor(7))
	assert.Equal(t, decisiondomain.PriorityHigh, PriorityFor(30))
	assert.Equal(t, decisiondomain.PriorityNormal, PriorityFor(60))
	assert.Equal(t, decisiondomain.PriorityLow, PriorityFor(subscriptiondomain.NoRenewalDays))
}

func withUtilization(f decisiondomain.DecisionFactors) decisiondomain.DecisionFactors {
	f.UtilizationRate = decisiondomain.Utilization(f.ActiveUsers, f.PaidSeats)
	return f
}
