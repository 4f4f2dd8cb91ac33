package engine

import (
	"fmt"
	"time"

	decisiondomain "github.com/smallbiznis/spendwise/internal/decision/domain"
	keystonedomain "github.com/smallbiznis/spendwise/internal/keystone/domain"
	usagedomain "github.com/smallbiznis/spendwise/internal/usage/domain"
)

// Rule names, stored on the decision row.
const (
	RuleKeystoneProtection       = "keystone_protection"
	RuleOrphanedOwner            = "orphaned_owner"
	RuleZeroUsage                = "zero_usage"
	RuleSevereUnderutilization   = "severe_underutilization"
	RuleModerateUnderutilization = "moderate_underutilization"
	RuleRenewalProximity         = "renewal_proximity"
	RuleDefault                  = "default"
)

// DefaultRules returns the governance rules in evaluation order.
func DefaultRules() []Rule {
	return []Rule{
		keystoneProtection,
		orphanedOwner,
		zeroUsage,
		severeUnderutilization,
		moderateUnderutilization,
		renewalProximity,
		defaultRule,
	}
}

var keystoneProtection = Rule{
	Name: RuleKeystoneProtection,
	Matches: func(f decisiondomain.DecisionFactors) bool {
		return keystonedomain.IsKeystone(f.KeystoneScore)
	},
	Decide: func(f decisiondomain.DecisionFactors, _ time.Time) Evaluation {
		return Evaluation{
			Type:        decisiondomain.DecisionTypeKeep,
			Confidence:  0.95,
			RiskScore:   0.9,
			Priority:    decisiondomain.PriorityLow,
			Explanation: fmt.Sprintf("Critical infrastructure: %d tools depend on %s", f.DependencyCount, toolName(f)),
			Factors: []decisiondomain.Factor{{
				Name:        "dependency_count",
				Value:       f.DependencyCount,
				Weight:      0.5,
				Impact:      decisiondomain.ImpactPositive,
				Explanation: fmt.Sprintf("Keystone score %.2f exceeds %.2f", f.KeystoneScore, keystonedomain.CriticalThreshold),
			}},
		}
	},
}

var orphanedOwner = Rule{
	Name: RuleOrphanedOwner,
	Matches: func(f decisiondomain.DecisionFactors) bool {
		return !f.OwnerActive
	},
	Decide: func(f decisiondomain.DecisionFactors, now time.Time) Evaluation {
		owner := f.OwnerName
		if owner == "" {
			owner = "unknown"
		}
		return Evaluation{
			Type:             decisiondomain.DecisionTypeReview,
			Confidence:       0.8,
			RiskScore:        0.5,
			Priority:         decisiondomain.PriorityHigh,
			Explanation:      "Tool owner has left - needs ownership transfer",
			DueDate:          dueDate(f, now, 30*day),
			RequiresApproval: true,
			Factors: []decisiondomain.Factor{{
				Name:        "owner_status",
				Value:       "departed",
				Weight:      0.5,
				Impact:      decisiondomain.ImpactNegative,
				Explanation: fmt.Sprintf("Owner %s is no longer active", owner),
			}},
		}
	},
}

var zeroUsage = Rule{
	Name: RuleZeroUsage,
	Matches: func(f decisiondomain.DecisionFactors) bool {
		return f.ActiveUsers == 0 && f.LastActivityDays > InactivityCriticalDays
	},
	Decide: func(f decisiondomain.DecisionFactors, now time.Time) Evaluation {
		return Evaluation{
			Type:             decisiondomain.DecisionTypeCancel,
			Confidence:       0.85,
			RiskScore:        0.2 + f.KeystoneScore*0.3,
			Priority:         PriorityFor(f.RenewalDays),
			SavingsCents:     f.AnnualCostCents,
			Explanation:      inactivityExplanation(f),
			DueDate:          dueDate(f, now, 30*day),
			RequiresApproval: f.AnnualCostCents > MinCancelApprovalCents,
			Factors: []decisiondomain.Factor{{
				Name:        "active_users",
				Value:       f.ActiveUsers,
				Weight:      0.4,
				Impact:      decisiondomain.ImpactNegative,
				Explanation: fmt.Sprintf("No user active in the last %d days", InactivityCriticalDays),
			}},
		}
	},
}

var severeUnderutilization = Rule{
	Name: RuleSevereUnderutilization,
	Matches: func(f decisiondomain.DecisionFactors) bool {
		return f.UtilizationRate < UtilizationSevere && f.PaidSeats > MinDownsizeSeats
	},
	Decide: func(f decisiondomain.DecisionFactors, now time.Time) Evaluation {
		seats := RecommendedSeats(f.ActiveUsers, f.PaidSeats)
		savings := int64(0)
		if f.PaidSeats > 0 {
			savings = f.AnnualCostCents * int64(f.PaidSeats-seats) / int64(f.PaidSeats)
		}
		return Evaluation{
			Type:             decisiondomain.DecisionTypeDownsize,
			Confidence:       0.75,
			RiskScore:        0.3,
			Priority:         PriorityFor(f.RenewalDays),
			SavingsCents:     savings,
			RecommendedSeats: &seats,
			Explanation: fmt.Sprintf("Only %s utilization - reduce from %d to %d seats",
				percent(f.UtilizationRate), f.PaidSeats, seats),
			DueDate:          dueDate(f, now, 30*day),
			RequiresApproval: true,
			Factors: []decisiondomain.Factor{{
				Name:        "recommended_seats",
				Value:       seats,
				Weight:      0.3,
				Impact:      decisiondomain.ImpactNeutral,
				Explanation: fmt.Sprintf("%d active users plus a buffer of %d", f.ActiveUsers, DownsizeSeatBuffer),
			}},
		}
	},
}

var moderateUnderutilization = Rule{
	Name: RuleModerateUnderutilization,
	Matches: func(f decisiondomain.DecisionFactors) bool {
		return f.UtilizationRate < UtilizationModerate
	},
	Decide: func(f decisiondomain.DecisionFactors, now time.Time) Evaluation {
		return Evaluation{
			Type:         decisiondomain.DecisionTypeReview,
			Confidence:   0.6,
			RiskScore:    0.4,
			Priority:     decisiondomain.PriorityNormal,
			SavingsCents: scaleCents(f.AnnualCostCents, ModerateReviewSavingsRate),
			Explanation:  fmt.Sprintf("Underutilized at %s - review seat allocation", percent(f.UtilizationRate)),
			DueDate:      dueDate(f, now, 60*day),
			Factors: []decisiondomain.Factor{{
				Name:        "savings_estimate_rate",
				Value:       ModerateReviewSavingsRate,
				Weight:      0.1,
				Impact:      decisiondomain.ImpactNeutral,
				Explanation: "Estimated share of annual cost recoverable after review",
			}},
		}
	},
}

var renewalProximity = Rule{
	Name: RuleRenewalProximity,
	Matches: func(f decisiondomain.DecisionFactors) bool {
		return f.RenewalDays < RenewalSoonDays && f.UtilizationRate < UtilizationAcceptable
	},
	Decide: func(f decisiondomain.DecisionFactors, now time.Time) Evaluation {
		priority := decisiondomain.PriorityNormal
		if f.RenewalDays < RenewalUrgentDays {
			priority = decisiondomain.PriorityHigh
		}
		return Evaluation{
			Type:         decisiondomain.DecisionTypeReview,
			Confidence:   0.65,
			RiskScore:    0.35,
			Priority:     priority,
			SavingsCents: scaleCents(f.AnnualCostCents, RenewalReviewSavingsRate),
			Explanation: fmt.Sprintf("Renewal in %d days - verify seat count (%s utilized)",
				f.RenewalDays, percent(f.UtilizationRate)),
			DueDate: dueDate(f, now, 30*day),
			Factors: []decisiondomain.Factor{{
				Name:        "renewal_window",
				Value:       RenewalSoonDays,
				Weight:      0.2,
				Impact:      decisiondomain.ImpactNegative,
				Explanation: fmt.Sprintf("Renewal falls inside the %d day review window", RenewalSoonDays),
			}},
		}
	},
}

var defaultRule = Rule{
	Name:    RuleDefault,
	Matches: func(decisiondomain.DecisionFactors) bool { return true },
	Decide: func(f decisiondomain.DecisionFactors, _ time.Time) Evaluation {
		return Evaluation{
			Type:        decisiondomain.DecisionTypeKeep,
			Confidence:  0.7,
			RiskScore:   0.1,
			Priority:    decisiondomain.PriorityLow,
			Explanation: fmt.Sprintf("Healthy usage (%s) - no action needed", percent(f.UtilizationRate)),
		}
	},
}

// RecommendedSeats keeps a growth buffer over active users, never fewer than
// MinDownsizeSeats, and stays within [activeUsers, paidSeats].
func RecommendedSeats(activeUsers, paidSeats int) int {
	seats := activeUsers + DownsizeSeatBuffer
	if seats < MinDownsizeSeats {
		seats = MinDownsizeSeats
	}
	if seats > paidSeats {
		seats = paidSeats
	}
	if seats < activeUsers {
		seats = activeUsers
	}
	return seats
}

func inactivityExplanation(f decisiondomain.DecisionFactors) string {
	if f.LastActivityDays == usagedomain.NoActivityDays {
		return "No recorded activity"
	}
	return fmt.Sprintf("No active users for %d days", f.LastActivityDays)
}

func toolName(f decisiondomain.DecisionFactors) string {
	if f.ToolName == "" {
		return "this tool"
	}
	return f.ToolName
}
