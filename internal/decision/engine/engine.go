// Package engine evaluates a subscription snapshot against an ordered rule
// list. The first rule whose predicate matches decides the outcome.
package engine

import (
	"fmt"
	"math"
	"time"

	decisiondomain "github.com/smallbiznis/spendwise/internal/decision/domain"
	subscriptiondomain "github.com/smallbiznis/spendwise/internal/subscription/domain"
	usagedomain "github.com/smallbiznis/spendwise/internal/usage/domain"
)

// Rule thresholds.
const (
	UtilizationSevere     = 0.30
	UtilizationModerate   = 0.50
	UtilizationAcceptable = 0.70

	InactivityCriticalDays   = 60
	InactivityConcerningDays = 30

	KeystoneImportant = 0.30

	RenewalUrgentDays   = 7
	RenewalSoonDays     = 30
	RenewalUpcomingDays = 60

	MinDownsizeSeats       = 5
	DownsizeSeatBuffer     = 2
	MinCancelApprovalCents = 50_000
)

// Savings estimates for the review rules. Calibration placeholders: neither
// rate is derived from seat counts.
const (
	ModerateReviewSavingsRate = 0.3
	RenewalReviewSavingsRate  = 0.2
)

const day = 24 * time.Hour

// Evaluation is the engine output for one snapshot.
type Evaluation struct {
	Rule             string
	Type             decisiondomain.DecisionType
	Confidence       float64
	RiskScore        float64
	RiskLevel        decisiondomain.RiskLevel
	Priority         decisiondomain.Priority
	SavingsCents     int64
	RecommendedSeats *int
	Explanation      string
	Factors          []decisiondomain.Factor
	DueDate          *time.Time
	RequiresApproval bool
}

// Rule pairs a predicate with the outcome it produces.
type Rule struct {
	Name    string
	Matches func(f decisiondomain.DecisionFactors) bool
	Decide  func(f decisiondomain.DecisionFactors, now time.Time) Evaluation
}

type Engine struct {
	rules []Rule
}

// New builds an engine over rules in evaluation order. DefaultRules is used
// when rules is empty.
func New(rules ...Rule) *Engine {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Engine{rules: rules}
}

func (e *Engine) Rules() []Rule { return e.rules }

// Evaluate returns the outcome of the first matching rule with the base
// factors prepended to the rule's own factors.
func (e *Engine) Evaluate(f decisiondomain.DecisionFactors, now time.Time) Evaluation {
	f.UtilizationRate = decisiondomain.Utilization(f.ActiveUsers, f.PaidSeats)

	for _, rule := range e.rules {
		if rule.Matches == nil || !rule.Matches(f) {
			continue
		}
		return finish(rule, f, now)
	}
	return finish(defaultRule, f, now)
}

func finish(rule Rule, f decisiondomain.DecisionFactors, now time.Time) Evaluation {
	eval := rule.Decide(f, now)
	eval.Rule = rule.Name
	eval.Factors = append(BaseFactors(f), eval.Factors...)
	eval.RiskLevel = RiskLevelFor(eval.RiskScore)
	if eval.SavingsCents < 0 {
		eval.SavingsCents = 0
	}
	return eval
}

// Evaluate runs the default rule list.
func Evaluate(f decisiondomain.DecisionFactors, now time.Time) Evaluation {
	return New().Evaluate(f, now)
}

// BaseFactors are recorded on every outcome.
func BaseFactors(f decisiondomain.DecisionFactors) []decisiondomain.Factor {
	activity := "No activity data"
	if f.LastActivityDays != usagedomain.NoActivityDays {
		activity = fmt.Sprintf("Last activity %d days ago", f.LastActivityDays)
	}
	renewal := "No renewal date"
	if f.RenewalDays != subscriptiondomain.NoRenewalDays {
		renewal = fmt.Sprintf("Renewal in %d days", f.RenewalDays)
	}
	keystoneImpact := decisiondomain.ImpactNeutral
	if f.KeystoneScore > KeystoneImportant {
		keystoneImpact = decisiondomain.ImpactPositive
	}

	return []decisiondomain.Factor{
		{
			Name:        "utilization_rate",
			Value:       round(f.UtilizationRate, 4),
			Weight:      0.35,
			Impact:      rateUtilization(f.UtilizationRate),
			Explanation: fmt.Sprintf("%d/%d seats used (%s)", f.ActiveUsers, f.PaidSeats, percent(f.UtilizationRate)),
		},
		{
			Name:        "last_activity",
			Value:       f.LastActivityDays,
			Weight:      0.25,
			Impact:      rateInactivity(f.LastActivityDays),
			Explanation: activity,
		},
		{
			Name:        "keystone_score",
			Value:       round(f.KeystoneScore, 4),
			Weight:      0.20,
			Impact:      keystoneImpact,
			Explanation: fmt.Sprintf("%d tools depend on this", f.DependencyCount),
		},
		{
			Name:        "renewal_urgency",
			Value:       f.RenewalDays,
			Weight:      0.10,
			Impact:      rateRenewal(f.RenewalDays),
			Explanation: renewal,
		},
		{
			Name:        "annual_cost",
			Value:       f.AnnualCostCents,
			Weight:      0.10,
			Impact:      decisiondomain.ImpactNeutral,
			Explanation: fmt.Sprintf("$%s/year", dollars(f.AnnualCostCents)),
		},
	}
}

// RiskLevelFor buckets a risk score.
func RiskLevelFor(risk float64) decisiondomain.RiskLevel {
	switch {
	case risk >= 0.85:
		return decisiondomain.RiskLevelCritical
	case risk >= 0.6:
		return decisiondomain.RiskLevelHigh
	case risk >= 0.3:
		return decisiondomain.RiskLevelMedium
	default:
		return decisiondomain.RiskLevelLow
	}
}

// PriorityFor maps renewal proximity to a priority.
func PriorityFor(renewalDays int) decisiondomain.Priority {
	switch {
	case renewalDays <= RenewalUrgentDays:
		return decisiondomain.PriorityUrgent
	case renewalDays <= RenewalSoonDays:
		return decisiondomain.PriorityHigh
	case renewalDays <= RenewalUpcomingDays:
		return decisiondomain.PriorityNormal
	default:
		return decisiondomain.PriorityLow
	}
}

func rateUtilization(rate float64) decisiondomain.Impact {
	switch {
	case rate >= UtilizationAcceptable:
		return decisiondomain.ImpactPositive
	case rate >= UtilizationModerate:
		return decisiondomain.ImpactNeutral
	default:
		return decisiondomain.ImpactNegative
	}
}

func rateInactivity(days int) decisiondomain.Impact {
	switch {
	case days <= InactivityConcerningDays:
		return decisiondomain.ImpactPositive
	case days <= InactivityCriticalDays:
		return decisiondomain.ImpactNeutral
	default:
		return decisiondomain.ImpactNegative
	}
}

func rateRenewal(days int) decisiondomain.Impact {
	switch {
	case days <= RenewalUrgentDays:
		return decisiondomain.ImpactNegative
	case days <= RenewalSoonDays:
		return decisiondomain.ImpactNeutral
	default:
		return decisiondomain.ImpactPositive
	}
}

// dueDate is the renewal date when known, otherwise now plus fallback.
func dueDate(f decisiondomain.DecisionFactors, now time.Time, fallback time.Duration) *time.Time {
	if f.RenewalDate != nil {
		due := f.RenewalDate.UTC()
		return &due
	}
	if fallback <= 0 {
		return nil
	}
	due := now.Add(fallback).UTC()
	return &due
}

func scaleCents(cents int64, rate float64) int64 {
	return int64(float64(cents) * rate)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func percent(rate float64) string {
	return fmt.Sprintf("%.0f%%", rate*100)
}

func dollars(cents int64) string {
	whole := cents / 100
	s := fmt.Sprintf("%d", whole)
	if len(s) <= 3 {
		return s
	}
	out := make([]byte, 0, len(s)+len(s)/3)
	lead := len(s) % 3
	if lead > 0 {
		out = append(out, s[:lead]...)
	}
	for i := lead; i < len(s); i += 3 {
		if len(out) > 0 {
			out = append(out, ',')
		}
		out = append(out, s[i:i+3]...)
	}
	return string(out)
}
