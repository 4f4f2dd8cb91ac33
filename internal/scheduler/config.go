package scheduler

import (
	"time"

	"github.com/smallbiznis/spendwise/internal/config"
)

// Config controls scheduler intervals and batch sizes.
type Config struct {
	RunInterval       time.Duration
	KeystoneInterval  time.Duration
	AnalysisInterval  time.Duration
	RenewalLookahead  time.Duration
	EscalationBatch   int
	NotificationBatch int
	AnalysisBatch     int
	JobTimeout        time.Duration
	LockTTL           time.Duration
	EnabledJobs       []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval:       time.Minute,
		KeystoneInterval:  24 * time.Hour,
		AnalysisInterval:  6 * time.Hour,
		RenewalLookahead:  60 * 24 * time.Hour,
		EscalationBatch:   100,
		NotificationBatch: 100,
		AnalysisBatch:     500,
		JobTimeout:        30 * time.Second,
	}
}

// ProvideConfig reads the scheduler section of the governance policy.
func ProvideConfig(holder *config.GovernanceHolder) Config {
	policy := holder.Get()
	return Config{
		RunInterval:       policy.Scheduler.RunInterval,
		KeystoneInterval:  policy.Scheduler.KeystoneInterval,
		AnalysisInterval:  policy.Scheduler.AnalysisInterval,
		RenewalLookahead:  time.Duration(policy.RenewalLookaheadDays) * 24 * time.Hour,
		EscalationBatch:   policy.Scheduler.EscalationBatch,
		NotificationBatch: policy.Scheduler.NotificationBatch,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.KeystoneInterval <= 0 {
		c.KeystoneInterval = defaults.KeystoneInterval
	}
	if c.AnalysisInterval <= 0 {
		c.AnalysisInterval = defaults.AnalysisInterval
	}
	if c.RenewalLookahead <= 0 {
		c.RenewalLookahead = defaults.RenewalLookahead
	}
	if c.EscalationBatch <= 0 {
		c.EscalationBatch = defaults.EscalationBatch
	}
	if c.NotificationBatch <= 0 {
		c.NotificationBatch = defaults.NotificationBatch
	}
	if c.AnalysisBatch <= 0 {
		c.AnalysisBatch = defaults.AnalysisBatch
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.LockTTL <= 0 {
		c.LockTTL = c.RunInterval
	}
	return c
}
