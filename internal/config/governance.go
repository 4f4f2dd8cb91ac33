package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// GovernancePolicy holds the tunable parts of the governance core. Rule
// thresholds of the decision engine are fixed in code and are not part of it.
type GovernancePolicy struct {
	FreshnessWindowDays  int   `mapstructure:"freshnessWindowDays"`
	MaxTraversalDepth    int   `mapstructure:"maxTraversalDepth"`
	EscalationWaitDays   []int `mapstructure:"escalationWaitDays"`
	Level4MinAmountCents int64 `mapstructure:"level4MinAmountCents"`
	Level4MaxRenewalDays int   `mapstructure:"level4MaxRenewalDays"`
	RenewalLookaheadDays int   `mapstructure:"renewalLookaheadDays"`
	OverdueDecisionDays  int   `mapstructure:"overdueDecisionDays"`

	Scheduler SchedulerPolicy `mapstructure:"scheduler"`
}

type SchedulerPolicy struct {
	RunInterval       time.Duration `mapstructure:"runInterval"`
	KeystoneInterval  time.Duration `mapstructure:"keystoneInterval"`
	AnalysisInterval  time.Duration `mapstructure:"analysisInterval"`
	EscalationBatch   int           `mapstructure:"escalationBatch"`
	NotificationBatch int           `mapstructure:"notificationBatch"`
}

func DefaultGovernancePolicy() GovernancePolicy {
	return GovernancePolicy{
		FreshnessWindowDays:  30,
		MaxTraversalDepth:    5,
		EscalationWaitDays:   []int{3, 3, 2},
		Level4MinAmountCents: 500_000,
		Level4MaxRenewalDays: 7,
		RenewalLookaheadDays: 60,
		OverdueDecisionDays:  14,
		Scheduler: SchedulerPolicy{
			RunInterval:       time.Minute,
			KeystoneInterval:  24 * time.Hour,
			AnalysisInterval:  6 * time.Hour,
			EscalationBatch:   100,
			NotificationBatch: 100,
		},
	}
}

// WaitFor returns how long an unanswered escalation at level stays before the
// next level may be created.
func (p GovernancePolicy) WaitFor(level int) time.Duration {
	if level < 1 || level > len(p.EscalationWaitDays) {
		return 0
	}
	return time.Duration(p.EscalationWaitDays[level-1]) * 24 * time.Hour
}

// OverdueWindow is how long a decision opened after its renewal date passed
// stays open.
func (p GovernancePolicy) OverdueWindow() time.Duration {
	return time.Duration(p.OverdueDecisionDays) * 24 * time.Hour
}

// FreshnessWindow is the lookback used to count a user as active.
func (p GovernancePolicy) FreshnessWindow() time.Duration {
	return time.Duration(p.FreshnessWindowDays) * 24 * time.Hour
}

type GovernanceHolder struct {
	current atomic.Value // holds GovernancePolicy
}

func NewGovernanceHolder() (*GovernanceHolder, error) {
	v := viper.New()

	v.SetConfigName("governance")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/spendwise/config")
	v.AddConfigPath("/etc/spendwise")
	v.AddConfigPath(".")

	v.SetEnvPrefix("SPENDWISE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setGovernanceDefaults(v, DefaultGovernancePolicy())

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	policy, err := decodeGovernance(v)
	if err != nil {
		return nil, err
	}
	if err := ValidateGovernancePolicy(policy); err != nil {
		return nil, err
	}

	holder := &GovernanceHolder{}
	holder.current.Store(policy)

	if fileFound {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			updated, err := decodeGovernance(v)
			if err != nil {
				log.Printf("[governance-config] reload failed: %v", err)
				return
			}
			if err := ValidateGovernancePolicy(updated); err != nil {
				log.Printf("[governance-config] invalid config ignored: %v", err)
				return
			}
			holder.current.Store(updated)
			log.Printf("[governance-config] reloaded from %s", e.Name)
		})
	}

	return holder, nil
}

// NewStaticGovernanceHolder returns a holder that never reloads.
func NewStaticGovernanceHolder(policy GovernancePolicy) *GovernanceHolder {
	holder := &GovernanceHolder{}
	holder.current.Store(policy)
	return holder
}

func (h *GovernanceHolder) Get() GovernancePolicy {
	if h == nil {
		return DefaultGovernancePolicy()
	}
	return h.current.Load().(GovernancePolicy)
}

// decodeGovernance unmarshals the merged settings so a partial file keeps the
// defaults of the keys it omits.
func decodeGovernance(v *viper.Viper) (GovernancePolicy, error) {
	var wrapper struct {
		Governance GovernancePolicy `mapstructure:"governance"`
	}
	if err := v.Unmarshal(&wrapper); err != nil {
		return GovernancePolicy{}, err
	}
	return wrapper.Governance, nil
}

func setGovernanceDefaults(v *viper.Viper, defaults GovernancePolicy) {
	v.SetDefault("governance.freshnessWindowDays", defaults.FreshnessWindowDays)
	v.SetDefault("governance.maxTraversalDepth", defaults.MaxTraversalDepth)
	v.SetDefault("governance.escalationWaitDays", defaults.EscalationWaitDays)
	v.SetDefault("governance.level4MinAmountCents", defaults.Level4MinAmountCents)
	v.SetDefault("governance.level4MaxRenewalDays", defaults.Level4MaxRenewalDays)
	v.SetDefault("governance.renewalLookaheadDays", defaults.RenewalLookaheadDays)
	v.SetDefault("governance.overdueDecisionDays", defaults.OverdueDecisionDays)
	v.SetDefault("governance.scheduler.runInterval", defaults.Scheduler.RunInterval)
	v.SetDefault("governance.scheduler.keystoneInterval", defaults.Scheduler.KeystoneInterval)
	v.SetDefault("governance.scheduler.analysisInterval", defaults.Scheduler.AnalysisInterval)
	v.SetDefault("governance.scheduler.escalationBatch", defaults.Scheduler.EscalationBatch)
	v.SetDefault("governance.scheduler.notificationBatch", defaults.Scheduler.NotificationBatch)
}

func ValidateGovernancePolicy(p GovernancePolicy) error {
	if p.FreshnessWindowDays <= 0 {
		return errors.New("governance.freshnessWindowDays must be positive")
	}
	if p.MaxTraversalDepth <= 0 {
		return errors.New("governance.maxTraversalDepth must be positive")
	}
	if len(p.EscalationWaitDays) < 3 {
		return errors.New("governance.escalationWaitDays needs a wait for levels 1-3")
	}
	for _, days := range p.EscalationWaitDays {
		if days <= 0 {
			return errors.New("governance.escalationWaitDays entries must be positive")
		}
	}
	if p.Level4MinAmountCents < 0 {
		return errors.New("governance.level4MinAmountCents cannot be negative")
	}
	if p.RenewalLookaheadDays <= 0 {
		return errors.New("governance.renewalLookaheadDays must be positive")
	}
	if p.OverdueDecisionDays <= 0 {
		return errors.New("governance.overdueDecisionDays must be positive")
	}
	return nil
}
