// Package testing provides a SQLite schema, fixtures and time controls for
// exercising governance services and scheduler jobs without Postgres.
package testing

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Schema mirrors the Postgres migrations with SQLite column types. Array
// columns are stored as their text encoding.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGINT PRIMARY KEY,
		org_id BIGINT NOT NULL,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'member',
		status TEXT NOT NULL DEFAULT 'active',
		manager_id BIGINT,
		slack_id TEXT,
		phone TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS tools (
		id BIGINT PRIMARY KEY,
		org_id BIGINT NOT NULL,
		name TEXT NOT NULL,
		normalized_name TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT 'other',
		is_keystone BOOLEAN NOT NULL DEFAULT FALSE,
		keystone_score REAL NOT NULL DEFAULT 0,
		keystone_scored_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_tools_org_normalized_name ON tools (org_id, normalized_name)`,
	`CREATE TABLE IF NOT EXISTS subscriptions (
		id BIGINT PRIMARY KEY,
		org_id BIGINT NOT NULL,
		tool_id BIGINT NOT NULL,
		paid_seats INTEGER NOT NULL DEFAULT 0,
		active_seats INTEGER NOT NULL DEFAULT 0,
		amount_cents BIGINT NOT NULL DEFAULT 0,
		billing_cycle TEXT NOT NULL DEFAULT 'monthly',
		renewal_date TIMESTAMP,
		owner_id BIGINT,
		status TEXT NOT NULL DEFAULT 'active',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS tool_access (
		id BIGINT PRIMARY KEY,
		org_id BIGINT NOT NULL,
		tool_id BIGINT NOT NULL,
		user_id BIGINT NOT NULL,
		last_active_at TIMESTAMP,
		activity_days_30 INTEGER NOT NULL DEFAULT 0,
		activity_days_90 INTEGER NOT NULL DEFAULT 0,
		activity_score REAL NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'active',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_tool_access_tool_user ON tool_access (tool_id, user_id)`,
	`CREATE TABLE IF NOT EXISTS tool_dependencies (
		id BIGINT PRIMARY KEY,
		org_id BIGINT NOT NULL,
		source_tool_id BIGINT NOT NULL,
		target_tool_id BIGINT NOT NULL,
		dependency_type TEXT NOT NULL,
		strength REAL NOT NULL DEFAULT 0.5,
		verified BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP NOT NULL,
		CHECK (source_tool_id <> target_tool_id)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_tool_dependencies_edge ON tool_dependencies (source_tool_id, target_tool_id, dependency_type)`,
	`CREATE TABLE IF NOT EXISTS decisions (
		id BIGINT PRIMARY KEY,
		org_id BIGINT NOT NULL,
		subscription_id BIGINT NOT NULL,
		tool_id BIGINT NOT NULL,
		decision_type TEXT NOT NULL,
		rule TEXT NOT NULL,
		confidence REAL NOT NULL,
		risk_score REAL NOT NULL,
		risk_level TEXT NOT NULL,
		savings_potential_cents BIGINT NOT NULL DEFAULT 0,
		current_seats INTEGER NOT NULL DEFAULT 0,
		recommended_seats INTEGER,
		factors TEXT NOT NULL DEFAULT '[]',
		explanation TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		priority TEXT NOT NULL DEFAULT 'normal',
		requires_approval BOOLEAN NOT NULL DEFAULT FALSE,
		due_date TIMESTAMP,
		decided_by BIGINT,
		decided_at TIMESTAMP,
		executed_at TIMESTAMP,
		execution_notes TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_decisions_pending_subscription ON decisions (subscription_id) WHERE status = 'pending'`,
	`CREATE TABLE IF NOT EXISTS escalations (
		id BIGINT PRIMARY KEY,
		org_id BIGINT NOT NULL,
		decision_id BIGINT NOT NULL,
		level INTEGER NOT NULL,
		channels TEXT NOT NULL,
		recipients TEXT NOT NULL,
		template TEXT NOT NULL,
		scheduled_at TIMESTAMP NOT NULL,
		sent_at TIMESTAMP,
		responded_at TIMESTAMP,
		response_type TEXT,
		responded_by BIGINT,
		status TEXT NOT NULL DEFAULT 'pending',
		attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_escalations_decision_level ON escalations (decision_id, level)`,
	`CREATE TABLE IF NOT EXISTS in_app_notifications (
		id BIGINT PRIMARY KEY,
		org_id BIGINT NOT NULL,
		user_id BIGINT NOT NULL,
		escalation_id BIGINT NOT NULL,
		title TEXT NOT NULL,
		body TEXT NOT NULL,
		read_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id BIGINT PRIMARY KEY,
		org_id BIGINT,
		actor_type TEXT NOT NULL,
		actor_id TEXT,
		action TEXT NOT NULL,
		target_type TEXT NOT NULL,
		target_id TEXT,
		metadata TEXT NOT NULL DEFAULT '{}',
		ip_address TEXT,
		user_agent TEXT,
		created_at TIMESTAMP NOT NULL
	)`,
}

// ApplySchema creates every governance table on db.
func ApplySchema(db *gorm.DB) error {
	for _, stmt := range Schema {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}

// Fixtures inserts collaborator rows the governance core only reads.
type Fixtures struct {
	db   *gorm.DB
	node *snowflake.Node
	now  time.Time
}

func NewFixtures(db *gorm.DB, node *snowflake.Node, now time.Time) *Fixtures {
	return &Fixtures{db: db, node: node, now: now}
}

type UserSpec struct {
	Name      string
	Role      string
	Status    string
	ManagerID *snowflake.ID
	SlackID   *string
	Phone     *string
}

func (f *Fixtures) User(ctx context.Context, orgID snowflake.ID, spec UserSpec) (snowflake.ID, error) {
	id := f.node.Generate()
	if spec.Role == "" {
		spec.Role = "member"
	}
	if spec.Status == "" {
		spec.Status = "active"
	}
	err := f.db.WithContext(ctx).Exec(
		`INSERT INTO users (id, org_id, name, email, role, status, manager_id, slack_id, phone, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, orgID, spec.Name, spec.Name+"@example.com", spec.Role, spec.Status,
		spec.ManagerID, spec.SlackID, spec.Phone, f.now, f.now,
	).Error
	return id, err
}

func (f *Fixtures) Tool(ctx context.Context, orgID snowflake.ID, name string) (snowflake.ID, error) {
	id := f.node.Generate()
	err := f.db.WithContext(ctx).Exec(
		`INSERT INTO tools (id, org_id, name, normalized_name, category, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 'other', ?, ?)`,
		id, orgID, name, id.String(), f.now, f.now,
	).Error
	return id, err
}

type SubscriptionSpec struct {
	ToolID       snowflake.ID
	PaidSeats    int
	AmountCents  int64
	BillingCycle string
	RenewalDate  *time.Time
	OwnerID      *snowflake.ID
}

func (f *Fixtures) Subscription(ctx context.Context, orgID snowflake.ID, spec SubscriptionSpec) (snowflake.ID, error) {
	id := f.node.Generate()
	if spec.BillingCycle == "" {
		spec.BillingCycle = "monthly"
	}
	err := f.db.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (id, org_id, tool_id, paid_seats, active_seats, amount_cents, billing_cycle,
		 renewal_date, owner_id, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 0, ?, ?, ?, ?, 'active', ?, ?)`,
		id, orgID, spec.ToolID, spec.PaidSeats, spec.AmountCents, spec.BillingCycle,
		spec.RenewalDate, spec.OwnerID, f.now, f.now,
	).Error
	return id, err
}

// Access records a user's access to a tool, last active daysAgo days before
// the fixture clock. A negative daysAgo leaves last_active_at empty.
func (f *Fixtures) Access(ctx context.Context, orgID, toolID, userID snowflake.ID, daysAgo int) error {
	var lastActive *time.Time
	if daysAgo >= 0 {
		ts := f.now.Add(-time.Duration(daysAgo) * 24 * time.Hour)
		lastActive = &ts
	}
	return f.db.WithContext(ctx).Exec(
		`INSERT INTO tool_access (id, org_id, tool_id, user_id, last_active_at, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 'active', ?, ?)`,
		f.node.Generate(), orgID, toolID, userID, lastActive, f.now, f.now,
	).Error
}

// Dependency records that source depends on target.
func (f *Fixtures) Dependency(ctx context.Context, orgID, source, target snowflake.ID, strength float64) error {
	return f.db.WithContext(ctx).Exec(
		`INSERT INTO tool_dependencies (id, org_id, source_tool_id, target_tool_id, dependency_type, strength, verified, created_at)
		 VALUES (?, ?, ?, ?, 'integration', ?, TRUE, ?)`,
		f.node.Generate(), orgID, source, target, strength, f.now,
	).Error
}

// TimeAccelerator moves persisted timestamps so waits and deadlines elapse
// without sleeping.
type TimeAccelerator struct {
	db *gorm.DB
}

func NewTimeAccelerator(db *gorm.DB) *TimeAccelerator {
	return &TimeAccelerator{db: db}
}

// RewindEscalation shifts scheduled_at and sent_at of an escalation back by d.
func (ta *TimeAccelerator) RewindEscalation(ctx context.Context, escalationID snowflake.ID, d time.Duration) error {
	var row struct {
		ScheduledAt time.Time
		SentAt      *time.Time
	}
	if err := ta.db.WithContext(ctx).Raw(
		`SELECT scheduled_at, sent_at FROM escalations WHERE id = ?`,
		escalationID,
	).Scan(&row).Error; err != nil {
		return err
	}

	var sentAt *time.Time
	if row.SentAt != nil {
		shifted := row.SentAt.Add(-d)
		sentAt = &shifted
	}
	return ta.db.WithContext(ctx).Exec(
		`UPDATE escalations SET scheduled_at = ?, sent_at = ? WHERE id = ?`,
		row.ScheduledAt.Add(-d),
		sentAt,
		escalationID,
	).Error
}

func (ta *TimeAccelerator) SetRenewalDate(ctx context.Context, subscriptionID snowflake.ID, renewal time.Time) error {
	return ta.db.WithContext(ctx).Exec(
		`UPDATE subscriptions SET renewal_date = ? WHERE id = ?`,
		renewal,
		subscriptionID,
	).Error
}

// EscalationInfo shows the escalation ladder of a decision for assertions.
type EscalationInfo struct {
	ID     snowflake.ID
	Level  int
	Status string
}

func (ta *TimeAccelerator) Escalations(ctx context.Context, decisionID snowflake.ID) ([]EscalationInfo, error) {
	var rows []EscalationInfo
	err := ta.db.WithContext(ctx).Raw(
		`SELECT id, level, status FROM escalations WHERE decision_id = ? ORDER BY level ASC`,
		decisionID,
	).Scan(&rows).Error
	return rows, err
}
