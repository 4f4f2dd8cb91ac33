package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	decisiondomain "github.com/smallbiznis/spendwise/internal/decision/domain"
	schedtesting "github.com/smallbiznis/spendwise/internal/scheduler/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var now = time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, schedtesting.ApplySchema(db))
	return db
}

func newDecision(id, subscriptionID snowflake.ID, due *time.Time) *decisiondomain.Decision {
	return &decisiondomain.Decision{
		ID:             id,
		OrgID:          1,
		SubscriptionID: subscriptionID,
		ToolID:         3,
		DecisionType:   decisiondomain.DecisionTypeCancel,
		Rule:           "zero_usage",
		Confidence:     0.85,
		RiskScore:      0.2,
		RiskLevel:      decisiondomain.RiskLevelLow,
		CurrentSeats:   10,
		Factors:        datatypes.JSON(`[]`),
		Explanation:    "No recorded activity",
		Status:         decisiondomain.DecisionStatusPending,
		Priority:       decisiondomain.PriorityNormal,
		DueDate:        due,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestInsertRejectsSecondPendingDecision(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	r := Provide()

	require.NoError(t, r.Insert(ctx, db, newDecision(10, 2, nil)))
	err := r.Insert(ctx, db, newDecision(11, 2, nil))
	assert.ErrorIs(t, err, decisiondomain.ErrPendingDecisionExists)

	pending, err := r.FindPendingBySubscription(ctx, db, 1, 2)
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, snowflake.ID(10), pending.ID)

	moved, err := r.ChangeStatus(ctx, db, decisiondomain.StatusChange{
		OrgID: 1, DecisionID: 10,
		From: decisiondomain.DecisionStatusPending,
		To:   decisiondomain.DecisionStatusRejected,
		At:   now,
	})
	require.NoError(t, err)
	assert.True(t, moved)

	require.NoError(t, r.Insert(ctx, db, newDecision(11, 2, nil)))
}

func TestFindByIDMissing(t *testing.T) {
	d, err := Provide().FindByID(context.Background(), openDB(t), 1, 99)
	require.NoError(t, err)
	assert.Nil(t, d)
}

func TestChangeStatusIsConditional(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	r := Provide()
	require.NoError(t, r.Insert(ctx, db, newDecision(10, 2, nil)))

	actor := snowflake.ID(77)
	moved, err := r.ChangeStatus(ctx, db, decisiondomain.StatusChange{
		OrgID: 1, DecisionID: 10,
		From:      decisiondomain.DecisionStatusPending,
		To:        decisiondomain.DecisionStatusApproved,
		DecidedBy: &actor,
		At:        now,
	})
	require.NoError(t, err)
	require.True(t, moved)

	moved, err = r.ChangeStatus(ctx, db, decisiondomain.StatusChange{
		OrgID: 1, DecisionID: 10,
		From: decisiondomain.DecisionStatusPending,
		To:   decisiondomain.DecisionStatusRejected,
		At:   now,
	})
	require.NoError(t, err)
	assert.False(t, moved)

	moved, err = r.ChangeStatus(ctx, db, decisiondomain.StatusChange{
		OrgID: 1, DecisionID: 10,
		From: decisiondomain.DecisionStatusApproved,
		To:   decisiondomain.DecisionStatusExecuted,
		At:   now.Add(time.Hour),
	})
	require.NoError(t, err)
	require.True(t, moved)

	d, err := r.FindByID(ctx, db, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, decisiondomain.DecisionStatusExecuted, d.Status)
	require.NotNil(t, d.DecidedBy)
	assert.Equal(t, actor, *d.DecidedBy)
	assert.NotNil(t, d.ExecutedAt)
}

func TestListByStatusOrdersByDueDate(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	r := Provide()

	late := now.Add(30 * 24 * time.Hour)
	soon := now.Add(2 * 24 * time.Hour)
	require.NoError(t, r.Insert(ctx, db, newDecision(10, 2, nil)))
	require.NoError(t, r.Insert(ctx, db, newDecision(11, 3, &late)))
	require.NoError(t, r.Insert(ctx, db, newDecision(12, 4, &soon)))

	items, err := r.ListByStatus(ctx, db, 1, decisiondomain.DecisionStatusPending, 10)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, []snowflake.ID{12, 11, 10}, []snowflake.ID{items[0].ID, items[1].ID, items[2].ID})

	refs, err := r.ListPendingIDs(ctx, db, decisiondomain.PendingQuery{RenewalBefore: now, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, refs, 2)
}

func TestListPendingIDsPagesAndSkipsAnsweredLadders(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	r := Provide()

	renewal := func(subscriptionID snowflake.ID, at time.Time) {
		require.NoError(t, db.Exec(
			`INSERT INTO subscriptions (id, org_id, tool_id, renewal_date, created_at, updated_at)
			 VALUES (?, 1, 3, ?, ?, ?)`,
			subscriptionID, at, now, now,
		).Error)
	}
	answered := func(escalationID, decisionID snowflake.ID) {
		require.NoError(t, db.Exec(
			`INSERT INTO escalations (id, org_id, decision_id, level, channels, recipients, template,
			 scheduled_at, responded_at, response_type, status, created_at, updated_at)
			 VALUES (?, 1, ?, 1, '{}', '{}', 'level1', ?, ?, 'snoozed', 'responded', ?, ?)`,
			escalationID, decisionID, now, now, now, now,
		).Error)
	}

	renewal(2, now.Add(20*24*time.Hour))
	renewal(3, now.Add(-2*24*time.Hour))
	require.NoError(t, r.Insert(ctx, db, newDecision(10, 2, nil)))
	require.NoError(t, r.Insert(ctx, db, newDecision(11, 3, nil)))
	require.NoError(t, r.Insert(ctx, db, newDecision(12, 4, nil)))
	require.NoError(t, r.Insert(ctx, db, newDecision(13, 5, nil)))
	answered(100, 10)
	answered(101, 11)

	// 10 is answered with a renewal ahead; 11 is answered but overdue.
	first, err := r.ListPendingIDs(ctx, db, decisiondomain.PendingQuery{RenewalBefore: now, Limit: 2})
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, []snowflake.ID{11, 12}, []snowflake.ID{first[0].ID, first[1].ID})

	second, err := r.ListPendingIDs(ctx, db, decisiondomain.PendingQuery{AfterID: first[1].ID, RenewalBefore: now, Limit: 2})
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, snowflake.ID(13), second[0].ID)
}
