package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	escalationdomain "github.com/smallbiznis/spendwise/internal/escalation/domain"
	schedtesting "github.com/smallbiznis/spendwise/internal/scheduler/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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

func escalation(id snowflake.ID, level int, scheduledAt time.Time) *escalationdomain.Escalation {
	return &escalationdomain.Escalation{
		ID:          id,
		OrgID:       1,
		DecisionID:  50,
		Level:       level,
		Channels:    []string{"email"},
		Recipients:  []string{"7"},
		Template:    "decision_review_l1",
		ScheduledAt: scheduledAt,
		Status:      escalationdomain.StatusPending,
		CreatedAt:   scheduledAt,
		UpdatedAt:   scheduledAt,
	}
}

func TestInsertSupersedesLowerLevels(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	r := Provide()

	require.NoError(t, r.Insert(ctx, db, escalation(1, 1, now)))
	require.NoError(t, r.Insert(ctx, db, escalation(2, 2, now.Add(time.Hour))))

	items, err := r.ListByDecision(ctx, db, 1, 50)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, escalationdomain.StatusFailed, items[0].Status)
	require.NotNil(t, items[0].LastError)
	assert.Equal(t, "superseded", *items[0].LastError)
	assert.Equal(t, escalationdomain.StatusPending, items[1].Status)
	assert.Equal(t, []string{"email"}, []string(items[1].Channels))
}

func TestInsertRejectsDuplicateLevel(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	r := Provide()

	require.NoError(t, r.Insert(ctx, db, escalation(1, 1, now)))
	err := r.Insert(ctx, db, escalation(2, 1, now))
	assert.ErrorIs(t, err, escalationdomain.ErrEscalationLevelExists)

	err = r.Insert(ctx, db, escalation(3, 5, now))
	assert.ErrorIs(t, err, escalationdomain.ErrInvalidLevel)
}

func TestListDueAndRecordDelivery(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	r := Provide()

	require.NoError(t, r.Insert(ctx, db, escalation(1, 1, now.Add(time.Hour))))

	due, err := r.ListDue(ctx, db, now, 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	due, err = r.ListDue(ctx, db, now.Add(2*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)

	require.NoError(t, r.RecordDelivery(ctx, db, escalationdomain.DeliveryResult{EscalationID: 1, Err: "timeout", At: now}, 2))
	e, err := r.FindByID(ctx, db, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, escalationdomain.StatusPending, e.Status)
	assert.Equal(t, 1, e.Attempts)

	require.NoError(t, r.RecordDelivery(ctx, db, escalationdomain.DeliveryResult{EscalationID: 1, Delivered: true, At: now}, 2))
	e, err = r.FindByID(ctx, db, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, escalationdomain.StatusSent, e.Status)
	assert.Equal(t, 2, e.Attempts)
	assert.NotNil(t, e.SentAt)
	assert.Nil(t, e.LastError)
}

func TestRecordResponseOnlyOnce(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	r := Provide()
	require.NoError(t, r.Insert(ctx, db, escalation(1, 1, now)))

	record := escalationdomain.ResponseRecord{
		OrgID:        1,
		EscalationID: 1,
		Response:     escalationdomain.ResponseSnoozed,
		RespondedBy:  7,
		At:           now,
	}
	moved, err := r.RecordResponse(ctx, db, record)
	require.NoError(t, err)
	assert.True(t, moved)

	record.Response = escalationdomain.ResponseApproved
	moved, err = r.RecordResponse(ctx, db, record)
	require.NoError(t, err)
	assert.False(t, moved)

	e, err := r.FindByID(ctx, db, 1, 1)
	require.NoError(t, err)
	require.NotNil(t, e.ResponseType)
	assert.Equal(t, escalationdomain.ResponseSnoozed, *e.ResponseType)
	assert.True(t, e.Responded())
}

func TestFindByIDMissing(t *testing.T) {
	e, err := Provide().FindByID(context.Background(), openDB(t), 1, 404)
	require.NoError(t, err)
	assert.Nil(t, e)
}
