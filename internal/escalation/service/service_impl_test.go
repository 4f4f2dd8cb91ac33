package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/spendwise/internal/clock"
	"github.com/smallbiznis/spendwise/internal/config"
	decisiondomain "github.com/smallbiznis/spendwise/internal/decision/domain"
	decisionrepository "github.com/smallbiznis/spendwise/internal/decision/repository"
	escalationdomain "github.com/smallbiznis/spendwise/internal/escalation/domain"
	escalationrepository "github.com/smallbiznis/spendwise/internal/escalation/repository"
	notificationdomain "github.com/smallbiznis/spendwise/internal/notification/domain"
	schedtesting "github.com/smallbiznis/spendwise/internal/scheduler/testing"
	subscriptionrepository "github.com/smallbiznis/spendwise/internal/subscription/repository"
	toolrepository "github.com/smallbiznis/spendwise/internal/tool/repository"
	userrepository "github.com/smallbiznis/spendwise/internal/user/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var t0 = time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

const (
	org = snowflake.ID(900)
	day = 24 * time.Hour
)

type fakeDispatcher struct {
	calls []notificationdomain.Message
	err   error
}

func (f *fakeDispatcher) Dispatch(_ context.Context, msg notificationdomain.Message) ([]notificationdomain.Delivery, error) {
	f.calls = append(f.calls, msg)
	var deliveries []notificationdomain.Delivery
	for _, r := range msg.Recipients {
		for _, c := range msg.Channels {
			deliveries = append(deliveries, notificationdomain.Delivery{Channel: c, UserID: r.UserID, Err: f.err})
		}
	}
	return deliveries, nil
}

type world struct {
	db         *gorm.DB
	svc        escalationdomain.Service
	clock      *clock.FakeClock
	ta         *schedtesting.TimeAccelerator
	fixtures   *schedtesting.Fixtures
	decisions  decisiondomain.Repository
	dispatcher *fakeDispatcher
	node       *snowflake.Node

	ownerID   snowflake.ID
	managerID snowflake.ID
	financeID snowflake.ID
}

func newWorld(t *testing.T) *world {
	t.Helper()
	ctx := context.Background()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, schedtesting.ApplySchema(db))

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)

	w := &world{
		db:         db,
		clock:      clock.NewFakeClock(t0),
		ta:         schedtesting.NewTimeAccelerator(db),
		fixtures:   schedtesting.NewFixtures(db, node, t0),
		decisions:  decisionrepository.Provide(),
		dispatcher: &fakeDispatcher{},
		node:       node,
	}

	w.managerID, err = w.fixtures.User(ctx, org, schedtesting.UserSpec{Name: "manager"})
	require.NoError(t, err)
	w.ownerID, err = w.fixtures.User(ctx, org, schedtesting.UserSpec{Name: "owner", ManagerID: &w.managerID})
	require.NoError(t, err)
	w.financeID, err = w.fixtures.User(ctx, org, schedtesting.UserSpec{Name: "finance", Role: "finance"})
	require.NoError(t, err)

	w.svc = NewService(Params{
		DB:            db,
		Log:           zap.NewNop(),
		GenID:         node,
		Repo:          escalationrepository.Provide(),
		Decisions:     w.decisions,
		Subscriptions: subscriptionrepository.Provide(),
		Tools:         toolrepository.Provide(),
		Users:         userrepository.Provide(),
		Dispatcher:    w.dispatcher,
		Governance:    config.NewStaticGovernanceHolder(config.DefaultGovernancePolicy()),
		Clock:         w.clock,
	})
	return w
}

// decision seeds a subscription owned by the world's owner and a pending
// CANCEL decision for it.
func (w *world) decision(t *testing.T, amountCents int64, renewal *time.Time) *decisiondomain.Decision {
	t.Helper()
	ctx := context.Background()

	toolID, err := w.fixtures.Tool(ctx, org, "Figma")
	require.NoError(t, err)
	subID, err := w.fixtures.Subscription(ctx, org, schedtesting.SubscriptionSpec{
		ToolID:      toolID,
		PaidSeats:   10,
		AmountCents: amountCents,
		RenewalDate: renewal,
		OwnerID:     &w.ownerID,
	})
	require.NoError(t, err)

	d := &decisiondomain.Decision{
		ID:             w.node.Generate(),
		OrgID:          org,
		SubscriptionID: subID,
		ToolID:         toolID,
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
		CreatedAt:      t0,
		UpdatedAt:      t0,
	}
	require.NoError(t, w.decisions.Insert(ctx, w.db, d))
	return d
}

func (w *world) ladder(t *testing.T, decisionID snowflake.ID) []schedtesting.EscalationInfo {
	t.Helper()
	rows, err := w.ta.Escalations(context.Background(), decisionID)
	require.NoError(t, err)
	return rows
}

func (w *world) decisionStatus(t *testing.T, id snowflake.ID) decisiondomain.DecisionStatus {
	t.Helper()
	d, err := w.decisions.FindByID(context.Background(), w.db, org, id)
	require.NoError(t, err)
	require.NotNil(t, d)
	return d.Status
}

func at(d time.Duration) *time.Time {
	ts := t0.Add(d)
	return &ts
}

func TestLadderClimbsToLevelFourAndExpires(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	d := w.decision(t, 600_000, at(20*day))

	opened, err := w.svc.Open(ctx, escalationdomain.OpenRequest{OrgID: org, DecisionID: d.ID})
	require.NoError(t, err)
	require.Equal(t, escalationdomain.OutcomeCreated, opened.Outcome)
	assert.Equal(t, 1, opened.Level)
	assert.Equal(t, []string{w.ownerID.String()}, []string(opened.Escalation.Recipients))
	assert.Equal(t, []string{"in_app", "email"}, []string(opened.Escalation.Channels))

	waiting, err := w.svc.Advance(ctx, org, d.ID)
	require.NoError(t, err)
	assert.Equal(t, escalationdomain.OutcomeNone, waiting.Outcome)
	assert.Equal(t, escalationdomain.ReasonWaiting, waiting.Reason)

	w.clock.Advance(3 * day)
	second, err := w.svc.Advance(ctx, org, d.ID)
	require.NoError(t, err)
	require.Equal(t, escalationdomain.OutcomeCreated, second.Outcome)
	assert.Equal(t, 2, second.Level)

	w.clock.Advance(3 * day)
	third, err := w.svc.Advance(ctx, org, d.ID)
	require.NoError(t, err)
	require.Equal(t, escalationdomain.OutcomeCreated, third.Outcome)
	assert.Equal(t, 3, third.Level)
	assert.ElementsMatch(t, []string{w.managerID.String(), w.financeID.String()}, []string(third.Escalation.Recipients))

	// Renewal is 12 days out, beyond the level 4 window.
	w.clock.Advance(2 * day)
	held, err := w.svc.Advance(ctx, org, d.ID)
	require.NoError(t, err)
	assert.Equal(t, escalationdomain.OutcomeHeld, held.Outcome)
	assert.Equal(t, 3, held.Level)
	assert.Equal(t, escalationdomain.ReasonLevel4Ineligible, held.Reason)

	w.clock.Set(t0.Add(14 * day))
	fourth, err := w.svc.Advance(ctx, org, d.ID)
	require.NoError(t, err)
	require.Equal(t, escalationdomain.OutcomeCreated, fourth.Outcome)
	assert.Equal(t, 4, fourth.Level)
	assert.Equal(t, []string{w.financeID.String()}, []string(fourth.Escalation.Recipients))

	top, err := w.svc.Advance(ctx, org, d.ID)
	require.NoError(t, err)
	assert.Equal(t, escalationdomain.ReasonTopLevel, top.Reason)

	ladder := w.ladder(t, d.ID)
	require.Len(t, ladder, 4)
	for _, rung := range ladder[:3] {
		assert.Equal(t, "failed", rung.Status, "level %d should be superseded", rung.Level)
	}
	assert.Equal(t, "pending", ladder[3].Status)

	w.clock.Set(t0.Add(21 * day))
	expired, err := w.svc.Advance(ctx, org, d.ID)
	require.NoError(t, err)
	assert.Equal(t, escalationdomain.OutcomeExpired, expired.Outcome)
	assert.Equal(t, 4, expired.Level)
	assert.Equal(t, decisiondomain.DecisionStatusExpired, w.decisionStatus(t, d.ID))

	closed, err := w.svc.Advance(ctx, org, d.ID)
	require.NoError(t, err)
	assert.Equal(t, escalationdomain.OutcomeNone, closed.Outcome)
	assert.Equal(t, escalationdomain.ReasonDecisionClosed, closed.Reason)
}

func TestOpenIsIdempotent(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	d := w.decision(t, 100_000, at(90*day))

	first, err := w.svc.Open(ctx, escalationdomain.OpenRequest{OrgID: org, DecisionID: d.ID})
	require.NoError(t, err)
	require.Equal(t, escalationdomain.OutcomeCreated, first.Outcome)

	second, err := w.svc.Open(ctx, escalationdomain.OpenRequest{OrgID: org, DecisionID: d.ID})
	require.NoError(t, err)
	assert.Equal(t, escalationdomain.OutcomeDuplicateLevel, second.Outcome)
	assert.Len(t, w.ladder(t, d.ID), 1)
}

func TestRewoundWaitAdvancesLadder(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	d := w.decision(t, 100_000, at(90*day))

	opened, err := w.svc.Open(ctx, escalationdomain.OpenRequest{OrgID: org, DecisionID: d.ID})
	require.NoError(t, err)

	require.NoError(t, w.ta.RewindEscalation(ctx, opened.Escalation.ID, 3*day))
	next, err := w.svc.Advance(ctx, org, d.ID)
	require.NoError(t, err)
	assert.Equal(t, escalationdomain.OutcomeCreated, next.Outcome)
	assert.Equal(t, 2, next.Level)
}

func TestLevelFourHeldForSmallSubscriptions(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	d := w.decision(t, 499_999, at(90*day))

	_, err := w.svc.Open(ctx, escalationdomain.OpenRequest{OrgID: org, DecisionID: d.ID})
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		w.clock.Advance(3 * day)
		_, err := w.svc.Advance(ctx, org, d.ID)
		require.NoError(t, err)
	}
	require.Len(t, w.ladder(t, d.ID), 3)

	// Renewal is now imminent but the amount stays below the threshold.
	require.NoError(t, w.ta.SetRenewalDate(ctx, d.SubscriptionID, t0.Add(10*day)))
	w.clock.Set(t0.Add(8 * day))
	held, err := w.svc.Advance(ctx, org, d.ID)
	require.NoError(t, err)
	assert.Equal(t, escalationdomain.OutcomeHeld, held.Outcome)
	assert.Len(t, w.ladder(t, d.ID), 3)
}

func TestAdvanceAllSkipsKeepAndSettled(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	open := w.decision(t, 100_000, at(90*day))
	settled := w.decision(t, 100_000, at(90*day))
	_, err := w.decisions.ChangeStatus(ctx, w.db, decisiondomain.StatusChange{
		OrgID: org, DecisionID: settled.ID,
		From: decisiondomain.DecisionStatusPending,
		To:   decisiondomain.DecisionStatusRejected,
		At:   t0,
	})
	require.NoError(t, err)

	results, err := w.svc.AdvanceAll(ctx, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, open.ID, results[0].DecisionID)
	assert.Equal(t, escalationdomain.OutcomeCreated, results[0].Outcome)
	assert.Empty(t, w.ladder(t, settled.ID))
}

func TestRespondApprovedSettlesDecision(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	d := w.decision(t, 100_000, at(90*day))
	opened, err := w.svc.Open(ctx, escalationdomain.OpenRequest{OrgID: org, DecisionID: d.ID})
	require.NoError(t, err)

	req := escalationdomain.RespondRequest{
		OrgID:        org,
		EscalationID: opened.Escalation.ID,
		ActorID:      w.ownerID,
		Response:     escalationdomain.ResponseApproved,
	}
	result, err := w.svc.Respond(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, escalationdomain.StatusResponded, result.Escalation.Status)
	require.NotNil(t, result.Escalation.RespondedBy)
	assert.Equal(t, w.ownerID, *result.Escalation.RespondedBy)
	assert.Equal(t, decisiondomain.DecisionStatusApproved, result.Decision.Status)

	_, err = w.svc.Respond(ctx, req)
	assert.ErrorIs(t, err, escalationdomain.ErrAlreadyResponded)

	w.clock.Advance(10 * day)
	after, err := w.svc.Advance(ctx, org, d.ID)
	require.NoError(t, err)
	assert.Equal(t, escalationdomain.OutcomeNone, after.Outcome)
}

func TestRespondRejected(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	d := w.decision(t, 100_000, at(90*day))
	opened, err := w.svc.Open(ctx, escalationdomain.OpenRequest{OrgID: org, DecisionID: d.ID})
	require.NoError(t, err)

	result, err := w.svc.Respond(ctx, escalationdomain.RespondRequest{
		OrgID:        org,
		EscalationID: opened.Escalation.ID,
		ActorID:      w.ownerID,
		Response:     escalationdomain.ResponseRejected,
	})
	require.NoError(t, err)
	assert.Equal(t, decisiondomain.DecisionStatusRejected, result.Decision.Status)
}

func TestRespondSnoozedStopsLadder(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	d := w.decision(t, 100_000, at(90*day))
	opened, err := w.svc.Open(ctx, escalationdomain.OpenRequest{OrgID: org, DecisionID: d.ID})
	require.NoError(t, err)

	result, err := w.svc.Respond(ctx, escalationdomain.RespondRequest{
		OrgID:        org,
		EscalationID: opened.Escalation.ID,
		ActorID:      w.ownerID,
		Response:     escalationdomain.ResponseSnoozed,
	})
	require.NoError(t, err)
	assert.Equal(t, decisiondomain.DecisionStatusPending, result.Decision.Status)

	w.clock.Advance(5 * day)
	after, err := w.svc.Advance(ctx, org, d.ID)
	require.NoError(t, err)
	assert.Equal(t, escalationdomain.ReasonResponded, after.Reason)
	assert.Len(t, w.ladder(t, d.ID), 1)
}

func TestAdvanceAllExpiresSnoozedDecisionWithoutStarvingOthers(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)

	snoozed := w.decision(t, 100_000, at(10*day))
	opened, err := w.svc.Open(ctx, escalationdomain.OpenRequest{OrgID: org, DecisionID: snoozed.ID})
	require.NoError(t, err)
	_, err = w.svc.Respond(ctx, escalationdomain.RespondRequest{
		OrgID:        org,
		EscalationID: opened.Escalation.ID,
		ActorID:      w.ownerID,
		Response:     escalationdomain.ResponseSnoozed,
	})
	require.NoError(t, err)

	fresh := w.decision(t, 100_000, at(60*day))
	_, err = w.svc.Open(ctx, escalationdomain.OpenRequest{OrgID: org, DecisionID: fresh.ID})
	require.NoError(t, err)

	for tick := 1; tick <= 2; tick++ {
		w.clock.Advance(4 * day)
		results, err := w.svc.AdvanceAll(ctx, 1)
		require.NoError(t, err)
		require.Len(t, results, 1, "tick %d", tick)
		assert.Equal(t, fresh.ID, results[0].DecisionID)
		assert.Equal(t, escalationdomain.OutcomeCreated, results[0].Outcome)
	}
	assert.Len(t, w.ladder(t, fresh.ID), 3)
	assert.Equal(t, decisiondomain.DecisionStatusPending, w.decisionStatus(t, snoozed.ID))

	// Renewal of the snoozed decision passed two days ago.
	w.clock.Advance(4 * day)
	results, err := w.svc.AdvanceAll(ctx, 1)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, snoozed.ID, results[0].DecisionID)
	assert.Equal(t, escalationdomain.OutcomeExpired, results[0].Outcome)
	assert.Equal(t, escalationdomain.ReasonRenewalPassed, results[0].Reason)
	assert.Equal(t, fresh.ID, results[1].DecisionID)
	assert.Equal(t, escalationdomain.OutcomeHeld, results[1].Outcome)

	assert.Equal(t, decisiondomain.DecisionStatusExpired, w.decisionStatus(t, snoozed.ID))
	assert.Len(t, w.ladder(t, snoozed.ID), 1)
}

func TestRespondValidation(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	d := w.decision(t, 100_000, at(90*day))
	opened, err := w.svc.Open(ctx, escalationdomain.OpenRequest{OrgID: org, DecisionID: d.ID})
	require.NoError(t, err)

	_, err = w.svc.Respond(ctx, escalationdomain.RespondRequest{OrgID: org, EscalationID: opened.Escalation.ID, ActorID: 1, Response: "maybe"})
	assert.ErrorIs(t, err, escalationdomain.ErrInvalidResponse)

	_, err = w.svc.Respond(ctx, escalationdomain.RespondRequest{OrgID: org, EscalationID: opened.Escalation.ID, Response: escalationdomain.ResponseApproved})
	assert.ErrorIs(t, err, escalationdomain.ErrInvalidResponder)

	_, err = w.svc.Respond(ctx, escalationdomain.RespondRequest{OrgID: org, EscalationID: 12345, ActorID: 1, Response: escalationdomain.ResponseApproved})
	assert.ErrorIs(t, err, escalationdomain.ErrEscalationNotFound)

	_, err = w.decisions.ChangeStatus(ctx, w.db, decisiondomain.StatusChange{
		OrgID: org, DecisionID: d.ID,
		From: decisiondomain.DecisionStatusPending,
		To:   decisiondomain.DecisionStatusRejected,
		At:   t0,
	})
	require.NoError(t, err)
	_, err = w.svc.Respond(ctx, escalationdomain.RespondRequest{OrgID: org, EscalationID: opened.Escalation.ID, ActorID: 1, Response: escalationdomain.ResponseApproved})
	assert.ErrorIs(t, err, escalationdomain.ErrDecisionClosed)
}

func TestDispatchPendingMarksSent(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	d := w.decision(t, 100_000, at(90*day))
	opened, err := w.svc.Open(ctx, escalationdomain.OpenRequest{OrgID: org, DecisionID: d.ID})
	require.NoError(t, err)

	result, err := w.svc.DispatchPending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, escalationdomain.DispatchResult{Attempted: 1, Sent: 1}, result)

	require.Len(t, w.dispatcher.calls, 1)
	msg := w.dispatcher.calls[0]
	assert.Equal(t, opened.Escalation.ID, msg.EscalationID)
	assert.Equal(t, "Figma", msg.Data.ToolName)
	assert.Equal(t, "decision_review_l1", msg.Template)
	require.Len(t, msg.Recipients, 1)
	assert.Equal(t, "owner@example.com", msg.Recipients[0].Email)

	ladder := w.ladder(t, d.ID)
	assert.Equal(t, "sent", ladder[0].Status)

	again, err := w.svc.DispatchPending(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, again.Attempted)
}

func TestDispatchPendingGivesUpAfterRetries(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	w.dispatcher.err = errors.New("smtp down")
	d := w.decision(t, 100_000, at(90*day))
	_, err := w.svc.Open(ctx, escalationdomain.OpenRequest{OrgID: org, DecisionID: d.ID})
	require.NoError(t, err)

	for i := 0; i < MaxDeliveryAttempts; i++ {
		result, err := w.svc.DispatchPending(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Failed)
	}

	items, err := w.svc.ListByDecision(ctx, org, d.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, escalationdomain.StatusFailed, items[0].Status)
	assert.Equal(t, MaxDeliveryAttempts, items[0].Attempts)
	require.NotNil(t, items[0].LastError)
	assert.Contains(t, *items[0].LastError, "smtp down")
}

func TestDispatchPendingSkipsSettledDecision(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	d := w.decision(t, 100_000, at(90*day))
	_, err := w.svc.Open(ctx, escalationdomain.OpenRequest{OrgID: org, DecisionID: d.ID})
	require.NoError(t, err)
	_, err = w.decisions.ChangeStatus(ctx, w.db, decisiondomain.StatusChange{
		OrgID: org, DecisionID: d.ID,
		From: decisiondomain.DecisionStatusPending,
		To:   decisiondomain.DecisionStatusApproved,
		At:   t0,
	})
	require.NoError(t, err)

	result, err := w.svc.DispatchPending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, escalationdomain.DispatchResult{Attempted: 1, Skipped: 1}, result)
	assert.Empty(t, w.dispatcher.calls)
	assert.Equal(t, "failed", w.ladder(t, d.ID)[0].Status)
}

func TestListByDecisionUnknown(t *testing.T) {
	w := newWorld(t)
	_, err := w.svc.ListByDecision(context.Background(), org, 1)
	assert.ErrorIs(t, err, decisiondomain.ErrDecisionNotFound)
}
