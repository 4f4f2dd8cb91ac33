package service

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/snowflake"
	notificationdomain "github.com/smallbiznis/spendwise/internal/notification/domain"
	"github.com/smallbiznis/spendwise/internal/notification/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockSender struct {
	mock.Mock
	channel notificationdomain.Channel
}

func (m *mockSender) Channel() notificationdomain.Channel { return m.channel }

func (m *mockSender) Send(ctx context.Context, msg notificationdomain.Message, to notificationdomain.Recipient, content notificationdomain.Rendered) error {
	args := m.Called(to.UserID, content.Subject)
	return args.Error(0)
}

func newDispatcher(t *testing.T, senders ...notificationdomain.Sender) notificationdomain.Dispatcher {
	t.Helper()
	r, err := render.New()
	require.NoError(t, err)
	return NewDispatcher(Params{Log: zap.NewNop(), Renderer: r, Senders: senders})
}

func TestDispatchFansOutPerRecipientAndChannel(t *testing.T) {
	email := &mockSender{channel: notificationdomain.ChannelEmail}
	inApp := &mockSender{channel: notificationdomain.ChannelInApp}
	email.On("Send", snowflake.ID(1), "Review needed: Figma (cancel)").Return(nil)
	email.On("Send", snowflake.ID(2), "Review needed: Figma (cancel)").Return(errors.New("smtp down"))
	inApp.On("Send", mock.Anything, mock.Anything).Return(nil)

	d := newDispatcher(t, email, inApp)
	deliveries, err := d.Dispatch(context.Background(), notificationdomain.Message{
		EscalationID: 9,
		Template:     "decision_review_l1",
		Channels:     []notificationdomain.Channel{notificationdomain.ChannelInApp, notificationdomain.ChannelEmail},
		Recipients:   []notificationdomain.Recipient{{UserID: 1, Name: "Ana"}, {UserID: 2, Name: "Budi"}},
		Data:         notificationdomain.TemplateData{ToolName: "Figma", DecisionType: "cancel"},
	})
	require.NoError(t, err)

	assert.Len(t, deliveries, 4)
	assert.True(t, notificationdomain.Delivered(deliveries))
	assert.ErrorContains(t, notificationdomain.Failures(deliveries), "smtp down")
	email.AssertExpectations(t)
	inApp.AssertNumberOfCalls(t, "Send", 2)
}

func TestDispatchMissingSenderIsAFailedDelivery(t *testing.T) {
	d := newDispatcher(t)
	deliveries, err := d.Dispatch(context.Background(), notificationdomain.Message{
		Template:   "decision_review_l4",
		Channels:   []notificationdomain.Channel{notificationdomain.ChannelSMS},
		Recipients: []notificationdomain.Recipient{{UserID: 1}},
	})
	require.NoError(t, err)
	require.Len(t, deliveries, 1)
	assert.ErrorIs(t, deliveries[0].Err, notificationdomain.ErrNoSender)
	assert.False(t, notificationdomain.Delivered(deliveries))
}

func TestDispatchValidatesInput(t *testing.T) {
	d := newDispatcher(t)

	_, err := d.Dispatch(context.Background(), notificationdomain.Message{Template: "decision_review_l1"})
	assert.ErrorIs(t, err, notificationdomain.ErrNoRecipients)

	_, err = d.Dispatch(context.Background(), notificationdomain.Message{
		Template:   "nope",
		Recipients: []notificationdomain.Recipient{{UserID: 1}},
	})
	assert.ErrorIs(t, err, notificationdomain.ErrUnknownTemplate)
}
