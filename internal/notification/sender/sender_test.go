package sender

import (
	"context"
	"testing"

	"github.com/smallbiznis/spendwise/internal/notification/domain"
	"github.com/smallbiznis/spendwise/internal/providers/sms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSlack struct {
	channel, text string
}

func (r *recordingSlack) PostMessage(ctx context.Context, channelID, message string) error {
	r.channel, r.text = channelID, message
	return nil
}

type recordingEmail struct {
	to      []string
	subject string
}

func (r *recordingEmail) Send(ctx context.Context, to []string, subject, body string) error {
	r.to, r.subject = to, subject
	return nil
}

type recordingPhone struct {
	transport sms.Transport
	phone     string
}

func (r *recordingPhone) Send(ctx context.Context, transport sms.Transport, phone, text string) error {
	r.transport, r.phone = transport, phone
	return nil
}

func TestSlackMentionsRecipient(t *testing.T) {
	p := &recordingSlack{}
	id := "U42"
	err := NewSlack(p).Send(context.Background(), domain.Message{}, domain.Recipient{SlackID: &id}, domain.Rendered{Text: "renewal soon"})
	require.NoError(t, err)
	assert.Equal(t, "U42", p.channel)
	assert.Equal(t, "<@U42> renewal soon", p.text)
}

func TestEmailNeedsAddress(t *testing.T) {
	p := &recordingEmail{}
	s := NewEmail(p)

	err := s.Send(context.Background(), domain.Message{}, domain.Recipient{UserID: 1}, domain.Rendered{})
	assert.ErrorIs(t, err, domain.ErrMissingAddress)

	require.NoError(t, s.Send(context.Background(), domain.Message{}, domain.Recipient{Email: "ana@example.com"}, domain.Rendered{Subject: "s"}))
	assert.Equal(t, []string{"ana@example.com"}, p.to)
}

func TestTextSendersPickTransport(t *testing.T) {
	p := &recordingPhone{}
	phone := "+6281234567"

	require.NoError(t, NewWhatsApp(p).Send(context.Background(), domain.Message{}, domain.Recipient{Phone: &phone}, domain.Rendered{}))
	assert.Equal(t, sms.TransportWhatsApp, p.transport)
	assert.Equal(t, domain.ChannelWhatsApp, NewWhatsApp(p).Channel())

	err := NewSMS(p).Send(context.Background(), domain.Message{}, domain.Recipient{}, domain.Rendered{})
	assert.ErrorIs(t, err, domain.ErrMissingAddress)
}
