package email

import (
	"context"
	"net/smtp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSMTPProviderSend(t *testing.T) {
	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
	)
	p := NewSMTP(Config{Host: "mail.local", Port: 1025, From: "governance@spendwise.local"})
	p.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr = addr
		gotTo = to
		gotMsg = string(msg)
		assert.Nil(t, a)
		return nil
	}

	err := p.Send(context.Background(), []string{"ana@example.com"}, "Review Slack\r\nBcc: x@y", "<p>hi</p>")
	require.NoError(t, err)

	assert.Equal(t, "mail.local:1025", gotAddr)
	assert.Equal(t, []string{"ana@example.com"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: Review Slack  Bcc: x@y\r\n")
	assert.True(t, strings.HasSuffix(gotMsg, "<p>hi</p>"))
}

func TestSMTPProviderRequiresRecipients(t *testing.T) {
	p := NewSMTP(Config{Host: "mail.local", Port: 1025})
	assert.ErrorIs(t, p.Send(context.Background(), nil, "s", "b"), ErrNoRecipients)
}

func TestLogProviderRequiresRecipients(t *testing.T) {
	p := NewLogProvider(zap.NewNop())
	assert.ErrorIs(t, p.Send(context.Background(), nil, "subject", "<p>hi</p>"), ErrNoRecipients)
	assert.NoError(t, p.Send(context.Background(), []string{"ana@example.com"}, "subject", "<p>hi</p>"))
}
