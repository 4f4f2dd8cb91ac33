// Package sender adapts the outbound providers to notification channels.
package sender

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/spendwise/internal/clock"
	notificationdomain "github.com/smallbiznis/spendwise/internal/notification/domain"
	"github.com/smallbiznis/spendwise/internal/providers/email"
	"github.com/smallbiznis/spendwise/internal/providers/slack"
	"github.com/smallbiznis/spendwise/internal/providers/sms"
	"gorm.io/gorm"
)

type Email struct {
	provider email.Provider
}

func NewEmail(provider email.Provider) *Email {
	return &Email{provider: provider}
}

func (s *Email) Channel() notificationdomain.Channel { return notificationdomain.ChannelEmail }

func (s *Email) Send(ctx context.Context, _ notificationdomain.Message, to notificationdomain.Recipient, content notificationdomain.Rendered) error {
	address := strings.TrimSpace(to.Email)
	if address == "" {
		return fmt.Errorf("email to %s: %w", to.UserID, notificationdomain.ErrMissingAddress)
	}
	return s.provider.Send(ctx, []string{address}, content.Subject, content.HTML)
}

// Slack mentions the recipient when a Slack id is known and falls back to the
// webhook's default channel otherwise.
type Slack struct {
	provider slack.Provider
}

func NewSlack(provider slack.Provider) *Slack {
	return &Slack{provider: provider}
}

func (s *Slack) Channel() notificationdomain.Channel { return notificationdomain.ChannelSlack }

func (s *Slack) Send(ctx context.Context, _ notificationdomain.Message, to notificationdomain.Recipient, content notificationdomain.Rendered) error {
	channelID := ""
	text := content.Text
	if to.SlackID != nil && strings.TrimSpace(*to.SlackID) != "" {
		channelID = strings.TrimSpace(*to.SlackID)
		text = fmt.Sprintf("<@%s> %s", channelID, text)
	}
	return s.provider.PostMessage(ctx, channelID, text)
}

// Text serves both SMS and WhatsApp through the phone provider.
type Text struct {
	channel   notificationdomain.Channel
	transport sms.Transport
	provider  sms.Provider
}

func NewSMS(provider sms.Provider) *Text {
	return &Text{channel: notificationdomain.ChannelSMS, transport: sms.TransportSMS, provider: provider}
}

func NewWhatsApp(provider sms.Provider) *Text {
	return &Text{channel: notificationdomain.ChannelWhatsApp, transport: sms.TransportWhatsApp, provider: provider}
}

func (s *Text) Channel() notificationdomain.Channel { return s.channel }

func (s *Text) Send(ctx context.Context, _ notificationdomain.Message, to notificationdomain.Recipient, content notificationdomain.Rendered) error {
	if to.Phone == nil || strings.TrimSpace(*to.Phone) == "" {
		return fmt.Errorf("%s to %s: %w", s.channel, to.UserID, notificationdomain.ErrMissingAddress)
	}
	return s.provider.Send(ctx, s.transport, *to.Phone, content.Text)
}

// InApp persists an inbox row per recipient.
type InApp struct {
	db    *gorm.DB
	repo  notificationdomain.Repository
	genID *snowflake.Node
	clock clock.Clock
}

func NewInApp(db *gorm.DB, repo notificationdomain.Repository, genID *snowflake.Node, clk clock.Clock) *InApp {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &InApp{db: db, repo: repo, genID: genID, clock: clk}
}

func (s *InApp) Channel() notificationdomain.Channel { return notificationdomain.ChannelInApp }

func (s *InApp) Send(ctx context.Context, msg notificationdomain.Message, to notificationdomain.Recipient, content notificationdomain.Rendered) error {
	return s.repo.InsertInApp(ctx, s.db, &notificationdomain.InAppNotification{
		ID:           s.genID.Generate(),
		OrgID:        msg.OrgID,
		UserID:       to.UserID,
		EscalationID: msg.EscalationID,
		Title:        content.Subject,
		Body:         content.Text,
		CreatedAt:    s.clock.Now(),
	})
}
