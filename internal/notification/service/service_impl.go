package service

import (
	"context"
	"fmt"

	notificationdomain "github.com/smallbiznis/spendwise/internal/notification/domain"
	"github.com/smallbiznis/spendwise/internal/notification/render"
	"github.com/smallbiznis/spendwise/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Renderer *render.Renderer
	Senders  []notificationdomain.Sender `group:"notification.senders"`
	Metrics  *metrics.Metrics            `optional:"true"`
}

// Dispatcher renders a message per recipient and routes it to the sender of
// every requested channel. One failing channel does not stop the others.
type Dispatcher struct {
	log      *zap.Logger
	renderer *render.Renderer
	senders  map[notificationdomain.Channel]notificationdomain.Sender
	metrics  *metrics.Metrics
}

func NewDispatcher(p Params) notificationdomain.Dispatcher {
	senders := make(map[notificationdomain.Channel]notificationdomain.Sender, len(p.Senders))
	for _, s := range p.Senders {
		if s == nil {
			continue
		}
		senders[s.Channel()] = s
	}
	return &Dispatcher{
		log:      p.Log.Named("notification.dispatcher"),
		renderer: p.Renderer,
		senders:  senders,
		metrics:  p.Metrics,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, msg notificationdomain.Message) ([]notificationdomain.Delivery, error) {
	if len(msg.Recipients) == 0 {
		return nil, notificationdomain.ErrNoRecipients
	}
	if !d.renderer.Has(msg.Template) {
		return nil, fmt.Errorf("%s: %w", msg.Template, notificationdomain.ErrUnknownTemplate)
	}

	deliveries := make([]notificationdomain.Delivery, 0, len(msg.Recipients)*len(msg.Channels))
	for _, to := range msg.Recipients {
		data := msg.Data
		data.RecipientName = to.Name
		content, err := d.renderer.Render(msg.Template, data)
		if err != nil {
			return deliveries, fmt.Errorf("render %s: %w", msg.Template, err)
		}

		for _, channel := range msg.Channels {
			delivery := notificationdomain.Delivery{Channel: channel, UserID: to.UserID}
			sender, ok := d.senders[channel]
			if !ok {
				delivery.Err = fmt.Errorf("%s: %w", channel, notificationdomain.ErrNoSender)
			} else {
				delivery.Err = sender.Send(ctx, msg, to, content)
			}

			result := "sent"
			if delivery.Err != nil {
				result = "failed"
				d.log.Warn("notification delivery failed",
					zap.String("escalation_id", msg.EscalationID.String()),
					zap.String("channel", string(channel)),
					zap.String("user_id", to.UserID.String()),
					zap.Error(delivery.Err),
				)
			}
			d.metrics.RecordNotification(ctx, string(channel), result)
			deliveries = append(deliveries, delivery)
		}
	}
	return deliveries, nil
}
