package notification

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/spendwise/internal/clock"
	notificationdomain "github.com/smallbiznis/spendwise/internal/notification/domain"
	"github.com/smallbiznis/spendwise/internal/notification/render"
	"github.com/smallbiznis/spendwise/internal/notification/repository"
	"github.com/smallbiznis/spendwise/internal/notification/sender"
	"github.com/smallbiznis/spendwise/internal/notification/service"
	"github.com/smallbiznis/spendwise/internal/providers/email"
	"github.com/smallbiznis/spendwise/internal/providers/slack"
	"github.com/smallbiznis/spendwise/internal/providers/sms"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("notification",
	fx.Provide(repository.Provide),
	fx.Provide(render.New),
	fx.Provide(
		asSender(func(p email.Provider) notificationdomain.Sender { return sender.NewEmail(p) }),
		asSender(func(p slack.Provider) notificationdomain.Sender { return sender.NewSlack(p) }),
		asSender(func(p sms.Provider) notificationdomain.Sender { return sender.NewSMS(p) }),
		asSender(func(p sms.Provider) notificationdomain.Sender { return sender.NewWhatsApp(p) }),
		asSender(func(db *gorm.DB, repo notificationdomain.Repository, genID *snowflake.Node, clk clock.Clock) notificationdomain.Sender {
			return sender.NewInApp(db, repo, genID, clk)
		}),
	),
	fx.Provide(service.NewDispatcher),
)

func asSender(f any) any {
	return fx.Annotate(f, fx.ResultTags(`group:"notification.senders"`))
}
