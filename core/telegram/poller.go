package telegram

import (
	"fmt"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/feedbot/core/config"
)

const defaultLongPollTimeout = 10 * time.Second

// WebhookOptions declares webhook listener settings.
type WebhookOptions struct {
	Listen string
	Port   int
	URL    string
}

// PollerOptions configures BuildPoller.
type PollerOptions struct {
	RunMode                string
	LongPollTimeoutSeconds int
	Webhook                WebhookOptions
}

// BuildPoller returns a webhook listener in webhook mode and a long poller
// otherwise.
func BuildPoller(opts PollerOptions) tele.Poller {
	if strings.EqualFold(strings.TrimSpace(opts.RunMode), coreconfig.RunModeWebhook) {
		return &tele.Webhook{
			Listen:   fmt.Sprintf("%s:%d", opts.Webhook.Listen, opts.Webhook.Port),
			Endpoint: &tele.WebhookEndpoint{PublicURL: opts.Webhook.URL},
		}
	}
	return &tele.LongPoller{Timeout: longPollTimeout(opts.LongPollTimeoutSeconds)}
}

func longPollTimeout(seconds int) time.Duration {
	if seconds <= 0 {
		return defaultLongPollTimeout
	}
	return time.Duration(seconds) * time.Second
}

// OnOtherMessage is the endpoint for user messages telebot drops without
// dispatching: polls, forwarded stories and giveaways.
const OnOtherMessage = "\aother_message"

func isOtherMessage(m *tele.Message) bool {
	if m == nil || m.Text != "" {
		return false
	}
	return m.Poll != nil || m.Story != nil || m.Giveaway != nil
}

// otherMessageFilter diverts messages telebot would drop to the
// OnOtherMessage route and lets every other update through.
func otherMessageFilter(bot *tele.Bot, async bool) func(*tele.Update) bool {
	return func(u *tele.Update) bool {
		if !isOtherMessage(u.Message) {
			return true
		}
		c := bot.NewContext(*u)
		run := func() {
			if err := bot.Trigger(OnOtherMessage, c); err != nil {
				bot.OnError(err, c)
			}
		}
		if async {
			go run()
		} else {
			run()
		}
		return false
	}
}

// withOtherMessages wraps p with otherMessageFilter.
func withOtherMessages(bot *tele.Bot, p tele.Poller) tele.Poller {
	return tele.NewMiddlewarePoller(p, otherMessageFilter(bot, true))
}
