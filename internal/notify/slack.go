package notify

import (
	"context"
	"log/slog"

	"github.com/harunnryd/ivrbridge/internal/errors"

	"github.com/slack-go/slack"
)

type SlackNotifier struct {
	channel string
	client  *slack.Client
}

// NewSlackNotifier posts notices to channel. opts are passed to the Slack client.
func NewSlackNotifier(botToken, channel string, opts ...slack.Option) *SlackNotifier {
	return &SlackNotifier{
		channel: channel,
		client:  slack.New(botToken, opts...),
	}
}

func (s *SlackNotifier) Name() string {
	return "slack"
}

func (s *SlackNotifier) Notify(ctx context.Context, t Transfer) error {
	_, _, err := s.client.PostMessageContext(ctx, s.channel, slack.MsgOptionText(Format(t), false))
	if err != nil {
		return errors.Wrap(err, "failed to send Slack notice")
	}
	slog.Debug("Slack notice sent", "channel", s.channel, "call_id", t.CallID)
	return nil
}

func (s *SlackNotifier) Health(ctx context.Context) error {
	if s.client == nil {
		return errors.Transient("Slack client not initialized")
	}

	if _, err := s.client.AuthTestContext(ctx); err != nil {
		return errors.Transient("Slack connection failed")
	}

	return nil
}
