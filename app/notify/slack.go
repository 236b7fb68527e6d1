package notify

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
)

type SlackPoster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

var _ Notifier = (*SlackNotifier)(nil)

// SlackNotifier posts the payload to a channel. The contract travels as a bracketed prefix on
// the first line, since Slack messages carry no custom metadata.
type SlackNotifier struct {
	client  SlackPoster
	channel string
}

func NewSlackNotifier(token, channel string) *SlackNotifier {
	return NewSlackNotifierWithClient(slack.New(token), channel)
}

func NewSlackNotifierWithClient(client SlackPoster, channel string) *SlackNotifier {
	return &SlackNotifier{client: client, channel: channel}
}

func (s *SlackNotifier) Name() string {
	return "slack:" + s.channel
}

func (s *SlackNotifier) Notify(ctx context.Context, n *Notification) error {
	text := FormatSlackText(n)

	if _, _, err := s.client.PostMessageContext(ctx, s.channel, slack.MsgOptionText(text, false)); err != nil {
		return &DeliveryError{Channel: s.Name(), Err: err}
	}
	return nil
}

func FormatSlackText(n *Notification) string {
	return fmt.Sprintf("[contract=%s version=%d run=%s] %s\n```%s```",
		n.Contract, n.Contract.Version(), n.RunID, n.Subject, n.Payload)
}
