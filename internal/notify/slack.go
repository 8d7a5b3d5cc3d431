package notify

import (
	"context"
	"fmt"

	slackapi "github.com/slack-go/slack"
)

// slackClient abstracts the Slack API methods we use, enabling test mocks.
type slackClient interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// Slack posts notifications to a Slack channel.
type Slack struct {
	client    slackClient
	channelID string
}

// NewSlack creates a Slack notifier for the given bot token and channel.
func NewSlack(botToken, channelID string) (*Slack, error) {
	if botToken == "" {
		return nil, fmt.Errorf("notify: slack bot token is required")
	}
	if channelID == "" {
		return nil, fmt.Errorf("notify: slack channel id is required")
	}
	return &Slack{client: slackapi.New(botToken), channelID: channelID}, nil
}

func (s *Slack) NotifyAssignment(ctx context.Context, n Assignment) error {
	return s.post(ctx, FormatAssignment(n))
}

func (s *Slack) NotifyCompletion(ctx context.Context, n Completion) error {
	return s.post(ctx, FormatCompletion(n))
}

func (s *Slack) post(ctx context.Context, text string) error {
	_, _, err := s.client.PostMessageContext(ctx, s.channelID, slackapi.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("notify: slack post: %w", err)
	}
	return nil
}
