package notify

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// discordSession abstracts the discordgo.Session methods we use, enabling
// test mocks.
type discordSession interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Discord posts notifications to a Discord channel.
type Discord struct {
	session   discordSession
	channelID string
}

// NewDiscord creates a Discord notifier for the given bot token and channel.
func NewDiscord(botToken, channelID string) (*Discord, error) {
	if botToken == "" {
		return nil, fmt.Errorf("notify: discord bot token is required")
	}
	if channelID == "" {
		return nil, fmt.Errorf("notify: discord channel id is required")
	}
	session, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return nil, fmt.Errorf("notify: discord session: %w", err)
	}
	return &Discord{session: session, channelID: channelID}, nil
}

func (d *Discord) NotifyAssignment(ctx context.Context, n Assignment) error {
	return d.send(FormatAssignment(n))
}

func (d *Discord) NotifyCompletion(ctx context.Context, n Completion) error {
	return d.send(FormatCompletion(n))
}

func (d *Discord) send(text string) error {
	if _, err := d.session.ChannelMessageSend(d.channelID, text); err != nil {
		return fmt.Errorf("notify: discord send: %w", err)
	}
	return nil
}
