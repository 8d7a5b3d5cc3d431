package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/discordgo"
)

type mockDiscordSession struct {
	messages []string
	err      error
}

func (m *mockDiscordSession) ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.messages = append(m.messages, content)
	return &discordgo.Message{Content: content}, m.err
}

func TestNewDiscord_Validation(t *testing.T) {
	if _, err := NewDiscord("", "123"); err == nil {
		t.Error("expected error without a token, got nil")
	}
	if _, err := NewDiscord("bot-token", ""); err == nil {
		t.Error("expected error without a channel, got nil")
	}
	if _, err := NewDiscord("bot-token", "123"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestDiscord_SendsMessages(t *testing.T) {
	mock := &mockDiscordSession{}
	d := &Discord{session: mock, channelID: "123"}

	if err := d.NotifyAssignment(context.Background(), Assignment{OrderID: "ORD-1", StageName: "Cutting", WorkerID: "maria"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mock.messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(mock.messages))
	}
}

func TestDiscord_WrapsError(t *testing.T) {
	mock := &mockDiscordSession{err: errors.New("missing access")}
	d := &Discord{session: mock, channelID: "123"}

	if err := d.NotifyCompletion(context.Background(), Completion{OrderID: "ORD-1"}); err == nil {
		t.Fatal("expected error, got nil")
	}
}
