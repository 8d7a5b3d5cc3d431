package notify

import (
	"context"
	"errors"
	"testing"

	slackapi "github.com/slack-go/slack"
)

type mockSlackClient struct {
	channels []string
	count    int
	err      error
}

func (m *mockSlackClient) PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error) {
	m.channels = append(m.channels, channelID)
	m.count++
	return channelID, "", m.err
}

func TestNewSlack_Validation(t *testing.T) {
	if _, err := NewSlack("", "C123"); err == nil {
		t.Error("expected error without a token, got nil")
	}
	if _, err := NewSlack("xoxb-token", ""); err == nil {
		t.Error("expected error without a channel, got nil")
	}
	if _, err := NewSlack("xoxb-token", "C123"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestSlack_PostsToChannel(t *testing.T) {
	mock := &mockSlackClient{}
	s := &Slack{client: mock, channelID: "C123"}

	err := s.NotifyAssignment(context.Background(), Assignment{OrderID: "ORD-1", StageName: "Cutting", WorkerID: "maria"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.NotifyCompletion(context.Background(), Completion{OrderID: "ORD-1", StageName: "Cutting", WorkerID: "maria"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if mock.count != 2 {
		t.Errorf("posts = %d, want 2", mock.count)
	}
	for _, ch := range mock.channels {
		if ch != "C123" {
			t.Errorf("posted to %q, want C123", ch)
		}
	}
}

func TestSlack_WrapsError(t *testing.T) {
	mock := &mockSlackClient{err: errors.New("channel_not_found")}
	s := &Slack{client: mock, channelID: "C123"}

	err := s.NotifyAssignment(context.Background(), Assignment{OrderID: "ORD-1"})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}
