package telegram

import (
	"context"
	"errors"
	"testing"

	"github.com/maine/timeline_watch/internal/timeline"
)

func TestRecipientManager_Resolve(t *testing.T) {
	tests := []struct {
		name          string
		state         timeline.State
		autoSubscribe bool
		staticChatIDs []string
		mockFunc      func(ctx context.Context, offset int64, timeout int) ([]Update, error)
		wantErr       bool
		wantCount     int
		wantUpdateID  int64
	}{
		{
			name: "existing recipients without auto-subscribe",
			state: timeline.State{
				Recipients: []timeline.RecipientBinding{
					{ChatID: "123", Name: "user1"},
					{ChatID: "456", Name: "user2"},
				},
			},
			wantCount: 2,
		},
		{
			name:          "static chat ids merged with state",
			staticChatIDs: []string{"123", " 789 ", ""},
			state: timeline.State{
				Recipients: []timeline.RecipientBinding{{ChatID: "123", Name: "user1"}},
			},
			wantCount: 2,
		},
		{
			name:          "auto-subscribe with new user",
			autoSubscribe: true,
			mockFunc: func(ctx context.Context, offset int64, timeout int) ([]Update, error) {
				if offset != 1 {
					return nil, errors.New("unexpected offset")
				}
				return []Update{
					{UpdateID: 1, Message: &Message{Chat: Chat{ID: 123, Type: "private", Username: "testuser"}, Text: "/start"}},
				}, nil
			},
			wantCount:    1,
			wantUpdateID: 1,
		},
		{
			name:          "auto-subscribe error handling",
			autoSubscribe: true,
			mockFunc: func(ctx context.Context, offset int64, timeout int) ([]Update, error) {
				return nil, errors.New("telegram api error")
			},
			wantErr: true,
		},
		{
			name:          "filter invalid updates",
			autoSubscribe: true,
			mockFunc: func(ctx context.Context, offset int64, timeout int) ([]Update, error) {
				return []Update{
					{UpdateID: 1, Message: nil},
					{UpdateID: 2, Message: &Message{Chat: Chat{ID: 0}}},
					{UpdateID: 3, Message: &Message{Chat: Chat{ID: 123, Type: "private", Username: "validuser"}}},
				}, nil
			},
			wantCount:    1,
			wantUpdateID: 3,
		},
		{
			name:          "update LastUpdateID",
			state:         timeline.State{Telegram: timeline.TelegramState{LastUpdateID: 5}},
			autoSubscribe: true,
			mockFunc: func(ctx context.Context, offset int64, timeout int) ([]Update, error) {
				return []Update{
					{UpdateID: 10, Message: &Message{Chat: Chat{ID: 123, Type: "private", Username: "user1"}}},
				}, nil
			},
			wantCount:    1,
			wantUpdateID: 10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &mockTelegramClient{getUpdatesFunc: tt.mockFunc}
			manager := NewRecipientManager(client, tt.autoSubscribe, tt.staticChatIDs)

			state, recipients, err := manager.Resolve(context.Background(), tt.state)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Resolve() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}

			if len(recipients) != tt.wantCount {
				t.Errorf("Resolve() recipients count = %v, want %v", len(recipients), tt.wantCount)
			}
			if len(state.Recipients) != len(recipients) {
				t.Errorf("Resolve() state recipients = %v, want %v", len(state.Recipients), len(recipients))
			}
			if tt.autoSubscribe && state.Telegram.LastUpdateID != tt.wantUpdateID {
				t.Errorf("Resolve() LastUpdateID = %v, want %v", state.Telegram.LastUpdateID, tt.wantUpdateID)
			}
		})
	}
}

func TestRecipientManager_UpdatesFailureKeepsKnownChats(t *testing.T) {
	client := &mockTelegramClient{
		getUpdatesFunc: func(ctx context.Context, offset int64, timeout int) ([]Update, error) {
			return nil, errors.New("telegram api error")
		},
	}
	manager := NewRecipientManager(client, true, []string{"1"})
	original := timeline.State{
		Recipients: []timeline.RecipientBinding{{ChatID: "2", Name: "saved"}},
		Telegram:   timeline.TelegramState{LastUpdateID: 7},
	}

	state, recipients, err := manager.Resolve(context.Background(), original)
	if err == nil {
		t.Fatal("Resolve() should report the getUpdates error")
	}
	if len(recipients) != 2 {
		t.Fatalf("Resolve() recipients = %v, want static and saved chats", recipients)
	}
	if recipients[0].ChatID != "1" || recipients[1].ChatID != "2" {
		t.Errorf("Resolve() recipients order = %v", recipients)
	}
	if state.Telegram.LastUpdateID != 7 {
		t.Errorf("Resolve() LastUpdateID = %v, want 7", state.Telegram.LastUpdateID)
	}
}

func TestRecipientManager_NoClient(t *testing.T) {
	manager := NewRecipientManager(nil, false, []string{"1"})
	if _, _, err := manager.Resolve(context.Background(), timeline.State{}); err == nil {
		t.Error("Resolve() should fail without client")
	}
}

func TestRecipientManager_deriveRecipientName(t *testing.T) {
	tests := []struct {
		name string
		msg  *Message
		want string
	}{
		{
			name: "prefer chat username",
			msg:  &Message{Chat: Chat{Username: "chatuser"}, From: &User{Username: "fromuser"}},
			want: "chatuser",
		},
		{
			name: "use from username if no chat username",
			msg:  &Message{From: &User{Username: "fromuser"}},
			want: "fromuser",
		},
		{
			name: "use chat title",
			msg:  &Message{Chat: Chat{Title: "Group Chat"}},
			want: "Group Chat",
		},
		{
			name: "use first and last name",
			msg:  &Message{Chat: Chat{FirstName: "John", LastName: "Doe"}},
			want: "John Doe",
		},
		{
			name: "fallback to chat ID",
			msg:  &Message{Chat: Chat{ID: 12345}},
			want: "chat-12345",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := deriveRecipientName(tt.msg); got != tt.want {
				t.Errorf("deriveRecipientName() = %v, want %v", got, tt.want)
			}
		})
	}
}
