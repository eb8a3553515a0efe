package telegram

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/maine/timeline_watch/internal/timeline"
)

// RecipientManager собирает список получателей: чаты из конфигурации
// плюс чаты, написавшие боту (при включённой автоподписке).
type RecipientManager struct {
	client        TelegramClient
	autoSubscribe bool
	staticChatIDs []string
	now           func() time.Time
}

// NewRecipientManager создаёт менеджер.
func NewRecipientManager(client TelegramClient, auto bool, staticChatIDs []string) *RecipientManager {
	return &RecipientManager{
		client:        client,
		autoSubscribe: auto,
		staticChatIDs: staticChatIDs,
		now:           time.Now,
	}
}

// Resolve обновляет состояние и возвращает актуальный список получателей.
// Если getUpdates не удался, возвращается исходное состояние, список из конфигурации
// и сохранённых чатов, а также ошибка.
func (m *RecipientManager) Resolve(ctx context.Context, state timeline.State) (timeline.State, []timeline.RecipientBinding, error) {
	if m.client == nil {
		return state, nil, fmt.Errorf("telegram client not configured")
	}

	recipients := map[string]timeline.RecipientBinding{}
	for _, r := range state.Recipients {
		if r.ChatID == "" {
			continue
		}
		recipients[r.ChatID] = r
	}
	for _, chatID := range m.staticChatIDs {
		chatID = strings.TrimSpace(chatID)
		if chatID == "" {
			continue
		}
		if _, ok := recipients[chatID]; !ok {
			recipients[chatID] = timeline.RecipientBinding{Name: chatID, ChatID: chatID}
		}
	}

	if m.autoSubscribe {
		updates, err := m.client.GetUpdates(ctx, state.Telegram.LastUpdateID+1, 0)
		if err != nil {
			return state, sortedRecipients(recipients), fmt.Errorf("get updates: %w", err)
		}

		maxUpdateID := state.Telegram.LastUpdateID
		for _, upd := range updates {
			if upd.UpdateID > maxUpdateID {
				maxUpdateID = upd.UpdateID
			}
			if upd.Message == nil || upd.Message.Chat.ID == 0 {
				continue
			}

			chatID := strconv.FormatInt(upd.Message.Chat.ID, 10)
			recipients[chatID] = timeline.RecipientBinding{
				Name:      deriveRecipientName(upd.Message),
				ChatID:    chatID,
				UpdatedAt: m.now(),
			}
		}

		state.Telegram.LastUpdateID = maxUpdateID
	}

	res := sortedRecipients(recipients)
	state.Recipients = res
	state.UpdatedAt = m.now()
	return state, res, nil
}

// sortedRecipients упорядочивает получателей по имени, затем по chat ID.
func sortedRecipients(recipients map[string]timeline.RecipientBinding) []timeline.RecipientBinding {
	res := make([]timeline.RecipientBinding, 0, len(recipients))
	for _, r := range recipients {
		res = append(res, r)
	}

	sort.Slice(res, func(i, j int) bool {
		if res[i].Name != res[j].Name {
			return res[i].Name < res[j].Name
		}
		return res[i].ChatID < res[j].ChatID
	})
	return res
}

func deriveRecipientName(msg *Message) string {
	if msg.Chat.Username != "" {
		return msg.Chat.Username
	}
	if msg.From != nil && msg.From.Username != "" {
		return msg.From.Username
	}
	if msg.Chat.Title != "" {
		return msg.Chat.Title
	}
	if msg.Chat.FirstName != "" || msg.Chat.LastName != "" {
		return strings.TrimSpace(msg.Chat.FirstName + " " + msg.Chat.LastName)
	}
	return fmt.Sprintf("chat-%d", msg.Chat.ID)
}
