package generation

import (
	"strings"

	"github.com/R-N/wa-bot/internal/domain"
)

const systemPartSeparator = "\n\n-------\n\n"

// BuildMessages assembles the role-tagged prompt: system instructions plus
// the optional grounding article, then the chat history in causal order.
// History entries map to "user" for participants and "assistant" for the
// agent's own turns.
func BuildMessages(role, article string, history []domain.HistoryEntry) []domain.ChatMessage {
	messages := make([]domain.ChatMessage, 0, len(history)+1)

	if system := buildSystemPrompt(role, article); system != "" {
		messages = append(messages, domain.ChatMessage{Role: domain.RoleSystem, Content: system})
	}

	for _, entry := range history {
		text := strings.TrimSpace(entry.Text)
		if text == "" {
			continue
		}
		messages = append(messages, domain.ChatMessage{
			Role:    historyRole(entry),
			Content: text,
		})
	}
	return messages
}

func buildSystemPrompt(role, article string) string {
	var parts []string
	if role = strings.TrimSpace(role); role != "" {
		parts = append(parts, role)
	}
	if article = strings.TrimSpace(article); article != "" {
		parts = append(parts, "### Artikel:\n"+article)
	}
	return strings.Join(parts, systemPartSeparator)
}

func historyRole(entry domain.HistoryEntry) string {
	if entry.FromAgent() {
		return domain.RoleAssistant
	}
	return domain.RoleUser
}
