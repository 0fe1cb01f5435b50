package domain

// Chat roles used when assembling model prompts.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is the provider-agnostic chat message shape sent to the model
// server.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
