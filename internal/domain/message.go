package domain

// Message is a single inbound chat message after transport-level extraction.
// It carries only what the dispatch pipeline and responders need; the raw
// wire payload stays in the transport layer.
type Message struct {
	ID           string
	ChatID       string // JID the conversation lives in; replies go here
	SenderID     string
	GroupID      string // empty for one-to-one chats
	Text         string
	MentionedIDs []string
	FromSelf     bool
	Broadcast    bool // newsletter/broadcast channel source
}

// Key derives the conversation identity tuple for session scoping.
// It is stable for the lifetime of the message.
func (m Message) Key() ConversationKey {
	return ConversationKey{SenderID: m.SenderID, GroupID: m.GroupID}
}

// Mentions reports whether the given id appears in the message's mention list.
func (m Message) Mentions(id string) bool {
	if id == "" {
		return false
	}
	for _, jid := range m.MentionedIDs {
		if jid == id {
			return true
		}
	}
	return false
}

// Private reports whether the message belongs to a one-to-one chat.
func (m Message) Private() bool {
	return m.GroupID == ""
}

// ConversationKey identifies one logical conversation thread. Two private
// conversations with the same sender but different groups are distinct.
type ConversationKey struct {
	SenderID string
	GroupID  string
}
