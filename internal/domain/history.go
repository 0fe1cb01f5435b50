package domain

import "time"

// HistoryEntry is one persisted conversation turn. The JSON shape is the
// session store wire format; entries written by the agent itself carry no
// sender id.
type HistoryEntry struct {
	SenderID string `json:"senderId,omitempty"`
	Text     string `json:"message"`
	At       int64  `json:"at"` // unix milliseconds
}

// NewHistoryEntry builds an entry timestamped now. Pass an empty senderID for
// agent turns.
func NewHistoryEntry(senderID, text string) HistoryEntry {
	return HistoryEntry{
		SenderID: senderID,
		Text:     text,
		At:       time.Now().UnixMilli(),
	}
}

// FromAgent reports whether the entry was produced by the agent rather than a
// chat participant.
func (e HistoryEntry) FromAgent() bool {
	return e.SenderID == ""
}
