package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/R-N/wa-bot/internal/domain"
)

// DefaultTTL is the sliding session window used when no TTL is configured.
const DefaultTTL = 30 * time.Minute

// Manager owns conversation session lifecycle: the addressability decision,
// sliding-TTL refresh, and bounded history accumulation. Store failures are
// logged and degrade to "session not found" semantics; they are never
// surfaced to callers, so one flaky backend read cannot take down message
// processing.
type Manager struct {
	store  Store
	botID  string
	ttl    time.Duration
	logger *slog.Logger
}

// NewManager creates a Manager. A non-positive ttl falls back to DefaultTTL.
func NewManager(store Store, botID string, ttl time.Duration, logger *slog.Logger) (*Manager, error) {
	if store == nil {
		return nil, errors.New("session: store must not be nil")
	}
	if strings.TrimSpace(botID) == "" {
		return nil, errors.New("session: bot id must not be empty")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: store, botID: botID, ttl: ttl, logger: logger}, nil
}

// TTL returns the configured sliding window.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

func sessionKey(k domain.ConversationKey) string {
	if k.GroupID != "" {
		return "chat-session:" + k.GroupID + ":" + k.SenderID
	}
	return "chat-session:private:" + k.SenderID
}

func historyKey(k domain.ConversationKey) string {
	return sessionKey(k) + ":history"
}

// IsAddressable decides whether the agent should process msg. True iff the
// chat is one-to-one, the message mentions the agent, or a non-expired
// session exists for the conversation. Evaluated before the session is
// touched, so a cold unmentioned group message is rejected.
//
// When the store is unreachable, private chats stay addressable (they never
// need the store) and group chats without a mention are rejected, so an
// unknown state never spams an unaddressed group.
func (m *Manager) IsAddressable(ctx context.Context, msg domain.Message) bool {
	if msg.Private() {
		return true
	}
	if msg.Mentions(m.botID) {
		return true
	}

	active, err := m.store.Exists(ctx, sessionKey(msg.Key()))
	if err != nil {
		m.logger.Warn("session store unreachable, treating group message as unaddressed",
			"sender", msg.SenderID, "group", msg.GroupID, "err", err)
		return false
	}
	return active
}

// Touch refreshes (or creates) the session for msg's conversation and
// records the message into history. Call once per processed inbound message,
// after addressability passes and before responders run, so responders see
// the triggering message in history.
func (m *Manager) Touch(ctx context.Context, msg domain.Message) {
	key := msg.Key()
	if err := m.store.PutEx(ctx, sessionKey(key), "active", m.ttl); err != nil {
		m.logger.Error("refresh session marker", "sender", msg.SenderID, "group", msg.GroupID, "err", err)
	}
	m.append(ctx, key, domain.NewHistoryEntry(msg.SenderID, msg.Text))
}

// AppendReply records an agent turn into history and keeps the sliding
// window alive, whether or not the session was already active.
func (m *Manager) AppendReply(ctx context.Context, key domain.ConversationKey, text string) {
	if err := m.store.PutEx(ctx, sessionKey(key), "active", m.ttl); err != nil {
		m.logger.Error("refresh session marker", "sender", key.SenderID, "group", key.GroupID, "err", err)
	}
	m.append(ctx, key, domain.NewHistoryEntry("", text))
}

func (m *Manager) append(ctx context.Context, key domain.ConversationKey, entry domain.HistoryEntry) {
	raw, err := json.Marshal(entry)
	if err != nil {
		m.logger.Error("encode history entry", "err", err)
		return
	}
	hk := historyKey(key)
	if err := m.store.Append(ctx, hk, string(raw)); err != nil {
		m.logger.Error("append history entry", "sender", key.SenderID, "group", key.GroupID, "err", err)
		return
	}
	if err := m.store.Refresh(ctx, hk, m.ttl); err != nil {
		m.logger.Error("refresh history expiry", "sender", key.SenderID, "group", key.GroupID, "err", err)
	}
}

// History returns the conversation history in append order. Store failures
// and undecodable entries degrade to an empty or shortened result.
func (m *Manager) History(ctx context.Context, senderID, groupID string) []domain.HistoryEntry {
	key := domain.ConversationKey{SenderID: senderID, GroupID: groupID}
	raw, err := m.store.List(ctx, historyKey(key))
	if err != nil {
		m.logger.Error("load history", "sender", senderID, "group", groupID, "err", err)
		return nil
	}

	entries := make([]domain.HistoryEntry, 0, len(raw))
	for _, item := range raw {
		var entry domain.HistoryEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			m.logger.Warn("skip undecodable history entry", "err", err)
			continue
		}
		entries = append(entries, entry)
	}
	return entries
}
