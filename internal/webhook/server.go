// Package webhook exposes the HTTP surface: the transport sidecar posts
// inbound message batches here, and operators can inject outbound messages.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/R-N/wa-bot/internal/domain"
)

const signatureHeader = "X-Signature"

// MessageProcessor consumes an inbound batch in arrival order.
type MessageProcessor interface {
	Process(ctx context.Context, batch []domain.Message)
}

// ReplySink accepts outbound messages for fire-and-forget delivery.
type ReplySink interface {
	Enqueue(chatID, text string)
}

// Server handles the webhook routes.
type Server struct {
	pipeline MessageProcessor
	sink     ReplySink
	secret   string
	logger   *slog.Logger
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithSecret enables HMAC-SHA256 signature verification of request bodies.
func WithSecret(secret string) ServerOption {
	return func(s *Server) { s.secret = secret }
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer wires the webhook routes to pipeline and sink.
func NewServer(pipeline MessageProcessor, sink ReplySink, opts ...ServerOption) (*Server, error) {
	if pipeline == nil || sink == nil {
		return nil, errors.New("webhook: pipeline and sink are required")
	}
	s := &Server{pipeline: pipeline, sink: sink, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/messages", s.handleMessages)
	mux.HandleFunc("/send-message", s.handleSendMessage)
	return mux
}

// Inbound payload, shaped like the transport's message-upsert event.
type upsertPayload struct {
	Type     string           `json:"type"`
	Messages []inboundMessage `json:"messages"`
}

type inboundMessage struct {
	Key struct {
		ID          string `json:"id"`
		RemoteJID   string `json:"remoteJid"`
		Participant string `json:"participant"`
		FromMe      bool   `json:"fromMe"`
	} `json:"key"`
	Message struct {
		Conversation        string `json:"conversation"`
		ExtendedTextMessage *struct {
			Text        string `json:"text"`
			ContextInfo *struct {
				MentionedJID []string `json:"mentionedJid"`
			} `json:"contextInfo"`
		} `json:"extendedTextMessage"`
	} `json:"message"`
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readVerifiedBody(w, r)
	if !ok {
		return
	}

	var payload upsertPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	// Only fresh messages; history syncs and appends are not conversations.
	if payload.Type != "notify" {
		w.Write([]byte("OK"))
		return
	}

	batch := make([]domain.Message, 0, len(payload.Messages))
	for _, m := range payload.Messages {
		batch = append(batch, toDomain(m))
	}
	s.logger.Info("inbound message batch", "request", uuid.NewString(), "count", len(batch))
	s.pipeline.Process(r.Context(), batch)
	w.Write([]byte("OK"))
}

type sendMessageRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readVerifiedBody(w, r)
	if !ok {
		return
	}

	var req sendMessageRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if req.Phone == "" || req.Message == "" {
		http.Error(w, "Missing phone or message", http.StatusBadRequest)
		return
	}

	jid := phoneToJID(req.Phone)
	s.sink.Enqueue(jid, req.Message)
	s.logger.Info("queued operator message", "jid", jid)
	w.Write([]byte("OK"))
}

// readVerifiedBody enforces POST and, when a secret is configured, the
// body's HMAC signature.
func (s *Server) readVerifiedBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return nil, false
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		http.Error(w, "cannot read body", http.StatusBadRequest)
		return nil, false
	}

	if s.secret != "" {
		provided := r.Header.Get(signatureHeader)
		if provided == "" {
			http.Error(w, "Missing signature", http.StatusBadRequest)
			return nil, false
		}
		mac := hmac.New(sha256.New, []byte(s.secret))
		mac.Write(body)
		expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
		if !hmac.Equal([]byte(provided), []byte(expected)) {
			http.Error(w, "Invalid signature", http.StatusForbidden)
			return nil, false
		}
	}
	return body, true
}

func toDomain(m inboundMessage) domain.Message {
	chatID := m.Key.RemoteJID
	groupID := ""
	if strings.Contains(chatID, "@g.us") {
		groupID = chatID
	}
	senderID := m.Key.Participant
	if senderID == "" {
		senderID = chatID
	}

	text := m.Message.Conversation
	var mentioned []string
	if ext := m.Message.ExtendedTextMessage; ext != nil {
		if text == "" {
			text = ext.Text
		}
		if ext.ContextInfo != nil {
			mentioned = ext.ContextInfo.MentionedJID
		}
	}

	return domain.Message{
		ID:           m.Key.ID,
		ChatID:       chatID,
		SenderID:     senderID,
		GroupID:      groupID,
		Text:         text,
		MentionedIDs: mentioned,
		FromSelf:     m.Key.FromMe,
		Broadcast:    strings.HasSuffix(chatID, "@newsletter"),
	}
}

// phoneToJID normalizes an operator-supplied phone number to a chat JID.
func phoneToJID(phone string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)
	return digits + "@s.whatsapp.net"
}
