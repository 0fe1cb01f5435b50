package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/R-N/wa-bot/internal/domain"
)

type fakePipeline struct {
	batches [][]domain.Message
}

func (f *fakePipeline) Process(_ context.Context, batch []domain.Message) {
	f.batches = append(f.batches, batch)
}

type fakeSink struct {
	chatIDs []string
	texts   []string
}

func (f *fakeSink) Enqueue(chatID, text string) {
	f.chatIDs = append(f.chatIDs, chatID)
	f.texts = append(f.texts, text)
}

func newTestServer(t *testing.T, opts ...ServerOption) (*httptest.Server, *fakePipeline, *fakeSink) {
	t.Helper()
	pipeline := &fakePipeline{}
	sink := &fakeSink{}
	s, err := NewServer(pipeline, sink, opts...)
	require.NoError(t, err)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv, pipeline, sink
}

const groupUpsert = `{
	"type": "notify",
	"messages": [
		{
			"key": {"id": "m1", "remoteJid": "12036@g.us", "participant": "628123@s.whatsapp.net", "fromMe": false},
			"message": {
				"extendedTextMessage": {
					"text": "@bot jam buka?",
					"contextInfo": {"mentionedJid": ["6280000000000@s.whatsapp.net"]}
				}
			}
		}
	]
}`

func TestMessages_ParsesGroupMessage(t *testing.T) {
	srv, pipeline, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/messages", "application/json", strings.NewReader(groupUpsert))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Len(t, pipeline.batches, 1)
	msg := pipeline.batches[0][0]
	require.Equal(t, "m1", msg.ID)
	require.Equal(t, "12036@g.us", msg.ChatID)
	require.Equal(t, "12036@g.us", msg.GroupID)
	require.Equal(t, "628123@s.whatsapp.net", msg.SenderID)
	require.Equal(t, "@bot jam buka?", msg.Text)
	require.Equal(t, []string{"6280000000000@s.whatsapp.net"}, msg.MentionedIDs)
	require.False(t, msg.FromSelf)
	require.False(t, msg.Broadcast)
}

func TestMessages_PrivateConversationField(t *testing.T) {
	srv, pipeline, _ := newTestServer(t)

	payload := `{
		"type": "notify",
		"messages": [
			{"key": {"id": "m2", "remoteJid": "628123@s.whatsapp.net"}, "message": {"conversation": "halo"}}
		]
	}`
	resp, err := http.Post(srv.URL+"/messages", "application/json", strings.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()

	msg := pipeline.batches[0][0]
	require.Equal(t, "628123@s.whatsapp.net", msg.SenderID)
	require.Empty(t, msg.GroupID)
	require.Equal(t, "halo", msg.Text)
}

func TestMessages_NewsletterFlaggedBroadcast(t *testing.T) {
	srv, pipeline, _ := newTestServer(t)

	payload := `{
		"type": "notify",
		"messages": [
			{"key": {"id": "m3", "remoteJid": "99@newsletter"}, "message": {"conversation": "promo"}}
		]
	}`
	resp, err := http.Post(srv.URL+"/messages", "application/json", strings.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.True(t, pipeline.batches[0][0].Broadcast)
}

func TestMessages_IgnoresNonNotifyBatches(t *testing.T) {
	srv, pipeline, _ := newTestServer(t)

	payload := `{"type": "append", "messages": [{"key": {"id": "m4", "remoteJid": "x@s.whatsapp.net"}, "message": {"conversation": "old"}}]}`
	resp, err := http.Post(srv.URL+"/messages", "application/json", strings.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Empty(t, pipeline.batches)
}

func TestMessages_RejectsGet(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/messages")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestSendMessage_NormalizesPhone(t *testing.T) {
	srv, _, sink := newTestServer(t)

	resp, err := http.Post(srv.URL+"/send-message", "application/json",
		strings.NewReader(`{"phone": "+62 812-3456", "message": "halo"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, []string{"628123456@s.whatsapp.net"}, sink.chatIDs)
	require.Equal(t, []string{"halo"}, sink.texts)
}

func TestSendMessage_MissingFields(t *testing.T) {
	srv, _, sink := newTestServer(t)

	resp, err := http.Post(srv.URL+"/send-message", "application/json",
		strings.NewReader(`{"phone": "628123456"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Empty(t, sink.texts)
}

func signBody(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestSignature_ValidAccepted(t *testing.T) {
	srv, pipeline, _ := newTestServer(t, WithSecret("rahasia"))

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/messages", strings.NewReader(groupUpsert))
	require.NoError(t, err)
	req.Header.Set("X-Signature", signBody("rahasia", groupUpsert))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, pipeline.batches, 1)
}

func TestSignature_MissingRejected(t *testing.T) {
	srv, pipeline, _ := newTestServer(t, WithSecret("rahasia"))

	resp, err := http.Post(srv.URL+"/messages", "application/json", strings.NewReader(groupUpsert))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Empty(t, pipeline.batches)
}

func TestSignature_InvalidRejected(t *testing.T) {
	srv, pipeline, _ := newTestServer(t, WithSecret("rahasia"))

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/messages", strings.NewReader(groupUpsert))
	require.NoError(t, err)
	req.Header.Set("X-Signature", signBody("salah", groupUpsert))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Empty(t, pipeline.batches)
}
