package modelserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/R-N/wa-bot/internal/domain"
)

type fakeGetter struct {
	val    string
	err    error
	calls  int
	lastNm string
}

func (f *fakeGetter) GetParameter(_ context.Context, name string) (string, error) {
	f.calls++
	f.lastNm = name
	return f.val, f.err
}

func TestURLHelpers(t *testing.T) {
	require.Equal(t, "http://llm:8000/generate", generateURL("http://llm:8000"))
	require.Equal(t, "http://llm:8000/generate", generateURL("http://llm:8000/"))
	require.Equal(t, "http://llm:8000/embed", embedURL("http://llm:8000"))
}

func TestNewClient_EmptyBaseURL(t *testing.T) {
	_, err := NewClient("  ")
	require.Error(t, err)
}

func TestChat_SendsMessagesAndParsesResponse(t *testing.T) {
	var gotPath string
	var gotReq generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		_, _ = w.Write([]byte(`{"response":"Nasi goreng adalah nasi yang digoreng."}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, WithModel("qwen"))
	require.NoError(t, err)

	out, err := c.Chat(context.Background(), []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: "role"},
		{Role: domain.RoleUser, Content: "Apa itu nasi goreng?"},
	})
	require.NoError(t, err)
	require.Equal(t, "Nasi goreng adalah nasi yang digoreng.", out)
	require.Equal(t, "/generate", gotPath)
	require.Equal(t, "qwen", gotReq.Model)
	require.Len(t, gotReq.Messages, 2)
}

func TestChat_ResponseFieldFallbacks(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"result", `{"result":"a"}`, "a"},
		{"reply", `{"reply":"b"}`, "b"},
		{"text", `{"text":"c"}`, "c"},
		{"preference order", `{"text":"c","response":"a"}`, "a"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			c, err := NewClient(srv.URL)
			require.NoError(t, err)

			out, err := c.Chat(context.Background(), []domain.ChatMessage{{Role: domain.RoleUser, Content: "q"}})
			require.NoError(t, err)
			require.Equal(t, tc.want, out)
		})
	}
}

func TestChat_EmptyResponseIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	_, err = c.Chat(context.Background(), []domain.ChatMessage{{Role: domain.RoleUser, Content: "q"}})
	require.Error(t, err)
}

func TestChat_UpstreamStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	_, err = c.Chat(context.Background(), []domain.ChatMessage{{Role: domain.RoleUser, Content: "q"}})
	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
}

func TestEmbed_ReturnsVector(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embed", r.URL.Path)
		_, _ = w.Write([]byte(`{"embedding":[0.1,0.2,0.3]}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	vec, err := c.Embed(context.Background(), "Apa itu nasi goreng?")
	require.NoError(t, err)
	require.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestEmbed_EmptyVectorIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"embedding":[]}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	_, err = c.Embed(context.Background(), "q")
	require.Error(t, err)
}

func TestResolveToken_FetchedOnceFromSSM(t *testing.T) {
	g := &fakeGetter{val: `{"token":"tok-from-ssm"}`}
	c, err := NewClient("http://llm:8000", WithTokenParameter(g, "/wa-bot/llm-token"))
	require.NoError(t, err)

	token, err := c.resolveToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, "tok-from-ssm", token)
	require.Equal(t, "/wa-bot/llm-token", g.lastNm)

	_, _ = c.resolveToken(context.Background())
	_, _ = c.resolveToken(context.Background())
	require.Equal(t, 1, g.calls, "SSM must only be called once per process lifetime")
}

func TestResolveToken_PlainStringParameter(t *testing.T) {
	g := &fakeGetter{val: "plain-token\n"}
	c, err := NewClient("http://llm:8000", WithTokenParameter(g, "/wa-bot/llm-token"))
	require.NoError(t, err)

	token, err := c.resolveToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, "plain-token", token)
}

func TestResolveToken_StaticTokenSkipsSSM(t *testing.T) {
	g := &fakeGetter{err: errors.New("should not be called")}
	c, err := NewClient("http://llm:8000", WithToken("static"), WithTokenParameter(g, "/p"))
	require.NoError(t, err)

	token, err := c.resolveToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, "static", token)
	require.Zero(t, g.calls)
}
