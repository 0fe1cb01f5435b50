package kb

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew_Validates(t *testing.T) {
	_, err := New(Config{SpaceID: "space-1"})
	require.Error(t, err)

	_, err = New(Config{BaseURL: "http://kb:3010"})
	require.Error(t, err)
}

func TestFetch_ResolvesArticleAndMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/workspaces/space-1/docs/doc-1/markdown", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"title": "Nasi Goreng",
			"markdown": "Nasi goreng adalah nasi yang digoreng.",
			"properties": {"public": true, "request": "https://forms/req"}
		}`))
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, SpaceID: "space-1"})
	require.NoError(t, err)

	article, err := c.Fetch(context.Background(), "doc-1")
	require.NoError(t, err)
	require.Equal(t, "doc-1", article.ID)
	require.Equal(t, "Nasi Goreng", article.Title)
	require.Equal(t, "Nasi goreng adalah nasi yang digoreng.", article.Content)
	require.True(t, article.Meta.Public)
	require.Equal(t, srv.URL+"/workspace/space-1/doc-1", article.Meta.URL)
	require.Equal(t, "https://forms/req", article.Meta.RequestURL)
}

func TestFetch_UpstreamErrorPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, SpaceID: "space-1"})
	require.NoError(t, err)

	_, err = c.Fetch(context.Background(), "doc-1")
	require.ErrorContains(t, err, "status 502")
}

func TestFetch_SignsInOnceAndSendsCookie(t *testing.T) {
	signIns := 0
	var gotCookie string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/sign-in":
			signIns++
			http.SetCookie(w, &http.Cookie{Name: "affine_session", Value: "s3cret", Path: "/", HttpOnly: true})
		default:
			gotCookie = r.Header.Get("Cookie")
			_, _ = w.Write([]byte(`{"title":"T","markdown":"M","properties":{}}`))
		}
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, SpaceID: "space-1", Email: "bot@example.com", Password: "pw"})
	require.NoError(t, err)

	_, err = c.Fetch(context.Background(), "doc-1")
	require.NoError(t, err)
	_, err = c.Fetch(context.Background(), "doc-2")
	require.NoError(t, err)

	require.Equal(t, 1, signIns, "sign-in must happen once per process")
	require.Equal(t, "affine_session=s3cret", gotCookie)
}

func TestFetch_EmptyID(t *testing.T) {
	c, err := New(Config{BaseURL: "http://kb:3010", SpaceID: "space-1"})
	require.NoError(t, err)

	_, err = c.Fetch(context.Background(), " ")
	require.Error(t, err)
}
