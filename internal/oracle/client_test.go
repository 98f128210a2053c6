package oracle

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/v1/complete", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text": "a short behavioral profile"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key", logrus.New())

	text, err := client.Complete(context.Background(), CompletionRequest{
		Prompt:    "summarize these patterns",
		MaxTokens: 200,
	})
	require.NoError(t, err)
	assert.Equal(t, "a short behavioral profile", text)
}

func TestClient_Complete_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key", logrus.New())

	_, err := client.Complete(context.Background(), CompletionRequest{Prompt: "hi"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestClient_Complete_MalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json at all"))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key", logrus.New())

	_, err := client.Complete(context.Background(), CompletionRequest{Prompt: "hi"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestClient_Complete_EmptyText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"text": "   "}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key", logrus.New())

	_, err := client.Complete(context.Background(), CompletionRequest{Prompt: "hi"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestClient_CompleteWithRetry_RecoversFromTransientFailure(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"text": "recovered"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key", logrus.New())

	text, err := client.CompleteWithRetry(context.Background(), CompletionRequest{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "recovered", text)
	assert.Equal(t, 2, calls)
}

func TestClient_CompleteWithRetry_DoesNotRetryMalformed(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte("garbage"))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key", logrus.New())

	_, err := client.CompleteWithRetry(context.Background(), CompletionRequest{Prompt: "hi"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformed))
	assert.Equal(t, 1, calls)
}
