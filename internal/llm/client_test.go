package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplyNoKeyGoesOffline(t *testing.T) {
	c := NewClient("http://unused", "", "test-model")
	got := c.Reply(context.Background(), []Message{{Role: "user", Content: "hi"}})
	assert.Equal(t, OfflineReply, got)
}

func TestReplySuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)

		json.NewEncoder(w).Encode(chatResponse{
			Choices: []struct {
				Message Message `json:"message"`
			}{{Message: Message{Role: "assistant", Content: "hello there"}}},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", "test-model")
	got := c.Reply(context.Background(), []Message{{Role: "user", Content: "hi"}})
	assert.Equal(t, "hello there", got)
}

func TestReplyServerErrorFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "over quota", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", "test-model")
	got := c.Reply(context.Background(), []Message{{Role: "user", Content: "hi"}})
	assert.Equal(t, FallbackReply, got)
}

func TestReplyTimeoutFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", "test-model")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	got := c.Reply(ctx, []Message{{Role: "user", Content: "hi"}})
	assert.Equal(t, FallbackReply, got)
}

func TestReplyMalformedBodyFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", "test-model")
	got := c.Reply(context.Background(), []Message{{Role: "user", Content: "hi"}})
	assert.Equal(t, FallbackReply, got)
}
