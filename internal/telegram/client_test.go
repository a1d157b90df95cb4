package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_SendMessage(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	c := NewClient("test-token").WithBaseURL(srv.URL)
	err := c.SendMessage(context.Background(), 42, "hello *there*")
	require.NoError(t, err)

	assert.Equal(t, "/bottest-token/sendMessage", gotPath)
	assert.Equal(t, float64(42), gotBody["chat_id"])
	assert.Equal(t, "hello *there*", gotBody["text"])
	assert.Equal(t, "Markdown", gotBody["parse_mode"])
}

func TestClient_SendMessageRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok": false, "description": "chat not found"}`))
	}))
	defer srv.Close()

	c := NewClient("test-token").WithBaseURL(srv.URL)
	err := c.SendMessage(context.Background(), 42, "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
}

func TestClient_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>gateway error</html>"))
	}))
	defer srv.Close()

	c := NewClient("test-token").WithBaseURL(srv.URL)
	assert.Error(t, c.SendMessage(context.Background(), 42, "hello"))
}

func TestUpdate_Accessors(t *testing.T) {
	msg := &Update{Message: &Message{
		From: &User{ID: 7},
		Chat: Chat{ID: 8},
		Text: "hi",
	}}
	assert.Equal(t, int64(7), msg.SenderID())
	assert.Equal(t, int64(8), msg.ChatID())
	assert.Equal(t, "hi", msg.Text())

	cb := &Update{CallbackQuery: &CallbackQuery{
		From:    &User{ID: 7},
		Message: &Message{Chat: Chat{ID: 8}},
		Data:    "main_menu",
	}}
	assert.Equal(t, int64(7), cb.SenderID())
	assert.Equal(t, int64(8), cb.ChatID())
	assert.Equal(t, "main_menu", cb.Text())

	empty := &Update{}
	assert.Zero(t, empty.SenderID())
	assert.Zero(t, empty.ChatID())
	assert.Empty(t, empty.Text())
}
