package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub(t *testing.T) (*Hub, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewHub(client, nil), client
}

func waitSubscribed(t *testing.T, client *redis.Client, channel string) {
	t.Helper()
	require.Eventually(t, func() bool {
		counts, err := client.PubSubNumSub(context.Background(), channel).Result()
		return err == nil && counts[channel] > 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStreamDeliversUserAndBroadcastNotifications(t *testing.T) {
	hub, client := newTestHub(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan Notification, 4)
	done := make(chan error, 1)
	go func() {
		done <- hub.Stream(ctx, "u1", func(n Notification) error {
			received <- n
			return nil
		})
	}()
	waitSubscribed(t, client, UserChannel("u1"))

	require.NoError(t, hub.Publish(ctx, Notification{ID: "n1", UserID: "u1", Message: "hello"}))
	require.NoError(t, hub.Publish(ctx, Notification{ID: "n2", UserID: "u2", Message: "not for u1"}))
	require.NoError(t, hub.Broadcast(ctx, Notification{ID: "n3", UserID: "ignored", Message: "everyone"}))

	first := <-received
	assert.Equal(t, "n1", first.ID)
	second := <-received
	assert.Equal(t, "n3", second.ID)
	assert.Empty(t, second.UserID)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not stop")
	}
	assert.Empty(t, received)
}

func TestStreamStopsWhenSendFails(t *testing.T) {
	hub, client := newTestHub(t)
	ctx := context.Background()
	boom := errors.New("client gone")

	done := make(chan error, 1)
	go func() {
		done <- hub.Stream(ctx, "u1", func(Notification) error { return boom })
	}()
	waitSubscribed(t, client, UserChannel("u1"))
	require.NoError(t, hub.Publish(ctx, Notification{ID: "n1", UserID: "u1"}))

	select {
	case err := <-done:
		assert.ErrorIs(t, err, boom)
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not stop")
	}
}

func TestPublishRequiresRecipient(t *testing.T) {
	hub, _ := newTestHub(t)
	assert.Error(t, hub.Publish(context.Background(), Notification{Message: "x"}))
}

func TestServeWebSocket(t *testing.T) {
	hub, client := newTestHub(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWebSocket(w, r, "u1", func(*http.Request) bool { return true })
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	var env Envelope
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, "CONNECTION_ESTABLISHED", env.Type)

	waitSubscribed(t, client, UserChannel("u1"))
	require.NoError(t, hub.Publish(context.Background(), Notification{ID: "n9", UserID: "u1", Message: "Your article was published"}))

	var frame struct {
		Type string       `json:"type"`
		Data Notification `json:"data"`
	}
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &frame))
	assert.Equal(t, "NOTIFICATION", frame.Type)
	assert.Equal(t, "n9", frame.Data.ID)
	assert.Equal(t, "Your article was published", frame.Data.Message)
}
