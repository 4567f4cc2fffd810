package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/yieldengine/internal/domain"
)

type chanBus struct {
	live      chan []byte
	recent    []domain.StreamMessage
	after     []domain.StreamMessage
	readSince string
}

func (b *chanBus) Publish(context.Context, string, []byte) error { return nil }

func (b *chanBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return b.live, nil
}

func (b *chanBus) StreamAppend(context.Context, string, []byte) error { return nil }

func (b *chanBus) StreamRead(_ context.Context, _ string, lastID string, _ int) ([]domain.StreamMessage, error) {
	b.readSince = lastID
	return b.after, nil
}

func (b *chanBus) StreamRecent(context.Context, string, int) ([]domain.StreamMessage, error) {
	return b.recent, nil
}

func TestHubReplaysThenRelays(t *testing.T) {
	bus := &chanBus{
		live:   make(chan []byte, 1),
		recent: []domain.StreamMessage{{ID: "1-0", Payload: []byte(`{"type":"distribution_completed","run_id":"old"}`)}},
	}
	hub := NewHub(bus, Config{
		Channels:     []string{"distribution"},
		ReplayStream: "stream:distribution",
		Mode:         "full",
	}, slog.New(slog.DiscardHandler))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var hello map[string]any
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "hello", hello["type"])
	assert.Equal(t, "full", hello["mode"])

	_, replayed, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(replayed), `"run_id":"old"`)

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	bus.live <- []byte(`{"type":"distribution_failed","run_id":"new"}`)

	msgType, live, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, msgType)
	var evt map[string]any
	require.NoError(t, json.Unmarshal(live, &evt))
	assert.Equal(t, "new", evt["run_id"])
}

func TestClientSubscriptionControl(t *testing.T) {
	c := &client{subs: map[string]bool{"distribution": true}}
	c.apply(controlMsg{Action: "unsubscribe", Channels: []string{"distribution"}})
	assert.False(t, c.wants("distribution"))
	c.apply(controlMsg{Action: "subscribe", Channels: []string{"distribution"}})
	assert.True(t, c.wants("distribution"))
}

func TestCheckOrigin(t *testing.T) {
	hub := NewHub(&chanBus{}, Config{AllowedOrigins: []string{"https://app.example.com/"}}, slog.New(slog.DiscardHandler))

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, hub.checkOrigin(req), "no origin header")

	req.Header.Set("Origin", "https://app.example.com")
	assert.True(t, hub.checkOrigin(req))

	req.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, hub.checkOrigin(req))
}

func TestReplayResumesFromID(t *testing.T) {
	bus := &chanBus{
		recent: []domain.StreamMessage{{ID: "1-0", Payload: []byte("recent")}},
		after:  []domain.StreamMessage{{ID: "3-0", Payload: []byte("a")}, {ID: "4-0", Payload: []byte("b")}},
	}
	hub := NewHub(bus, Config{ReplayStream: "stream:distribution"}, slog.New(slog.DiscardHandler))

	got := hub.replay(context.Background(), "2-0")
	assert.Equal(t, [][]byte{[]byte("a"), []byte("b")}, got)
	assert.Equal(t, "2-0", bus.readSince)

	got = hub.replay(context.Background(), "")
	assert.Equal(t, [][]byte{[]byte("recent")}, got)
}
