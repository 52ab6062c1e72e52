package watch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kapu/hololive-widget-go/internal/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientReceivesLabels(t *testing.T) {
	hub := server.NewHub(nil)
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()
	defer hub.Close()

	client := NewClient(Config{
		URL:                  "ws" + strings.TrimPrefix(srv.URL, "http"),
		Target:               "event-7",
		MaxReconnectAttempts: 1,
		ReconnectDelay:       10 * time.Millisecond,
	}, nil)

	var (
		mu       sync.Mutex
		received []server.LabelMessage
	)
	client.OnLabel(func(message server.LabelMessage) {
		mu.Lock()
		received = append(received, message)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- client.Run(ctx) }()

	require.Eventually(t, func() bool { return hub.Subscribers("event-7") == 1 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return client.State() == StateConnected }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, hub.Write(context.Background(), "event-7", "Starts in: 0h 3m"))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, server.LabelMessage{Target: "event-7", Label: "Starts in: 0h 3m"}, received[0])
	mu.Unlock()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, StateDisconnected, client.State())
}

func TestClientGivesUpAfterMaxAttempts(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	client := NewClient(Config{
		URL:                  "ws" + strings.TrimPrefix(srv.URL, "http"),
		Target:               "event-7",
		MaxReconnectAttempts: 2,
		ReconnectDelay:       time.Millisecond,
	}, nil)

	var (
		mu     sync.Mutex
		states []State
	)
	client.OnStateChange(func(state State) {
		mu.Lock()
		states = append(states, state)
		mu.Unlock()
	})

	err := client.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateFailed, client.State())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{
		StateConnecting, StateReconnecting,
		StateConnecting, StateReconnecting,
		StateConnecting, StateFailed,
	}, states)
}

func TestClientRemovesCallbacks(t *testing.T) {
	client := NewClient(Config{}, nil)
	calls := 0
	remove := client.OnLabel(func(server.LabelMessage) { calls++ })

	client.handleMessage([]byte(`{"target":"a","label":"x"}`))
	remove()
	client.handleMessage([]byte(`{"target":"a","label":"y"}`))
	client.handleMessage([]byte(`not json`))

	assert.Equal(t, 1, calls)
}
