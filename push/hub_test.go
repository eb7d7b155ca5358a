package push

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, c *client) Message {
	t.Helper()
	select {
	case payload, ok := <-c.send:
		require.True(t, ok, "client channel closed")
		var msg Message
		require.NoError(t, json.Unmarshal(payload, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message received")
		return Message{}
	}
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Close()

	a := &client{hub: hub, send: make(chan []byte, 4)}
	b := &client{hub: hub, send: make(chan []byte, 4)}
	hub.register <- a
	hub.register <- b
	assert.Eventually(t, func() bool { return hub.Clients() == 2 }, time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Send("imagefolderpicker.folder_changed", map[string]string{"folder": "/data"}))

	for _, c := range []*client{a, b} {
		msg := receive(t, c)
		assert.Equal(t, "imagefolderpicker.folder_changed", msg.Type)
		assert.Equal(t, map[string]any{"folder": "/data"}, msg.Data)
	}
}

func TestHubUnregister(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Close()

	c := &client{hub: hub, send: make(chan []byte, 1)}
	hub.register <- c
	hub.unregister <- c
	hub.unregister <- c

	assert.Eventually(t, func() bool { return hub.Clients() == 0 }, time.Second, 10*time.Millisecond)
	_, ok := <-c.send
	assert.False(t, ok)
}

func TestHubDropsSlowClients(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Close()

	slow := &client{hub: hub, send: make(chan []byte)}
	hub.register <- slow
	assert.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Send("event", nil))
	assert.Eventually(t, func() bool { return hub.Clients() == 0 }, time.Second, 10*time.Millisecond)
}

func TestHubSendWithoutClients(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	assert.NoError(t, hub.Send("event", map[string]int{"n": 1}))
	assert.Error(t, hub.Send("event", func() {}), "unmarshalable payload")

	hub.Close()
	hub.Close()
	assert.ErrorIs(t, hub.Send("event", nil), ErrClosed)
}

func TestHubCloseDisconnectsClients(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	c := &client{hub: hub, send: make(chan []byte, 1)}
	hub.register <- c
	hub.Close()

	select {
	case _, ok := <-c.send:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("client not disconnected")
	}
}

func TestUpgradeRejectsPlainHTTP(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Close()

	app := fiber.New()
	app.Use("/ws", Upgrade)
	app.Get("/ws", hub.Handler())

	resp, err := app.Test(httptest.NewRequest("GET", "/ws", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
}
