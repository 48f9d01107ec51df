package websocket

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHub_RegisterUnregister(t *testing.T) {
	hub := NewHub(nil)
	a := NewClient("a", nil, hub, 1)
	b := NewClient("b", nil, hub, 1)

	hub.Register(a)
	hub.Register(b)
	assert.Equal(t, 2, hub.Count())
	assert.ElementsMatch(t, []*Client{a, b}, hub.Clients())

	hub.Unregister(a)
	assert.Equal(t, 1, hub.Count())
	assert.True(t, a.Closed())

	// second unregister is harmless
	hub.Unregister(a)
	assert.Equal(t, 1, hub.Count())
}

func TestHub_RegisterReplacesSameID(t *testing.T) {
	hub := NewHub(nil)
	first := NewClient("same", nil, hub, 1)
	second := NewClient("same", nil, hub, 1)

	hub.Register(first)
	hub.Register(second)

	assert.Equal(t, 1, hub.Count())
	assert.True(t, first.Closed())
	assert.False(t, second.Closed())

	// the replaced client going away must not evict its successor
	hub.Unregister(first)
	assert.Equal(t, []*Client{second}, hub.Clients())
}

func TestHub_CloseAll(t *testing.T) {
	hub := NewHub(nil)
	clients := []*Client{
		NewClient("a", nil, hub, 1),
		NewClient("b", nil, hub, 1),
		NewClient("c", nil, hub, 1),
	}
	for _, c := range clients {
		hub.Register(c)
	}

	hub.CloseAll()

	assert.Zero(t, hub.Count())
	for _, c := range clients {
		assert.True(t, c.Closed(), c.ID)
	}
}

func TestClient_Send(t *testing.T) {
	c := NewClient("a", nil, nil, 1)

	assert.NoError(t, c.Send([]byte("one")))
	assert.ErrorIs(t, c.Send([]byte("two")), ErrSlowSubscriber)

	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
	assert.ErrorIs(t, c.Send([]byte("three")), ErrClientClosed)
}

func TestNewClient_DefaultBuffer(t *testing.T) {
	c := NewClient("a", nil, nil, -1)
	assert.Equal(t, DefaultSendBuffer, cap(c.SendChannel))
}
