package realtime

import (
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(h *Hub, userID uuid.UUID) *Client {
	return &Client{ID: uuid.NewString(), UserID: userID, hub: h, send: make(chan WSMessage, 4)}
}

func receive(t *testing.T, c *Client) WSMessage {
	t.Helper()
	select {
	case msg := <-c.send:
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
		return WSMessage{}
	}
}

func TestHub_PushLocal(t *testing.T) {
	h := NewHub(nil, nil, nil)
	alice, bob := uuid.New(), uuid.New()
	a1, a2, b := newTestClient(h, alice), newTestClient(h, alice), newTestClient(h, bob)
	h.Register(a1)
	h.Register(a2)
	h.Register(b)
	assert.Equal(t, 2, h.ConnectionCount(alice))

	h.Push(alice, "notification", map[string]string{"title": "hi"})

	for _, c := range []*Client{a1, a2} {
		msg := receive(t, c)
		assert.Equal(t, "notification", msg.Event)
		assert.JSONEq(t, `{"title":"hi"}`, string(msg.Data))
	}
	assert.Empty(t, b.send)

	h.Unregister(a1)
	h.Unregister(a2)
	assert.Zero(t, h.ConnectionCount(alice))
}

// fakeBus is an in-process stand-in for Redis pub/sub.
type fakeBus struct {
	mu        sync.Mutex
	handlers  map[uuid.UUID]func(string, []byte)
	cancelled map[uuid.UUID]bool
	failPub   bool
}

func newFakeBus() *fakeBus {
	return &fakeBus{handlers: map[uuid.UUID]func(string, []byte){}, cancelled: map[uuid.UUID]bool{}}
}

func (b *fakeBus) PublishUserEvent(userID uuid.UUID, event string, payload []byte) error {
	if b.failPub {
		return errors.New("redis down")
	}
	b.mu.Lock()
	h := b.handlers[userID]
	b.mu.Unlock()
	if h != nil {
		go h(event, payload)
	}
	return nil
}

func (b *fakeBus) SubscribeUser(userID uuid.UUID, handler func(string, []byte)) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[userID] = handler
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers, userID)
		b.cancelled[userID] = true
	}, nil
}

func TestHub_PushViaRedisDeliversOnce(t *testing.T) {
	bus := newFakeBus()
	h := NewHub(nil, bus, bus)
	user := uuid.New()
	c := newTestClient(h, user)
	h.Register(c)

	h.Push(user, "notification", map[string]int{"n": 1})
	assert.Equal(t, "notification", receive(t, c).Event)

	select {
	case <-c.send:
		t.Fatal("message delivered twice")
	case <-time.After(50 * time.Millisecond):
	}

	h.Unregister(c)
	bus.mu.Lock()
	assert.True(t, bus.cancelled[user])
	bus.mu.Unlock()
}

func TestHub_PublishFailureFallsBackToLocal(t *testing.T) {
	bus := newFakeBus()
	bus.failPub = true
	h := NewHub(nil, bus, bus)
	user := uuid.New()
	c := newTestClient(h, user)
	h.Register(c)

	h.Push(user, "notification", map[string]int{"n": 1})
	assert.Equal(t, "notification", receive(t, c).Event)
}

func TestServeWs(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewHub(nil, nil, nil)
	user := uuid.New()
	r := gin.New()
	r.GET("/ws", ServeWs(h, zap.NewNop(), func(token string) (uuid.UUID, error) {
		if token != "good" {
			return uuid.Nil, errors.New("bad token")
		}
		return user, nil
	}))
	srv := httptest.NewServer(r)
	defer srv.Close()
	base := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(base+"?token=bad", nil)
	require.Error(t, err)
	assert.Equal(t, 401, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(base+"?token=good", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return h.ConnectionCount(user) == 1 }, time.Second, 10*time.Millisecond)

	h.Push(user, "notification", map[string]string{"title": "approved"})
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	var msg WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "notification", msg.Event)

	require.NoError(t, conn.WriteJSON(WSMessage{Event: "ping"}))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "pong", msg.Event)
}
