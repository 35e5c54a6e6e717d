package chathub

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mullmine/backend/internal/models"
)

type fakeClient struct {
	id     string
	send   chan models.Event
	closed int
}

func newFakeClient(id string, buffer int) *fakeClient {
	return &fakeClient{id: id, send: make(chan models.Event, buffer)}
}

func (c *fakeClient) GetUserID() string { return c.id }
func (c *fakeClient) Run()              {}
func (c *fakeClient) Close()            { c.closed++ }

func (c *fakeClient) Deliver(evt models.Event) bool {
	if c.closed > 0 {
		return false
	}
	select {
	case c.send <- evt:
		return true
	default:
		return false
	}
}

// nullSource backs the hub with a pattern subscription against a dead
// address; the subscription never yields, which is all these tests need.
type nullSource struct {
	rdb *redis.Client
}

func (s nullSource) SubscribeEvents(ctx context.Context) *redis.PubSub {
	return s.rdb.PSubscribe(ctx, "user:*", "room:*")
}

func testLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{Addr: "localhost:1"})
	h := NewHub(nullSource{rdb: rdb}, testLog())
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(func() {
		cancel()
		rdb.Close()
	})
	return h, cancel
}

func receive(t *testing.T, c *fakeClient) models.Event {
	t.Helper()
	select {
	case evt := <-c.send:
		return evt
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return models.Event{}
	}
}

func TestHub_DeliversToGroupSubscribers(t *testing.T) {
	h, _ := startHub(t)
	member := newFakeClient("member", 4)
	outsider := newFakeClient("outsider", 4)

	h.RegisterCh <- member
	h.RegisterCh <- outsider
	h.Subscribe(member, "room:r1")

	h.deliverCh <- delivery{group: "room:r1", event: models.Event{Type: models.EventNewMessage, RoomID: "r1"}}

	evt := receive(t, member)
	assert.Equal(t, models.EventNewMessage, evt.Type)
	assert.Empty(t, outsider.send)
}

func TestHub_UnsubscribeStopsDelivery(t *testing.T) {
	h, _ := startHub(t)
	client := newFakeClient("u1", 4)

	h.RegisterCh <- client
	h.Subscribe(client, "room:r1")
	h.Unsubscribe(client, "room:r1")

	h.deliverCh <- delivery{group: "room:r1", event: models.Event{Type: models.EventNewMessage}}
	// Force the loop past the delivery before checking.
	h.Subscribe(client, "room:other")

	assert.Empty(t, client.send)
}

func TestHub_SubscribeBeforeRegisterIgnored(t *testing.T) {
	h, _ := startHub(t)
	client := newFakeClient("u1", 4)

	h.Subscribe(client, "room:r1")
	h.deliverCh <- delivery{group: "room:r1", event: models.Event{Type: models.EventNewMessage}}
	h.RegisterCh <- client

	assert.Empty(t, client.send)
}

func TestHub_SlowClientDropsEventNotConnection(t *testing.T) {
	h, _ := startHub(t)
	slow := newFakeClient("slow", 1)

	h.RegisterCh <- slow
	h.Subscribe(slow, "room:r1")

	h.deliverCh <- delivery{group: "room:r1", event: models.Event{Type: models.EventNewMessage, RoomID: "first"}}
	h.deliverCh <- delivery{group: "room:r1", event: models.Event{Type: models.EventNewMessage, RoomID: "second"}}
	// Each roundtrip forces a loop iteration; enough of them drain the
	// buffered deliveries while the client's one-slot buffer is full.
	for i := 0; i < 32; i++ {
		h.Subscribe(slow, "room:other")
	}

	evt := receive(t, slow)
	assert.Equal(t, "first", evt.RoomID)
	assert.Empty(t, slow.send)
	assert.Zero(t, slow.closed)
}

func TestHub_UnregisterClosesOnceAndClearsGroups(t *testing.T) {
	h, _ := startHub(t)
	client := newFakeClient("u1", 4)

	h.RegisterCh <- client
	h.Subscribe(client, "room:r1")
	h.Subscribe(client, "user:u1")

	h.UnregisterCh <- client
	h.UnregisterCh <- client
	// Synchronize: a register of another client proves both unregisters
	// were consumed.
	other := newFakeClient("u2", 4)
	h.RegisterCh <- other

	require.Equal(t, 1, client.closed)

	h.deliverCh <- delivery{group: "room:r1", event: models.Event{Type: models.EventNewMessage}}
	h.Subscribe(other, "room:sync")
	assert.Empty(t, client.send)
}
