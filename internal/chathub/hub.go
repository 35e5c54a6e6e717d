package chathub

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"mullmine/backend/internal/models"
)

// EventSource is the cross-instance event feed the hub consumes.
// *storage.Service satisfies it with a Redis pattern subscription.
type EventSource interface {
	SubscribeEvents(ctx context.Context) *redis.PubSub
}

type subscription struct {
	client Client
	group  string
}

type delivery struct {
	group string
	event models.Event
}

// Hub tracks the connections on this instance and their group
// subscriptions, and routes events arriving on the bus to them. All map
// mutation happens inside Run's loop, so no locking is needed.
type Hub struct {
	RegisterCh   chan Client
	UnregisterCh chan Client

	subscribeCh   chan subscription
	unsubscribeCh chan subscription
	deliverCh     chan delivery

	clients map[Client]struct{}
	// groups maps a bus channel name to the local clients subscribed
	// to it; memberships is the reverse index for cheap unregister.
	groups      map[string]map[Client]struct{}
	memberships map[Client]map[string]struct{}

	source EventSource
	log    *slog.Logger
}

func NewHub(source EventSource, log *slog.Logger) *Hub {
	return &Hub{
		RegisterCh:    make(chan Client),
		UnregisterCh:  make(chan Client),
		subscribeCh:   make(chan subscription),
		unsubscribeCh: make(chan subscription),
		deliverCh:     make(chan delivery, 256),
		clients:       make(map[Client]struct{}),
		groups:        make(map[string]map[Client]struct{}),
		memberships:   make(map[Client]map[string]struct{}),
		source:        source,
		log:           log,
	}
}

// Subscribe attaches a client to a bus group.
func (h *Hub) Subscribe(client Client, group string) {
	h.subscribeCh <- subscription{client: client, group: group}
}

// Unsubscribe detaches a client from a bus group.
func (h *Hub) Unsubscribe(client Client, group string) {
	h.unsubscribeCh <- subscription{client: client, group: group}
}

// Run is the hub's dispatch loop. It returns when ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	go h.listen(ctx)

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.RegisterCh:
			h.clients[client] = struct{}{}
			h.memberships[client] = make(map[string]struct{})

		case client := <-h.UnregisterCh:
			h.drop(client)

		case sub := <-h.subscribeCh:
			if _, ok := h.clients[sub.client]; !ok {
				continue
			}
			if h.groups[sub.group] == nil {
				h.groups[sub.group] = make(map[Client]struct{})
			}
			h.groups[sub.group][sub.client] = struct{}{}
			h.memberships[sub.client][sub.group] = struct{}{}

		case sub := <-h.unsubscribeCh:
			h.leaveGroup(sub.client, sub.group)

		case d := <-h.deliverCh:
			for client := range h.groups[d.group] {
				// Slow or closed consumer: drop the event rather than
				// stall the dispatch loop. Clients re-pull on signal
				// events, so a drop costs a refresh, not state.
				if !client.Deliver(d.event) {
					h.log.Warn("dropping event for slow client",
						slog.String("user_id", client.GetUserID()),
						slog.String("event", d.event.Type))
				}
			}
		}
	}
}

func (h *Hub) drop(client Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	for group := range h.memberships[client] {
		h.leaveGroup(client, group)
	}
	delete(h.memberships, client)
	delete(h.clients, client)
	client.Close()
}

func (h *Hub) leaveGroup(client Client, group string) {
	if members, ok := h.groups[group]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.groups, group)
		}
	}
	if groups, ok := h.memberships[client]; ok {
		delete(groups, group)
	}
}

// listen drains the Redis pattern subscription into the dispatch loop.
// The bus is the only delivery path, local and remote alike, so events
// behave identically with one hub instance or many.
func (h *Hub) listen(ctx context.Context) {
	pubsub := h.source.SubscribeEvents(ctx)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var evt models.Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				h.log.Error("bad event payload", slog.Any("error", err))
				continue
			}
			h.deliverCh <- delivery{group: msg.Channel, event: evt}
		}
	}
}
