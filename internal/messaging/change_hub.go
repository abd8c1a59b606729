package messaging

import (
	"log"

	"github.com/ACBRI/veritas.ia/internal/model"

	"github.com/google/uuid"
)

const (
	broadcastBuffer  = 100
	subscriberBuffer = 10
)

type Subscriber struct {
	ID      uuid.UUID
	Channel chan model.ChangeEvent
}

// ChangeHub fans store changes out to stream subscribers. Slow subscribers
// miss events instead of stalling the store.
type ChangeHub struct {
	clients    map[uuid.UUID]*Subscriber
	register   chan *Subscriber
	unregister chan *Subscriber
	broadcast  chan model.ChangeEvent
	done       chan struct{}
}

func NewChangeHub() *ChangeHub {
	return &ChangeHub{
		clients:    make(map[uuid.UUID]*Subscriber),
		register:   make(chan *Subscriber),
		unregister: make(chan *Subscriber),
		broadcast:  make(chan model.ChangeEvent, broadcastBuffer),
		done:       make(chan struct{}),
	}
}

func (h *ChangeHub) Run() {
	for {
		select {
		case <-h.done:
			for id, client := range h.clients {
				close(client.Channel)
				delete(h.clients, id)
			}
			return

		case client := <-h.register:
			h.clients[client.ID] = client

		case client := <-h.unregister:
			if _, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				close(client.Channel)
			}

		case ev := <-h.broadcast:
			for _, client := range h.clients {
				select {
				case client.Channel <- ev:
				default:
					// channel full, skip
				}
			}
		}
	}
}

func (h *ChangeHub) Stop() {
	close(h.done)
}

// Subscribe returns nil once the hub has stopped.
func (h *ChangeHub) Subscribe() *Subscriber {
	client := &Subscriber{
		ID:      uuid.New(),
		Channel: make(chan model.ChangeEvent, subscriberBuffer),
	}
	select {
	case h.register <- client:
		return client
	case <-h.done:
		return nil
	}
}

func (h *ChangeHub) Unsubscribe(client *Subscriber) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Notify implements the store's change notifier.
func (h *ChangeHub) Notify(ev model.ChangeEvent) {
	select {
	case h.broadcast <- ev:
	default:
		log.Printf("hub: broadcast buffer full, dropping %s event", ev.Kind)
	}
}
