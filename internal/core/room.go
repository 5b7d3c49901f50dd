package core

import "github.com/personly/channels-server/internal/metrics"

// Room groups the sessions currently joined to one channel, used only for
// fan-out targeting.
type Room struct {
	ChannelID string
	clients   map[*Client]struct{}
}

// NewRoom constructs a room with no clients.
func NewRoom(channelID string) *Room {
	return &Room{
		ChannelID: channelID,
		clients:   make(map[*Client]struct{}),
	}
}

// AddClient inserts a client into the room. Returns true if newly added.
func (r *Room) AddClient(c *Client) bool {
	if _, exists := r.clients[c]; exists {
		return false
	}
	r.clients[c] = struct{}{}
	return true
}

// RemoveClient deletes a client from the room. Returns true if removed.
func (r *Room) RemoveClient(c *Client) bool {
	if _, exists := r.clients[c]; !exists {
		return false
	}
	delete(r.clients, c)
	return true
}

// Broadcast sends an event to all clients in the room.
func (r *Room) Broadcast(event *Event) {
	for client := range r.clients {
		select {
		case client.Events <- event:
		default:
			// Drop if slow consumer.
			metrics.EventsDropped.Inc()
		}
	}
}

// BroadcastExcept sends an event to all clients in the room except one.
func (r *Room) BroadcastExcept(event *Event, skip *Client) {
	for client := range r.clients {
		if client == skip {
			continue
		}
		select {
		case client.Events <- event:
		default:
			// Drop if slow consumer.
			metrics.EventsDropped.Inc()
		}
	}
}

// Empty returns true if no clients are in the room.
func (r *Room) Empty() bool {
	return len(r.clients) == 0
}
