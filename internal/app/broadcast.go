package app

import "sync"

// Gateway fans room-scoped events out to subscribed connections. Publishing
// happens under the gateway lock, so per-room delivery order matches the order
// events were computed in.
type Gateway struct {
	mu    sync.Mutex
	rooms map[string]map[*subscriber]struct{}
}

type subscriber struct {
	connectionID string
	ch           chan Event
}

func NewGateway() *Gateway {
	return &Gateway{rooms: make(map[string]map[*subscriber]struct{})}
}

// Subscribe registers a connection for a room's events. The caller must invoke
// the returned cancel function to avoid leaks; cancel is safe to call twice.
func (g *Gateway) Subscribe(roomID, connectionID string) (<-chan Event, func()) {
	sub := &subscriber{connectionID: connectionID, ch: make(chan Event, 16)}

	g.mu.Lock()
	subs, ok := g.rooms[roomID]
	if !ok {
		subs = make(map[*subscriber]struct{})
		g.rooms[roomID] = subs
	}
	subs[sub] = struct{}{}
	g.mu.Unlock()

	cancel := func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		subs, ok := g.rooms[roomID]
		if !ok {
			return
		}
		if _, ok := subs[sub]; ok {
			delete(subs, sub)
			close(sub.ch)
		}
		if len(subs) == 0 {
			delete(g.rooms, roomID)
		}
	}
	return sub.ch, cancel
}

// Publish delivers events to the room's subscribers, honoring Target and
// Exclude on each event.
func (g *Gateway) Publish(roomID string, events ...Event) {
	g.mu.Lock()
	defer g.mu.Unlock()
	subs, ok := g.rooms[roomID]
	if !ok {
		return
	}
	for _, ev := range events {
		for sub := range subs {
			if ev.Target != "" && sub.connectionID != ev.Target {
				continue
			}
			if ev.Exclude != "" && sub.connectionID == ev.Exclude {
				continue
			}
			select {
			case sub.ch <- ev:
			default:
				// Drop the oldest pending event so a slow client cannot
				// block the room.
				select {
				case <-sub.ch:
				default:
				}
				sub.ch <- ev
			}
		}
	}
}

// Subscribers reports how many connections are subscribed to a room.
func (g *Gateway) Subscribers(roomID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rooms[roomID])
}
