// Package adminfeed fans out RideRequestEvents to connected ops clients over
// websocket, the live view cmd/serve-admin renders. Adapted from the
// teacher's register/unregister channel Hub, which scoped broadcasts per
// ride; here every connected client gets every event, since ops visibility
// is into the whole system rather than one rider's ride.
package adminfeed

import (
	"context"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/JawadKotaichh/aubus/internal/domain"
)

type Hub struct {
	mu         sync.RWMutex
	conns      map[*websocket.Conn]struct{}
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
}

func NewHub() *Hub {
	return &Hub{
		conns:      make(map[*websocket.Conn]struct{}),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.conns[conn] = struct{}{}
			h.mu.Unlock()
		case conn := <-h.unregister:
			h.mu.Lock()
			delete(h.conns, conn)
			h.mu.Unlock()
			conn.Close()
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS upgrades r into a websocket connection and subscribes it to every
// future event published via Publish, until the client disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("adminfeed: ws upgrade failed: %v", err)
		return
	}
	h.register <- conn

	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				h.unregister <- conn
				return
			}
		}
	}()
}

// Publish satisfies orchestrator.EventSink, broadcasting evt to every
// connected admin client. Writes are synchronous, so a slow client delays
// Publish; a client whose write fails is dropped.
func (h *Hub) Publish(_ context.Context, evt domain.RideRequestEvent) error {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		if err := conn.WriteJSON(evt); err != nil {
			h.unregister <- conn
		}
	}
	return nil
}
