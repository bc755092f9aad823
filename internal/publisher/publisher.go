// Package publisher fans out LiveStats snapshots to WebSocket
// subscribers (the UI) without letting any client slow down the
// coordinator's event loop.
package publisher

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// LiveStats is the published snapshot of the peripheral's current
// telemetry, refreshed at or above 1 Hz.
type LiveStats struct {
	SpeedKmh         float64 `json:"speedKmh"`
	PowerW           int     `json:"powerW"`
	CadenceRPM       int     `json:"cadenceRpm"`
	Mode             string  `json:"mode"`
	Gear             string  `json:"gear"`
	TargetCadenceRPM float64 `json:"targetCadenceRpm"`
	Fatigue          float64 `json:"fatigue"`
	Noise            float64 `json:"noise"`
	GradePct         float64 `json:"gradePct"`
	State            string  `json:"state"`
	IsAdvertising    bool    `json:"isAdvertising"`
	SubscriberCount  int     `json:"subscriberCount"`
	LastError        string  `json:"lastError,omitempty"`
	StampMs          int64   `json:"stampMs"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Publisher holds a set of subscribed WebSocket clients and the last
// snapshot pushed, so new connections get an immediate frame.
type Publisher struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
	last    *LiveStats
}

// New returns a Publisher ready to accept WebSocket upgrades.
func New() *Publisher {
	return &Publisher{
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request to a WebSocket and streams LiveStats
// snapshots to it until it disconnects.
func (p *Publisher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[publisher] upgrade error: %v", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, 16)}

	p.mu.Lock()
	p.clients[c] = struct{}{}
	last := p.last
	p.mu.Unlock()

	if last != nil {
		if data, err := json.Marshal(last); err == nil {
			c.send <- data
		}
	}

	go func() {
		defer conn.Close()
		for msg := range c.send {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				break
			}
		}
	}()

	go func() {
		defer func() {
			p.mu.Lock()
			delete(p.clients, c)
			p.mu.Unlock()
			close(c.send)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

// Publish broadcasts a snapshot to every connected subscriber. Slow
// clients are skipped rather than allowed to block the publisher.
func (p *Publisher) Publish(stats LiveStats) {
	data, err := json.Marshal(stats)
	if err != nil {
		return
	}

	p.mu.Lock()
	p.last = &stats
	p.mu.Unlock()

	p.mu.RLock()
	defer p.mu.RUnlock()
	for c := range p.clients {
		select {
		case c.send <- data:
		default:
		}
	}
}

// SubscriberCount reports the number of currently connected clients.
func (p *Publisher) SubscriberCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.clients)
}
