package main

import (
	"log"
	"sync"
	"time"
)

const (
	maxConnsPerIP   = 5
	maxTotalConns   = 1000
	reapInterval    = 30 * time.Second
	leaderboardSize = 10
	recentRunsShown = 5
)

// Hub manages all connected clients and routes them to sessions
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	sessions   *SessionManager
	// Connection limiting (mutex-protected, accessed from HTTP handlers)
	connMu     sync.Mutex
	ipConns    map[string]int
	totalConns int
	// Auth & DB, both optional
	db   *DB
	auth *Auth
}

// NewHub creates a new Hub
func NewHub(sessions *SessionManager, db *DB, auth *Auth) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		sessions:   sessions,
		ipConns:    make(map[string]int),
		db:         db,
		auth:       auth,
	}
}

func (h *Hub) CanAccept(ip string) bool {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	if h.totalConns >= maxTotalConns {
		return false
	}
	if h.ipConns[ip] >= maxConnsPerIP {
		return false
	}
	return true
}

func (h *Hub) TrackConnect(ip string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.ipConns[ip]++
	h.totalConns++
}

func (h *Hub) TrackDisconnect(ip string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.ipConns[ip]--
	if h.ipConns[ip] <= 0 {
		delete(h.ipConns, ip)
	}
	h.totalConns--
}

// Run processes register/unregister events and reaps idle sessions
func (h *Hub) Run() {
	reap := time.NewTicker(reapInterval)
	defer reap.Stop()

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			// Remove from session if in one
			if client.sessionID != "" {
				h.sessions.RemoveClient(client.sessionID, client)
			}

		case <-reap.C:
			if n := h.sessions.ReapIdle(); n > 0 {
				log.Printf("hub: reaped %d idle sessions", n)
			}
		}
	}
}

// Leaderboard returns the top pilots, or nil without a database
func (h *Hub) Leaderboard() ([]LeaderboardEntry, error) {
	if h.db == nil {
		return nil, nil
	}
	return h.db.GetLeaderboard(leaderboardSize)
}

// RecentRuns returns a pilot's latest runs, or nil without a database
func (h *Hub) RecentRuns(playerID int64) ([]RunRow, error) {
	if h.db == nil {
		return nil, nil
	}
	return h.db.GetRuns(playerID, recentRunsShown)
}

// StoredHits returns the number of persisted hits of a session
func (h *Hub) StoredHits(sessionID string) (int, error) {
	if h.db == nil {
		return 0, nil
	}
	return h.db.CountHits(sessionID)
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// TotalConns returns the tracked connection count
func (h *Hub) TotalConns() int {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	return h.totalConns
}
