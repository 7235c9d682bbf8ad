package main

import (
	"slices"
	"strings"
	"sync"
	"time"
)

const (
	maxSessions        = 100
	maxSessionNameLen  = 30
	defaultSessionName = "Sky Patrol"
	sessionIdleTimeout = 2 * time.Minute // empty sessions are reaped after this
)

// Session represents a game session that clients can join
type Session struct {
	ID        string
	Name      string
	Game      *Game
	Hits      *Hitmap
	CreatedAt time.Time
}

// SessionManager handles creation and lookup of sessions
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	base     GameConfig
	writer   *HitWriter
	now      func() time.Time
}

// NewSessionManager creates a SessionManager. Every session's game is built
// from base; writer (optional) persists the hits of all sessions.
func NewSessionManager(base GameConfig, writer *HitWriter) *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*Session),
		base:     base,
		writer:   writer,
		now:      time.Now,
	}
}

// CreateSession creates and starts a new game session. Returns nil if limit reached.
func (sm *SessionManager) CreateSession(name string) *Session {
	name = strings.TrimSpace(name)
	if name == "" {
		name = defaultSessionName
	}
	if len(name) > maxSessionNameLen {
		name = name[:maxSessionNameLen]
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	if len(sm.sessions) >= maxSessions {
		return nil
	}

	id := GenerateUUID()
	hits := NewHitmap(id, sm.writer)
	cfg := sm.base
	cfg.SessionID = id
	cfg.Hits = hits
	game := NewGame(cfg)
	sess := &Session{
		ID:        id,
		Name:      name,
		Game:      game,
		Hits:      hits,
		CreatedAt: sm.now(),
	}
	sm.sessions[id] = sess
	go game.Run()
	return sess
}

// GetSession returns a session by ID
func (sm *SessionManager) GetSession(id string) *Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.sessions[id]
}

// Join attaches c to a live session under the manager's lock, so the
// session cannot be dropped between lookup and attach. It returns a nil
// session when the id is unknown and an empty role when the game is full.
func (sm *SessionManager) Join(sessionID string, c Broadcaster, authPlayerID int64) (*Session, string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sess := sm.sessions[sessionID]
	if sess == nil {
		return nil, ""
	}
	return sess, sess.Game.AddClient(c, authPlayerID)
}

// RemoveClient detaches a client from a session and drops the session
// once nobody is left in it
func (sm *SessionManager) RemoveClient(sessionID string, c Broadcaster) {
	sess := sm.GetSession(sessionID)
	if sess == nil {
		return
	}
	sess.Game.RemoveClient(c)

	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sess.Game.ClientCount() == 0 && sm.sessions[sessionID] == sess {
		sess.Game.Stop()
		delete(sm.sessions, sessionID)
	}
}

// ReapIdle stops sessions that nobody joined within the idle timeout
func (sm *SessionManager) ReapIdle() int {
	cutoff := sm.now().Add(-sessionIdleTimeout)
	sm.mu.Lock()
	defer sm.mu.Unlock()
	n := 0
	for id, sess := range sm.sessions {
		if sess.CreatedAt.Before(cutoff) && sess.Game.ClientCount() == 0 {
			sess.Game.Stop()
			delete(sm.sessions, id)
			n++
		}
	}
	return n
}

// StopAll stops every running session
func (sm *SessionManager) StopAll() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	for id, sess := range sm.sessions {
		sess.Game.Stop()
		delete(sm.sessions, id)
	}
}

// Count returns the number of live sessions
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// ListSessions returns info about all active sessions, oldest first
func (sm *SessionManager) ListSessions() []SessionInfo {
	sm.mu.RLock()
	sessions := make([]*Session, 0, len(sm.sessions))
	for _, sess := range sm.sessions {
		sessions = append(sessions, sess)
	}
	sm.mu.RUnlock()

	slices.SortFunc(sessions, func(a, b *Session) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	list := make([]SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		list = append(list, SessionInfo{
			ID:      sess.ID,
			Name:    sess.Name,
			Clients: sess.Game.ClientCount(),
		})
	}
	return list
}
