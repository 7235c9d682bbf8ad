package main

import (
	"strings"
	"testing"
	"time"
)

func newTestSessions(t *testing.T) *SessionManager {
	t.Helper()
	sm := NewSessionManager(GameConfig{}, nil)
	t.Cleanup(sm.StopAll)
	return sm
}

func TestCreateSession(t *testing.T) {
	sm := newTestSessions(t)
	sess := sm.CreateSession("  Night Run ")
	if sess == nil {
		t.Fatal("CreateSession returned nil")
	}
	if sess.Name != "Night Run" {
		t.Errorf("Name = %q", sess.Name)
	}
	if sess.Game.cfg.SessionID != sess.ID || sess.Game.cfg.Hits != HitRecorder(sess.Hits) {
		t.Error("game not wired to its session")
	}
	if sm.GetSession(sess.ID) != sess {
		t.Error("GetSession did not find the new session")
	}

	if s := sm.CreateSession(""); s.Name != defaultSessionName {
		t.Errorf("empty name = %q, want default", s.Name)
	}
	if s := sm.CreateSession(strings.Repeat("x", 50)); len(s.Name) != maxSessionNameLen {
		t.Errorf("long name kept %d chars", len(s.Name))
	}
}

func TestSessionLimit(t *testing.T) {
	sm := newTestSessions(t)
	for i := 0; i < maxSessions; i++ {
		if sm.CreateSession("s") == nil {
			t.Fatalf("session %d refused", i)
		}
	}
	if sm.CreateSession("one too many") != nil {
		t.Error("limit not enforced")
	}
}

func TestListSessionsOrder(t *testing.T) {
	sm := newTestSessions(t)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	sm.now = func() time.Time { return now }
	for _, name := range []string{"first", "second", "third"} {
		sm.CreateSession(name)
		now = now.Add(time.Second)
	}
	list := sm.ListSessions()
	if len(list) != 3 || list[0].Name != "first" || list[2].Name != "third" {
		t.Errorf("list = %+v", list)
	}
}

func TestRemoveClientDropsEmptySession(t *testing.T) {
	sm := newTestSessions(t)
	sess := sm.CreateSession("s")
	a, b := &fakeClient{}, &fakeClient{}
	sess.Game.AddClient(a, 0)
	sess.Game.AddClient(b, 0)

	sm.RemoveClient(sess.ID, a)
	if sm.GetSession(sess.ID) == nil {
		t.Fatal("session dropped while a client remains")
	}
	sm.RemoveClient(sess.ID, b)
	if sm.GetSession(sess.ID) != nil {
		t.Error("empty session not dropped")
	}
	sm.RemoveClient(sess.ID, b) // unknown session is a no-op
}

func TestReapIdle(t *testing.T) {
	sm := newTestSessions(t)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	sm.now = func() time.Time { return now }
	idle := sm.CreateSession("idle")
	busy := sm.CreateSession("busy")
	busy.Game.AddClient(&fakeClient{}, 0)

	if n := sm.ReapIdle(); n != 0 {
		t.Fatalf("reaped %d fresh sessions", n)
	}
	now = now.Add(sessionIdleTimeout + time.Second)
	if n := sm.ReapIdle(); n != 1 {
		t.Fatalf("reaped %d, want 1", n)
	}
	if sm.GetSession(idle.ID) != nil || sm.GetSession(busy.ID) == nil {
		t.Error("wrong session reaped")
	}
}

func TestJoinUnderLock(t *testing.T) {
	sm := newTestSessions(t)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	sm.now = func() time.Time { return now }
	sess := sm.CreateSession("s")

	got, role := sm.Join(sess.ID, &fakeClient{}, 0)
	if got != sess || role != RolePilot {
		t.Fatalf("Join = %v, %q", got, role)
	}
	now = now.Add(sessionIdleTimeout + time.Second)
	if sm.ReapIdle() != 0 {
		t.Error("joined session reaped")
	}

	sm.StopAll()
	if got, role := sm.Join(sess.ID, &fakeClient{}, 0); got != nil || role != "" {
		t.Errorf("Join on a dropped session = %v, %q", got, role)
	}
	if sess.Game.ClientCount() != 1 {
		t.Error("dropped game gained a client")
	}
}

func TestJoinRacesRemove(t *testing.T) {
	sm := newTestSessions(t)
	for i := 0; i < 50; i++ {
		sess := sm.CreateSession("s")
		first := &fakeClient{}
		sm.Join(sess.ID, first, 0)

		joined := make(chan *Session)
		go func() {
			s, _ := sm.Join(sess.ID, &fakeClient{}, 0)
			joined <- s
		}()
		sm.RemoveClient(sess.ID, first)

		// A successful join must leave a registered session behind
		if s := <-joined; s != nil && sm.GetSession(sess.ID) == nil {
			t.Fatalf("iteration %d: joiner attached to a dropped session", i)
		}
	}
}
