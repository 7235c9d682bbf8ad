package main

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// fakeClient records everything a Game sends to it
type fakeClient struct {
	mu     sync.Mutex
	json   []Envelope
	binary [][]byte
}

func (f *fakeClient) SendJSON(msg interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if env, ok := msg.(Envelope); ok {
		f.json = append(f.json, env)
	}
}

func (f *fakeClient) SendBinary(data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.binary = append(f.binary, append([]byte(nil), data...))
}

func (f *fakeClient) envelopes(t string) []Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Envelope
	for _, env := range f.json {
		if env.T == t {
			out = append(out, env)
		}
	}
	return out
}

type fakeRecorder struct {
	mu   sync.Mutex
	hits [][2]float64
}

func (r *fakeRecorder) Record(x, y float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hits = append(r.hits, [2]float64{x, y})
}

type fakeSink struct {
	mu      sync.Mutex
	records []map[string]interface{}
}

func (s *fakeSink) Enqueue(rec map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
}

type fakeRuns struct {
	ch chan [3]float64
}

func (r *fakeRuns) RecordRun(playerID int64, score, kills int, duration float64) error {
	r.ch <- [3]float64{float64(playerID), float64(score), float64(kills)}
	return nil
}

// quietGame returns a game with no enemies or allies so tests control
// every object on the field
func quietGame(cfg GameConfig) *Game {
	g := NewGame(cfg)
	g.store.Clear()
	g.enemies = nil
	g.allies = nil
	g.player.FireCD = 1e9
	return g
}

func TestNewGameDefaults(t *testing.T) {
	g := NewGame(GameConfig{})
	if w, h := g.FieldSize(); w != DefaultFieldWidth || h != DefaultFieldHeight {
		t.Errorf("field = %vx%v, want %vx%v", w, h, DefaultFieldWidth, DefaultFieldHeight)
	}
	if g.lives != StartLives {
		t.Errorf("lives = %d, want %d", g.lives, StartLives)
	}
	if len(g.enemies) != EnemyWaveSize {
		t.Errorf("enemies = %d, want %d", len(g.enemies), EnemyWaveSize)
	}
	if len(g.allies) != 1 {
		t.Errorf("allies = %d, want 1", len(g.allies))
	}
	if g.store.Index().CellSize() != DefaultCellSize {
		t.Errorf("cell size = %v", g.store.Index().CellSize())
	}
}

func TestGameRoles(t *testing.T) {
	g := NewGame(GameConfig{})
	pilot, spec := &fakeClient{}, &fakeClient{}

	if role := g.AddClient(pilot, 0); role != RolePilot {
		t.Errorf("first client role = %q, want pilot", role)
	}
	if role := g.AddClient(spec, 0); role != RoleSpectator {
		t.Errorf("second client role = %q, want spectator", role)
	}

	g.HandleInput(spec, ClientInput{Left: true})
	if g.player.Input.Left {
		t.Error("spectator input must be ignored")
	}
	g.HandleInput(pilot, ClientInput{Left: true})
	if !g.player.Input.Left {
		t.Error("pilot input not applied")
	}

	g.RemoveClient(pilot)
	if g.player.Input.Left {
		t.Error("departing pilot should release held input")
	}
	next := &fakeClient{}
	if role := g.AddClient(next, 0); role != RolePilot {
		t.Errorf("client after pilot left got %q, want pilot", role)
	}
	if g.ClientCount() != 2 {
		t.Errorf("ClientCount = %d, want 2", g.ClientCount())
	}
}

func TestGameSessionFull(t *testing.T) {
	g := NewGame(GameConfig{})
	for i := 0; i < maxClientsPerSession; i++ {
		if g.AddClient(&fakeClient{}, 0) == "" {
			t.Fatalf("client %d refused", i)
		}
	}
	if role := g.AddClient(&fakeClient{}, 0); role != "" {
		t.Errorf("extra client got role %q", role)
	}
}

func TestGameResize(t *testing.T) {
	g := NewGame(GameConfig{})
	pilot, spec := &fakeClient{}, &fakeClient{}
	g.AddClient(pilot, 0)
	g.AddClient(spec, 0)

	g.Resize(spec, 1000, 1000)
	if w, _ := g.FieldSize(); w != DefaultFieldWidth {
		t.Error("spectator resize must be ignored")
	}
	g.Resize(pilot, 1024, 50)
	if w, h := g.FieldSize(); w != 1024 || h != MinFieldSize {
		t.Errorf("field = %vx%v, want 1024x%v", w, h, MinFieldSize)
	}
	g.Resize(pilot, 1e9, 700)
	if w, _ := g.FieldSize(); w != MaxFieldSize {
		t.Errorf("width = %v, want clamp to %v", w, MaxFieldSize)
	}
}

func TestGamePlayerMovesAndFires(t *testing.T) {
	g := quietGame(GameConfig{})
	g.player.FireCD = 0
	x0 := g.player.X
	g.player.Input = ClientInput{Right: true}

	g.step(0.1)

	if want := x0 + PlayerSpeed*0.1; g.player.X != want {
		t.Errorf("player x = %v, want %v", g.player.X, want)
	}
	snap := g.store.Snapshot()
	if len(snap) != 1 || snap[0].Tag != TagPlayer || snap[0].VY != -PlayerBulletSpeed {
		t.Fatalf("expected one upward player bullet, got %+v", snap)
	}
}

func TestGameGameOver(t *testing.T) {
	hits := &fakeRecorder{}
	sink := &fakeSink{}
	runs := &fakeRuns{ch: make(chan [3]float64, 1)}
	g := quietGame(GameConfig{SessionID: "s1", Hits: hits, Events: sink, Runs: runs})
	c := &fakeClient{}
	g.AddClient(c, 42)
	g.lives = 1
	g.score = 300
	g.kills = 3
	g.store.Spawn(g.player.X, g.player.Y, 0, 0, TagEnemy)

	g.step(1.0 / TickRate)

	over := c.envelopes(MsgGameOver)
	if len(over) != 1 {
		t.Fatalf("expected one gameover message, got %d", len(over))
	}
	msg := over[0].Data.(GameOverMsg)
	if msg.Score != 300 || msg.Kills != 3 {
		t.Errorf("gameover = %+v", msg)
	}
	if g.lives != StartLives || g.score != 0 {
		t.Errorf("field not reset: lives=%d score=%d", g.lives, g.score)
	}
	if len(hits.hits) != 1 {
		t.Errorf("recorded %d hits, want 1", len(hits.hits))
	}

	select {
	case run := <-runs.ch:
		if run[0] != 42 || run[1] != 300 || run[2] != 3 {
			t.Errorf("recorded run = %v", run)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run was not recorded")
	}

	found := false
	for _, rec := range sink.records {
		if rec["event"] == "game_over" && rec["session"] == "s1" {
			found = true
		}
	}
	if !found {
		t.Error("game_over event not enqueued")
	}
}

func TestGameAnonymousRunNotRecorded(t *testing.T) {
	runs := &fakeRuns{ch: make(chan [3]float64, 1)}
	g := quietGame(GameConfig{Runs: runs})
	g.AddClient(&fakeClient{}, 0)
	g.lives = 1
	g.store.Spawn(g.player.X, g.player.Y, 0, 0, TagEnemy)
	g.step(1.0 / TickRate)

	select {
	case run := <-runs.ch:
		t.Errorf("anonymous run recorded: %v", run)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestGameSetPilotAuth(t *testing.T) {
	g := NewGame(GameConfig{})
	pilot, spec := &fakeClient{}, &fakeClient{}
	g.AddClient(pilot, 0)
	g.AddClient(spec, 0)
	g.SetPilotAuth(spec, 9)
	if g.pilotAuthID != 0 {
		t.Error("spectator must not claim the run")
	}
	g.SetPilotAuth(pilot, 7)
	if g.pilotAuthID != 7 {
		t.Errorf("pilotAuthID = %d, want 7", g.pilotAuthID)
	}
}

func TestGameBroadcastState(t *testing.T) {
	g := NewGame(GameConfig{})
	c := &fakeClient{}
	g.AddClient(c, 0)

	for i := 0; i < BroadcastEvery; i++ {
		g.step(1.0 / TickRate)
	}

	if len(c.binary) != 1 {
		t.Fatalf("expected 1 state frame, got %d", len(c.binary))
	}
	var state GameState
	if err := msgpack.Unmarshal(c.binary[0], &state); err != nil {
		t.Fatalf("msgpack: %v", err)
	}
	if state.Lives != StartLives || state.Tick != uint64(BroadcastEvery) {
		t.Errorf("state lives=%d tick=%d", state.Lives, state.Tick)
	}
	if len(state.Enemies) != EnemyWaveSize {
		t.Errorf("state has %d enemies", len(state.Enemies))
	}
	if len(state.Objects) != g.store.Len() {
		t.Errorf("state has %d objects, store has %d", len(state.Objects), g.store.Len())
	}
	for _, o := range state.Objects {
		if o.Tag == "" || o.ID == 0 {
			t.Errorf("malformed object %+v", o)
		}
	}
}

func TestGameNewWaveWhenCleared(t *testing.T) {
	g := quietGame(GameConfig{})
	g.step(1.0 / TickRate)
	if len(g.enemies) != EnemyWaveSize {
		t.Errorf("enemies = %d after clearing the field, want a new wave", len(g.enemies))
	}
}

func TestGameEnemyLeavesField(t *testing.T) {
	g := quietGame(GameConfig{})
	g.enemies = []*Enemy{
		{X: 100, Y: g.height + EnemyExitSlack + 1, VY: 10, ShootCD: 1e9},
		{X: 200, Y: 100, VY: 10, ShootCD: 1e9},
	}
	g.step(1.0 / TickRate)
	if len(g.enemies) != 1 || g.enemies[0].X != 200 {
		t.Errorf("expected only the on-field enemy to remain, got %d", len(g.enemies))
	}
}

func TestGameCollectState(t *testing.T) {
	g := quietGame(GameConfig{SessionID: "abc"})
	for i := 0; i < 8; i++ {
		g.store.Spawn(g.player.X, g.player.Y-float64(i*10), 0, 100, TagEnemy)
	}
	g.player.Input = ClientInput{Up: true}

	rec := g.collectState()
	bullets := rec["nearest_bullets"].([]map[string]interface{})
	if len(bullets) != nearestBulletsLogged {
		t.Fatalf("logged %d bullets, want %d", len(bullets), nearestBulletsLogged)
	}
	if bullets[0]["meta"] != "enemy" || bullets[0]["vy"] != 0.5 {
		t.Errorf("nearest bullet = %v", bullets[0])
	}
	pos := rec["player_pos"].(map[string]float64)
	if pos["x"] != 0.5 {
		t.Errorf("player x normalised = %v, want 0.5", pos["x"])
	}
	if flags := rec["player_input_flags"].(map[string]bool); !flags["up"] || flags["down"] {
		t.Errorf("input flags = %v", flags)
	}
	if rec["session"] != "abc" {
		t.Errorf("session = %v", rec["session"])
	}
	if _, err := json.Marshal(rec); err != nil {
		t.Errorf("state record not JSON-encodable: %v", err)
	}
}

func TestGameRunStop(t *testing.T) {
	g := NewGame(GameConfig{})
	done := make(chan struct{})
	go func() {
		g.Run()
		close(done)
	}()
	time.Sleep(3 * TickDuration)
	g.Stop()
	g.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}
	if g.State().Tick == 0 {
		t.Error("game never ticked")
	}
}
