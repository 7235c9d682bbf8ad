package main

import (
	"log"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	TickRate       = 60 // simulation ticks per second
	BroadcastRate  = 30 // state broadcasts per second
	TickDuration   = time.Second / TickRate
	BroadcastEvery = TickRate / BroadcastRate
	LogEvery       = TickRate // one telemetry state record per second
)

const (
	StartLives         = 3
	DefaultFieldWidth  = 800.0
	DefaultFieldHeight = 600.0
	MinFieldSize       = 200.0
	MaxFieldSize       = 4000.0

	BulletTopSlack    = 50.0
	BulletBottomSlack = 50.0
	BulletSideSlack   = 100.0
	EnemyExitSlack    = 50.0

	nearestBulletsLogged = 5
	maxClientsPerSession = 20
)

// Broadcaster interface for sending messages to clients
type Broadcaster interface {
	SendJSON(msg interface{})
	SendBinary(data []byte)
}

// HitRecorder receives the position of every enemy bullet that hits the
// player. Implementations must return immediately.
type HitRecorder interface {
	Record(x, y float64)
}

// EventSink accepts telemetry records for batched delivery
type EventSink interface {
	Enqueue(record map[string]interface{})
}

// RunRecorder persists finished runs for authenticated pilots
type RunRecorder interface {
	RecordRun(playerID int64, score, kills int, duration float64) error
}

// GameConfig wires a Game to its collaborators. Nil collaborators are skipped.
type GameConfig struct {
	SessionID string
	CellSize  float64
	Width     float64
	Height    float64
	Hits      HitRecorder
	Events    EventSink
	Runs      RunRecorder
}

// Game is the tick driver for one session. The object store is only
// touched with mu held, so every tick sees a consistent index.
type Game struct {
	mu      sync.Mutex
	cfg     GameConfig
	store   *ObjectStore
	player  *Player
	enemies []*Enemy
	allies  []*Ally
	width   float64
	height  float64
	score   int
	kills   int
	lives   int
	runTime float64
	tick    uint64
	hitBuf  []Hit // collision query scratch, reused every tick

	clients     map[Broadcaster]bool
	pilot       Broadcaster
	pilotAuthID int64

	stop     chan struct{}
	stopOnce sync.Once
}

// NewGame creates a Game with a fresh field
func NewGame(cfg GameConfig) *Game {
	if cfg.Width <= 0 {
		cfg.Width = DefaultFieldWidth
	}
	if cfg.Height <= 0 {
		cfg.Height = DefaultFieldHeight
	}
	g := &Game{
		cfg:     cfg,
		store:   NewObjectStore(cfg.CellSize),
		width:   cfg.Width,
		height:  cfg.Height,
		clients: make(map[Broadcaster]bool),
		stop:    make(chan struct{}),
	}
	g.reset()
	return g
}

// Run starts the game loop; it returns once Stop is called
func (g *Game) Run() {
	ticker := time.NewTicker(TickDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.update()
		case <-g.stop:
			return
		}
	}
}

// Stop terminates the game loop. It is safe to call more than once.
func (g *Game) Stop() {
	g.stopOnce.Do(func() { close(g.stop) })
}

// AddClient attaches a client. The first client becomes the pilot, later
// ones spectate. Returns "" when the session is full.
func (g *Game) AddClient(c Broadcaster, authPlayerID int64) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.clients) >= maxClientsPerSession {
		return ""
	}
	g.clients[c] = true
	if g.pilot == nil {
		g.pilot = c
		g.pilotAuthID = authPlayerID
		return RolePilot
	}
	return RoleSpectator
}

// RemoveClient detaches a client; a departing pilot hands control to nobody
func (g *Game) RemoveClient(c Broadcaster) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.clients, c)
	if g.pilot == c {
		g.pilot = nil
		g.pilotAuthID = 0
		g.player.Input = ClientInput{}
	}
}

// SetPilotAuth attributes future runs to an authenticated account when c
// is the pilot
func (g *Game) SetPilotAuth(c Broadcaster, authPlayerID int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c == g.pilot {
		g.pilotAuthID = authPlayerID
	}
}

// ClientCount returns the number of attached clients
func (g *Game) ClientCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.clients)
}

// HandleInput applies input from the pilot; other clients are ignored
func (g *Game) HandleInput(c Broadcaster, input ClientInput) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c != g.pilot {
		return
	}
	g.player.Input = input
}

// Resize changes the play-field extent when requested by the pilot
func (g *Game) Resize(c Broadcaster, w, h float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c != g.pilot || math.IsNaN(w) || math.IsNaN(h) {
		return
	}
	g.width = Clamp(w, MinFieldSize, MaxFieldSize)
	g.height = Clamp(h, MinFieldSize, MaxFieldSize)
}

// FieldSize returns the current play-field extent
func (g *Game) FieldSize() (float64, float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.width, g.height
}

// bounds returns the bullet culling rectangle for the current field
func (g *Game) bounds() Bounds {
	return Bounds{
		Width:       g.width,
		Height:      g.height,
		TopSlack:    BulletTopSlack,
		BottomSlack: BulletBottomSlack,
		SideSlack:   BulletSideSlack,
	}
}

// reset clears the field for a new run
func (g *Game) reset() {
	g.store.Clear()
	var held ClientInput
	if g.player != nil {
		held = g.player.Input
	}
	g.player = NewPlayer(g.width, g.height)
	g.player.Input = held
	g.allies = []*Ally{NewAlly(g.player)}
	g.enemies = g.enemies[:0]
	g.spawnWave()
	g.score = 0
	g.kills = 0
	g.lives = StartLives
	g.runTime = 0
}

func (g *Game) spawnWave() {
	for i := 0; i < EnemyWaveSize; i++ {
		e := NewEnemy(i)
		e.X = Clamp(e.X, EnemyEdgeMargin, math.Max(EnemyEdgeMargin, g.width-EnemyEdgeMargin))
		g.enemies = append(g.enemies, e)
	}
}

// update runs one game tick
func (g *Game) update() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.step(1.0 / float64(TickRate))
}

// step advances the simulation by dt. Integration and culling finish
// before the first collision query.
func (g *Game) step(dt float64) {
	g.tick++
	g.runTime += dt

	g.player.Update(dt, g.width, g.height, g.store)
	live := g.enemies[:0]
	for _, e := range g.enemies {
		e.Update(dt, g.width, g.store)
		if e.Y <= g.height+EnemyExitSlack {
			live = append(live, e)
		}
	}
	clear(g.enemies[len(live):])
	g.enemies = live
	for _, a := range g.allies {
		a.Update(dt, g.player, g.enemies, g.store)
	}

	g.store.Update(dt, g.bounds())

	g.resolveEnemyHits()
	if g.resolvePlayerHits() {
		g.endRun()
	}
	if len(g.enemies) == 0 {
		g.spawnWave()
	}

	if g.cfg.Events != nil && g.tick%LogEvery == 0 {
		g.cfg.Events.Enqueue(g.collectState())
	}
	if g.tick%BroadcastEvery == 0 {
		g.broadcastState()
	}
}

// endRun reports the finished run and starts a new one
func (g *Game) endRun() {
	over := GameOverMsg{Score: g.score, Kills: g.kills, Duration: round1(g.runTime)}
	for c := range g.clients {
		c.SendJSON(Envelope{T: MsgGameOver, Data: over})
	}
	if g.cfg.Runs != nil && g.pilotAuthID > 0 {
		runs, pid := g.cfg.Runs, g.pilotAuthID
		go func() {
			if err := runs.RecordRun(pid, over.Score, over.Kills, over.Duration); err != nil {
				log.Printf("game: record run: %v", err)
			}
		}()
	}
	if g.cfg.Events != nil {
		g.cfg.Events.Enqueue(map[string]interface{}{
			"event":    "game_over",
			"session":  g.cfg.SessionID,
			"score":    over.Score,
			"kills":    over.Kills,
			"duration": over.Duration,
		})
	}
	g.reset()
}

// collectState builds the telemetry record describing the pilot's view,
// positions normalised to the field size.
func (g *Game) collectState() map[string]interface{} {
	w, h := g.width, g.height
	p := g.player

	bullets := g.store.Snapshot()
	slices.SortStableFunc(bullets, func(a, b Object) int {
		da := Distance(a.X, a.Y, p.X, p.Y)
		db := Distance(b.X, b.Y, p.X, p.Y)
		switch {
		case da < db:
			return -1
		case da > db:
			return 1
		}
		return 0
	})
	if len(bullets) > nearestBulletsLogged {
		bullets = bullets[:nearestBulletsLogged]
	}
	nearest := make([]map[string]interface{}, 0, len(bullets))
	for _, b := range bullets {
		nearest = append(nearest, map[string]interface{}{
			"x":    b.X / w,
			"y":    b.Y / h,
			"vx":   b.VX / 200,
			"vy":   b.VY / 200,
			"meta": b.Tag.String(),
		})
	}

	allyPos := map[string]float64{"x": 0.5, "y": 0.8}
	if len(g.allies) > 0 {
		allyPos = map[string]float64{"x": g.allies[0].X / w, "y": g.allies[0].Y / h}
	}
	enemies := make([]map[string]float64, 0, len(g.enemies))
	for _, e := range g.enemies {
		enemies = append(enemies, map[string]float64{"x": e.X / w, "y": e.Y / h})
	}

	return map[string]interface{}{
		"session":         g.cfg.SessionID,
		"tick":            g.tick,
		"player_pos":      map[string]float64{"x": p.X / w, "y": p.Y / h},
		"ally_pos":        allyPos,
		"nearest_enemies": enemies,
		"nearest_bullets": nearest,
		"player_input_flags": map[string]bool{
			"left":  p.Input.Left,
			"right": p.Input.Right,
			"up":    p.Input.Up,
			"down":  p.Input.Down,
		},
		"score": g.score,
		"lives": g.lives,
	}
}

// snapshot builds the broadcast state; callers hold mu
func (g *Game) snapshot() GameState {
	state := GameState{
		Player:  ShipState{X: round1(g.player.X), Y: round1(g.player.Y)},
		Allies:  make([]ShipState, 0, len(g.allies)),
		Enemies: make([]ShipState, 0, len(g.enemies)),
		Objects: make([]ObjectState, 0, g.store.Len()),
		Score:   g.score,
		Lives:   g.lives,
		Tick:    g.tick,
	}
	for _, a := range g.allies {
		state.Allies = append(state.Allies, ShipState{X: round1(a.X), Y: round1(a.Y)})
	}
	for _, e := range g.enemies {
		state.Enemies = append(state.Enemies, ShipState{X: round1(e.X), Y: round1(e.Y)})
	}
	g.store.Each(func(o Object) {
		state.Objects = append(state.Objects, ObjectState{
			ID:  uint64(o.ID),
			X:   round1(o.X),
			Y:   round1(o.Y),
			Tag: o.Tag.String(),
		})
	})
	return state
}

// State returns the current broadcast state
func (g *Game) State() GameState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snapshot()
}

// broadcastState sends the current game state to all clients as msgpack
func (g *Game) broadcastState() {
	if len(g.clients) == 0 {
		return
	}
	data, err := msgpack.Marshal(g.snapshot())
	if err != nil {
		log.Printf("game: marshal state: %v", err)
		return
	}
	for c := range g.clients {
		c.SendBinary(data)
	}
}
