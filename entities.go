package main

import "math"

const (
	PlayerSpeed       = 300.0 // pixels/s
	PlayerEdgeMargin  = 20.0
	PlayerFireEvery   = 0.18 // seconds between auto-fire shots
	PlayerBulletSpeed = 300.0
	PlayerMuzzle      = 12.0

	EnemyWaveSize     = 5
	EnemyBulletSpeed  = 180.0
	EnemyMuzzle       = 8.0
	EnemyEdgeMargin   = 20.0
	EnemyMinFallSpeed = 40.0
	EnemyMaxFallSpeed = 80.0

	AllySpeed        = 220.0
	AllyFollowX      = -40.0
	AllyFollowY      = 20.0
	AllyAimRange     = 400.0
	AllyBulletSpeed  = 320.0
	AllyForwardSpeed = 260.0
)

// Spawner is the part of the object store entity behaviors may use
type Spawner interface {
	Spawn(x, y, vx, vy float64, tag Tag) ObjectID
}

// Player is the pilot-controlled ship
type Player struct {
	X, Y   float64
	FireCD float64
	Input  ClientInput
}

// NewPlayer places the player near the bottom centre of the field
func NewPlayer(width, height float64) *Player {
	return &Player{X: width / 2, Y: height - 80}
}

// Update moves the player from its input flags and auto-fires
func (p *Player) Update(dt, width, height float64, s Spawner) {
	dx, dy := 0.0, 0.0
	if p.Input.Left {
		dx--
	}
	if p.Input.Right {
		dx++
	}
	if p.Input.Up {
		dy--
	}
	if p.Input.Down {
		dy++
	}
	p.X += dx * PlayerSpeed * dt
	p.Y += dy * PlayerSpeed * dt
	p.X = Clamp(p.X, PlayerEdgeMargin, math.Max(PlayerEdgeMargin, width-PlayerEdgeMargin))
	p.Y = Clamp(p.Y, PlayerEdgeMargin, math.Max(PlayerEdgeMargin, height-PlayerEdgeMargin))

	p.FireCD -= dt
	if p.FireCD <= 0 {
		s.Spawn(p.X, p.Y-PlayerMuzzle, 0, -PlayerBulletSpeed, TagPlayer)
		p.FireCD = PlayerFireEvery
	}
}

// Enemy drifts down the field firing straight down
type Enemy struct {
	X, Y    float64
	VX, VY  float64
	ShootCD float64
}

// NewEnemy creates the i-th enemy of a wave
func NewEnemy(i int) *Enemy {
	return &Enemy{
		X:       80 + float64(i)*120,
		Y:       80 + randRange(-40, 40),
		VY:      randRange(EnemyMinFallSpeed, EnemyMaxFallSpeed),
		ShootCD: randRange(0.8, 2.0),
	}
}

// Update moves the enemy, bouncing off the side edges, and fires when due
func (e *Enemy) Update(dt, width float64, s Spawner) {
	e.X += e.VX * dt
	e.Y += e.VY * dt
	if e.X < EnemyEdgeMargin {
		e.X = EnemyEdgeMargin
		e.VX = -e.VX
	}
	if e.X > width-EnemyEdgeMargin {
		e.X = width - EnemyEdgeMargin
		e.VX = -e.VX
	}

	e.ShootCD -= dt
	if e.ShootCD <= 0 {
		s.Spawn(e.X, e.Y+EnemyMuzzle, 0, EnemyBulletSpeed, TagEnemy)
		e.ShootCD = randRange(0.6, 1.5)
	}
}

// Ally follows the player and supports it with aimed shots
type Ally struct {
	X, Y    float64
	ShootCD float64
}

// NewAlly places an ally at its follow offset from the player
func NewAlly(p *Player) *Ally {
	return &Ally{X: p.X + AllyFollowX, Y: p.Y + AllyFollowY, ShootCD: 0.5}
}

// Update steers toward the follow slot and fires at the nearest enemy in range
func (a *Ally) Update(dt float64, p *Player, enemies []*Enemy, s Spawner) {
	a.moveTowards(p.X+AllyFollowX, p.Y+AllyFollowY, dt)

	a.ShootCD -= dt
	if a.ShootCD > 0 {
		return
	}
	a.ShootCD = randRange(0.4, 1.0)

	var nearest *Enemy
	nd := math.Inf(1)
	for _, e := range enemies {
		if d := Distance(a.X, a.Y, e.X, e.Y); d < nd {
			nd = d
			nearest = e
		}
	}
	if nearest != nil && nd < AllyAimRange {
		dist := math.Max(1, nd)
		vx := (nearest.X - a.X) / dist * AllyBulletSpeed
		vy := (nearest.Y - a.Y) / dist * AllyBulletSpeed
		s.Spawn(a.X, a.Y, vx, vy, TagAlly)
		return
	}
	s.Spawn(a.X, a.Y-EnemyMuzzle, 0, -AllyForwardSpeed, TagAlly)
}

func (a *Ally) moveTowards(tx, ty, dt float64) {
	dx := tx - a.X
	dy := ty - a.Y
	dist := math.Hypot(dx, dy)
	if dist < 1 {
		return
	}
	step := math.Min(AllySpeed*dt, dist)
	a.X += dx / dist * step
	a.Y += dy / dist * step
}
