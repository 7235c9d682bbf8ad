package main

const (
	EnemyHitRadius  = 18.0
	PlayerHitRadius = 16.0
	EnemyKillScore  = 100
)

// withinRadiusSq is the exact circular test shared by every proximity check
func withinRadiusSq(dx, dy, r2 float64) bool {
	return dx*dx+dy*dy <= r2
}

// resolveEnemyHits destroys each enemy touched by a friendly bullet. The
// bullet is consumed before the next query so it cannot kill twice.
func (g *Game) resolveEnemyHits() {
	for i := len(g.enemies) - 1; i >= 0; i-- {
		e := g.enemies[i]
		g.hitBuf = g.store.QueryNearbyBuf(e.X, e.Y, EnemyHitRadius, g.hitBuf[:0])
		for _, h := range g.hitBuf {
			if !h.Tag.Friendly() {
				continue
			}
			g.store.Remove(h.ID)
			g.enemies = append(g.enemies[:i], g.enemies[i+1:]...)
			g.score += EnemyKillScore
			g.kills++
			break
		}
	}
}

// resolvePlayerHits applies at most one enemy bullet per tick to the player.
// It returns true when the hit ended the run.
func (g *Game) resolvePlayerHits() bool {
	p := g.player
	g.hitBuf = g.store.QueryNearbyBuf(p.X, p.Y, PlayerHitRadius, g.hitBuf[:0])
	for _, h := range g.hitBuf {
		if h.Tag != TagEnemy {
			continue
		}
		g.store.Remove(h.ID)
		g.lives--
		if g.cfg.Hits != nil {
			g.cfg.Hits.Record(h.X, h.Y)
		}
		return g.lives <= 0
	}
	return false
}
