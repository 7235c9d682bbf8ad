package main

import (
	"crypto/rand"
	"fmt"
	"log"
	"math"
	mrand "math/rand/v2"
)

// debugMode enables consistency checks in the spatial core (-debug flag)
var debugMode bool

// debugf logs only in debug mode; the core never fails on what it reports here
func debugf(format string, args ...interface{}) {
	if !debugMode {
		return
	}
	log.Printf("debug: "+format, args...)
}

// GenerateUUID returns a random RFC 4122 version 4 UUID
func GenerateUUID() string {
	b := make([]byte, 16)
	rand.Read(b)
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:16])
}

// Clamp restricts v to [min, max]
func Clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// Distance returns the distance between two points
func Distance(x1, y1, x2, y2 float64) float64 {
	return math.Hypot(x2-x1, y2-y1)
}

// randRange returns a random float64 in [lo, hi)
func randRange(lo, hi float64) float64 {
	return lo + mrand.Float64()*(hi-lo)
}

// round1 rounds to one decimal place for compact state frames
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
