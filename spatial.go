package main

import "math"

// DefaultCellSize suits the 16-18px collision radii used by the tick driver
const DefaultCellSize = 96.0

// maxQueryCell bounds the cell coordinates a query box may span (2^52)
const maxQueryCell = 1 << 52

// ObjectID identifies a tracked object. Zero is never assigned.
type ObjectID uint64

// cellKey identifies a grid cell by its integer coordinates
type cellKey struct {
	X, Y int
}

// indexEntry caches an object's position and tag inside its bucket
type indexEntry struct {
	X, Y float64
	Tag  Tag
}

// Hit is one result of a radius query
type Hit struct {
	ID  ObjectID
	X   float64
	Y   float64
	Tag Tag
}

// SpatialIndex is an unbounded uniform-grid hash of point objects.
// It is not safe for concurrent use.
type SpatialIndex struct {
	cellSize float64
	buckets  map[cellKey]map[ObjectID]indexEntry
	// where records each id's current cell so a bad caller position is detectable
	where map[ObjectID]cellKey
}

// NewSpatialIndex creates an empty index; non-positive sizes use DefaultCellSize
func NewSpatialIndex(cellSize float64) *SpatialIndex {
	if cellSize <= 0 || math.IsNaN(cellSize) || math.IsInf(cellSize, 0) {
		cellSize = DefaultCellSize
	}
	return &SpatialIndex{
		cellSize: cellSize,
		buckets:  make(map[cellKey]map[ObjectID]indexEntry),
		where:    make(map[ObjectID]cellKey),
	}
}

// CellSize returns the construction-time cell edge length
func (idx *SpatialIndex) CellSize() float64 {
	return idx.cellSize
}

func (idx *SpatialIndex) coordToCell(v float64) int {
	return int(math.Floor(v / idx.cellSize))
}

// CellFor returns the cell coordinates covering (x, y)
func (idx *SpatialIndex) CellFor(x, y float64) (int, int) {
	return idx.coordToCell(x), idx.coordToCell(y)
}

func (idx *SpatialIndex) keyFor(x, y float64) cellKey {
	return cellKey{X: idx.coordToCell(x), Y: idx.coordToCell(y)}
}

// Insert adds id at (x, y). It returns false and changes nothing if id is already indexed.
func (idx *SpatialIndex) Insert(id ObjectID, x, y float64, tag Tag) bool {
	if _, exists := idx.where[id]; exists {
		debugf("spatial: insert of already indexed id %d ignored", id)
		return false
	}
	idx.put(idx.keyFor(x, y), id, indexEntry{X: x, Y: y, Tag: tag})
	return true
}

func (idx *SpatialIndex) put(key cellKey, id ObjectID, e indexEntry) {
	bucket := idx.buckets[key]
	if bucket == nil {
		bucket = make(map[ObjectID]indexEntry)
		idx.buckets[key] = bucket
	}
	bucket[id] = e
	idx.where[id] = key
}

// drop deletes id from the bucket at key, deleting the bucket once empty
func (idx *SpatialIndex) drop(key cellKey, id ObjectID) bool {
	bucket := idx.buckets[key]
	if bucket == nil {
		return false
	}
	if _, ok := bucket[id]; !ok {
		return false
	}
	delete(bucket, id)
	if len(bucket) == 0 {
		delete(idx.buckets, key)
	}
	delete(idx.where, id)
	return true
}

// Remove deletes id from the cell implied by (x, y), which must be the
// object's last indexed position. A mismatched position removes nothing.
func (idx *SpatialIndex) Remove(id ObjectID, x, y float64) bool {
	key := idx.keyFor(x, y)
	if idx.drop(key, id) {
		return true
	}
	if actual, ok := idx.where[id]; ok {
		debugf("spatial: inconsistent removal of id %d: given cell %v, indexed in %v", id, key, actual)
	}
	return false
}

// Forget deletes id wherever it is indexed
func (idx *SpatialIndex) Forget(id ObjectID) bool {
	key, ok := idx.where[id]
	if !ok {
		return false
	}
	return idx.drop(key, id)
}

// Update moves id from (oldX, oldY) to (newX, newY). Moves within one
// cell rewrite the entry in place; crossing a boundary migrates buckets.
// Unknown ids are ignored.
func (idx *SpatialIndex) Update(id ObjectID, oldX, oldY, newX, newY float64, tag Tag) {
	from, ok := idx.where[id]
	if !ok {
		debugf("spatial: update of unindexed id %d ignored", id)
		return
	}
	if claimed := idx.keyFor(oldX, oldY); claimed != from {
		debugf("spatial: update of id %d claims old cell %v, indexed in %v", id, claimed, from)
	}
	to := idx.keyFor(newX, newY)
	e := indexEntry{X: newX, Y: newY, Tag: tag}
	if from == to {
		idx.buckets[from][id] = e
		return
	}
	idx.drop(from, id)
	idx.put(to, id, e)
}

// QueryRadius returns every indexed point within r of (x, y), boundary
// inclusive. Result order is unspecified.
func (idx *SpatialIndex) QueryRadius(x, y, r float64) []Hit {
	return idx.QueryRadiusBuf(x, y, r, nil)
}

// QueryRadiusBuf appends results to buf and returns the extended slice, avoiding per-call allocation
func (idx *SpatialIndex) QueryRadiusBuf(x, y, r float64, buf []Hit) []Hit {
	if r < 0 || math.IsNaN(r) || len(idx.buckets) == 0 {
		return buf
	}
	r2 := r * r

	// Cell coordinates past maxQueryCell no longer convert to int exactly,
	// so such a box is treated as covering every bucket.
	unbounded := (math.Abs(x)+r)/idx.cellSize >= maxQueryCell ||
		(math.Abs(y)+r)/idx.cellSize >= maxQueryCell
	var minCX, minCY, maxCX, maxCY int
	if !unbounded {
		minCX, minCY = idx.CellFor(x-r, y-r)
		maxCX, maxCY = idx.CellFor(x+r, y+r)
	}

	// A query box wider than the populated set is cheaper to answer by
	// walking the buckets than by probing empty cells.
	if unbounded || float64(maxCX-minCX+1)*float64(maxCY-minCY+1) > float64(len(idx.buckets)) {
		for key, bucket := range idx.buckets {
			if !unbounded && (key.X < minCX || key.X > maxCX || key.Y < minCY || key.Y > maxCY) {
				continue
			}
			buf = appendWithin(buf, bucket, x, y, r2)
		}
		return buf
	}

	for cy := minCY; cy <= maxCY; cy++ {
		for cx := minCX; cx <= maxCX; cx++ {
			if bucket := idx.buckets[cellKey{X: cx, Y: cy}]; bucket != nil {
				buf = appendWithin(buf, bucket, x, y, r2)
			}
		}
	}
	return buf
}

func appendWithin(buf []Hit, bucket map[ObjectID]indexEntry, x, y, r2 float64) []Hit {
	for id, e := range bucket {
		if withinRadiusSq(e.X-x, e.Y-y, r2) {
			buf = append(buf, Hit{ID: id, X: e.X, Y: e.Y, Tag: e.Tag})
		}
	}
	return buf
}

// Contains reports whether id is indexed
func (idx *SpatialIndex) Contains(id ObjectID) bool {
	_, ok := idx.where[id]
	return ok
}

// CellOf returns the cell id is indexed in
func (idx *SpatialIndex) CellOf(id ObjectID) (int, int, bool) {
	key, ok := idx.where[id]
	return key.X, key.Y, ok
}

// Len returns the number of indexed ids
func (idx *SpatialIndex) Len() int {
	return len(idx.where)
}

// BucketCount returns the number of non-empty cells
func (idx *SpatialIndex) BucketCount() int {
	return len(idx.buckets)
}
