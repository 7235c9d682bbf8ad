package main

import (
	"maps"
	"slices"
)

// Object is the authoritative record for a moving point object
type Object struct {
	ID     ObjectID
	X, Y   float64
	VX, VY float64
	Tag    Tag
	Age    float64 // seconds since spawn
}

// Bounds is the play field and the slack allowed past each edge before an
// object is culled. A zero slack disables culling on that edge; MaxAge of
// zero disables lifetime culling.
type Bounds struct {
	Width, Height float64
	TopSlack      float64
	BottomSlack   float64
	SideSlack     float64
	MaxAge        float64
}

// Outside reports whether (x, y) has left the field by more than the slack
func (b Bounds) Outside(x, y float64) bool {
	if b.BottomSlack > 0 && y > b.Height+b.BottomSlack {
		return true
	}
	if b.TopSlack > 0 && y < -b.TopSlack {
		return true
	}
	if b.SideSlack > 0 && (x < -b.SideSlack || x > b.Width+b.SideSlack) {
		return true
	}
	return false
}

// ObjectStore owns object records and keeps its SpatialIndex in step with
// every position change. Like the index it is owned by a single tick loop.
type ObjectStore struct {
	objects map[ObjectID]*Object
	index   *SpatialIndex
	nextID  ObjectID
	ids     []ObjectID // reused snapshot buffer for Update
}

// NewObjectStore creates an empty store with its own index
func NewObjectStore(cellSize float64) *ObjectStore {
	return &ObjectStore{
		objects: make(map[ObjectID]*Object),
		index:   NewSpatialIndex(cellSize),
		nextID:  1,
	}
}

// Spawn records a new object and indexes it at (x, y)
func (s *ObjectStore) Spawn(x, y, vx, vy float64, tag Tag) ObjectID {
	id := s.nextID
	s.nextID++
	s.objects[id] = &Object{ID: id, X: x, Y: y, VX: vx, VY: vy, Tag: tag}
	s.index.Insert(id, x, y, tag)
	return id
}

// Remove deletes id from the store and the index. Unknown ids are a no-op.
func (s *ObjectStore) Remove(id ObjectID) bool {
	obj, ok := s.objects[id]
	if !ok {
		return false
	}
	if !s.index.Remove(id, obj.X, obj.Y) {
		debugf("objects: id %d was not indexed at its stored position", id)
		s.index.Forget(id)
	}
	delete(s.objects, id)
	return true
}

// Update integrates every object over dt seconds and culls those that left
// the bounds or outlived MaxAge. It returns the culled ids in ascending order.
func (s *ObjectStore) Update(dt float64, bounds Bounds) []ObjectID {
	if dt < 0 {
		dt = 0
	}
	// Removals below mutate s.objects, so walk a snapshot.
	s.ids = slices.AppendSeq(s.ids[:0], maps.Keys(s.objects))
	slices.Sort(s.ids)

	var culled []ObjectID
	for _, id := range s.ids {
		obj, ok := s.objects[id]
		if !ok {
			continue
		}
		oldX, oldY := obj.X, obj.Y
		obj.X += obj.VX * dt
		obj.Y += obj.VY * dt
		obj.Age += dt
		s.index.Update(id, oldX, oldY, obj.X, obj.Y, obj.Tag)

		if bounds.Outside(obj.X, obj.Y) || (bounds.MaxAge > 0 && obj.Age > bounds.MaxAge) {
			s.Remove(id)
			culled = append(culled, id)
		}
	}
	return culled
}

// QueryNearby returns objects within radius of (x, y). Tags come from the
// store's records rather than the index cache.
func (s *ObjectStore) QueryNearby(x, y, radius float64) []Hit {
	return s.QueryNearbyBuf(x, y, radius, nil)
}

// QueryNearbyBuf is QueryNearby appending to buf; entries already in buf
// are left untouched.
func (s *ObjectStore) QueryNearbyBuf(x, y, radius float64, buf []Hit) []Hit {
	start := len(buf)
	buf = s.index.QueryRadiusBuf(x, y, radius, buf)
	out := buf[:start]
	for _, h := range buf[start:] {
		obj, ok := s.objects[h.ID]
		if !ok {
			debugf("objects: index returned orphan id %d", h.ID)
			continue
		}
		h.Tag = obj.Tag
		out = append(out, h)
	}
	return out
}

// Get returns a copy of the record for id
func (s *ObjectStore) Get(id ObjectID) (Object, bool) {
	obj, ok := s.objects[id]
	if !ok {
		return Object{}, false
	}
	return *obj, true
}

// Each calls fn with a copy of every live object, in no particular order
func (s *ObjectStore) Each(fn func(Object)) {
	for _, obj := range s.objects {
		fn(*obj)
	}
}

// Snapshot returns copies of all live objects ordered by id
func (s *ObjectStore) Snapshot() []Object {
	out := make([]Object, 0, len(s.objects))
	for _, obj := range s.objects {
		out = append(out, *obj)
	}
	slices.SortFunc(out, func(a, b Object) int {
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return out
}

// Len returns the number of live objects
func (s *ObjectStore) Len() int {
	return len(s.objects)
}

// Index exposes the store's spatial index for read-only inspection
func (s *ObjectStore) Index() *SpatialIndex {
	return s.index
}

// Clear removes every object. Ids keep increasing afterwards.
func (s *ObjectStore) Clear() {
	for id := range s.objects {
		s.Remove(id)
	}
}
