package main

import (
	"log"
	"sync"
	"time"
)

const (
	HitWindow        = 5 * time.Minute // in-memory hitmap retention
	hitQueueSize     = 1024
	hitBatchSize     = 50
	hitFlushInterval = 5 * time.Second
)

// HitRecord is one player hit location
type HitRecord struct {
	SessionID string
	X, Y      float64
	At        time.Time
}

// HitStore persists batches of hit records
type HitStore interface {
	InsertHits(hits []HitRecord) error
}

// HitWriter batches hit records into a HitStore from a background goroutine
type HitWriter struct {
	store HitStore
	queue chan HitRecord
	stop  chan struct{}
	wg    sync.WaitGroup
}

// NewHitWriter creates and starts the background writer
func NewHitWriter(store HitStore) *HitWriter {
	w := &HitWriter{
		store: store,
		queue: make(chan HitRecord, hitQueueSize),
		stop:  make(chan struct{}),
	}
	w.wg.Add(1)
	go w.run()
	return w
}

// Track enqueues a record for persistence (non-blocking)
func (w *HitWriter) Track(rec HitRecord) {
	select {
	case w.queue <- rec:
	default:
		// Queue full, drop rather than stall the tick
	}
}

// Stop flushes pending records and stops the writer
func (w *HitWriter) Stop() {
	close(w.stop)
	w.wg.Wait()
}

func (w *HitWriter) run() {
	defer w.wg.Done()

	batch := make([]HitRecord, 0, hitBatchSize)
	ticker := time.NewTicker(hitFlushInterval)
	defer ticker.Stop()

	for {
		select {
		case rec := <-w.queue:
			batch = append(batch, rec)
			if len(batch) >= hitBatchSize {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-w.stop:
			// Drain remaining records
			for len(w.queue) > 0 {
				batch = append(batch, <-w.queue)
			}
			if len(batch) > 0 {
				w.flush(batch)
			}
			return
		}
	}
}

func (w *HitWriter) flush(batch []HitRecord) {
	if w.store == nil {
		return
	}
	if err := w.store.InsertHits(batch); err != nil {
		log.Printf("hitmap: persist %d hits: %v", len(batch), err)
	}
}

// Hitmap keeps the recent hit locations of one session and forwards each
// hit to an optional HitWriter. It implements HitRecorder.
type Hitmap struct {
	sessionID string
	writer    *HitWriter
	window    time.Duration
	now       func() time.Time

	mu   sync.Mutex
	hits []HitRecord
}

// NewHitmap creates a hitmap for a session; writer may be nil
func NewHitmap(sessionID string, writer *HitWriter) *Hitmap {
	return &Hitmap{
		sessionID: sessionID,
		writer:    writer,
		window:    HitWindow,
		now:       time.Now,
	}
}

// Record stores a hit at (x, y)
func (h *Hitmap) Record(x, y float64) {
	rec := HitRecord{SessionID: h.sessionID, X: x, Y: y, At: h.now().UTC()}
	h.mu.Lock()
	h.hits = append(h.hits, rec)
	h.collect(rec.At)
	h.mu.Unlock()

	if h.writer != nil {
		h.writer.Track(rec)
	}
}

// collect drops hits older than the window; callers hold mu
func (h *Hitmap) collect(now time.Time) {
	cutoff := now.Add(-h.window)
	keep := h.hits[:0]
	for _, rec := range h.hits {
		if !rec.At.Before(cutoff) {
			keep = append(keep, rec)
		}
	}
	clear(h.hits[len(keep):])
	h.hits = keep
}

// CountNear returns the number of retained hits within radius of (x, y)
func (h *Hitmap) CountNear(x, y, radius float64) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.collect(h.now().UTC())
	r2 := radius * radius
	n := 0
	for _, rec := range h.hits {
		if withinRadiusSq(rec.X-x, rec.Y-y, r2) {
			n++
		}
	}
	return n
}

// Len returns the number of retained hits
func (h *Hitmap) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.hits)
}
