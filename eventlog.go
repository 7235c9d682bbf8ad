package main

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	EventBatchSize     = 20
	EventFlushInterval = 5 * time.Second
	eventSendTimeout   = 10 * time.Second
	eventIDLen         = 8
)

// Sender delivers one batch of telemetry records
type Sender interface {
	Send(ctx context.Context, records []map[string]interface{}) error
}

// PendingStore keeps unsent records across restarts
type PendingStore interface {
	SavePendingEvents(records []string) error
	TakePendingEvents() ([]string, error)
}

// EventLogger buffers telemetry records and delivers them in batches from
// a background goroutine. A failed batch goes back to the head of the
// buffer and the whole buffer is persisted until a later send succeeds.
type EventLogger struct {
	sender    Sender
	store     PendingStore
	batchSize int
	interval  time.Duration
	now       func() time.Time

	mu  sync.Mutex
	buf []map[string]interface{}

	sendMu sync.Mutex // one batch in flight at a time
	kick   chan struct{}
	stop   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// NewEventLogger loads any persisted backlog and starts the flush loop.
// store may be nil.
func NewEventLogger(sender Sender, store PendingStore) *EventLogger {
	l := newEventLogger(sender, store, EventBatchSize, EventFlushInterval)
	l.wg.Add(1)
	go l.run()
	return l
}

func newEventLogger(sender Sender, store PendingStore, batchSize int, interval time.Duration) *EventLogger {
	l := &EventLogger{
		sender:    sender,
		store:     store,
		batchSize: batchSize,
		interval:  interval,
		now:       time.Now,
		kick:      make(chan struct{}, 1),
		stop:      make(chan struct{}),
	}
	l.loadPersisted()
	return l
}

// Enqueue stamps a record with "ts" (unix ms) and a random "id" and
// buffers it. It never blocks on delivery.
func (l *EventLogger) Enqueue(record map[string]interface{}) {
	rec := make(map[string]interface{}, len(record)+2)
	rec["ts"] = l.now().UnixMilli()
	rec["id"] = makeEventID()
	for k, v := range record {
		rec[k] = v
	}

	l.mu.Lock()
	l.buf = append(l.buf, rec)
	if len(l.buf) > maxPendingEvents {
		l.buf = l.buf[len(l.buf)-maxPendingEvents:]
	}
	full := len(l.buf) >= l.batchSize
	l.mu.Unlock()

	if full {
		select {
		case l.kick <- struct{}{}:
		default:
		}
	}
}

// Pending returns the number of buffered records
func (l *EventLogger) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buf)
}

// Close stops the flush loop, makes a final delivery attempt and persists
// whatever is still unsent.
func (l *EventLogger) Close() {
	l.once.Do(func() {
		close(l.stop)
		l.wg.Wait()
		for l.Pending() > 0 {
			if err := l.Flush(context.Background()); err != nil {
				break
			}
		}
	})
}

func (l *EventLogger) run() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
		case <-l.kick:
		case <-l.stop:
			return
		}
		if err := l.Flush(context.Background()); err != nil {
			log.Printf("eventlog: %v", err)
		}
	}
}

// Flush sends up to one batch from the head of the buffer
func (l *EventLogger) Flush(ctx context.Context) error {
	l.sendMu.Lock()
	defer l.sendMu.Unlock()

	l.mu.Lock()
	n := min(len(l.buf), l.batchSize)
	if n == 0 {
		l.mu.Unlock()
		return nil
	}
	batch := make([]map[string]interface{}, n)
	copy(batch, l.buf[:n])
	l.buf = l.buf[n:]
	l.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, eventSendTimeout)
	defer cancel()
	if err := l.sender.Send(ctx, batch); err != nil {
		l.mu.Lock()
		l.buf = append(batch, l.buf...)
		l.mu.Unlock()
		l.persist()
		return fmt.Errorf("send %d records: %w", n, err)
	}
	l.clearPersisted()
	return nil
}

func (l *EventLogger) persist() {
	if l.store == nil {
		return
	}
	l.mu.Lock()
	encoded := make([]string, 0, len(l.buf))
	for _, rec := range l.buf {
		b, err := json.Marshal(rec)
		if err != nil {
			continue
		}
		encoded = append(encoded, string(b))
	}
	l.mu.Unlock()
	if err := l.store.SavePendingEvents(encoded); err != nil {
		log.Printf("eventlog: persist backlog: %v", err)
	}
}

func (l *EventLogger) clearPersisted() {
	if l.store == nil {
		return
	}
	if err := l.store.SavePendingEvents(nil); err != nil {
		log.Printf("eventlog: clear backlog: %v", err)
	}
}

func (l *EventLogger) loadPersisted() {
	if l.store == nil {
		return
	}
	stored, err := l.store.TakePendingEvents()
	if err != nil {
		log.Printf("eventlog: load backlog: %v", err)
		return
	}
	for _, s := range stored {
		var rec map[string]interface{}
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			continue
		}
		l.buf = append(l.buf, rec)
	}
	if len(stored) > 0 {
		log.Printf("eventlog: restored %d pending records", len(l.buf))
	}
}

const eventIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

func makeEventID() string {
	b := make([]byte, eventIDLen)
	rand.Read(b)
	for i := range b {
		b[i] = eventIDAlphabet[int(b[i])%len(eventIDAlphabet)]
	}
	return string(b)
}

// HTTPSender POSTs {"records": [...]} to a collector endpoint
type HTTPSender struct {
	Endpoint string
	Token    string // optional bearer token
	Client   *http.Client
}

// Send implements Sender
func (s *HTTPSender) Send(ctx context.Context, records []map[string]interface{}) error {
	body, err := json.Marshal(map[string]interface{}{"records": records})
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.Token)
	}
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return nil
}

// FileSender appends records as JSON lines to the day's file in Dir
type FileSender struct {
	Dir    string
	Prefix string // "" for state logs, "hitmap-" for hit logs
	now    func() time.Time
}

// Send implements Sender
func (s *FileSender) Send(_ context.Context, records []map[string]interface{}) error {
	now := time.Now
	if s.now != nil {
		now = s.now
	}
	path := filepath.Join(s.Dir, dayFileName(s.Prefix, now()))
	items := make([]interface{}, len(records))
	for i, r := range records {
		items[i] = r
	}
	return appendJSONL(path, items)
}

// dayFileName returns "<prefix>YYYYMMDD.log" for the UTC day of t
func dayFileName(prefix string, t time.Time) string {
	return prefix + t.UTC().Format("20060102") + ".log"
}

var jsonlMu sync.Mutex

// appendJSONL writes each item as one JSON line to path
func appendJSONL(path string, items []interface{}) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for _, it := range items {
		if err := enc.Encode(it); err != nil {
			return fmt.Errorf("encode record: %w", err)
		}
	}

	jsonlMu.Lock()
	defer jsonlMu.Unlock()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
