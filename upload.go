package main

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

const maxUploadBytes = 8 << 20

// Collector receives telemetry batches over HTTP and appends them to
// per-day JSONL files.
type Collector struct {
	dir  string
	hits HitStore // optional
	auth *Auth    // optional, attributes uploads to a pilot
	now  func() time.Time
}

// NewCollector creates a collector writing into dir
func NewCollector(dir string, hits HitStore, auth *Auth) *Collector {
	return &Collector{dir: dir, hits: hits, auth: auth, now: time.Now}
}

type uploadReply struct {
	OK     bool   `json:"ok"`
	Saved  int    `json:"saved,omitempty"`
	Error  string `json:"error,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// HandleLog serves POST /api/upload-log
func (c *Collector) HandleLog(w http.ResponseWriter, r *http.Request) {
	c.handle(w, r, "", false)
}

// HandleHitmap serves POST /api/upload-hitmap
func (c *Collector) HandleHitmap(w http.ResponseWriter, r *http.Request) {
	c.handle(w, r, "hitmap-", true)
}

func (c *Collector) handle(w http.ResponseWriter, r *http.Request, prefix string, hitmap bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes))
	if err != nil || len(body) == 0 {
		writeJSON(w, http.StatusBadRequest, uploadReply{Error: "empty_body"})
		return
	}

	records, reply := decodeRecords(body)
	if reply != nil {
		writeJSON(w, http.StatusBadRequest, reply)
		return
	}

	pilot := ""
	if c.auth != nil && r.Header.Get("Authorization") != "" {
		if _, username, err := c.auth.ValidateRequest(r); err == nil {
			pilot = username
		}
	}
	items := make([]interface{}, len(records))
	for i, rec := range records {
		if pilot != "" {
			if obj, ok := rec.(map[string]interface{}); ok {
				obj["pilot"] = pilot
			}
		}
		items[i] = rec
	}

	path := filepath.Join(c.dir, dayFileName(prefix, c.now()))
	if err := appendJSONL(path, items); err != nil {
		log.Printf("collector: %v", err)
		writeJSON(w, http.StatusInternalServerError, uploadReply{Error: "write_failed", Detail: err.Error()})
		return
	}

	if hitmap && c.hits != nil {
		if hits := hitRecordsFrom(records, c.now()); len(hits) > 0 {
			if err := c.hits.InsertHits(hits); err != nil {
				log.Printf("collector: store hits: %v", err)
			}
		}
	}

	writeJSON(w, http.StatusOK, uploadReply{OK: true, Saved: len(records)})
}

// decodeRecords accepts {"records": [...]} or a bare JSON array
func decodeRecords(body []byte) ([]interface{}, *uploadReply) {
	var data interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, &uploadReply{Error: "invalid_json", Detail: err.Error()}
	}
	switch v := data.(type) {
	case []interface{}:
		return v, nil
	case map[string]interface{}:
		if recs, ok := v["records"].([]interface{}); ok {
			return recs, nil
		}
	}
	return nil, &uploadReply{Error: "unexpected_format"}
}

// hitRecordsFrom extracts records carrying numeric x and y
func hitRecordsFrom(records []interface{}, now time.Time) []HitRecord {
	var hits []HitRecord
	for _, rec := range records {
		obj, ok := rec.(map[string]interface{})
		if !ok {
			continue
		}
		x, okX := obj["x"].(float64)
		y, okY := obj["y"].(float64)
		if !okX || !okY {
			continue
		}
		h := HitRecord{X: x, Y: y, At: now.UTC()}
		if sid, ok := obj["session"].(string); ok {
			h.SessionID = sid
		}
		if ts, ok := obj["ts"].(float64); ok && ts > 0 {
			h.At = time.UnixMilli(int64(ts)).UTC()
		}
		hits = append(hits, h)
	}
	return hits
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

// withCORS allows credentialed cross-origin calls to /api/ from the
// listed origins
func withCORS(origins []string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && strings.HasPrefix(r.URL.Path, "/api/") && slices.Contains(origins, origin) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Add("Vary", "Origin")
			if r.Method == http.MethodOptions {
				h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
