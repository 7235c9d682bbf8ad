package main

import (
	"log"
	"net"
	"net/http"
	"net/url"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/gorilla/websocket"
	qrcode "github.com/skip2/go-qrcode"
)

const qrSize = 256

var uuidPathRe = regexp.MustCompile(`^/[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // Non-browser clients don't send Origin
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return u.Host == r.Host
	},
}

func extractIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// joinURL is the address a phone opens to join a session
func joinURL(r *http.Request, sessionID string) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host + "/" + sessionID
}

// SetupRoutes configures HTTP routes. collector and origins may be empty.
func SetupRoutes(hub *Hub, collector *Collector, clientDir string, origins []string) http.Handler {
	mux := http.NewServeMux()

	if clientDir != "" {
		// Serve static files with no-cache so browsers always revalidate
		fs := http.FileServer(http.Dir(clientDir))
		mux.Handle("/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "no-cache")
			// SPA: serve index.html for root and UUID paths
			if r.URL.Path == "/" || uuidPathRe.MatchString(r.URL.Path) {
				http.ServeFile(w, r, filepath.Join(clientDir, "index.html"))
				return
			}
			fs.ServeHTTP(w, r)
		}))
	}

	// WebSocket endpoint
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ip := extractIP(r)
		if !hub.CanAccept(ip) {
			http.Error(w, "too many connections", http.StatusServiceUnavailable)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("upgrade error: %v", err)
			return
		}

		hub.TrackConnect(ip)

		client := NewClient(hub, conn, ip)
		hub.register <- client

		go client.WritePump()
		go client.ReadPump()
	})

	if collector != nil {
		mux.HandleFunc("POST /api/upload-log", collector.HandleLog)
		mux.HandleFunc("POST /api/upload-hitmap", collector.HandleHitmap)
	}

	mux.HandleFunc("GET /api/leaderboard", func(w http.ResponseWriter, r *http.Request) {
		entries, err := hub.Leaderboard()
		if err != nil {
			log.Printf("leaderboard: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "leaderboard unavailable"})
			return
		}
		if entries == nil {
			entries = []LeaderboardEntry{}
		}
		writeJSON(w, http.StatusOK, entries)
	})

	mux.HandleFunc("GET /api/sessions", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, hub.sessions.ListSessions())
	})

	mux.HandleFunc("GET /api/sessions/{id}/qr", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if hub.sessions.GetSession(id) == nil {
			http.NotFound(w, r)
			return
		}
		png, err := qrcode.Encode(joinURL(r, id), qrcode.Medium, qrSize)
		if err != nil {
			log.Printf("qr: %v", err)
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		w.Write(png)
	})

	// Hits recorded near a point in the last few minutes, plus the
	// session's persisted total: /api/sessions/{id}/hits?x=..&y=..&r=..
	mux.HandleFunc("GET /api/sessions/{id}/hits", func(w http.ResponseWriter, r *http.Request) {
		sess := hub.sessions.GetSession(r.PathValue("id"))
		if sess == nil {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()
		x, errX := strconv.ParseFloat(q.Get("x"), 64)
		y, errY := strconv.ParseFloat(q.Get("y"), 64)
		radius, errR := strconv.ParseFloat(q.Get("r"), 64)
		if errX != nil || errY != nil || errR != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "x, y and r are required"})
			return
		}
		stored, err := hub.StoredHits(sess.ID)
		if err != nil {
			log.Printf("hits: %v", err)
		}
		writeJSON(w, http.StatusOK, map[string]int{
			"count":  sess.Hits.CountNear(x, y, radius),
			"total":  sess.Hits.Len(),
			"stored": stored,
		})
	})

	return withCORS(origins, mux)
}
