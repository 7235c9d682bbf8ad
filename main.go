package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// Config holds the server settings gathered from flags
type Config struct {
	Addr        string
	ClientDir   string
	DBPath      string
	LogDir      string
	LogEndpoint string // telemetry goes here over HTTP; "" writes to LogDir
	Origins     []string
	FieldWidth  float64
	FieldHeight float64
	CellSize    float64
	Debug       bool
}

// DefaultConfig returns the settings used when no flags are given
func DefaultConfig() Config {
	return Config{
		Addr:        ":8080",
		DBPath:      "arcade.db",
		LogDir:      "logs",
		FieldWidth:  DefaultFieldWidth,
		FieldHeight: DefaultFieldHeight,
		CellSize:    DefaultCellSize,
		Origins: []string{
			"http://127.0.0.1:5500",
			"http://localhost:5500",
			"http://127.0.0.1:8000",
			"http://localhost:8000",
			"http://localhost:5000",
		},
	}
}

// parseFlags fills a Config from the command line
func parseFlags(args []string) (Config, error) {
	cfg := DefaultConfig()
	fs := flag.NewFlagSet("arcade-server", flag.ContinueOnError)
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP listen address")
	fs.StringVar(&cfg.ClientDir, "client", "", "Path to client directory (default: ../client)")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path (empty disables accounts and persistence)")
	fs.StringVar(&cfg.LogDir, "log-dir", cfg.LogDir, "Directory for telemetry JSONL files")
	fs.StringVar(&cfg.LogEndpoint, "log-endpoint", "", "Remote collector URL for telemetry (default: write to -log-dir)")
	origins := fs.String("origins", strings.Join(cfg.Origins, ","), "Comma-separated CORS origins for /api/")
	fs.Float64Var(&cfg.FieldWidth, "field-width", cfg.FieldWidth, "Initial play-field width")
	fs.Float64Var(&cfg.FieldHeight, "field-height", cfg.FieldHeight, "Initial play-field height")
	fs.Float64Var(&cfg.CellSize, "cell-size", cfg.CellSize, "Spatial index cell size")
	fs.BoolVar(&cfg.Debug, "debug", false, "Log spatial index consistency checks")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	cfg.Origins = nil
	for _, o := range strings.Split(*origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.Origins = append(cfg.Origins, o)
		}
	}
	if cfg.ClientDir == "" {
		exe, _ := os.Executable()
		cfg.ClientDir = filepath.Join(filepath.Dir(exe), "..", "client")
		// Fallback for development
		if _, err := os.Stat(cfg.ClientDir); os.IsNotExist(err) {
			cfg.ClientDir = "../client"
		}
	}
	return cfg, nil
}

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	debugMode = cfg.Debug

	var db *DB
	var auth *Auth
	if cfg.DBPath != "" {
		db, err = OpenDB(cfg.DBPath)
		if err != nil {
			log.Fatalf("open database: %v", err)
		}
		defer db.Close()
		auth = NewAuth(db)
	}

	var (
		hitStore HitStore
		pending  PendingStore
		runs     RunRecorder
	)
	if db != nil {
		hitStore, pending, runs = db, db, db
	}
	hitWriter := NewHitWriter(hitStore)

	var sender Sender = &FileSender{Dir: cfg.LogDir}
	if cfg.LogEndpoint != "" {
		sender = &HTTPSender{Endpoint: cfg.LogEndpoint}
	}
	events := NewEventLogger(sender, pending)

	sessions := NewSessionManager(GameConfig{
		CellSize: cfg.CellSize,
		Width:    cfg.FieldWidth,
		Height:   cfg.FieldHeight,
		Events:   events,
		Runs:     runs,
	}, hitWriter)

	hub := NewHub(sessions, db, auth)
	go hub.Run()

	handler := SetupRoutes(hub, NewCollector(cfg.LogDir, hitStore, auth), cfg.ClientDir, cfg.Origins)

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	server := &http.Server{Addr: cfg.Addr, Handler: handler}

	go func() {
		log.Printf("Server starting on %s", cfg.Addr)
		log.Printf("Serving client files from %s", cfg.ClientDir)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe: %v", err)
		}
	}()

	<-stop
	log.Println("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		server.Close()
	}
	sessions.StopAll()
	events.Close()
	hitWriter.Stop()
}
