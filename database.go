package main

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	_ "modernc.org/sqlite"
)

// maxPendingEvents caps the telemetry records kept across restarts
const maxPendingEvents = 5000

// DB wraps the SQLite database connection
type DB struct {
	conn *sql.DB
}

// PlayerRow represents a player record in the database
type PlayerRow struct {
	ID        int64
	Username  string
	PassHash  string
	CreatedAt time.Time
}

// RunRow is one finished run of an authenticated pilot
type RunRow struct {
	ID        int64     `json:"id"`
	PlayerID  int64     `json:"pid"`
	Score     int       `json:"score"`
	Kills     int       `json:"kills"`
	Duration  float64   `json:"duration"`
	CreatedAt time.Time `json:"at"`
}

// OpenDB opens (or creates) the SQLite database
func OpenDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// PRAGMAs below are per connection
	conn.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrency
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, err
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates tables if they don't exist
func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS players (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		pass_hash TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		player_id INTEGER NOT NULL REFERENCES players(id),
		score INTEGER NOT NULL DEFAULT 0,
		kills INTEGER NOT NULL DEFAULT 0,
		duration REAL NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS hits (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL DEFAULT '',
		x REAL NOT NULL,
		y REAL NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS pending_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		record TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_player ON runs(player_id);
	CREATE INDEX IF NOT EXISTS idx_hits_session ON hits(session_id, created_at);
	`
	_, err := db.conn.Exec(schema)
	if err != nil {
		log.Printf("DB migration error: %v", err)
	}
	return err
}

// CreatePlayer creates a new player account (returns player ID)
func (db *DB) CreatePlayer(username, passHash string) (int64, error) {
	res, err := db.conn.Exec(
		"INSERT INTO players (username, pass_hash) VALUES (?, ?)",
		username, passHash,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetPlayerByUsername returns a player by username, or nil if none exists
func (db *DB) GetPlayerByUsername(username string) (*PlayerRow, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, pass_hash, created_at FROM players WHERE username = ?",
		username,
	)
	p := &PlayerRow{}
	err := row.Scan(&p.ID, &p.Username, &p.PassHash, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// UsernameExists checks if a username is taken
func (db *DB) UsernameExists(username string) (bool, error) {
	var count int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM players WHERE username = ?", username).Scan(&count)
	return count > 0, err
}

// GetSetting returns a stored setting, or "" when unset
func (db *DB) GetSetting(key string) string {
	var value string
	err := db.conn.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		log.Printf("DB: read setting %q: %v", key, err)
	}
	return value
}

// SetSetting stores a setting, replacing any previous value
func (db *DB) SetSetting(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	return err
}

// RecordRun stores a finished run
func (db *DB) RecordRun(playerID int64, score, kills int, duration float64) error {
	_, err := db.conn.Exec(
		"INSERT INTO runs (player_id, score, kills, duration) VALUES (?, ?, ?, ?)",
		playerID, score, kills, duration,
	)
	if err != nil {
		return fmt.Errorf("record run for player %d: %w", playerID, err)
	}
	return nil
}

// GetRuns returns the most recent runs of a player
func (db *DB) GetRuns(playerID int64, limit int) ([]RunRow, error) {
	rows, err := db.conn.Query(`
		SELECT id, player_id, score, kills, duration, created_at
		FROM runs WHERE player_id = ?
		ORDER BY id DESC LIMIT ?`,
		playerID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []RunRow
	for rows.Next() {
		var r RunRow
		if err := rows.Scan(&r.ID, &r.PlayerID, &r.Score, &r.Kills, &r.Duration, &r.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// LeaderboardEntry represents one row in the leaderboard
type LeaderboardEntry struct {
	Rank      int    `json:"rank"`
	Username  string `json:"username"`
	BestScore int    `json:"best_score"`
	Runs      int    `json:"runs"`
	Kills     int    `json:"kills"`
}

// GetLeaderboard returns pilots ordered by their best run
func (db *DB) GetLeaderboard(limit int) ([]LeaderboardEntry, error) {
	rows, err := db.conn.Query(`
		SELECT p.username, MAX(r.score), COUNT(r.id), SUM(r.kills)
		FROM runs r JOIN players p ON p.id = r.player_id
		GROUP BY p.id
		ORDER BY MAX(r.score) DESC, p.username ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []LeaderboardEntry
	rank := 1
	for rows.Next() {
		var e LeaderboardEntry
		if err := rows.Scan(&e.Username, &e.BestScore, &e.Runs, &e.Kills); err != nil {
			return nil, err
		}
		e.Rank = rank
		rank++
		result = append(result, e)
	}
	return result, rows.Err()
}

// InsertHits writes a batch of hit records in one transaction
func (db *DB) InsertHits(hits []HitRecord) error {
	if len(hits) == 0 {
		return nil
	}
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare("INSERT INTO hits (session_id, x, y, created_at) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, h := range hits {
		if _, err := stmt.Exec(h.SessionID, h.X, h.Y, h.At.UTC().Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("insert hit: %w", err)
		}
	}
	return tx.Commit()
}

// CountHits returns the number of stored hits for a session ("" for all)
func (db *DB) CountHits(sessionID string) (int, error) {
	var count int
	var err error
	if sessionID == "" {
		err = db.conn.QueryRow("SELECT COUNT(*) FROM hits").Scan(&count)
	} else {
		err = db.conn.QueryRow("SELECT COUNT(*) FROM hits WHERE session_id = ?", sessionID).Scan(&count)
	}
	return count, err
}

// SavePendingEvents replaces the persisted telemetry backlog, keeping the
// newest maxPendingEvents records.
func (db *DB) SavePendingEvents(records []string) error {
	if len(records) > maxPendingEvents {
		records = records[len(records)-maxPendingEvents:]
	}
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM pending_events"); err != nil {
		return fmt.Errorf("clear pending events: %w", err)
	}
	stmt, err := tx.Prepare("INSERT INTO pending_events (record) VALUES (?)")
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()
	for _, r := range records {
		if _, err := stmt.Exec(r); err != nil {
			return fmt.Errorf("insert pending event: %w", err)
		}
	}
	return tx.Commit()
}

// TakePendingEvents returns the persisted backlog in insertion order and
// clears it.
func (db *DB) TakePendingEvents() ([]string, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.Query("SELECT record FROM pending_events ORDER BY id")
	if err != nil {
		return nil, err
	}
	var records []string
	for rows.Next() {
		var r string
		if err := rows.Scan(&r); err != nil {
			rows.Close()
			return nil, err
		}
		records = append(records, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if _, err := tx.Exec("DELETE FROM pending_events"); err != nil {
		return nil, err
	}
	return records, tx.Commit()
}
