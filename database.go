package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// Reporter receives the outcome of a finished match. Calls are best-effort
// and never block gameplay.
type Reporter interface {
	ReportMatch(ctx context.Context, res MatchResult) error
}

// DB wraps the SQLite database connection
type DB struct {
	conn *sql.DB
}

// MatchRow represents a completed match
type MatchRow struct {
	ID         string
	WinnerID   string
	WinnerSlot int
	Reason     string
	Rounds     int
	Duration   float64 // seconds
	CreatedAt  time.Time
}

// MatchPlayerRow represents a player's participation in a match
type MatchPlayerRow struct {
	MatchID  string
	Slot     int
	PlayerID string
	Name     string
	Stats    CombatStats
}

// OpenDB opens (or creates) the SQLite database
func OpenDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

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
	CREATE TABLE IF NOT EXISTS matches (
		id TEXT PRIMARY KEY,
		winner_id TEXT NOT NULL DEFAULT '',
		winner_slot INTEGER NOT NULL DEFAULT -1,
		reason TEXT NOT NULL DEFAULT '',
		rounds INTEGER NOT NULL DEFAULT 0,
		duration REAL NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS match_players (
		match_id TEXT NOT NULL REFERENCES matches(id),
		slot INTEGER NOT NULL,
		player_id TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		damage_dealt INTEGER NOT NULL DEFAULT 0,
		damage_taken INTEGER NOT NULL DEFAULT 0,
		kills INTEGER NOT NULL DEFAULT 0,
		units_lost INTEGER NOT NULL DEFAULT 0,
		healing INTEGER NOT NULL DEFAULT 0,
		moves INTEGER NOT NULL DEFAULT 0,
		actions INTEGER NOT NULL DEFAULT 0,
		rejected INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (match_id, slot)
	);

	CREATE TABLE IF NOT EXISTS replays (
		match_id TEXT PRIMARY KEY REFERENCES matches(id),
		encoding TEXT NOT NULL DEFAULT 'msgpack+lz4',
		events INTEGER NOT NULL DEFAULT 0,
		data BLOB NOT NULL
	);

	CREATE TABLE IF NOT EXISTS analytics_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_type TEXT NOT NULL,
		player_id TEXT,
		match_id TEXT NOT NULL DEFAULT '',
		data TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_match_players_player ON match_players(player_id);
	CREATE INDEX IF NOT EXISTS idx_analytics_match ON analytics_events(match_id, event_type);
	`
	_, err := db.conn.Exec(schema)
	if err != nil {
		log.Printf("DB migration error: %v", err)
	}
	return err
}

// ReportMatch records the outcome, per-player combat stats and the replay
// in one transaction.
func (db *DB) ReportMatch(ctx context.Context, res MatchResult) error {
	blob, err := EncodeReplay(res.Replay)
	if err != nil {
		return err
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO matches (id, winner_id, winner_slot, reason, rounds, duration) VALUES (?, ?, ?, ?, ?, ?)",
		res.MatchID, res.WinnerID, res.WinnerSlot, res.Reason, res.Rounds, res.Duration.Seconds(),
	)
	if err != nil {
		return fmt.Errorf("insert match: %w", err)
	}

	for slot, pid := range res.Players {
		if pid == "" {
			continue
		}
		s := res.Stats[slot]
		_, err = tx.ExecContext(ctx,
			`INSERT INTO match_players (match_id, slot, player_id, name, damage_dealt, damage_taken, kills, units_lost, healing, moves, actions, rejected)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			res.MatchID, slot, pid, res.Names[slot],
			s.DamageDealt, s.DamageTaken, s.Kills, s.UnitsLost, s.Healing, s.Moves, s.Actions, s.Rejected,
		)
		if err != nil {
			return fmt.Errorf("insert match player: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO replays (match_id, events, data) VALUES (?, ?, ?)",
		res.MatchID, len(res.Replay), blob,
	)
	if err != nil {
		return fmt.Errorf("insert replay: %w", err)
	}
	return tx.Commit()
}

// GetMatch returns a recorded match by id
func (db *DB) GetMatch(id string) (*MatchRow, error) {
	row := db.conn.QueryRow(
		"SELECT id, winner_id, winner_slot, reason, rounds, duration, created_at FROM matches WHERE id = ?",
		id,
	)
	m := &MatchRow{}
	err := row.Scan(&m.ID, &m.WinnerID, &m.WinnerSlot, &m.Reason, &m.Rounds, &m.Duration, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}

// GetMatchPlayers returns the per-slot stats of a match
func (db *DB) GetMatchPlayers(matchID string) ([]MatchPlayerRow, error) {
	rows, err := db.conn.Query(`
		SELECT match_id, slot, player_id, name, damage_dealt, damage_taken, kills, units_lost, healing, moves, actions, rejected
		FROM match_players WHERE match_id = ? ORDER BY slot`,
		matchID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []MatchPlayerRow
	for rows.Next() {
		var r MatchPlayerRow
		s := &r.Stats
		if err := rows.Scan(&r.MatchID, &r.Slot, &r.PlayerID, &r.Name,
			&s.DamageDealt, &s.DamageTaken, &s.Kills, &s.UnitsLost, &s.Healing, &s.Moves, &s.Actions, &s.Rejected); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// GetReplay loads and decodes the replay of a match
func (db *DB) GetReplay(matchID string) ([]ReplayEvent, error) {
	var blob []byte
	err := db.conn.QueryRow("SELECT data FROM replays WHERE match_id = ?", matchID).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return DecodeReplay(blob)
}
