// Package journal persists dispatched actions and match events to SQL.
//
// Two drivers are supported: "sqlite" (modernc.org/sqlite, pure Go) for local
// runs and "postgres" (lib/pq) for shared deployments. Statements are written
// with ? placeholders and rebound for postgres.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/Desai0/CR-Neuro/internal/action"
	"github.com/Desai0/CR-Neuro/internal/config"
	"github.com/Desai0/CR-Neuro/internal/types"
)

const opTimeout = 3 * time.Second

// ActionRecord is one journaled dispatch attempt.
type ActionRecord struct {
	ID         int64       `json:"id"`
	InstanceID string      `json:"instance_id"`
	Rule       types.Rule  `json:"rule"`
	Slot       int         `json:"slot"`
	Target     types.Point `json:"target"`
	Clamped    types.Point `json:"clamped"`
	Dispatched bool        `json:"dispatched"`
	Error      string      `json:"error,omitempty"`
	At         time.Time   `json:"at"`
}

// EventRecord is one journaled match transition.
type EventRecord struct {
	ID         int64         `json:"id"`
	InstanceID string        `json:"instance_id"`
	Event      string        `json:"event"`
	Elixir     types.Reading `json:"elixir"`
	At         time.Time     `json:"at"`
}

// Journal writes records for one bot instance.
type Journal struct {
	db         *sql.DB
	driver     string
	instanceID string
}

// Open connects to the configured database and ensures the schema exists.
func Open(ctx context.Context, instanceID string, cfg config.JournalConfig) (*Journal, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, fmt.Errorf("empty journal dsn")
	}

	var (
		db  *sql.DB
		err error
	)
	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(ctx, dsn)
	case "postgres":
		db, err = openPostgres(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown journal driver '%s'", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s journal: %w", cfg.Driver, err)
	}

	j := &Journal{db: db, driver: cfg.Driver, instanceID: instanceID}
	if err := j.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to prepare journal schema: %w", err)
	}

	slog.Info("journal opened", "driver", cfg.Driver, "instance_id", instanceID)
	return j, nil
}

func openSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if parent := filepath.Dir(path); parent != "" && parent != "." {
			if err := os.MkdirAll(parent, 0o755); err != nil {
				return nil, err
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection: an in-memory database lives and dies with it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	for _, pragma := range []string{
		`PRAGMA busy_timeout = 5000;`,
		`PRAGMA journal_mode = WAL;`,
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func openPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func (j *Journal) ensureSchema(ctx context.Context) error {
	id := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if j.driver == "postgres" {
		id = "BIGSERIAL PRIMARY KEY"
	}

	statements := []string{
		`
CREATE TABLE IF NOT EXISTS bot_actions (
    id ` + id + `,
    instance_id TEXT NOT NULL,
    rule TEXT NOT NULL,
    slot INTEGER NOT NULL,
    target_x INTEGER NOT NULL,
    target_y INTEGER NOT NULL,
    clamped_x INTEGER NOT NULL,
    clamped_y INTEGER NOT NULL,
    dispatched BOOLEAN NOT NULL,
    error TEXT NOT NULL DEFAULT '',
    created_at_ms BIGINT NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_bot_actions_instance_created ON bot_actions(instance_id, created_at_ms)`,
		`
CREATE TABLE IF NOT EXISTS bot_match_events (
    id ` + id + `,
    instance_id TEXT NOT NULL,
    event TEXT NOT NULL,
    elixir INTEGER,
    created_at_ms BIGINT NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_bot_match_events_instance_created ON bot_match_events(instance_id, created_at_ms)`,
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	for _, stmt := range statements {
		if _, err := j.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// RecordAction journals a dispatch result.
func (j *Journal) RecordAction(ctx context.Context, res action.Result) error {
	errText := ""
	if res.Err != nil {
		errText = res.Err.Error()
	}
	at := res.At
	if at.IsZero() {
		at = time.Now()
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	_, err := j.db.ExecContext(ctx, j.rebind(`
INSERT INTO bot_actions (
    instance_id, rule, slot, target_x, target_y, clamped_x, clamped_y, dispatched, error, created_at_ms
)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		j.instanceID, string(res.Action.Rule), res.Action.Slot,
		res.Action.Target.X, res.Action.Target.Y,
		res.Clamped.X, res.Clamped.Y,
		res.Dispatched, errText, at.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to record action: %w", err)
	}
	return nil
}

// RecordEvent journals a match transition together with the elixir reading.
func (j *Journal) RecordEvent(ctx context.Context, event string, state types.GameState) error {
	var elixir sql.NullInt64
	if state.Elixir.Known {
		elixir = sql.NullInt64{Int64: int64(state.Elixir.Value), Valid: true}
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	_, err := j.db.ExecContext(ctx, j.rebind(`
INSERT INTO bot_match_events (instance_id, event, elixir, created_at_ms)
VALUES (?, ?, ?, ?)`),
		j.instanceID, event, elixir, time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

// RecentActions returns up to limit actions for this instance, newest first.
func (j *Journal) RecentActions(ctx context.Context, limit int) ([]ActionRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	rows, err := j.db.QueryContext(ctx, j.rebind(`
SELECT id, instance_id, rule, slot, target_x, target_y, clamped_x, clamped_y, dispatched, error, created_at_ms
FROM bot_actions
WHERE instance_id = ?
ORDER BY created_at_ms DESC, id DESC
LIMIT ?`), j.instanceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query actions: %w", err)
	}
	defer rows.Close()

	var out []ActionRecord
	for rows.Next() {
		var (
			rec  ActionRecord
			rule string
			ms   int64
		)
		if err := rows.Scan(&rec.ID, &rec.InstanceID, &rule, &rec.Slot,
			&rec.Target.X, &rec.Target.Y, &rec.Clamped.X, &rec.Clamped.Y,
			&rec.Dispatched, &rec.Error, &ms); err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}
		rec.Rule = types.Rule(rule)
		rec.At = time.UnixMilli(ms).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// RecentEvents returns up to limit match events for this instance, newest first.
func (j *Journal) RecentEvents(ctx context.Context, limit int) ([]EventRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	rows, err := j.db.QueryContext(ctx, j.rebind(`
SELECT id, instance_id, event, elixir, created_at_ms
FROM bot_match_events
WHERE instance_id = ?
ORDER BY created_at_ms DESC, id DESC
LIMIT ?`), j.instanceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []EventRecord
	for rows.Next() {
		var (
			rec    EventRecord
			elixir sql.NullInt64
			ms     int64
		)
		if err := rows.Scan(&rec.ID, &rec.InstanceID, &rec.Event, &elixir, &ms); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if elixir.Valid {
			rec.Elixir = types.Known(int(elixir.Int64))
		}
		rec.At = time.UnixMilli(ms).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close closes the database.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// rebind converts ? placeholders to $n for postgres.
func (j *Journal) rebind(query string) string {
	if j.driver != "postgres" {
		return query
	}
	return rebindDollar(query)
}

func rebindDollar(query string) string {
	var sb strings.Builder
	sb.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
