package state

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed sql/*.sql
var migrationsFS embed.FS

type migration struct {
	Version int
	Name    string
	UpSQL   string
}

func loadMigrations() ([]migration, error) {
	files, err := fs.ReadDir(migrationsFS, "sql")
	if err != nil {
		return nil, err
	}
	var migrations []migration
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		data, err := migrationsFS.ReadFile("sql/" + f.Name())
		if err != nil {
			return nil, err
		}
		var v int
		if _, err := fmt.Sscanf(f.Name(), "%d_", &v); err != nil {
			return nil, fmt.Errorf("invalid migration filename %s: %w", f.Name(), err)
		}
		migrations = append(migrations, migration{Version: v, Name: f.Name(), UpSQL: string(data)})
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	return migrations, nil
}

// migrate applies embedded migrations in order.
func migrate(db *sql.DB) error {
	migrations, err := loadMigrations()
	if err != nil {
		return err
	}
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`CREATE TABLE IF NOT EXISTS schema_version(version INTEGER NOT NULL);`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}
	var current int
	err = tx.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := tx.Exec(`INSERT INTO schema_version(version) VALUES (0)`); err != nil {
			return fmt.Errorf("init schema_version: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("read schema_version: %w", err)
	}
	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if _, err := tx.Exec(m.UpSQL); err != nil {
			return fmt.Errorf("migration %s: %w", m.Name, err)
		}
		if _, err := tx.Exec(`UPDATE schema_version SET version=?`, m.Version); err != nil {
			return fmt.Errorf("update schema_version: %w", err)
		}
		current = m.Version
	}
	return tx.Commit()
}

// SQLiteRepository keeps every run in state.db, one row per stage. Load
// returns the most recent run.
type SQLiteRepository struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and migrates it.
func OpenSQLite(path string) (*SQLiteRepository, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("state: migrate %s: %w", path, err)
	}
	return &SQLiteRepository{db: db}, nil
}

func (s *SQLiteRepository) Close() error { return s.db.Close() }

func (s *SQLiteRepository) Save(ctx context.Context, run *RunState) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO runs(run_id,project,status,started_at,updated_at) VALUES (?,?,?,?,?)
		ON CONFLICT(run_id) DO UPDATE SET project=excluded.project, status=excluded.status, updated_at=excluded.updated_at`,
		run.RunID, run.Project, run.Status, formatTime(run.StartedAt), formatTime(run.UpdatedAt)); err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM stage_records WHERE run_id=?`, run.RunID); err != nil {
		return fmt.Errorf("clear stage records: %w", err)
	}
	for _, id := range run.IDs() {
		rec := run.Stages[id]
		inputs, err := json.Marshal(rec.Inputs)
		if err != nil {
			return err
		}
		defects, err := json.Marshal(rec.Defects)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO stage_records(run_id,stage_id,status,fingerprint,content,retries,attempts,generation,
			inputs_json,source,defects_json,error,blocked_by,started_at,finished_at,produced_at) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			run.RunID, id, rec.Status, rec.Fingerprint, rec.Content, rec.Retries, rec.Attempts, rec.Generation,
			string(inputs), rec.Source, string(defects), rec.Error, rec.BlockedBy,
			formatTime(rec.StartedAt), formatTime(rec.FinishedAt), formatTime(rec.ProducedAt)); err != nil {
			return fmt.Errorf("save stage %s: %w", id, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteRepository) Load(ctx context.Context) (*RunState, error) {
	run := &RunState{Stages: make(map[string]*StageRecord)}
	var started, updated string
	err := s.db.QueryRowContext(ctx, `SELECT run_id,project,status,started_at,updated_at FROM runs
		ORDER BY started_at DESC, rowid DESC LIMIT 1`).Scan(&run.RunID, &run.Project, &run.Status, &started, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRun
	}
	if err != nil {
		return nil, err
	}
	run.StartedAt = parseTime(started)
	run.UpdatedAt = parseTime(updated)

	rows, err := s.db.QueryContext(ctx, `SELECT stage_id,status,fingerprint,content,retries,attempts,generation,
		inputs_json,source,defects_json,error,blocked_by,started_at,finished_at,produced_at
		FROM stage_records WHERE run_id=? ORDER BY stage_id`, run.RunID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id, inputs, defects             string
			startedAt, finishedAt, produced string
			rec                             StageRecord
		)
		if err := rows.Scan(&id, &rec.Status, &rec.Fingerprint, &rec.Content, &rec.Retries, &rec.Attempts, &rec.Generation,
			&inputs, &rec.Source, &defects, &rec.Error, &rec.BlockedBy, &startedAt, &finishedAt, &produced); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(inputs), &rec.Inputs); err != nil {
			return nil, fmt.Errorf("stage %s inputs: %w", id, err)
		}
		if err := json.Unmarshal([]byte(defects), &rec.Defects); err != nil {
			return nil, fmt.Errorf("stage %s defects: %w", id, err)
		}
		rec.StartedAt = parseTime(startedAt)
		rec.FinishedAt = parseTime(finishedAt)
		rec.ProducedAt = parseTime(produced)
		run.Stages[id] = &rec
	}
	return run, rows.Err()
}

// timeLayout is fixed width so stored times sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
