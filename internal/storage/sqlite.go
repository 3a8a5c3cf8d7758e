package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"playcue/internal/action"
	logx "playcue/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

const actionColumns = `id, action_type, time_of_day, date, is_daily, timezone, event_id, event_name, target,
	is_active, last_run, next_run, retry_count, max_retries, created_at, updated_at`

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection: SQLite has a single writer, and ":memory:" is per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Debug("sqlite store opened", logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Create(ctx context.Context, rec action.Record) (action.Record, error) {
	rec, err := prepareCreate(rec, time.Now())
	if err != nil {
		return action.Record{}, err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO actions(`+actionColumns+`) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO NOTHING`,
		rec.ID, string(rec.Type), nullStr(rec.Time), nullTime(rec.Date), boolInt(rec.IsDaily), nullStr(rec.Timezone),
		nullStr(rec.EventID), nullStr(rec.EventName), nullStr(rec.Target), boolInt(rec.IsActive),
		rec.LastRun, rec.NextRun, rec.RetryCount, rec.MaxRetries,
		rec.CreatedAt.Format(time.RFC3339Nano), rec.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return action.Record{}, err
	}
	got, err := s.Get(ctx, rec.ID)
	if err != nil {
		return action.Record{}, err
	}
	if !got.CreatedAt.Equal(rec.CreatedAt) {
		return action.Record{}, fmt.Errorf("%w: %s", ErrExists, rec.ID)
	}
	return got, nil
}

func (s *sqliteStore) Get(ctx context.Context, id string) (action.Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+actionColumns+` FROM actions WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return action.Record{}, fmt.Errorf("%w: %s", action.ErrNotFound, id)
	}
	return rec, err
}

func (s *sqliteStore) List(ctx context.Context) ([]action.Record, error) {
	return s.query(ctx, `SELECT `+actionColumns+` FROM actions ORDER BY created_at, id`)
}

func (s *sqliteStore) ListActive(ctx context.Context) ([]action.Record, error) {
	return s.query(ctx, `SELECT `+actionColumns+` FROM actions WHERE is_active = 1 ORDER BY created_at, id`)
}

func (s *sqliteStore) query(ctx context.Context, q string, args ...any) ([]action.Record, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []action.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *sqliteStore) Patch(ctx context.Context, id string, p action.Patch) (action.Record, error) {
	if p.Empty() {
		return s.Get(ctx, id)
	}
	sets := make([]string, 0, 5)
	args := make([]any, 0, 6)
	if p.IsActive != nil {
		sets = append(sets, "is_active = ?")
		args = append(args, boolInt(*p.IsActive))
	}
	if p.RetryCount != nil {
		sets = append(sets, "retry_count = ?")
		args = append(args, *p.RetryCount)
	}
	if p.LastRun != nil {
		sets = append(sets, "last_run = ?")
		args = append(args, *p.LastRun)
	}
	if p.NextRun != nil {
		sets = append(sets, "next_run = ?")
		args = append(args, *p.NextRun)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC().Format(time.RFC3339Nano), id)

	res, err := s.db.ExecContext(ctx, `UPDATE actions SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return action.Record{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return action.Record{}, fmt.Errorf("%w: %s", action.ErrNotFound, id)
	}
	return s.Get(ctx, id)
}

func (s *sqliteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM actions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", action.ErrNotFound, id)
	}
	return nil
}

func (s *sqliteStore) LoadRecoveryState(ctx context.Context) (action.RecoveryState, error) {
	var (
		last sql.NullString
		ids  string
	)
	err := s.db.QueryRowContext(ctx, `SELECT last_initialization, exhausted_ids FROM recovery_state WHERE id = 1`).Scan(&last, &ids)
	if errors.Is(err, sql.ErrNoRows) {
		return action.RecoveryState{}, nil
	}
	if err != nil {
		return action.RecoveryState{}, err
	}
	var st action.RecoveryState
	if last.Valid && last.String != "" {
		t, err := time.Parse(time.RFC3339Nano, last.String)
		if err != nil {
			return action.RecoveryState{}, fmt.Errorf("parse last_initialization: %w", err)
		}
		st.LastInitialization = t
	}
	if err := json.Unmarshal([]byte(ids), &st.ExhaustedIDs); err != nil {
		return action.RecoveryState{}, fmt.Errorf("parse exhausted_ids: %w", err)
	}
	return st, nil
}

func (s *sqliteStore) SaveRecoveryState(ctx context.Context, st action.RecoveryState) error {
	ids := st.ExhaustedIDs
	if ids == nil {
		ids = []string{}
	}
	b, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO recovery_state(id, last_initialization, exhausted_ids) VALUES(1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET last_initialization = excluded.last_initialization, exhausted_ids = excluded.exhausted_ids`,
		nullTime(st.LastInitialization), string(b),
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (action.Record, error) {
	var (
		rec                                       action.Record
		typ                                       string
		tod, date, tz, eventID, eventName, target sql.NullString
		isDaily, isActive                         int
		created, updated                          string
	)
	err := row.Scan(&rec.ID, &typ, &tod, &date, &isDaily, &tz, &eventID, &eventName, &target,
		&isActive, &rec.LastRun, &rec.NextRun, &rec.RetryCount, &rec.MaxRetries, &created, &updated)
	if err != nil {
		return action.Record{}, err
	}
	rec.Type = action.Type(typ)
	rec.Time = tod.String
	rec.IsDaily = isDaily != 0
	rec.Timezone = tz.String
	rec.EventID = eventID.String
	rec.EventName = eventName.String
	rec.Target = target.String
	rec.IsActive = isActive != 0
	if date.Valid && date.String != "" {
		if rec.Date, err = time.Parse(time.RFC3339Nano, date.String); err != nil {
			return action.Record{}, fmt.Errorf("action %s: parse date: %w", rec.ID, err)
		}
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return rec, nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
