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

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"smsrelay/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
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

// ---- Scheduled tasks ----

const taskColumns = "id, name, enabled, interval_days, phone_number, content, last_run_at"

func scanTask(row interface{ Scan(...any) error }) (ScheduledTask, error) {
	var t ScheduledTask
	var enabled int
	err := row.Scan(&t.ID, &t.Name, &enabled, &t.IntervalDays, &t.PhoneNumber, &t.Content, &t.LastRunAt)
	t.Enabled = enabled != 0
	return t, err
}

func (s *sqliteStore) ListTasks(ctx context.Context) ([]ScheduledTask, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM scheduled_tasks ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ScheduledTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *sqliteStore) GetTask(ctx context.Context, id string) (ScheduledTask, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM scheduled_tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ScheduledTask{}, ErrNotFound
	}
	return t, err
}

func (s *sqliteStore) CreateTask(ctx context.Context, t ScheduledTask) (string, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scheduled_tasks(id, name, enabled, interval_days, phone_number, content, last_run_at)
		 VALUES(?,?,?,?,?,?,?)`,
		t.ID, t.Name, boolInt(t.Enabled), t.IntervalDays, t.PhoneNumber, t.Content, t.LastRunAt,
	)
	if err != nil {
		return "", err
	}
	return t.ID, nil
}

func (s *sqliteStore) UpdateTask(ctx context.Context, id string, t ScheduledTask) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_tasks
		 SET name = ?, enabled = ?, interval_days = ?, phone_number = ?, content = ?
		 WHERE id = ?`,
		t.Name, boolInt(t.Enabled), t.IntervalDays, t.PhoneNumber, t.Content, id,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *sqliteStore) DeleteTask(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scheduled_tasks WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *sqliteStore) ListDueTasks(ctx context.Context, now time.Time) ([]ScheduledTask, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM scheduled_tasks
		 WHERE enabled = 1
		   AND (last_run_at <= 0 OR last_run_at + interval_days * 86400000 <= ?)
		 ORDER BY last_run_at, id`,
		now.UnixMilli(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ScheduledTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *sqliteStore) MarkTaskRun(ctx context.Context, id string, when time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_tasks SET last_run_at = ? WHERE id = ?`,
		when.UnixMilli(), id,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// ---- Notification channels ----

func (s *sqliteStore) ListChannels(ctx context.Context) ([]Channel, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT type, enabled, config FROM notification_channels ORDER BY type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Channel
	for rows.Next() {
		var c Channel
		var enabled int
		var raw string
		if err := rows.Scan(&c.Type, &enabled, &raw); err != nil {
			return nil, err
		}
		c.Enabled = enabled != 0
		if raw != "" {
			if err := json.Unmarshal([]byte(raw), &c.Config); err != nil {
				return nil, fmt.Errorf("channel %s: corrupt config: %w", c.Type, err)
			}
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ReplaceChannels swaps the entire channel set in one transaction, so a
// dispatch in flight sees either the old set or the new one, never a mix.
func (s *sqliteStore) ReplaceChannels(ctx context.Context, channels []Channel) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM notification_channels`); err != nil {
		return err
	}
	for _, c := range channels {
		raw, err := json.Marshal(c.Config)
		if err != nil {
			return fmt.Errorf("channel %s: marshal config: %w", c.Type, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO notification_channels(type, enabled, config) VALUES(?,?,?)`,
			c.Type, boolInt(c.Enabled), string(raw),
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ---- Inbound messages ----

func (s *sqliteStore) AppendMessage(ctx context.Context, m InboundMessage) error {
	if m.ReceivedAt <= 0 {
		m.ReceivedAt = time.Now().UnixMilli()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages(sender, content, received_at) VALUES(?,?,?)`,
		m.From, m.Content, m.ReceivedAt,
	)
	return err
}

func (s *sqliteStore) Stats(ctx context.Context, now time.Time) (MessageStats, error) {
	var st MessageStats
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages`).Scan(&st.TotalCount); err != nil {
		return st, err
	}
	midnight := startOfDay(now).UnixMilli()
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE received_at >= ?`, midnight).Scan(&st.TodayCount); err != nil {
		return st, err
	}
	return st, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
