package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"calmchat/internal/models"
	"calmchat/internal/session/migrations"
	"calmchat/internal/util"

	"github.com/google/uuid"
)

// SQLiteStore keeps sessions in a local SQLite file so they survive restarts of the CLI and API.
type SQLiteStore struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := util.EnsureDir(filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("creating session db directory: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening session db: %w", err)
	}
	s := &SQLiteStore{db: db, path: path, now: time.Now}
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running session migrations: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Path() string {
	return s.path
}

func (s *SQLiteStore) migrate(fsys fs.FS) error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}
	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations: %w", err)
	}
	var upFiles []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".up.sql") {
			upFiles = append(upFiles, e.Name())
		}
	}
	sort.Strings(upFiles)
	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil || version <= current {
			continue
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations(version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Create(ctx context.Context, studyMode bool) (Session, error) {
	now := s.now().UTC()
	sess := Session{ID: uuid.NewString(), StudyMode: studyMode, CreatedAt: now, UpdatedAt: now, Turns: []models.Turn{}}
	_, err := s.db.ExecContext(ctx, `INSERT INTO sessions(id, study_mode, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		sess.ID, studyMode, formatTime(now), formatTime(now))
	if err != nil {
		return Session{}, fmt.Errorf("insert session: %w", err)
	}
	return sess, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (Session, error) {
	var (
		sess             Session
		created, updated string
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, study_mode, created_at, updated_at FROM sessions WHERE id = ?`, id).
		Scan(&sess.ID, &sess.StudyMode, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, notFound(id)
	}
	if err != nil {
		return Session{}, fmt.Errorf("get session: %w", err)
	}
	sess.CreatedAt = parseTime(created)
	sess.UpdatedAt = parseTime(updated)

	rows, err := s.db.QueryContext(ctx, `SELECT role, content, created_at FROM turns WHERE session_id = ? ORDER BY seq ASC`, id)
	if err != nil {
		return Session{}, fmt.Errorf("list turns: %w", err)
	}
	defer rows.Close()
	sess.Turns = make([]models.Turn, 0)
	for rows.Next() {
		var (
			t    models.Turn
			role string
			at   string
		)
		if err := rows.Scan(&role, &t.Text, &at); err != nil {
			return Session{}, fmt.Errorf("scan turn: %w", err)
		}
		t.Role = models.Role(role)
		t.Timestamp = parseTime(at)
		sess.Turns = append(sess.Turns, t)
	}
	if err := rows.Err(); err != nil {
		return Session{}, fmt.Errorf("iterate turns: %w", err)
	}
	return sess, nil
}

func (s *SQLiteStore) Append(ctx context.Context, id string, turns ...models.Turn) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append turns: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	res, err := tx.ExecContext(ctx, `UPDATE sessions SET updated_at = ? WHERE id = ?`, formatTime(s.now().UTC()), id)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound(id)
	}
	var next int
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM turns WHERE session_id = ?`, id).Scan(&next); err != nil {
		return fmt.Errorf("next turn seq: %w", err)
	}
	for _, t := range turns {
		next++
		if _, err := tx.ExecContext(ctx, `INSERT INTO turns(session_id, seq, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
			id, next, string(t.Role), t.Text, formatTime(t.Timestamp.UTC())); err != nil {
			return fmt.Errorf("insert turn: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append turns: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SetStudyMode(ctx context.Context, id string, studyMode bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET study_mode = ?, updated_at = ? WHERE id = ?`, studyMode, formatTime(s.now().UTC()), id)
	if err != nil {
		return fmt.Errorf("set study mode: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound(id)
	}
	return nil
}

func (s *SQLiteStore) End(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound(id)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]Info, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.study_mode, s.created_at, s.updated_at, COUNT(t.seq)
		FROM sessions s LEFT JOIN turns t ON t.session_id = s.id
		GROUP BY s.id
		ORDER BY s.updated_at DESC, s.id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()
	out := make([]Info, 0)
	for rows.Next() {
		var (
			info             Info
			created, updated string
		)
		if err := rows.Scan(&info.ID, &info.StudyMode, &created, &updated, &info.TurnCount); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		info.CreatedAt = parseTime(created)
		info.UpdatedAt = parseTime(updated)
		out = append(out, info)
	}
	return out, rows.Err()
}

// timeLayout has fixed-width fractions so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
