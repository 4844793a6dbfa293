package repairmap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Store persists repair maps in SQLite. One database holds one or more
// recovery sessions; the most recent session is the resume candidate.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// ErrNoSession indicates the map database holds no recovery session yet.
var ErrNoSession = errors.New("map database has no recovery session")

// Session describes one recovery run over a medium.
type Session struct {
	ID             string
	DevicePath     string
	SectorSize     int64
	SectorCount    int64
	SequenceLength int64
	BrutePasses    int64
	Stage          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// OpenStore initializes or connects to a map database at path.
func OpenStore(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("map database path must be set")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure map directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

// CreateSession records a new recovery session and its initial all-unknown
// map.
func (s *Store) CreateSession(ctx context.Context, devicePath string, sectorSize, sectorCount, sequenceLength, brutePasses int64) (*Session, error) {
	ctx = ensureContext(ctx)
	now := time.Now().UTC()
	session := &Session{
		ID:             uuid.NewString(),
		DevicePath:     devicePath,
		SectorSize:     sectorSize,
		SectorCount:    sectorCount,
		SequenceLength: sequenceLength,
		BrutePasses:    brutePasses,
		Stage:          StageNone,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := retryOnBusy(ctx, func() error {
		_, execErr := s.db.ExecContext(ctx,
			`INSERT INTO sessions (id, device_path, sector_size, sector_count, sequence_length, brute_passes, stage, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			session.ID, session.DevicePath, session.SectorSize, session.SectorCount,
			session.SequenceLength, session.BrutePasses, session.Stage,
			session.CreatedAt.Format(time.RFC3339Nano), session.UpdatedAt.Format(time.RFC3339Nano),
		)
		return execErr
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	initial := Snapshot{
		SectorCount: sectorCount,
		Runs:        []RunRecord{{Start: 0, Length: sectorCount, State: StateUnknown}},
	}
	if err := s.SaveSnapshot(ctx, session.ID, StageNone, initial); err != nil {
		return nil, err
	}
	return session, nil
}

// Stage markers persisted with a session. StageDone means the run completed
// all applicable stages.
const (
	StageNone      = "none"
	StageTrial     = "trial"
	StageIsolation = "isolation"
	StageBrute     = "brute"
	StageDone      = "done"
)

// LatestSession returns the most recently updated session, or ErrNoSession.
func (s *Store) LatestSession(ctx context.Context) (*Session, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx,
		`SELECT id, device_path, sector_size, sector_count, sequence_length, brute_passes, stage, created_at, updated_at
		 FROM sessions ORDER BY updated_at DESC, created_at DESC LIMIT 1`)
	return scanSession(row)
}

// SessionByID looks up one session.
func (s *Store) SessionByID(ctx context.Context, id string) (*Session, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx,
		`SELECT id, device_path, sector_size, sector_count, sequence_length, brute_passes, stage, created_at, updated_at
		 FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

func scanSession(row *sql.Row) (*Session, error) {
	var (
		session          Session
		created, updated string
	)
	err := row.Scan(&session.ID, &session.DevicePath, &session.SectorSize, &session.SectorCount,
		&session.SequenceLength, &session.BrutePasses, &session.Stage, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	if session.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return nil, fmt.Errorf("parse session created_at: %w", err)
	}
	if session.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return nil, fmt.Errorf("parse session updated_at: %w", err)
	}
	return &session, nil
}

// SaveSnapshot replaces the persisted map for a session and records the
// stage reached. The write is transactional so a crash never leaves a
// half-saved map.
func (s *Store) SaveSnapshot(ctx context.Context, sessionID, stage string, snap Snapshot) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin snapshot tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, "DELETE FROM sector_runs WHERE session_id = ?", sessionID); err != nil {
			return fmt.Errorf("clear sector runs: %w", err)
		}

		insert, err := tx.PrepareContext(ctx,
			"INSERT INTO sector_runs (session_id, start, length, state) VALUES (?, ?, ?, ?)")
		if err != nil {
			return fmt.Errorf("prepare run insert: %w", err)
		}
		defer insert.Close()

		for _, rec := range snap.Runs {
			if _, err := insert.ExecContext(ctx, sessionID, rec.Start, rec.Length, string(rec.State)); err != nil {
				return fmt.Errorf("insert sector run at %d: %w", rec.Start, err)
			}
		}

		res, err := tx.ExecContext(ctx,
			"UPDATE sessions SET stage = ?, updated_at = ? WHERE id = ?",
			stage, time.Now().UTC().Format(time.RFC3339Nano), sessionID)
		if err != nil {
			return fmt.Errorf("update session stage: %w", err)
		}
		if affected, err := res.RowsAffected(); err == nil && affected == 0 {
			return fmt.Errorf("session %s not found", sessionID)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit snapshot: %w", err)
		}
		return nil
	})
}

// LoadSnapshot reads the persisted map for a session.
func (s *Store) LoadSnapshot(ctx context.Context, sessionID string) (Snapshot, error) {
	ctx = ensureContext(ctx)

	session, err := s.SessionByID(ctx, sessionID)
	if err != nil {
		return Snapshot{}, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT start, length, state FROM sector_runs WHERE session_id = ? ORDER BY start", sessionID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("query sector runs: %w", err)
	}
	defer rows.Close()

	snap := Snapshot{SectorCount: session.SectorCount}
	for rows.Next() {
		var rec RunRecord
		var state string
		if err := rows.Scan(&rec.Start, &rec.Length, &state); err != nil {
			return Snapshot{}, fmt.Errorf("scan sector run: %w", err)
		}
		rec.State = State(state)
		snap.Runs = append(snap.Runs, rec)
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, fmt.Errorf("iterate sector runs: %w", err)
	}
	return snap, nil
}
