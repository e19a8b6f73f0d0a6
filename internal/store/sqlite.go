package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pbarbosa/zapbridge/internal/domain"
	"github.com/pbarbosa/zapbridge/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS users (
		wa_id TEXT PRIMARY KEY,
		active_flow_id TEXT,
		active_session_id TEXT,
		last_notified_at INTEGER,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS choice_sets (
		wa_id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		choices_json TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_choice_sets_expires ON choice_sets(expires_at);

	CREATE TABLE IF NOT EXISTS expected_inputs (
		wa_id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		expires_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_expected_inputs_expires ON expected_inputs(expires_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetUser retrieves a user by their channel identity.
func (s *SQLiteStore) GetUser(ctx context.Context, waID string) (*domain.User, error) {
	query := `
		SELECT wa_id, active_flow_id, active_session_id, last_notified_at, created_at, updated_at
		FROM users WHERE wa_id = ?`

	row := s.db.QueryRowContext(ctx, query, waID)

	var user domain.User
	var flowID, sessionID sql.NullString
	var lastNotified sql.NullInt64
	var createdAt, updatedAt int64

	err := row.Scan(&user.WaID, &flowID, &sessionID, &lastNotified, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	user.ActiveFlowID = flowID.String
	user.ActiveSessionID = sessionID.String
	if lastNotified.Valid {
		ts := time.Unix(lastNotified.Int64, 0)
		user.LastNotifiedAt = &ts
	}
	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)

	return &user, nil
}

// UpsertUser creates or updates a user record.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO users (wa_id, active_flow_id, active_session_id, last_notified_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(wa_id) DO UPDATE SET
		active_flow_id = excluded.active_flow_id,
		active_session_id = excluded.active_session_id,
		last_notified_at = COALESCE(excluded.last_notified_at, users.last_notified_at),
		updated_at = excluded.updated_at`

	var flowID, sessionID, lastNotified interface{}
	if user.ActiveFlowID != "" {
		flowID = user.ActiveFlowID
	}
	if user.ActiveSessionID != "" {
		sessionID = user.ActiveSessionID
	}
	if user.LastNotifiedAt != nil {
		lastNotified = user.LastNotifiedAt.Unix()
	}

	_, err := s.db.ExecContext(ctx, query,
		user.WaID, flowID, sessionID, lastNotified,
		user.CreatedAt.Unix(), user.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// UpsertChoiceSet replaces the stored choice set for the owning user.
func (s *SQLiteStore) UpsertChoiceSet(ctx context.Context, cs *domain.ChoiceSet) error {
	choicesJSON, err := json.Marshal(cs.Choices)
	if err != nil {
		return fmt.Errorf("marshal choices: %w", err)
	}

	query := `
	INSERT INTO choice_sets (wa_id, session_id, choices_json, created_at, expires_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(wa_id) DO UPDATE SET
		session_id = excluded.session_id,
		choices_json = excluded.choices_json,
		created_at = excluded.created_at,
		expires_at = excluded.expires_at`

	_, err = s.db.ExecContext(ctx, query,
		cs.WaID, cs.SessionID, string(choicesJSON),
		cs.CreatedAt.Unix(), cs.ExpiresAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert choice set: %w", err)
	}
	return nil
}

// DeleteChoiceSet removes the stored choice set for a user.
// Retries with exponential backoff to handle SQLITE_BUSY errors.
func (s *SQLiteStore) DeleteChoiceSet(ctx context.Context, waID string) error {
	return s.deleteWithRetry(ctx, `DELETE FROM choice_sets WHERE wa_id = ?`, waID)
}

// LoadChoiceSets returns all choice sets not yet expired at the given instant.
func (s *SQLiteStore) LoadChoiceSets(ctx context.Context, now time.Time) ([]*domain.ChoiceSet, error) {
	query := `
		SELECT wa_id, session_id, choices_json, created_at, expires_at
		FROM choice_sets WHERE expires_at > ?`

	rows, err := s.db.QueryContext(ctx, query, now.Unix())
	if err != nil {
		return nil, fmt.Errorf("query choice sets: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close choice set rows", "error", closeErr)
		}
	}()

	var sets []*domain.ChoiceSet
	for rows.Next() {
		var cs domain.ChoiceSet
		var choicesJSON string
		var createdAt, expiresAt int64

		if err := rows.Scan(&cs.WaID, &cs.SessionID, &choicesJSON, &createdAt, &expiresAt); err != nil {
			return nil, fmt.Errorf("scan choice set row: %w", err)
		}
		if err := json.Unmarshal([]byte(choicesJSON), &cs.Choices); err != nil {
			return nil, fmt.Errorf("unmarshal choices for %s: %w", cs.WaID, err)
		}

		cs.CreatedAt = time.Unix(createdAt, 0)
		cs.ExpiresAt = time.Unix(expiresAt, 0)
		sets = append(sets, &cs)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate choice sets: %w", err)
	}

	return sets, nil
}

// UpsertExpectedInput replaces the stored expected-input record for a user.
func (s *SQLiteStore) UpsertExpectedInput(ctx context.Context, ei *domain.ExpectedInput) error {
	query := `
	INSERT INTO expected_inputs (wa_id, kind, expires_at)
	VALUES (?, ?, ?)
	ON CONFLICT(wa_id) DO UPDATE SET
		kind = excluded.kind,
		expires_at = excluded.expires_at`

	_, err := s.db.ExecContext(ctx, query, ei.WaID, ei.Kind, ei.ExpiresAt.Unix())
	if err != nil {
		return fmt.Errorf("upsert expected input: %w", err)
	}
	return nil
}

// DeleteExpectedInput removes the stored expected-input record for a user.
func (s *SQLiteStore) DeleteExpectedInput(ctx context.Context, waID string) error {
	return s.deleteWithRetry(ctx, `DELETE FROM expected_inputs WHERE wa_id = ?`, waID)
}

// LoadExpectedInputs returns all expected-input records not yet expired.
func (s *SQLiteStore) LoadExpectedInputs(ctx context.Context, now time.Time) ([]*domain.ExpectedInput, error) {
	query := `SELECT wa_id, kind, expires_at FROM expected_inputs WHERE expires_at > ?`

	rows, err := s.db.QueryContext(ctx, query, now.Unix())
	if err != nil {
		return nil, fmt.Errorf("query expected inputs: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close expected input rows", "error", closeErr)
		}
	}()

	var inputs []*domain.ExpectedInput
	for rows.Next() {
		var ei domain.ExpectedInput
		var expiresAt int64

		if err := rows.Scan(&ei.WaID, &ei.Kind, &expiresAt); err != nil {
			return nil, fmt.Errorf("scan expected input row: %w", err)
		}

		ei.ExpiresAt = time.Unix(expiresAt, 0)
		inputs = append(inputs, &ei)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expected inputs: %w", err)
	}

	return inputs, nil
}

// DeleteExpired removes choice sets and expected inputs past their expiry.
func (s *SQLiteStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var total int64

	res, err := s.db.ExecContext(ctx, `DELETE FROM choice_sets WHERE expires_at <= ?`, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("delete expired choice sets: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		total += n
	}

	res, err = s.db.ExecContext(ctx, `DELETE FROM expected_inputs WHERE expires_at <= ?`, now.Unix())
	if err != nil {
		return total, fmt.Errorf("delete expired expected inputs: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		total += n
	}

	return total, nil
}

// deleteWithRetry runs a single-row delete, retrying on SQLite concurrency
// errors. These can occur while the sweeper and a pipeline write overlap.
func (s *SQLiteStore) deleteWithRetry(ctx context.Context, query, waID string) error {
	maxRetries := 3
	baseDelay := 100 * time.Millisecond

	for i := 0; i < maxRetries; i++ {
		_, err := s.db.ExecContext(ctx, query, waID)
		if err == nil {
			return nil
		}

		if shared.IsSQLiteConflictError(err) && i < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<i) // 100ms, 200ms, 400ms
			slog.Debug("delete failed with SQLITE_BUSY, retrying",
				"wa_id", waID,
				"attempt", i+1,
				"delay", delay)
			time.Sleep(delay)
			continue
		}

		return fmt.Errorf("delete record for %s: %w", waID, err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
