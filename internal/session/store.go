package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/commercekit/dataport/internal/storage"
)

// ErrSessionNotFound is returned when a session id does not exist.
var ErrSessionNotFound = errors.New("session not found")

// Store persists sessions.
type Store struct {
	db storage.DBTX
}

// NewStore creates a session store over the given database handle.
func NewStore(db storage.DBTX) *Store {
	return &Store{db: db}
}

// Init creates the backing table when it does not exist yet.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS import_export_session (
			id          UUID PRIMARY KEY,
			profile_id  BIGINT NOT NULL,
			direction   TEXT NOT NULL,
			format      TEXT NOT NULL,
			file_name   TEXT NOT NULL,
			position    INT NOT NULL DEFAULT 0,
			total_count INT NOT NULL DEFAULT 0,
			file_size   BIGINT NOT NULL DEFAULT 0,
			record_ids  BIGINT[] NOT NULL DEFAULT '{}',
			messages    TEXT[] NOT NULL DEFAULT '{}',
			state       TEXT NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("create session table: %w", err)
	}
	return nil
}

// Create inserts a fresh session.
func (s *Store) Create(ctx context.Context, sess *Session) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO import_export_session (id, profile_id, direction, format, file_name, position, total_count, file_size, record_ids, messages, state, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		sess.ID, sess.ProfileID, sess.Direction, sess.Format, sess.FileName,
		sess.Position, sess.TotalCount, sess.FileSize, sess.RecordIDs,
		sess.Messages, string(sess.State), sess.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// Get loads a session by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	sess := &Session{}
	var state string
	row := s.db.QueryRow(ctx, `
		SELECT id, profile_id, direction, format, file_name, position, total_count, file_size, record_ids, messages, state, created_at
		FROM import_export_session WHERE id = $1`, id)
	err := row.Scan(&sess.ID, &sess.ProfileID, &sess.Direction, &sess.Format,
		&sess.FileName, &sess.Position, &sess.TotalCount, &sess.FileSize,
		&sess.RecordIDs, &sess.Messages, &state, &sess.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
		}
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	sess.State = State(state)
	return sess, nil
}

// Save persists the mutable fields after a page commits.
func (s *Store) Save(ctx context.Context, sess *Session) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE import_export_session
		SET position = $2, total_count = $3, file_size = $4, record_ids = $5, messages = $6, state = $7, file_name = $8
		WHERE id = $1`,
		sess.ID, sess.Position, sess.TotalCount, sess.FileSize,
		sess.RecordIDs, sess.Messages, string(sess.State), sess.FileName)
	if err != nil {
		return fmt.Errorf("save session %s: %w", sess.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s: %w", sess.ID, ErrSessionNotFound)
	}
	return nil
}

// List returns all sessions, newest first, without their id snapshots.
func (s *Store) List(ctx context.Context) ([]Session, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, profile_id, direction, format, file_name, position, total_count, messages, state, created_at
		FROM import_export_session ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var sess Session
		var state string
		err := rows.Scan(&sess.ID, &sess.ProfileID, &sess.Direction, &sess.Format,
			&sess.FileName, &sess.Position, &sess.TotalCount, &sess.Messages,
			&state, &sess.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sess.State = State(state)
		out = append(out, sess)
	}
	return out, rows.Err()
}

// Delete removes a session. Deleting a running session cancels it: the run
// cannot resume without its persisted state.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM import_export_session WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
	}
	return nil
}
