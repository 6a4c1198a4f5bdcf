package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"ideasync/internal/models"
)

var ErrSnapshotNotFound = errors.New("snapshot not found")

// SnapshotStore keeps the latest announced snapshot of each session plus a
// member index for per-user listings.
type SnapshotStore struct {
	db     *sql.DB
	driver string
}

func NewSnapshotStore(db *sql.DB, driver string) *SnapshotStore {
	return &SnapshotStore{db: db, driver: strings.ToLower(driver)}
}

func (s *SnapshotStore) upsertSQL() string {
	if s.driver == "mysql" {
		return `INSERT INTO session_snapshots (session_id, title, created_by, status, payload, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE title = VALUES(title), created_by = VALUES(created_by),
				status = VALUES(status), payload = VALUES(payload), updated_at = VALUES(updated_at)`
	}
	return `INSERT INTO session_snapshots (session_id, title, created_by, status, payload, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET title = excluded.title, created_by = excluded.created_by,
			status = excluded.status, payload = excluded.payload, updated_at = excluded.updated_at`
}

// Save replaces the stored snapshot and its member rows.
func (s *SnapshotStore) Save(ctx context.Context, session *models.Session) error {
	if session == nil || session.ID == "" {
		return errors.New("snapshot requires a session id")
	}
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.upsertSQL(),
		session.ID, session.Title, session.CreatedBy, string(session.Status), string(payload), session.UpdatedAt.UnixMilli(),
	); err != nil {
		return fmt.Errorf("save snapshot %s: %w", session.ID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM session_members WHERE session_id = ?`, session.ID); err != nil {
		return fmt.Errorf("reset members %s: %w", session.ID, err)
	}
	for i, p := range session.Participants {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO session_members (session_id, user_id, position, joined_at) VALUES (?, ?, ?, ?)`,
			session.ID, p.UserID, i, p.JoinedAt.UnixMilli(),
		); err != nil {
			return fmt.Errorf("save member %s/%s: %w", session.ID, p.UserID, err)
		}
	}
	return tx.Commit()
}

// Load returns the snapshot of sessionID or ErrSnapshotNotFound.
func (s *SnapshotStore) Load(ctx context.Context, sessionID string) (*models.Session, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM session_snapshots WHERE session_id = ?`, sessionID,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", sessionID, err)
	}
	return decodeSnapshot(payload)
}

// ListByUser returns the snapshots userID is a member of, oldest join first.
func (s *SnapshotStore) ListByUser(ctx context.Context, userID string) ([]*models.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ss.payload FROM session_members sm
			JOIN session_snapshots ss ON ss.session_id = sm.session_id
			WHERE sm.user_id = ?
			ORDER BY sm.joined_at ASC, sm.session_id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list snapshots for %s: %w", userID, err)
	}
	defer rows.Close()

	var out []*models.Session
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		se, err := decodeSnapshot(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, se)
	}
	return out, rows.Err()
}

func decodeSnapshot(payload string) (*models.Session, error) {
	var se models.Session
	if err := json.Unmarshal([]byte(payload), &se); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &se, nil
}
