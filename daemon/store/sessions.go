package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// Session mirrors the transfer_sessions row, eagerly loading its Files when read through
// GetSession.
type Session struct {
	ID               string
	Direction        string // "send" | "receive"
	PeerDeviceID     string
	PeerName         string
	Status           string // queued|running|paused|success|failed|canceled
	TotalBytes       int64
	TransferredBytes int64
	AvgSpeedBPS      int64
	SaveDir          string
	CreatedAt        int64
	StartedAt        *int64
	FinishedAt       *int64
	ErrorCode        *string
	ErrorMessage     *string
	CleanupAfterAt   *int64
	Files            []File
}

// InsertSession inserts a new session row, or updates an existing one on conflict.
// started_at is preserved across updates if already set.
func (s *Store) InsertSession(session Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertSessionLocked(s.db, session)
}

// UpsertSessionProgress is the same on-conflict-update shape as InsertSession, exposed
// separately because it is called repeatedly from a flush loop rather than once at creation.
func (s *Store) UpsertSessionProgress(session Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin upsert_session_progress: %w", err)
	}
	defer tx.Rollback()

	if err := s.upsertSessionLocked(tx, session); err != nil {
		return err
	}
	return tx.Commit()
}

type execer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
}

func (s *Store) upsertSessionLocked(ex execer, session Session) error {
	_, err := ex.Exec(
		`INSERT INTO transfer_sessions
		 (id, direction, peer_device_id, peer_name, status, total_bytes, transferred_bytes,
		  avg_speed_bps, save_dir, created_at, started_at, finished_at, error_code,
		  error_message, cleanup_after_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   direction = excluded.direction,
		   peer_device_id = excluded.peer_device_id,
		   peer_name = excluded.peer_name,
		   status = excluded.status,
		   total_bytes = excluded.total_bytes,
		   transferred_bytes = excluded.transferred_bytes,
		   avg_speed_bps = excluded.avg_speed_bps,
		   save_dir = excluded.save_dir,
		   started_at = COALESCE(excluded.started_at, transfer_sessions.started_at),
		   finished_at = excluded.finished_at,
		   error_code = excluded.error_code,
		   error_message = excluded.error_message,
		   cleanup_after_at = excluded.cleanup_after_at`,
		session.ID, session.Direction, session.PeerDeviceID, session.PeerName, session.Status,
		session.TotalBytes, session.TransferredBytes, session.AvgSpeedBPS, session.SaveDir,
		session.CreatedAt, nullInt64(session.StartedAt), nullInt64(session.FinishedAt),
		nullString(session.ErrorCode), nullString(session.ErrorMessage),
		nullInt64(session.CleanupAfterAt),
	)
	if err != nil {
		return fmt.Errorf("store: upsert session: %w", err)
	}
	return nil
}

// GetSession reads a session and eagerly loads its files ordered by relative_path.
func (s *Store) GetSession(sessionID string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(
		`SELECT id, direction, peer_device_id, peer_name, status, total_bytes, transferred_bytes,
		        avg_speed_bps, save_dir, created_at, started_at, finished_at, error_code,
		        error_message, cleanup_after_at
		 FROM transfer_sessions WHERE id = ? LIMIT 1`,
		sessionID,
	)

	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("store: get session: %w", err)
	}

	files, err := s.listSessionFilesLocked(sessionID)
	if err != nil {
		return nil, err
	}
	session.Files = files
	return session, nil
}

func scanSession(row *sql.Row) (*Session, error) {
	var session Session
	var startedAt, finishedAt, cleanupAfterAt sql.NullInt64
	var errorCode, errorMessage sql.NullString

	err := row.Scan(
		&session.ID, &session.Direction, &session.PeerDeviceID, &session.PeerName, &session.Status,
		&session.TotalBytes, &session.TransferredBytes, &session.AvgSpeedBPS, &session.SaveDir,
		&session.CreatedAt, &startedAt, &finishedAt, &errorCode, &errorMessage, &cleanupAfterAt,
	)
	if err != nil {
		return nil, err
	}

	session.StartedAt = ptrInt64(startedAt)
	session.FinishedAt = ptrInt64(finishedAt)
	session.CleanupAfterAt = ptrInt64(cleanupAfterAt)
	session.ErrorCode = ptrString(errorCode)
	session.ErrorMessage = ptrString(errorMessage)
	return &session, nil
}

// HistoryFilter narrows ListHistory's result set. Cursor, when set, is an opaque created_at
// value: only rows strictly older are returned.
type HistoryFilter struct {
	Cursor       string
	Status       string
	PeerDeviceID string
	Limit        int
}

// HistoryPage is one page of session history, newest first.
type HistoryPage struct {
	Items      []Session
	NextCursor string
}

const historyLimitMax = 200

// ListHistory returns a cursor-paginated, newest-first page of sessions, each with its files
// loaded.
func (s *Store) ListHistory(filter HistoryFilter) (HistoryPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := filter.Limit
	if limit <= 0 {
		limit = 30
	}
	if limit < 1 {
		limit = 1
	}
	if limit > historyLimitMax {
		limit = historyLimitMax
	}

	rows, err := s.db.Query(
		`SELECT id, direction, peer_device_id, peer_name, status, total_bytes, transferred_bytes,
		        avg_speed_bps, save_dir, created_at, started_at, finished_at, error_code,
		        error_message, cleanup_after_at
		 FROM transfer_sessions
		 WHERE (? = '' OR created_at < CAST(? AS INTEGER))
		   AND (? = '' OR status = ?)
		   AND (? = '' OR peer_device_id = ?)
		 ORDER BY created_at DESC
		 LIMIT ?`,
		filter.Cursor, filter.Cursor, filter.Status, filter.Status, filter.PeerDeviceID, filter.PeerDeviceID, limit,
	)
	if err != nil {
		return HistoryPage{}, fmt.Errorf("store: list history: %w", err)
	}
	defer rows.Close()

	var page HistoryPage
	for rows.Next() {
		var session Session
		var startedAt, finishedAt, cleanupAfterAt sql.NullInt64
		var errorCode, errorMessage sql.NullString
		if err := rows.Scan(
			&session.ID, &session.Direction, &session.PeerDeviceID, &session.PeerName, &session.Status,
			&session.TotalBytes, &session.TransferredBytes, &session.AvgSpeedBPS, &session.SaveDir,
			&session.CreatedAt, &startedAt, &finishedAt, &errorCode, &errorMessage, &cleanupAfterAt,
		); err != nil {
			return HistoryPage{}, fmt.Errorf("store: scan history row: %w", err)
		}
		session.StartedAt = ptrInt64(startedAt)
		session.FinishedAt = ptrInt64(finishedAt)
		session.CleanupAfterAt = ptrInt64(cleanupAfterAt)
		session.ErrorCode = ptrString(errorCode)
		session.ErrorMessage = ptrString(errorMessage)

		files, err := s.listSessionFilesLocked(session.ID)
		if err != nil {
			return HistoryPage{}, err
		}
		session.Files = files
		page.Items = append(page.Items, session)
	}

	if len(page.Items) > 0 {
		page.NextCursor = fmt.Sprintf("%d", page.Items[len(page.Items)-1].CreatedAt)
	}
	return page, nil
}

// ClearHistory deletes sessions (cascading to files): all of them when all is true, otherwise
// only those created more than olderThanDays ago (clamped to 1..365).
func (s *Store) ClearHistory(all bool, olderThanDays int, nowMillis int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if all {
		if _, err := s.db.Exec("DELETE FROM transfer_files"); err != nil {
			return fmt.Errorf("store: clear history files: %w", err)
		}
		if _, err := s.db.Exec("DELETE FROM transfer_sessions"); err != nil {
			return fmt.Errorf("store: clear history sessions: %w", err)
		}
		return nil
	}

	days := olderThanDays
	if days < 1 {
		days = 1
	}
	if days > 365 {
		days = 365
	}
	threshold := nowMillis - int64(days)*86_400_000

	if _, err := s.db.Exec(
		"DELETE FROM transfer_files WHERE session_id IN (SELECT id FROM transfer_sessions WHERE created_at < ?)",
		threshold,
	); err != nil {
		return fmt.Errorf("store: clear history files: %w", err)
	}
	if _, err := s.db.Exec("DELETE FROM transfer_sessions WHERE created_at < ?", threshold); err != nil {
		return fmt.Errorf("store: clear history sessions: %w", err)
	}
	return nil
}

// CleanupExpired deletes sessions (cascading to files) whose cleanup_after_at has elapsed.
func (s *Store) CleanupExpired(nowMillis int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(
		"DELETE FROM transfer_files WHERE session_id IN (SELECT id FROM transfer_sessions WHERE cleanup_after_at IS NOT NULL AND cleanup_after_at <= ?)",
		nowMillis,
	); err != nil {
		return fmt.Errorf("store: cleanup expired files: %w", err)
	}
	if _, err := s.db.Exec(
		"DELETE FROM transfer_sessions WHERE cleanup_after_at IS NOT NULL AND cleanup_after_at <= ?",
		nowMillis,
	); err != nil {
		return fmt.Errorf("store: cleanup expired sessions: %w", err)
	}
	return nil
}
