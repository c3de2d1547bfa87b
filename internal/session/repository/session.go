package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"intervue/internal/common/db"
)

var (
	ErrSessionNotFound      = errors.New("session not found")
	ErrInsufficientCredits  = errors.New("insufficient credits")
	ErrSessionAlreadyExists = errors.New("session already exists")
)

type SessionRepository interface {
	// CreateWithDebit inserts the session and debits one credit from its
	// owner in a single transaction. Either both happen or neither does.
	CreateWithDebit(ctx context.Context, session *Session) error

	Get(ctx context.Context, sessionID string) (*Session, error)

	// ConditionalUpdate applies the patch only while the stored status
	// equals expectedStatus. Returns whether the write applied; a lost
	// race is not an error.
	ConditionalUpdate(ctx context.Context, sessionID string, expectedStatus Status, patch Patch) (bool, error)

	ListByUser(ctx context.Context, userID int64) ([]Session, error)
	GetCredits(ctx context.Context, userID int64) (int64, error)
}

type MySQLSessionRepository struct {
	db db.Database
}

func NewSessionRepository(database db.Database) SessionRepository {
	return &MySQLSessionRepository{db: database}
}

const sessionColumns = "id, user_id, question_id, status, started_at, ended_at, final_code, transcript, events, visibility"

func (r *MySQLSessionRepository) CreateWithDebit(ctx context.Context, session *Session) error {
	if session == nil {
		return errors.New("session is nil")
	}
	if session.Status == "" {
		session.Status = StatusInProgress
	}
	if session.Visibility == "" {
		session.Visibility = VisibilityPrivate
	}
	if session.StartedAt.IsZero() {
		session.StartedAt = time.Now()
	}

	return r.db.Transaction(ctx, func(tx db.Transaction) error {
		debit := "UPDATE users SET credits = credits - 1 WHERE id = ? AND credits >= 1"
		result, err := tx.Exec(ctx, debit, session.UserID)
		if err != nil {
			return err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrInsufficientCredits
		}

		insert := `
			INSERT INTO sessions (id, user_id, question_id, status, started_at, visibility)
			VALUES (?, ?, ?, ?, ?, ?)`
		_, err = tx.Exec(ctx, insert,
			session.ID,
			session.UserID,
			session.QuestionID,
			session.Status,
			session.StartedAt,
			session.Visibility,
		)
		if err != nil {
			if db.UniqueViolation(err) {
				return ErrSessionAlreadyExists
			}
			return err
		}
		return nil
	})
}

func (r *MySQLSessionRepository) Get(ctx context.Context, sessionID string) (*Session, error) {
	query := "SELECT " + sessionColumns + " FROM sessions WHERE id = ?"
	row := r.db.QueryRow(ctx, query, sessionID)
	session, err := scanSession(row)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return session, nil
}

func (r *MySQLSessionRepository) ConditionalUpdate(ctx context.Context, sessionID string, expectedStatus Status, patch Patch) (bool, error) {
	if !patch.Status.Valid() {
		return false, errors.New("patch status is invalid")
	}

	query := `
		UPDATE sessions
		SET status = ?,
		    ended_at = COALESCE(?, ended_at),
		    final_code = COALESCE(?, final_code),
		    transcript = COALESCE(?, transcript),
		    events = COALESCE(?, events)
		WHERE id = ? AND status = ?`
	result, err := r.db.Exec(ctx, query,
		patch.Status,
		nullTime(patch.EndedAt),
		nullString(patch.FinalCode),
		nullString(patch.Transcript),
		nullString(patch.Events),
		sessionID,
		expectedStatus,
	)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *MySQLSessionRepository) ListByUser(ctx context.Context, userID int64) ([]Session, error) {
	query := "SELECT " + sessionColumns + " FROM sessions WHERE user_id = ? ORDER BY started_at DESC"
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *MySQLSessionRepository) GetCredits(ctx context.Context, userID int64) (int64, error) {
	var credits int64
	row := r.db.QueryRow(ctx, "SELECT credits FROM users WHERE id = ?", userID)
	if err := row.Scan(&credits); err != nil {
		if db.IsNoRows(err) {
			return 0, nil
		}
		return 0, err
	}
	return credits, nil
}

func scanSession(scanner db.Scanner) (*Session, error) {
	var session Session
	var endedAt sql.NullTime
	var finalCode, transcript, events sql.NullString
	err := scanner.Scan(
		&session.ID,
		&session.UserID,
		&session.QuestionID,
		&session.Status,
		&session.StartedAt,
		&endedAt,
		&finalCode,
		&transcript,
		&events,
		&session.Visibility,
	)
	if err != nil {
		return nil, err
	}
	if endedAt.Valid {
		session.EndedAt = &endedAt.Time
	}
	if finalCode.Valid {
		session.FinalCode = &finalCode.String
	}
	if transcript.Valid {
		session.Transcript = &transcript.String
	}
	if events.Valid {
		session.Events = &events.String
	}
	return &session, nil
}

func nullTime(value *time.Time) sql.NullTime {
	if value == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *value, Valid: true}
}

func nullString(value *string) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *value, Valid: true}
}
