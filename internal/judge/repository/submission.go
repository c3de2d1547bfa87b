package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"intervue/internal/common/db"
	"intervue/internal/judge/model"
)

var (
	ErrDuplicateRun       = errors.New("submission for this run already persisted")
	ErrSubmissionNotFound = errors.New("submission not found")
)

// Submission is one persisted judge run outcome.
type Submission struct {
	ID             int64
	RunID          string
	SessionID      string
	QuestionID     int64
	Language       string
	Code           string
	ElapsedSeconds int64
	Results        []model.TestResult
	CreatedAt      time.Time
}

type SubmissionRepository interface {
	// Create persists exactly one row per run: the run_id column carries
	// a unique key, so a redundant re-poll that races the first insert
	// surfaces ErrDuplicateRun instead of a second row.
	Create(ctx context.Context, submission *Submission) error

	GetByRunID(ctx context.Context, runID string) (*Submission, error)
	ListBySession(ctx context.Context, sessionID string) ([]Submission, error)
}

type MySQLSubmissionRepository struct {
	db db.Database
}

func NewSubmissionRepository(database db.Database) SubmissionRepository {
	return &MySQLSubmissionRepository{db: database}
}

const submissionColumns = "id, run_id, session_id, question_id, language, code, elapsed_seconds, results, created_at"

func (r *MySQLSubmissionRepository) Create(ctx context.Context, submission *Submission) error {
	if submission == nil {
		return errors.New("submission is nil")
	}
	results, err := json.Marshal(submission.Results)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO submissions (run_id, session_id, question_id, language, code, elapsed_seconds, results)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	result, err := r.db.Exec(ctx, query,
		submission.RunID,
		submission.SessionID,
		submission.QuestionID,
		submission.Language,
		submission.Code,
		submission.ElapsedSeconds,
		string(results),
	)
	if err != nil {
		if db.UniqueViolation(err) {
			return ErrDuplicateRun
		}
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	submission.ID = id
	return nil
}

func (r *MySQLSubmissionRepository) GetByRunID(ctx context.Context, runID string) (*Submission, error) {
	query := "SELECT " + submissionColumns + " FROM submissions WHERE run_id = ?"
	row := r.db.QueryRow(ctx, query, runID)
	submission, err := scanSubmission(row)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}
	return submission, nil
}

func (r *MySQLSubmissionRepository) ListBySession(ctx context.Context, sessionID string) ([]Submission, error) {
	query := "SELECT " + submissionColumns + " FROM submissions WHERE session_id = ? ORDER BY created_at, id"
	rows, err := r.db.Query(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var submissions []Submission
	for rows.Next() {
		submission, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		submissions = append(submissions, *submission)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return submissions, nil
}

func scanSubmission(scanner db.Scanner) (*Submission, error) {
	var submission Submission
	var results string
	err := scanner.Scan(
		&submission.ID,
		&submission.RunID,
		&submission.SessionID,
		&submission.QuestionID,
		&submission.Language,
		&submission.Code,
		&submission.ElapsedSeconds,
		&results,
		&submission.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if results != "" {
		if err := json.Unmarshal([]byte(results), &submission.Results); err != nil {
			return nil, err
		}
	}
	return &submission, nil
}
