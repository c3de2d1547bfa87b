package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"intervue/internal/common/cache"
	"intervue/internal/common/db"
)

const (
	defaultQuestionTTL      = 30 * time.Minute
	defaultQuestionEmptyTTL = 5 * time.Minute
	questionKeyPrefix       = "question:uri:"
	testCaseKeyPrefix       = "question:testcases:"
)

var (
	ErrQuestionNotFound    = errors.New("question not found")
	ErrStarterCodeNotFound = errors.New("starter code not found")
)

type QuestionRepository interface {
	GetByURI(ctx context.Context, questionURI string) (Question, error)
	GetByID(ctx context.Context, questionID int64) (Question, error)
	ListTestCases(ctx context.Context, questionID int64) ([]TestCase, error)
	GetStarterCode(ctx context.Context, questionID int64, language string) (StarterCode, error)
	ListStarterCodes(ctx context.Context, questionID int64) ([]StarterCode, error)
}

type MySQLQuestionRepository struct {
	db       db.Database
	cache    cache.Cache
	ttl      time.Duration
	emptyTTL time.Duration
}

func NewQuestionRepository(database db.Database, cacheClient cache.Cache) QuestionRepository {
	return NewQuestionRepositoryWithTTL(database, cacheClient, defaultQuestionTTL, defaultQuestionEmptyTTL)
}

func NewQuestionRepositoryWithTTL(database db.Database, cacheClient cache.Cache, ttl, emptyTTL time.Duration) QuestionRepository {
	if ttl <= 0 {
		ttl = defaultQuestionTTL
	}
	if emptyTTL <= 0 {
		emptyTTL = defaultQuestionEmptyTTL
	}
	return &MySQLQuestionRepository{
		db:       database,
		cache:    cacheClient,
		ttl:      ttl,
		emptyTTL: emptyTTL,
	}
}

func (r *MySQLQuestionRepository) GetByURI(ctx context.Context, questionURI string) (Question, error) {
	if r.cache != nil {
		question, err := cache.GetWithCached[Question](
			ctx,
			r.cache,
			questionKey(questionURI),
			cache.JitterTTL(r.ttl),
			cache.JitterTTL(r.emptyTTL),
			func(q Question) bool { return q.ID == 0 },
			marshalQuestion,
			unmarshalQuestion,
			func(ctx context.Context) (Question, error) {
				question, err := r.getByURIFromDB(ctx, questionURI)
				if err != nil {
					if errors.Is(err, ErrQuestionNotFound) {
						return Question{}, nil
					}
					return Question{}, err
				}
				return question, nil
			},
		)
		if err != nil {
			return Question{}, err
		}
		if question.ID == 0 {
			return Question{}, ErrQuestionNotFound
		}
		return question, nil
	}
	return r.getByURIFromDB(ctx, questionURI)
}

func (r *MySQLQuestionRepository) GetByID(ctx context.Context, questionID int64) (Question, error) {
	query := `
		SELECT id, question_uri, question_number, title, description_md, difficulty, summary, created_at
		FROM questions
		WHERE id = ?`
	row := r.db.QueryRow(ctx, query, questionID)
	question, err := scanQuestion(row)
	if err != nil {
		if db.IsNoRows(err) {
			return Question{}, ErrQuestionNotFound
		}
		return Question{}, err
	}
	return question, nil
}

// ListTestCases returns all test cases for the question, hidden ones
// included, ordered by creation time.
func (r *MySQLQuestionRepository) ListTestCases(ctx context.Context, questionID int64) ([]TestCase, error) {
	if r.cache != nil {
		return cache.GetWithCached[[]TestCase](
			ctx,
			r.cache,
			testCaseKey(questionID),
			cache.JitterTTL(r.ttl),
			cache.JitterTTL(r.emptyTTL),
			func(cases []TestCase) bool { return len(cases) == 0 },
			marshalTestCases,
			unmarshalTestCases,
			func(ctx context.Context) ([]TestCase, error) {
				return r.listTestCasesFromDB(ctx, questionID)
			},
		)
	}
	return r.listTestCasesFromDB(ctx, questionID)
}

func (r *MySQLQuestionRepository) GetStarterCode(ctx context.Context, questionID int64, language string) (StarterCode, error) {
	query := `
		SELECT question_id, language, language_id, imports, code, main
		FROM starter_codes
		WHERE question_id = ? AND language = ?`
	row := r.db.QueryRow(ctx, query, questionID, language)
	starter, err := scanStarterCode(row)
	if err != nil {
		if db.IsNoRows(err) {
			return StarterCode{}, ErrStarterCodeNotFound
		}
		return StarterCode{}, err
	}
	return starter, nil
}

func (r *MySQLQuestionRepository) ListStarterCodes(ctx context.Context, questionID int64) ([]StarterCode, error) {
	query := `
		SELECT question_id, language, language_id, imports, code, main
		FROM starter_codes
		WHERE question_id = ?
		ORDER BY language`
	rows, err := r.db.Query(ctx, query, questionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var starters []StarterCode
	for rows.Next() {
		starter, err := scanStarterCode(rows)
		if err != nil {
			return nil, err
		}
		starters = append(starters, starter)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return starters, nil
}

func (r *MySQLQuestionRepository) getByURIFromDB(ctx context.Context, questionURI string) (Question, error) {
	query := `
		SELECT id, question_uri, question_number, title, description_md, difficulty, summary, created_at
		FROM questions
		WHERE question_uri = ?`
	row := r.db.QueryRow(ctx, query, questionURI)
	question, err := scanQuestion(row)
	if err != nil {
		if db.IsNoRows(err) {
			return Question{}, ErrQuestionNotFound
		}
		return Question{}, err
	}
	return question, nil
}

func (r *MySQLQuestionRepository) listTestCasesFromDB(ctx context.Context, questionID int64) ([]TestCase, error) {
	query := `
		SELECT id, question_id, input, expected_output, hidden, created_at
		FROM test_cases
		WHERE question_id = ?
		ORDER BY created_at, id`
	rows, err := r.db.Query(ctx, query, questionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cases []TestCase
	for rows.Next() {
		testCase, err := scanTestCase(rows)
		if err != nil {
			return nil, err
		}
		cases = append(cases, testCase)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return cases, nil
}

func questionKey(questionURI string) string {
	return questionKeyPrefix + questionURI
}

func testCaseKey(questionID int64) string {
	return testCaseKeyPrefix + strconv.FormatInt(questionID, 10)
}

func marshalQuestion(question Question) string {
	payload, err := json.Marshal(question)
	if err != nil {
		return ""
	}
	return string(payload)
}

func unmarshalQuestion(data string) (Question, error) {
	if data == "" {
		return Question{}, nil
	}
	var question Question
	if err := json.Unmarshal([]byte(data), &question); err != nil {
		return Question{}, err
	}
	return question, nil
}

func marshalTestCases(cases []TestCase) string {
	payload, err := json.Marshal(cases)
	if err != nil {
		return ""
	}
	return string(payload)
}

func unmarshalTestCases(data string) ([]TestCase, error) {
	if data == "" {
		return nil, nil
	}
	var cases []TestCase
	if err := json.Unmarshal([]byte(data), &cases); err != nil {
		return nil, err
	}
	return cases, nil
}

func scanQuestion(scanner db.Scanner) (Question, error) {
	var question Question
	err := scanner.Scan(
		&question.ID,
		&question.QuestionURI,
		&question.QuestionNumber,
		&question.Title,
		&question.DescriptionMD,
		&question.Difficulty,
		&question.Summary,
		&question.CreatedAt,
	)
	if err != nil {
		return Question{}, err
	}
	return question, nil
}

func scanTestCase(scanner db.Scanner) (TestCase, error) {
	var testCase TestCase
	err := scanner.Scan(
		&testCase.ID,
		&testCase.QuestionID,
		&testCase.Input,
		&testCase.ExpectedOutput,
		&testCase.Hidden,
		&testCase.CreatedAt,
	)
	if err != nil {
		return TestCase{}, err
	}
	return testCase, nil
}

func scanStarterCode(scanner db.Scanner) (StarterCode, error) {
	var starter StarterCode
	err := scanner.Scan(
		&starter.QuestionID,
		&starter.Language,
		&starter.LanguageID,
		&starter.Imports,
		&starter.Code,
		&starter.Main,
	)
	if err != nil {
		return StarterCode{}, err
	}
	return starter, nil
}
