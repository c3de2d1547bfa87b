package service

import (
	"context"
	"encoding/json"
	"fmt"

	judgeModel "intervue/internal/judge/model"
	judgeRepo "intervue/internal/judge/repository"
	questionRepo "intervue/internal/question/repository"
	"intervue/internal/report/evalclient"
	sessionService "intervue/internal/session/service"
	appErr "intervue/pkg/errors"
	"intervue/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	TestStatusPassed = "passed"
	TestStatusFailed = "failed"
	TestStatusNotRun = "not_run"
)

// Evaluator grades the interview material into a scorecard.
type Evaluator interface {
	Evaluate(ctx context.Context, systemPrompt, userPrompt string) (evalclient.Scorecard, error)
}

// RunInvalidator drops a session's in-flight judge run once the session
// leaves the in_progress state.
type RunInvalidator interface {
	InvalidateSession(sessionID string)
}

// Config holds report service dependencies.
type Config struct {
	QuestionRepo   questionRepo.QuestionRepository
	SubmissionRepo judgeRepo.SubmissionRepository
	Sessions       *sessionService.SessionService
	Evaluator      Evaluator

	Archiver *Archiver
	Runs     RunInvalidator
}

// ReportService finalizes a session: it gathers everything the interview
// produced, asks the evaluator for a scorecard, and performs the guarded
// completion. Evaluation failures leave the session in progress with no
// partial scorecard written.
type ReportService struct {
	questionRepo   questionRepo.QuestionRepository
	submissionRepo judgeRepo.SubmissionRepository
	sessions       *sessionService.SessionService
	evaluator      Evaluator
	archiver       *Archiver
	runs           RunInvalidator
}

// TestOutcome is the per-test view carried into the report. Hidden cases
// keep only their id and outcome.
type TestOutcome struct {
	TestCaseID     int64  `json:"test_case_id"`
	Hidden         bool   `json:"hidden"`
	Input          string `json:"input"`
	ExpectedOutput string `json:"expected_output"`
	Status         string `json:"status"`
	Stdout         string `json:"stdout,omitempty"`
	Stderr         string `json:"stderr,omitempty"`
}

// CompleteInput is everything the caller supplies to finish a session.
// Expired marks the timer-driven auto-submit path.
type CompleteInput struct {
	SessionID  string
	UserID     int64
	FinalCode  string
	Transcript string
	Expired    bool
}

// CompleteResult reports whether this caller's write won the race.
type CompleteResult struct {
	Applied     bool                  `json:"applied"`
	AlreadyOver bool                  `json:"already_over"`
	Scorecard   *evalclient.Scorecard `json:"scorecard,omitempty"`
	TestResults []TestOutcome         `json:"test_results,omitempty"`
}

type reportEvents struct {
	Scorecard   evalclient.Scorecard `json:"scorecard"`
	TestResults []TestOutcome        `json:"testResults"`
}

// NewReportService creates a new report service.
func NewReportService(cfg Config) (*ReportService, error) {
	if cfg.QuestionRepo == nil {
		return nil, fmt.Errorf("question repository is required")
	}
	if cfg.SubmissionRepo == nil {
		return nil, fmt.Errorf("submission repository is required")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session service is required")
	}
	if cfg.Evaluator == nil {
		return nil, fmt.Errorf("evaluator is required")
	}
	return &ReportService{
		questionRepo:   cfg.QuestionRepo,
		submissionRepo: cfg.SubmissionRepo,
		sessions:       cfg.Sessions,
		evaluator:      cfg.Evaluator,
		archiver:       cfg.Archiver,
		runs:           cfg.Runs,
	}, nil
}

// Complete runs the full aggregation pipeline. Every step before the
// conditional update is side-effect free on the session row, so a lost
// race or a failed evaluation changes nothing.
func (s *ReportService) Complete(ctx context.Context, input CompleteInput) (CompleteResult, error) {
	session, err := s.sessions.Get(ctx, input.SessionID, input.UserID)
	if err != nil {
		return CompleteResult{}, err
	}
	if session.Status.IsTerminal() {
		return CompleteResult{AlreadyOver: true}, nil
	}

	question, err := s.questionRepo.GetByID(ctx, session.QuestionID)
	if err != nil {
		return CompleteResult{}, appErr.Wrapf(err, appErr.DatabaseError, "failed to load question")
	}
	cases, err := s.questionRepo.ListTestCases(ctx, session.QuestionID)
	if err != nil {
		return CompleteResult{}, appErr.Wrapf(err, appErr.DatabaseError, "failed to load test cases")
	}
	submissions, err := s.submissionRepo.ListBySession(ctx, session.ID)
	if err != nil {
		return CompleteResult{}, appErr.Wrapf(err, appErr.DatabaseError, "failed to load submissions")
	}

	outcomes := BuildOutcomes(cases, submissions)
	userPrompt := buildUserPrompt(question, input.Transcript, input.FinalCode, outcomes, submissions)

	scorecard, err := s.evaluator.Evaluate(ctx, systemPrompt, userPrompt)
	if err != nil {
		return CompleteResult{}, err
	}

	events, err := json.Marshal(reportEvents{Scorecard: scorecard, TestResults: outcomes})
	if err != nil {
		return CompleteResult{}, appErr.Wrapf(err, appErr.InternalServerError, "failed to encode report")
	}

	applied, err := s.sessions.MarkCompleted(ctx, session.ID, input.UserID, sessionService.CompletionRecord{
		FinalCode:  input.FinalCode,
		Transcript: input.Transcript,
		Events:     string(events),
		Expired:    input.Expired,
	})
	if err != nil {
		return CompleteResult{}, err
	}
	if !applied {
		return CompleteResult{AlreadyOver: true}, nil
	}

	if s.runs != nil {
		s.runs.InvalidateSession(session.ID)
	}
	s.archive(ctx, session.ID, input.Transcript, input.FinalCode, string(events))

	return CompleteResult{
		Applied:     true,
		Scorecard:   &scorecard,
		TestResults: outcomes,
	}, nil
}

// archive is best-effort: report storage is a convenience copy, never a
// reason to fail a completed session.
func (s *ReportService) archive(ctx context.Context, sessionID, transcript, finalCode, events string) {
	if s.archiver == nil {
		return
	}
	if err := s.archiver.Archive(ctx, sessionID, transcript, finalCode, events); err != nil {
		logger.Warn(ctx, "failed to archive session report",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}
}

// BuildOutcomes joins the full test case set against the most recent
// submission's results. Hidden cases are masked before anything leaves
// the service; cases the candidate never exercised read not_run.
func BuildOutcomes(cases []questionRepo.TestCase, submissions []judgeRepo.Submission) []TestOutcome {
	var latest map[int64]judgeModel.TestResult
	if len(submissions) > 0 {
		last := submissions[len(submissions)-1]
		latest = make(map[int64]judgeModel.TestResult, len(last.Results))
		for _, result := range last.Results {
			latest[result.TestCaseID] = result
		}
	}

	outcomes := make([]TestOutcome, 0, len(cases))
	for _, testCase := range cases {
		outcome := TestOutcome{
			TestCaseID:     testCase.ID,
			Hidden:         testCase.Hidden,
			Input:          testCase.Input,
			ExpectedOutput: testCase.ExpectedOutput,
			Status:         TestStatusNotRun,
		}
		if testCase.Hidden {
			outcome.Input = hiddenPlaceholder
			outcome.ExpectedOutput = hiddenPlaceholder
		}
		if result, ok := latest[testCase.ID]; ok && result.Finished {
			if result.Passed {
				outcome.Status = TestStatusPassed
			} else {
				outcome.Status = TestStatusFailed
			}
			if !testCase.Hidden {
				outcome.Stdout = result.Stdout
				outcome.Stderr = result.Stderr
			}
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}
