package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"intervue/internal/judge/judgeclient"
	"intervue/internal/judge/model"
	"intervue/internal/judge/repository"
	questionRepo "intervue/internal/question/repository"
	sessionRepo "intervue/internal/session/repository"
	appErr "intervue/pkg/errors"
	"intervue/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultPollInterval    = 1500 * time.Millisecond
	defaultMaxPollAttempts = 10

	// stderrLimit is the per-test stderr byte budget kept for candidates.
	stderrLimit      = 500
	truncationMarker = "\n\n...[truncated]"
)

// JudgeClient is the judge surface the run service needs.
type JudgeClient interface {
	SubmitBatch(ctx context.Context, submissions []judgeclient.Submission) ([]string, error)
	GetBatch(ctx context.Context, tokens []string) ([]judgeclient.SubmissionStatus, error)
}

// Config holds run service dependencies and settings.
type Config struct {
	Judge          JudgeClient
	QuestionRepo   questionRepo.QuestionRepository
	SessionRepo    sessionRepo.SessionRepository
	SubmissionRepo repository.SubmissionRepository

	PollInterval    time.Duration
	MaxPollAttempts int
}

// RunService submits candidate code to the judge and polls for results.
// Runs are tracked in memory only; per session at most one run is
// current, and starting a new one turns any in-flight poll on the old
// one stale.
type RunService struct {
	judge          JudgeClient
	questionRepo   questionRepo.QuestionRepository
	sessionRepo    sessionRepo.SessionRepository
	submissionRepo repository.SubmissionRepository

	pollInterval    time.Duration
	maxPollAttempts int
	now             func() time.Time

	mu         sync.Mutex
	runs       map[string]*model.Run
	currentRun map[string]string // sessionID -> runID
	persisted  map[string]bool   // runID -> submission row written
}

// StartRunInput describes one Run click.
type StartRunInput struct {
	SessionID string
	UserID    int64
	Language  string
	Code      string
}

// StartRunResult identifies the registered run.
type StartRunResult struct {
	RunID         string `json:"run_id"`
	TestCaseCount int    `json:"test_case_count"`
}

// NewRunService creates a new run service.
func NewRunService(cfg Config) (*RunService, error) {
	if cfg.Judge == nil {
		return nil, fmt.Errorf("judge client is required")
	}
	if cfg.QuestionRepo == nil {
		return nil, fmt.Errorf("question repository is required")
	}
	if cfg.SessionRepo == nil {
		return nil, fmt.Errorf("session repository is required")
	}
	if cfg.SubmissionRepo == nil {
		return nil, fmt.Errorf("submission repository is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.MaxPollAttempts <= 0 {
		cfg.MaxPollAttempts = defaultMaxPollAttempts
	}
	return &RunService{
		judge:           cfg.Judge,
		questionRepo:    cfg.QuestionRepo,
		sessionRepo:     cfg.SessionRepo,
		submissionRepo:  cfg.SubmissionRepo,
		pollInterval:    cfg.PollInterval,
		maxPollAttempts: cfg.MaxPollAttempts,
		now:             time.Now,
		runs:            make(map[string]*model.Run),
		currentRun:      make(map[string]string),
		persisted:       make(map[string]bool),
	}, nil
}

// StartRun assembles the executable source, submits the whole test case
// set as one judge batch, and registers the run as the session's current
// one. Any older run for the session stays pollable but turns stale, so
// its results are never persisted.
func (s *RunService) StartRun(ctx context.Context, input StartRunInput) (StartRunResult, error) {
	if input.SessionID == "" || input.Language == "" {
		return StartRunResult{}, appErr.New(appErr.InvalidParams).WithMessage("session id and language are required")
	}

	session, err := s.ownedSession(ctx, input.SessionID, input.UserID)
	if err != nil {
		return StartRunResult{}, err
	}
	if session.Status != sessionRepo.StatusInProgress {
		return StartRunResult{}, appErr.New(appErr.SessionAlreadyOver)
	}

	starter, err := s.questionRepo.GetStarterCode(ctx, session.QuestionID, input.Language)
	if err != nil {
		if errors.Is(err, questionRepo.ErrStarterCodeNotFound) {
			return StartRunResult{}, appErr.New(appErr.StarterCodeNotFound)
		}
		return StartRunResult{}, appErr.Wrapf(err, appErr.DatabaseError, "failed to load starter code")
	}

	cases, err := s.questionRepo.ListTestCases(ctx, session.QuestionID)
	if err != nil {
		return StartRunResult{}, appErr.Wrapf(err, appErr.DatabaseError, "failed to load test cases")
	}
	if len(cases) == 0 {
		return StartRunResult{}, appErr.New(appErr.TestCaseNotFound)
	}

	source := starter.Assemble(input.Code)
	submissions := make([]judgeclient.Submission, 0, len(cases))
	testCaseIDs := make([]int64, 0, len(cases))
	for _, testCase := range cases {
		submissions = append(submissions, judgeclient.Submission{
			LanguageID:     starter.LanguageID,
			SourceCode:     source,
			Stdin:          testCase.Input,
			ExpectedOutput: testCase.ExpectedOutput,
		})
		testCaseIDs = append(testCaseIDs, testCase.ID)
	}

	tokens, err := s.judge.SubmitBatch(ctx, submissions)
	if err != nil {
		return StartRunResult{}, err
	}

	run := &model.Run{
		RunID:         uuid.NewString(),
		SessionID:     session.ID,
		UserID:        session.UserID,
		QuestionID:    session.QuestionID,
		Language:      input.Language,
		CandidateCode: input.Code,
		Tokens:        tokens,
		TestCaseIDs:   testCaseIDs,
		SubmittedAt:   s.now(),
		TestCaseCount: len(cases),
	}
	run.ElapsedSeconds = int64(run.SubmittedAt.Sub(session.StartedAt) / time.Second)

	s.mu.Lock()
	s.runs[run.RunID] = run
	s.currentRun[session.ID] = run.RunID
	s.mu.Unlock()

	return StartRunResult{RunID: run.RunID, TestCaseCount: run.TestCaseCount}, nil
}

// PollOnce fetches current judge state for the run and returns a
// snapshot with whatever results are terminal so far. When every test is
// terminal and the run is still the session's current one, the
// submission row is persisted; the unique run_id key makes a racing
// re-poll harmless. A persistence failure is returned alongside the
// snapshot so the decoded results are not lost.
func (s *RunService) PollOnce(ctx context.Context, runID string, userID int64) (model.Snapshot, error) {
	run, current, err := s.lookupRun(runID, userID)
	if err != nil {
		return model.Snapshot{}, err
	}

	statuses, err := s.judge.GetBatch(ctx, run.Tokens)
	if err != nil {
		return model.Snapshot{}, err
	}

	snapshot := s.buildSnapshot(run, statuses)
	snapshot.Stale = !current
	if snapshot.Done && current {
		if err := s.persistOnce(ctx, run, snapshot); err != nil {
			return snapshot, err
		}
	}
	return snapshot, nil
}

// AwaitResult polls until every test case is terminal or the attempt
// budget runs out. onProgress receives each intermediate snapshot so
// partial results reach the caller while the loop is still going. On
// exhaustion the partial snapshot is returned with a poll timeout error.
func (s *RunService) AwaitResult(ctx context.Context, runID string, userID int64, onProgress func(model.Snapshot)) (model.Snapshot, error) {
	var snapshot model.Snapshot
	for attempt := 1; attempt <= s.maxPollAttempts; attempt++ {
		var err error
		snapshot, err = s.PollOnce(ctx, runID, userID)
		if err != nil {
			return snapshot, err
		}
		if onProgress != nil {
			onProgress(snapshot)
		}
		if snapshot.Done || snapshot.Stale {
			return snapshot, nil
		}
		if attempt == s.maxPollAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return snapshot, appErr.Wrap(ctx.Err(), appErr.Timeout)
		case <-time.After(s.pollInterval):
		}
	}
	return snapshot, appErr.Newf(appErr.PollTimeout, "judge results still pending after %d attempts", s.maxPollAttempts)
}

// InvalidateSession drops every run the session accumulated, stale ones
// included. Used when a session leaves the in_progress state.
func (s *RunService) InvalidateSession(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for runID, run := range s.runs {
		if run.SessionID == sessionID {
			delete(s.runs, runID)
			delete(s.persisted, runID)
		}
	}
	delete(s.currentRun, sessionID)
}

func (s *RunService) lookupRun(runID string, userID int64) (*model.Run, bool, error) {
	if runID == "" {
		return nil, false, appErr.New(appErr.InvalidParams).WithMessage("run id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return nil, false, appErr.New(appErr.RunNotFound)
	}
	if run.UserID != userID {
		return nil, false, appErr.New(appErr.SessionAccessDenied)
	}
	return run, s.currentRun[run.SessionID] == runID, nil
}

func (s *RunService) buildSnapshot(run *model.Run, statuses []judgeclient.SubmissionStatus) model.Snapshot {
	byToken := make(map[string]judgeclient.SubmissionStatus, len(statuses))
	for _, status := range statuses {
		byToken[status.Token] = status
	}

	snapshot := model.Snapshot{
		RunID:      run.RunID,
		SessionID:  run.SessionID,
		TotalCount: run.TestCaseCount,
	}
	allTerminal := true
	for index, token := range run.Tokens {
		result := model.TestResult{Token: token}
		if index < len(run.TestCaseIDs) {
			result.TestCaseID = run.TestCaseIDs[index]
		}
		status, ok := byToken[token]
		if ok {
			result.StatusID = status.StatusID
			result.StatusName = status.StatusName
			result.Stdout = status.Stdout
			result.Stderr = TruncateStderr(status.Stderr)
			result.Message = status.Message
			result.TimeSeconds = status.TimeSeconds
			result.MemoryKB = status.MemoryKB
			result.Finished = model.IsTerminal(status.StatusID)
			result.Passed = model.Passed(status.StatusID)
		}
		if !result.Finished {
			allTerminal = false
		} else if result.Passed {
			snapshot.PassedCount++
		} else {
			snapshot.FailedCount++
		}
		snapshot.Results = append(snapshot.Results, result)
	}
	snapshot.Done = allTerminal
	return snapshot
}

func (s *RunService) persistOnce(ctx context.Context, run *model.Run, snapshot model.Snapshot) error {
	s.mu.Lock()
	if s.persisted[run.RunID] {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	submission := &repository.Submission{
		RunID:          run.RunID,
		SessionID:      run.SessionID,
		QuestionID:     run.QuestionID,
		Language:       run.Language,
		Code:           run.CandidateCode,
		ElapsedSeconds: run.ElapsedSeconds,
		Results:        snapshot.Results,
	}
	if err := s.submissionRepo.Create(ctx, submission); err != nil {
		if errors.Is(err, repository.ErrDuplicateRun) {
			s.markPersisted(run.RunID)
			return nil
		}
		logger.Error(ctx, "failed to persist submission",
			zap.String("run_id", run.RunID),
			zap.String("session_id", run.SessionID),
			zap.Error(err),
		)
		return appErr.Wrapf(err, appErr.DatabaseError, "failed to persist submission")
	}
	s.markPersisted(run.RunID)
	return nil
}

func (s *RunService) markPersisted(runID string) {
	s.mu.Lock()
	s.persisted[runID] = true
	s.mu.Unlock()
}

func (s *RunService) ownedSession(ctx context.Context, sessionID string, userID int64) (*sessionRepo.Session, error) {
	session, err := s.sessionRepo.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sessionRepo.ErrSessionNotFound) {
			return nil, appErr.New(appErr.SessionNotFound)
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "failed to load session")
	}
	if session.UserID != userID {
		return nil, appErr.New(appErr.SessionAccessDenied)
	}
	return session, nil
}

// TruncateStderr caps stderr at the byte budget and appends a marker.
// Applying it to already-truncated output is a no-op.
func TruncateStderr(stderr string) string {
	if strings.HasSuffix(stderr, truncationMarker) {
		return stderr
	}
	if len(stderr) <= stderrLimit {
		return stderr
	}
	return stderr[:stderrLimit] + truncationMarker
}
