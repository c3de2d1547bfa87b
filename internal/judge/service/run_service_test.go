package service_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"intervue/internal/judge/judgeclient"
	"intervue/internal/judge/model"
	"intervue/internal/judge/repository"
	"intervue/internal/judge/service"
	questionRepo "intervue/internal/question/repository"
	sessionRepo "intervue/internal/session/repository"
	appErr "intervue/pkg/errors"
)

// fakeJudge returns scripted statuses: each GetBatch call advances to the
// next frame, and the last frame repeats.
type fakeJudge struct {
	mu         sync.Mutex
	submitted  [][]judgeclient.Submission
	nextToken  int
	frames     [][]judgeclient.SubmissionStatus
	getCalls   int
	submitErr  error
	lastTokens []string
}

func (f *fakeJudge) SubmitBatch(ctx context.Context, submissions []judgeclient.Submission) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.submitted = append(f.submitted, submissions)
	tokens := make([]string, len(submissions))
	for i := range submissions {
		tokens[i] = "tok-" + string(rune('a'+f.nextToken))
		f.nextToken++
	}
	f.lastTokens = tokens
	return tokens, nil
}

func (f *fakeJudge) GetBatch(ctx context.Context, tokens []string) ([]judgeclient.SubmissionStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	frame := f.getCalls
	if frame >= len(f.frames) {
		frame = len(f.frames) - 1
	}
	f.getCalls++
	if frame < 0 {
		return nil, nil
	}
	statuses := make([]judgeclient.SubmissionStatus, 0, len(tokens))
	for i, token := range tokens {
		if i < len(f.frames[frame]) {
			status := f.frames[frame][i]
			status.Token = token
			statuses = append(statuses, status)
		}
	}
	return statuses, nil
}

type fakeSubmissionRepo struct {
	mu      sync.Mutex
	created []repository.Submission
	err     error
}

func (f *fakeSubmissionRepo) Create(ctx context.Context, submission *repository.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	for _, existing := range f.created {
		if existing.RunID == submission.RunID {
			return repository.ErrDuplicateRun
		}
	}
	f.created = append(f.created, *submission)
	return nil
}

func (f *fakeSubmissionRepo) GetByRunID(ctx context.Context, runID string) (*repository.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.created {
		if f.created[i].RunID == runID {
			return &f.created[i], nil
		}
	}
	return nil, repository.ErrSubmissionNotFound
}

func (f *fakeSubmissionRepo) ListBySession(ctx context.Context, sessionID string) ([]repository.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []repository.Submission
	for _, submission := range f.created {
		if submission.SessionID == sessionID {
			out = append(out, submission)
		}
	}
	return out, nil
}

func (f *fakeSubmissionRepo) rows() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

type fakeSessionRepo struct {
	sessions map[string]*sessionRepo.Session
}

func (f *fakeSessionRepo) CreateWithDebit(ctx context.Context, session *sessionRepo.Session) error {
	f.sessions[session.ID] = session
	return nil
}

func (f *fakeSessionRepo) Get(ctx context.Context, sessionID string) (*sessionRepo.Session, error) {
	session, ok := f.sessions[sessionID]
	if !ok {
		return nil, sessionRepo.ErrSessionNotFound
	}
	copied := *session
	return &copied, nil
}

func (f *fakeSessionRepo) ConditionalUpdate(ctx context.Context, sessionID string, expectedStatus sessionRepo.Status, patch sessionRepo.Patch) (bool, error) {
	session, ok := f.sessions[sessionID]
	if !ok || session.Status != expectedStatus {
		return false, nil
	}
	session.Status = patch.Status
	return true, nil
}

func (f *fakeSessionRepo) ListByUser(ctx context.Context, userID int64) ([]sessionRepo.Session, error) {
	return nil, nil
}

func (f *fakeSessionRepo) GetCredits(ctx context.Context, userID int64) (int64, error) {
	return 0, nil
}

type fakeQuestionRepo struct {
	starter questionRepo.StarterCode
	cases   []questionRepo.TestCase
}

func (f *fakeQuestionRepo) GetByURI(ctx context.Context, questionURI string) (questionRepo.Question, error) {
	return questionRepo.Question{}, questionRepo.ErrQuestionNotFound
}

func (f *fakeQuestionRepo) GetByID(ctx context.Context, questionID int64) (questionRepo.Question, error) {
	return questionRepo.Question{ID: questionID}, nil
}

func (f *fakeQuestionRepo) ListTestCases(ctx context.Context, questionID int64) ([]questionRepo.TestCase, error) {
	return f.cases, nil
}

func (f *fakeQuestionRepo) GetStarterCode(ctx context.Context, questionID int64, language string) (questionRepo.StarterCode, error) {
	if f.starter.Language != language {
		return questionRepo.StarterCode{}, questionRepo.ErrStarterCodeNotFound
	}
	return f.starter, nil
}

func (f *fakeQuestionRepo) ListStarterCodes(ctx context.Context, questionID int64) ([]questionRepo.StarterCode, error) {
	return []questionRepo.StarterCode{f.starter}, nil
}

func accepted() judgeclient.SubmissionStatus {
	return judgeclient.SubmissionStatus{StatusID: model.StatusAccepted, StatusName: "Accepted", Stdout: "ok"}
}

func processing() judgeclient.SubmissionStatus {
	return judgeclient.SubmissionStatus{StatusID: model.StatusProcessing, StatusName: "Processing"}
}

func wrongAnswer() judgeclient.SubmissionStatus {
	return judgeclient.SubmissionStatus{StatusID: model.StatusWrongAnswer, StatusName: "Wrong Answer", Stdout: "nope"}
}

type runHarness struct {
	svc   *service.RunService
	judge *fakeJudge
	subs  *fakeSubmissionRepo
	sess  *fakeSessionRepo
}

func newRunHarness(t *testing.T, judge *fakeJudge) *runHarness {
	t.Helper()
	sess := &fakeSessionRepo{sessions: map[string]*sessionRepo.Session{
		"sess-1": {
			ID:         "sess-1",
			UserID:     1,
			QuestionID: 7,
			Status:     sessionRepo.StatusInProgress,
			StartedAt:  time.Now().Add(-3 * time.Minute),
		},
	}}
	questions := &fakeQuestionRepo{
		starter: questionRepo.StarterCode{
			QuestionID: 7,
			Language:   "python",
			LanguageID: 71,
			Imports:    "import sys",
			Code:       "def solve():\n    pass",
			Main:       "solve()",
		},
		cases: []questionRepo.TestCase{
			{ID: 101, QuestionID: 7, Input: "1 2", ExpectedOutput: "3"},
			{ID: 102, QuestionID: 7, Input: "5 5", ExpectedOutput: "10", Hidden: true},
		},
	}
	subs := &fakeSubmissionRepo{}
	svc, err := service.NewRunService(service.Config{
		Judge:          judge,
		QuestionRepo:   questions,
		SessionRepo:    sess,
		SubmissionRepo: subs,
		PollInterval:   time.Millisecond,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return &runHarness{svc: svc, judge: judge, subs: subs, sess: sess}
}

func (h *runHarness) start(t *testing.T) service.StartRunResult {
	t.Helper()
	result, err := h.svc.StartRun(context.Background(), service.StartRunInput{
		SessionID: "sess-1",
		UserID:    1,
		Language:  "python",
		Code:      "def solve():\n    print(3)",
	})
	if err != nil {
		t.Fatalf("start run failed: %v", err)
	}
	return result
}

func TestStartRunSubmitsWholeBatch(t *testing.T) {
	t.Parallel()
	judge := &fakeJudge{frames: [][]judgeclient.SubmissionStatus{{accepted(), accepted()}}}
	h := newRunHarness(t, judge)

	result := h.start(t)
	if result.TestCaseCount != 2 {
		t.Fatalf("expected 2 test cases, got %d", result.TestCaseCount)
	}
	if len(judge.submitted) != 1 || len(judge.submitted[0]) != 2 {
		t.Fatalf("expected one batch of 2 submissions, got %v", judge.submitted)
	}
	source := judge.submitted[0][0].SourceCode
	for _, part := range []string{"import sys", "def solve():\n    print(3)", "solve()"} {
		if !strings.Contains(source, part) {
			t.Fatalf("assembled source missing %q:\n%s", part, source)
		}
	}
}

func TestStartRunRejectsTerminalSession(t *testing.T) {
	t.Parallel()
	judge := &fakeJudge{}
	h := newRunHarness(t, judge)
	h.sess.sessions["sess-1"].Status = sessionRepo.StatusCompleted

	_, err := h.svc.StartRun(context.Background(), service.StartRunInput{
		SessionID: "sess-1", UserID: 1, Language: "python", Code: "x",
	})
	if appErr.GetCode(err) != appErr.SessionAlreadyOver {
		t.Fatalf("expected SessionAlreadyOver, got %v", err)
	}
	if len(judge.submitted) != 0 {
		t.Fatal("terminal session must not reach the judge")
	}
}

func TestPollOncePartialThenDone(t *testing.T) {
	t.Parallel()
	judge := &fakeJudge{frames: [][]judgeclient.SubmissionStatus{
		{accepted(), processing()},
		{accepted(), wrongAnswer()},
	}}
	h := newRunHarness(t, judge)
	result := h.start(t)

	snapshot, err := h.svc.PollOnce(context.Background(), result.RunID, 1)
	if err != nil {
		t.Fatalf("poll failed: %v", err)
	}
	if snapshot.Done {
		t.Fatal("run must not be done while a test is processing")
	}
	if snapshot.PassedCount != 1 || snapshot.FailedCount != 0 {
		t.Fatalf("partial counts wrong: passed=%d failed=%d", snapshot.PassedCount, snapshot.FailedCount)
	}
	if h.subs.rows() != 0 {
		t.Fatal("nothing may persist before the run is done")
	}

	snapshot, err = h.svc.PollOnce(context.Background(), result.RunID, 1)
	if err != nil {
		t.Fatalf("poll failed: %v", err)
	}
	if !snapshot.Done {
		t.Fatal("expected run to be done")
	}
	if snapshot.PassedCount != 1 || snapshot.FailedCount != 1 {
		t.Fatalf("final counts wrong: passed=%d failed=%d", snapshot.PassedCount, snapshot.FailedCount)
	}
	if snapshot.Results[0].TestCaseID != 101 || snapshot.Results[1].TestCaseID != 102 {
		t.Fatalf("results not mapped to test cases: %+v", snapshot.Results)
	}
}

func TestDoneRunPersistsExactlyOnce(t *testing.T) {
	t.Parallel()
	judge := &fakeJudge{frames: [][]judgeclient.SubmissionStatus{{accepted(), accepted()}}}
	h := newRunHarness(t, judge)
	result := h.start(t)

	for i := 0; i < 3; i++ {
		if _, err := h.svc.PollOnce(context.Background(), result.RunID, 1); err != nil {
			t.Fatalf("poll %d failed: %v", i, err)
		}
	}
	if h.subs.rows() != 1 {
		t.Fatalf("expected exactly one submission row, got %d", h.subs.rows())
	}
	row, err := h.subs.GetByRunID(context.Background(), result.RunID)
	if err != nil {
		t.Fatalf("row missing: %v", err)
	}
	if row.ElapsedSeconds < 170 || row.ElapsedSeconds > 190 {
		t.Fatalf("elapsed seconds not taken from session start: %d", row.ElapsedSeconds)
	}
}

func TestSecondRunTurnsFirstStale(t *testing.T) {
	t.Parallel()
	judge := &fakeJudge{frames: [][]judgeclient.SubmissionStatus{{accepted(), accepted()}}}
	h := newRunHarness(t, judge)
	first := h.start(t)
	second := h.start(t)

	// The superseded run is still pollable so an in-flight loop winds
	// down cleanly, but its results never reach the store.
	stale, err := h.svc.PollOnce(context.Background(), first.RunID, 1)
	if err != nil {
		t.Fatalf("poll of superseded run failed: %v", err)
	}
	if !stale.Stale {
		t.Fatalf("superseded run should be stale: %+v", stale)
	}
	if h.subs.rows() != 0 {
		t.Fatalf("stale run must not persist, got %d rows", h.subs.rows())
	}

	snapshot, err := h.svc.PollOnce(context.Background(), second.RunID, 1)
	if err != nil {
		t.Fatalf("poll of current run failed: %v", err)
	}
	if snapshot.Stale || !snapshot.Done {
		t.Fatalf("current run should complete normally: %+v", snapshot)
	}
	if h.subs.rows() != 1 {
		t.Fatalf("only the current run persists, got %d rows", h.subs.rows())
	}
}

func TestAwaitResultReturnsEarlyOnStaleRun(t *testing.T) {
	t.Parallel()
	judge := &fakeJudge{frames: [][]judgeclient.SubmissionStatus{{processing(), processing()}}}
	h := newRunHarness(t, judge)
	first := h.start(t)
	h.start(t)

	snapshot, err := h.svc.AwaitResult(context.Background(), first.RunID, 1, nil)
	if err != nil {
		t.Fatalf("await on stale run failed: %v", err)
	}
	if !snapshot.Stale {
		t.Fatalf("expected stale snapshot, got %+v", snapshot)
	}
	if judge.getCalls != 1 {
		t.Fatalf("stale run should stop the loop after one poll, got %d", judge.getCalls)
	}
}

func TestInvalidatedSessionStopsPersisting(t *testing.T) {
	t.Parallel()
	judge := &fakeJudge{frames: [][]judgeclient.SubmissionStatus{{accepted(), accepted()}}}
	h := newRunHarness(t, judge)
	result := h.start(t)

	h.svc.InvalidateSession("sess-1")
	_, err := h.svc.PollOnce(context.Background(), result.RunID, 1)
	if appErr.GetCode(err) != appErr.RunNotFound {
		t.Fatalf("expected RunNotFound after invalidation, got %v", err)
	}
	if h.subs.rows() != 0 {
		t.Fatal("invalidated run must not persist")
	}
}

func TestAwaitResultExhaustsBudget(t *testing.T) {
	t.Parallel()
	judge := &fakeJudge{frames: [][]judgeclient.SubmissionStatus{{accepted(), processing()}}}
	h := newRunHarness(t, judge)
	result := h.start(t)

	var progress []model.Snapshot
	snapshot, err := h.svc.AwaitResult(context.Background(), result.RunID, 1, func(s model.Snapshot) {
		progress = append(progress, s)
	})
	if appErr.GetCode(err) != appErr.PollTimeout {
		t.Fatalf("expected PollTimeout, got %v", err)
	}
	// The partial snapshot survives the timeout.
	if snapshot.PassedCount != 1 || snapshot.Done {
		t.Fatalf("expected partial snapshot with one pass, got %+v", snapshot)
	}
	if len(progress) != 10 {
		t.Fatalf("expected an observation per attempt, got %d", len(progress))
	}
}

func TestAwaitResultStopsWhenDone(t *testing.T) {
	t.Parallel()
	judge := &fakeJudge{frames: [][]judgeclient.SubmissionStatus{
		{processing(), processing()},
		{accepted(), accepted()},
	}}
	h := newRunHarness(t, judge)
	result := h.start(t)

	snapshot, err := h.svc.AwaitResult(context.Background(), result.RunID, 1, nil)
	if err != nil {
		t.Fatalf("await failed: %v", err)
	}
	if !snapshot.Done || snapshot.PassedCount != 2 {
		t.Fatalf("expected done with 2 passes, got %+v", snapshot)
	}
	if judge.getCalls != 2 {
		t.Fatalf("expected polling to stop at the terminal frame, got %d calls", judge.getCalls)
	}
}

func TestPollDeniedForOtherUser(t *testing.T) {
	t.Parallel()
	judge := &fakeJudge{frames: [][]judgeclient.SubmissionStatus{{accepted(), accepted()}}}
	h := newRunHarness(t, judge)
	result := h.start(t)

	_, err := h.svc.PollOnce(context.Background(), result.RunID, 99)
	if appErr.GetCode(err) != appErr.SessionAccessDenied {
		t.Fatalf("expected SessionAccessDenied, got %v", err)
	}
}

func TestTruncateStderr(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("x", 2000)

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "short passes through", input: "boom", want: "boom"},
		{name: "exactly at limit untouched", input: strings.Repeat("a", 500), want: strings.Repeat("a", 500)},
		{name: "long is capped", input: long, want: strings.Repeat("x", 500) + "\n\n...[truncated]"},
		{name: "empty", input: "", want: ""},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := service.TruncateStderr(tt.input)
			if got != tt.want {
				t.Fatalf("got %d bytes %q", len(got), got)
			}
			if again := service.TruncateStderr(got); again != got {
				t.Fatal("truncation must be idempotent")
			}
		})
	}
}
