package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	questionRepo "intervue/internal/question/repository"
	"intervue/internal/session/repository"
	"intervue/internal/session/service"
	appErr "intervue/pkg/errors"
)

type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*repository.Session
	credits  map[int64]int64
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{
		sessions: make(map[string]*repository.Session),
		credits:  make(map[int64]int64),
	}
}

func (f *fakeSessionRepo) CreateWithDebit(ctx context.Context, session *repository.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.credits[session.UserID] < 1 {
		return repository.ErrInsufficientCredits
	}
	if _, exists := f.sessions[session.ID]; exists {
		return repository.ErrSessionAlreadyExists
	}
	f.credits[session.UserID]--
	copied := *session
	f.sessions[session.ID] = &copied
	return nil
}

func (f *fakeSessionRepo) Get(ctx context.Context, sessionID string) (*repository.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[sessionID]
	if !ok {
		return nil, repository.ErrSessionNotFound
	}
	copied := *session
	return &copied, nil
}

func (f *fakeSessionRepo) ConditionalUpdate(ctx context.Context, sessionID string, expectedStatus repository.Status, patch repository.Patch) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[sessionID]
	if !ok || session.Status != expectedStatus {
		return false, nil
	}
	session.Status = patch.Status
	if patch.EndedAt != nil {
		session.EndedAt = patch.EndedAt
	}
	if patch.FinalCode != nil {
		session.FinalCode = patch.FinalCode
	}
	if patch.Transcript != nil {
		session.Transcript = patch.Transcript
	}
	if patch.Events != nil {
		session.Events = patch.Events
	}
	return true, nil
}

func (f *fakeSessionRepo) ListByUser(ctx context.Context, userID int64) ([]repository.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sessions []repository.Session
	for _, session := range f.sessions {
		if session.UserID == userID {
			sessions = append(sessions, *session)
		}
	}
	return sessions, nil
}

func (f *fakeSessionRepo) GetCredits(ctx context.Context, userID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.credits[userID], nil
}

type fakeQuestionRepo struct {
	questions map[string]questionRepo.Question
}

func (f *fakeQuestionRepo) GetByURI(ctx context.Context, questionURI string) (questionRepo.Question, error) {
	question, ok := f.questions[questionURI]
	if !ok {
		return questionRepo.Question{}, questionRepo.ErrQuestionNotFound
	}
	return question, nil
}

func (f *fakeQuestionRepo) GetByID(ctx context.Context, questionID int64) (questionRepo.Question, error) {
	for _, question := range f.questions {
		if question.ID == questionID {
			return question, nil
		}
	}
	return questionRepo.Question{}, questionRepo.ErrQuestionNotFound
}

func (f *fakeQuestionRepo) ListTestCases(ctx context.Context, questionID int64) ([]questionRepo.TestCase, error) {
	return nil, nil
}

func (f *fakeQuestionRepo) GetStarterCode(ctx context.Context, questionID int64, language string) (questionRepo.StarterCode, error) {
	return questionRepo.StarterCode{}, questionRepo.ErrStarterCodeNotFound
}

func (f *fakeQuestionRepo) ListStarterCodes(ctx context.Context, questionID int64) ([]questionRepo.StarterCode, error) {
	return nil, nil
}

// fakeCache implements just enough of cache.Cache for the token store.
type fakeCache struct {
	mu     sync.Mutex
	values map[string]string
}

func newFakeCache() *fakeCache {
	return &fakeCache{values: make(map[string]string)}
}

func (f *fakeCache) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values[key], nil
}

func (f *fakeCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value.(string)
	return nil
}

func (f *fakeCache) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.values[key]; exists {
		return false, nil
	}
	f.values[key] = value.(string)
	return true, nil
}

func (f *fakeCache) GetDel(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	value := f.values[key]
	delete(f.values, key)
	return value, nil
}

func (f *fakeCache) Del(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range keys {
		delete(f.values, key)
	}
	return nil
}

func (f *fakeCache) Exists(ctx context.Context, keys ...string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, key := range keys {
		if _, exists := f.values[key]; exists {
			count++
		}
	}
	return count, nil
}

func (f *fakeCache) Expire(ctx context.Context, key string, ttl time.Duration) error { return nil }

func (f *fakeCache) TTL(ctx context.Context, key string) (time.Duration, error) { return 0, nil }

func (f *fakeCache) Incr(ctx context.Context, key string) (int64, error) { return 0, nil }

func (f *fakeCache) Ping(ctx context.Context) error { return nil }

func (f *fakeCache) Close() error { return nil }

type publishedEvent struct {
	sessionID string
	userID    int64
	eventType repository.SessionEventType
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (f *fakePublisher) PublishLifecycle(ctx context.Context, sessionID string, userID int64, eventType repository.SessionEventType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, publishedEvent{sessionID: sessionID, userID: userID, eventType: eventType})
	return nil
}

func (f *fakePublisher) byType(eventType repository.SessionEventType) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, event := range f.events {
		if event.eventType == eventType {
			count++
		}
	}
	return count
}

type harness struct {
	svc       *service.SessionService
	repo      *fakeSessionRepo
	cache     *fakeCache
	tokens    *repository.CreationTokenStore
	publisher *fakePublisher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	repo := newFakeSessionRepo()
	publisher := &fakePublisher{}
	tokenCache := newFakeCache()
	tokens := repository.NewCreationTokenStore(tokenCache)
	questions := &fakeQuestionRepo{questions: map[string]questionRepo.Question{
		"two-sum": {ID: 7, QuestionURI: "two-sum", Title: "Two Sum"},
	}}
	svc, err := service.NewSessionService(service.Config{
		SessionRepo:    repo,
		QuestionRepo:   questions,
		TokenStore:     tokens,
		EventPublisher: publisher,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return &harness{svc: svc, repo: repo, cache: tokenCache, tokens: tokens, publisher: publisher}
}

func (h *harness) provisionWithCredits(t *testing.T, userID, credits int64) string {
	t.Helper()
	h.repo.mu.Lock()
	h.repo.credits[userID] = credits
	h.repo.mu.Unlock()
	result, err := h.svc.Provision(context.Background())
	if err != nil {
		t.Fatalf("provision failed: %v", err)
	}
	return result.SessionID
}

func TestCreateDebitsExactlyOneCredit(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	sessionID := h.provisionWithCredits(t, 1, 3)

	result, err := h.svc.Create(context.Background(), service.CreateInput{
		SessionID:   sessionID,
		QuestionURI: "two-sum",
		UserID:      1,
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if result.StartedAt.IsZero() {
		t.Fatal("expected persisted start time")
	}
	if result.QuestionID != 7 {
		t.Fatalf("expected question 7, got %d", result.QuestionID)
	}
	credits, _ := h.repo.GetCredits(context.Background(), 1)
	if credits != 2 {
		t.Fatalf("expected 2 credits left, got %d", credits)
	}
	if got := h.publisher.byType(repository.SessionEventCreated); got != 1 {
		t.Fatalf("expected one created event, got %d", got)
	}
}

func TestCreateConsumedTokenNeverInserts(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	sessionID := h.provisionWithCredits(t, 1, 5)

	input := service.CreateInput{SessionID: sessionID, QuestionURI: "two-sum", UserID: 1}
	if _, err := h.svc.Create(context.Background(), input); err != nil {
		t.Fatalf("first create failed: %v", err)
	}

	// The token was consumed by the first create; a replayed request
	// must fail before touching the store.
	_, err := h.svc.Create(context.Background(), input)
	if appErr.GetCode(err) != appErr.CreationTokenMissing {
		t.Fatalf("expected CreationTokenMissing, got %v", err)
	}
	credits, _ := h.repo.GetCredits(context.Background(), 1)
	if credits != 4 {
		t.Fatalf("expected a single debit, credits = %d", credits)
	}
}

func TestCreateMissingTokenFailsWithoutSideEffects(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.repo.mu.Lock()
	h.repo.credits[1] = 5
	h.repo.mu.Unlock()

	_, err := h.svc.Create(context.Background(), service.CreateInput{
		SessionID:   "never-provisioned",
		QuestionURI: "two-sum",
		UserID:      1,
	})
	if appErr.GetCode(err) != appErr.CreationTokenMissing {
		t.Fatalf("expected CreationTokenMissing, got %v", err)
	}
	credits, _ := h.repo.GetCredits(context.Background(), 1)
	if credits != 5 {
		t.Fatalf("expected no debit, credits = %d", credits)
	}
	if len(h.repo.sessions) != 0 {
		t.Fatal("expected no session row")
	}
}

func TestCreateMalformedTokenFailsWithoutSideEffects(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.repo.mu.Lock()
	h.repo.credits[1] = 5
	h.repo.mu.Unlock()
	if err := h.cache.Set(context.Background(), "session:token:sess-garbled", "not-a-timestamp", time.Minute); err != nil {
		t.Fatalf("seed token: %v", err)
	}

	_, err := h.svc.Create(context.Background(), service.CreateInput{
		SessionID:   "sess-garbled",
		QuestionURI: "two-sum",
		UserID:      1,
	})
	if appErr.GetCode(err) != appErr.CreationTokenExpired {
		t.Fatalf("expected CreationTokenExpired, got %v", err)
	}
	credits, _ := h.repo.GetCredits(context.Background(), 1)
	if credits != 5 {
		t.Fatalf("expected no debit, credits = %d", credits)
	}
	if len(h.repo.sessions) != 0 {
		t.Fatal("expected no session row")
	}
}

func TestCreateInsufficientCredits(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	sessionID := h.provisionWithCredits(t, 1, 0)

	_, err := h.svc.Create(context.Background(), service.CreateInput{
		SessionID:   sessionID,
		QuestionURI: "two-sum",
		UserID:      1,
	})
	if appErr.GetCode(err) != appErr.InsufficientCredits {
		t.Fatalf("expected InsufficientCredits, got %v", err)
	}
	if len(h.repo.sessions) != 0 {
		t.Fatal("expected insert to be rolled back")
	}
}

func TestAbandonIsIdempotent(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	sessionID := h.provisionWithCredits(t, 1, 1)
	if _, err := h.svc.Create(context.Background(), service.CreateInput{
		SessionID: sessionID, QuestionURI: "two-sum", UserID: 1,
	}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if err := h.svc.Abandon(context.Background(), sessionID, 1); err != nil {
		t.Fatalf("abandon failed: %v", err)
	}
	session, _ := h.repo.Get(context.Background(), sessionID)
	if session.Status != repository.StatusAbandoned {
		t.Fatalf("expected abandoned, got %s", session.Status)
	}
	if session.EndedAt == nil {
		t.Fatal("expected ended_at to be set")
	}

	// Abandoning again is a no-op, not an error, and publishes nothing.
	if err := h.svc.Abandon(context.Background(), sessionID, 1); err != nil {
		t.Fatalf("second abandon errored: %v", err)
	}
	if got := h.publisher.byType(repository.SessionEventAbandoned); got != 1 {
		t.Fatalf("expected one abandoned event, got %d", got)
	}
}

func TestAbandonNeverRevivesCompletedSession(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	sessionID := h.provisionWithCredits(t, 1, 1)
	if _, err := h.svc.Create(context.Background(), service.CreateInput{
		SessionID: sessionID, QuestionURI: "two-sum", UserID: 1,
	}); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	applied, err := h.svc.MarkCompleted(context.Background(), sessionID, 1, service.CompletionRecord{
		FinalCode: "final", Transcript: "t", Events: "{}",
	})
	if err != nil || !applied {
		t.Fatalf("expected completion to apply, applied=%v err=%v", applied, err)
	}

	if err := h.svc.Abandon(context.Background(), sessionID, 1); err != nil {
		t.Fatalf("abandon after completion errored: %v", err)
	}
	session, _ := h.repo.Get(context.Background(), sessionID)
	if session.Status != repository.StatusCompleted {
		t.Fatalf("terminal status was overwritten: %s", session.Status)
	}
}

func TestMarkCompletedFirstWriterWins(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	sessionID := h.provisionWithCredits(t, 1, 1)
	if _, err := h.svc.Create(context.Background(), service.CreateInput{
		SessionID: sessionID, QuestionURI: "two-sum", UserID: 1,
	}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	first, err := h.svc.MarkCompleted(context.Background(), sessionID, 1, service.CompletionRecord{
		FinalCode: "winner", Transcript: "t1", Events: `{"n":1}`,
	})
	if err != nil || !first {
		t.Fatalf("first completion should apply, applied=%v err=%v", first, err)
	}
	second, err := h.svc.MarkCompleted(context.Background(), sessionID, 1, service.CompletionRecord{
		FinalCode: "loser", Transcript: "t2", Events: `{"n":2}`,
	})
	if err != nil {
		t.Fatalf("losing completion errored: %v", err)
	}
	if second {
		t.Fatal("second writer must lose the race")
	}
	session, _ := h.repo.Get(context.Background(), sessionID)
	if *session.FinalCode != "winner" {
		t.Fatalf("loser overwrote the row: %s", *session.FinalCode)
	}
}

func TestMarkCompletedExpiredPublishesAutoSubmitEvent(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	sessionID := h.provisionWithCredits(t, 1, 1)
	if _, err := h.svc.Create(context.Background(), service.CreateInput{
		SessionID: sessionID, QuestionURI: "two-sum", UserID: 1,
	}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	applied, err := h.svc.MarkCompleted(context.Background(), sessionID, 1, service.CompletionRecord{
		FinalCode: "code", Expired: true,
	})
	if err != nil || !applied {
		t.Fatalf("expected completion to apply, applied=%v err=%v", applied, err)
	}
	if got := h.publisher.byType(repository.SessionEventExpiredAutoClose); got != 1 {
		t.Fatalf("expected one auto-submit event, got %d", got)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	sessionID := h.provisionWithCredits(t, 1, 1)
	if _, err := h.svc.Create(context.Background(), service.CreateInput{
		SessionID: sessionID, QuestionURI: "two-sum", UserID: 1,
	}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	t.Run("in progress", func(t *testing.T) {
		result, err := h.svc.Validate(context.Background(), sessionID, 1)
		if err != nil {
			t.Fatalf("validate failed: %v", err)
		}
		if result.Status != repository.StatusInProgress {
			t.Fatalf("expected in_progress, got %s", result.Status)
		}
		if result.RemainingSeconds <= 0 || result.RemainingSeconds > 1800 {
			t.Fatalf("unexpected remaining: %d", result.RemainingSeconds)
		}
	})

	t.Run("wrong owner", func(t *testing.T) {
		_, err := h.svc.Validate(context.Background(), sessionID, 99)
		if appErr.GetCode(err) != appErr.SessionAccessDenied {
			t.Fatalf("expected SessionAccessDenied, got %v", err)
		}
	})

	t.Run("not found", func(t *testing.T) {
		_, err := h.svc.Validate(context.Background(), "missing", 1)
		if appErr.GetCode(err) != appErr.SessionNotFound {
			t.Fatalf("expected SessionNotFound, got %v", err)
		}
	})

	t.Run("terminal reports status", func(t *testing.T) {
		if err := h.svc.Abandon(context.Background(), sessionID, 1); err != nil {
			t.Fatalf("abandon failed: %v", err)
		}
		result, err := h.svc.Validate(context.Background(), sessionID, 1)
		if err != nil {
			t.Fatalf("validate of terminal session errored: %v", err)
		}
		if result.Status != repository.StatusAbandoned {
			t.Fatalf("expected abandoned, got %s", result.Status)
		}
		if result.RemainingSeconds != 0 {
			t.Fatalf("terminal session must not report remaining time, got %d", result.RemainingSeconds)
		}
	})
}

func TestEventPublishFailureDoesNotFailTransition(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.publisher.err = errors.New("broker down")
	sessionID := h.provisionWithCredits(t, 1, 1)

	if _, err := h.svc.Create(context.Background(), service.CreateInput{
		SessionID: sessionID, QuestionURI: "two-sum", UserID: 1,
	}); err != nil {
		t.Fatalf("create failed despite fire-and-forget events: %v", err)
	}
	if _, ok := h.repo.sessions[sessionID]; !ok {
		t.Fatal("session row missing")
	}
}
