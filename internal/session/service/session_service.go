package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	questionRepo "intervue/internal/question/repository"
	"intervue/internal/session/repository"
	"intervue/internal/timer"
	appErr "intervue/pkg/errors"
	"intervue/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultSessionDuration = 30 * time.Minute

// Config holds session service dependencies and settings.
type Config struct {
	SessionRepo    repository.SessionRepository
	QuestionRepo   questionRepo.QuestionRepository
	TokenStore     *repository.CreationTokenStore
	EventPublisher repository.SessionEventPublisher

	// SessionDuration is the interview length; defaults to 30 minutes.
	SessionDuration time.Duration
}

// SessionService owns the session lifecycle state machine. All competing
// writers (explicit complete, expiry auto-submit, unload abandon) funnel
// through the session row's conditional update; the first valid writer
// wins and the rest no-op.
type SessionService struct {
	sessionRepo    repository.SessionRepository
	questionRepo   questionRepo.QuestionRepository
	tokenStore     *repository.CreationTokenStore
	eventPublisher repository.SessionEventPublisher
	duration       time.Duration
	now            func() time.Time
}

// ValidationResult tells the caller whether the session may continue and,
// when it may, everything needed to resume the countdown.
type ValidationResult struct {
	SessionID        string            `json:"session_id"`
	Status           repository.Status `json:"status"`
	QuestionID       int64             `json:"question_id"`
	StartedAt        time.Time         `json:"started_at"`
	DurationSeconds  int64             `json:"duration_seconds"`
	RemainingSeconds int64             `json:"remaining_seconds"`
	RemainingDisplay string            `json:"remaining_display"`
	TimerStyle       string            `json:"timer_style"`
}

// CreateInput describes a session create request.
type CreateInput struct {
	SessionID   string
	QuestionURI string
	UserID      int64
}

// CreateResult returns the persisted start time, which is authoritative
// for the countdown across reloads.
type CreateResult struct {
	SessionID       string    `json:"session_id"`
	QuestionID      int64     `json:"question_id"`
	StartedAt       time.Time `json:"started_at"`
	DurationSeconds int64     `json:"duration_seconds"`
}

// ProvisionResult carries a freshly minted session id whose creation
// token is live.
type ProvisionResult struct {
	SessionID string `json:"session_id"`
}

// CompletionRecord is what a finished evaluation writes onto the row.
type CompletionRecord struct {
	FinalCode  string
	Transcript string
	Events     string
	Expired    bool
}

// NewSessionService creates a new session service.
func NewSessionService(cfg Config) (*SessionService, error) {
	if cfg.SessionRepo == nil {
		return nil, fmt.Errorf("session repository is required")
	}
	if cfg.QuestionRepo == nil {
		return nil, fmt.Errorf("question repository is required")
	}
	if cfg.TokenStore == nil {
		return nil, fmt.Errorf("creation token store is required")
	}
	if cfg.SessionDuration <= 0 {
		cfg.SessionDuration = defaultSessionDuration
	}
	return &SessionService{
		sessionRepo:    cfg.SessionRepo,
		questionRepo:   cfg.QuestionRepo,
		tokenStore:     cfg.TokenStore,
		eventPublisher: cfg.EventPublisher,
		duration:       cfg.SessionDuration,
		now:            time.Now,
	}, nil
}

// Provision mints a session id and issues its single-use creation token.
// Nothing is persisted until Create consumes the token.
func (s *SessionService) Provision(ctx context.Context) (ProvisionResult, error) {
	sessionID := uuid.NewString()
	if err := s.tokenStore.Issue(ctx, sessionID); err != nil {
		return ProvisionResult{}, appErr.Wrapf(err, appErr.CacheError, "failed to issue creation token")
	}
	return ProvisionResult{SessionID: sessionID}, nil
}

// Validate checks that the caller owns the session and reports its state.
// Terminal sessions are reported, not errored, so the caller can route
// the candidate to the report instead of the editor.
func (s *SessionService) Validate(ctx context.Context, sessionID string, userID int64) (ValidationResult, error) {
	session, err := s.getOwned(ctx, sessionID, userID)
	if err != nil {
		return ValidationResult{}, err
	}

	result := ValidationResult{
		SessionID:       session.ID,
		Status:          session.Status,
		QuestionID:      session.QuestionID,
		StartedAt:       session.StartedAt,
		DurationSeconds: int64(s.duration / time.Second),
	}
	if session.Status == repository.StatusInProgress {
		remaining := timer.Remaining(session.StartedAt, s.duration, s.now())
		result.RemainingSeconds = int64(remaining / time.Second)
		result.RemainingDisplay = timer.Format(remaining)
		result.TimerStyle = timer.StyleFor(remaining).String()
	}
	return result, nil
}

// Create consumes the creation token and atomically inserts the session
// while debiting one credit. A missing or expired token fails before any
// write; a failed debit rolls the insert back.
func (s *SessionService) Create(ctx context.Context, input CreateInput) (CreateResult, error) {
	if input.SessionID == "" || input.QuestionURI == "" {
		return CreateResult{}, appErr.New(appErr.InvalidParams).WithMessage("session id and question uri are required")
	}

	if _, err := s.tokenStore.Consume(ctx, input.SessionID); err != nil {
		switch {
		case errors.Is(err, repository.ErrCreationTokenMissing):
			return CreateResult{}, appErr.New(appErr.CreationTokenMissing)
		case errors.Is(err, repository.ErrCreationTokenInvalid):
			return CreateResult{}, appErr.New(appErr.CreationTokenExpired)
		default:
			return CreateResult{}, appErr.Wrapf(err, appErr.CacheError, "failed to consume creation token")
		}
	}

	question, err := s.questionRepo.GetByURI(ctx, input.QuestionURI)
	if err != nil {
		if errors.Is(err, questionRepo.ErrQuestionNotFound) {
			return CreateResult{}, appErr.New(appErr.QuestionNotFound)
		}
		return CreateResult{}, appErr.Wrapf(err, appErr.DatabaseError, "failed to resolve question")
	}

	session := &repository.Session{
		ID:         input.SessionID,
		UserID:     input.UserID,
		QuestionID: question.ID,
		Status:     repository.StatusInProgress,
		StartedAt:  s.now(),
	}
	if err := s.sessionRepo.CreateWithDebit(ctx, session); err != nil {
		switch {
		case errors.Is(err, repository.ErrInsufficientCredits):
			return CreateResult{}, appErr.New(appErr.InsufficientCredits)
		case errors.Is(err, repository.ErrSessionAlreadyExists):
			return CreateResult{}, appErr.New(appErr.SessionAlreadyExists)
		default:
			return CreateResult{}, appErr.Wrapf(err, appErr.DatabaseError, "failed to create session")
		}
	}

	s.publishEvent(ctx, session.ID, session.UserID, repository.SessionEventCreated)

	return CreateResult{
		SessionID:       session.ID,
		QuestionID:      session.QuestionID,
		StartedAt:       session.StartedAt,
		DurationSeconds: int64(s.duration / time.Second),
	}, nil
}

// Abandon moves an in-progress session to abandoned. Abandoning a session
// that is already terminal is a no-op, never an error, so unload beacons
// and stale tabs can fire it blindly.
func (s *SessionService) Abandon(ctx context.Context, sessionID string, userID int64) error {
	session, err := s.getOwned(ctx, sessionID, userID)
	if err != nil {
		return err
	}
	if session.Status != repository.StatusInProgress {
		return nil
	}

	endedAt := s.now()
	applied, err := s.sessionRepo.ConditionalUpdate(ctx, sessionID, repository.StatusInProgress, repository.Patch{
		Status:  repository.StatusAbandoned,
		EndedAt: &endedAt,
	})
	if err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "failed to abandon session")
	}
	if applied {
		s.publishEvent(ctx, sessionID, userID, repository.SessionEventAbandoned)
	}
	return nil
}

// MarkCompleted performs the guarded transition to completed. The first
// valid writer wins; callers losing the race get applied=false and must
// discard their record.
func (s *SessionService) MarkCompleted(ctx context.Context, sessionID string, userID int64, record CompletionRecord) (bool, error) {
	session, err := s.getOwned(ctx, sessionID, userID)
	if err != nil {
		return false, err
	}
	if session.Status != repository.StatusInProgress {
		return false, nil
	}

	endedAt := s.now()
	applied, err := s.sessionRepo.ConditionalUpdate(ctx, sessionID, repository.StatusInProgress, repository.Patch{
		Status:     repository.StatusCompleted,
		EndedAt:    &endedAt,
		FinalCode:  &record.FinalCode,
		Transcript: &record.Transcript,
		Events:     &record.Events,
	})
	if err != nil {
		return false, appErr.Wrapf(err, appErr.DatabaseError, "failed to complete session")
	}
	if applied {
		eventType := repository.SessionEventCompleted
		if record.Expired {
			eventType = repository.SessionEventExpiredAutoClose
		}
		s.publishEvent(ctx, sessionID, userID, eventType)
	}
	return applied, nil
}

// Get returns the session when the caller owns it.
func (s *SessionService) Get(ctx context.Context, sessionID string, userID int64) (*repository.Session, error) {
	return s.getOwned(ctx, sessionID, userID)
}

// List returns the caller's sessions, newest first.
func (s *SessionService) List(ctx context.Context, userID int64) ([]repository.Session, error) {
	sessions, err := s.sessionRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "failed to list sessions")
	}
	return sessions, nil
}

// Credits returns the caller's remaining credit balance.
func (s *SessionService) Credits(ctx context.Context, userID int64) (int64, error) {
	credits, err := s.sessionRepo.GetCredits(ctx, userID)
	if err != nil {
		return 0, appErr.Wrapf(err, appErr.DatabaseError, "failed to load credits")
	}
	return credits, nil
}

// Duration returns the configured interview length.
func (s *SessionService) Duration() time.Duration {
	return s.duration
}

func (s *SessionService) getOwned(ctx context.Context, sessionID string, userID int64) (*repository.Session, error) {
	if sessionID == "" {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("session id is required")
	}
	session, err := s.sessionRepo.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, appErr.New(appErr.SessionNotFound)
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "failed to load session")
	}
	if session.UserID != userID {
		return nil, appErr.New(appErr.SessionAccessDenied)
	}
	return session, nil
}

// publishEvent is fire and forget: a broker outage must not fail or
// block a lifecycle transition.
func (s *SessionService) publishEvent(ctx context.Context, sessionID string, userID int64, eventType repository.SessionEventType) {
	if s.eventPublisher == nil {
		return
	}
	if err := s.eventPublisher.PublishLifecycle(ctx, sessionID, userID, eventType); err != nil {
		logger.Warn(ctx, "failed to publish session event",
			zap.String("session_id", sessionID),
			zap.String("event_type", string(eventType)),
			zap.Error(err),
		)
	}
}
