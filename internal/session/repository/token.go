package repository

import (
	"context"
	"errors"
	"strconv"
	"time"

	"intervue/internal/common/cache"
)

const (
	creationTokenKeyPrefix = "session:token:"

	// DefaultCreationTokenTTL bounds the gap between a session being
	// provisioned and the candidate actually starting it.
	DefaultCreationTokenTTL = 5 * time.Minute
)

var (
	ErrCreationTokenMissing = errors.New("creation token missing or expired")
	ErrCreationTokenInvalid = errors.New("creation token is malformed")
)

// CreationTokenStore issues and consumes the single-use token that
// authorizes creating a session. Consumption is an atomic GETDEL, so a
// token can authorize at most one create even under concurrent attempts.
type CreationTokenStore struct {
	cache cache.Cache
	ttl   time.Duration
	now   func() time.Time
}

func NewCreationTokenStore(cacheClient cache.Cache) *CreationTokenStore {
	return NewCreationTokenStoreWithTTL(cacheClient, DefaultCreationTokenTTL)
}

func NewCreationTokenStoreWithTTL(cacheClient cache.Cache, ttl time.Duration) *CreationTokenStore {
	if ttl <= 0 {
		ttl = DefaultCreationTokenTTL
	}
	return &CreationTokenStore{
		cache: cacheClient,
		ttl:   ttl,
		now:   time.Now,
	}
}

// Issue writes a token for the session. The value is the issue time in
// unix milliseconds; redis expiry enforces the lifetime.
func (s *CreationTokenStore) Issue(ctx context.Context, sessionID string) error {
	issuedAtMs := s.now().UnixMilli()
	return s.cache.Set(ctx, creationTokenKey(sessionID), strconv.FormatInt(issuedAtMs, 10), s.ttl)
}

// Consume atomically reads and deletes the token, returning its issue
// time. A missing, expired, or already-consumed token returns
// ErrCreationTokenMissing.
func (s *CreationTokenStore) Consume(ctx context.Context, sessionID string) (time.Time, error) {
	value, err := s.cache.GetDel(ctx, creationTokenKey(sessionID))
	if err != nil {
		return time.Time{}, err
	}
	if value == "" {
		return time.Time{}, ErrCreationTokenMissing
	}
	issuedAtMs, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, ErrCreationTokenInvalid
	}
	issuedAt := time.UnixMilli(issuedAtMs)
	// Redis expiry already bounds the lifetime; the issue-time check
	// guards against a store configured with a longer TTL than intended.
	if s.now().Sub(issuedAt) > s.ttl {
		return time.Time{}, ErrCreationTokenMissing
	}
	return issuedAt, nil
}

func creationTokenKey(sessionID string) string {
	return creationTokenKeyPrefix + sessionID
}
