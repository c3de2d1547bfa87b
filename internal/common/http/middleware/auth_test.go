package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"intervue/internal/common/http/middleware"
	appErr "intervue/pkg/errors"
)

const (
	testSecret = "unit-test-secret"
	testIssuer = "intervue"
)

type signOptions struct {
	subject   string
	issuer    string
	tokenType string
	expiresAt time.Time
	secret    string
}

func signToken(t *testing.T, opts signOptions) string {
	t.Helper()
	if opts.secret == "" {
		opts.secret = testSecret
	}
	claims := jwt.MapClaims{
		"sub": opts.subject,
		"iss": opts.issuer,
		"typ": opts.tokenType,
		"exp": opts.expiresAt.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(opts.secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func validOptions() signOptions {
	return signOptions{
		subject:   "42",
		issuer:    testIssuer,
		tokenType: "access",
		expiresAt: time.Now().Add(time.Hour),
	}
}

func TestVerify(t *testing.T) {
	t.Parallel()
	verifier := middleware.NewTokenVerifier(testSecret, testIssuer)

	t.Run("valid token", func(t *testing.T) {
		t.Parallel()
		userID, err := verifier.Verify(signToken(t, validOptions()))
		if err != nil {
			t.Fatalf("verify failed: %v", err)
		}
		if userID != 42 {
			t.Fatalf("expected user 42, got %d", userID)
		}
	})

	t.Run("expired token", func(t *testing.T) {
		t.Parallel()
		opts := validOptions()
		opts.expiresAt = time.Now().Add(-time.Minute)
		_, err := verifier.Verify(signToken(t, opts))
		if appErr.GetCode(err) != appErr.TokenExpired {
			t.Fatalf("expected TokenExpired, got %v", err)
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		t.Parallel()
		opts := validOptions()
		opts.secret = "some-other-secret"
		_, err := verifier.Verify(signToken(t, opts))
		if appErr.GetCode(err) != appErr.TokenInvalid {
			t.Fatalf("expected TokenInvalid, got %v", err)
		}
	})

	t.Run("wrong issuer", func(t *testing.T) {
		t.Parallel()
		opts := validOptions()
		opts.issuer = "someone-else"
		_, err := verifier.Verify(signToken(t, opts))
		if appErr.GetCode(err) != appErr.TokenInvalid {
			t.Fatalf("expected TokenInvalid, got %v", err)
		}
	})

	t.Run("refresh token rejected", func(t *testing.T) {
		t.Parallel()
		opts := validOptions()
		opts.tokenType = "refresh"
		_, err := verifier.Verify(signToken(t, opts))
		if appErr.GetCode(err) != appErr.TokenInvalid {
			t.Fatalf("expected TokenInvalid, got %v", err)
		}
	})

	t.Run("non numeric subject", func(t *testing.T) {
		t.Parallel()
		opts := validOptions()
		opts.subject = "user-42"
		_, err := verifier.Verify(signToken(t, opts))
		if appErr.GetCode(err) != appErr.TokenInvalid {
			t.Fatalf("expected TokenInvalid, got %v", err)
		}
	})

	t.Run("empty token", func(t *testing.T) {
		t.Parallel()
		_, err := verifier.Verify("")
		if appErr.GetCode(err) != appErr.TokenInvalid {
			t.Fatalf("expected TokenInvalid, got %v", err)
		}
	})
}

func TestAuthMiddleware(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)
	verifier := middleware.NewTokenVerifier(testSecret, testIssuer)

	router := gin.New()
	router.Use(middleware.AuthMiddleware(verifier))
	router.GET("/protected", func(c *gin.Context) {
		userID, ok := middleware.UserID(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, gin.H{"user_id": userID})
	})

	t.Run("authorized request passes", func(t *testing.T) {
		t.Parallel()
		recorder := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(t, validOptions()))
		router.ServeHTTP(recorder, req)
		if recorder.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
		}
	})

	t.Run("missing header rejected", func(t *testing.T) {
		t.Parallel()
		recorder := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		router.ServeHTTP(recorder, req)
		if recorder.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", recorder.Code)
		}
	})

	t.Run("malformed header rejected", func(t *testing.T) {
		t.Parallel()
		recorder := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Token abc")
		router.ServeHTTP(recorder, req)
		if recorder.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", recorder.Code)
		}
	})
}
