package middleware

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	pkgerrors "intervue/pkg/errors"
	"intervue/pkg/utils/contextkey"
	"intervue/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const userIDKey = "auth_user_id"

type tokenClaims struct {
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// TokenVerifier validates bearer access tokens. Token issuance lives in
// the account system; this service only verifies.
type TokenVerifier struct {
	jwtSecret []byte
	jwtIssuer string
}

func NewTokenVerifier(jwtSecret, jwtIssuer string) *TokenVerifier {
	return &TokenVerifier{
		jwtSecret: []byte(jwtSecret),
		jwtIssuer: jwtIssuer,
	}
}

// Verify parses and validates the token, returning the user id carried in
// the subject claim.
func (v *TokenVerifier) Verify(raw string) (int64, error) {
	if raw == "" || len(v.jwtSecret) == 0 {
		return 0, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	parsed, err := jwt.ParseWithClaims(raw, &tokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.jwtSecret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, pkgerrors.New(pkgerrors.TokenExpired)
		}
		return 0, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	if !parsed.Valid {
		return 0, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok {
		return 0, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	if v.jwtIssuer != "" && claims.Issuer != v.jwtIssuer {
		return 0, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	if claims.TokenType != "access" {
		return 0, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	return userID, nil
}

// AuthMiddleware enforces JWT validation on protected routes and puts the
// authenticated user id into both the gin and request contexts.
func AuthMiddleware(verifier *TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if verifier == nil {
			response.AbortWithErrorCode(c, pkgerrors.ServiceUnavailable, "token verifier unavailable")
			return
		}

		token := extractBearerToken(c.GetHeader("Authorization"))
		userID, err := verifier.Verify(token)
		if err != nil {
			response.AbortWithError(c, err)
			return
		}

		c.Set(userIDKey, userID)
		ctx := context.WithValue(c.Request.Context(), contextkey.UserID, strconv.FormatInt(userID, 10))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// UserID returns the authenticated user id set by AuthMiddleware.
func UserID(c *gin.Context) (int64, bool) {
	value, exists := c.Get(userIDKey)
	if !exists {
		return 0, false
	}
	userID, ok := value.(int64)
	return userID, ok
}

func extractBearerToken(authHeader string) string {
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
