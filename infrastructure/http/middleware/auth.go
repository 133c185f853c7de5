package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/fixora/secret-review/application/port/outbound"
	domainerr "github.com/fixora/secret-review/domain/error"
	"github.com/fixora/secret-review/infrastructure/http/response"
	jwtservice "github.com/fixora/secret-review/infrastructure/service/jwt"
	"github.com/fixora/secret-review/infrastructure/service/logger"
)

type contextKey string

const authClaimsKey contextKey = "auth_claims"

type AuthMiddleware struct {
	tokenService outbound.TokenService
	logger       logger.Logger
}

func NewAuthMiddleware(tokenService outbound.TokenService, log logger.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		tokenService: tokenService,
		logger:       log,
	}
}

// RequireAuth verifies the bearer token and stores the caller identity on the context
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			response.Unauthorized(w, "Authorization header required")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			response.Unauthorized(w, "Invalid authorization header format")
			return
		}

		claims, err := m.tokenService.ValidateAccessToken(strings.TrimSpace(parts[1]))
		if err != nil {
			m.logger.Debug(r.Context(), "Bearer token rejected", map[string]interface{}{
				"path":  r.URL.Path,
				"error": err.Error(),
			})
			if errors.Is(err, jwtservice.ErrTokenExpired) {
				response.Error(w, http.StatusUnauthorized, domainerr.ErrCodeInvalidToken, "Token expired")
				return
			}
			response.Error(w, http.StatusUnauthorized, domainerr.ErrCodeInvalidToken, "Invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), authClaimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetClaims retrieves the verified claims from context
func GetClaims(ctx context.Context) *outbound.TokenClaims {
	if claims, ok := ctx.Value(authClaimsKey).(*outbound.TokenClaims); ok {
		return claims
	}
	return nil
}

// Identity returns the acting principal, or "" for unauthenticated requests
func Identity(ctx context.Context) string {
	if claims := GetClaims(ctx); claims != nil {
		return claims.Identity
	}
	return ""
}

// WithClaims is used by tests and in-process callers to act as a principal
func WithClaims(ctx context.Context, claims *outbound.TokenClaims) context.Context {
	return context.WithValue(ctx, authClaimsKey, claims)
}
