package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/custodia-labs/drive-index/internal/core/domain"
	"github.com/custodia-labs/drive-index/internal/core/ports/driven"
)

// Context keys
type contextKey string

const authContextKey contextKey = "auth_context"

// OperatorKeyHeader carries the shared operator key for dashboard automation
const OperatorKeyHeader = "X-Operator-Key"

// operatorKeyActor is the audit actor for requests authenticated by key only
const operatorKeyActor = "operator-key"

// AuthMiddleware handles authentication and authorization
type AuthMiddleware struct {
	verifier driven.TokenVerifier
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(verifier driven.TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
	}
}

// Authenticate resolves the caller from a bearer token, an operator key, or
// both, and adds the auth context.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearerToken(r)
		key := r.Header.Get(OperatorKeyHeader)
		if token == "" && key == "" {
			writeError(w, http.StatusUnauthorized, "missing authorization token")
			return
		}

		authCtx := &domain.AuthContext{Role: domain.RoleSearcher}
		if token != "" {
			claims, err := m.verifier.ParseToken(token)
			if err != nil {
				if errors.Is(err, domain.ErrTokenExpired) {
					writeError(w, http.StatusUnauthorized, "token expired")
				} else {
					writeError(w, http.StatusUnauthorized, "invalid token")
				}
				return
			}
			authCtx = authContextFromClaims(claims)
		}

		if key != "" {
			if !m.verifier.VerifyOperatorKey(key) {
				writeError(w, http.StatusUnauthorized, "invalid operator key")
				return
			}
			authCtx.Role = domain.RoleOperator
		}

		ctx := context.WithValue(r.Context(), authContextKey, authCtx)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireOperator ensures the authenticated caller may drive the crawl dashboard
func (m *AuthMiddleware) RequireOperator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authCtx := GetAuthContext(r.Context())
		if authCtx == nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		if !authCtx.IsOperator() {
			writeError(w, http.StatusForbidden, "operator access required")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// authContextFromClaims maps token claims to principal identities.
// Bare subjects become "user:" principals and bare groups "group:" principals.
func authContextFromClaims(claims *domain.TokenClaims) *domain.AuthContext {
	principal := domain.Principal{ID: qualify("user", claims.Subject)}
	for _, g := range claims.Groups {
		if g = strings.TrimSpace(g); g != "" {
			principal.Groups = append(principal.Groups, qualify("group", g))
		}
	}

	role := claims.Role
	if role != domain.RoleOperator {
		role = domain.RoleSearcher
	}
	return &domain.AuthContext{Principal: principal, Role: role}
}

// qualify prefixes id with its principal kind. Principals are lowercased to
// match the identities mirrored from drive permissions.
func qualify(kind, id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	if strings.Contains(id, ":") {
		return id
	}
	return kind + ":" + id
}

// GetAuthContext retrieves the auth context from request context
func GetAuthContext(ctx context.Context) *domain.AuthContext {
	if ctx == nil {
		return nil
	}
	authCtx, ok := ctx.Value(authContextKey).(*domain.AuthContext)
	if !ok {
		return nil
	}
	return authCtx
}

// actorOf names the caller in job transition audit records
func actorOf(ctx context.Context) string {
	authCtx := GetAuthContext(ctx)
	if authCtx == nil || authCtx.Principal.ID == "" {
		return operatorKeyActor
	}
	return authCtx.Principal.ID
}

// extractBearerToken extracts the Bearer token from Authorization header
func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}

	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}

// Logging middleware

// LoggingMiddleware logs HTTP requests
type LoggingMiddleware struct {
	logger *slog.Logger
}

// NewLoggingMiddleware creates a new LoggingMiddleware
func NewLoggingMiddleware(logger *slog.Logger) *LoggingMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingMiddleware{logger: logger}
}

// Handler wraps an http.Handler with request logging
func (m *LoggingMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap response writer to capture status code
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		m.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.statusCode,
			"duration", time.Since(start),
		)
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Recovery middleware

// RecoveryMiddleware recovers from panics
type RecoveryMiddleware struct {
	logger *slog.Logger
}

// NewRecoveryMiddleware creates a new RecoveryMiddleware
func NewRecoveryMiddleware(logger *slog.Logger) *RecoveryMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecoveryMiddleware{logger: logger}
}

// Handler wraps an http.Handler with panic recovery
func (m *RecoveryMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				m.logger.Error("panic recovered", "path", r.URL.Path, "error", err)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// CORS middleware

// CORSMiddleware handles CORS
type CORSMiddleware struct {
	allowedOrigins []string
}

// NewCORSMiddleware creates a new CORSMiddleware
func NewCORSMiddleware(allowedOrigins []string) *CORSMiddleware {
	return &CORSMiddleware{
		allowedOrigins: allowedOrigins,
	}
}

// Handler wraps an http.Handler with CORS headers
func (m *CORSMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		allowed := false
		for _, o := range m.allowedOrigins {
			if o == "*" || o == origin {
				allowed = true
				break
			}
		}

		if allowed && origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+OperatorKeyHeader)
			w.Header().Set("Access-Control-Max-Age", "86400")
		}

		// Handle preflight
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
