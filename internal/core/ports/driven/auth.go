package driven

import "github.com/custodia-labs/drive-index/internal/core/domain"

// TokenVerifier validates caller credentials for the HTTP surface
type TokenVerifier interface {
	// ParseToken validates a bearer token and extracts its claims.
	// Returns domain.ErrTokenExpired or domain.ErrTokenInvalid.
	ParseToken(token string) (*domain.TokenClaims, error)

	// VerifyOperatorKey reports whether key matches the configured operator key
	VerifyOperatorKey(key string) bool
}
