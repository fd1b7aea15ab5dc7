package domain

import "errors"

// Domain errors - used across all layers
var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates the resource already exists
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates the input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized indicates authentication failed or missing
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates the caller lacks permission for this action
	ErrForbidden = errors.New("forbidden")

	// ErrTokenExpired indicates the auth token has expired
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenInvalid indicates the auth token is malformed or invalid
	ErrTokenInvalid = errors.New("token invalid")

	// ErrServiceUnavailable indicates a backing service could not be reached
	ErrServiceUnavailable = errors.New("service unavailable")
)

// Crawl error taxonomy
var (
	// ErrTransient marks a failure that is expected to succeed on retry
	// (timeouts, temporary network failures, store I/O hiccups).
	ErrTransient = errors.New("transient failure")

	// ErrRateLimited indicates the file store rejected a request for quota reasons.
	ErrRateLimited = errors.New("rate limited")

	// ErrSourceUnauthorized indicates the connector credentials were revoked
	// or the access scope was withdrawn. Fatal for the affected scope.
	ErrSourceUnauthorized = errors.New("source authorization failed")

	// ErrScopeHalted indicates crawling of a scope was stopped after an
	// authorization failure and needs operator action.
	ErrScopeHalted = errors.New("scope halted")

	// ErrStaleRevision indicates an observation was not newer than the stored revision.
	ErrStaleRevision = errors.New("stale revision")

	// ErrJobNotClaimable indicates a job is not in a claimable state or its
	// scope already has a processing job.
	ErrJobNotClaimable = errors.New("job not claimable")

	// ErrInvalidTransition indicates a CrawlJob state change not allowed by the state machine.
	ErrInvalidTransition = errors.New("invalid job state transition")

	// ErrCancelled indicates a crawl was cancelled by an operator or shutdown.
	ErrCancelled = errors.New("crawl cancelled")

	// ErrLeaseLost indicates a worker no longer owns the job it is reporting on.
	ErrLeaseLost = errors.New("job lease lost")
)

// IsTransient reports whether err should be retried with backoff.
// Rate limiting counts as transient.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrRateLimited)
}

// IsFatalForScope reports whether err must halt crawling of the whole scope.
func IsFatalForScope(err error) bool {
	return errors.Is(err, ErrSourceUnauthorized) || errors.Is(err, ErrScopeHalted)
}
