package drive

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"google.golang.org/api/googleapi"

	"github.com/custodia-labs/drive-index/internal/core/domain"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestWrapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"unauthorized", &googleapi.Error{Code: 401}, domain.ErrSourceUnauthorized},
		{"forbidden", &googleapi.Error{Code: 403}, domain.ErrSourceUnauthorized},
		{"forbidden rate limit", &googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{{Reason: "userRateLimitExceeded"}}}, domain.ErrRateLimited},
		{"too many requests", &googleapi.Error{Code: 429}, domain.ErrRateLimited},
		{"not found", &googleapi.Error{Code: 404}, domain.ErrNotFound},
		{"gone", &googleapi.Error{Code: 410}, domain.ErrNotFound},
		{"server error", &googleapi.Error{Code: 503}, domain.ErrTransient},
		{"bad request", &googleapi.Error{Code: 400}, domain.ErrInvalidInput},
		{"wrapped", fmt.Errorf("do: %w", &googleapi.Error{Code: 502}), domain.ErrTransient},
		{"network timeout", timeoutErr{}, domain.ErrTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := wrapError("files.list", tt.err)
			if !errors.Is(got, tt.want) {
				t.Errorf("wrapError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestWrapError_ClassifiesForRetry(t *testing.T) {
	if !domain.IsTransient(wrapError("op", &googleapi.Error{Code: 429})) {
		t.Error("429 should be retried")
	}
	if !domain.IsFatalForScope(wrapError("op", &googleapi.Error{Code: 401})) {
		t.Error("401 should halt the scope")
	}
	if domain.IsTransient(wrapError("op", &googleapi.Error{Code: 404})) {
		t.Error("404 should not be retried")
	}
}

func TestWrapError_PassesThroughContextErrors(t *testing.T) {
	if got := wrapError("op", context.Canceled); got != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", got)
	}
	if wrapError("op", nil) != nil {
		t.Error("nil should stay nil")
	}
}
