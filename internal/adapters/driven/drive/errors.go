package drive

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"google.golang.org/api/googleapi"

	"github.com/custodia-labs/drive-index/internal/core/domain"
)

// Drive reports quota exhaustion as 403 with one of these reasons.
var rateLimitReasons = map[string]bool{
	"rateLimitExceeded":        true,
	"userRateLimitExceeded":    true,
	"quotaExceeded":            true,
	"sharingRateLimitExceeded": true,
}

// wrapError maps a Drive API error onto the domain error taxonomy.
// op names the call for the error message.
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusTooManyRequests:
			return fmt.Errorf("%s: %w: %v", op, domain.ErrRateLimited, err)
		case gerr.Code == http.StatusForbidden && isRateLimitReason(gerr):
			return fmt.Errorf("%s: %w: %v", op, domain.ErrRateLimited, err)
		case gerr.Code == http.StatusUnauthorized || gerr.Code == http.StatusForbidden:
			return fmt.Errorf("%s: %w: %v", op, domain.ErrSourceUnauthorized, err)
		case gerr.Code == http.StatusNotFound || gerr.Code == http.StatusGone:
			return fmt.Errorf("%s: %w: %v", op, domain.ErrNotFound, err)
		case gerr.Code == http.StatusRequestTimeout || gerr.Code >= 500:
			return fmt.Errorf("%s: %w: %v", op, domain.ErrTransient, err)
		case gerr.Code == http.StatusBadRequest:
			return fmt.Errorf("%s: %w: %v", op, domain.ErrInvalidInput, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%s: %w: %v", op, domain.ErrTransient, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isRateLimitReason(gerr *googleapi.Error) bool {
	for _, item := range gerr.Errors {
		if rateLimitReasons[item.Reason] {
			return true
		}
	}
	return false
}
