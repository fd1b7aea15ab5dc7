package memory

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/custodia-labs/drive-index/internal/core/domain"
	"github.com/custodia-labs/drive-index/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.Alerter = (*Alerter)(nil)

const defaultAlertHistory = 200

// Alerter logs alerts and keeps the most recent ones for the dashboard.
type Alerter struct {
	mu     sync.Mutex
	recent []domain.Alert
	logger *slog.Logger
}

// NewAlerter creates an alerter. A nil logger uses slog.Default().
func NewAlerter(logger *slog.Logger) *Alerter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Alerter{logger: logger}
}

func (a *Alerter) Alert(ctx context.Context, alert domain.Alert) error {
	a.logger.Error("crawl alert",
		"severity", alert.Severity,
		"scope_id", alert.ScopeID,
		"job_id", alert.JobID,
		"message", alert.Message)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.recent = append(a.recent, alert)
	if len(a.recent) > defaultAlertHistory {
		a.recent = slices.Clone(a.recent[len(a.recent)-defaultAlertHistory:])
	}
	return nil
}

// Recent returns retained alerts, oldest first.
func (a *Alerter) Recent(ctx context.Context) ([]domain.Alert, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.recent), nil
}
