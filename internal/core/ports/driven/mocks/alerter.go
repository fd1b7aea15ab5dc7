package mocks

import (
	"context"
	"slices"
	"sync"

	"github.com/custodia-labs/drive-index/internal/core/domain"
)

// MockAlerter records alerts for assertions.
type MockAlerter struct {
	mu     sync.Mutex
	alerts []domain.Alert

	AlertFn func(alert domain.Alert) error
}

// NewMockAlerter creates a recording alerter.
func NewMockAlerter() *MockAlerter {
	return &MockAlerter{}
}

// Alert records the alert.
func (m *MockAlerter) Alert(ctx context.Context, alert domain.Alert) error {
	m.mu.Lock()
	m.alerts = append(m.alerts, alert)
	m.mu.Unlock()

	if m.AlertFn != nil {
		return m.AlertFn(alert)
	}
	return nil
}

// Alerts returns the recorded alerts.
func (m *MockAlerter) Alerts() []domain.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.alerts)
}
