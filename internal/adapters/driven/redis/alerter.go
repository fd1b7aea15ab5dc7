package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/drive-index/internal/core/domain"
	"github.com/custodia-labs/drive-index/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.Alerter = (*Alerter)(nil)

const (
	// AlertChannel is the pub/sub channel alerts are published on
	AlertChannel = "drive-index:alerts"

	alertHistoryKey = "drive-index:alerts:recent"
	alertHistoryLen = 200
)

// Alerter publishes alerts as JSON and keeps a bounded history list.
type Alerter struct {
	client *redis.Client
	logger *slog.Logger
}

// NewAlerter creates a Redis alerter. A nil logger uses slog.Default().
func NewAlerter(client *redis.Client, logger *slog.Logger) *Alerter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Alerter{client: client, logger: logger}
}

// Alert publishes the alert and appends it to the history.
func (a *Alerter) Alert(ctx context.Context, alert domain.Alert) error {
	a.logger.Error("crawl alert",
		"severity", alert.Severity,
		"scope_id", alert.ScopeID,
		"job_id", alert.JobID,
		"message", alert.Message)

	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	pipe := a.client.TxPipeline()
	pipe.Publish(ctx, AlertChannel, payload)
	pipe.LPush(ctx, alertHistoryKey, payload)
	pipe.LTrim(ctx, alertHistoryKey, 0, alertHistoryLen-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish alert: %w", err)
	}
	return nil
}

// Recent returns retained alerts, oldest first.
func (a *Alerter) Recent(ctx context.Context) ([]domain.Alert, error) {
	raw, err := a.client.LRange(ctx, alertHistoryKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read alerts: %w", err)
	}

	alerts := make([]domain.Alert, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var alert domain.Alert
		if err := json.Unmarshal([]byte(raw[i]), &alert); err != nil {
			a.logger.Warn("skipping malformed alert", "error", err)
			continue
		}
		alerts = append(alerts, alert)
	}
	return alerts, nil
}
