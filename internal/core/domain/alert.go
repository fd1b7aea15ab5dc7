package domain

import "time"

// AlertSeverity ranks operator alerts
type AlertSeverity string

const (
	AlertSeverityWarning  AlertSeverity = "warning"
	AlertSeverityCritical AlertSeverity = "critical"
)

// Alert is an operator-visible notification raised by the crawl engine
type Alert struct {
	Severity AlertSeverity `json:"severity"`
	ScopeID  string        `json:"scope_id,omitempty"`
	JobID    string        `json:"job_id,omitempty"`
	Message  string        `json:"message"`
	At       time.Time     `json:"at"`
}

// NewAlert creates an alert stamped now
func NewAlert(severity AlertSeverity, scopeID, jobID, message string) Alert {
	return Alert{
		Severity: severity,
		ScopeID:  scopeID,
		JobID:    jobID,
		Message:  message,
		At:       time.Now(),
	}
}
