// Package audit records security-relevant events of the chat pipeline as
// structured JSON log entries.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/travelgo/chat-engine/pkg/auth"
	"github.com/travelgo/chat-engine/pkg/logging"
)

// Event types.
const (
	EventInjectionAttempt = "sql_injection_attempt"
	EventQueryRejected    = "generated_query_rejected"
	EventRequestRefused   = "request_refused"
)

// Severities.
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
	SeverityInfo     = "info"
)

// SecurityAuditor logs security events to a dedicated named logger.
type SecurityAuditor struct {
	logger *zap.Logger
}

// NewSecurityAuditor creates a new security auditor.
func NewSecurityAuditor(logger *zap.Logger) *SecurityAuditor {
	return &SecurityAuditor{
		logger: logger.Named("security_audit"),
	}
}

// SecurityEvent is one audited occurrence.
type SecurityEvent struct {
	EventID   string    `json:"event_id"`
	Timestamp time.Time `json:"timestamp"`
	EventType string    `json:"event_type"`
	RequestID string    `json:"request_id,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	Details   any       `json:"details"`
	Severity  string    `json:"severity"`
}

// InjectionDetails describes user input flagged by libinjection.
type InjectionDetails struct {
	Field       string `json:"field"`
	Value       string `json:"value"`
	Fingerprint string `json:"fingerprint"`
}

// RejectionDetails describes a generated query the validator refused.
type RejectionDetails struct {
	Rule         string `json:"rule"`
	Reason       string `json:"reason"`
	ClaimedTable string `json:"claimed_table,omitempty"`
	SQL          string `json:"sql"`
}

// RefusalDetails describes a message blocked for privacy or security reasons.
type RefusalDetails struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// LogInjectionAttempt records user input that matched an injection pattern.
// The value is truncated before logging.
func (a *SecurityAuditor) LogInjectionAttempt(ctx context.Context, details InjectionDetails) {
	details.Value = logging.TruncateString(details.Value, 100)
	event := a.newEvent(ctx, EventInjectionAttempt, SeverityCritical, details)

	a.logger.Error("SQL injection attempt detected",
		zap.String("event_id", event.EventID),
		zap.String("request_id", event.RequestID),
		zap.String("user_id", event.UserID),
		zap.String("field", details.Field),
		zap.String("fingerprint", details.Fingerprint),
		zap.String("severity", event.Severity),
		zap.String("event_json", eventJSON(event)),
	)
}

// LogQueryRejected records a generated query that failed validation. The SQL
// is sanitized before logging.
func (a *SecurityAuditor) LogQueryRejected(ctx context.Context, details RejectionDetails) {
	details.SQL = logging.SanitizeQuery(details.SQL)
	event := a.newEvent(ctx, EventQueryRejected, SeverityWarning, details)

	a.logger.Warn("Generated query rejected",
		zap.String("event_id", event.EventID),
		zap.String("request_id", event.RequestID),
		zap.String("rule", details.Rule),
		zap.String("severity", event.Severity),
		zap.String("event_json", eventJSON(event)),
	)
}

// LogRequestRefused records a message blocked by a sensitive-data or
// internal-data stage. The message is masked before logging.
func (a *SecurityAuditor) LogRequestRefused(ctx context.Context, stage, message string) {
	details := RefusalDetails{Stage: stage, Message: logging.SanitizeMessage(message)}
	event := a.newEvent(ctx, EventRequestRefused, SeverityInfo, details)

	a.logger.Info("Request refused",
		zap.String("event_id", event.EventID),
		zap.String("request_id", event.RequestID),
		zap.String("stage", stage),
		zap.String("severity", event.Severity),
		zap.String("event_json", eventJSON(event)),
	)
}

func (a *SecurityAuditor) newEvent(ctx context.Context, eventType, severity string, details any) SecurityEvent {
	return SecurityEvent{
		EventID:   uuid.NewString(),
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		RequestID: logging.RequestIDFromContext(ctx),
		UserID:    auth.GetUserIDFromContext(ctx),
		Details:   details,
		Severity:  severity,
	}
}

// eventJSON serializes an event for log ingestion.
func eventJSON(event SecurityEvent) string {
	data, _ := json.Marshal(event)
	return string(data)
}
