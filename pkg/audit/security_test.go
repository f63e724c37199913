package audit

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/travelgo/chat-engine/pkg/auth"
	"github.com/travelgo/chat-engine/pkg/logging"
)

// setupTestLogger creates a test logger with an observer to capture log entries.
func setupTestLogger(t *testing.T) (*zap.Logger, *observer.ObservedLogs) {
	t.Helper()
	core, recorded := observer.New(zapcore.DebugLevel)
	return zap.New(core), recorded
}

func decodeEvent(t *testing.T, fields map[string]any) SecurityEvent {
	t.Helper()
	raw, ok := fields["event_json"].(string)
	require.True(t, ok, "event_json should be a string")

	var event SecurityEvent
	require.NoError(t, json.Unmarshal([]byte(raw), &event))
	return event
}

func TestNewSecurityAuditor(t *testing.T) {
	logger, _ := setupTestLogger(t)
	auditor := NewSecurityAuditor(logger)

	assert.NotNil(t, auditor)
	assert.NotNil(t, auditor.logger)
}

func TestLogInjectionAttempt(t *testing.T) {
	logger, recorded := setupTestLogger(t)
	auditor := NewSecurityAuditor(logger)

	tests := []struct {
		name     string
		ctx      context.Context
		wantUser string
	}{
		{
			name: "with user context",
			ctx: func() context.Context {
				claims := &auth.Claims{}
				claims.Subject = "42"
				ctx := context.WithValue(context.Background(), auth.ClaimsKey, claims)
				return logging.WithRequestID(ctx, "req-1")
			}(),
			wantUser: "42",
		},
		{
			name:     "anonymous",
			ctx:      logging.WithRequestID(context.Background(), "req-1"),
			wantUser: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorded.TakeAll()

			auditor.LogInjectionAttempt(tt.ctx, InjectionDetails{
				Field:       "booking_code",
				Value:       "' OR '1'='1",
				Fingerprint: "s&sos",
			})

			logs := recorded.All()
			require.Len(t, logs, 1)

			entry := logs[0]
			assert.Equal(t, zapcore.ErrorLevel, entry.Level)
			assert.Equal(t, "SQL injection attempt detected", entry.Message)

			fields := entry.ContextMap()
			assert.Equal(t, "req-1", fields["request_id"])
			assert.Equal(t, tt.wantUser, fields["user_id"])
			assert.Equal(t, "booking_code", fields["field"])
			assert.Equal(t, "critical", fields["severity"])

			event := decodeEvent(t, fields)
			assert.Equal(t, EventInjectionAttempt, event.EventType)
			assert.Equal(t, "req-1", event.RequestID)
			assert.Equal(t, tt.wantUser, event.UserID)
			assert.NotEmpty(t, event.EventID)

			details, ok := event.Details.(map[string]any)
			require.True(t, ok)
			assert.Equal(t, "' OR '1'='1", details["value"])
			assert.Equal(t, "s&sos", details["fingerprint"])
		})
	}
}

func TestLogInjectionAttempt_TruncatesValue(t *testing.T) {
	logger, recorded := setupTestLogger(t)
	auditor := NewSecurityAuditor(logger)

	auditor.LogInjectionAttempt(context.Background(), InjectionDetails{
		Field: "message",
		Value: strings.Repeat("x", 300),
	})

	event := decodeEvent(t, recorded.All()[0].ContextMap())
	details := event.Details.(map[string]any)
	value := details["value"].(string)
	assert.LessOrEqual(t, len(value), 103)
	assert.True(t, strings.HasSuffix(value, "..."))
}

func TestLogQueryRejected(t *testing.T) {
	logger, recorded := setupTestLogger(t)
	auditor := NewSecurityAuditor(logger)

	auditor.LogQueryRejected(context.Background(), RejectionDetails{
		Rule:         "table_not_allowed",
		Reason:       "query rejected: table_not_allowed (users)",
		ClaimedTable: "promos",
		SQL:          "SELECT email FROM users",
	})

	logs := recorded.All()
	require.Len(t, logs, 1)

	entry := logs[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	assert.Equal(t, "Generated query rejected", entry.Message)

	fields := entry.ContextMap()
	assert.Equal(t, "table_not_allowed", fields["rule"])
	assert.Equal(t, "warning", fields["severity"])

	event := decodeEvent(t, fields)
	assert.Equal(t, EventQueryRejected, event.EventType)
	details := event.Details.(map[string]any)
	assert.Equal(t, "SELECT email FROM users", details["sql"])
	assert.Equal(t, "promos", details["claimed_table"])
}

func TestLogRequestRefused_MasksMessage(t *testing.T) {
	logger, recorded := setupTestLogger(t)
	auditor := NewSecurityAuditor(logger)

	auditor.LogRequestRefused(context.Background(), "sensitive", "password akun rina@example.com apa?")

	logs := recorded.All()
	require.Len(t, logs, 1)
	assert.Equal(t, zapcore.InfoLevel, logs[0].Level)

	event := decodeEvent(t, logs[0].ContextMap())
	assert.Equal(t, EventRequestRefused, event.EventType)
	details := event.Details.(map[string]any)
	assert.Equal(t, "sensitive", details["stage"])
	assert.NotContains(t, details["message"], "rina@example.com")
}
