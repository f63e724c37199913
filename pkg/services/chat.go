package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/travelgo/chat-engine/pkg/audit"
	"github.com/travelgo/chat-engine/pkg/logging"
	"github.com/travelgo/chat-engine/pkg/models"
	"github.com/travelgo/chat-engine/pkg/sql"
)

// ChatService handles chat messages end to end: classify, gate, propose
// queries, aggregate and compose.
type ChatService struct {
	gates         *GatePipeline
	generator     QueryGenerator
	aggregator    *Aggregator
	composer      *Composer
	auditor       *audit.SecurityAuditor
	allowedTables []string
	logger        *zap.Logger
}

// NewChatService wires the pipeline components. allowedTables is the
// whitelist offered to the generator.
func NewChatService(
	gates *GatePipeline,
	generator QueryGenerator,
	aggregator *Aggregator,
	composer *Composer,
	auditor *audit.SecurityAuditor,
	allowedTables []string,
	logger *zap.Logger,
) *ChatService {
	return &ChatService{
		gates:         gates,
		generator:     generator,
		aggregator:    aggregator,
		composer:      composer,
		auditor:       auditor,
		allowedTables: allowedTables,
		logger:        logger.Named("chat"),
	}
}

// Handle never returns an error; every path, including a panic inside the
// pipeline, yields a well-formed response. A request id already on ctx is
// reused for correlation.
func (s *ChatService) Handle(ctx context.Context, msg models.Message) (resp *models.ChatResponse) {
	start := time.Now()
	if logging.RequestIDFromContext(ctx) == "" {
		ctx = logging.WithRequestID(ctx, uuid.NewString())
	}
	logger := logging.ForRequest(ctx, s.logger)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Chat pipeline panicked", zap.Any("panic", r))
			resp = models.NewChatResponse(ReplyServiceUnavailable, nil)
		}
	}()

	s.screenInput(ctx, msg)

	intent := ClassifyIntent(msg.Text)
	outcome := s.gates.Evaluate(ctx, msg, intent)
	if outcome.Blocked {
		logger.Info("Chat message blocked",
			zap.String("intent", intent.String()),
			zap.String("stage", outcome.Stage),
			zap.Duration("duration", time.Since(start)))
		return models.NewChatResponse(outcome.Reply, outcome.UsedKeys)
	}

	candidates := s.generator.ProposeQueries(ctx, msg.Text, s.allowedTables, generatorHints(msg.Text, outcome.Verified))
	bookingCode, _ := outcome.VerifiedBookingCode()

	agg := s.aggregator.Aggregate(ctx, AggregateRequest{
		Message:     msg,
		Intent:      intent,
		Candidates:  candidates,
		BookingCode: bookingCode,
	})

	resp = s.composer.Compose(ctx, ComposeRequest{
		Message:         msg.Text,
		Intent:          intent,
		ThematicAllowed: s.gates.IsThematicAllowed(msg.Text),
		Aggregate:       agg,
	})

	logger.Info("Chat message answered",
		zap.String("intent", intent.String()),
		zap.Int("candidates", len(candidates)),
		zap.Int("executed", len(resp.GeneratedQueries)),
		zap.Strings("keys", resp.UsedContextKeys),
		zap.Duration("duration", time.Since(start)))
	return resp
}

// screenInput audits free-form input that looks like SQL injection. The
// pipeline never interpolates input into SQL, so flagged input is not
// blocked.
func (s *ChatService) screenInput(ctx context.Context, msg models.Message) {
	for _, field := range []struct{ name, value string }{
		{"message", msg.Text},
		{"booking_code", msg.BookingCode},
	} {
		if field.value == "" {
			continue
		}
		if result := sql.CheckIdentifierForInjection(field.name, field.value); result != nil {
			s.auditor.LogInjectionAttempt(ctx, audit.InjectionDetails{
				Field:       result.Field,
				Value:       result.Value,
				Fingerprint: result.Fingerprint,
			})
		}
	}
}

// generatorHints lists verified identifiers first, then message keywords.
// Bookings are never hinted since generated queries cannot read them.
func generatorHints(message string, verified []models.EntityIdentifier) []string {
	var hints []string
	for _, id := range verified {
		if id.Kind == models.EntityBooking {
			continue
		}
		hints = append(hints, fmt.Sprintf("%s.%s = %s", id.Table, id.Column, id.Key))
	}
	return append(hints, keywordHints(message)...)
}
