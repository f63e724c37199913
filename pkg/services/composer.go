package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/travelgo/chat-engine/pkg/logging"
	"github.com/travelgo/chat-engine/pkg/models"
	"github.com/travelgo/chat-engine/pkg/sql"
)

// KeyGeneral tags replies answered without database context.
const KeyGeneral = "general.ai"

// Suggested actions.
const (
	actionUsePromoFormat = "Gunakan kode %s"
	actionViewTrips      = "Lihat detail trip yang direkomendasikan"
	actionViewBookings   = "Lihat detail booking terakhir Anda"
)

// QueryGenerator proposes read-only queries and writes replies. Failures
// never surface: ProposeQueries degrades to no candidates and the answer
// methods degrade to models.ReplyOutOfContext.
type QueryGenerator interface {
	ProposeQueries(ctx context.Context, message string, allowedTables, hints []string) []sql.CandidateQuery
	Answer(ctx context.Context, message string, chunks []string) string
	AnswerThematic(ctx context.Context, message string) string
}

// Composer turns an aggregate into the caller-facing response.
type Composer struct {
	generator QueryGenerator
	logger    *zap.Logger
}

// NewComposer creates a Composer.
func NewComposer(generator QueryGenerator, logger *zap.Logger) *Composer {
	return &Composer{
		generator: generator,
		logger:    logger.Named("composer"),
	}
}

// ComposeRequest is the input of one composition.
type ComposeRequest struct {
	Message         string
	Intent          models.Intent
	ThematicAllowed bool
	Aggregate       *models.AggregateResult
}

// Compose answers from the chunks when there are any. Without chunks it asks
// for a general travel answer when the intent or topic allows one, and
// otherwise replies that the question is out of context.
func (c *Composer) Compose(ctx context.Context, req ComposeRequest) *models.ChatResponse {
	agg := req.Aggregate
	if agg == nil {
		agg = models.NewAggregateResult()
	}
	keys := append([]string{}, agg.UsedKeys...)

	var reply string
	switch {
	case len(agg.Chunks) > 0:
		reply = c.generator.Answer(ctx, req.Message, agg.Chunks)
	case req.Intent.AllowsThematicAnswer() || req.ThematicAllowed:
		reply = c.generator.AnswerThematic(ctx, req.Message)
		keys = append(keys, KeyGeneral)
	default:
		reply = models.ReplyOutOfContext
	}

	logging.ForRequest(ctx, c.logger).Debug("Composed reply",
		zap.Int("chunks", len(agg.Chunks)),
		zap.Strings("keys", keys))

	resp := models.NewChatResponse(reply, keys)
	resp.RelatedTrips = agg.RelatedTrips
	resp.RelatedPromos = agg.RelatedPromos
	resp.UserBookings = agg.UserBookings
	resp.GeneratedQueries = agg.GeneratedQueries
	resp.RelatedCollections = agg.RelatedCollections
	resp.SuggestedActions = SuggestedActions(agg)
	resp.Summary = Summarize(req.Message, reply, agg)
	return resp
}

// SuggestedActions derives follow-up actions from the aggregate: one per promo
// with a code, then one for trips and one for bookings.
func SuggestedActions(agg *models.AggregateResult) []string {
	actions := []string{}
	for _, p := range agg.RelatedPromos {
		if p.PromoCode != "" {
			actions = append(actions, fmt.Sprintf(actionUsePromoFormat, p.PromoCode))
		}
	}
	if len(agg.RelatedTrips) > 0 {
		actions = append(actions, actionViewTrips)
	}
	if len(agg.UserBookings) > 0 {
		actions = append(actions, actionViewBookings)
	}
	return actions
}

// Summarize builds a short narrative from fixed sentences. It reports counts
// only and never lists items.
func Summarize(message, reply string, agg *models.AggregateResult) string {
	var parts []string
	if msg := strings.TrimSpace(message); msg != "" {
		parts = append(parts, "Permintaan: "+msg)
	}
	if n := len(agg.RelatedPromos); n > 0 {
		parts = append(parts, fmt.Sprintf("Ditemukan %d promo aktif yang relevan.", n))
	}
	if n := len(agg.RelatedTrips); n > 0 {
		parts = append(parts, fmt.Sprintf("Ada %d trip yang sesuai konteks.", n))
	}
	if n := len(agg.UserBookings); n > 0 {
		parts = append(parts, fmt.Sprintf("Kami juga menemukan %d booking terkait akun Anda.", n))
	}
	if reply != "" {
		parts = append(parts, "Jawaban: "+reply)
	}
	return strings.Join(parts, " ")
}
