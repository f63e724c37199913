package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/travelgo/chat-engine/pkg/apperrors"
	"github.com/travelgo/chat-engine/pkg/audit"
	"github.com/travelgo/chat-engine/pkg/lexicon"
	"github.com/travelgo/chat-engine/pkg/logging"
	"github.com/travelgo/chat-engine/pkg/metrics"
	"github.com/travelgo/chat-engine/pkg/models"
	"github.com/travelgo/chat-engine/pkg/repositories"
)

// Stage names, in evaluation order. The needs-identifier stages are named
// by NeedsIdentifierStage.
const (
	StageSensitive                = "sensitive"
	StageInternalData             = "internal_data"
	StageGreeting                 = "greeting"
	StagePIIWithoutCode           = "pii_without_code"
	StagePrivateWithoutIdentifier = "private_without_identifier"
	StageBookingCodeInvalid       = "booking_code_invalid"
	StageThematic                 = "thematic"
)

// Fixed replies.
const (
	ReplySensitive          = "Akses ditolak. Jangan meminta data sensitif seperti password atau token."
	ReplyInternalData       = "Maaf, kami tidak dapat membagikan data internal atau informasi sistem TravelGO."
	ReplyGreeting           = "Halo! Saya asisten TravelGO. Ada yang bisa saya bantu seputar trip, promo, jadwal, atau booking Anda?"
	ReplyPIIWithoutCode     = "Demi privasi, kami tidak mencari data pribadi berdasarkan nama atau kontak. Sertakan kode booking Anda (contoh: TG-ABC123) agar kami dapat membantu."
	ReplyPrivatePayment     = "Untuk menanyakan pembayaran, silakan login atau sertakan kode booking Anda (contoh: TG-ABC123)."
	ReplyPrivateDetail      = "Untuk melihat detail atau status pesanan, silakan login atau sertakan kode booking Anda (contoh: TG-ABC123)."
	ReplyPrivateGeneric     = "Silakan login atau sertakan kode booking Anda untuk mengakses informasi pribadi seperti booking."
	ReplyOffTopic           = "Maaf, topik di luar tema travel. Ajukan pertanyaan seputar promo, trip, itinerary, keamanan perjalanan, dsb."
	ReplyServiceUnavailable = "Maaf, layanan sedang tidak tersedia. Silakan coba beberapa saat lagi."

	bookingNotFoundFormat = "Kode booking %s tidak ditemukan. Periksa ejaan atau gunakan kode lain."
)

// KeyGreeting is the audit key of the greeting reply.
const KeyGreeting = "greeting"

// stagePassed labels the metric recorded when every stage passed.
const stagePassed = "all"

type kindPrompt struct {
	label  string
	format string
}

var kindPrompts = map[models.EntityKind]kindPrompt{
	models.EntityPromo:    {label: "promo", format: "kode promo (contoh: WELCOME200)"},
	models.EntityTrip:     {label: "trip", format: "slug atau ID trip (contoh: bali-escape-4d3n atau #12)"},
	models.EntityBlog:     {label: "artikel", format: "slug artikel (contoh: tips-packing-ringan)"},
	models.EntityCategory: {label: "kategori", format: "slug kategori (contoh: wisata-alam)"},
	models.EntityTag:      {label: "tag", format: "slug tag (contoh: pantai-tropis)"},
	models.EntitySchedule: {label: "jadwal", format: "ID jadwal (contoh: #45)"},
	models.EntityReview:   {label: "ulasan", format: "ID ulasan (contoh: #7)"},
}

var fieldLabels = map[string]string{
	"code": "kode",
	"slug": "slug",
	"id":   "ID",
}

// NeedsIdentifierStage names the needs-identifier stage for kind.
func NeedsIdentifierStage(kind models.EntityKind) string {
	return "needs_identifier:" + string(kind)
}

// EntityStore answers existence probes for identifiers.
type EntityStore interface {
	Exists(ctx context.Context, table, column string, value any) (bool, error)
}

// GateStage is one check of the pipeline. Check returns a non-nil outcome to
// stop the pipeline, or an error when the store could not be consulted.
type GateStage struct {
	Name  string
	Check func(ctx context.Context, st *gateState) (*models.GateOutcome, error)
}

// gateState is the per-request state shared by the stages.
type gateState struct {
	msg         models.Message
	intent      models.Intent
	bookingCode string
	verified    []models.EntityIdentifier
}

// GatePipeline decides whether a message may proceed to aggregation.
// It is immutable after construction and safe for concurrent use.
type GatePipeline struct {
	lex          *lexicon.Lexicon
	store        EntityStore
	bookings     repositories.BookingRepository
	auditor      *audit.SecurityAuditor
	storeTimeout time.Duration
	stages       []GateStage
	logger       *zap.Logger
}

// NewGatePipeline builds the pipeline with its fixed stage order.
func NewGatePipeline(
	lex *lexicon.Lexicon,
	store EntityStore,
	bookings repositories.BookingRepository,
	auditor *audit.SecurityAuditor,
	storeTimeout time.Duration,
	logger *zap.Logger,
) *GatePipeline {
	p := &GatePipeline{
		lex:          lex,
		store:        store,
		bookings:     bookings,
		auditor:      auditor,
		storeTimeout: storeTimeout,
		logger:       logger.Named("gates"),
	}

	p.stages = []GateStage{
		{Name: StageSensitive, Check: p.checkSensitive},
		{Name: StageInternalData, Check: p.checkInternalData},
		{Name: StageGreeting, Check: p.checkGreeting},
		{Name: StagePIIWithoutCode, Check: p.checkPIIWithoutCode},
	}
	for _, kind := range models.GatedEntityKinds {
		p.stages = append(p.stages, GateStage{
			Name:  NeedsIdentifierStage(kind),
			Check: p.needsIdentifier(kind),
		})
	}
	p.stages = append(p.stages,
		GateStage{Name: StagePrivateWithoutIdentifier, Check: p.checkPrivateWithoutIdentifier},
		GateStage{Name: StageBookingCodeInvalid, Check: p.checkBookingCode},
		GateStage{Name: StageThematic, Check: p.checkThematic},
	)
	return p
}

// Stages returns the stage names in evaluation order.
func (p *GatePipeline) Stages() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name
	}
	return names
}

// Evaluate runs the stages in order. The first stage that blocks wins and
// later stages never run. A store failure blocks with the service-unavailable
// reply. A passing outcome carries the identifiers confirmed to exist.
func (p *GatePipeline) Evaluate(ctx context.Context, msg models.Message, intent models.Intent) *models.GateOutcome {
	st := &gateState{msg: msg, intent: intent}
	st.bookingCode, _ = ExtractBookingCode(msg.Text, msg.BookingCode)

	for _, stage := range p.stages {
		outcome, err := stage.Check(ctx, st)
		if err != nil {
			logging.ForRequest(ctx, p.logger).Warn("Gate stage failed, refusing request",
				zap.String("stage", stage.Name),
				zap.String("error", logging.SanitizeError(err)))
			metrics.GateOutcomes.WithLabelValues(stage.Name, metrics.ResultError).Inc()
			return &models.GateOutcome{
				Blocked:  true,
				Stage:    stage.Name,
				Reply:    ReplyServiceUnavailable,
				UsedKeys: []string{},
			}
		}
		if outcome != nil {
			outcome.Blocked = true
			outcome.Stage = stage.Name
			if outcome.UsedKeys == nil {
				outcome.UsedKeys = []string{}
			}
			metrics.GateOutcomes.WithLabelValues(stage.Name, metrics.ResultBlocked).Inc()
			return outcome
		}
	}

	metrics.GateOutcomes.WithLabelValues(stagePassed, metrics.ResultPassed).Inc()
	return &models.GateOutcome{UsedKeys: []string{}, Verified: st.verified}
}

// IsOnTheme reports whether a message belongs to the travel domain.
func (p *GatePipeline) IsOnTheme(msg string, intent models.Intent) bool {
	if intent == models.IntentPublic || intent == models.IntentPrivate {
		return true
	}
	return lexicon.ContainsAnyPhrase(msg, p.lex.Domain) || p.IsThematicAllowed(msg)
}

// IsThematicAllowed reports whether a message asks about a travel-adjacent
// topic that may be answered without database context.
func (p *GatePipeline) IsThematicAllowed(msg string) bool {
	return lexicon.ContainsAnyPhrase(msg, p.lex.Thematic)
}

func (p *GatePipeline) checkSensitive(ctx context.Context, st *gateState) (*models.GateOutcome, error) {
	if st.intent != models.IntentSensitive {
		return nil, nil
	}
	p.auditor.LogRequestRefused(ctx, StageSensitive, st.msg.Text)
	return &models.GateOutcome{Reply: ReplySensitive}, nil
}

func (p *GatePipeline) checkInternalData(ctx context.Context, st *gateState) (*models.GateOutcome, error) {
	if !lexicon.ContainsAnyPhrase(st.msg.Text, p.lex.InternalData) {
		return nil, nil
	}
	p.auditor.LogRequestRefused(ctx, StageInternalData, st.msg.Text)
	return &models.GateOutcome{Reply: ReplyInternalData}, nil
}

func (p *GatePipeline) checkGreeting(_ context.Context, st *gateState) (*models.GateOutcome, error) {
	if !p.lex.IsGreetingOnly(st.msg.Text) {
		return nil, nil
	}
	return &models.GateOutcome{Reply: ReplyGreeting, UsedKeys: []string{KeyGreeting}}, nil
}

// checkPIIWithoutCode refuses lookups by personal data unless a booking code
// is present, whether or not the caller is logged in.
func (p *GatePipeline) checkPIIWithoutCode(_ context.Context, st *gateState) (*models.GateOutcome, error) {
	if st.bookingCode != "" || !lexicon.ContainsAnyPhrase(st.msg.Text, p.lex.PII) {
		return nil, nil
	}
	return &models.GateOutcome{Reply: ReplyPIIWithoutCode}, nil
}

// needsIdentifier returns the check for one entity kind. The kind counts as
// asked for when a detail phrase is present, or when a keyword is present
// together with an identifier bound to that kind. No prompt is given when the
// message only carries identifiers bound to other kinds, or when it names a
// period such as "bulan ini".
func (p *GatePipeline) needsIdentifier(kind models.EntityKind) func(context.Context, *gateState) (*models.GateOutcome, error) {
	return func(ctx context.Context, st *gateState) (*models.GateOutcome, error) {
		terms := p.lex.Entities[kind]
		id, found, foreign := p.ownIdentifier(kind, st.msg.Text)

		asked := lexicon.ContainsAnyPhrase(st.msg.Text, terms.DetailPhrases) ||
			(found && lexicon.ContainsAnyPhrase(st.msg.Text, terms.Keywords))
		if !asked || foreign {
			return nil, nil
		}

		prompt := kindPrompts[kind]
		if !found {
			if lexicon.ContainsAnyPhrase(st.msg.Text, p.lex.DateRanges) {
				return nil, nil
			}
			return &models.GateOutcome{
				Reply: fmt.Sprintf("Untuk melihat detail %s, sebutkan %s.", prompt.label, prompt.format),
			}, nil
		}

		exists, err := p.exists(ctx, id)
		if err != nil {
			return nil, err
		}
		if !exists {
			return &models.GateOutcome{
				Reply: fmt.Sprintf("%s dengan %s %s tidak ditemukan. Periksa kembali penulisannya.",
					capitalize(prompt.label), fieldLabels[id.Field], id.Key),
				UsedKeys: []string{id.AuditKey()},
			}, nil
		}

		st.verified = append(st.verified, id)
		return nil, nil
	}
}

// ownIdentifier returns the first candidate of kind whose token is bound to
// kind. foreign is set when candidates exist but all of them belong to other
// kinds.
func (p *GatePipeline) ownIdentifier(kind models.EntityKind, text string) (models.EntityIdentifier, bool, bool) {
	candidates := locateIdentifiers(kind, text)
	for _, c := range candidates {
		if p.boundKind(text, c) == kind {
			return c.EntityIdentifier, true, false
		}
	}
	return models.EntityIdentifier{}, false, len(candidates) > 0
}

// boundKind returns the kind a token belongs to: among the kinds that can
// read the same token, the one whose keyword ends closest before it, else the
// one whose keyword starts closest after it. Without any such keyword the
// token stays with its own kind.
func (p *GatePipeline) boundKind(text string, c locatedIdentifier) models.EntityKind {
	after := len(text) + 1
	owner, best := c.Kind, -1
	for _, kind := range models.GatedEntityKinds {
		if !readsToken(kind, text, c.pos) {
			continue
		}
		for _, span := range lexicon.PhraseOffsets(text, p.lex.Entities[kind].Keywords) {
			var dist int
			switch {
			case span.End <= c.pos:
				dist = c.pos - span.End
			case span.Start >= c.end:
				dist = after + span.Start - c.end
			default:
				continue
			}
			if best < 0 || dist < best {
				owner, best = kind, dist
			}
		}
	}
	return owner
}

func readsToken(kind models.EntityKind, text string, pos int) bool {
	for _, c := range locateIdentifiers(kind, text) {
		if c.pos == pos {
			return true
		}
	}
	return false
}

func (p *GatePipeline) checkPrivateWithoutIdentifier(_ context.Context, st *gateState) (*models.GateOutcome, error) {
	if st.intent != models.IntentPrivate || st.msg.User != nil || st.bookingCode != "" {
		return nil, nil
	}

	reply := ReplyPrivateGeneric
	switch {
	case lexicon.ContainsAnyPhrase(st.msg.Text, p.lex.Payment):
		reply = ReplyPrivatePayment
	case lexicon.ContainsAnyPhrase(st.msg.Text, p.lex.Detail):
		reply = ReplyPrivateDetail
	}
	return &models.GateOutcome{Reply: reply}, nil
}

// checkBookingCode verifies a booking code for private messages or when the
// caller supplied one explicitly. Authenticated callers only see their own
// bookings.
func (p *GatePipeline) checkBookingCode(ctx context.Context, st *gateState) (*models.GateOutcome, error) {
	if st.bookingCode == "" {
		return nil, nil
	}
	if st.intent != models.IntentPrivate && strings.TrimSpace(st.msg.BookingCode) == "" {
		return nil, nil
	}

	email := ""
	if st.msg.User != nil {
		email = st.msg.User.Email
	}

	storeCtx, cancel := withTimeout(ctx, p.storeTimeout)
	defer cancel()

	_, err := p.bookings.GetByCode(storeCtx, st.bookingCode, email)
	if errors.Is(err, apperrors.ErrNotFound) {
		return &models.GateOutcome{
			Reply:    fmt.Sprintf(bookingNotFoundFormat, st.bookingCode),
			UsedKeys: []string{BookingIdentifier(st.bookingCode).AuditKey()},
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("verify booking code: %w", err)
	}

	st.verified = append(st.verified, BookingIdentifier(st.bookingCode))
	return nil, nil
}

func (p *GatePipeline) checkThematic(_ context.Context, st *gateState) (*models.GateOutcome, error) {
	if len(st.verified) > 0 || p.IsOnTheme(st.msg.Text, st.intent) {
		return nil, nil
	}
	return &models.GateOutcome{Reply: ReplyOffTopic}, nil
}

func (p *GatePipeline) exists(ctx context.Context, id models.EntityIdentifier) (bool, error) {
	storeCtx, cancel := withTimeout(ctx, p.storeTimeout)
	defer cancel()

	exists, err := p.store.Exists(storeCtx, id.Table, id.Column, id.ProbeValue())
	if err != nil {
		return false, fmt.Errorf("probe %s: %w", id.AuditKey(), err)
	}
	return exists, nil
}

// withTimeout bounds ctx by d. A non-positive d means no extra deadline.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
