package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/travelgo/chat-engine/pkg/models"
)

func aggregateWithData() *models.AggregateResult {
	agg := models.NewAggregateResult()
	agg.Chunks = []string{"Promo: Welcome Deal (kode WELCOME200)", "Trip: Bali Escape (Bali), harga 1500000"}
	agg.UsedKeys = []string{"promos.ai", "trips.ai"}
	agg.RelatedPromos = []models.PromoSummary{{Name: "Welcome Deal", PromoCode: "WELCOME200"}, {Name: "Tanpa Kode"}}
	agg.RelatedTrips = []models.TripSummary{{ID: 1, Name: "Bali Escape"}}
	agg.GeneratedQueries = []string{promoSQL, tripSQL}
	return agg
}

func TestCompose_AnswersFromChunks(t *testing.T) {
	gen := &mockGenerator{answer: "Ada promo WELCOME200."}
	c := NewComposer(gen, zap.NewNop())
	agg := aggregateWithData()

	resp := c.Compose(context.Background(), ComposeRequest{
		Message:   "promo bali",
		Intent:    models.IntentPublic,
		Aggregate: agg,
	})

	assert.Equal(t, "Ada promo WELCOME200.", resp.Reply)
	assert.Equal(t, 1, gen.answerCalls)
	assert.Zero(t, gen.thematicCalls)
	assert.Equal(t, agg.Chunks, gen.lastChunks)
	assert.Equal(t, []string{"promos.ai", "trips.ai"}, resp.UsedContextKeys)
	assert.Equal(t, []string{promoSQL, tripSQL}, resp.GeneratedQueries)
	assert.Equal(t, []string{"Gunakan kode WELCOME200", "Lihat detail trip yang direkomendasikan"}, resp.SuggestedActions)
	assert.Equal(t,
		"Permintaan: promo bali Ditemukan 2 promo aktif yang relevan. Ada 1 trip yang sesuai konteks. Jawaban: Ada promo WELCOME200.",
		resp.Summary)
}

func TestCompose_WithoutChunks(t *testing.T) {
	tests := []struct {
		name         string
		intent       models.Intent
		thematic     bool
		wantReply    string
		wantKeys     []string
		wantThematic int
	}{
		{"public falls back to general answer", models.IntentPublic, false, "Jawaban umum.", []string{"general.ai"}, 1},
		{"unknown falls back to general answer", models.IntentUnknown, false, "Jawaban umum.", []string{"general.ai"}, 1},
		{"private with thematic topic", models.IntentPrivate, true, "Jawaban umum.", []string{"general.ai"}, 1},
		{"private without context", models.IntentPrivate, false, models.ReplyOutOfContext, []string{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &mockGenerator{answer: "tidak dipakai", thematic: "Jawaban umum."}
			c := NewComposer(gen, zap.NewNop())

			resp := c.Compose(context.Background(), ComposeRequest{
				Message:         "pertanyaan",
				Intent:          tt.intent,
				ThematicAllowed: tt.thematic,
				Aggregate:       models.NewAggregateResult(),
			})

			assert.Equal(t, tt.wantReply, resp.Reply)
			assert.Equal(t, tt.wantKeys, resp.UsedContextKeys)
			assert.Equal(t, tt.wantThematic, gen.thematicCalls)
			assert.Zero(t, gen.answerCalls)
			assert.Equal(t, []string{}, resp.SuggestedActions)
		})
	}
}

func TestCompose_NilAggregate(t *testing.T) {
	gen := &mockGenerator{thematic: "Jawaban umum."}
	c := NewComposer(gen, zap.NewNop())

	resp := c.Compose(context.Background(), ComposeRequest{Message: "halo", Intent: models.IntentUnknown})

	assert.Equal(t, "Jawaban umum.", resp.Reply)
	assert.NotNil(t, resp.RelatedTrips)
	assert.NotNil(t, resp.RelatedCollections)
}

func TestCompose_DoesNotAliasAggregateKeys(t *testing.T) {
	gen := &mockGenerator{thematic: "Jawaban umum."}
	c := NewComposer(gen, zap.NewNop())
	agg := models.NewAggregateResult()
	agg.UsedKeys = make([]string, 0, 4)

	c.Compose(context.Background(), ComposeRequest{Message: "tips", Intent: models.IntentUnknown, Aggregate: agg})

	assert.Empty(t, agg.UsedKeys)
}

func TestSuggestedActions_Bookings(t *testing.T) {
	agg := models.NewAggregateResult()
	agg.UserBookings = []models.BookingSummary{sampleBooking()}

	assert.Equal(t, []string{"Lihat detail booking terakhir Anda"}, SuggestedActions(agg))
}

func TestSummarize(t *testing.T) {
	agg := models.NewAggregateResult()
	agg.UserBookings = []models.BookingSummary{sampleBooking()}

	assert.Equal(t,
		"Permintaan: riwayat booking Kami juga menemukan 1 booking terkait akun Anda. Jawaban: Booking Anda terkonfirmasi.",
		Summarize("  riwayat booking  ", "Booking Anda terkonfirmasi.", agg))
	assert.Equal(t, "", Summarize("", "", models.NewAggregateResult()))
}
