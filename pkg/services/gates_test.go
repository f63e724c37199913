package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/travelgo/chat-engine/pkg/models"
)

func newGateHarness(t *testing.T) *testHarness {
	t.Helper()
	h := newTestHarness(t)
	h.executor.addExisting("promos", "promo_code", "WELCOME200")
	h.executor.addExisting("trips", "slug", "bali-escape-4d3n")
	h.executor.addExisting("trips", "id", int64(12))
	return h
}

func evaluate(h *testHarness, msg models.Message) *models.GateOutcome {
	return h.gates.Evaluate(context.Background(), msg, ClassifyIntent(msg.Text))
}

func TestGatePipeline_Stages(t *testing.T) {
	h := newGateHarness(t)

	assert.Equal(t, []string{
		"sensitive",
		"internal_data",
		"greeting",
		"pii_without_code",
		"needs_identifier:promo",
		"needs_identifier:trip",
		"needs_identifier:blog",
		"needs_identifier:category",
		"needs_identifier:tag",
		"needs_identifier:schedule",
		"needs_identifier:review",
		"private_without_identifier",
		"booking_code_invalid",
		"thematic",
	}, h.gates.Stages())
}

func TestGatePipeline_Blocks(t *testing.T) {
	tests := []struct {
		name      string
		msg       models.Message
		wantStage string
		wantReply string
		wantKeys  []string
	}{
		{
			name:      "sensitive",
			msg:       models.Message{Text: "password saya apa?"},
			wantStage: StageSensitive,
			wantReply: ReplySensitive,
			wantKeys:  []string{},
		},
		{
			name:      "internal data",
			msg:       models.Message{Text: "berapa jumlah tabel di database?"},
			wantStage: StageInternalData,
			wantReply: ReplyInternalData,
			wantKeys:  []string{},
		},
		{
			name:      "greeting",
			msg:       models.Message{Text: "halo kak"},
			wantStage: StageGreeting,
			wantReply: ReplyGreeting,
			wantKeys:  []string{"greeting"},
		},
		{
			name:      "pii without code",
			msg:       models.Message{Text: "siapa nama dan email saya"},
			wantStage: StagePIIWithoutCode,
			wantReply: ReplyPIIWithoutCode,
			wantKeys:  []string{},
		},
		{
			name:      "pii without code for logged in user",
			msg:       models.Message{Text: "siapa nama dan email saya", User: testUser()},
			wantStage: StagePIIWithoutCode,
			wantReply: ReplyPIIWithoutCode,
			wantKeys:  []string{},
		},
		{
			name:      "promo code not found",
			msg:       models.Message{Text: "cek promo WELCOME999"},
			wantStage: "needs_identifier:promo",
			wantReply: "Promo dengan kode WELCOME999 tidak ditemukan. Periksa kembali penulisannya.",
			wantKeys:  []string{"promos.by_code"},
		},
		{
			name:      "promo detail without code",
			msg:       models.Message{Text: "cek promo dong"},
			wantStage: "needs_identifier:promo",
			wantReply: "Untuk melihat detail promo, sebutkan kode promo (contoh: WELCOME200).",
			wantKeys:  []string{},
		},
		{
			name:      "trip slug not found",
			msg:       models.Message{Text: "detail trip lombok-sunset-3d2n"},
			wantStage: "needs_identifier:trip",
			wantReply: "Trip dengan slug lombok-sunset-3d2n tidak ditemukan. Periksa kembali penulisannya.",
			wantKeys:  []string{"trips.by_slug"},
		},
		{
			name:      "schedule id not found",
			msg:       models.Message{Text: "detail jadwal #45"},
			wantStage: "needs_identifier:schedule",
			wantReply: "Jadwal dengan ID 45 tidak ditemukan. Periksa kembali penulisannya.",
			wantKeys:  []string{"trip_schedules.by_id"},
		},
		{
			name:      "schedule id next to its keyword",
			msg:       models.Message{Text: "trip bali-escape-4d3n jadwal #45"},
			wantStage: "needs_identifier:schedule",
			wantReply: "Jadwal dengan ID 45 tidak ditemukan. Periksa kembali penulisannya.",
			wantKeys:  []string{"trip_schedules.by_id"},
		},
		{
			name:      "unknown booking code",
			msg:       models.Message{Text: "status booking TG-XYZ999"},
			wantStage: StageBookingCodeInvalid,
			wantReply: "Kode booking TG-XYZ999 tidak ditemukan. Periksa ejaan atau gunakan kode lain.",
			wantKeys:  []string{"bookings.by_code"},
		},
		{
			name:      "unknown booking code from hint",
			msg:       models.Message{Text: "jadwal keberangkatan saya kapan?", BookingCode: "tg-xyz999"},
			wantStage: StageBookingCodeInvalid,
			wantReply: "Kode booking TG-XYZ999 tidak ditemukan. Periksa ejaan atau gunakan kode lain.",
			wantKeys:  []string{"bookings.by_code"},
		},
		{
			name:      "booking of another customer",
			msg:       models.Message{Text: "status booking TG-ABC123", User: &models.User{ID: 9, Email: "other@example.com"}},
			wantStage: StageBookingCodeInvalid,
			wantReply: "Kode booking TG-ABC123 tidak ditemukan. Periksa ejaan atau gunakan kode lain.",
			wantKeys:  []string{"bookings.by_code"},
		},
		{
			name:      "private generic",
			msg:       models.Message{Text: "riwayat booking saya"},
			wantStage: StagePrivateWithoutIdentifier,
			wantReply: ReplyPrivateGeneric,
			wantKeys:  []string{},
		},
		{
			name:      "private payment",
			msg:       models.Message{Text: "pembayaran booking saya sudah masuk?"},
			wantStage: StagePrivateWithoutIdentifier,
			wantReply: ReplyPrivatePayment,
			wantKeys:  []string{},
		},
		{
			name:      "private detail",
			msg:       models.Message{Text: "status booking saya"},
			wantStage: StagePrivateWithoutIdentifier,
			wantReply: ReplyPrivateDetail,
			wantKeys:  []string{},
		},
		{
			name:      "off topic",
			msg:       models.Message{Text: "resep rendang enak"},
			wantStage: StageThematic,
			wantReply: ReplyOffTopic,
			wantKeys:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newGateHarness(t)

			outcome := evaluate(h, tt.msg)

			require.True(t, outcome.Blocked)
			assert.Equal(t, tt.wantStage, outcome.Stage)
			assert.Equal(t, tt.wantReply, outcome.Reply)
			assert.Equal(t, tt.wantKeys, outcome.UsedKeys)
			assert.Empty(t, outcome.Verified)
		})
	}
}

func TestGatePipeline_Passes(t *testing.T) {
	tests := []struct {
		name         string
		msg          models.Message
		wantVerified []string
	}{
		{"verified trip slug", models.Message{Text: "detail trip bali-escape-4d3n"}, []string{"bali-escape-4d3n"}},
		{"verified trip id", models.Message{Text: "detail trip #12"}, []string{"12"}},
		{"verified promo", models.Message{Text: "cek promo WELCOME200"}, []string{"WELCOME200"}},
		{"promo detail for this month", models.Message{Text: "cek promo bulan ini"}, nil},
		{"schedule detail for next week", models.Message{Text: "slot jadwal minggu depan"}, nil},
		{"schedule question about trip id", models.Message{Text: "jadwal trip #12"}, []string{"12"}},
		{"review question about trip id", models.Message{Text: "ulasan trip #12"}, []string{"12"}},
		{"tag question about trip slug", models.Message{Text: "trip bali-escape-4d3n ada tag apa?"}, []string{"bali-escape-4d3n"}},
		{"schedule detail about trip id", models.Message{Text: "detail jadwal trip #12"}, []string{"12"}},
		{"thematic travel question", models.Message{Text: "tips packing ke bali"}, nil},
		{"public browse", models.Message{Text: "ada trip ke lombok bulan depan?"}, nil},
		{"private with session", models.Message{Text: "riwayat booking saya", User: testUser()}, nil},
		{"booking code anonymous", models.Message{Text: "status booking TG-ABC123"}, []string{"TG-ABC123"}},
		{"own booking code", models.Message{Text: "status booking TG-ABC123", User: testUser()}, []string{"TG-ABC123"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newGateHarness(t)

			outcome := evaluate(h, tt.msg)

			require.False(t, outcome.Blocked, "blocked at %s: %s", outcome.Stage, outcome.Reply)
			assert.Empty(t, outcome.Reply)
			var keys []string
			for _, id := range outcome.Verified {
				keys = append(keys, id.Key)
			}
			assert.Equal(t, tt.wantVerified, keys)
		})
	}
}

func TestGatePipeline_PublicMessageIgnoresBookingShapedText(t *testing.T) {
	h := newGateHarness(t)

	outcome := evaluate(h, models.Message{Text: "trip AB-123 masih ada?"})

	require.False(t, outcome.Blocked)
	assert.Zero(t, h.bookings.getCalls)
}

func TestGatePipeline_VerifiedBookingCode(t *testing.T) {
	h := newGateHarness(t)

	outcome := evaluate(h, models.Message{Text: "status booking TG-ABC123", User: testUser()})

	code, ok := outcome.VerifiedBookingCode()
	require.True(t, ok)
	assert.Equal(t, "TG-ABC123", code)
}

func TestGatePipeline_FirstBlockWins(t *testing.T) {
	h := newGateHarness(t)

	outcome := evaluate(h, models.Message{Text: "password untuk promo WELCOME999"})

	assert.Equal(t, StageSensitive, outcome.Stage)
	assert.Empty(t, h.executor.probes, "later stages must not probe the store")
	assert.Zero(t, h.bookings.getCalls)
}

func TestGatePipeline_StoreFailureRefuses(t *testing.T) {
	h := newGateHarness(t)
	h.executor.existsErr = errors.New("connection refused")

	outcome := evaluate(h, models.Message{Text: "cek promo WELCOME200"})

	require.True(t, outcome.Blocked)
	assert.Equal(t, "needs_identifier:promo", outcome.Stage)
	assert.Equal(t, ReplyServiceUnavailable, outcome.Reply)
	assert.Equal(t, []string{}, outcome.UsedKeys)
}

func TestGatePipeline_BookingLookupFailureRefuses(t *testing.T) {
	h := newGateHarness(t)
	h.bookings.err = errors.New("timeout")

	outcome := evaluate(h, models.Message{Text: "status booking TG-ABC123"})

	require.True(t, outcome.Blocked)
	assert.Equal(t, StageBookingCodeInvalid, outcome.Stage)
	assert.Equal(t, ReplyServiceUnavailable, outcome.Reply)
}

func TestGatePipeline_IsOnTheme(t *testing.T) {
	h := newGateHarness(t)

	assert.True(t, h.gates.IsOnTheme("apa saja?", models.IntentPublic))
	assert.True(t, h.gates.IsOnTheme("apa saja?", models.IntentPrivate))
	assert.True(t, h.gates.IsOnTheme("liburan ke lombok", models.IntentUnknown))
	assert.True(t, h.gates.IsOnTheme("cuaca bulan juli", models.IntentUnknown))
	assert.False(t, h.gates.IsOnTheme("resep rendang enak", models.IntentUnknown))
}

func TestGatePipeline_IsThematicAllowed(t *testing.T) {
	h := newGateHarness(t)

	assert.True(t, h.gates.IsThematicAllowed("tips packing ringan"))
	assert.True(t, h.gates.IsThematicAllowed("perlu VISA?"))
	assert.False(t, h.gates.IsThematicAllowed("harga trip bali"))
}
