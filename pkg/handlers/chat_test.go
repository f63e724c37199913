package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/travelgo/chat-engine/pkg/apperrors"
	"github.com/travelgo/chat-engine/pkg/auth"
	"github.com/travelgo/chat-engine/pkg/metrics"
	"github.com/travelgo/chat-engine/pkg/models"
	"github.com/travelgo/chat-engine/pkg/testhelpers"
)

const testSecret = "handler-test-secret"

type stubResponder struct {
	mu   sync.Mutex
	msgs []models.Message
}

func (s *stubResponder) Handle(ctx context.Context, msg models.Message) *models.ChatResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	return models.NewChatResponse("Halo! Ada yang bisa kami bantu?", nil)
}

type stubUsers struct {
	users map[int64]*models.User
}

func (s stubUsers) GetByID(ctx context.Context, id int64) (*models.User, error) {
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, apperrors.ErrNotFound
}

func newChatMux(t *testing.T, authEnabled bool) (*http.ServeMux, *stubResponder) {
	t.Helper()
	responder := &stubResponder{}
	var authService auth.AuthService
	if authEnabled {
		authService = auth.NewAuthService(testSecret, zap.NewNop())
	}
	users := stubUsers{users: map[int64]*models.User{42: {ID: 42, Name: "Rina", Email: "rina@example.com"}}}

	mux := http.NewServeMux()
	NewChatHandler(responder, zap.NewNop()).RegisterRoutes(mux, auth.NewMiddleware(authService, users, zap.NewNop()))
	return mux, responder
}

func postChat(mux *http.ServeMux, body, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestChatHandler_Anonymous(t *testing.T) {
	mux, responder := newChatMux(t, true)

	rec := postChat(mux, `{"message":"  halo  ","booking_code":" TG-ABC123 "}`, "")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, responder.msgs, 1)
	assert.Equal(t, models.Message{Text: "halo", BookingCode: "TG-ABC123"}, responder.msgs[0])

	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "Halo! Ada yang bisa kami bantu?", resp["reply"])
	assert.Equal(t, []any{}, resp["used_context_keys"])
	assert.Equal(t, []any{}, resp["related_trips"])
	assert.Equal(t, map[string]any{}, resp["related_collections"])
}

func TestChatHandler_AuthenticatedUser(t *testing.T) {
	mux, responder := newChatMux(t, true)

	rec := postChat(mux, `{"message":"booking saya"}`,
		testhelpers.GenerateTestJWTWithBearer(testSecret, 42, "rina@example.com"))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, responder.msgs, 1)
	require.NotNil(t, responder.msgs[0].User)
	assert.Equal(t, "rina@example.com", responder.msgs[0].User.Email)
}

func TestChatHandler_AuthRejections(t *testing.T) {
	tests := []struct {
		name          string
		authorization string
	}{
		{"wrong secret", testhelpers.GenerateTestJWTWithBearer("other-secret", 42, "rina@example.com")},
		{"unknown user", testhelpers.GenerateTestJWTWithBearer(testSecret, 7, "someone@example.com")},
		{"malformed header", "Token abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux, responder := newChatMux(t, true)
			rec := postChat(mux, `{"message":"booking saya"}`, tt.authorization)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Empty(t, responder.msgs)
		})
	}
}

func TestChatHandler_AuthDisabledIgnoresToken(t *testing.T) {
	mux, responder := newChatMux(t, false)

	rec := postChat(mux, `{"message":"booking saya"}`, "Bearer not-a-token")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, responder.msgs, 1)
	assert.Nil(t, responder.msgs[0].User)
}

func TestChatHandler_InvalidRequests(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		message string
	}{
		{"malformed json", `{"message":`, "Invalid request body"},
		{"missing message", `{}`, "message is required"},
		{"blank message", `{"message":"   "}`, "message is required"},
		{"message too long", `{"message":"` + strings.Repeat("a", 2001) + `"}`, "message must be at most 2000 characters"},
		{"booking code too long", `{"message":"cek","booking_code":"` + strings.Repeat("X", 41) + `"}`, "booking_code must be at most 40 characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux, responder := newChatMux(t, false)
			rec := postChat(mux, tt.body, "")

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			var body map[string]string
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, "invalid_request", body["error"])
			assert.Equal(t, tt.message, body["message"])
			assert.Empty(t, responder.msgs)
		})
	}
}

func TestChatHandler_MethodNotAllowed(t *testing.T) {
	mux, _ := newChatMux(t, false)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/chat", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRegisterMetricsRoute(t *testing.T) {
	metrics.GateOutcomes.WithLabelValues("greeting", metrics.ResultBlocked).Inc()

	mux := http.NewServeMux()
	RegisterMetricsRoute(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "travelgo_gate_outcomes_total")
}
