package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/travelgo/chat-engine/pkg/models"
)

type stubChat struct {
	mu   sync.Mutex
	msgs []models.Message
}

func (s *stubChat) Handle(ctx context.Context, msg models.Message) *models.ChatResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	resp := models.NewChatResponse("Promo WELCOME200 berlaku sampai akhir bulan.", []string{"promos.ai"})
	resp.RelatedPromos = []models.PromoSummary{{PromoCode: "WELCOME200"}}
	return resp
}

type stubHealth struct{ err error }

func (s stubHealth) Check(ctx context.Context) error { return s.err }

type rpcResult struct {
	Result struct {
		Tools []struct {
			Name string `json:"name"`
		} `json:"tools"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	} `json:"result"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func newTestServer(t *testing.T, health HealthChecker, logger *zap.Logger) (*Server, *stubChat) {
	t.Helper()
	chat := &stubChat{}
	s := NewServer("travelgo-test", "1.0.0", NewToolAuditor(logger), logger)
	RegisterTools(s, ToolDeps{Chat: chat, Health: health, Logger: logger})
	return s, chat
}

func call(t *testing.T, s *Server, payload string) rpcResult {
	t.Helper()
	raw := s.MCP().HandleMessage(context.Background(), []byte(payload))
	body, err := json.Marshal(raw)
	require.NoError(t, err)

	var out rpcResult
	require.NoError(t, json.Unmarshal(body, &out))
	return out
}

func TestNewServer(t *testing.T) {
	s := NewServer("travelgo-test", "1.0.0", nil, zap.NewNop())
	require.NotNil(t, s.MCP())
	assert.NotNil(t, s.NewStreamableHTTPServer())
}

func TestRegisterTools_ListsTools(t *testing.T) {
	s, _ := newTestServer(t, nil, zap.NewNop())

	out := call(t, s, `{"jsonrpc":"2.0","method":"tools/list","id":1}`)

	require.Nil(t, out.Error)
	var names []string
	for _, tool := range out.Result.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{ToolTravelChat, ToolHealth}, names)
}

func TestTravelChat_RunsPipelineAnonymously(t *testing.T) {
	s, chat := newTestServer(t, nil, zap.NewNop())

	out := call(t, s, `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"travel_chat","arguments":{"message":" cek promo WELCOME200 ","booking_code":"TG-ABC123"}}}`)

	require.Nil(t, out.Error)
	require.False(t, out.Result.IsError)
	require.Len(t, chat.msgs, 1)
	assert.Equal(t, models.Message{Text: "cek promo WELCOME200", BookingCode: "TG-ABC123"}, chat.msgs[0])

	require.Len(t, out.Result.Content, 1)
	var resp models.ChatResponse
	require.NoError(t, json.Unmarshal([]byte(out.Result.Content[0].Text), &resp))
	assert.Equal(t, []string{"promos.ai"}, resp.UsedContextKeys)
	assert.Equal(t, "WELCOME200", resp.RelatedPromos[0].PromoCode)
}

func TestTravelChat_BookingCodeArgument(t *testing.T) {
	tests := []struct {
		name string
		args string
		want string
	}{
		{"absent", `{"message":"status booking"}`, ""},
		{"padded", `{"message":"status booking","booking_code":"  TG-ABC123 "}`, "TG-ABC123"},
		{"non-string", `{"message":"status booking","booking_code":123}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, chat := newTestServer(t, nil, zap.NewNop())

			out := call(t, s, `{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"travel_chat","arguments":`+tt.args+`}}`)

			require.Nil(t, out.Error)
			require.False(t, out.Result.IsError)
			require.Len(t, chat.msgs, 1)
			assert.Equal(t, tt.want, chat.msgs[0].BookingCode)
		})
	}
}

func TestTravelChat_InvalidArguments(t *testing.T) {
	tests := []struct {
		name string
		args string
	}{
		{"missing message", `{}`},
		{"blank message", `{"message":"   "}`},
		{"non-string message", `{"message":42}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, chat := newTestServer(t, nil, zap.NewNop())

			out := call(t, s, `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"travel_chat","arguments":`+tt.args+`}}`)

			require.Nil(t, out.Error)
			assert.True(t, out.Result.IsError)
			assert.Empty(t, chat.msgs)
		})
	}
}

func TestHealthTool(t *testing.T) {
	tests := []struct {
		name      string
		health    HealthChecker
		wantError bool
		wantText  string
	}{
		{"no checker", nil, false, `{"status":"ok"}`},
		{"database up", stubHealth{}, false, `{"database":"ok","status":"ok"}`},
		{"database down", stubHealth{err: errors.New("refused")}, true, `{"database":"unavailable","status":"degraded"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t, tt.health, zap.NewNop())

			out := call(t, s, `{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"health","arguments":{}}}`)

			require.Nil(t, out.Error)
			assert.Equal(t, tt.wantError, out.Result.IsError)
			require.Len(t, out.Result.Content, 1)
			assert.JSONEq(t, tt.wantText, out.Result.Content[0].Text)
		})
	}
}

func TestToolCallsAreAudited(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	s, _ := newTestServer(t, nil, zap.New(core))

	call(t, s, `{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"name":"travel_chat","arguments":{"message":"email saya rina@example.com","booking_code":"TG-ABC123"}}}`)

	entries := logs.FilterMessage("MCP tool call").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, ToolTravelChat, fields["tool"])
	assert.Equal(t, true, fields["success"])

	params, ok := fields["params"].(map[string]any)
	require.True(t, ok)
	assert.NotContains(t, params["message"], "rina@example.com")
	assert.NotEqual(t, "TG-ABC123", params["booking_code"])
}
