package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/travelgo/chat-engine/pkg/models"
)

// Tool names.
const (
	ToolTravelChat = "travel_chat"
	ToolHealth     = "health"
)

const maxToolMessageLength = 2000

// ChatResponder answers one chat message.
type ChatResponder interface {
	Handle(ctx context.Context, msg models.Message) *models.ChatResponse
}

// HealthChecker reports whether the travel database answers queries.
type HealthChecker interface {
	Check(ctx context.Context) error
}

// ToolDeps are the collaborators the tools call into. Health may be nil.
type ToolDeps struct {
	Chat   ChatResponder
	Health HealthChecker
	Logger *zap.Logger
}

// RegisterTools registers travel_chat and health on s.
func RegisterTools(s *Server, deps ToolDeps) {
	s.RegisterTool(travelChatTool(), travelChatHandler(deps))
	s.RegisterTool(healthTool(), healthHandler(deps))
}

func travelChatTool() mcp.Tool {
	return mcp.NewTool(ToolTravelChat,
		mcp.WithDescription("Answer a TravelGO customer question about trips, promos, blogs, schedules and reviews. "+
			"Runs as an anonymous caller, so account bookings are only reachable by booking code."),
		mcp.WithString("message",
			mcp.Required(),
			mcp.Description("The customer's message"),
		),
		mcp.WithString("booking_code",
			mcp.Description("Optional booking code, e.g. TG-ABC123"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)
}

func travelChatHandler(deps ToolDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		message, err := req.RequireString("message")
		if err != nil {
			return mcp.NewToolResultError("message is required"), nil
		}
		message = strings.TrimSpace(message)
		if message == "" {
			return mcp.NewToolResultError("message is required"), nil
		}
		if utf8.RuneCountInString(message) > maxToolMessageLength {
			return mcp.NewToolResultError("message is too long"), nil
		}

		resp := deps.Chat.Handle(ctx, models.Message{
			Text:        message,
			BookingCode: strings.TrimSpace(req.GetString("booking_code", "")),
		})

		body, err := json.Marshal(resp)
		if err != nil {
			deps.Logger.Error("Failed to encode chat response", zap.Error(err))
			return mcp.NewToolResultError("failed to encode response"), nil
		}
		return mcp.NewToolResultText(string(body)), nil
	}
}

func healthTool() mcp.Tool {
	return mcp.NewTool(ToolHealth,
		mcp.WithDescription("Report whether the chat engine and its travel database are available."),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

func healthHandler(deps ToolDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		status := map[string]string{"status": "ok"}
		if deps.Health != nil {
			if err := deps.Health.Check(ctx); err != nil {
				deps.Logger.Warn("Database health check failed", zap.Error(err))
				status = map[string]string{"status": "degraded", "database": "unavailable"}
			} else {
				status["database"] = "ok"
			}
		}

		body, _ := json.Marshal(status)
		if status["status"] != "ok" {
			return mcp.NewToolResultError(string(body)), nil
		}
		return mcp.NewToolResultText(string(body)), nil
	}
}
