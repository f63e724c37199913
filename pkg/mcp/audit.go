package mcp

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/travelgo/chat-engine/pkg/logging"
	"github.com/travelgo/chat-engine/pkg/metrics"
)

// maxPreviewLength bounds the result preview kept in audit events.
const maxPreviewLength = 200

// ToolEvent is one audited tool call.
type ToolEvent struct {
	Tool       string
	Params     map[string]any
	Success    bool
	IsError    bool
	Error      string
	Preview    string
	DurationMs int64
}

// ToolAuditor logs every MCP tool call as a structured event.
type ToolAuditor struct {
	logger *zap.Logger

	// startTimes tracks when tool calls begin, keyed by JSON-RPC id.
	startTimes sync.Map
}

// NewToolAuditor creates a ToolAuditor.
func NewToolAuditor(logger *zap.Logger) *ToolAuditor {
	return &ToolAuditor{logger: logger.Named("mcp-audit")}
}

// Hooks returns mcp-go hooks that feed the auditor.
func (a *ToolAuditor) Hooks() *server.Hooks {
	hooks := &server.Hooks{}
	hooks.AddBeforeCallTool(a.beforeCallTool)
	hooks.AddAfterCallTool(a.afterCallTool)
	hooks.AddOnError(a.onError)
	return hooks
}

func (a *ToolAuditor) beforeCallTool(_ context.Context, id any, _ *mcplib.CallToolRequest) {
	a.startTimes.Store(id, time.Now())
}

func (a *ToolAuditor) afterCallTool(ctx context.Context, id any, req *mcplib.CallToolRequest, result *mcplib.CallToolResult) {
	event := a.buildEvent(id, req)
	event.Success = true
	if result != nil {
		event.IsError = result.IsError
		event.Preview = resultPreview(result)
	}
	a.record(ctx, event)
}

func (a *ToolAuditor) onError(ctx context.Context, id any, method mcplib.MCPMethod, message any, err error) {
	if method != mcplib.MethodToolsCall {
		return
	}
	req, ok := message.(*mcplib.CallToolRequest)
	if !ok {
		return
	}

	event := a.buildEvent(id, req)
	event.Error = logging.SanitizeError(err)
	a.record(ctx, event)
}

func (a *ToolAuditor) buildEvent(id any, req *mcplib.CallToolRequest) *ToolEvent {
	start := time.Now()
	if v, ok := a.startTimes.LoadAndDelete(id); ok {
		start = v.(time.Time)
	}
	return &ToolEvent{
		Tool:       req.Params.Name,
		Params:     sanitizeParams(req.Params.Arguments),
		DurationMs: time.Since(start).Milliseconds(),
	}
}

func (a *ToolAuditor) record(ctx context.Context, event *ToolEvent) {
	result := metrics.ResultSuccess
	if !event.Success || event.IsError {
		result = metrics.ResultError
	}
	metrics.MCPToolCalls.WithLabelValues(event.Tool, result).Inc()

	fields := []zap.Field{
		zap.String("tool", event.Tool),
		zap.Any("params", event.Params),
		zap.Bool("success", event.Success),
		zap.Bool("is_error", event.IsError),
		zap.Int64("duration_ms", event.DurationMs),
	}
	if event.Preview != "" {
		fields = append(fields, zap.String("preview", event.Preview))
	}
	if event.Error != "" {
		fields = append(fields, zap.String("error", event.Error))
		logging.ForRequest(ctx, a.logger).Warn("MCP tool call failed", fields...)
		return
	}
	logging.ForRequest(ctx, a.logger).Info("MCP tool call", fields...)
}

// sanitizeParams masks contact details in the message and hashes the
// booking code so audit lines cannot be joined back to a customer.
func sanitizeParams(args any) map[string]any {
	m, ok := args.(map[string]any)
	if !ok || m == nil {
		return nil
	}

	out := make(map[string]any, len(m))
	for k, v := range m {
		switch k {
		case "message":
			if s, ok := v.(string); ok {
				out[k] = logging.SanitizeMessage(s)
				continue
			}
			out[k] = v
		case "booking_code":
			out[k] = hashValue(v)
		default:
			out[k] = v
		}
	}
	return out
}

func hashValue(value any) string {
	str, ok := value.(string)
	if !ok {
		str = fmt.Sprintf("%v", value)
	}
	if str == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(str))
	return "sha256:" + hex.EncodeToString(hash[:8])
}

// resultPreview returns the first text content, truncated.
func resultPreview(result *mcplib.CallToolResult) string {
	for _, c := range result.Content {
		if tc, ok := c.(mcplib.TextContent); ok {
			return logging.TruncateString(tc.Text, maxPreviewLength)
		}
	}
	return ""
}
