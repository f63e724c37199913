package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/travelgo/chat-engine/pkg/auth"
	"github.com/travelgo/chat-engine/pkg/models"
)

// maxChatBodyBytes bounds the request body read by the chat endpoint.
const maxChatBodyBytes = 16 << 10

// ChatResponder answers one chat message. It never fails.
type ChatResponder interface {
	Handle(ctx context.Context, msg models.Message) *models.ChatResponse
}

// ChatHandler serves the chat endpoint.
type ChatHandler struct {
	chat     ChatResponder
	validate *validator.Validate
	logger   *zap.Logger
}

// NewChatHandler creates a ChatHandler.
func NewChatHandler(chat ChatResponder, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		chat:     chat,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger.Named("chat-handler"),
	}
}

// RegisterRoutes registers POST /api/chat. Callers may be anonymous; a
// bearer token, when present, is resolved by authMiddleware.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("POST /api/chat", authMiddleware.OptionalAuth(h.Chat))
}

// Chat handles POST /api/chat.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBodyBytes)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	req.Message = strings.TrimSpace(req.Message)
	req.BookingCode = strings.TrimSpace(req.BookingCode)
	if err := h.validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", validationMessage(err))
		return
	}

	resp := h.chat.Handle(r.Context(), models.Message{
		Text:        req.Message,
		BookingCode: req.BookingCode,
		User:        auth.UserFromContext(r.Context()),
	})

	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to encode chat response", zap.Error(err))
	}
}

func (h *ChatHandler) writeError(w http.ResponseWriter, status int, code, message string) {
	if err := ErrorResponse(w, status, code, message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}

// validationMessage names the first failing field in JSON terms.
func validationMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return "Invalid request"
	}
	fe := fieldErrs[0]
	field := "message"
	if fe.Field() == "BookingCode" {
		field = "booking_code"
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "max":
		return field + " must be at most " + fe.Param() + " characters"
	default:
		return field + " is invalid"
	}
}
