package chat

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	myMiddleware "dholuo-chat/internal/middleware"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	service *Service
	log     *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, log: logger}
}

type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, err error) {
	res := errorResponse{Message: msg}
	if err != nil {
		res.Error = err.Error()
	}
	writeJSON(w, status, res)
}

// writeServiceError maps lookup/ownership failures; anything else is a 500 with fallback as message.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, ErrConversationNotFound):
		writeError(w, http.StatusNotFound, "Conversation not found", nil)
	case errors.Is(err, ErrForbidden):
		writeError(w, http.StatusForbidden, "Forbidden", nil)
	default:
		h.log.Error("chat: request failed", "error", err)
		writeError(w, http.StatusInternalServerError, fallback, err)
	}
}

func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	userID, ok := myMiddleware.UserIDFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized", nil)
		return
	}

	convs, err := h.service.ListConversations(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err, "Failed to fetch conversations")
		return
	}
	writeJSON(w, http.StatusOK, convs)
}

func (h *Handler) StartConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := myMiddleware.UserIDFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized", nil)
		return
	}

	var req CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	conv, err := h.service.StartConversation(r.Context(), userID, req)
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, "Title and language are required", nil)
			return
		}
		h.writeServiceError(w, err, "Failed to create conversation")
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

// GetConversation returns the conversation with its full message history.
func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.ownerAndID(w, r)
	if !ok {
		return
	}

	res, err := h.service.GetConversationHistory(r.Context(), id, userID)
	if err != nil {
		h.writeServiceError(w, err, "Failed to fetch conversation")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) UpdateConversation(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.ownerAndID(w, r)
	if !ok {
		return
	}

	var req UpdateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	conv, err := h.service.UpdateConversation(r.Context(), id, userID, req)
	if err != nil {
		h.writeServiceError(w, err, "Failed to update conversation")
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (h *Handler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.ownerAndID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteConversation(r.Context(), id, userID); err != nil {
		h.writeServiceError(w, err, "Failed to delete conversation")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Languages(w http.ResponseWriter, r *http.Request) {
	langs, err := h.service.Languages(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "Failed to fetch languages")
		return
	}
	writeJSON(w, http.StatusOK, langs)
}

func (h *Handler) ownerAndID(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	userID, ok := myMiddleware.UserIDFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized", nil)
		return 0, 0, false
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid conversation id", nil)
		return 0, 0, false
	}
	return userID, id, true
}
