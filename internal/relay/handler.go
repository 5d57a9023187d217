package relay

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/gorilla/websocket"

	"dholuo-chat/internal/insights"
	"dholuo-chat/internal/translate"
)

type Handler struct {
	hub        *Hub
	engine     *Engine
	translator translate.Translator
	analyzer   insights.Analyzer
	upgrader   websocket.Upgrader
	log        *slog.Logger
}

func NewHandler(hub *Hub, engine *Engine, translator translate.Translator, analyzer insights.Analyzer, allowedOrigins []string, logger *slog.Logger) *Handler {
	return &Handler{
		hub:        hub,
		engine:     engine,
		translator: translator,
		analyzer:   analyzer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
		log: logger,
	}
}

// checkOrigin allows everything when no origins are configured or "*" is listed.
// Requests without an Origin header are non-browser clients and always allowed.
func checkOrigin(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return set[origin] || set[u.Host]
	}
}

func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws: upgrade failed", "error", err)
		return
	}

	client := newClient(h.hub, conn, h.engine, h.log)
	if !h.hub.Register(client) {
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		conn.Close()
		return
	}
	client.log.Info("ws: connection established", "remote_addr", r.RemoteAddr)

	go client.writePump()
	go client.readPump()
}

type translateRequest struct {
	Text           string `json:"text"`
	SourceLanguage string `json:"sourceLanguage"`
	TargetLanguage string `json:"targetLanguage"`
}

type translateResponse struct {
	OriginalText   string `json:"originalText"`
	TranslatedText string `json:"translatedText"`
}

// Translate serves POST /translate and /api/translate.
func (h *Handler) Translate(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			h.log.Error("translate: handler panicked", "panic", rec)
			writeError(w, http.StatusInternalServerError, "Failed to translate text", fmt.Errorf("%v", rec))
		}
	}()

	var req translateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Text == "" || req.SourceLanguage == "" || req.TargetLanguage == "" {
		writeError(w, http.StatusBadRequest, "Text, sourceLanguage, and targetLanguage are required", nil)
		return
	}

	h.log.Debug("translate: request", "source", req.SourceLanguage, "target", req.TargetLanguage)
	translated := h.translator.Translate(r.Context(), req.Text, req.SourceLanguage, req.TargetLanguage)
	writeJSON(w, http.StatusOK, translateResponse{OriginalText: req.Text, TranslatedText: translated})
}

func (h *Handler) TranslateStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "message": "Translation API is working"})
}

type insightsRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

type insightsResponse struct {
	Text     string            `json:"text"`
	Insights insights.Insights `json:"insights"`
}

// LinguisticInsights serves POST /api/linguistic-insights.
func (h *Handler) LinguisticInsights(w http.ResponseWriter, r *http.Request) {
	var req insightsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Text == "" || req.Language == "" {
		writeError(w, http.StatusBadRequest, "Text and language are required", nil)
		return
	}

	ins, err := h.analyzer.Analyze(r.Context(), req.Text, req.Language)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get linguistic insights", err)
		return
	}
	writeJSON(w, http.StatusOK, insightsResponse{Text: req.Text, Insights: ins})
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
