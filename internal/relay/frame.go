package relay

import (
	"dholuo-chat/internal/chat"
	"dholuo-chat/internal/insights"
)

const (
	TypeMessage     = "message"
	TypeTranslate   = "translate"
	TypeInsights    = "insights"
	TypeTyping      = "typing"
	TypeTranslation = "translation"
	TypeError       = "error"
)

const (
	ActionTranslating = "translating"
	ActionAnalyzing   = "analyzing"
)

// GenericErrorMessage is sent when a branch fails for any reason other than a malformed frame.
const GenericErrorMessage = "An error occurred processing your message"

const ShuttingDownMessage = "Server is shutting down"

// InboundFrame is the union of every frame a client may send. Pointer fields
// distinguish "absent" from zero values.
type InboundFrame struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId,omitempty"`

	// message
	ConversationID *int64  `json:"conversationId,omitempty"`
	Content        *string `json:"content,omitempty"`
	UserID         *int64  `json:"userId,omitempty"`
	Language       *string `json:"language,omitempty"`
	Translation    *string `json:"translation,omitempty"`

	// translate, insights
	Text           *string `json:"text,omitempty"`
	SourceLanguage *string `json:"sourceLanguage,omitempty"`
	TargetLanguage *string `json:"targetLanguage,omitempty"`
}

type TypingFrame struct {
	Type           string `json:"type"`
	ConversationID *int64 `json:"conversationId,omitempty"`
	Action         string `json:"action,omitempty"`
}

// OutboundMessage is a stored message plus view-time insights. Insights are never persisted.
type OutboundMessage struct {
	*chat.Message
	Insights *insights.Insights `json:"insights,omitempty"`
}

type MessageFrame struct {
	Type    string          `json:"type"`
	Message OutboundMessage `json:"message"`
}

type TranslationFrame struct {
	Type           string `json:"type"`
	RequestID      string `json:"requestId,omitempty"`
	OriginalText   string `json:"originalText"`
	TranslatedText string `json:"translatedText"`
	SourceLanguage string `json:"sourceLanguage"`
	TargetLanguage string `json:"targetLanguage"`
}

type InsightsFrame struct {
	Type      string            `json:"type"`
	RequestID string            `json:"requestId,omitempty"`
	Text      string            `json:"text"`
	Insights  insights.Insights `json:"insights"`
}

type ErrorFrame struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId,omitempty"`
	Message   string `json:"message"`
}

func typing(conversationID *int64, action string) TypingFrame {
	return TypingFrame{Type: TypeTyping, ConversationID: conversationID, Action: action}
}

func errorFrame(requestID, msg string) ErrorFrame {
	return ErrorFrame{Type: TypeError, RequestID: requestID, Message: msg}
}
