package chat

import "time"

// ---------------------------------------------
// 🗄️ Database & API Models
// ---------------------------------------------

type Conversation struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"userId"`
	Title     string    `json:"title"`
	Language  string    `json:"language"`
	CreatedAt time.Time `json:"createdAt"`
}

// Message is one turn of a conversation. Rows are append-only: created once, never updated.
type Message struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversationId"`
	Content        string    `json:"content"`
	IsUserMessage  bool      `json:"isUserMessage"`
	Translation    *string   `json:"translation"`
	FileURL        *string   `json:"fileUrl"`
	AudioURL       *string   `json:"audioUrl"`
	CreatedAt      time.Time `json:"createdAt"`
}

type Language struct {
	Code       string `json:"code"`
	Name       string `json:"name"`
	NativeName string `json:"nativeName"`
}

// ---------------------------------------------
// 📨 Inputs
// ---------------------------------------------

type CreateMessageInput struct {
	ConversationID int64
	Content        string
	IsUserMessage  bool
	Translation    *string
	FileURL        *string
	AudioURL       *string
}

type CreateConversationRequest struct {
	Title    string `json:"title"`
	Language string `json:"language"`
}

type UpdateConversationRequest struct {
	Title    *string `json:"title"`
	Language *string `json:"language"`
}

type ConversationWithMessages struct {
	Conversation *Conversation `json:"conversation"`
	Messages     []*Message    `json:"messages"`
}
