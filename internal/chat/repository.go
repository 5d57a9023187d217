package chat

import (
	"context"
	"errors"
	"fmt"

	"dholuo-chat/internal/db"

	"github.com/jackc/pgx/v5"
)

var ErrConversationNotFound = errors.New("conversation not found")

type Repository struct {
	db db.DBTX
}

func NewRepository(conn db.DBTX) *Repository {
	return &Repository{db: conn}
}

func (r *Repository) CreateMessage(ctx context.Context, in CreateMessageInput) (*Message, error) {
	msg := &Message{
		ConversationID: in.ConversationID,
		Content:        in.Content,
		IsUserMessage:  in.IsUserMessage,
		Translation:    in.Translation,
		FileURL:        in.FileURL,
		AudioURL:       in.AudioURL,
	}

	query := `INSERT INTO messages (conversation_id, content, is_user_message, translation, file_url, audio_url)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at`

	err := r.db.QueryRow(ctx, query,
		msg.ConversationID, msg.Content, msg.IsUserMessage, msg.Translation, msg.FileURL, msg.AudioURL,
	).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}

func (r *Repository) GetMessagesByConversationID(ctx context.Context, conversationID int64) ([]*Message, error) {
	query := `SELECT id, conversation_id, content, is_user_message, translation, file_url, audio_url, created_at
		FROM messages WHERE conversation_id = $1 ORDER BY id ASC`

	rows, err := r.db.Query(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := []*Message{}
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Content, &msg.IsUserMessage,
			&msg.Translation, &msg.FileURL, &msg.AudioURL, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, &msg)
	}
	return messages, rows.Err()
}

func (r *Repository) CreateConversation(ctx context.Context, conv *Conversation) error {
	query := `INSERT INTO conversations (user_id, title, language) VALUES ($1, $2, $3) RETURNING id, created_at`

	err := r.db.QueryRow(ctx, query, conv.UserID, conv.Title, conv.Language).Scan(&conv.ID, &conv.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

func (r *Repository) GetConversation(ctx context.Context, id int64) (*Conversation, error) {
	query := `SELECT id, user_id, title, language, created_at FROM conversations WHERE id = $1`

	var c Conversation
	err := r.db.QueryRow(ctx, query, id).Scan(&c.ID, &c.UserID, &c.Title, &c.Language, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return &c, nil
}

func (r *Repository) GetConversationsByUserID(ctx context.Context, userID int64) ([]*Conversation, error) {
	query := `SELECT id, user_id, title, language, created_at FROM conversations
		WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	conversations := []*Conversation{}
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &c.Language, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		conversations = append(conversations, &c)
	}
	return conversations, rows.Err()
}

// UpdateConversation changes title and/or language; nil fields keep their value.
func (r *Repository) UpdateConversation(ctx context.Context, id int64, req UpdateConversationRequest) (*Conversation, error) {
	query := `UPDATE conversations SET title = COALESCE($2, title), language = COALESCE($3, language)
		WHERE id = $1 RETURNING id, user_id, title, language, created_at`

	var c Conversation
	err := r.db.QueryRow(ctx, query, id, req.Title, req.Language).
		Scan(&c.ID, &c.UserID, &c.Title, &c.Language, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("update conversation: %w", err)
	}
	return &c, nil
}

func (r *Repository) DeleteConversation(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// GetLanguages returns the supported chat languages.
func (r *Repository) GetLanguages(ctx context.Context) ([]Language, error) {
	query := `SELECT code, name, native_name FROM languages WHERE code IN ('eng', 'luo') ORDER BY code`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query languages: %w", err)
	}
	defer rows.Close()

	languages := []Language{}
	for rows.Next() {
		var l Language
		if err := rows.Scan(&l.Code, &l.Name, &l.NativeName); err != nil {
			return nil, fmt.Errorf("scan language: %w", err)
		}
		languages = append(languages, l)
	}
	return languages, rows.Err()
}
