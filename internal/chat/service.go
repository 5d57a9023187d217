package chat

import (
	"context"
	"errors"
	"log/slog"

	"dholuo-chat/internal/events"
)

var (
	ErrForbidden    = errors.New("conversation belongs to another user")
	ErrInvalidInput = errors.New("title and language are required")
)

// Service is the message store used by the relay and the REST handlers.
// Every stored message is announced on the event publisher; publish failures are only logged.
type Service struct {
	repo   *Repository
	events events.Publisher
	log    *slog.Logger
}

func NewService(repo *Repository, publisher events.Publisher, logger *slog.Logger) *Service {
	return &Service{repo: repo, events: publisher, log: logger}
}

func (s *Service) CreateMessage(ctx context.Context, in CreateMessageInput) (*Message, error) {
	msg, err := s.repo.CreateMessage(ctx, in)
	if err != nil {
		return nil, err
	}

	env := events.NewEnvelope(events.TypeMessageCreated, msg)
	if err := s.events.Publish(ctx, events.KeyMessageCreated, env); err != nil {
		s.log.Warn("chat: publish message event failed", "message_id", msg.ID, "error", err)
	}
	return msg, nil
}

func (s *Service) GetMessagesByConversationID(ctx context.Context, conversationID int64) ([]*Message, error) {
	return s.repo.GetMessagesByConversationID(ctx, conversationID)
}

func (s *Service) StartConversation(ctx context.Context, userID int64, req CreateConversationRequest) (*Conversation, error) {
	if req.Title == "" || req.Language == "" {
		return nil, ErrInvalidInput
	}
	conv := &Conversation{UserID: userID, Title: req.Title, Language: req.Language}
	if err := s.repo.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

func (s *Service) ListConversations(ctx context.Context, userID int64) ([]*Conversation, error) {
	return s.repo.GetConversationsByUserID(ctx, userID)
}

// OwnedConversation loads a conversation and checks it belongs to userID.
func (s *Service) OwnedConversation(ctx context.Context, id, userID int64) (*Conversation, error) {
	conv, err := s.repo.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	if conv.UserID != userID {
		return nil, ErrForbidden
	}
	return conv, nil
}

func (s *Service) GetConversationHistory(ctx context.Context, id, userID int64) (*ConversationWithMessages, error) {
	conv, err := s.OwnedConversation(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.repo.GetMessagesByConversationID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &ConversationWithMessages{Conversation: conv, Messages: msgs}, nil
}

func (s *Service) UpdateConversation(ctx context.Context, id, userID int64, req UpdateConversationRequest) (*Conversation, error) {
	if _, err := s.OwnedConversation(ctx, id, userID); err != nil {
		return nil, err
	}
	return s.repo.UpdateConversation(ctx, id, req)
}

func (s *Service) DeleteConversation(ctx context.Context, id, userID int64) error {
	if _, err := s.OwnedConversation(ctx, id, userID); err != nil {
		return err
	}
	return s.repo.DeleteConversation(ctx, id)
}

func (s *Service) Languages(ctx context.Context) ([]Language, error) {
	return s.repo.GetLanguages(ctx)
}
