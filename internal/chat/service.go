package chat

import (
	"context"
	"errors"
	"strings"

	"github.com/docport/gateway/internal/backend"
)

const (
	defaultSessionName = "New chat"
	defaultTemperature = 0.7
	defaultMaxTokens   = 1000
	maxMessageLength   = 32 * 1024
)

var (
	ErrEmptyMessage   = errors.New("message is empty")
	ErrMessageTooLong = errors.New("message exceeds maximum length")
	ErrBadFeedback    = errors.New("feedback must be positive or negative")
)

// API is the backend surface the chat service proxies to.
type API interface {
	ChatSessions(ctx context.Context, token string) ([]backend.ChatSession, error)
	ChatSession(ctx context.Context, token, id string) (*backend.ChatSession, error)
	CreateChatSession(ctx context.Context, token, name string) (*backend.ChatSession, error)
	RenameChatSession(ctx context.Context, token, id, name string) (*backend.ChatSession, error)
	DeleteChatSession(ctx context.Context, token, id string) error
	SendMessage(ctx context.Context, token, sessionID, content string) (*backend.ChatAnswer, error)
	SendFeedback(ctx context.Context, token, sessionID, messageID, feedback, comment string) error
	DirectChat(ctx context.Context, token string, req *backend.DirectChatRequest) (*backend.DirectChatResponse, error)
	Models(ctx context.Context, token string) ([]string, error)
}

// Service validates chat input and applies the defaults the backend expects.
type Service struct {
	api API
}

func NewService(api API) *Service {
	return &Service{api: api}
}

func (s *Service) Sessions(ctx context.Context, token string) ([]backend.ChatSession, error) {
	return s.api.ChatSessions(ctx, token)
}

func (s *Service) Session(ctx context.Context, token, id string) (*backend.ChatSession, error) {
	return s.api.ChatSession(ctx, token, id)
}

func (s *Service) Create(ctx context.Context, token, name string) (*backend.ChatSession, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = defaultSessionName
	}
	return s.api.CreateChatSession(ctx, token, name)
}

func (s *Service) Rename(ctx context.Context, token, id, name string) (*backend.ChatSession, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("session name is empty")
	}
	return s.api.RenameChatSession(ctx, token, id, name)
}

func (s *Service) Delete(ctx context.Context, token, id string) error {
	return s.api.DeleteChatSession(ctx, token, id)
}

// Send posts one user turn into a retrieval session.
func (s *Service) Send(ctx context.Context, token, sessionID, content string) (*backend.ChatAnswer, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyMessage
	}
	if len(content) > maxMessageLength {
		return nil, ErrMessageTooLong
	}
	return s.api.SendMessage(ctx, token, sessionID, content)
}

// Feedback records a thumbs-up or thumbs-down on an assistant answer.
func (s *Service) Feedback(ctx context.Context, token, sessionID, messageID, feedback, comment string) error {
	if feedback != "positive" && feedback != "negative" {
		return ErrBadFeedback
	}
	return s.api.SendFeedback(ctx, token, sessionID, messageID, feedback, comment)
}

// Direct forwards a query straight to the model, bypassing retrieval. Zero
// settings fall back to the standard tuning.
func (s *Service) Direct(ctx context.Context, token, message, conversationID string, settings *backend.DirectChatSettings) (*backend.DirectChatResponse, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyMessage
	}
	if len(message) > maxMessageLength {
		return nil, ErrMessageTooLong
	}
	if settings == nil {
		settings = &backend.DirectChatSettings{}
	}
	if settings.Temperature == 0 {
		settings.Temperature = defaultTemperature
	}
	if settings.MaxTokens == 0 {
		settings.MaxTokens = defaultMaxTokens
	}
	return s.api.DirectChat(ctx, token, &backend.DirectChatRequest{
		Message:        message,
		ConversationID: conversationID,
		Settings:       settings,
	})
}

func (s *Service) Models(ctx context.Context, token string) ([]string, error) {
	return s.api.Models(ctx, token)
}
