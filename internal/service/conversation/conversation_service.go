package conversation

import (
	"chat-gateway/internal/logger"
	"chat-gateway/internal/repository/db"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrUnauthorized is returned when a user touches a conversation they do not own
var ErrUnauthorized = errors.New("unauthorized: user does not own this conversation")

const (
	titleLength = 15
	ellipsis    = "..."
)

// Summary is the listing view of a conversation
type Summary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// ConversationService handles the business logic for conversation management
type ConversationService struct {
	db db.Database
}

// NewConversationService creates a new ConversationService
func NewConversationService(database db.Database) *ConversationService {
	return &ConversationService{
		db: database,
	}
}

// MakeTitle keeps the first 15 characters of text and marks truncation with "..."
func MakeTitle(text string) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= titleLength {
		return text
	}
	return string(runes[:titleLength]) + ellipsis
}

// FindOrCreate returns the conversation clientID when it exists and belongs to userID.
// Otherwise a new conversation titled after firstMessage is created; the second result
// reports whether that happened.
func (s *ConversationService) FindOrCreate(userID, clientID, firstMessage string) (*db.Conversation, bool, error) {
	if clientID != "" {
		conv, err := s.db.GetConversation(clientID)
		if err == nil && conv.UserID == userID {
			return conv, false, nil
		}
		if err != nil && !errors.Is(err, db.ErrConversationNotFound) {
			return nil, false, fmt.Errorf("failed to look up conversation: %w", err)
		}
	}

	conv, err := s.db.CreateConversation(userID, MakeTitle(firstMessage))
	if err != nil {
		return nil, false, fmt.Errorf("failed to create conversation: %w", err)
	}

	logger.Log.WithFields(logrus.Fields{
		"user_id":         userID,
		"conversation_id": conv.ID,
		"client_id":       clientID,
	}).Info("Created new conversation")
	return conv, true, nil
}

// AppendMessage appends message to the conversation; it is persisted on return
func (s *ConversationService) AppendMessage(conversationID string, message db.Message) (*db.Message, error) {
	msg, err := s.db.AddMessage(conversationID, message)
	if err != nil {
		return nil, fmt.Errorf("failed to save message: %w", err)
	}
	return msg, nil
}

// RemoveMessage deletes a message; removing an absent message is not an error
func (s *ConversationService) RemoveMessage(conversationID, messageID string) error {
	if _, err := s.db.RemoveMessage(conversationID, messageID); err != nil {
		return fmt.Errorf("failed to remove message: %w", err)
	}
	return nil
}

// GetUserConversations lists the conversations of a user
func (s *ConversationService) GetUserConversations(userID string) ([]Summary, error) {
	conversations, err := s.db.GetConversationsByUser(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve conversations: %w", err)
	}

	result := make([]Summary, 0, len(conversations))
	for _, conv := range conversations {
		result = append(result, Summary{
			ID:        conv.ID,
			Title:     conv.Title,
			CreatedAt: conv.CreatedAt,
		})
	}
	return result, nil
}

// GetConversation returns a conversation with its messages if the user owns it
func (s *ConversationService) GetConversation(conversationID, userID string) (*db.Conversation, error) {
	return s.owned(conversationID, userID)
}

// RenameConversation sets a new title if the user owns the conversation
func (s *ConversationService) RenameConversation(conversationID, userID, title string) (*db.Conversation, error) {
	if _, err := s.owned(conversationID, userID); err != nil {
		return nil, err
	}

	conv, err := s.db.RenameConversation(conversationID, MakeTitle(title))
	if err != nil {
		return nil, fmt.Errorf("failed to rename conversation: %w", err)
	}
	return conv, nil
}

// DeleteConversation deletes a conversation if the user owns it
func (s *ConversationService) DeleteConversation(conversationID, userID string) error {
	if _, err := s.owned(conversationID, userID); err != nil {
		return err
	}

	if err := s.db.DeleteConversation(conversationID); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return nil
}

func (s *ConversationService) owned(conversationID, userID string) (*db.Conversation, error) {
	conversation, err := s.db.GetConversation(conversationID)
	if err != nil {
		return nil, fmt.Errorf("conversation not found: %w", err)
	}
	if conversation.UserID != userID {
		return nil, ErrUnauthorized
	}
	return conversation, nil
}
