package db

import (
	"context"
	"errors"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrUserExists           = errors.New("username already exists")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrDocumentNotFound     = errors.New("document not found")
)

// Database defines the interface for all state operations.
// Implementations are safe for concurrent use and return copies, never shared pointers.
type Database interface {
	// Users
	GetUser(id string) (*User, error)
	GetUserByUsername(username string) (*User, error)
	ListUsers() ([]User, error)
	CreateUser(user User) (*User, error)
	UpdateUserProfile(id string, profile Profile) (*User, error)
	SetUserTokenLimit(id string, limit TokenLimit) (*User, error)
	DeleteUser(id string) error
	AddUserTokens(id string, tokens int64) (*User, error)
	ResetUsedTokens() (int, error)

	// Conversations
	GetConversation(id string) (*Conversation, error)
	CreateConversation(userID, title string) (*Conversation, error)
	GetConversationsByUser(userID string) ([]Conversation, error)
	RenameConversation(id, title string) (*Conversation, error)
	DeleteConversation(id string) error

	// Messages
	AddMessage(conversationID string, message Message) (*Message, error)
	RemoveMessage(conversationID, messageID string) (bool, error)

	// Stats
	RecordUsage(day, model string, tokens int64) error
	RecordResourceSample(cpu, ram float64) error
	GetStats() (*UsageStats, error)

	// Flush writes every document to the backing store
	Flush(ctx context.Context) error
}

// DocumentStore persists opaque documents under stable keys.
// Load returns ErrDocumentNotFound for a key that was never saved.
type DocumentStore interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
	Close() error
}
