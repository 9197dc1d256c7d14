package memory

import (
	"chat-gateway/internal/repository/db"
	"sort"

	"github.com/google/uuid"
)

func cloneConversation(c *db.Conversation) *db.Conversation {
	out := *c
	out.Messages = make([]db.Message, len(c.Messages))
	for i, msg := range c.Messages {
		out.Messages[i] = cloneMessage(msg)
	}
	return &out
}

func cloneMessage(msg db.Message) db.Message {
	if msg.Sources != nil {
		msg.Sources = append([]string(nil), msg.Sources...)
	}
	return msg
}

// GetConversation retrieves a conversation with all of its messages
func (m *DB) GetConversation(id string) (*db.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conv, ok := m.conversations[id]
	if !ok {
		return nil, db.ErrConversationNotFound
	}
	return cloneConversation(conv), nil
}

// CreateConversation creates an empty conversation with a fresh ID
func (m *DB) CreateConversation(userID, title string) (*db.Conversation, error) {
	m.mu.Lock()
	if _, ok := m.users[userID]; !ok {
		m.mu.Unlock()
		return nil, db.ErrUserNotFound
	}
	conv := &db.Conversation{
		ID:        uuid.New().String(),
		UserID:    userID,
		Title:     title,
		Messages:  []db.Message{},
		CreatedAt: m.now(),
	}
	m.conversations[conv.ID] = conv
	out := cloneConversation(conv)
	snap := m.snapshotLocked(DocConversations)
	m.mu.Unlock()

	m.persist(snap)
	return out, nil
}

// GetConversationsByUser lists a user's conversations, oldest first, without messages
func (m *DB) GetConversationsByUser(userID string) ([]db.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var convs []db.Conversation
	for _, conv := range m.conversations {
		if conv.UserID != userID {
			continue
		}
		convs = append(convs, db.Conversation{
			ID:        conv.ID,
			UserID:    conv.UserID,
			Title:     conv.Title,
			CreatedAt: conv.CreatedAt,
		})
	}
	sort.Slice(convs, func(i, j int) bool {
		if convs[i].CreatedAt.Equal(convs[j].CreatedAt) {
			return convs[i].ID < convs[j].ID
		}
		return convs[i].CreatedAt.Before(convs[j].CreatedAt)
	})
	return convs, nil
}

// RenameConversation sets a new title
func (m *DB) RenameConversation(id, title string) (*db.Conversation, error) {
	m.mu.Lock()
	conv, ok := m.conversations[id]
	if !ok {
		m.mu.Unlock()
		return nil, db.ErrConversationNotFound
	}
	conv.Title = title
	out := cloneConversation(conv)
	snap := m.snapshotLocked(DocConversations)
	m.mu.Unlock()

	m.persist(snap)
	return out, nil
}

// DeleteConversation removes a conversation and its messages
func (m *DB) DeleteConversation(id string) error {
	m.mu.Lock()
	if _, ok := m.conversations[id]; !ok {
		m.mu.Unlock()
		return db.ErrConversationNotFound
	}
	delete(m.conversations, id)
	snap := m.snapshotLocked(DocConversations)
	m.mu.Unlock()

	m.persist(snap)
	return nil
}

// AddMessage appends a message and returns once the conversation document is written
func (m *DB) AddMessage(conversationID string, message db.Message) (*db.Message, error) {
	m.mu.Lock()
	conv, ok := m.conversations[conversationID]
	if !ok {
		m.mu.Unlock()
		return nil, db.ErrConversationNotFound
	}
	if message.ID == "" {
		message.ID = uuid.New().String()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = m.now()
	}
	conv.Messages = append(conv.Messages, cloneMessage(message))
	snap := m.snapshotLocked(DocConversations)
	m.mu.Unlock()

	m.persist(snap)
	out := cloneMessage(message)
	return &out, nil
}

// RemoveMessage deletes a message by ID. Removing an absent message is a no-op
// and reports false.
func (m *DB) RemoveMessage(conversationID, messageID string) (bool, error) {
	m.mu.Lock()
	conv, ok := m.conversations[conversationID]
	if !ok {
		m.mu.Unlock()
		return false, db.ErrConversationNotFound
	}
	idx := -1
	for i, msg := range conv.Messages {
		if msg.ID == messageID {
			idx = i
			break
		}
	}
	if idx < 0 {
		m.mu.Unlock()
		return false, nil
	}
	conv.Messages = append(conv.Messages[:idx], conv.Messages[idx+1:]...)
	snap := m.snapshotLocked(DocConversations)
	m.mu.Unlock()

	m.persist(snap)
	return true, nil
}
