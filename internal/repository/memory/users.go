package memory

import (
	"chat-gateway/internal/repository/db"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// GetUser retrieves a user by ID
func (m *DB) GetUser(id string) (*db.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.users[id]
	if !ok {
		return nil, db.ErrUserNotFound
	}
	out := *user
	return &out, nil
}

// GetUserByUsername retrieves a user by username, case-insensitively
func (m *DB) GetUserByUsername(username string) (*db.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, user := range m.users {
		if strings.EqualFold(user.Username, username) {
			out := *user
			return &out, nil
		}
	}
	return nil, db.ErrUserNotFound
}

// ListUsers returns all users ordered by creation time
func (m *DB) ListUsers() ([]db.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	users := make([]db.User, 0, len(m.users))
	for _, user := range m.users {
		users = append(users, *user)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].Username < users[j].Username
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users, nil
}

// CreateUser stores a new user. ID and creation time are assigned when empty.
func (m *DB) CreateUser(user db.User) (*db.User, error) {
	m.mu.Lock()
	for _, existing := range m.users {
		if strings.EqualFold(existing.Username, user.Username) {
			m.mu.Unlock()
			return nil, db.ErrUserExists
		}
	}
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = m.now()
	}
	stored := user
	m.users[user.ID] = &stored
	snap := m.snapshotLocked(DocUsers)
	m.mu.Unlock()

	m.persist(snap)
	return &user, nil
}

// UpdateUserProfile replaces the personalization fields of a user
func (m *DB) UpdateUserProfile(id string, profile db.Profile) (*db.User, error) {
	return m.updateUser(id, func(u *db.User) {
		u.DisplayName = profile.DisplayName
		u.Location = profile.Location
		u.PersonalPrompt = profile.PersonalPrompt
	})
}

// SetUserTokenLimit changes the quota ceiling of a user
func (m *DB) SetUserTokenLimit(id string, limit db.TokenLimit) (*db.User, error) {
	return m.updateUser(id, func(u *db.User) {
		u.MaxTokens = limit
	})
}

// AddUserTokens adds tokens to the user's consumption. Negative amounts are ignored.
func (m *DB) AddUserTokens(id string, tokens int64) (*db.User, error) {
	if tokens < 0 {
		tokens = 0
	}
	return m.updateUser(id, func(u *db.User) {
		u.UsedTokens += tokens
	})
}

func (m *DB) updateUser(id string, apply func(*db.User)) (*db.User, error) {
	m.mu.Lock()
	user, ok := m.users[id]
	if !ok {
		m.mu.Unlock()
		return nil, db.ErrUserNotFound
	}
	apply(user)
	out := *user
	snap := m.snapshotLocked(DocUsers)
	m.mu.Unlock()

	m.persist(snap)
	return &out, nil
}

// DeleteUser removes a user together with every conversation they own
func (m *DB) DeleteUser(id string) error {
	m.mu.Lock()
	if _, ok := m.users[id]; !ok {
		m.mu.Unlock()
		return db.ErrUserNotFound
	}
	delete(m.users, id)
	for convID, conv := range m.conversations {
		if conv.UserID == id {
			delete(m.conversations, convID)
		}
	}
	snaps := []snapshot{m.snapshotLocked(DocUsers), m.snapshotLocked(DocConversations)}
	m.mu.Unlock()

	m.persist(snaps...)
	return nil
}

// ResetUsedTokens zeroes the consumption of every user with a finite limit
// and returns how many users were reset.
func (m *DB) ResetUsedTokens() (int, error) {
	m.mu.Lock()
	reset := 0
	for _, user := range m.users {
		if user.MaxTokens.IsUnlimited() {
			continue
		}
		user.UsedTokens = 0
		reset++
	}
	snap := m.snapshotLocked(DocUsers)
	m.mu.Unlock()

	m.persist(snap)
	return reset, nil
}
