package user

import (
	"chat-gateway/internal/logger"
	"chat-gateway/internal/repository/db"
	"chat-gateway/internal/service/generation"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned for an unknown user or a wrong password
var ErrInvalidCredentials = errors.New("invalid credentials")

// CreateUserRequest holds the fields of a new account
type CreateUserRequest struct {
	Username    string
	Password    string
	Email       string
	DisplayName string
	IsAdmin     bool
	MaxTokens   db.TokenLimit
}

type UserService struct {
	db       db.Database
	registry *generation.Registry
}

// NewUserService creates a new UserService. registry may be nil.
func NewUserService(database db.Database, registry *generation.Registry) *UserService {
	return &UserService{db: database, registry: registry}
}

// CreateUser hashes the password and stores the account
func (s *UserService) CreateUser(req CreateUserRequest) (*db.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := s.db.CreateUser(db.User{
		Username:     strings.TrimSpace(req.Username),
		Email:        req.Email,
		PasswordHash: string(hash),
		DisplayName:  req.DisplayName,
		IsAdmin:      req.IsAdmin,
		MaxTokens:    req.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	logger.Log.WithFields(logrus.Fields{
		"user_id":  user.ID,
		"username": user.Username,
		"admin":    user.IsAdmin,
		"limit":    user.MaxTokens.String(),
	}).Info("User created")
	return user, nil
}

// Authenticate returns the user whose password matches
func (s *UserService) Authenticate(username, password string) (*db.User, error) {
	user, err := s.db.GetUserByUsername(strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, db.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

func (s *UserService) GetUser(id string) (*db.User, error) {
	return s.db.GetUser(id)
}

func (s *UserService) ListUsers() ([]db.User, error) {
	return s.db.ListUsers()
}

// DeleteUser stops any running generation of the user, then removes the user
// and their conversations
func (s *UserService) DeleteUser(id string) error {
	if s.registry != nil && s.registry.Cancel(id) {
		logger.Log.WithField("user_id", id).Info("Stopped generation of deleted user")
	}
	if err := s.db.DeleteUser(id); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	logger.Log.WithField("user_id", id).Info("User deleted")
	return nil
}

// SetQuota changes the token ceiling of a user
func (s *UserService) SetQuota(id string, limit db.TokenLimit) (*db.User, error) {
	user, err := s.db.SetUserTokenLimit(id, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to set quota: %w", err)
	}
	logger.Log.WithFields(logrus.Fields{"user_id": id, "limit": limit.String()}).Info("Quota updated")
	return user, nil
}

// UpdateProfile replaces the personalization fields of a user
func (s *UserService) UpdateProfile(id string, profile db.Profile) (*db.User, error) {
	profile.DisplayName = strings.TrimSpace(profile.DisplayName)
	profile.Location = strings.TrimSpace(profile.Location)
	user, err := s.db.UpdateUserProfile(id, profile)
	if err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return user, nil
}

// SeedAdmin creates an unlimited admin account when no user exists yet.
// It reports whether an account was created.
func (s *UserService) SeedAdmin(username, password string) (bool, error) {
	if username == "" || password == "" {
		return false, nil
	}
	users, err := s.db.ListUsers()
	if err != nil {
		return false, fmt.Errorf("failed to list users: %w", err)
	}
	if len(users) > 0 {
		return false, nil
	}

	if _, err := s.CreateUser(CreateUserRequest{
		Username:  username,
		Password:  password,
		IsAdmin:   true,
		MaxTokens: db.UnlimitedTokens(),
	}); err != nil {
		return false, err
	}
	logger.Log.WithField("username", username).Warn("Seeded initial admin account, change its password")
	return true, nil
}
