package handlers

import (
	"chat-gateway/internal/auth"
	"chat-gateway/internal/logger"
	"chat-gateway/internal/repository/db"
	chatService "chat-gateway/internal/service/chat"
	"chat-gateway/internal/service/stats"
	userService "chat-gateway/internal/service/user"
	"chat-gateway/pkg/validation"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
)

// tokenLimitField accepts max_tokens as a JSON number or string
type tokenLimitField string

func (f *tokenLimitField) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = tokenLimitField(s)
		return nil
	}
	*f = tokenLimitField(strings.TrimSpace(string(data)))
	return nil
}

type createUserBody struct {
	Username    string          `json:"username"`
	Password    string          `json:"password"`
	Email       string          `json:"email"`
	DisplayName string          `json:"display_name"`
	IsAdmin     bool            `json:"is_admin"`
	MaxTokens   tokenLimitField `json:"max_tokens"`
}

type quotaBody struct {
	MaxTokens tokenLimitField `json:"max_tokens"`
}

type UsersResponse struct {
	Users []db.UserView `json:"users"`
}

// AdminHandlers serve account administration and usage statistics
type AdminHandlers struct {
	users     *userService.UserService
	stats     *stats.Aggregator
	validator *validation.UserRequestValidator
}

func NewAdminHandlers(users *userService.UserService, aggregator *stats.Aggregator) *AdminHandlers {
	return &AdminHandlers{
		users:     users,
		stats:     aggregator,
		validator: validation.NewUserRequestValidator(),
	}
}

// ListUsersHandler lists all accounts
func (ah *AdminHandlers) ListUsersHandler(w http.ResponseWriter, r *http.Request) {
	users, err := ah.users.ListUsers()
	if err != nil {
		sendError(w, http.StatusInternalServerError, chatService.CodeInternal, "Error listing users", err)
		return
	}
	views := make([]db.UserView, 0, len(users))
	for i := range users {
		views = append(views, users[i].View())
	}
	sendJSON(w, UsersResponse{Users: views})
}

// GetUserHandler returns one account
func (ah *AdminHandlers) GetUserHandler(w http.ResponseWriter, r *http.Request) {
	user, err := ah.users.GetUser(r.PathValue("id"))
	if err != nil {
		ah.sendUserError(w, err, "Error retrieving user")
		return
	}
	sendJSON(w, user.View())
}

// CreateUserHandler creates an account; an omitted max_tokens means unlimited
func (ah *AdminHandlers) CreateUserHandler(w http.ResponseWriter, r *http.Request) {
	var body createUserBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		sendError(w, http.StatusBadRequest, chatService.CodeValidation, "Invalid request body", err)
		return
	}

	req := validation.CreateUserRequest{
		Username:    strings.TrimSpace(body.Username),
		Password:    body.Password,
		Email:       strings.TrimSpace(body.Email),
		DisplayName: body.DisplayName,
		IsAdmin:     body.IsAdmin,
		MaxTokens:   string(body.MaxTokens),
	}
	if err := ah.validator.ValidateCreateUser(req); err != nil {
		sendError(w, http.StatusBadRequest, chatService.CodeValidation, "Validation failed", err)
		return
	}

	limit := db.UnlimitedTokens()
	if req.MaxTokens != "" {
		parsed, err := db.ParseTokenLimit(req.MaxTokens)
		if err != nil {
			sendError(w, http.StatusBadRequest, chatService.CodeValidation, "Validation failed", err)
			return
		}
		limit = parsed
	}

	user, err := ah.users.CreateUser(userService.CreateUserRequest{
		Username:    req.Username,
		Password:    req.Password,
		Email:       req.Email,
		DisplayName: req.DisplayName,
		IsAdmin:     req.IsAdmin,
		MaxTokens:   limit,
	})
	if err != nil {
		ah.sendUserError(w, err, "Error creating user")
		return
	}

	logger.Log.WithFields(logrus.Fields{
		"admin_id": auth.MustUser(r.Context()).ID,
		"user_id":  user.ID,
	}).Info("Admin created user")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(user.View())
}

// DeleteUserHandler deletes an account with its conversations
func (ah *AdminHandlers) DeleteUserHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == auth.MustUser(r.Context()).ID {
		sendError(w, http.StatusConflict, codeConflict, "Administrators cannot delete their own account", nil)
		return
	}
	if err := ah.users.DeleteUser(id); err != nil {
		ah.sendUserError(w, err, "Error deleting user")
		return
	}
	sendJSON(w, MessageResponse{Message: "User and conversations deleted successfully"})
}

// SetQuotaHandler changes the token ceiling of an account
func (ah *AdminHandlers) SetQuotaHandler(w http.ResponseWriter, r *http.Request) {
	var body quotaBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		sendError(w, http.StatusBadRequest, chatService.CodeValidation, "Invalid request body", err)
		return
	}
	req := validation.QuotaRequest{MaxTokens: string(body.MaxTokens)}
	if err := ah.validator.ValidateQuota(req); err != nil {
		sendError(w, http.StatusBadRequest, chatService.CodeValidation, "Validation failed", err)
		return
	}
	limit, err := db.ParseTokenLimit(req.MaxTokens)
	if err != nil {
		sendError(w, http.StatusBadRequest, chatService.CodeValidation, "Validation failed", err)
		return
	}

	user, err := ah.users.SetQuota(r.PathValue("id"), limit)
	if err != nil {
		ah.sendUserError(w, err, "Error updating quota")
		return
	}
	sendJSON(w, user.View())
}

// StatsHandler records a fresh resource sample and returns the usage statistics.
// A failed sample is logged and the previous values are served.
func (ah *AdminHandlers) StatsHandler(w http.ResponseWriter, r *http.Request) {
	if err := ah.stats.SampleResources(); err != nil {
		logger.Log.WithError(err).Warn("Resource sampling failed")
	}

	snapshot, err := ah.stats.Snapshot()
	if err != nil {
		sendError(w, http.StatusInternalServerError, chatService.CodeInternal, "Error retrieving stats", err)
		return
	}
	sendJSON(w, snapshot)
}

// ModelStatsHandler returns the totals of one model
func (ah *AdminHandlers) ModelStatsHandler(w http.ResponseWriter, r *http.Request) {
	snapshot, err := ah.stats.Snapshot()
	if err != nil {
		sendError(w, http.StatusInternalServerError, chatService.CodeInternal, "Error retrieving stats", err)
		return
	}
	model := r.PathValue("model")
	modelStats, ok := snapshot.Models[model]
	if !ok {
		sendError(w, http.StatusNotFound, chatService.CodeNotFound, "No usage recorded for model", nil)
		return
	}
	sendJSON(w, modelStats)
}

func (ah *AdminHandlers) sendUserError(w http.ResponseWriter, err error, message string) {
	switch {
	case errors.Is(err, db.ErrUserNotFound):
		sendError(w, http.StatusNotFound, chatService.CodeNotFound, "User not found", err)
	case errors.Is(err, db.ErrUserExists):
		sendError(w, http.StatusConflict, codeConflict, "Username already exists", err)
	default:
		logger.Log.WithError(err).Error(message)
		sendError(w, http.StatusInternalServerError, chatService.CodeInternal, message, err)
	}
}
