package handlers

import (
	"chat-gateway/internal/auth"
	"chat-gateway/internal/logger"
	"chat-gateway/internal/repository/db"
	chatService "chat-gateway/internal/service/chat"
	userService "chat-gateway/internal/service/user"
	"chat-gateway/pkg/validation"
	"encoding/json"
	"net/http"
)

// UserHandlers serve the caller's own account
type UserHandlers struct {
	users     *userService.UserService
	validator *validation.UserRequestValidator
}

func NewUserHandlers(users *userService.UserService) *UserHandlers {
	return &UserHandlers{users: users, validator: validation.NewUserRequestValidator()}
}

// MeHandler returns the authenticated user
func (uh *UserHandlers) MeHandler(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, auth.MustUser(r.Context()).View())
}

// UpdateProfileHandler replaces the caller's personalization fields
func (uh *UserHandlers) UpdateProfileHandler(w http.ResponseWriter, r *http.Request) {
	user := auth.MustUser(r.Context())

	var req validation.ProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, chatService.CodeValidation, "Invalid request body", err)
		return
	}
	if err := uh.validator.ValidateProfile(req); err != nil {
		sendError(w, http.StatusBadRequest, chatService.CodeValidation, "Validation failed", err)
		return
	}

	updated, err := uh.users.UpdateProfile(user.ID, db.Profile{
		DisplayName:    req.DisplayName,
		Location:       req.Location,
		PersonalPrompt: req.PersonalPrompt,
	})
	if err != nil {
		logger.Log.WithError(err).Error("Error updating profile")
		sendError(w, http.StatusInternalServerError, chatService.CodeInternal, "Error updating profile", err)
		return
	}
	sendJSON(w, updated.View())
}
