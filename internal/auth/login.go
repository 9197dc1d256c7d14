package auth

import (
	"chat-gateway/internal/logger"
	"chat-gateway/internal/repository/db"
	userService "chat-gateway/internal/service/user"
	"chat-gateway/pkg/validation"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"
)

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string      `json:"token"`
	User  db.UserView `json:"user"`
}

// LoginHandler exchanges credentials for a session token
type LoginHandler struct {
	tokens    *TokenManager
	users     *userService.UserService
	validator *validation.LoginRequestValidator
}

func NewLoginHandler(tokens *TokenManager, users *userService.UserService) *LoginHandler {
	return &LoginHandler{
		tokens:    tokens,
		users:     users,
		validator: validation.NewLoginRequestValidator(),
	}
}

func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "validation_failed", "Invalid request body", err)
		return
	}

	username, err := h.validator.ValidateLoginRequest(req.Username, req.Password)
	if err != nil {
		sendError(w, http.StatusBadRequest, "validation_failed", err.Error(), err)
		return
	}

	user, err := h.users.Authenticate(username, req.Password)
	if err != nil {
		if errors.Is(err, userService.ErrInvalidCredentials) {
			logger.Log.WithField("username", username).Warn("Login failed")
			sendError(w, http.StatusUnauthorized, "unauthorized", "Invalid credentials", nil)
			return
		}
		logger.Log.WithError(err).Error("Login lookup failed")
		sendError(w, http.StatusInternalServerError, "internal_error", "Error verifying credentials", err)
		return
	}

	token, err := h.tokens.GenerateToken(user)
	if err != nil {
		logger.Log.WithError(err).Error("Error generating token")
		sendError(w, http.StatusInternalServerError, "internal_error", "Error generating token", err)
		return
	}

	logger.Log.WithFields(logrus.Fields{
		"user_id":  user.ID,
		"username": user.Username,
	}).Info("User logged in")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(LoginResponse{Token: token, User: user.View()})
}
