package auth

import (
	"chat-gateway/internal/logger"
	"chat-gateway/internal/repository/db"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

type contextKey string

const UserContextKey contextKey = "user"

const defaultExpiration = 24 * time.Hour

type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// sendError sends a standardized JSON error response
func sendError(w http.ResponseWriter, status int, code, message string, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	errResp := ErrorResponse{
		Code:    code,
		Message: message,
	}
	if err != nil {
		errResp.Error = err.Error()
	}
	json.NewEncoder(w).Encode(errResp)
}

// TokenManager issues and verifies HS256 session tokens
type TokenManager struct {
	secret     []byte
	expiration time.Duration
	now        func() time.Time
}

// NewTokenManager creates a manager; a zero expiration means 24 hours
func NewTokenManager(secret []byte, expiration time.Duration) *TokenManager {
	if expiration <= 0 {
		expiration = defaultExpiration
	}
	return &TokenManager{secret: secret, expiration: expiration, now: time.Now}
}

func (m *TokenManager) GenerateToken(user *db.User) (string, error) {
	now := m.now()
	claims := Claims{
		UserID:   user.ID,
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.expiration)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

func (m *TokenManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(m.now))

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid && claims.UserID != "" {
		return claims, nil
	}

	return nil, jwt.ErrSignatureInvalid
}

// Middleware authenticates the bearer token and puts the current user into the
// request context. Tokens of deleted users are rejected.
func (m *TokenManager) Middleware(database db.Database) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				sendError(w, http.StatusUnauthorized, "unauthorized", "Missing authorization header", nil)
				return
			}

			scheme, token, ok := strings.Cut(authHeader, " ")
			if !ok || scheme != "Bearer" || token == "" {
				sendError(w, http.StatusUnauthorized, "unauthorized", "Invalid authorization header format", nil)
				return
			}

			claims, err := m.ValidateToken(token)
			if err != nil {
				sendError(w, http.StatusUnauthorized, "unauthorized", "Invalid token", err)
				return
			}

			user, err := database.GetUser(claims.UserID)
			if err != nil {
				if errors.Is(err, db.ErrUserNotFound) {
					sendError(w, http.StatusUnauthorized, "unauthorized", "User no longer exists", nil)
					return
				}
				logger.Log.WithError(err).Error("Failed to load authenticated user")
				sendError(w, http.StatusInternalServerError, "internal_error", "Error loading user", err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		}
	}
}

// AdminOnly rejects users without the admin flag; it must run after Middleware
func AdminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		if !ok {
			sendError(w, http.StatusUnauthorized, "unauthorized", "Not authenticated", nil)
			return
		}
		if !user.IsAdmin {
			logger.Log.WithFields(logrus.Fields{
				"user_id": user.ID,
				"path":    r.URL.Path,
			}).Warn("Admin route denied")
			sendError(w, http.StatusForbidden, "forbidden", "Admin privileges required", nil)
			return
		}
		next.ServeHTTP(w, r)
	}
}

// WithUser returns a copy of ctx carrying user
func WithUser(ctx context.Context, user *db.User) context.Context {
	return context.WithValue(ctx, UserContextKey, user)
}

// UserFromContext returns the authenticated user of a request
func UserFromContext(ctx context.Context) (*db.User, bool) {
	user, ok := ctx.Value(UserContextKey).(*db.User)
	return user, ok && user != nil
}

// MustUser is UserFromContext for handlers mounted behind Middleware
func MustUser(ctx context.Context) *db.User {
	user, ok := UserFromContext(ctx)
	if !ok {
		panic(fmt.Sprintf("auth: no user in context (%v)", UserContextKey))
	}
	return user
}
