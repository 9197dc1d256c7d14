package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Login bounds mirror the account creation rules in user.go
const (
	maxLoginUsernameLength = 50
	maxLoginPasswordLength = 128
)

// LoginRequestValidator checks credentials before they reach the user store
type LoginRequestValidator struct{}

func NewLoginRequestValidator() *LoginRequestValidator {
	return &LoginRequestValidator{}
}

// ValidateLoginRequest returns the username to look up, without surrounding
// whitespace. Case is preserved; the store matches usernames case-insensitively.
// The password is checked as sent.
func (v *LoginRequestValidator) ValidateLoginRequest(username, password string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", errors.New("username cannot be empty")
	}
	if n := utf8.RuneCountInString(username); n > maxLoginUsernameLength {
		return "", fmt.Errorf("username must be at most %d characters long, got %d", maxLoginUsernameLength, n)
	}

	if password == "" {
		return "", errors.New("password cannot be empty")
	}
	if len(password) > maxLoginPasswordLength {
		return "", fmt.Errorf("password must be at most %d characters long", maxLoginPasswordLength)
	}

	return username, nil
}
