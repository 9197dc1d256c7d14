package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	maxMessageLength = 32000
	maxTitleLength   = 200
	maxModelLength   = 128
)

// ChatRequestValidator validates chat-related requests
type ChatRequestValidator struct{}

// NewChatRequestValidator creates a new ChatRequestValidator
func NewChatRequestValidator() *ChatRequestValidator {
	return &ChatRequestValidator{}
}

// ValidateMessage validates a chat message
func (v *ChatRequestValidator) ValidateMessage(message string) error {
	if strings.TrimSpace(message) == "" {
		return errors.New("message cannot be empty")
	}
	if n := utf8.RuneCountInString(message); n > maxMessageLength {
		return fmt.Errorf("message must be at most %d characters long, got %d", maxMessageLength, n)
	}
	return nil
}

// ValidateModel checks the shape of a model identifier; unknown models are
// resolved to the default later
func (v *ChatRequestValidator) ValidateModel(model string) error {
	if model == "" {
		return nil // Model is optional
	}
	if len(model) > maxModelLength {
		return fmt.Errorf("model must be at most %d characters long, got %d", maxModelLength, len(model))
	}
	if strings.ContainsAny(model, " \t\r\n") {
		return errors.New("model cannot contain whitespace")
	}
	return nil
}

// ValidateTitle validates a conversation title
func (v *ChatRequestValidator) ValidateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return errors.New("title cannot be empty")
	}
	if n := utf8.RuneCountInString(title); n > maxTitleLength {
		return fmt.Errorf("title must be at most %d characters long, got %d", maxTitleLength, n)
	}
	return nil
}

// ValidateChatRequest validates a complete chat request
func (v *ChatRequestValidator) ValidateChatRequest(message, model string) error {
	if err := v.ValidateMessage(message); err != nil {
		return err
	}

	if err := v.ValidateModel(model); err != nil {
		return err
	}

	return nil
}
