package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// CreateUserRequest is the admin payload for a new account
type CreateUserRequest struct {
	Username    string `json:"username" validate:"required,min=3,max=50,username"`
	Password    string `json:"password" validate:"required,min=6,max=128"`
	Email       string `json:"email" validate:"omitempty,max=255,email"`
	DisplayName string `json:"display_name" validate:"max=100"`
	IsAdmin     bool   `json:"is_admin"`
	MaxTokens   string `json:"max_tokens" validate:"omitempty,token_limit"`
}

// ProfileRequest holds the user-editable personalization fields
type ProfileRequest struct {
	DisplayName    string `json:"display_name" validate:"max=100"`
	Location       string `json:"location" validate:"max=100"`
	PersonalPrompt string `json:"personal_prompt" validate:"max=2000"`
}

// QuotaRequest sets a token ceiling: a non-negative integer or "unlimited"
type QuotaRequest struct {
	MaxTokens string `json:"max_tokens" validate:"required,token_limit"`
}

// UserRequestValidator validates account administration and profile requests
type UserRequestValidator struct {
	validate *validator.Validate
}

// NewUserRequestValidator creates a new UserRequestValidator
func NewUserRequestValidator() *UserRequestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	// registration only fails for an empty tag or a nil function
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("token_limit", func(fl validator.FieldLevel) bool {
		return IsTokenLimit(fl.Field().String())
	})
	return &UserRequestValidator{validate: v}
}

// IsTokenLimit reports whether s is "unlimited", "--" or a non-negative integer
func IsTokenLimit(s string) bool {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "unlimited") || s == "--" {
		return true
	}
	n, err := strconv.ParseInt(s, 10, 64)
	return err == nil && n >= 0
}

// ValidateCreateUser validates a new account
func (v *UserRequestValidator) ValidateCreateUser(req CreateUserRequest) error {
	return v.check(req)
}

// ValidateProfile validates a profile update
func (v *UserRequestValidator) ValidateProfile(req ProfileRequest) error {
	return v.check(req)
}

// ValidateQuota validates a quota update
func (v *UserRequestValidator) ValidateQuota(req QuotaRequest) error {
	return v.check(req)
}

func (v *UserRequestValidator) check(req any) error {
	err := v.validate.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, describe(fe))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters long", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters long", fe.Field(), fe.Param())
	case "email":
		return "invalid email format"
	case "username":
		return "username can only contain letters, numbers, underscores, and hyphens"
	case "token_limit":
		return fmt.Sprintf("%s must be a non-negative integer or \"unlimited\"", fe.Field())
	default:
		return fmt.Sprintf("%s is invalid (%s)", fe.Field(), fe.Tag())
	}
}
