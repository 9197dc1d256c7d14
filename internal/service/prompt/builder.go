// Package prompt renders system prompt templates.
package prompt

import (
	"chat-gateway/internal/config"
	"chat-gateway/internal/logger"
	"chat-gateway/internal/repository/db"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Placeholders understood by Render
const (
	PlaceholderUserPrompt   = "%user-prompt%"
	PlaceholderUserName     = "%user-name%"
	PlaceholderUserLocation = "%user-location%"
	PlaceholderModel        = "%model%"
	PlaceholderLanguage     = "%language%"
	PlaceholderTime         = "%time%"
)

const (
	fallbackUserName = "User"
	fallbackLocation = "unknown"
	timeLayout       = "Monday, 2 January 2006 15:04"
)

// Bindings are the values substituted into a template
type Bindings struct {
	UserPrompt   string
	UserName     string
	UserLocation string
	Model        string
	Language     string
	Time         string
}

// Render substitutes every placeholder in a single pass. Substituted values are
// never re-scanned and unknown placeholders are left untouched.
func Render(template string, b Bindings) string {
	name := b.UserName
	if strings.TrimSpace(name) == "" {
		name = fallbackUserName
	}
	location := b.UserLocation
	if strings.TrimSpace(location) == "" {
		location = fallbackLocation
	}

	return strings.NewReplacer(
		PlaceholderUserPrompt, b.UserPrompt,
		PlaceholderUserName, name,
		PlaceholderUserLocation, location,
		PlaceholderModel, b.Model,
		PlaceholderLanguage, b.Language,
		PlaceholderTime, b.Time,
	).Replace(template)
}

// Builder renders the configured system prompt for a user. The prompt settings
// can be swapped at runtime.
type Builder struct {
	settings atomic.Pointer[settings]
	now      func() time.Time
}

type settings struct {
	template string
	language string
	location *time.Location
}

// NewBuilder creates a builder for the given prompt configuration
func NewBuilder(cfg config.PromptConfig) *Builder {
	b := &Builder{now: time.Now}
	b.Update(cfg)
	return b
}

// Update replaces the template, language and timezone
func (b *Builder) Update(cfg config.PromptConfig) {
	loc := time.Local
	if cfg.Timezone != "" && cfg.Timezone != "Local" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			logger.Log.WithFields(logrus.Fields{"timezone": cfg.Timezone, "error": err}).Warn("Unknown timezone, using local time")
		} else {
			loc = l
		}
	}
	b.settings.Store(&settings{
		template: cfg.SystemPrompt,
		language: cfg.Language,
		location: loc,
	})
}

// Language returns the configured response language
func (b *Builder) Language() string {
	return b.settings.Load().language
}

// SystemPrompt renders the configured template for user and model at the current time
func (b *Builder) SystemPrompt(user *db.User, model string) string {
	s := b.settings.Load()
	bindings := Bindings{
		Model:    model,
		Language: s.language,
		Time:     b.now().In(s.location).Format(timeLayout),
	}
	if user != nil {
		bindings.UserPrompt = user.PersonalPrompt
		bindings.UserName = user.DisplayName
		if bindings.UserName == "" {
			bindings.UserName = user.Username
		}
		bindings.UserLocation = user.Location
	}
	return Render(s.template, bindings)
}
