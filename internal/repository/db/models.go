package db

import "time"

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// User represents an account allowed to chat
type User struct {
	ID             string     `json:"id"`
	Username       string     `json:"username"`
	Email          string     `json:"email,omitempty"`
	PasswordHash   string     `json:"password_hash"`
	DisplayName    string     `json:"display_name,omitempty"`
	Location       string     `json:"location,omitempty"`
	PersonalPrompt string     `json:"personal_prompt,omitempty"`
	IsAdmin        bool       `json:"is_admin"`
	MaxTokens      TokenLimit `json:"max_tokens"`
	UsedTokens     int64      `json:"used_tokens"`
	CreatedAt      time.Time  `json:"created_at"`
}

// UserView is a User without its credential, as returned to clients
type UserView struct {
	ID             string     `json:"id"`
	Username       string     `json:"username"`
	Email          string     `json:"email,omitempty"`
	DisplayName    string     `json:"display_name,omitempty"`
	Location       string     `json:"location,omitempty"`
	PersonalPrompt string     `json:"personal_prompt,omitempty"`
	IsAdmin        bool       `json:"is_admin"`
	MaxTokens      TokenLimit `json:"max_tokens"`
	UsedTokens     int64      `json:"used_tokens"`
	CreatedAt      time.Time  `json:"created_at"`
}

func (u *User) View() UserView {
	return UserView{
		ID:             u.ID,
		Username:       u.Username,
		Email:          u.Email,
		DisplayName:    u.DisplayName,
		Location:       u.Location,
		PersonalPrompt: u.PersonalPrompt,
		IsAdmin:        u.IsAdmin,
		MaxTokens:      u.MaxTokens,
		UsedTokens:     u.UsedTokens,
		CreatedAt:      u.CreatedAt,
	}
}

// Profile holds the personalization fields a user may edit
type Profile struct {
	DisplayName    string
	Location       string
	PersonalPrompt string
}

// Conversation is an ordered message log owned by one user
type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
}

// Message represents a message in a conversation
type Message struct {
	ID      string `json:"id"`
	Role    string `json:"role"`
	Content string `json:"content"`
	Model   string `json:"model,omitempty"`
	Tokens  int64  `json:"tokens,omitempty"`
	// Duration is the generation time in seconds with two decimals, e.g. "1.25"
	Duration   string    `json:"time,omitempty"`
	SearchKind string    `json:"search_kind,omitempty"`
	Sources    []string  `json:"sources,omitempty"`
	Pending    bool      `json:"pending,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// UsageStats aggregates token usage and resource samples
type UsageStats struct {
	Overall OverallStats          `json:"overall"`
	Daily   map[string]DailyStats `json:"daily"`
	Models  map[string]ModelStats `json:"models"`
}

// OverallStats holds lifetime counters
type OverallStats struct {
	TotalTokensUsed int64   `json:"total_tokens_used"`
	CPUUsageAvg     float64 `json:"cpu_usage_avg"`
	RAMUsageAvg     float64 `json:"ram_usage_avg"`
	LastCPUUsage    float64 `json:"last_cpu_usage"`
	LastRAMUsage    float64 `json:"last_ram_usage"`
	Samples         int64   `json:"samples"`
}

// DailyStats holds the token total of one calendar day
type DailyStats struct {
	TotalTokensUsed int64 `json:"total_tokens_used"`
}

// ModelStats holds the token total of one model
type ModelStats struct {
	TotalTokensUsed int64 `json:"total_tokens_used"`
	Generations     int64 `json:"generations"`
}

// NewUsageStats returns empty stats with initialised maps
func NewUsageStats() *UsageStats {
	return &UsageStats{
		Daily:  make(map[string]DailyStats),
		Models: make(map[string]ModelStats),
	}
}
