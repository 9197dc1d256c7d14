package db

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// TokenLimit is a per-user token ceiling, either unlimited or a non-negative count.
// It is encoded as the string "unlimited" or as a number; the legacy "--" marker is
// accepted on input.
type TokenLimit struct {
	unlimited bool
	max       int64
}

// UnlimitedTokens returns a limit that never blocks
func UnlimitedTokens() TokenLimit {
	return TokenLimit{unlimited: true}
}

// LimitTokens returns a finite limit; negative values are clamped to zero
func LimitTokens(max int64) TokenLimit {
	if max < 0 {
		max = 0
	}
	return TokenLimit{max: max}
}

// IsUnlimited reports whether the limit is the unlimited sentinel
func (l TokenLimit) IsUnlimited() bool { return l.unlimited }

// Max returns the finite ceiling; meaningless when unlimited
func (l TokenLimit) Max() int64 { return l.max }

// Allows reports whether a user who consumed used tokens may start another generation
func (l TokenLimit) Allows(used int64) bool {
	return l.unlimited || used < l.max
}

func (l TokenLimit) String() string {
	if l.unlimited {
		return "unlimited"
	}
	return strconv.FormatInt(l.max, 10)
}

// ParseTokenLimit accepts "unlimited", "--" or a decimal count
func ParseTokenLimit(s string) (TokenLimit, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "unlimited", "--":
		return UnlimitedTokens(), nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return TokenLimit{}, fmt.Errorf("invalid token limit %q", s)
	}
	if n < 0 {
		return TokenLimit{}, fmt.Errorf("token limit must not be negative: %d", n)
	}
	return LimitTokens(n), nil
}

func (l TokenLimit) MarshalJSON() ([]byte, error) {
	if l.unlimited {
		return json.Marshal("unlimited")
	}
	return json.Marshal(l.max)
}

func (l *TokenLimit) UnmarshalJSON(data []byte) error {
	var n int64
	if err := json.Unmarshal(data, &n); err == nil {
		parsed := LimitTokens(n)
		*l = parsed
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("token limit must be a number or string: %w", err)
	}
	parsed, err := ParseTokenLimit(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
