package search

import (
	"chat-gateway/internal/logger"
	"chat-gateway/internal/repository/db"
	"chat-gateway/internal/service/llm"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// ErrQueryExtraction means the model did not return usable search terms
var ErrQueryExtraction = errors.New("search query extraction failed")

const websearchTermCount = 3

const websearchExtractionPrompt = `You generate web search queries. Based on the user's input, produce a JSON object with exactly three relevant search terms.
The output must match this format exactly and contain only the JSON object, without any additional text or explanation:
{"search_terms": ["term 1", "term 2", "term 3"]}`

const deepsearchExtractionPrompt = `You extract keywords for an in-depth search. Based on the user's input, extract exactly one central keyword.
The output must match this format exactly and contain only the JSON object, without any additional text or explanation:
{"keyword": "keyword"}`

// extract asks the model for a constrained JSON answer to the user's message
func extract(ctx context.Context, backend llm.Backend, systemPrompt, model, message string) (string, error) {
	reply, err := backend.Chat(ctx, model, []llm.Message{
		{Role: db.RoleSystem, Content: systemPrompt},
		{Role: db.RoleUser, Content: message},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrQueryExtraction, err)
	}
	return stripFences(reply), nil
}

// stripFences removes a markdown code fence around a model reply
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		// drop the language tag, e.g. ```json
		if !strings.ContainsAny(s[:i], "{[") {
			s = s[i+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// parseSearchTerms requires exactly three non-empty terms
func parseSearchTerms(reply string) ([]string, error) {
	var parsed struct {
		SearchTerms []string `json:"search_terms"`
	}
	if err := json.Unmarshal([]byte(reply), &parsed); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %v", ErrQueryExtraction, err)
	}

	terms := make([]string, 0, len(parsed.SearchTerms))
	for _, term := range parsed.SearchTerms {
		if term = strings.TrimSpace(term); term != "" {
			terms = append(terms, term)
		}
	}
	if len(terms) != websearchTermCount {
		return nil, fmt.Errorf("%w: expected %d search terms, got %d", ErrQueryExtraction, websearchTermCount, len(terms))
	}
	return terms, nil
}

// parseKeyword reads {"keyword"}; an unparseable reply falls back to its first
// comma or newline separated fragment
func parseKeyword(reply string) (string, error) {
	var parsed struct {
		Keyword string `json:"keyword"`
	}
	if err := json.Unmarshal([]byte(reply), &parsed); err == nil {
		if keyword := strings.TrimSpace(parsed.Keyword); keyword != "" {
			return keyword, nil
		}
		return "", fmt.Errorf("%w: empty keyword", ErrQueryExtraction)
	}

	fields := strings.FieldsFunc(reply, func(r rune) bool { return r == ',' || r == '\n' })
	for _, field := range fields {
		field = strings.Trim(strings.TrimSpace(field), `"'{}[]`)
		if field != "" {
			logger.Log.WithFields(logrus.Fields{
				"reply":   reply,
				"keyword": field,
			}).Warn("Keyword reply was not valid JSON, using first fragment")
			return field, nil
		}
	}
	return "", fmt.Errorf("%w: empty keyword reply", ErrQueryExtraction)
}
