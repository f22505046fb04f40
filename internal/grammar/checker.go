// Package grammar checks spelling and grammar against a LanguageTool server.
package grammar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"
	"unicode/utf16"

	"go.uber.org/zap"
)

// Match is one issue found in the text.
// Offset and Length count UTF-16 code units, as LanguageTool and browsers do.
type Match struct {
	Offset       int      `json:"offset"`
	Length       int      `json:"length"`
	Message      string   `json:"message"`
	Replacements []string `json:"replacements"`
	RuleID       string   `json:"ruleId"`
	ErrorType    string   `json:"errorType"`
}

// Checker finds issues in text
type Checker interface {
	Check(ctx context.Context, text string) ([]Match, error)
}

// LanguageTool is a Checker backed by the LanguageTool HTTP API
type LanguageTool struct {
	baseURL  string
	language string
	client   *http.Client
	logger   *zap.Logger
}

// NewLanguageTool creates a client for the server at baseURL
func NewLanguageTool(baseURL, language string, timeout time.Duration, logger *zap.Logger) *LanguageTool {
	if language == "" {
		language = "en-US"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LanguageTool{
		baseURL:  strings.TrimRight(baseURL, "/"),
		language: language,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

type ltResponse struct {
	Matches []struct {
		Message      string `json:"message"`
		Offset       int    `json:"offset"`
		Length       int    `json:"length"`
		Replacements []struct {
			Value string `json:"value"`
		} `json:"replacements"`
		Rule struct {
			ID string `json:"id"`
		} `json:"rule"`
	} `json:"matches"`
}

// Check posts text to /v2/check and returns filtered matches
func (l *LanguageTool) Check(ctx context.Context, text string) ([]Match, error) {
	if strings.TrimSpace(text) == "" {
		return []Match{}, nil
	}

	form := url.Values{}
	form.Set("text", text)
	form.Set("language", l.language)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/v2/check", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("languagetool request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("languagetool status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded ltResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode languagetool response: %w", err)
	}

	units := utf16.Encode([]rune(text))
	matches := make([]Match, 0, len(decoded.Matches))
	for _, m := range decoded.Matches {
		if isAcronymSpelling(m.Rule.ID, token(units, m.Offset, m.Length)) {
			continue
		}
		replacements := make([]string, 0, len(m.Replacements))
		for _, r := range m.Replacements {
			replacements = append(replacements, r.Value)
		}
		matches = append(matches, Match{
			Offset:       m.Offset,
			Length:       m.Length,
			Message:      m.Message,
			Replacements: replacements,
			RuleID:       m.Rule.ID,
			ErrorType:    ErrorType(m.Rule.ID),
		})
	}
	return matches, nil
}

// CheckOrEmpty returns no matches when the checker fails, logging the error
func CheckOrEmpty(ctx context.Context, c Checker, text string, logger *zap.Logger) []Match {
	matches, err := c.Check(ctx, text)
	if err != nil {
		if logger != nil {
			logger.Warn("grammar check failed", zap.Error(err))
		}
		return []Match{}
	}
	return matches
}

// ErrorType classifies a LanguageTool rule id
func ErrorType(ruleID string) string {
	lower := strings.ToLower(ruleID)
	switch {
	case strings.HasPrefix(ruleID, "MORFOLOGIK"):
		return "spelling"
	case strings.Contains(lower, "grammar"):
		return "grammar"
	case strings.Contains(lower, "style"):
		return "style"
	default:
		return "other"
	}
}

// isAcronymSpelling reports a spelling match on an all-caps token like "PLC"
func isAcronymSpelling(ruleID, tok string) bool {
	if !strings.HasPrefix(ruleID, "MORFOLOGIK") || len([]rune(tok)) < 2 {
		return false
	}
	hasLetter := false
	for _, r := range tok {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) {
			hasLetter = true
		}
	}
	return hasLetter
}

func token(units []uint16, offset, length int) string {
	if offset < 0 || length <= 0 || offset+length > len(units) {
		return ""
	}
	return string(utf16.Decode(units[offset : offset+length]))
}
