package spell

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Match is one finding returned by the checker, with offsets relative
// to the submitted plain text.
type Match struct {
	Offset      int
	Length      int
	RuleID      string
	Message     string
	Suggestions []string
}

// Result is a complete spell-check response for one text.
type Result struct {
	Matches []Match
}

// Client talks to a LanguageTool-compatible spell-check server. Callers
// submit markup-stripped text; requests are fire-and-forget from the
// editor's point of view and responses re-derive applicability before
// being applied.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a spell-check client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// checkResponse mirrors the LanguageTool v2 response shape.
type checkResponse struct {
	Matches []struct {
		Offset       int    `json:"offset"`
		Length       int    `json:"length"`
		Message      string `json:"message"`
		Replacements []struct {
			Value string `json:"value"`
		} `json:"replacements"`
		Rule struct {
			ID string `json:"id"`
		} `json:"rule"`
	} `json:"matches"`
}

// Check submits plain text for the given language and returns the
// outstanding matches.
func (c *Client) Check(ctx context.Context, text, languageID string) (*Result, error) {
	form := url.Values{}
	form.Set("text", text)
	form.Set("language", languageID)
	form.Set("disabledRules", "UPPERCASE_SENTENCE_START,PUNCTUATION_PARAGRAPH_END")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/check",
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("spellcheck request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("spellcheck server returned %d: %s", resp.StatusCode, string(body))
	}

	var decoded checkResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	result := &Result{Matches: make([]Match, 0, len(decoded.Matches))}
	for _, m := range decoded.Matches {
		suggestions := make([]string, 0, len(m.Replacements))
		for _, r := range m.Replacements {
			suggestions = append(suggestions, r.Value)
		}
		result.Matches = append(result.Matches, Match{
			Offset:      m.Offset,
			Length:      m.Length,
			RuleID:      m.Rule.ID,
			Message:     m.Message,
			Suggestions: suggestions,
		})
	}
	return result, nil
}
