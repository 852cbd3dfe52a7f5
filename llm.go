package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Insight categories. The prompt asks for exactly four insights: one line of
// dialogue, two metaphors and one easter egg.
const (
	InsightKindDialogue  = "dialogue"
	InsightKindMetaphor  = "metaphor"
	InsightKindEasterEgg = "easter-egg"
)

// Insight is one AI-generated observation about a title. This is the
// concrete type the insight cache stores.
type Insight struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
	Text string `json:"text"`
}

// LLMClient talks to the chat-completions provider with a fixed prompt
// template and a JSON-shaped response.
type LLMClient struct {
	baseURL string
	apiKey  string
	model   string
	timeout time.Duration
	client  *http.Client
}

func NewLLMClient(baseURL, apiKey, model string, timeout time.Duration) *LLMClient {
	return &LLMClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		timeout: timeout,
		client:  &http.Client{},
	}
}

const insightPromptTemplate = `You are a film historian. For the %s titled %q, with this synopsis:

%s

Return a JSON object with a single key "insights" holding an array of exactly four objects, each with keys "kind" and "text":
1. kind "dialogue": a single notable line of dialogue and why it matters.
2. kind "metaphor": a visual or thematic metaphor the work uses.
3. kind "easter-egg": a hidden detail or easter egg most viewers miss.
4. kind "metaphor": a second, different metaphor.

Keep each text under 60 words. Return only the JSON object.`

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type insightPayload struct {
	Insights []struct {
		Kind string `json:"kind"`
		Text string `json:"text"`
	} `json:"insights"`
}

// GenerateInsights runs one completion for the given title. A provider or
// transport failure is an UpstreamError; a response that parses as JSON but
// does not match the requested shape degrades to an empty list.
func (c *LLMClient) GenerateInsights(ctx context.Context, mediaKind, title, synopsis string) ([]Insight, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	prompt := fmt.Sprintf(insightPromptTemplate, mediaKindNoun(mediaKind), title, synopsis)

	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
		ResponseFormat: &struct {
			Type string `json:"type"`
		}{Type: "json_object"},
	}

	encoded, err := json.Marshal(reqBody)
	if err != nil {
		return nil, UpstreamError{Provider: "llm", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(encoded))
	if err != nil {
		return nil, UpstreamError{Provider: "llm", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, UpstreamError{Provider: "llm", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, UpstreamError{Provider: "llm", Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	var completion chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return nil, UpstreamError{Provider: "llm", Err: err}
	}

	if len(completion.Choices) == 0 {
		return []Insight{}, nil
	}

	return parseInsights(completion.Choices[0].Message.Content), nil
}

// parseInsights decodes the model's JSON content into insights. Malformed
// content and off-template entries degrade to fewer (possibly zero)
// insights rather than an error.
func parseInsights(content string) []Insight {
	var payload insightPayload
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return []Insight{}
	}

	insights := make([]Insight, 0, len(payload.Insights))
	for _, raw := range payload.Insights {
		if raw.Text == "" {
			continue
		}
		switch raw.Kind {
		case InsightKindDialogue, InsightKindMetaphor, InsightKindEasterEgg:
		default:
			continue
		}
		insights = append(insights, Insight{
			Kind: raw.Kind,
			Text: raw.Text,
		})
	}
	return insights
}

func mediaKindNoun(mediaKind string) string {
	if mediaKind == MediaKindTV {
		return "TV series"
	}
	return "movie"
}
