package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	openAIBaseURL             = "https://api.openai.com/v1"
	openAICompletionsEndpoint = "/chat/completions"

	copywriterSystemPrompt = "You write clear, conversion-focused product copy."
	copywriterTemperature  = 0.7
)

// CopyGenerator produces SEO product copy for a title and keyword list.
type CopyGenerator interface {
	GenerateCopy(ctx context.Context, title string, keywords []string) (string, error)
}

type openAIClient struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
}

// NewOpenAIClient creates a CopyGenerator backed by the OpenAI chat
// completions API.
func NewOpenAIClient(apiKey, model string, timeout time.Duration) CopyGenerator {
	return &openAIClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: openAIBaseURL,
		apiKey:  apiKey,
		model:   model,
	}
}

// buildPrompt assembles the fixed prompt template. The structure is part of
// the product's output contract; do not reorder the lines.
func buildPrompt(title string, keywords []string) string {
	lines := []string{
		"You are an e-commerce SEO copywriter.",
		"Create product copy in Markdown using this structure:",
		"# Improved Product Title",
		"- 5 bullet points (benefits/features)",
		"",
		"## SEO Description",
		"A concise 1–2 paragraph description.",
		"",
		"**Meta title:** (<= 60 chars)",
		"**Meta description:** (120–160 chars)",
		"",
		"Product: " + title,
		"Keywords: " + strings.Join(keywords, ", "),
	}
	return strings.Join(lines, "\n")
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *openAIClient) GenerateCopy(ctx context.Context, title string, keywords []string) (string, error) {
	if c.apiKey == "" {
		return "", errors.New("OpenAI API key is not configured")
	}

	reqBody := chatCompletionRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: copywriterSystemPrompt},
			{Role: "user", Content: buildPrompt(title, keywords)},
		},
		Temperature: copywriterTemperature,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to encode completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+openAICompletionsEndpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create completion request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call OpenAI: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read completion response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errorResp struct {
			Error struct {
				Message string `json:"message"`
				Type    string `json:"type"`
			} `json:"error"`
		}
		if err := json.Unmarshal(body, &errorResp); err == nil && errorResp.Error.Message != "" {
			return "", fmt.Errorf("OpenAI request failed: %s", errorResp.Error.Message)
		}
		return "", fmt.Errorf("OpenAI request failed: HTTP %d", resp.StatusCode)
	}

	var completion chatCompletionResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return "", fmt.Errorf("invalid response format from OpenAI: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("OpenAI returned no choices")
	}
	output := strings.TrimSpace(completion.Choices[0].Message.Content)
	if output == "" {
		return "", errors.New("OpenAI returned no usable content")
	}
	return output, nil
}
