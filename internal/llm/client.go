// Package llm talks to an OpenAI-compatible chat-completion backend. The
// backend is a collaborator the bot can live without: any failure, timeout or
// missing key degrades to a static supportive reply instead of an error.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

const (
	// FallbackReply is sent when the backend is unreachable or over quota.
	FallbackReply = "Сейчас мне трудно ответить из-за перегрузки. Давайте попробуем ещё раз через минутку. Я рядом."
	// OfflineReply is sent when no API key is configured at all.
	OfflineReply = "Я здесь, чтобы поддержать. Расскажите, что сейчас больше всего хочется прояснить?"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

type Client struct {
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
}

func NewClient(baseURL, apiKey, model string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Model:   model,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Reply produces the assistant's answer for the conversation. It never
// returns an error to the caller: degraded conditions collapse into a static
// reply and a log line. The context bounds the request; an abandoned call is
// simply replaced by the fallback.
func (c *Client) Reply(ctx context.Context, messages []Message) string {
	if c.APIKey == "" {
		return OfflineReply
	}

	reply, err := c.complete(ctx, messages)
	if err != nil {
		log.Printf("LLM backend degraded: %v", err)
		return FallbackReply
	}
	return reply
}

func (c *Client) complete(ctx context.Context, messages []Message) (string, error) {
	reqBody := chatRequest{
		Model:       c.Model,
		Messages:    messages,
		Temperature: 0.6,
		MaxTokens:   600,
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST",
		fmt.Sprintf("%s/chat/completions", c.BaseURL), bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.APIKey))

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("api error: %s (status: %d)", string(respBody), resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("empty choices in response")
	}
	return parsed.Choices[0].Message.Content, nil
}
