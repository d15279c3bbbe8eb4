package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// LLMClient talks to an OpenAI-compatible chat completions endpoint
type LLMClient struct {
	client *openai.Client
	model  string
}

// ChatMessage is one message in a chat completion request
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NewLLMClient creates a client for baseURL (e.g. https://api.openai.com/v1)
func NewLLMClient(baseURL, apiKey, model string) *LLMClient {
	config := openai.DefaultConfig(apiKey)
	config.BaseURL = strings.TrimSuffix(baseURL, "/")
	// Per-call deadlines come from the caller's context
	config.HTTPClient = &http.Client{Timeout: 60 * time.Second}

	return &LLMClient{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}
}

// Model returns the configured model id
func (c *LLMClient) Model() string {
	return c.model
}

// Complete sends messages and returns the first choice's content.
// When schema is non-nil the request asks for strict JSON matching it.
func (c *LLMClient) Complete(ctx context.Context, messages []ChatMessage, temperature float64, schemaName string, schema map[string]interface{}) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(messages)),
		Temperature: float32(temperature),
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	if schema != nil {
		raw, err := json.Marshal(schema)
		if err != nil {
			return "", fmt.Errorf("failed to marshal schema: %w", err)
		}
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   schemaName,
				Schema: json.RawMessage(raw),
				Strict: true,
			},
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		var apiErr *openai.APIError
		var reqErr *openai.RequestError
		switch {
		case errors.As(err, &apiErr):
			log.Printf("⚠️  [CLASSIFIER] LLM API error (status %d, type %s)", apiErr.HTTPStatusCode, apiErr.Type)
			return "", fmt.Errorf("API error (status %d): %w", apiErr.HTTPStatusCode, err)
		case errors.As(err, &reqErr):
			log.Printf("⚠️  [CLASSIFIER] LLM API error (status %d)", reqErr.HTTPStatusCode)
			return "", fmt.Errorf("API error (status %d): %w", reqErr.HTTPStatusCode, err)
		}
		return "", fmt.Errorf("request failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in model response")
	}

	return resp.Choices[0].Message.Content, nil
}
