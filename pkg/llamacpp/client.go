// Package llamacpp talks to a llama.cpp server (or any other server speaking
// the OpenAI chat completions API) through go-openai.
package llamacpp

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/menta2k/image-annotator/pkg/client"
	"github.com/menta2k/image-annotator/pkg/types"
)

// DefaultURL is where llama-server listens by default
const DefaultURL = "http://localhost:8080"

type Client struct {
	baseURL string
	client  *openai.Client
}

// NewClient creates a client for a server without authentication
func NewClient(serverURL string) (*Client, error) {
	return NewClientWithKey(serverURL, "")
}

// NewClientWithKey creates a client that sends apiKey as a bearer token.
// serverURL may include the /v1 suffix or not.
func NewClientWithKey(serverURL, apiKey string) (*Client, error) {
	if serverURL == "" {
		serverURL = DefaultURL
	}
	if !strings.HasPrefix(serverURL, "http://") && !strings.HasPrefix(serverURL, "https://") {
		return nil, fmt.Errorf("invalid URL: %q", serverURL)
	}
	baseURL := strings.TrimSuffix(strings.TrimSuffix(serverURL, "/"), "/v1")

	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL + "/v1"
	cfg.HTTPClient = &http.Client{Timeout: 5 * time.Minute}

	return &Client{
		baseURL: baseURL,
		client:  openai.NewClientWithConfig(cfg),
	}, nil
}

func (c *Client) SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error) {
	return c.complete(ctx, model, prompt, imgB64, 0.7, 2048)
}

func (c *Client) Locate(ctx context.Context, model, prompt, imgB64 string) (*types.LocateResult, error) {
	text, err := c.complete(ctx, model, prompt, imgB64, 0.2, 1024)
	if err != nil {
		return nil, err
	}
	return client.ParseLocateResult(text)
}

func (c *Client) complete(ctx context.Context, model, prompt, imgB64 string, temperature float32, maxTokens int) (string, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 300*time.Second)
		defer cancel()
	}

	parts := []openai.ChatMessagePart{
		{Type: openai.ChatMessagePartTypeText, Text: prompt},
	}
	if imgB64 != "" {
		parts = append(parts, openai.ChatMessagePart{
			Type:     openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{URL: "data:image/jpeg;base64," + imgB64},
		})
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, MultiContent: parts},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
		TopP:        0.9,
	})
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	// Servers answer with either a plain string or a list of content parts
	msg := resp.Choices[0].Message
	if msg.Content != "" {
		return msg.Content, nil
	}
	for _, part := range msg.MultiContent {
		if part.Text != "" {
			return part.Text, nil
		}
	}
	return "", fmt.Errorf("empty response from llama.cpp server")
}
