// Package openai adapts the OpenAI REST API to the screening, extraction and embedding contracts.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nicklasc86/travelbot/internal/domain/model"
	"github.com/nicklasc86/travelbot/internal/infra/httpclient"
	"github.com/nicklasc86/travelbot/internal/services/extraction"
	"github.com/nicklasc86/travelbot/internal/services/screening"
)

const (
	DefaultBaseURL        = "https://api.openai.com/v1"
	DefaultChatModel      = "gpt-3.5-turbo"
	DefaultEmbeddingModel = "text-embedding-ada-002"

	extractFunctionName = "extract_location"
	extractSystemPrompt = "Extract the city and country from the following travel tip. Use the defined function to respond."
)

var ErrEmptyResponse = errors.New("openai returned no results")

type Config struct {
	APIKey         string
	BaseURL        string
	ChatModel      string
	EmbeddingModel string
	Timeout        time.Duration
	MaxRetries     uint64
	Transport      http.RoundTripper
}

type Client struct {
	http           *httpclient.JSONClient
	chatModel      string
	embeddingModel string
}

func NewClient(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	chatModel := strings.TrimSpace(cfg.ChatModel)
	if chatModel == "" {
		chatModel = DefaultChatModel
	}
	embeddingModel := strings.TrimSpace(cfg.EmbeddingModel)
	if embeddingModel == "" {
		embeddingModel = DefaultEmbeddingModel
	}

	jsonClient, err := httpclient.NewJSONClient(httpclient.Options{
		BaseURL:    baseURL,
		Headers:    map[string]string{"Authorization": "Bearer " + apiKey},
		Timeout:    cfg.Timeout,
		MaxRetries: cfg.MaxRetries,
		Transport:  cfg.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("create openai http client: %w", err)
	}

	return &Client{
		http:           jsonClient,
		chatModel:      chatModel,
		embeddingModel: embeddingModel,
	}, nil
}

type moderationRequest struct {
	Input string `json:"input"`
}

type moderationResponse struct {
	Results []json.RawMessage `json:"results"`
}

// Classify runs the moderation endpoint and decodes the first result.
func (c *Client) Classify(ctx context.Context, text string) (screening.Result, error) {
	var resp moderationResponse
	if err := c.http.DoJSON(ctx, http.MethodPost, "/moderations", moderationRequest{Input: text}, &resp); err != nil {
		return screening.Result{}, fmt.Errorf("create moderation: %w", err)
	}
	if len(resp.Results) == 0 {
		return screening.Result{}, fmt.Errorf("create moderation: %w", ErrEmptyResponse)
	}

	result, err := screening.DecodeModeration(resp.Results[0])
	if err != nil {
		return screening.Result{}, fmt.Errorf("decode moderation: %w", err)
	}
	return result, nil
}

type chatMessage struct {
	Role         string        `json:"role"`
	Content      string        `json:"content,omitempty"`
	FunctionCall *functionCall `json:"function_call,omitempty"`
}

type functionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type functionDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type functionCallChoice struct {
	Name string `json:"name"`
}

type chatRequest struct {
	Model        string             `json:"model"`
	Messages     []chatMessage      `json:"messages"`
	Functions    []functionDef      `json:"functions"`
	FunctionCall functionCallChoice `json:"function_call"`
	Temperature  float64            `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

var locationFunction = functionDef{
	Name:        extractFunctionName,
	Description: "Extract city and country from a travel tip",
	Parameters: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"city":       map[string]any{"type": "string", "description": `The city mentioned in the tip or "Unknown"`},
			"country":    map[string]any{"type": "string", "description": `The country mentioned in the tip or "Unknown"`},
			"confidence": map[string]any{"type": "number", "description": "Model confidence from 0 to 1"},
		},
		"required": []string{"city", "country", "confidence"},
	},
}

// Extract forces the extract_location function call. Arguments that do not decode fall back to
// the message content and then to extraction.Default; only transport failures are errors.
func (c *Client) Extract(ctx context.Context, text string) (model.Location, error) {
	req := chatRequest{
		Model: c.chatModel,
		Messages: []chatMessage{
			{Role: "system", Content: extractSystemPrompt},
			{Role: "user", Content: text},
		},
		Functions:    []functionDef{locationFunction},
		FunctionCall: functionCallChoice{Name: extractFunctionName},
		Temperature:  0,
	}

	var resp chatResponse
	if err := c.http.DoJSON(ctx, http.MethodPost, "/chat/completions", req, &resp); err != nil {
		return model.Location{}, fmt.Errorf("create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return extraction.Default(), nil
	}

	msg := resp.Choices[0].Message
	if msg.FunctionCall != nil && strings.TrimSpace(msg.FunctionCall.Arguments) != "" {
		return extraction.Decode(msg.FunctionCall.Arguments), nil
	}
	return extraction.Decode(msg.Content), nil
}

type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	var resp embeddingResponse
	req := embeddingRequest{Model: c.embeddingModel, Input: text}
	if err := c.http.DoJSON(ctx, http.MethodPost, "/embeddings", req, &resp); err != nil {
		return nil, fmt.Errorf("create embedding: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("create embedding: %w", ErrEmptyResponse)
	}
	return resp.Data[0].Embedding, nil
}
