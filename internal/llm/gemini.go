package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiClient implements Client for the Gemini API
type GeminiClient struct {
	client     *genai.Client
	config     *Config
	httpClient *http.Client
}

// NewGeminiClient creates a new Gemini client
func NewGeminiClient(ctx context.Context, config *Config) (*GeminiClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(config.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{
		client:     client,
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}, nil
}

// CompleteJSON generates JSON content for req using the model of its tier
func (c *GeminiClient) CompleteJSON(ctx context.Context, req Request) (string, error) {
	modelName := c.config.GetModel(req.Tier)
	if modelName == "" {
		return "", fmt.Errorf("no model configured for tier %s", req.Tier)
	}

	model := c.client.GenerativeModel(modelName)
	model.SetTemperature(c.config.Temperature)
	model.ResponseMIMEType = "application/json"
	if req.SystemPrompt != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.SystemPrompt)},
		}
	}

	parts := make([]genai.Part, 0, len(req.Attachments)+1)
	for _, att := range req.Attachments {
		data, mimeType, err := loadAttachment(ctx, c.httpClient, att)
		if err != nil {
			return "", fmt.Errorf("%s: %w", req.Name, err)
		}
		parts = append(parts, genai.Blob{MIMEType: mimeType, Data: data})
	}
	parts = append(parts, genai.Text(req.UserContent))

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", classify(req.Name, err)
	}

	return extractGeminiText(resp)
}

// Close releases resources held by the client
func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// extractGeminiText extracts text from Gemini API response
func extractGeminiText(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("no content in response")
	}

	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}

	if len(parts) == 0 {
		return "", fmt.Errorf("no text parts in response")
	}

	return strings.Join(parts, ""), nil
}
