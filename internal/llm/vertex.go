package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"cloud.google.com/go/vertexai/genai"
)

// VertexClient implements Client for Gemini models served by Vertex AI. Credentials
// come from Application Default Credentials.
type VertexClient struct {
	client     *genai.Client
	config     *Config
	httpClient *http.Client
}

// NewVertexClient creates a new Vertex AI client
func NewVertexClient(ctx context.Context, config *Config) (*VertexClient, error) {
	if config.Project == "" || config.Location == "" {
		return nil, fmt.Errorf("NewVertexClient: project and location cannot be empty")
	}

	client, err := genai.NewClient(ctx, config.Project, config.Location)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	return &VertexClient{
		client:     client,
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}, nil
}

// CompleteJSON generates JSON content for req. gs:// attachments are passed by URI.
func (c *VertexClient) CompleteJSON(ctx context.Context, req Request) (string, error) {
	modelName := c.config.GetModel(req.Tier)
	if modelName == "" {
		return "", fmt.Errorf("no model configured for tier %s", req.Tier)
	}

	model := c.client.GenerativeModel(modelName)
	model.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr(c.config.Temperature),
	}
	if req.SystemPrompt != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.SystemPrompt)},
		}
	}

	parts := make([]genai.Part, 0, len(req.Attachments)+1)
	for _, att := range req.Attachments {
		if strings.HasPrefix(att.URL, "gs://") {
			mimeType := att.MIMEType
			if mimeType == "" {
				mimeType = attachmentMIMEType(att, att.URL, "")
			}
			parts = append(parts, genai.FileData{MIMEType: mimeType, FileURI: att.URL})
			continue
		}
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

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("%s: no content in response", req.Name)
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("%s: no text parts in response", req.Name)
	}
	return sb.String(), nil
}

// Close releases resources held by the client
func (c *VertexClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
