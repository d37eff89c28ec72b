package llm

import (
	"context"
	"fmt"
)

// Attachment is a file sent alongside the prompt, referenced by URL. gs:// URLs are
// passed to Vertex AI by reference; anything else is downloaded and sent inline.
type Attachment struct {
	URL      string
	MIMEType string
}

// Request describes one structured completion.
type Request struct {
	// Name identifies the call site in logs, errors and test stubs (e.g. "parse_cv").
	Name         string
	SystemPrompt string
	UserContent  string
	Attachments  []Attachment
	// Schema is the name of the embedded JSON Schema the response must satisfy.
	Schema string
	Tier   ModelTier
}

// Client is an abstraction over LLM providers
type Client interface {
	// CompleteJSON returns the raw JSON text produced for req. Unavailability is
	// reported as *TransientError.
	CompleteJSON(ctx context.Context, req Request) (string, error)
	// Close releases any resources held by the client
	Close() error
}

// NewClient creates a new LLM client based on configuration. The returned client is
// rate limited when config.RequestsPerSecond is set.
func NewClient(ctx context.Context, config *Config) (Client, error) {
	if config == nil {
		config = DefaultConfig()
	}

	var (
		client Client
		err    error
	)
	switch config.Provider {
	case ProviderGemini:
		client, err = NewGeminiClient(ctx, config)
	case ProviderVertex:
		client, err = NewVertexClient(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q", config.Provider)
	}
	if err != nil {
		return nil, err
	}

	if config.RequestsPerSecond > 0 {
		client = NewRateLimited(client, config.RequestsPerSecond, config.Burst)
	}
	return client, nil
}
