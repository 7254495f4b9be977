package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/covera/internal/common"
)

// ProviderType represents the AI provider type
type ProviderType string

const (
	// ProviderGemini uses Google Gemini API
	ProviderGemini ProviderType = "gemini"
	// ProviderClaude uses Anthropic Claude API
	ProviderClaude ProviderType = "claude"
)

// ContentRequest is a provider-agnostic single-turn generation request
type ContentRequest struct {
	SystemInstruction string
	Prompt            string
	Temperature       float32
	MaxTokens         int
	JSONOutput        bool // Ask the provider for a bare JSON object
}

// ContentResponse is a provider-agnostic generation response
type ContentResponse struct {
	Text     string
	Provider ProviderType
	Model    string
}

// Provider generates text from a prompt
type Provider interface {
	GenerateContent(ctx context.Context, request *ContentRequest) (*ContentResponse, error)
	GetProviderType() ProviderType
	Close() error
}

// NewProvider builds the provider named by classifier.provider
func NewProvider(ctx context.Context, config *common.Config, logger arbor.ILogger) (Provider, error) {
	switch ProviderType(strings.ToLower(config.Classifier.Provider)) {
	case ProviderClaude:
		return NewClaudeProvider(&config.Claude, logger)
	case ProviderGemini:
		return NewGeminiProvider(ctx, &config.Gemini, logger)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", config.Classifier.Provider)
	}
}

func parseTimeout(raw string, fallback time.Duration) (time.Duration, error) {
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout duration '%s': %w", raw, err)
	}
	return d, nil
}
