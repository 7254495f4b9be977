package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/covera/internal/common"
)

// ClaudeProvider generates content with the Anthropic Messages API
type ClaudeProvider struct {
	config    *common.ClaudeConfig
	logger    arbor.ILogger
	client    anthropic.Client
	timeout   time.Duration
	maxTokens int
	retry     *RetryConfig
}

// NewClaudeProvider creates a Claude provider. Extra request options are passed to the SDK client.
func NewClaudeProvider(config *common.ClaudeConfig, logger arbor.ILogger, opts ...option.RequestOption) (*ClaudeProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required for the claude classifier (set ANTHROPIC_API_KEY, COVERA_CLAUDE_API_KEY, or claude.api_key)")
	}
	if config.Model == "" {
		config.Model = "claude-haiku-4-5"
	}

	timeout, err := parseTimeout(config.Timeout, 60*time.Second)
	if err != nil {
		return nil, err
	}

	maxTokens := config.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	clientOpts := append([]option.RequestOption{option.WithAPIKey(config.APIKey)}, opts...)
	p := &ClaudeProvider{
		config:    config,
		logger:    logger,
		client:    anthropic.NewClient(clientOpts...),
		timeout:   timeout,
		maxTokens: maxTokens,
		retry:     NewDefaultRetryConfig(),
	}

	logger.Debug().
		Str("model", config.Model).
		Dur("timeout", timeout).
		Int("max_tokens", maxTokens).
		Msg("Claude provider initialized")

	return p, nil
}

func (p *ClaudeProvider) GetProviderType() ProviderType { return ProviderClaude }

func (p *ClaudeProvider) Close() error { return nil }

// GenerateContent sends one user message and returns the concatenated text blocks
func (p *ClaudeProvider) GenerateContent(ctx context.Context, request *ContentRequest) (*ContentResponse, error) {
	if strings.TrimSpace(request.Prompt) == "" {
		return nil, fmt.Errorf("prompt cannot be empty")
	}

	maxTokens := request.MaxTokens
	if maxTokens <= 0 {
		maxTokens = p.maxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.config.Model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(request.Prompt)),
		},
	}

	temp := request.Temperature
	if temp <= 0 {
		temp = p.config.Temperature
	}
	if temp > 0 {
		params.Temperature = anthropic.Float(float64(temp))
	}

	system := request.SystemInstruction
	if request.JSONOutput {
		system = strings.TrimSpace(system + "\nRespond with a single JSON object and nothing else.")
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var resp *anthropic.Message
	err := p.retry.Do(callCtx, p.logger, "claude", func() error {
		var apiErr error
		resp, apiErr = p.client.Messages.New(callCtx, params)
		return apiErr
	})
	if err != nil {
		return nil, fmt.Errorf("Claude API call failed: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("empty response from Claude API")
	}

	return &ContentResponse{
		Text:     text.String(),
		Provider: ProviderClaude,
		Model:    p.config.Model,
	}, nil
}
