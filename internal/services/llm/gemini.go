package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"google.golang.org/genai"

	"github.com/ternarybob/covera/internal/common"
)

// GeminiProvider generates content with the Gemini API
type GeminiProvider struct {
	config  *common.GeminiConfig
	logger  arbor.ILogger
	client  *genai.Client
	timeout time.Duration
	retry   *RetryConfig
}

func NewGeminiProvider(ctx context.Context, config *common.GeminiConfig, logger arbor.ILogger) (*GeminiProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Google API key is required for the gemini classifier (set GOOGLE_API_KEY, COVERA_GEMINI_API_KEY, or gemini.api_key)")
	}
	if config.Model == "" {
		config.Model = "gemini-2.5-flash"
	}

	timeout, err := parseTimeout(config.Timeout, 60*time.Second)
	if err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	logger.Debug().
		Str("model", config.Model).
		Dur("timeout", timeout).
		Msg("Gemini provider initialized")

	return &GeminiProvider{
		config:  config,
		logger:  logger,
		client:  client,
		timeout: timeout,
		retry:   NewDefaultRetryConfig(),
	}, nil
}

func (p *GeminiProvider) GetProviderType() ProviderType { return ProviderGemini }

func (p *GeminiProvider) Close() error {
	p.client = nil
	return nil
}

// GenerateContent sends one user turn and returns the response text
func (p *GeminiProvider) GenerateContent(ctx context.Context, request *ContentRequest) (*ContentResponse, error) {
	if strings.TrimSpace(request.Prompt) == "" {
		return nil, fmt.Errorf("prompt cannot be empty")
	}
	if p.client == nil {
		return nil, fmt.Errorf("Gemini provider is closed")
	}

	temp := request.Temperature
	if temp <= 0 {
		temp = p.config.Temperature
	}
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(temp),
	}
	if request.SystemInstruction != "" {
		config.SystemInstruction = genai.NewContentFromText(request.SystemInstruction, genai.RoleUser)
	}
	if request.MaxTokens > 0 {
		config.MaxOutputTokens = int32(request.MaxTokens)
	}
	if request.JSONOutput {
		config.ResponseMIMEType = "application/json"
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	contents := []*genai.Content{genai.NewContentFromText(request.Prompt, genai.RoleUser)}

	var resp *genai.GenerateContentResponse
	err := p.retry.Do(callCtx, p.logger, "gemini", func() error {
		var apiErr error
		resp, apiErr = p.client.Models.GenerateContent(callCtx, p.config.Model, contents, config)
		return apiErr
	})
	if err != nil {
		return nil, fmt.Errorf("Gemini API call failed: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("empty response from Gemini API")
	}
	text := resp.Text()
	if text == "" {
		return nil, fmt.Errorf("empty text in Gemini response")
	}

	return &ContentResponse{
		Text:     text,
		Provider: ProviderGemini,
		Model:    p.config.Model,
	}, nil
}
