package classify

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/covera/internal/common"
	"github.com/ternarybob/covera/internal/interfaces"
	"github.com/ternarybob/covera/internal/services/llm"
)

// NewClassifier builds the classifier named by classifier.provider. The returned
// provider is nil for the rules classifier and must be closed by the caller otherwise.
func NewClassifier(ctx context.Context, config *common.Config, profiles []string, logger arbor.ILogger) (interfaces.Classifier, llm.Provider, error) {
	rules := NewRuleClassifier(logger)

	switch strings.ToLower(config.Classifier.Provider) {
	case "", "rules":
		logger.Info().Str("provider", "rules").Msg("Classifier ready")
		return rules, nil, nil
	case string(llm.ProviderClaude), string(llm.ProviderGemini):
		provider, err := llm.NewProvider(ctx, config, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create classifier provider: %w", err)
		}
		logger.Info().Str("provider", string(provider.GetProviderType())).Msg("Classifier ready")
		return NewLLMClassifier(provider, rules, profiles, logger), provider, nil
	default:
		return nil, nil, fmt.Errorf("unknown classifier provider %q", config.Classifier.Provider)
	}
}
