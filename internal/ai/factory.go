package ai

import (
	"fmt"

	"github.com/sharadbhat/chartsage/internal/ai/anthropic"
	"github.com/sharadbhat/chartsage/internal/ai/mock"
	"github.com/sharadbhat/chartsage/internal/ai/openai"
	"github.com/sharadbhat/chartsage/internal/config"
	"github.com/sharadbhat/chartsage/pkg/models"
)

// NewProvider constructs the appropriate chart provider based on config.
// Called once at server startup.
func NewProvider(cfg config.AIConfig) (models.ChartProvider, error) {
	switch cfg.Provider {
	case "openai":
		return openai.NewProvider(cfg.OpenAI), nil
	case "anthropic":
		return anthropic.NewProvider(cfg.Anthropic), nil
	case "mock":
		return mock.NewMockProvider(), nil
	default:
		return nil, fmt.Errorf("unknown AI provider %q: must be one of openai, anthropic, mock", cfg.Provider)
	}
}
