// Package mock provides a scriptable ChartProvider for tests and local runs.
package mock

import (
	"context"

	"github.com/sharadbhat/chartsage/pkg/models"
)

// MockProvider satisfies models.ChartProvider for testing.
type MockProvider struct {
	Name_            string
	AnalyzeChartFunc func(ctx context.Context, req models.ChartRequest) (string, error)
}

func (m *MockProvider) Name() string { return m.Name_ }

func (m *MockProvider) AnalyzeChart(ctx context.Context, req models.ChartRequest) (string, error) {
	if m.AnalyzeChartFunc != nil {
		return m.AnalyzeChartFunc(ctx, req)
	}
	return "", nil
}

// NewMockProvider returns a MockProvider with a sensible default response.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock",
		AnalyzeChartFunc: func(_ context.Context, _ models.ChartRequest) (string, error) {
			return `{"timeframe": "H4", "recommendation": "hold", "confidence": 0.7,
				"reasoning": ["mock analysis for testing"]}`, nil
		},
	}
}

// NewFailingProvider returns a MockProvider that always returns the given error.
func NewFailingProvider(err error) *MockProvider {
	return &MockProvider{
		Name_: "mock-failing",
		AnalyzeChartFunc: func(_ context.Context, _ models.ChartRequest) (string, error) {
			return "", err
		},
	}
}

// NewTimeoutProvider returns a MockProvider that blocks until the context is
// cancelled, mimicking an upstream that never answers within the deadline.
func NewTimeoutProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock-timeout",
		AnalyzeChartFunc: func(ctx context.Context, _ models.ChartRequest) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}
}

// Compile-time check that MockProvider implements ChartProvider.
var _ models.ChartProvider = (*MockProvider)(nil)
