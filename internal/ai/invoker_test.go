package ai

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sharadbhat/chartsage/internal/ai/mock"
	"github.com/sharadbhat/chartsage/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvoke_Success(t *testing.T) {
	inv := NewInvoker(mock.NewMockProvider())

	out := inv.Invoke(context.Background(), models.ChartRequest{Image: []byte("png")}, time.Second)
	require.Equal(t, models.OutcomeSucceeded, out.Kind)
	assert.Equal(t, "H4", out.Analysis.Timeframe)
	assert.Equal(t, "hold", out.Analysis.Recommendation)
	assert.InDelta(t, 0.7, out.Analysis.Confidence, 0.001)
}

func TestInvoke_NormalizesCasing(t *testing.T) {
	provider := &mock.MockProvider{
		Name_: "mock",
		AnalyzeChartFunc: func(context.Context, models.ChartRequest) (string, error) {
			return `{"timeframe": " h4 ", "recommendation": "BUY", "confidence": 0.9}`, nil
		},
	}
	inv := NewInvoker(provider)

	out := inv.Invoke(context.Background(), models.ChartRequest{}, time.Second)
	require.Equal(t, models.OutcomeSucceeded, out.Kind)
	assert.Equal(t, "H4", out.Analysis.Timeframe)
	assert.Equal(t, "buy", out.Analysis.Recommendation)
}

func TestInvoke_ClampsConfidence(t *testing.T) {
	provider := &mock.MockProvider{
		Name_: "mock",
		AnalyzeChartFunc: func(context.Context, models.ChartRequest) (string, error) {
			return `{"timeframe": "H4", "recommendation": "sell", "confidence": 7.5}`, nil
		},
	}
	inv := NewInvoker(provider)

	out := inv.Invoke(context.Background(), models.ChartRequest{}, time.Second)
	require.Equal(t, models.OutcomeSucceeded, out.Kind)
	assert.Equal(t, 1.0, out.Analysis.Confidence)
}

func TestInvoke_Timeout(t *testing.T) {
	inv := NewInvoker(mock.NewTimeoutProvider())

	start := time.Now()
	out := inv.Invoke(context.Background(), models.ChartRequest{}, 50*time.Millisecond)
	elapsed := time.Since(start)

	assert.Equal(t, models.OutcomeTimedOut, out.Kind)
	assert.Less(t, elapsed, time.Second, "invoke must return promptly at the deadline")
}

func TestInvoke_RateLimited(t *testing.T) {
	inv := NewInvoker(mock.NewFailingProvider(models.ErrRateLimited))

	out := inv.Invoke(context.Background(), models.ChartRequest{}, time.Second)
	assert.Equal(t, models.OutcomeRateLimited, out.Kind)
	assert.ErrorIs(t, out.Err, models.ErrRateLimited)
}

func TestInvoke_ServerError(t *testing.T) {
	inv := NewInvoker(mock.NewFailingProvider(models.ErrServerError))

	out := inv.Invoke(context.Background(), models.ChartRequest{}, time.Second)
	assert.Equal(t, models.OutcomeServerError, out.Kind)
}

func TestInvoke_WrappedSentinelStillClassified(t *testing.T) {
	wrapped := errors.New("outer: " + models.ErrRateLimited.Error())
	// A plain string match must NOT classify; only errors.Is chains do.
	out := NewInvoker(mock.NewFailingProvider(wrapped)).Invoke(context.Background(), models.ChartRequest{}, time.Second)
	assert.Equal(t, models.OutcomeFailed, out.Kind)
}

func TestInvoke_MalformedResponse(t *testing.T) {
	provider := &mock.MockProvider{
		Name_: "mock",
		AnalyzeChartFunc: func(context.Context, models.ChartRequest) (string, error) {
			return "no json here, just vibes", nil
		},
	}
	inv := NewInvoker(provider)

	out := inv.Invoke(context.Background(), models.ChartRequest{}, time.Second)
	assert.Equal(t, models.OutcomeMalformed, out.Kind)
	assert.ErrorIs(t, out.Err, ErrMalformedResponse)
}

func TestInvoke_UnknownTimeframeIsMalformed(t *testing.T) {
	provider := &mock.MockProvider{
		Name_: "mock",
		AnalyzeChartFunc: func(context.Context, models.ChartRequest) (string, error) {
			return `{"timeframe": "H7", "recommendation": "buy", "confidence": 0.5}`, nil
		},
	}
	out := NewInvoker(provider).Invoke(context.Background(), models.ChartRequest{}, time.Second)
	assert.Equal(t, models.OutcomeMalformed, out.Kind)
}

func TestInvoke_UnknownRecommendationIsMalformed(t *testing.T) {
	provider := &mock.MockProvider{
		Name_: "mock",
		AnalyzeChartFunc: func(context.Context, models.ChartRequest) (string, error) {
			return `{"timeframe": "H4", "recommendation": "yolo", "confidence": 0.5}`, nil
		},
	}
	out := NewInvoker(provider).Invoke(context.Background(), models.ChartRequest{}, time.Second)
	assert.Equal(t, models.OutcomeMalformed, out.Kind)
}

func TestInvoke_OtherErrorsAreFailed(t *testing.T) {
	inv := NewInvoker(mock.NewFailingProvider(errors.New("invalid api key")))

	out := inv.Invoke(context.Background(), models.ChartRequest{}, time.Second)
	assert.Equal(t, models.OutcomeFailed, out.Kind)
	assert.False(t, out.Kind.Retryable())
}

func TestInvoke_FillsPromptWithPriorContext(t *testing.T) {
	var gotPrompt string
	provider := &mock.MockProvider{
		Name_: "mock",
		AnalyzeChartFunc: func(_ context.Context, req models.ChartRequest) (string, error) {
			gotPrompt = req.Prompt
			return `{"timeframe": "H4", "recommendation": "hold", "confidence": 0.5}`, nil
		},
	}
	inv := NewInvoker(provider)

	prior := []models.ChartResult{{
		UserID:    "user-1",
		Timeframe: "D1",
		Analysis:  models.ChartAnalysis{Timeframe: "D1", Recommendation: "buy", Confidence: 0.8},
		CreatedAt: time.Now().UTC(),
	}}
	out := inv.Invoke(context.Background(), models.ChartRequest{PriorResults: prior}, time.Second)

	require.Equal(t, models.OutcomeSucceeded, out.Kind)
	require.NotEmpty(t, gotPrompt)
	assert.True(t, strings.Contains(gotPrompt, "D1"), "prompt should mention prior timeframes")
}

func TestOutcomeKind_Strings(t *testing.T) {
	cases := map[models.OutcomeKind]string{
		models.OutcomeSucceeded:   "succeeded",
		models.OutcomeTimedOut:    "timed_out",
		models.OutcomeRateLimited: "rate_limited",
		models.OutcomeServerError: "server_error",
		models.OutcomeMalformed:   "malformed_response",
		models.OutcomeFailed:      "failed",
	}
	for kind, want := range cases {
		assert.Equal(t, want, kind.String())
	}
}
