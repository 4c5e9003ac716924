package ai

import (
	"fmt"
	"strings"

	"github.com/sharadbhat/chartsage/pkg/models"
	"github.com/sharadbhat/chartsage/pkg/timeframe"
)

// BuildPrompt constructs the instruction text sent alongside the chart image.
// Prior results give the model higher-timeframe context; the response format
// is pinned down so the lenient parser has a stable shape to extract.
func BuildPrompt(prior []models.ChartResult) string {
	var b strings.Builder
	b.WriteString("You are a technical chart analyst. Identify the chart's timeframe (one of ")
	b.WriteString(strings.Join(timeframe.All, ", "))
	b.WriteString(") and give a trading read.\n")

	if len(prior) > 0 {
		b.WriteString("Previously stored analyses for this user:\n")
		for _, r := range prior {
			fmt.Fprintf(&b, "- %s: %s (confidence %.2f, %s)\n",
				r.Timeframe, r.Analysis.Recommendation, r.Analysis.Confidence,
				r.CreatedAt.UTC().Format("2006-01-02 15:04"))
		}
	}

	b.WriteString(`Respond with a single JSON object:
{"timeframe": "...", "recommendation": "buy|sell|hold", "confidence": 0.0, "reasoning": ["..."], "needs_fresher_tf": []}
List in needs_fresher_tf any timeframes whose stored analysis above is too old to rely on.`)
	return b.String()
}
