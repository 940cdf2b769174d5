package classifier

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sanjai-web/Micro-Plastic-Detection/internal/app/risk"
	"github.com/sanjai-web/Micro-Plastic-Detection/internal/domain"
)

// BuildPrompt renders the classification request for one reading. The band
// guidance comes from the local policy so both paths agree.
func BuildPrompt(level float64, cat domain.Category) string {
	var b strings.Builder
	b.WriteString("You are a medical AI assistant analyzing microplastic contamination levels.\n\n")
	fmt.Fprintf(&b, "Detection Type: %s Sample\n", cat.DisplayName())
	fmt.Fprintf(&b, "Microplastic Concentration: %s%%\n\n", strconv.FormatFloat(level, 'f', -1, 64))
	b.WriteString("Reply with a single JSON object in this format:\n")
	b.WriteString("{\n")
	b.WriteString("  \"riskLevel\": \"low|medium|high|critical\",\n")
	b.WriteString("  \"summary\": \"Brief 2-3 sentence summary of the findings\",\n")
	b.WriteString("  \"healthImpact\": \"Explanation of potential health or environmental impacts\",\n")
	b.WriteString("  \"remedies\": [\"Specific actionable recommendation\", \"...\"],\n")
	b.WriteString("  \"nextTestDays\": <whole number of days until the next test, 1-365>\n")
	b.WriteString("}\n\n")
	b.WriteString("Base your analysis on these guidelines:\n")
	for _, band := range risk.Bands() {
		fmt.Fprintf(&b, "- %g-%g%%: %s risk, retest within %d days\n", band.Min, band.Max, titleTier(band.Tier), band.RetestDays)
	}
	fmt.Fprintf(&b, "\nProvide practical, actionable remedies specific to %s contamination.", cat)
	return b.String()
}

func titleTier(t domain.RiskTier) string {
	s := string(t)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
