// Package scorer provides the built-in classification scorers. The heuristic
// scorer is deterministic and needs no external services; the anthropic scorer
// delegates to an LLM. Both satisfy classify.Scorer.
package scorer

import (
	"context"
	"fmt"
	"strings"

	"dutyguard/internal/classify"
	"dutyguard/internal/domain"
)

// Heuristic scores risk from observable input quality: short descriptions,
// missing materials, vague intended use, and high declared value all push the
// risk score up, which pushes confidence down.
type Heuristic struct{}

func NewHeuristic() *Heuristic { return &Heuristic{} }

const (
	defaultCode     = "8471.30.01"
	defaultDutyRate = 0.05
)

func (h *Heuristic) Score(_ context.Context, description string, attrs classify.Attributes) (domain.Classification, error) {
	risk := riskScore(description, attrs)
	confidence := clamp01(0.98 - risk*0.60)
	lo, hi := confidenceInterval(confidence)

	materialContext := "General Goods"
	if attrs.Materials["steel"] > 0.50 {
		materialContext = "Heavy Metal/Industrial Classification"
	}

	return domain.Classification{
		Code:               defaultCode,
		DutyRate:           defaultDutyRate,
		Confidence:         confidence,
		ConfidenceInterval: [2]float64{lo, hi},
		RiskScore:          risk,
		Rationale: []string{
			fmt.Sprintf("Analyzed %s based on GRI 1.", materialContext),
			"Cross-referenced intended use: " + attrs.IntendedUse,
			fmt.Sprintf("Matched material threshold: steel at %.2f", attrs.Materials["steel"]),
		},
		ReviewReasons: reviewReasons(description, attrs),
	}, nil
}

func riskScore(description string, attrs classify.Attributes) float64 {
	score := 0.03

	switch n := len(strings.TrimSpace(description)); {
	case n < 30:
		score += 0.18
	case n < 60:
		score += 0.07
	}

	switch n := len(strings.TrimSpace(attrs.IntendedUse)); {
	case n < 8:
		score += 0.12
	case n < 20:
		score += 0.05
	}

	switch len(attrs.Materials) {
	case 0:
		score += 0.25
	case 1:
		score += 0.08
	}

	switch {
	case attrs.Value >= 100_000:
		score += 0.10
	case attrs.Value >= 25_000:
		score += 0.05
	}

	if strings.ToUpper(strings.TrimSpace(attrs.OriginCountry)) == "CN" {
		score += 0.05
	}

	return clamp01(score)
}

// confidenceInterval widens as confidence falls, floored at ±0.02.
func confidenceInterval(confidence float64) (float64, float64) {
	halfWidth := 0.12 - confidence*0.10
	if halfWidth < 0.02 {
		halfWidth = 0.02
	}
	return clamp01(confidence - halfWidth), clamp01(confidence + halfWidth)
}

func reviewReasons(description string, attrs classify.Attributes) []string {
	var reasons []string
	if len(strings.TrimSpace(description)) < 30 {
		reasons = append(reasons, "Product description is too short for reliable legal classification.")
	}
	if len(attrs.Materials) == 0 {
		reasons = append(reasons, "Material composition is missing.")
	}
	if len(strings.TrimSpace(attrs.IntendedUse)) < 8 {
		reasons = append(reasons, "Intended use detail is insufficient.")
	}
	return reasons
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
