package scorer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"dutyguard/internal/classify"
	"dutyguard/internal/domain"
)

const anthropicSystemPrompt = `You are a customs tariff classification assistant.
Given a product description and attributes, respond with ONLY a JSON object:
{"code": "<HTS code>", "duty_rate": <fraction 0-1>, "confidence": <0-1>, "risk_score": <0-1>, "rationale": ["..."], "review_reasons": ["..."]}
Leave review_reasons empty when the input supports a confident classification.
Do not wrap the JSON in markdown fences.`

// Anthropic scores classifications through the Messages API. The model is
// asked for strict JSON; anything else fails the score rather than guessing.
type Anthropic struct {
	client anthropic.Client
	model  string
}

func NewAnthropic(apiKey, model string) *Anthropic {
	return &Anthropic{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

type anthropicScore struct {
	Code          string   `json:"code"`
	DutyRate      float64  `json:"duty_rate"`
	Confidence    float64  `json:"confidence"`
	RiskScore     float64  `json:"risk_score"`
	Rationale     []string `json:"rationale"`
	ReviewReasons []string `json:"review_reasons"`
}

func (a *Anthropic) Score(ctx context.Context, description string, attrs classify.Attributes) (domain.Classification, error) {
	userPrompt := buildPrompt(description, attrs)

	message, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: 1024,
		System: []anthropic.TextBlockParam{
			{Text: anthropicSystemPrompt, CacheControl: anthropic.NewCacheControlEphemeralParam()},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return domain.Classification{}, fmt.Errorf("anthropic scorer: %w", err)
	}

	var text string
	for _, block := range message.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return domain.Classification{}, fmt.Errorf("anthropic scorer: no text content in response")
	}

	var score anthropicScore
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &score); err != nil {
		return domain.Classification{}, fmt.Errorf("anthropic scorer: decode response: %w", err)
	}

	confidence := clamp01(score.Confidence)
	lo, hi := confidenceInterval(confidence)
	return domain.Classification{
		Code:               score.Code,
		DutyRate:           clamp01(score.DutyRate),
		Confidence:         confidence,
		ConfidenceInterval: [2]float64{lo, hi},
		RiskScore:          clamp01(score.RiskScore),
		Rationale:          score.Rationale,
		ReviewReasons:      score.ReviewReasons,
	}, nil
}

func buildPrompt(description string, attrs classify.Attributes) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Description: %s\n", description)
	if attrs.Name != "" {
		fmt.Fprintf(&b, "Product name: %s\n", attrs.Name)
	}
	if len(attrs.Materials) > 0 {
		fmt.Fprintf(&b, "Materials (fraction by weight): %v\n", attrs.Materials)
	}
	if attrs.Value > 0 {
		fmt.Fprintf(&b, "Declared value: %.2f\n", attrs.Value)
	}
	if attrs.OriginCountry != "" {
		fmt.Fprintf(&b, "Origin: %s\n", attrs.OriginCountry)
	}
	if attrs.DestinationCountry != "" {
		fmt.Fprintf(&b, "Destination: %s\n", attrs.DestinationCountry)
	}
	if attrs.IntendedUse != "" {
		fmt.Fprintf(&b, "Intended use: %s\n", attrs.IntendedUse)
	}
	return b.String()
}
