package scorer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"dutyguard/internal/classify"
)

func TestHeuristicDeterminism(t *testing.T) {
	h := NewHeuristic()
	attrs := classify.Attributes{
		Materials:   map[string]float64{"steel": 0.6, "plastic": 0.4},
		Value:       50_000,
		IntendedUse: "industrial telemetry data collection",
	}
	desc := "ruggedized field data collector with steel enclosure and cellular modem"

	first, err := h.Score(context.Background(), desc, attrs)
	require.NoError(t, err)
	second, err := h.Score(context.Background(), desc, attrs)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestHeuristicRiskSignals(t *testing.T) {
	h := NewHeuristic()
	ctx := context.Background()

	t.Run("sparse input scores riskier than detailed input", func(t *testing.T) {
		sparse, err := h.Score(ctx, "widget", classify.Attributes{})
		require.NoError(t, err)
		detailed, err := h.Score(ctx,
			"portable automatic data processing machine with integrated display and detailed bill of materials",
			classify.Attributes{
				Materials:   map[string]float64{"aluminium": 0.5, "glass": 0.2, "plastic": 0.3},
				IntendedUse: "general purpose office computing",
			})
		require.NoError(t, err)
		require.Greater(t, sparse.RiskScore, detailed.RiskScore)
		require.Less(t, sparse.Confidence, detailed.Confidence)
	})

	t.Run("missing materials is flagged as a review reason", func(t *testing.T) {
		got, err := h.Score(ctx, "a sufficiently long description of the imported product", classify.Attributes{
			IntendedUse: "household decoration",
		})
		require.NoError(t, err)
		require.Contains(t, got.ReviewReasons, "Material composition is missing.")
	})

	t.Run("scores stay in range", func(t *testing.T) {
		got, err := h.Score(ctx, "x", classify.Attributes{Value: 1_000_000, OriginCountry: "cn"})
		require.NoError(t, err)
		require.GreaterOrEqual(t, got.RiskScore, 0.0)
		require.LessOrEqual(t, got.RiskScore, 1.0)
		require.GreaterOrEqual(t, got.Confidence, 0.0)
		require.LessOrEqual(t, got.Confidence, 1.0)
		require.LessOrEqual(t, got.ConfidenceInterval[0], got.Confidence)
		require.GreaterOrEqual(t, got.ConfidenceInterval[1], got.Confidence)
	})
}
