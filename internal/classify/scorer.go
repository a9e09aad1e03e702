package classify

import (
	"context"

	"dutyguard/internal/domain"
)

// Attributes are the optional product facts a caller can supply beside the
// description. All fields may be zero; the scorer treats missing detail as
// added risk.
type Attributes struct {
	Name               string             `json:"name,omitempty"`
	Materials          map[string]float64 `json:"materials,omitempty"`
	Value              float64            `json:"value,omitempty"`
	OriginCountry      string             `json:"origin_country,omitempty"`
	DestinationCountry string             `json:"destination_country,omitempty"`
	IntendedUse        string             `json:"intended_use,omitempty"`
}

// Scorer is the external scoring collaborator: text in, scored classification
// out. The router treats it as opaque and only relies on the output contract.
type Scorer interface {
	Score(ctx context.Context, description string, attrs Attributes) (domain.Classification, error)
}
