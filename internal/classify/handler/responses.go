package handler

import (
	"dutyguard/internal/classify"
	"dutyguard/internal/domain"
)

// ClassifyResponse is the HTTP response for POST /api/classify.
type ClassifyResponse struct {
	Classification domain.Classification `json:"classification"`
	RequiresReview bool                  `json:"requires_review"`
	TicketID       string                `json:"ticket_id,omitempty"`
}

// FromResult converts a routed classification to an HTTP response.
func FromResult(result classify.Result) ClassifyResponse {
	return ClassifyResponse{
		Classification: result.Classification,
		RequiresReview: result.RequiresReview,
		TicketID:       result.TicketID,
	}
}
