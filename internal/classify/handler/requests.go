package handler

import (
	"strings"

	"dutyguard/internal/classify"
	dErrors "dutyguard/pkg/domain-errors"
)

// ClassifyRequest is the HTTP request body for POST /api/classify.
type ClassifyRequest struct {
	Description   string              `json:"description"`
	Attributes    classify.Attributes `json:"attributes"`
	RequestReview bool                `json:"request_review,omitempty"`
	PriorTicketID string              `json:"prior_ticket_id,omitempty"`
}

// Validate checks the request at the trust boundary.
func (r *ClassifyRequest) Validate() error {
	r.Description = strings.TrimSpace(r.Description)
	if r.Description == "" {
		return dErrors.New(dErrors.CodeValidation, "description is required").WithField("description")
	}
	if len(r.Description) > 10_000 {
		return dErrors.New(dErrors.CodeValidation, "description must be at most 10000 characters").WithField("description")
	}
	r.PriorTicketID = strings.TrimSpace(r.PriorTicketID)
	return nil
}

// ToDomain converts the validated body to a service request.
func (r *ClassifyRequest) ToDomain() classify.Request {
	return classify.Request{
		Description:   r.Description,
		Attributes:    r.Attributes,
		RequestReview: r.RequestReview,
		PriorTicketID: r.PriorTicketID,
	}
}
