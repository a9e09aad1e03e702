package domain

import "time"

// TicketStatus is the review ticket state. Tickets start open and move to
// exactly one terminal state; terminal states are never left.
type TicketStatus string

const (
	TicketOpen     TicketStatus = "open"
	TicketApproved TicketStatus = "approved"
	TicketRejected TicketStatus = "rejected"
)

// IsTerminal reports whether the status permits no further transitions.
func (s TicketStatus) IsTerminal() bool {
	return s == TicketApproved || s == TicketRejected
}

// DecisionOutcome is a reviewer's verdict on an open ticket.
type DecisionOutcome string

const (
	OutcomeApprove DecisionOutcome = "approve"
	OutcomeReject  DecisionOutcome = "reject"
)

// ParseDecisionOutcome validates reviewer input at the trust boundary.
func ParseDecisionOutcome(s string) (DecisionOutcome, bool) {
	switch DecisionOutcome(s) {
	case OutcomeApprove, OutcomeReject:
		return DecisionOutcome(s), true
	}
	return "", false
}

// Status returns the terminal status produced by applying the outcome.
func (o DecisionOutcome) Status() TicketStatus {
	if o == OutcomeApprove {
		return TicketApproved
	}
	return TicketRejected
}

// Classification is the scored result attached to a ticket. Duty rates are
// fractions in [0,1]; ConfidenceInterval is [low, high] around Confidence.
type Classification struct {
	Code               string     `json:"code"`
	DutyRate           float64    `json:"duty_rate"`
	Confidence         float64    `json:"confidence"`
	ConfidenceInterval [2]float64 `json:"confidence_interval"`
	RiskScore          float64    `json:"risk_score"`
	Rationale          []string   `json:"rationale"`
	ReviewReasons      []string   `json:"review_reasons,omitempty"`
}

// ReviewTicket is owned exclusively by the review lifecycle; nothing outside
// it mutates a ticket after creation.
type ReviewTicket struct {
	ID                string         `json:"id"`
	Classification    Classification `json:"classification"`
	Status            TicketStatus   `json:"status"`
	DecisionRationale string         `json:"decision_rationale,omitempty"`
	Reviewer          string         `json:"reviewer,omitempty"`
	// PriorTicketID links a resubmission to the rejected ticket it supersedes.
	PriorTicketID string     `json:"prior_ticket_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	DecidedAt     *time.Time `json:"decided_at,omitempty"`
}
