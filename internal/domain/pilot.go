package domain

import "time"

// PilotEntry is one historical import line submitted for recovery analysis.
// Entries are immutable once onboarded; order within a batch is the tie-break
// of last resort for prioritization.
type PilotEntry struct {
	SKU               string  `json:"sku"`
	Description       string  `json:"description"`
	ImportValue       float64 `json:"import_value"`
	CurrentDutyRate   float64 `json:"current_duty_rate"`
	SuggestedDutyRate float64 `json:"suggested_duty_rate"`
	Confidence        float64 `json:"confidence"`
}

// PotentialRecovery is the modeled overpayment recoverable from a duty-rate
// correction. Never negative: a suggested rate above the current rate yields
// zero, not a liability.
func (e PilotEntry) PotentialRecovery() float64 {
	delta := e.CurrentDutyRate - e.SuggestedDutyRate
	if delta < 0 {
		delta = 0
	}
	return e.ImportValue * delta
}

// PilotBatch is a customer's set of entries accepted in one onboarding.
// Entries keep their ingestion order and are never edited in place.
type PilotBatch struct {
	ID           string       `json:"id"`
	CustomerName string       `json:"customer_name"`
	Entries      []PilotEntry `json:"entries"`
	CreatedAt    time.Time    `json:"created_at"`
}

// Opportunity is a prioritized view over one entry.
type Opportunity struct {
	PilotEntry
	PotentialRecovery float64 `json:"potential_recovery"`
}
