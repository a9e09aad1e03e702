// Package summary computes operational metrics on demand from committed store
// state. There are no cached counters to drift: every call aggregates over a
// single consistent snapshot, so ticket counts and recovery sums always agree
// with each other at the returned instant.
package summary

import (
	"context"
	"time"

	"dutyguard/internal/domain"
	"dutyguard/internal/storage"
)

type Service struct {
	store storage.Store
}

func NewService(store storage.Store) *Service {
	return &Service{store: store}
}

// Summary is the read-only operational snapshot.
type Summary struct {
	TicketCounts          map[domain.TicketStatus]int `json:"ticket_counts_by_status"`
	TotalTickets          int                         `json:"total_tickets"`
	AverageTimeToDecision time.Duration               `json:"average_time_to_decision_ns"`
	PacketsGenerated      int                         `json:"packets_generated"`
	TotalRecoveryClaimed  float64                     `json:"total_recovery_claimed"`
	AuditEvents           int64                       `json:"audit_events"`
}

// Summarize reads everything from one store snapshot.
func (s *Service) Summarize(ctx context.Context) (Summary, error) {
	out := Summary{
		TicketCounts: map[domain.TicketStatus]int{
			domain.TicketOpen:     0,
			domain.TicketApproved: 0,
			domain.TicketRejected: 0,
		},
	}

	err := s.store.View(ctx, func(tx storage.ReadTx) error {
		tickets, err := tx.ListTickets(ctx)
		if err != nil {
			return err
		}
		var decided int
		var totalDecisionTime time.Duration
		for _, t := range tickets {
			out.TicketCounts[t.Status]++
			if t.DecidedAt != nil {
				decided++
				totalDecisionTime += t.DecidedAt.Sub(t.CreatedAt)
			}
		}
		out.TotalTickets = len(tickets)
		if decided > 0 {
			out.AverageTimeToDecision = totalDecisionTime / time.Duration(decided)
		}

		packets, err := tx.ListPackets(ctx)
		if err != nil {
			return err
		}
		out.PacketsGenerated = len(packets)
		for _, p := range packets {
			out.TotalRecoveryClaimed += p.TotalRecovery
		}

		events, err := tx.ListAudit(ctx, 0)
		if err != nil {
			return err
		}
		out.AuditEvents = int64(len(events))
		return nil
	})
	if err != nil {
		return Summary{}, err
	}
	return out, nil
}
