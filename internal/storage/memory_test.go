package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"dutyguard/internal/audit"
	"dutyguard/internal/domain"
	dErrors "dutyguard/pkg/domain-errors"
)

type MemoryStoreSuite struct {
	suite.Suite
	store *MemoryStore
	ctx   context.Context
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) SetupTest() {
	s.store = NewMemoryStore()
	s.ctx = context.Background()
}

func (s *MemoryStoreSuite) saveTicket(id string) {
	err := s.store.RunInTx(s.ctx, id, func(tx Tx) error {
		if err := tx.SaveTicket(s.ctx, domain.ReviewTicket{
			ID:        id,
			Status:    domain.TicketOpen,
			CreatedAt: time.Now().UTC(),
		}); err != nil {
			return err
		}
		return tx.AppendAudit(s.ctx, audit.New(audit.SubjectTicket, id, audit.ActionClassificationIssued, "system", nil))
	})
	s.Require().NoError(err)
}

func (s *MemoryStoreSuite) TestAtomicCommit() {
	s.Run("mutation and audit visible together", func() {
		s.saveTicket("review_a")

		err := s.store.View(s.ctx, func(tx ReadTx) error {
			ticket, err := tx.FindTicket(s.ctx, "review_a")
			s.Require().NoError(err)
			s.Equal(domain.TicketOpen, ticket.Status)

			events, err := tx.ListAudit(s.ctx, 0)
			s.Require().NoError(err)
			s.Len(events, 1)
			s.Equal("review_a", events[0].SubjectID)
			return nil
		})
		s.Require().NoError(err)
	})

	s.Run("failed transaction leaves nothing visible", func() {
		boom := errors.New("boom")
		err := s.store.RunInTx(s.ctx, "review_b", func(tx Tx) error {
			s.Require().NoError(tx.SaveTicket(s.ctx, domain.ReviewTicket{ID: "review_b", Status: domain.TicketOpen}))
			s.Require().NoError(tx.AppendAudit(s.ctx, audit.New(audit.SubjectTicket, "review_b", audit.ActionClassificationIssued, "system", nil)))
			return boom
		})
		s.Require().ErrorIs(err, boom)

		err = s.store.View(s.ctx, func(tx ReadTx) error {
			_, err := tx.FindTicket(s.ctx, "review_b")
			s.Require().True(dErrors.HasCode(err, dErrors.CodeNotFound))
			events, err := tx.ListAudit(s.ctx, 0)
			s.Require().NoError(err)
			s.Empty(events)
			return nil
		})
		s.Require().NoError(err)
	})

	s.Run("staged writes are readable inside the transaction", func() {
		err := s.store.RunInTx(s.ctx, "review_c", func(tx Tx) error {
			s.Require().NoError(tx.SaveTicket(s.ctx, domain.ReviewTicket{ID: "review_c", Status: domain.TicketOpen}))
			ticket, err := tx.FindTicket(s.ctx, "review_c")
			s.Require().NoError(err)
			s.Equal(domain.TicketOpen, ticket.Status)
			return errors.New("discard")
		})
		s.Require().Error(err)
	})
}

func (s *MemoryStoreSuite) TestLedgerOrdering() {
	const n = 25
	for i := 0; i < n; i++ {
		s.saveTicket(fmt.Sprintf("review_%d", i))
	}

	err := s.store.View(s.ctx, func(tx ReadTx) error {
		events, err := tx.ListAudit(s.ctx, 0)
		s.Require().NoError(err)
		s.Require().Len(events, n)
		for i, e := range events {
			s.Equal(int64(i+1), e.Seq)
		}
		s.Require().NoError(audit.Verify(events))
		return nil
	})
	s.Require().NoError(err)
}

func (s *MemoryStoreSuite) TestLedgerLimit() {
	for i := 0; i < 5; i++ {
		s.saveTicket(fmt.Sprintf("review_%d", i))
	}
	err := s.store.View(s.ctx, func(tx ReadTx) error {
		events, err := tx.ListAudit(s.ctx, 2)
		s.Require().NoError(err)
		s.Require().Len(events, 2)
		s.Equal(int64(4), events[0].Seq)
		s.Equal(int64(5), events[1].Seq)
		return nil
	})
	s.Require().NoError(err)
}

func (s *MemoryStoreSuite) TestBatchImmutability() {
	batch := domain.PilotBatch{
		ID:      "pilot_x",
		Entries: []domain.PilotEntry{{SKU: "A", ImportValue: 100}},
	}
	err := s.store.RunInTx(s.ctx, batch.ID, func(tx Tx) error {
		if err := tx.SaveBatch(s.ctx, batch); err != nil {
			return err
		}
		return tx.AppendAudit(s.ctx, audit.New(audit.SubjectBatch, batch.ID, audit.ActionBatchOnboarded, "system", nil))
	})
	s.Require().NoError(err)

	// mutate the caller's slice after commit; stored entries must be unaffected
	batch.Entries[0].SKU = "TAMPERED"

	err = s.store.View(s.ctx, func(tx ReadTx) error {
		got, err := tx.FindBatch(s.ctx, "pilot_x")
		s.Require().NoError(err)
		s.Equal("A", got.Entries[0].SKU)
		return nil
	})
	s.Require().NoError(err)
}

func (s *MemoryStoreSuite) TestCancelledContext() {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	err := s.store.RunInTx(ctx, "review_z", func(tx Tx) error { return nil })
	s.Require().True(dErrors.HasCode(err, dErrors.CodeTimeout))
}

func TestRunInTxSerializesSameKey(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.RunInTx(ctx, "review_race", func(tx Tx) error {
		if err := tx.SaveTicket(ctx, domain.ReviewTicket{ID: "review_race", Status: domain.TicketOpen}); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, audit.New(audit.SubjectTicket, "review_race", audit.ActionClassificationIssued, "system", nil))
	}))

	// Two writers race to close the same ticket; per-key serialization means
	// the second observes the first one's terminal state.
	const writers = 2
	var wg sync.WaitGroup
	results := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = store.RunInTx(ctx, "review_race", func(tx Tx) error {
				ticket, err := tx.FindTicket(ctx, "review_race")
				if err != nil {
					return err
				}
				if ticket.Status != domain.TicketOpen {
					return dErrors.New(dErrors.CodeInvalidState, "ticket already decided")
				}
				ticket.Status = domain.TicketApproved
				if err := tx.SaveTicket(ctx, ticket); err != nil {
					return err
				}
				return tx.AppendAudit(ctx, audit.New(audit.SubjectTicket, ticket.ID, audit.ActionTicketDecided, "reviewer", nil))
			})
		}(i)
	}
	wg.Wait()

	var wins, losses int
	for _, err := range results {
		if err == nil {
			wins++
		} else if dErrors.HasCode(err, dErrors.CodeInvalidState) {
			losses++
		}
	}
	require.Equal(t, 1, wins)
	require.Equal(t, 1, losses)

	require.NoError(t, store.View(ctx, func(tx ReadTx) error {
		events, err := tx.ListAudit(ctx, 0)
		require.NoError(t, err)
		require.Len(t, events, 2) // open + exactly one decision
		return nil
	}))
}
