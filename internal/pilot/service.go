// Package pilot ingests customer entry batches and ranks their recovery
// opportunities. Onboarding is all-or-nothing; entries are immutable after
// acceptance, which is what makes prioritization and packet generation
// reproducible.
package pilot

import (
	"context"
	"log/slog"
	"sort"

	"dutyguard/internal/audit"
	"dutyguard/internal/domain"
	"dutyguard/internal/storage"
	dErrors "dutyguard/pkg/domain-errors"
	"dutyguard/pkg/requestcontext"
)

type Service struct {
	store  storage.Store
	logger *slog.Logger
}

func NewService(store storage.Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// Onboard validates and stores a batch. One invalid entry rejects the whole
// submission; partial batches are never created. An empty batch is accepted —
// it only becomes an error when a claim packet is requested for it.
func (s *Service) Onboard(ctx context.Context, customerName string, entries []domain.PilotEntry) (domain.PilotBatch, error) {
	if customerName == "" {
		return domain.PilotBatch{}, dErrors.New(dErrors.CodeValidation, "customer name must not be empty").WithField("customer_name")
	}
	for i, e := range entries {
		if err := validateEntry(i, e); err != nil {
			return domain.PilotBatch{}, err
		}
	}

	batch := domain.PilotBatch{
		ID:           domain.NewBatchID(),
		CustomerName: customerName,
		Entries:      append([]domain.PilotEntry{}, entries...),
		CreatedAt:    requestcontext.Now(ctx).UTC(),
	}

	actor := requestcontext.Actor(ctx)
	if actor == "" {
		actor = "system"
	}

	err := s.store.RunInTx(ctx, batch.ID, func(tx storage.Tx) error {
		if err := tx.SaveBatch(ctx, batch); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, audit.New(audit.SubjectBatch, batch.ID, audit.ActionBatchOnboarded, actor, map[string]any{
			"customer_name": customerName,
			"entry_count":   len(entries),
		}))
	})
	if err != nil {
		return domain.PilotBatch{}, err
	}

	s.logger.InfoContext(ctx, "pilot batch onboarded",
		"batch_id", batch.ID,
		"customer", customerName,
		"entries", len(entries),
	)
	return batch, nil
}

func validateEntry(i int, e domain.PilotEntry) error {
	if e.SKU == "" {
		return dErrors.Newf(dErrors.CodeValidation, "entry %d: sku must not be empty", i).WithField("sku")
	}
	if e.ImportValue < 0 {
		return dErrors.Newf(dErrors.CodeValidation, "entry %d (%s): import_value must be >= 0", i, e.SKU).WithField("import_value")
	}
	if e.CurrentDutyRate < 0 || e.CurrentDutyRate > 1 {
		return dErrors.Newf(dErrors.CodeValidation, "entry %d (%s): current_duty_rate must be in [0,1]", i, e.SKU).WithField("current_duty_rate")
	}
	if e.SuggestedDutyRate < 0 || e.SuggestedDutyRate > 1 {
		return dErrors.Newf(dErrors.CodeValidation, "entry %d (%s): suggested_duty_rate must be in [0,1]", i, e.SKU).WithField("suggested_duty_rate")
	}
	if e.Confidence < 0 || e.Confidence > 1 {
		return dErrors.Newf(dErrors.CodeValidation, "entry %d (%s): confidence must be in [0,1]", i, e.SKU).WithField("confidence")
	}
	return nil
}

// Prioritized is the ranked view over a batch.
type Prioritized struct {
	BatchID                string               `json:"batch_id"`
	CustomerName           string               `json:"customer_name"`
	Opportunities          []domain.Opportunity `json:"opportunities"`
	TotalPotentialRecovery float64              `json:"total_potential_recovery"`
}

// Prioritize ranks a batch's entries by descending potential recovery, then
// descending confidence, then ingestion order. Read-only and deterministic:
// repeated calls return identical results.
func (s *Service) Prioritize(ctx context.Context, batchID string) (Prioritized, error) {
	var batch domain.PilotBatch
	err := s.store.View(ctx, func(tx storage.ReadTx) error {
		b, err := tx.FindBatch(ctx, batchID)
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeNotFound) {
				return dErrors.Newf(dErrors.CodeNotFound, "pilot batch %s not found", batchID).WithField(batchID)
			}
			return err
		}
		batch = b
		return nil
	})
	if err != nil {
		return Prioritized{}, err
	}
	return Rank(batch), nil
}

// Rank is the pure prioritization over an already-loaded batch. The packet
// generator calls it inside its own transaction so snapshot and ranking come
// from the same view.
func Rank(batch domain.PilotBatch) Prioritized {
	opportunities := make([]domain.Opportunity, len(batch.Entries))
	total := 0.0
	for i, e := range batch.Entries {
		recovery := e.PotentialRecovery()
		opportunities[i] = domain.Opportunity{PilotEntry: e, PotentialRecovery: recovery}
		total += recovery
	}

	// Stable sort preserves ingestion order as the final tie-break.
	sort.SliceStable(opportunities, func(i, j int) bool {
		if opportunities[i].PotentialRecovery != opportunities[j].PotentialRecovery {
			return opportunities[i].PotentialRecovery > opportunities[j].PotentialRecovery
		}
		return opportunities[i].Confidence > opportunities[j].Confidence
	})

	return Prioritized{
		BatchID:                batch.ID,
		CustomerName:           batch.CustomerName,
		Opportunities:          opportunities,
		TotalPotentialRecovery: total,
	}
}

// Get returns one batch by id.
func (s *Service) Get(ctx context.Context, batchID string) (domain.PilotBatch, error) {
	var batch domain.PilotBatch
	err := s.store.View(ctx, func(tx storage.ReadTx) error {
		b, err := tx.FindBatch(ctx, batchID)
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeNotFound) {
				return dErrors.Newf(dErrors.CodeNotFound, "pilot batch %s not found", batchID).WithField(batchID)
			}
			return err
		}
		batch = b
		return nil
	})
	return batch, err
}
