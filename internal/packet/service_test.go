package packet

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"dutyguard/internal/audit"
	"dutyguard/internal/domain"
	"dutyguard/internal/notify"
	"dutyguard/internal/platform/logger"
	"dutyguard/internal/storage"
	dErrors "dutyguard/pkg/domain-errors"
	"dutyguard/pkg/requestcontext"
)

type capturingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (c *capturingNotifier) Publish(event notify.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *capturingNotifier) named(name string) []notify.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []notify.Event
	for _, e := range c.events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

type PacketSuite struct {
	suite.Suite
	store    *storage.MemoryStore
	notifier *capturingNotifier
	svc      *Service
}

func TestPacketSuite(t *testing.T) {
	suite.Run(t, new(PacketSuite))
}

func (s *PacketSuite) SetupTest() {
	s.store = storage.NewMemoryStore()
	s.notifier = &capturingNotifier{}
	s.svc = NewService(s.store, s.notifier, logger.Discard(), nil)
}

func (s *PacketSuite) seedBatch(entries []domain.PilotEntry) domain.PilotBatch {
	batch := domain.PilotBatch{
		ID:           domain.NewBatchID(),
		CustomerName: "Acme Imports",
		Entries:      entries,
	}
	err := s.store.RunInTx(context.Background(), batch.ID, func(tx storage.Tx) error {
		return tx.SaveBatch(context.Background(), batch)
	})
	s.Require().NoError(err)
	return batch
}

func (s *PacketSuite) TestGenerate() {
	ctx := context.Background()
	entries := []domain.PilotEntry{
		{SKU: "B", ImportValue: 50_000, CurrentDutyRate: 0.05, SuggestedDutyRate: 0.05, Confidence: 0.80},
		{SKU: "A", ImportValue: 100_000, CurrentDutyRate: 0.10, SuggestedDutyRate: 0.02, Confidence: 0.95},
	}

	s.Run("snapshots the ranked batch and totals its recovery", func() {
		batch := s.seedBatch(entries)

		packet, err := s.svc.Generate(ctx, batch.ID)

		s.Require().NoError(err)
		s.Require().NotEmpty(packet.ID)
		s.Require().Equal(batch.ID, packet.BatchID)
		s.Require().Equal("Acme Imports", packet.CustomerName)
		s.Require().Len(packet.EntriesSnapshot, 2)
		s.Require().Equal("A", packet.EntriesSnapshot[0].SKU)
		s.Require().InDelta(8000.0, packet.TotalRecovery, 1e-9)

		var sum float64
		for _, o := range packet.EntriesSnapshot {
			sum += o.PotentialRecovery
		}
		s.Require().InDelta(sum, packet.TotalRecovery, 1e-9)
	})

	s.Run("persists the packet and appends one audit event", func() {
		batch := s.seedBatch(entries)

		packet, err := s.svc.Generate(ctx, batch.ID)
		s.Require().NoError(err)

		stored, err := s.svc.Get(ctx, packet.ID)
		s.Require().NoError(err)
		s.Require().Equal(packet.ID, stored.ID)
		s.Require().Equal(packet.EntriesSnapshot, stored.EntriesSnapshot)

		events := s.auditFor(packet.ID)
		s.Require().Len(events, 1)
		s.Require().Equal(audit.ActionPacketGenerated, events[0].Action)

		notified := s.notifier.named(notify.EventPacketGenerated)
		s.Require().Len(notified, 1)
		s.Require().Equal(packet.ID, notified[0].SubjectID)
	})

	s.Run("regeneration yields a new packet with identical content", func() {
		batch := s.seedBatch(entries)

		first, err := s.svc.Generate(ctx, batch.ID)
		s.Require().NoError(err)
		second, err := s.svc.Generate(ctx, batch.ID)
		s.Require().NoError(err)

		s.Require().NotEqual(first.ID, second.ID)
		s.Require().Equal(first.EntriesSnapshot, second.EntriesSnapshot)
		s.Require().InDelta(first.TotalRecovery, second.TotalRecovery, 1e-9)

		packets, err := s.svc.List(ctx)
		s.Require().NoError(err)
		s.Require().Len(packets, 2)
	})

	s.Run("empty batch cannot be claimed", func() {
		batch := s.seedBatch(nil)

		_, err := s.svc.Generate(ctx, batch.ID)

		s.Require().True(dErrors.HasCode(err, dErrors.CodeEmptyBatch))
		s.Require().Empty(s.auditFor(batch.ID))
		packets, listErr := s.svc.List(ctx)
		s.Require().NoError(listErr)
		s.Require().Empty(packets)
	})

	s.Run("unknown batch returns not found", func() {
		_, err := s.svc.Generate(ctx, "pilot_missing")
		s.Require().True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *PacketSuite) TestGenerateAttribution() {
	batch := s.seedBatch([]domain.PilotEntry{
		{SKU: "A", ImportValue: 100_000, CurrentDutyRate: 0.10, SuggestedDutyRate: 0.02, Confidence: 0.95},
	})

	pinned := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithActor(context.Background(), "ops@acme")
	ctx = requestcontext.WithTime(ctx, pinned)

	packet, err := s.svc.Generate(ctx, batch.ID)

	s.Require().NoError(err)
	s.Require().Equal(pinned, packet.GeneratedAt)
	events := s.auditFor(packet.ID)
	s.Require().Len(events, 1)
	s.Require().Equal("ops@acme", events[0].Actor)
}

func (s *PacketSuite) TestExportCSV() {
	ctx := context.Background()
	batch := s.seedBatch([]domain.PilotEntry{
		{SKU: "A", Description: "steel brackets", ImportValue: 100_000, CurrentDutyRate: 0.10, SuggestedDutyRate: 0.02, Confidence: 0.95},
		{SKU: "B", Description: "rubber gaskets", ImportValue: 50_000, CurrentDutyRate: 0.05, SuggestedDutyRate: 0.05, Confidence: 0.80},
	})
	packet, err := s.svc.Generate(ctx, batch.ID)
	s.Require().NoError(err)

	var buf strings.Builder
	s.Require().NoError(ExportCSV(&buf, packet))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	// header, two entries, total row
	s.Require().Len(lines, 4)
	s.Require().Contains(lines[0], "sku")
	s.Require().Contains(lines[1], "A")
	s.Require().Contains(lines[1], "8000")
	s.Require().Contains(lines[3], "8000")
}

func (s *PacketSuite) auditFor(subjectID string) []audit.Event {
	var out []audit.Event
	err := s.store.View(context.Background(), func(tx storage.ReadTx) error {
		events, err := tx.ListAudit(context.Background(), 0)
		if err != nil {
			return err
		}
		for _, e := range events {
			if e.SubjectID == subjectID {
				out = append(out, e)
			}
		}
		return nil
	})
	s.Require().NoError(err)
	return out
}
