// Package packet freezes prioritized batch snapshots into exportable claim
// packets. Packets are immutable; regenerating for the same batch mints a new
// id over identical content, so exports are reproducible and auditable.
package packet

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"

	"dutyguard/internal/audit"
	"dutyguard/internal/domain"
	"dutyguard/internal/notify"
	"dutyguard/internal/packet/metrics"
	"dutyguard/internal/pilot"
	"dutyguard/internal/storage"
	dErrors "dutyguard/pkg/domain-errors"
	"dutyguard/pkg/requestcontext"
)

// Notifier receives domain events after commit.
type Notifier interface {
	Publish(event notify.Event)
}

type Service struct {
	store    storage.Store
	notifier Notifier
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

func NewService(store storage.Store, notifier Notifier, logger *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{store: store, notifier: notifier, logger: logger, metrics: m}
}

// Generate builds a packet from the batch's prioritized snapshot. A batch
// with no entries fails loudly with empty_batch — a zero-value packet is
// never produced silently. The snapshot is read and the packet written in one
// transaction so the packet always matches the batch it cites.
func (s *Service) Generate(ctx context.Context, batchID string) (domain.ClaimPacket, error) {
	packetID := domain.NewPacketID()
	var packet domain.ClaimPacket

	actor := requestcontext.Actor(ctx)
	if actor == "" {
		actor = "system"
	}

	err := s.store.RunInTx(ctx, batchID, func(tx storage.Tx) error {
		batch, err := tx.FindBatch(ctx, batchID)
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeNotFound) {
				return dErrors.Newf(dErrors.CodeNotFound, "pilot batch %s not found", batchID).WithField(batchID)
			}
			return err
		}
		if len(batch.Entries) == 0 {
			return dErrors.Newf(dErrors.CodeEmptyBatch, "batch %s has no entries", batchID).WithField(batchID)
		}

		ranked := pilot.Rank(batch)
		packet = domain.ClaimPacket{
			ID:              packetID,
			BatchID:         batchID,
			CustomerName:    batch.CustomerName,
			GeneratedAt:     requestcontext.Now(ctx).UTC(),
			EntriesSnapshot: ranked.Opportunities,
			TotalRecovery:   ranked.TotalPotentialRecovery,
		}

		if err := tx.SavePacket(ctx, packet); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, audit.New(audit.SubjectPacket, packetID, audit.ActionPacketGenerated, actor, map[string]any{
			"batch_id":       batchID,
			"packet_id":      packetID,
			"total_recovery": packet.TotalRecovery,
		}))
	})
	if err != nil {
		return domain.ClaimPacket{}, err
	}

	s.metrics.RecordPacket(packet.TotalRecovery)
	s.notifier.Publish(notify.Event{
		Name:      notify.EventPacketGenerated,
		SubjectID: packet.ID,
		Payload: map[string]any{
			"batch_id":       batchID,
			"total_recovery": packet.TotalRecovery,
		},
	})
	s.logger.InfoContext(ctx, "claim packet generated",
		"packet_id", packet.ID,
		"batch_id", batchID,
		"total_recovery", packet.TotalRecovery,
	)
	return packet, nil
}

// Get returns one packet by id.
func (s *Service) Get(ctx context.Context, packetID string) (domain.ClaimPacket, error) {
	var packet domain.ClaimPacket
	err := s.store.View(ctx, func(tx storage.ReadTx) error {
		p, err := tx.FindPacket(ctx, packetID)
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeNotFound) {
				return dErrors.Newf(dErrors.CodeNotFound, "claim packet %s not found", packetID).WithField(packetID)
			}
			return err
		}
		packet = p
		return nil
	})
	return packet, err
}

// List returns all packets, newest first.
func (s *Service) List(ctx context.Context) ([]domain.ClaimPacket, error) {
	var packets []domain.ClaimPacket
	err := s.store.View(ctx, func(tx storage.ReadTx) error {
		ps, err := tx.ListPackets(ctx)
		if err != nil {
			return err
		}
		packets = ps
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(packets, func(i, j int) bool {
		if !packets[i].GeneratedAt.Equal(packets[j].GeneratedAt) {
			return packets[i].GeneratedAt.After(packets[j].GeneratedAt)
		}
		return packets[i].ID < packets[j].ID
	})
	return packets, nil
}

// ExportCSV renders a packet's structured fields for spreadsheet review.
func ExportCSV(w io.Writer, packet domain.ClaimPacket) error {
	cw := csv.NewWriter(w)
	header := []string{"sku", "description", "import_value", "current_duty_rate", "suggested_duty_rate", "confidence", "potential_recovery"}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, o := range packet.EntriesSnapshot {
		row := []string{
			o.SKU,
			o.Description,
			formatFloat(o.ImportValue),
			formatFloat(o.CurrentDutyRate),
			formatFloat(o.SuggestedDutyRate),
			formatFloat(o.Confidence),
			formatFloat(o.PotentialRecovery),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	if err := cw.Write([]string{"total", "", "", "", "", "", formatFloat(packet.TotalRecovery)}); err != nil {
		return err
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("write packet csv: %w", err)
	}
	return nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
