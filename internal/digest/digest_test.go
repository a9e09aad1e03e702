package digest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"dutyguard/internal/domain"
	"dutyguard/internal/notify"
	"dutyguard/internal/platform/logger"
	"dutyguard/internal/storage"
	"dutyguard/internal/summary"
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

func TestNewRejectsBadSchedule(t *testing.T) {
	store := storage.NewMemoryStore()
	_, err := New("not a cron expression", summary.NewService(store), &capturingNotifier{}, logger.Discard())
	require.Error(t, err)
}

func TestEmitPublishesSummary(t *testing.T) {
	store := storage.NewMemoryStore()
	decidedAt := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	ticket := domain.ReviewTicket{
		ID:        domain.NewTicketID(),
		Status:    domain.TicketApproved,
		CreatedAt: decidedAt.Add(-2 * time.Hour),
		DecidedAt: &decidedAt,
	}
	require.NoError(t, store.RunInTx(context.Background(), ticket.ID, func(tx storage.Tx) error {
		return tx.SaveTicket(context.Background(), ticket)
	}))

	notifier := &capturingNotifier{}
	d, err := New("0 9 * * *", summary.NewService(store), notifier, logger.Discard())
	require.NoError(t, err)

	require.NoError(t, d.Emit(context.Background()))

	require.Len(t, notifier.events, 1)
	got := notifier.events[0]
	require.Equal(t, EventDigest, got.Name)
	require.Equal(t, 1, got.Payload["total_tickets"])
	require.Contains(t, got.Payload["text"], "1 tickets")
	require.Contains(t, got.Payload["text"], "avg decision time 2h0m0s")
}

func TestRunStopsOnCancel(t *testing.T) {
	store := storage.NewMemoryStore()
	d, err := New("0 9 * * *", summary.NewService(store), &capturingNotifier{}, logger.Discard())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("digest scheduler did not stop")
	}
}
