package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestChain(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	a := New(SubjectTicket, "review_1", ActionTicketDecided, "reviewer-7", map[string]string{"old": "open", "new": "approved"})
	Seal(&a, 1, "", now)

	b := New(SubjectPacket, "claim_1", ActionPacketGenerated, "system", map[string]float64{"total_recovery": 8000})
	Seal(&b, 2, a.Hash, now.Add(time.Second))

	t.Run("intact chain verifies", func(t *testing.T) {
		require.NoError(t, Verify([]Event{a, b}))
	})

	t.Run("payload tamper is detected", func(t *testing.T) {
		tampered := a
		tampered.Payload = []byte(`{"old":"open","new":"rejected"}`)
		err := Verify([]Event{tampered, b})
		require.Error(t, err)
		require.Contains(t, err.Error(), "seq 1")
	})

	t.Run("link tamper is detected", func(t *testing.T) {
		relinked := b
		relinked.PrevHash = "0000"
		err := Verify([]Event{a, relinked})
		require.Error(t, err)
		require.Contains(t, err.Error(), "seq 2")
	})

	t.Run("seal is idempotent over identical input", func(t *testing.T) {
		c := a
		Seal(&c, 1, "", now)
		require.Equal(t, a.Hash, c.Hash)
	})
}

func TestNewDegradedPayload(t *testing.T) {
	// channels cannot marshal; the event must still carry a payload
	e := New(SubjectBatch, "pilot_1", ActionBatchOnboarded, "system", map[string]any{"ch": make(chan int)})
	require.Contains(t, string(e.Payload), "marshal_error")
}
