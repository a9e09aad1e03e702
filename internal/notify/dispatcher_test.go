package notify

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"dutyguard/internal/platform/logger"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	fail   bool
}

func (s *recordingSink) Notify(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("delivery refused")
	}
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestDispatcherDelivers(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(logger.Discard(), nil, sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = d.Run(ctx) }()

	d.Publish(Event{Name: EventTicketOpened, SubjectID: "review_1"})

	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 10*time.Millisecond)
}

func TestDispatcherFallbackOnFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notifications.jsonl")
	failing := &recordingSink{fail: true}
	d := NewDispatcher(logger.Discard(), NewFileSink(path), failing)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = d.Run(ctx) }()

	d.Publish(Event{Name: EventPacketGenerated, SubjectID: "claim_9", Payload: map[string]any{"total_recovery": 8000.0}})

	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, time.Second, 10*time.Millisecond)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	require.True(t, scanner.Scan())
	var got Event
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &got))
	require.Equal(t, EventPacketGenerated, got.Name)
	require.Equal(t, "claim_9", got.SubjectID)
}

func TestDispatcherNoSinksUsesFallback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notifications.jsonl")
	d := NewDispatcher(logger.Discard(), NewFileSink(path))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = d.Run(ctx) }()

	d.Publish(Event{Name: EventTicketDecided, SubjectID: "review_2"})

	require.Eventually(t, func() bool {
		data, err := os.ReadFile(path)
		return err == nil && len(data) > 0
	}, time.Second, 10*time.Millisecond)
}

func TestPublishNeverBlocks(t *testing.T) {
	// no worker running; fill the buffer past capacity
	d := NewDispatcher(logger.Discard(), nil)
	done := make(chan struct{})
	go func() {
		for i := 0; i < defaultBuffer*2; i++ {
			d.Publish(Event{Name: EventTicketOpened, SubjectID: "review_x"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked with a full buffer")
	}
}
