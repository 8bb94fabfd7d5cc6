package bus

import (
	"fmt"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/veltran/marketsync/internal/logger"
	"github.com/veltran/marketsync/pkg/events"
)

func newTestBus(t *testing.T) *Bus {
	t.Helper()

	log, err := logger.NewLogger("info", true)
	require.NoError(t, err)

	b := New(log)
	t.Cleanup(b.Close)

	return b
}

func saleEvent(i int) events.DomainEvent {
	return events.DomainEvent{
		Kind:        events.KindItemSold,
		Collection:  common.HexToAddress("0x7a3bc1e5d4f2a9917c53f8c1b0ae426655a1de15"),
		BlockNumber: uint64(100 + i),
		TxHash:      common.HexToHash(fmt.Sprintf("0x%x", i)),
		LogIndex:    uint(i),
	}
}

// receive reads one event or fails the test after a timeout.
func receive(t *testing.T, sub *Subscription) events.Event {
	t.Helper()

	select {
	case ev, ok := <-sub.Events():
		require.True(t, ok, "subscription channel closed unexpectedly")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestBus_DeliversInPublishOrder(t *testing.T) {
	t.Parallel()

	b := newTestBus(t)
	sub := b.Subscribe(8)

	const n = 50
	for i := 0; i < n; i++ {
		b.Publish(saleEvent(i))
	}

	for i := 0; i < n; i++ {
		ev := receive(t, sub)
		de, ok := ev.(events.DomainEvent)
		require.True(t, ok)
		require.Equal(t, uint(i), de.LogIndex, "events must arrive in publish order")
	}
}

func TestBus_KindFiltering(t *testing.T) {
	t.Parallel()

	b := newTestBus(t)
	soldOnly := b.Subscribe(8, events.KindItemSold)
	everything := b.Subscribe(8)

	b.Publish(events.DomainEvent{Kind: events.KindCollectionRegistered})
	b.Publish(saleEvent(1))
	b.Publish(events.DomainEvent{Kind: events.KindItemListed})

	ev := receive(t, soldOnly)
	require.Equal(t, events.KindItemSold, ev.EventKind())

	require.Equal(t, events.KindCollectionRegistered, receive(t, everything).EventKind())
	require.Equal(t, events.KindItemSold, receive(t, everything).EventKind())
	require.Equal(t, events.KindItemListed, receive(t, everything).EventKind())

	// The filtered subscription must see nothing else.
	select {
	case ev := <-soldOnly.Events():
		t.Fatalf("unexpected event %v on filtered subscription", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBus_FanOut(t *testing.T) {
	t.Parallel()

	b := newTestBus(t)
	first := b.Subscribe(8)
	second := b.Subscribe(8)

	b.Publish(saleEvent(7))

	require.Equal(t, events.KindItemSold, receive(t, first).EventKind())
	require.Equal(t, events.KindItemSold, receive(t, second).EventKind())
}

func TestBus_SlowConsumerDoesNotBlockPublisher(t *testing.T) {
	t.Parallel()

	b := newTestBus(t)
	sub := b.Subscribe(1) // deliberately tiny channel

	const n = 200
	done := make(chan struct{})
	go func() {
		for i := 0; i < n; i++ {
			b.Publish(saleEvent(i))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on a slow consumer")
	}

	// Everything is still delivered, in order.
	for i := 0; i < n; i++ {
		de := receive(t, sub).(events.DomainEvent)
		require.Equal(t, uint(i), de.LogIndex)
	}
}

func TestBus_StreamEvents(t *testing.T) {
	t.Parallel()

	b := newTestBus(t)
	sub := b.Subscribe(8, events.KindItemSold)

	b.Publish(events.StreamEvent{
		Topic:      "collection:0x7a3bc1e5d4f2a9917c53f8c1b0ae426655a1de15",
		Kind:       events.KindItemSold,
		Payload:    map[string]any{"price": "1000000000000000000"},
		ReceivedAt: time.Now().UTC(),
	})

	se, ok := receive(t, sub).(events.StreamEvent)
	require.True(t, ok)
	require.Equal(t, "collection:0x7a3bc1e5d4f2a9917c53f8c1b0ae426655a1de15", se.Topic)
	require.Equal(t, "1000000000000000000", se.Payload["price"])
}

func TestBus_UnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()

	b := newTestBus(t)
	sub := b.Subscribe(8)

	b.Unsubscribe(sub.ID)

	select {
	case _, ok := <-sub.Events():
		require.False(t, ok, "channel should be closed after Unsubscribe")
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after Unsubscribe")
	}

	// Publishing after Unsubscribe must not panic or deliver.
	b.Publish(saleEvent(1))
}

func TestBus_UnsubscribeUnknownID(t *testing.T) {
	t.Parallel()

	b := newTestBus(t)
	sub := b.Subscribe(8)
	b.Unsubscribe(sub.ID)
	b.Unsubscribe(sub.ID) // second call is a no-op
}

func TestBus_CloseStopsAllSubscriptions(t *testing.T) {
	t.Parallel()

	log, err := logger.NewLogger("info", true)
	require.NoError(t, err)

	b := New(log)
	first := b.Subscribe(8)
	second := b.Subscribe(8)

	b.Close()

	for _, sub := range []*Subscription{first, second} {
		select {
		case _, ok := <-sub.Events():
			require.False(t, ok)
		case <-time.After(2 * time.Second):
			t.Fatal("channel not closed after bus Close")
		}
	}
}
