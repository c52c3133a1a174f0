package notifier

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"escrowd/core/events"
)

type recordingSink struct {
	name string
	err  error

	mu   sync.Mutex
	envs []events.Envelope
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Deliver(_ context.Context, env events.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.envs = append(s.envs, env)
	return s.err
}

func (s *recordingSink) delivered() []events.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]events.Envelope(nil), s.envs...)
}

func created(id uint64) events.Event {
	return events.EscrowCreated{ID: id}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestNotifierDeliversInOrderToEverySink(t *testing.T) {
	failing := &recordingSink{name: "failing", err: errors.New("down")}
	healthy := &recordingSink{name: "healthy"}
	n := New([]Sink{failing, nil, healthy})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		n.Run(ctx)
		close(done)
	}()

	n.Emit(created(0))
	n.Emit(events.EscrowFunded{ID: 0, Amount: big.NewInt(975), Fee: big.NewInt(25)})
	n.Emit(created(1))

	require.Eventually(t, func() bool { return len(healthy.delivered()) == 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	got := healthy.delivered()
	for i, env := range got {
		require.Equal(t, uint64(i+1), env.Sequence)
	}
	require.Equal(t, events.TypeEscrowFunded, got[1].Type)
	require.Equal(t, "975", got[1].Attributes["amount"])
	require.Equal(t, "1", got[2].EscrowID())
	require.Len(t, failing.delivered(), 3, "a failing sink still sees every event")
	require.Zero(t, n.Pending())
}

func TestNotifierDropsOldestOnOverflow(t *testing.T) {
	sink := &recordingSink{name: "sink"}
	n := New([]Sink{sink}, WithCapacity(2), WithHistorySize(2))

	for id := uint64(0); id < 5; id++ {
		n.Emit(created(id))
	}
	require.Equal(t, 2, n.Pending())

	n.Flush(context.Background())
	got := sink.delivered()
	require.Len(t, got, 2)
	require.Equal(t, "3", got[0].EscrowID())
	require.Equal(t, "4", got[1].EscrowID())

	history := n.History()
	require.Len(t, history, 2)
	require.Equal(t, uint64(5), history[1].Sequence)
}

func TestNotifierExpiresStaleEnvelopes(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	sink := &recordingSink{name: "sink"}
	n := New([]Sink{sink}, WithTTL(time.Minute), withClock(clock.Now))

	n.Emit(created(0))
	clock.Advance(45 * time.Second)
	n.Emit(created(1))
	clock.Advance(30 * time.Second)

	n.Flush(context.Background())
	got := sink.delivered()
	require.Len(t, got, 1)
	require.Equal(t, "1", got[0].EscrowID())
	require.Len(t, n.History(), 1)
}

func TestNotifierWithoutSinksKeepsHistoryOnly(t *testing.T) {
	n := New(nil)
	n.Emit(created(0))
	n.Emit(nil)
	require.Zero(t, n.Pending())
	require.Len(t, n.History(), 1)
}

func TestFlushStopsOnCancelledContext(t *testing.T) {
	sink := &recordingSink{name: "sink"}
	n := New([]Sink{sink})
	n.Emit(created(0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n.Flush(ctx)
	require.Empty(t, sink.delivered())
	require.Equal(t, 1, n.Pending())
}

func TestRingOverwritesOldest(t *testing.T) {
	r := newRing[int](3)
	for i := 1; i <= 3; i++ {
		require.False(t, r.push(i))
	}
	require.True(t, r.push(4))
	var got []int
	r.forEach(func(v int) { got = append(got, v) })
	require.Equal(t, []int{2, 3, 4}, got)

	v, ok := r.pop()
	require.True(t, ok)
	require.Equal(t, 2, v)

	empty := newRing[int](0)
	require.True(t, empty.push(1))
	_, ok = empty.pop()
	require.False(t, ok)
}
