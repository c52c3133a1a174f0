package notifier

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"escrowd/core/events"
)

const (
	defaultCapacity    = 1024
	defaultHistorySize = 256
	defaultQueueTTL    = 15 * time.Minute
)

// Sink receives envelopes from the notifier worker. A failing sink is logged
// and counted; it never blocks the other sinks or the ledger.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, env events.Envelope) error
}

// Option adjusts the behaviour of the notifier.
type Option func(*config)

type config struct {
	capacity    int
	historySize int
	ttl         time.Duration
	now         func() time.Time
	logger      *slog.Logger
}

// WithCapacity sets the maximum number of pending envelopes. On overflow the
// oldest pending envelope is dropped.
func WithCapacity(capacity int) Option {
	return func(cfg *config) {
		if capacity > 0 {
			cfg.capacity = capacity
		}
	}
}

// WithHistorySize sets the number of recent envelopes retained for inspection.
func WithHistorySize(size int) Option {
	return func(cfg *config) {
		if size > 0 {
			cfg.historySize = size
		}
	}
}

// WithTTL configures how long queued envelopes remain eligible for delivery.
func WithTTL(ttl time.Duration) Option {
	return func(cfg *config) {
		if ttl > 0 {
			cfg.ttl = ttl
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(cfg *config) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// withClock overrides the clock used for stamping and TTL evaluation (test only).
func withClock(now func() time.Time) Option {
	return func(cfg *config) {
		if now != nil {
			cfg.now = now
		}
	}
}

type queued struct {
	env        events.Envelope
	enqueuedAt time.Time
}

// Notifier buffers committed events and hands them to the configured sinks on
// a single worker goroutine. Emit never blocks.
type Notifier struct {
	sinks  []Sink
	logger *slog.Logger

	mu      sync.Mutex
	seq     uint64
	pending ring[queued]
	history ring[queued]
	ttl     time.Duration
	now     func() time.Time
	wake    chan struct{}
	metrics *notifierMetrics
}

func New(sinks []Sink, opts ...Option) *Notifier {
	cfg := config{
		capacity:    defaultCapacity,
		historySize: defaultHistorySize,
		ttl:         defaultQueueTTL,
		now:         time.Now,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	filtered := make([]Sink, 0, len(sinks))
	for _, sink := range sinks {
		if sink != nil {
			filtered = append(filtered, sink)
		}
	}
	return &Notifier{
		sinks:   filtered,
		logger:  cfg.logger,
		pending: newRing[queued](cfg.capacity),
		history: newRing[queued](cfg.historySize),
		ttl:     cfg.ttl,
		now:     cfg.now,
		wake:    make(chan struct{}, 1),
		metrics: queueMetrics(),
	}
}

// Emit implements events.Emitter.
func (n *Notifier) Emit(evt events.Event) {
	if n == nil || evt == nil {
		return
	}
	now := n.now()
	n.mu.Lock()
	n.seq++
	item := queued{
		env: events.Envelope{
			Sequence:   n.seq,
			OccurredAt: now,
			Record:     events.ToRecord(evt),
		},
		enqueuedAt: now,
	}
	n.evictExpiredLocked(now)
	if n.history.push(item) {
		n.metrics.recordDropped("history_overflow", 1)
	}
	if len(n.sinks) > 0 && n.pending.push(item) {
		n.metrics.recordDropped("overflow", 1)
	}
	n.mu.Unlock()

	select {
	case n.wake <- struct{}{}:
	default:
	}
}

// History returns the retained envelopes, oldest first.
func (n *Notifier) History() []events.Envelope {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.evictExpiredLocked(n.now())
	out := make([]events.Envelope, 0, n.history.len())
	n.history.forEach(func(item queued) {
		out = append(out, item.env)
	})
	return out
}

// Pending reports the number of envelopes awaiting delivery.
func (n *Notifier) Pending() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.pending.len()
}

// Run delivers queued envelopes until ctx is cancelled.
func (n *Notifier) Run(ctx context.Context) {
	for {
		if env, ok := n.next(); ok {
			n.deliver(ctx, env)
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-n.wake:
		}
	}
}

// Flush delivers whatever is still pending, giving up when ctx ends. It is
// meant for shutdown after the producers have stopped.
func (n *Notifier) Flush(ctx context.Context) {
	for ctx.Err() == nil {
		env, ok := n.next()
		if !ok {
			return
		}
		n.deliver(ctx, env)
	}
}

func (n *Notifier) next() (events.Envelope, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.evictExpiredLocked(n.now())
	item, ok := n.pending.pop()
	return item.env, ok
}

func (n *Notifier) deliver(ctx context.Context, env events.Envelope) {
	for _, sink := range n.sinks {
		err := sink.Deliver(ctx, env)
		n.metrics.recordDelivery(sink.Name(), err)
		if err != nil {
			n.logger.Warn("event delivery failed",
				"sink", sink.Name(),
				"event", env.Type,
				"sequence", env.Sequence,
				"escrow_id", env.EscrowID(),
				"error", err)
		}
	}
}

func (n *Notifier) evictExpiredLocked(now time.Time) {
	if n.ttl <= 0 {
		return
	}
	expired := 0
	for {
		item, ok := n.pending.peek()
		if !ok || now.Sub(item.enqueuedAt) <= n.ttl {
			break
		}
		n.pending.pop()
		expired++
	}
	n.metrics.recordDropped("ttl", expired)

	for {
		item, ok := n.history.peek()
		if !ok || now.Sub(item.enqueuedAt) <= n.ttl {
			break
		}
		n.history.pop()
	}
}
