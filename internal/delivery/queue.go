// Package delivery queues relevant messages and drains them to a transport.
package delivery

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"tgwatch/internal/model"
)

// ErrQueueFull is returned when part of a batch did not fit into the queue.
var ErrQueueFull = errors.New("delivery queue is full")

const sendTimeout = 30 * time.Second

// Item is one message scheduled for delivery to a subscriber.
type Item struct {
	SubscriberID int64
	Message      model.Message
	Verdict      model.Verdict
	DedupKey     string
}

// Transport performs the outbound delivery of an item.
type Transport interface {
	Send(ctx context.Context, item Item) error
}

// Marker records successful deliveries and releases failed claims.
type Marker interface {
	Record(ctx context.Context, rec model.DeliveryRecord) error
	Release(subscriberID int64, key string)
}

// Options control pacing and capacity of the drain loop.
type Options struct {
	BatchSize       int
	InterItemDelay  time.Duration
	InterBatchDelay time.Duration
	IdleInterval    time.Duration
	Capacity        int
}

// DefaultOptions returns the standard pacing.
func DefaultOptions() Options {
	return Options{
		BatchSize:       5,
		InterItemDelay:  150 * time.Millisecond,
		InterBatchDelay: time.Second,
		IdleInterval:    5 * time.Second,
		Capacity:        1000,
	}
}

// Stats is a point-in-time view of the queue.
type Stats struct {
	Pending   int    `json:"pending"`
	Delivered uint64 `json:"delivered"`
	Failed    uint64 `json:"failed"`
	Rejected  uint64 `json:"rejected"`
}

// Queue is a bounded FIFO of items with a single draining consumer.
type Queue struct {
	transport Transport
	marker    Marker
	opts      Options
	log       *slog.Logger

	mu    sync.Mutex
	items []Item
	wake  chan struct{}

	delivered atomic.Uint64
	failed    atomic.Uint64
	rejected  atomic.Uint64

	now func() time.Time
}

// New creates a Queue. Zero option fields take their defaults.
func New(t Transport, m Marker, opts Options, log *slog.Logger) *Queue {
	def := DefaultOptions()
	if opts.BatchSize <= 0 {
		opts.BatchSize = def.BatchSize
	}
	if opts.Capacity <= 0 {
		opts.Capacity = def.Capacity
	}
	if opts.IdleInterval <= 0 {
		opts.IdleInterval = def.IdleInterval
	}
	return &Queue{
		transport: t,
		marker:    m,
		opts:      opts,
		log:       log,
		wake:      make(chan struct{}, 1),
		now:       time.Now,
	}
}

// Enqueue appends a subscriber's batch, highest score first.
// Items that do not fit are released and reported with ErrQueueFull.
func (q *Queue) Enqueue(subscriberID int64, items []Item) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	batch := make([]Item, len(items))
	copy(batch, items)
	for i := range batch {
		batch[i].SubscriberID = subscriberID
	}
	sort.SliceStable(batch, func(i, j int) bool {
		return batch[i].Verdict.Score > batch[j].Verdict.Score
	})

	q.mu.Lock()
	room := q.opts.Capacity - len(q.items)
	if room < 0 {
		room = 0
	}
	accepted := min(room, len(batch))
	q.items = append(q.items, batch[:accepted]...)
	q.mu.Unlock()

	if accepted > 0 {
		select {
		case q.wake <- struct{}{}:
		default:
		}
	}

	overflow := batch[accepted:]
	if len(overflow) == 0 {
		return accepted, nil
	}
	for _, it := range overflow {
		q.marker.Release(it.SubscriberID, it.DedupKey)
	}
	q.rejected.Add(uint64(len(overflow)))
	q.log.Warn("delivery queue full", "subscriber", subscriberID, "rejected", len(overflow))
	return accepted, ErrQueueFull
}

// Len returns the number of queued items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Stats returns queue counters.
func (q *Queue) Stats() Stats {
	return Stats{
		Pending:   q.Len(),
		Delivered: q.delivered.Load(),
		Failed:    q.failed.Load(),
		Rejected:  q.rejected.Load(),
	}
}

// Run drains the queue until ctx is cancelled. The item being sent when ctx
// is cancelled completes; the remaining items stay queued.
func (q *Queue) Run(ctx context.Context) {
	for {
		batch := q.take(q.opts.BatchSize)
		if len(batch) == 0 {
			if !q.sleep(ctx, q.opts.IdleInterval, true) {
				return
			}
			continue
		}

		for i, it := range batch {
			if i > 0 && !q.sleep(ctx, q.opts.InterItemDelay, false) {
				q.requeue(batch[i:])
				return
			}
			if ctx.Err() != nil {
				q.requeue(batch[i:])
				return
			}
			q.deliver(ctx, it)
		}

		if !q.sleep(ctx, q.opts.InterBatchDelay, false) {
			return
		}
	}
}

func (q *Queue) deliver(ctx context.Context, it Item) {
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
	defer cancel()

	if err := q.transport.Send(sendCtx, it); err != nil {
		q.failed.Add(1)
		q.marker.Release(it.SubscriberID, it.DedupKey)
		q.log.Warn("deliver message", "subscriber", it.SubscriberID, "channel", it.Message.ChannelID, "error", err)
		return
	}
	q.delivered.Add(1)

	rec := model.DeliveryRecord{
		DedupKey:     it.DedupKey,
		SubscriberID: it.SubscriberID,
		ChannelID:    it.Message.ChannelID,
		ExternalID:   it.Message.ExternalID,
		SentAt:       q.now().UTC(),
	}
	if err := q.marker.Record(sendCtx, rec); err != nil {
		q.log.Error("record delivery", "subscriber", it.SubscriberID, "key", it.DedupKey, "error", err)
	}
}

func (q *Queue) take(n int) []Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n > len(q.items) {
		n = len(q.items)
	}
	if n == 0 {
		return nil
	}
	batch := make([]Item, n)
	copy(batch, q.items[:n])
	clear(q.items[:n])
	q.items = q.items[n:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return batch
}

func (q *Queue) requeue(items []Item) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(append([]Item(nil), items...), q.items...)
}

// sleep waits for d. It returns false if ctx was cancelled; with wakeable set
// an Enqueue ends the wait early.
func (q *Queue) sleep(ctx context.Context, d time.Duration, wakeable bool) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()

	var wake <-chan struct{}
	if wakeable {
		wake = q.wake
	}
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	case <-wake:
		return true
	}
}
