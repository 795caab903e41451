// Package dedup tracks which messages were already delivered to a subscriber.
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"tgwatch/internal/model"
)

// textPrefixRunes is how much of the text identifies a message without an id.
const textPrefixRunes = 200

const stripes = 64

// Key derives the dedup key of a message.
// Messages with an external id are keyed by channel and id, others by channel
// and the first characters of their text.
func Key(channel model.ChannelID, externalID *int64, text string) string {
	var src string
	if externalID != nil {
		src = string(channel) + ":" + strconv.FormatInt(*externalID, 10)
	} else {
		r := []rune(text)
		if len(r) > textPrefixRunes {
			r = r[:textPrefixRunes]
		}
		src = string(channel) + ":" + string(r)
	}
	sum := sha256.Sum256([]byte(src))
	return "sha256:" + hex.EncodeToString(sum[:16])
}

// KeyFor derives the dedup key of msg.
func KeyFor(msg model.Message) string {
	return Key(msg.ChannelID, msg.ExternalID, msg.Text)
}

// Recorder persists delivery records.
type Recorder interface {
	IsSent(ctx context.Context, subscriberID int64, key string) (bool, error)
	MarkSent(ctx context.Context, rec model.DeliveryRecord) error
	PurgeSent(ctx context.Context, olderThan time.Time) (int64, error)
}

type pendingKey struct {
	subscriberID int64
	key          string
}

// Store answers "already delivered?" and reserves keys for in-flight deliveries.
type Store struct {
	rec     Recorder
	locks   [stripes]sync.Mutex
	mu      sync.Mutex
	pending map[pendingKey]struct{}
	now     func() time.Time
}

// New creates a Store over rec.
func New(rec Recorder) *Store {
	return &Store{
		rec:     rec,
		pending: make(map[pendingKey]struct{}),
		now:     time.Now,
	}
}

func (s *Store) lockFor(subscriberID int64, key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	_, _ = h.Write([]byte(strconv.FormatInt(subscriberID, 10)))
	return &s.locks[h.Sum32()%stripes]
}

// Seen reports whether key was delivered to the subscriber.
func (s *Store) Seen(ctx context.Context, subscriberID int64, key string) (bool, error) {
	ok, err := s.rec.IsSent(ctx, subscriberID, key)
	if err != nil {
		return false, fmt.Errorf("check sent: %w", err)
	}
	return ok, nil
}

// Claim reserves key for delivery. It returns false when the key was already
// delivered or is claimed by another in-flight delivery.
func (s *Store) Claim(ctx context.Context, subscriberID int64, key string) (bool, error) {
	l := s.lockFor(subscriberID, key)
	l.Lock()
	defer l.Unlock()

	pk := pendingKey{subscriberID, key}
	s.mu.Lock()
	_, busy := s.pending[pk]
	s.mu.Unlock()
	if busy {
		return false, nil
	}

	seen, err := s.Seen(ctx, subscriberID, key)
	if err != nil || seen {
		return false, err
	}

	s.mu.Lock()
	s.pending[pk] = struct{}{}
	s.mu.Unlock()
	return true, nil
}

// Release drops a claim after a failed delivery so the message stays eligible.
func (s *Store) Release(subscriberID int64, key string) {
	l := s.lockFor(subscriberID, key)
	l.Lock()
	defer l.Unlock()

	s.mu.Lock()
	delete(s.pending, pendingKey{subscriberID, key})
	s.mu.Unlock()
}

// Record marks a delivery as done. Recording a known key is a no-op.
// The claim is dropped only after the record is stored.
func (s *Store) Record(ctx context.Context, rec model.DeliveryRecord) error {
	l := s.lockFor(rec.SubscriberID, rec.DedupKey)
	l.Lock()
	defer l.Unlock()

	if rec.SentAt.IsZero() {
		rec.SentAt = s.now().UTC()
	}
	// A failed write keeps the claim so this process does not resend the key.
	if err := s.rec.MarkSent(ctx, rec); err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}

	s.mu.Lock()
	delete(s.pending, pendingKey{rec.SubscriberID, rec.DedupKey})
	s.mu.Unlock()
	return nil
}

// Pending returns the number of claimed, not yet recorded keys.
func (s *Store) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Purge removes delivery records older than retention.
func (s *Store) Purge(ctx context.Context, retention time.Duration) (int64, error) {
	n, err := s.rec.PurgeSent(ctx, s.now().UTC().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("purge sent: %w", err)
	}
	return n, nil
}
