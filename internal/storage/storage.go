// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"
	"time"

	"tgwatch/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// SubscriberStats summarizes a subscriber's configuration and activity.
type SubscriberStats struct {
	Channels    int
	Keywords    int
	Negative    int
	Delivered   int
	Checks      int
	LastCheckAt *time.Time
}

// Storage is the interface for all persistence operations.
type Storage interface {
	EnsureSubscriber(ctx context.Context, id int64, username string) (*model.Subscriber, error)
	GetSubscriber(ctx context.Context, id int64) (*model.Subscriber, error)
	ListSubscribers(ctx context.Context) ([]model.Subscriber, error)
	TouchSubscriber(ctx context.Context, id int64, at time.Time) error

	AddChannel(ctx context.Context, subscriberID int64, channel model.ChannelID) (bool, error)
	RemoveChannel(ctx context.Context, subscriberID int64, channel model.ChannelID) (bool, error)
	ListChannels(ctx context.Context, subscriberID int64) ([]model.ChannelID, error)

	GetRules(ctx context.Context, subscriberID int64) (model.RuleSet, error)
	SetRules(ctx context.Context, subscriberID int64, rules model.RuleSet) error

	IsSent(ctx context.Context, subscriberID int64, key string) (bool, error)
	MarkSent(ctx context.Context, rec model.DeliveryRecord) error
	PurgeSent(ctx context.Context, olderThan time.Time) (int64, error)

	RecordCheck(ctx context.Context, rec model.CheckRecord) error
	ListChecks(ctx context.Context, subscriberID int64, limit int) ([]model.CheckRecord, error)
	Stats(ctx context.Context, subscriberID int64) (SubscriberStats, error)

	Close() error
}
