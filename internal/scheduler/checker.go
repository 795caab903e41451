package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tgwatch/internal/dedup"
	"tgwatch/internal/delivery"
	"tgwatch/internal/model"
)

// Preferences is the subscriber configuration the check cycle reads.
type Preferences interface {
	ListSubscribers(ctx context.Context) ([]model.Subscriber, error)
	ListChannels(ctx context.Context, subscriberID int64) ([]model.ChannelID, error)
	GetRules(ctx context.Context, subscriberID int64) (model.RuleSet, error)
	RecordCheck(ctx context.Context, rec model.CheckRecord) error
	TouchSubscriber(ctx context.Context, id int64, at time.Time) error
}

// Fetcher returns the raw page of a channel.
type Fetcher interface {
	Fetch(ctx context.Context, id model.ChannelID) (string, error)
}

// Extractor turns a raw page into messages, newest first.
type Extractor interface {
	Extract(raw string, channel model.ChannelID) []model.Message
}

// Analyzer scores a message against a rule set.
type Analyzer interface {
	Analyze(msg model.Message, rules model.RuleSet) model.Verdict
}

// Claimer reserves dedup keys for delivery.
type Claimer interface {
	Claim(ctx context.Context, subscriberID int64, key string) (bool, error)
	Release(subscriberID int64, key string)
}

// Enqueuer accepts a subscriber's batch for delivery.
type Enqueuer interface {
	Enqueue(subscriberID int64, items []delivery.Item) (int, error)
}

// ChannelFailure is a channel that could not be checked.
type ChannelFailure struct {
	Channel model.ChannelID
	Err     error
}

// Report summarizes one check cycle.
type Report struct {
	SubscriberID    int64
	ChannelsTotal   int
	ChannelsChecked int
	Messages        int
	Relevant        int
	Duplicates      int
	Enqueued        int
	Failures        []ChannelFailure
}

// Record converts the report into a check history row.
func (r Report) Record(at time.Time) model.CheckRecord {
	return model.CheckRecord{
		SubscriberID:    r.SubscriberID,
		ChannelsTotal:   r.ChannelsTotal,
		ChannelsChecked: r.ChannelsChecked,
		Relevant:        r.Relevant,
		Enqueued:        r.Enqueued,
		CheckedAt:       at,
	}
}

// Checker runs the fetch, extract, analyze and enqueue pipeline for a subscriber.
type Checker struct {
	prefs     Preferences
	fetcher   Fetcher
	extractor Extractor
	analyzer  Analyzer
	claims    Claimer
	queue     Enqueuer
	log       *slog.Logger

	window          time.Duration
	defaultKeywords []string
	now             func() time.Time
}

// NewChecker creates a Checker.
func NewChecker(prefs Preferences, f Fetcher, e Extractor, a Analyzer, c Claimer, q Enqueuer, log *slog.Logger) *Checker {
	return &Checker{
		prefs:     prefs,
		fetcher:   f,
		extractor: e,
		analyzer:  a,
		claims:    c,
		queue:     q,
		log:       log,
		now:       time.Now,
	}
}

// SetMessageWindow limits checks to messages newer than d. Zero disables the limit.
func (c *Checker) SetMessageWindow(d time.Duration) {
	c.window = d
}

// SetDefaultKeywords sets the keywords used for subscribers without positive rules.
func (c *Checker) SetDefaultKeywords(terms []string) {
	c.defaultKeywords = terms
}

// Check processes the subscriber's channels in stored order and enqueues one
// batch of new relevant messages. A failing channel is skipped. Cancellation
// stops the cycle between channels; the collected items are still enqueued.
func (c *Checker) Check(ctx context.Context, subscriberID int64) (Report, error) {
	report := Report{SubscriberID: subscriberID}

	channels, err := c.prefs.ListChannels(ctx, subscriberID)
	if err != nil {
		return report, fmt.Errorf("list channels: %w", err)
	}
	rules, err := c.prefs.GetRules(ctx, subscriberID)
	if err != nil {
		return report, fmt.Errorf("get rules: %w", err)
	}
	rules = c.withDefaults(rules)
	report.ChannelsTotal = len(channels)

	var cutoff time.Time
	if c.window > 0 {
		cutoff = c.now().UTC().Add(-c.window)
	}

	var items []delivery.Item
	for _, ch := range channels {
		if ctx.Err() != nil {
			break
		}

		raw, err := c.fetcher.Fetch(ctx, ch)
		if err != nil {
			c.log.Warn("check channel", "subscriber", subscriberID, "channel", ch, "error", err)
			report.Failures = append(report.Failures, ChannelFailure{Channel: ch, Err: err})
			continue
		}
		report.ChannelsChecked++

		for _, msg := range c.extractor.Extract(raw, ch) {
			if !cutoff.IsZero() && msg.Timestamp != nil && msg.Timestamp.Before(cutoff) {
				continue
			}
			report.Messages++

			v := c.analyzer.Analyze(msg, rules)
			if !v.Relevant {
				continue
			}
			report.Relevant++

			key := dedup.KeyFor(msg)
			ok, err := c.claims.Claim(ctx, subscriberID, key)
			if err != nil {
				c.log.Error("claim message", "subscriber", subscriberID, "channel", ch, "error", err)
				continue
			}
			if !ok {
				report.Duplicates++
				continue
			}
			items = append(items, delivery.Item{SubscriberID: subscriberID, Message: msg, Verdict: v, DedupKey: key})
		}
	}

	if len(items) > 0 {
		n, err := c.queue.Enqueue(subscriberID, items)
		report.Enqueued = n
		if err != nil && !errors.Is(err, delivery.ErrQueueFull) {
			c.log.Error("enqueue messages", "subscriber", subscriberID, "error", err)
		}
	}

	c.finish(ctx, report)

	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("check interrupted: %w", err)
	}
	return report, nil
}

func (c *Checker) finish(ctx context.Context, report Report) {
	ctx = context.WithoutCancel(ctx)
	now := c.now().UTC()
	if err := c.prefs.RecordCheck(ctx, report.Record(now)); err != nil {
		c.log.Error("record check", "subscriber", report.SubscriberID, "error", err)
	}
	if err := c.prefs.TouchSubscriber(ctx, report.SubscriberID, now); err != nil {
		c.log.Error("touch subscriber", "subscriber", report.SubscriberID, "error", err)
	}
	c.log.Info("check complete",
		"subscriber", report.SubscriberID,
		"channels", report.ChannelsChecked,
		"relevant", report.Relevant,
		"enqueued", report.Enqueued,
		"failed", len(report.Failures),
	)
}

func (c *Checker) withDefaults(rules model.RuleSet) model.RuleSet {
	if len(rules.Positive) > 0 || len(c.defaultKeywords) == 0 {
		return rules
	}
	positive := make([]model.KeywordRule, 0, len(c.defaultKeywords))
	for _, term := range c.defaultKeywords {
		positive = append(positive, model.KeywordRule{Term: term, Weight: model.DefaultWeight})
	}
	rules.Positive = positive
	return rules
}
