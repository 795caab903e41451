// Package extract turns raw channel pages into structured messages.
package extract

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"tgwatch/internal/model"
)

// Format parses one kind of channel document.
// Parse reports per-message problems through skip and keeps going; it
// returns an error only when the document as a whole is unusable.
type Format interface {
	Name() string
	Match(raw string) bool
	Parse(raw string, channel model.ChannelID, skip func(error)) ([]model.Message, error)
}

// DefaultFormats returns the feed format followed by the preview widget format.
func DefaultFormats() []Format {
	return []Format{NewFeedFormat(), NewWidgetFormat(DefaultMarkers())}
}

// Extractor picks the first matching Format for a page and normalizes its output.
type Extractor struct {
	formats []Format
	log     *slog.Logger
}

// New creates an Extractor. With no formats, DefaultFormats is used.
func New(log *slog.Logger, formats ...Format) *Extractor {
	if len(formats) == 0 {
		formats = DefaultFormats()
	}
	return &Extractor{formats: formats, log: log}
}

// Extract returns the non-empty messages of a page, newest first.
// It never fails: unusable documents yield no messages.
func (e *Extractor) Extract(raw string, channel model.ChannelID) []model.Message {
	f := e.formatFor(raw)
	if f == nil {
		e.log.Debug("no format matches page", "channel", channel)
		return nil
	}

	skipped := 0
	msgs, err := safeParse(f, raw, channel, func(err error) {
		skipped++
		e.log.Debug("skip message", "channel", channel, "format", f.Name(), "error", err)
	})
	if err != nil {
		e.log.Warn("parse channel page", "channel", channel, "format", f.Name(), "error", err)
		return nil
	}

	out := make([]model.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Empty() {
			skipped++
			continue
		}
		m.ChannelID = channel
		out = append(out, m)
	}
	SortNewestFirst(out)

	e.log.Debug("extracted messages", "channel", channel, "format", f.Name(), "count", len(out), "skipped", skipped)
	return out
}

func (e *Extractor) formatFor(raw string) Format {
	for _, f := range e.formats {
		if f.Match(raw) {
			return f
		}
	}
	return nil
}

func safeParse(f Format, raw string, channel model.ChannelID, skip func(error)) (msgs []model.Message, err error) {
	defer func() {
		if r := recover(); r != nil {
			msgs, err = nil, fmt.Errorf("%s format panicked: %v", f.Name(), r)
		}
	}()
	return f.Parse(raw, channel, skip)
}

// SortNewestFirst stable-sorts messages by descending timestamp.
// Messages without a timestamp sort as the oldest.
func SortNewestFirst(msgs []model.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return timestampOf(msgs[i]).After(timestampOf(msgs[j]))
	})
}

func timestampOf(m model.Message) time.Time {
	if m.Timestamp == nil {
		return time.Time{}
	}
	return *m.Timestamp
}

// parseItem runs fn and converts a panic into an error for the skip callback.
func parseItem(fn func() (model.Message, error)) (msg model.Message, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
