package bot

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"tgwatch/internal/cache"
	"tgwatch/internal/delivery"
	"tgwatch/internal/fetcher"
	"tgwatch/internal/model"
	"tgwatch/internal/scheduler"
	"tgwatch/internal/storage"
)

const (
	noChannelsText = "You are not watching any channels yet. Use /add <channel> to add one."
	timeFormat     = "2006-01-02 15:04 UTC"

	// Telegram rejects messages longer than 4096 characters.
	maxPreviewRunes = 3500
)

// Runtime holds the process counters shown by /stats. Nil parts are omitted.
type Runtime struct {
	Requests *fetcher.RequestSnapshot
	Cache    *cache.Stats
	Queue    *delivery.Stats
}

// FormatNotification formats a delivery item as a Telegram notification message.
func FormatNotification(item delivery.Item) string {
	msg := item.Message
	var b strings.Builder
	fmt.Fprintf(&b, "[@%s]", msg.ChannelID)
	if msg.Timestamp != nil {
		fmt.Fprintf(&b, " %s", msg.Timestamp.Format(timeFormat))
	}
	b.WriteString("\n\n")

	if msg.Text != "" {
		b.WriteString(truncate(msg.Text, maxPreviewRunes))
	}
	if len(msg.FileTypes) > 0 {
		if msg.Text != "" {
			b.WriteString("\n\n")
		}
		types := make([]string, 0, len(msg.FileTypes))
		for _, ft := range msg.FileTypes {
			types = append(types, string(ft))
		}
		fmt.Fprintf(&b, "Attachments: %s", strings.Join(types, ", "))
	}

	if terms := item.Verdict.MatchedTerms(); len(terms) > 0 {
		fmt.Fprintf(&b, "\n\nMatched: %s (score %s)", strings.Join(terms, ", "), formatFloat(item.Verdict.Score))
	}
	if msg.URL != "" {
		b.WriteString("\n\n")
		b.WriteString(msg.URL)
	}
	return b.String()
}

// FormatChannelList formats the watched channels for display.
func FormatChannelList(channels []model.ChannelID) string {
	if len(channels) == 0 {
		return noChannelsText
	}
	var b strings.Builder
	b.WriteString("Your channels:\n")
	for i, ch := range channels {
		fmt.Fprintf(&b, "\n%d. @%s", i+1, ch)
	}
	return b.String()
}

// FormatRules formats a rule set. Defaults are shown when no positive keyword is set.
func FormatRules(rules model.RuleSet, defaults []string) string {
	var b strings.Builder

	var files bool
	var keywords []string
	for _, r := range rules.Positive {
		if r.Term == model.FileSentinel {
			files = true
			continue
		}
		if r.Weight == model.DefaultWeight {
			keywords = append(keywords, r.Term)
		} else {
			keywords = append(keywords, r.Term+":"+formatFloat(r.Weight))
		}
	}

	switch {
	case len(keywords) > 0:
		fmt.Fprintf(&b, "Keywords: %s\n", strings.Join(keywords, ", "))
	case len(defaults) > 0 && !files:
		fmt.Fprintf(&b, "Keywords: none, using defaults (%s)\n", strings.Join(defaults, ", "))
	default:
		b.WriteString("Keywords: none\n")
	}

	if len(rules.Negative) > 0 {
		fmt.Fprintf(&b, "Negative: %s\n", strings.Join(rules.Negative, ", "))
	} else {
		b.WriteString("Negative: none\n")
	}

	if files {
		b.WriteString("Posts with files: forwarded")
	} else {
		b.WriteString("Posts with files: keywords only")
	}
	return b.String()
}

// FormatReport summarizes a check cycle.
func FormatReport(r scheduler.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Checked %d of %d channel(s).\n", r.ChannelsChecked, r.ChannelsTotal)
	fmt.Fprintf(&b, "Messages: %d, relevant: %d, already sent: %d\n", r.Messages, r.Relevant, r.Duplicates)
	if r.Enqueued > 0 {
		fmt.Fprintf(&b, "Queued %d new post(s) for delivery.", r.Enqueued)
	} else {
		b.WriteString("Nothing new.")
	}
	for _, f := range r.Failures {
		fmt.Fprintf(&b, "\n@%s: %s", f.Channel, fetcher.Describe(f.Err))
	}
	return b.String()
}

// FormatHistory formats recent check records, newest first.
func FormatHistory(checks []model.CheckRecord) string {
	if len(checks) == 0 {
		return "No checks yet."
	}
	var b strings.Builder
	b.WriteString("Recent checks:\n")
	for _, c := range checks {
		fmt.Fprintf(&b, "\n%s  %d/%d channels, %d relevant, %d queued",
			c.CheckedAt.Format(timeFormat), c.ChannelsChecked, c.ChannelsTotal, c.Relevant, c.Enqueued)
	}
	return b.String()
}

// FormatStats formats subscriber statistics and process counters.
func FormatStats(s storage.SubscriberStats, rt Runtime) string {
	var b strings.Builder
	b.WriteString("Your stats:\n")
	fmt.Fprintf(&b, "Channels: %d\n", s.Channels)
	fmt.Fprintf(&b, "Keywords: %d (+%d negative)\n", s.Keywords, s.Negative)
	fmt.Fprintf(&b, "Delivered: %d\n", s.Delivered)
	fmt.Fprintf(&b, "Checks: %d\n", s.Checks)
	if s.LastCheckAt != nil {
		fmt.Fprintf(&b, "Last check: %s\n", s.LastCheckAt.Format(timeFormat))
	}

	if rt.Requests != nil {
		fmt.Fprintf(&b, "\nRequests: %d ok, %d failed, %d timed out", rt.Requests.Success, rt.Requests.Failure, rt.Requests.Timeout)
	}
	if rt.Cache != nil {
		fmt.Fprintf(&b, "\nCache: %d pages, hit rate %.0f%%", rt.Cache.Size, rt.Cache.HitRate()*100)
	}
	if rt.Queue != nil {
		fmt.Fprintf(&b, "\nQueue: %d pending, %d delivered, %d failed", rt.Queue.Pending, rt.Queue.Delivered, rt.Queue.Failed)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}
