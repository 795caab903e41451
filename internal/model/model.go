// Package model defines the domain types used across the application.
package model

import (
	"strings"
	"time"
)

// ChannelID is a normalized public channel handle: lower-cased, without the
// leading "@" or any t.me URL prefix.
type ChannelID string

// NormalizeChannel turns user input such as "@News", "t.me/news" or
// "https://t.me/s/news/" into a ChannelID. It returns "" for empty input.
func NormalizeChannel(raw string) ChannelID {
	s := strings.TrimSpace(strings.ToLower(raw))
	for _, prefix := range []string{"https://", "http://"} {
		s = strings.TrimPrefix(s, prefix)
	}
	for _, prefix := range []string{"www.", "t.me/s/", "telegram.me/s/", "t.me/", "telegram.me/"} {
		s = strings.TrimPrefix(s, prefix)
	}
	s = strings.TrimPrefix(s, "@")
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	return ChannelID(s)
}

// FileType identifies an attachment kind carried by a channel message.
type FileType string

// Supported file types, in detection order.
const (
	FilePhoto    FileType = "photo"
	FileVideo    FileType = "video"
	FileDocument FileType = "document"
	FileAudio    FileType = "audio"
	FileVoice    FileType = "voice"
	FileSticker  FileType = "sticker"
)

// FileTypes lists every supported file type in detection order.
var FileTypes = []FileType{FilePhoto, FileVideo, FileDocument, FileAudio, FileVoice, FileSticker}

// Message is one post extracted from a channel page.
// Timestamp is expressed in UTC with no other offset retained.
type Message struct {
	ChannelID  ChannelID
	ExternalID *int64
	Text       string
	Timestamp  *time.Time
	URL        string
	FileTypes  []FileType
	HasFile    bool
	Views      *int64
}

// Empty reports whether the message carries neither text nor files.
func (m Message) Empty() bool {
	return strings.TrimSpace(m.Text) == "" && len(m.FileTypes) == 0
}

// HasFileType reports whether the message carries the given file type.
func (m Message) HasFileType(ft FileType) bool {
	for _, t := range m.FileTypes {
		if t == ft {
			return true
		}
	}
	return false
}

// Keyword weight bounds.
const (
	DefaultWeight = 1.0
	MinWeight     = 0.1
	MaxWeight     = 5.0
)

// FileSentinel is the positive rule term that matches any message with a file.
const FileSentinel = "$file"

// KeywordRule is a single positive keyword with its scoring weight.
type KeywordRule struct {
	Term   string
	Weight float64
}

// ClampWeight maps a weight into [MinWeight, MaxWeight]; zero means DefaultWeight.
func ClampWeight(w float64) float64 {
	switch {
	case w == 0:
		return DefaultWeight
	case w < MinWeight:
		return MinWeight
	case w > MaxWeight:
		return MaxWeight
	}
	return w
}

// RuleSet is a subscriber's complete keyword configuration.
type RuleSet struct {
	Positive []KeywordRule
	Negative []string
}

// HasFileSentinel reports whether the positive rules include FileSentinel.
func (r RuleSet) HasFileSentinel() bool {
	for _, rule := range r.Positive {
		if rule.Term == FileSentinel {
			return true
		}
	}
	return false
}

// Terms returns the positive terms in declared order.
func (r RuleSet) Terms() []string {
	terms := make([]string, 0, len(r.Positive))
	for _, rule := range r.Positive {
		terms = append(terms, rule.Term)
	}
	return terms
}

// MatchMode describes how a term was found in a message text.
type MatchMode int

// Match modes, from weakest to strongest.
const (
	MatchNone MatchMode = iota
	MatchSubstring
	MatchBoundary
	MatchWholeWord
	MatchFile
)

func (m MatchMode) String() string {
	switch m {
	case MatchSubstring:
		return "substring"
	case MatchBoundary:
		return "boundary"
	case MatchWholeWord:
		return "word"
	case MatchFile:
		return "file"
	default:
		return "none"
	}
}

// MatchedTerm is a rule that contributed to a verdict.
type MatchedTerm struct {
	Term         string
	Mode         MatchMode
	Contribution float64
}

// Verdict is the relevance decision for one message against one rule set.
// Score is the value used for ranking deliveries.
type Verdict struct {
	Relevant      bool
	Score         float64
	PositiveScore float64
	Suppression   float64
	Matched       []MatchedTerm
	Negatives     []MatchedTerm
	MatchedByFile bool
	Suppressed    bool
}

// MatchedTerms returns the matched terms in declared order.
func (v Verdict) MatchedTerms() []string {
	terms := make([]string, 0, len(v.Matched))
	for _, m := range v.Matched {
		terms = append(terms, m.Term)
	}
	return terms
}

// DeliveryRecord marks a message as delivered to a subscriber.
type DeliveryRecord struct {
	DedupKey     string
	SubscriberID int64
	ChannelID    ChannelID
	ExternalID   *int64
	SentAt       time.Time
}

// Subscriber is a chat that receives notifications.
type Subscriber struct {
	ID          int64
	Username    string
	CreatedAt   time.Time
	LastCheckAt *time.Time
}

// CheckRecord summarizes one check cycle for a subscriber.
type CheckRecord struct {
	SubscriberID    int64
	ChannelsTotal   int
	ChannelsChecked int
	Relevant        int
	Enqueued        int
	CheckedAt       time.Time
}
