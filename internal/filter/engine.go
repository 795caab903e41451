// Package filter scores channel messages against subscriber keyword rules.
package filter

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"tgwatch/internal/model"
)

// Mode selects how negative terms affect relevance.
type Mode string

const (
	// ModeVeto rejects a message as soon as any negative term matches.
	ModeVeto Mode = "veto"
	// ModeWeighted subtracts negative matches from the positive score.
	ModeWeighted Mode = "weighted"
)

// DefaultThreshold is the net score a message must exceed in weighted mode.
const DefaultThreshold = 0.5

// Contribution multipliers per match mode, and the fixed file contribution.
const (
	wholeWordFactor  = 2.0
	boundaryFactor   = 1.5
	substringFactor  = 1.0
	fileContribution = 1.0
)

// MaxTermLength bounds a single keyword.
const MaxTermLength = 100

// ParseMode converts a configuration value to a Mode. Empty means ModeVeto.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeVeto:
		return ModeVeto, nil
	case ModeWeighted:
		return ModeWeighted, nil
	}
	return "", fmt.Errorf("unknown scoring mode %q (want %q or %q)", s, ModeVeto, ModeWeighted)
}

// Analyzer evaluates messages against rule sets. It is safe for concurrent use.
type Analyzer struct {
	mode      Mode
	threshold float64
}

// NewAnalyzer creates an Analyzer. The threshold only applies in weighted mode.
func NewAnalyzer(mode Mode, threshold float64) *Analyzer {
	if mode == "" {
		mode = ModeVeto
	}
	return &Analyzer{mode: mode, threshold: threshold}
}

// Mode returns the configured scoring mode.
func (a *Analyzer) Mode() Mode { return a.mode }

// Analyze scores msg against rules.
// A message is relevant when a positive term or the file sentinel matches,
// subject to the negative-term policy of the scoring mode.
func (a *Analyzer) Analyze(msg model.Message, rules model.RuleSet) model.Verdict {
	text := strings.ToLower(msg.Text)
	var v model.Verdict

	for _, rule := range rules.Positive {
		if rule.Term == model.FileSentinel {
			if msg.HasFile {
				v.MatchedByFile = true
				v.PositiveScore += fileContribution
				v.Matched = append(v.Matched, model.MatchedTerm{
					Term:         rule.Term,
					Mode:         model.MatchFile,
					Contribution: fileContribution,
				})
			}
			continue
		}

		mode := bestMatch(text, rule.Term)
		if mode == model.MatchNone {
			continue
		}
		c := model.ClampWeight(rule.Weight) * factor(mode)
		v.PositiveScore += c
		v.Matched = append(v.Matched, model.MatchedTerm{Term: rule.Term, Mode: mode, Contribution: c})
	}

	for _, term := range rules.Negative {
		mode := bestMatch(text, term)
		if mode == model.MatchNone {
			continue
		}
		c := model.DefaultWeight * factor(mode)
		v.Suppression += c
		v.Negatives = append(v.Negatives, model.MatchedTerm{Term: term, Mode: mode, Contribution: c})
	}

	matched := len(v.Matched) > 0
	switch a.mode {
	case ModeWeighted:
		v.Score = v.PositiveScore - v.Suppression
		v.Relevant = matched && v.Score > a.threshold
	default:
		v.Score = v.PositiveScore
		v.Relevant = matched && v.Suppression == 0
	}
	v.Suppressed = matched && !v.Relevant && v.Suppression > 0

	return v
}

func factor(m model.MatchMode) float64 {
	switch m {
	case model.MatchWholeWord:
		return wholeWordFactor
	case model.MatchBoundary:
		return boundaryFactor
	case model.MatchSubstring:
		return substringFactor
	}
	return 0
}

// bestMatch returns the strongest mode over all occurrences of term in text.
// text must already be lower-cased.
func bestMatch(text, term string) model.MatchMode {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return model.MatchNone
	}

	best := model.MatchNone
	for offset := 0; offset < len(text); {
		i := strings.Index(text[offset:], term)
		if i < 0 {
			break
		}
		start := offset + i
		end := start + len(term)

		m := classify(text, start, end)
		if m > best {
			best = m
			if best == model.MatchWholeWord {
				break
			}
		}

		_, size := utf8.DecodeRuneInString(text[start:])
		offset = start + size
	}
	return best
}

func classify(text string, start, end int) model.MatchMode {
	var before, after rune
	atStart, atEnd := start == 0, end == len(text)
	if !atStart {
		before, _ = utf8.DecodeLastRuneInString(text[:start])
	}
	if !atEnd {
		after, _ = utf8.DecodeRuneInString(text[end:])
	}

	if (atStart || unicode.IsSpace(before)) && (atEnd || unicode.IsSpace(after)) {
		return model.MatchWholeWord
	}
	if atStart || atEnd || !isAlnum(before) || !isAlnum(after) {
		return model.MatchBoundary
	}
	return model.MatchSubstring
}

func isAlnum(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// ValidateTerm checks whether a keyword can be stored.
func ValidateTerm(term string) error {
	term = strings.TrimSpace(term)
	switch {
	case term == "":
		return fmt.Errorf("empty keyword")
	case utf8.RuneCountInString(term) > MaxTermLength:
		return fmt.Errorf("keyword longer than %d characters", MaxTermLength)
	case strings.HasPrefix(term, "$") && term != model.FileSentinel:
		return fmt.Errorf("unknown special keyword %q", term)
	}
	return nil
}
