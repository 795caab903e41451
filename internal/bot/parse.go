package bot

import (
	"fmt"
	"strconv"
	"strings"

	"tgwatch/internal/filter"
	"tgwatch/internal/model"
)

// clearArg resets a keyword list.
const clearArg = "clear"

// ParseChannelArg parses the argument of /add and /remove.
// Accepted forms: name, @name, t.me/name, https://t.me/s/name.
func ParseChannelArg(args string) (model.ChannelID, error) {
	fields := strings.Fields(args)
	if len(fields) != 1 {
		return "", fmt.Errorf("expected exactly one channel")
	}
	id := model.NormalizeChannel(fields[0])
	if id == "" {
		return "", fmt.Errorf("empty channel name")
	}
	for _, r := range id {
		if !(r == '_' || r >= 'a' && r <= 'z' || r >= '0' && r <= '9') {
			return "", fmt.Errorf("invalid channel name %q", string(id))
		}
	}
	return id, nil
}

// ParseKeywords parses a comma-separated list of "term[:weight]" entries.
// Weights outside the allowed range are clamped.
// Terms are lower-cased and duplicates keep their first occurrence.
func ParseKeywords(args string) ([]model.KeywordRule, error) {
	var rules []model.KeywordRule
	seen := make(map[string]bool)
	for _, entry := range strings.Split(args, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		// A suffix that is not a number belongs to the term, as in "re:invent".
		term, weight := entry, model.DefaultWeight
		if i := strings.LastIndex(entry, ":"); i >= 0 {
			if w, err := strconv.ParseFloat(strings.TrimSpace(entry[i+1:]), 64); err == nil {
				term, weight = entry[:i], w
			}
		}

		term = strings.ToLower(strings.TrimSpace(term))
		if err := filter.ValidateTerm(term); err != nil {
			return nil, err
		}
		if seen[term] {
			continue
		}
		seen[term] = true
		rules = append(rules, model.KeywordRule{Term: term, Weight: model.ClampWeight(weight)})
	}
	if len(rules) == 0 {
		return nil, fmt.Errorf("no keywords given")
	}
	return rules, nil
}

// ParseTerms parses a comma-separated list of negative terms.
func ParseTerms(args string) ([]string, error) {
	var terms []string
	seen := make(map[string]bool)
	for _, entry := range strings.Split(args, ",") {
		term := strings.ToLower(strings.TrimSpace(entry))
		if term == "" {
			continue
		}
		if term == model.FileSentinel {
			return nil, fmt.Errorf("%s cannot be a negative keyword", model.FileSentinel)
		}
		if err := filter.ValidateTerm(term); err != nil {
			return nil, err
		}
		if seen[term] {
			continue
		}
		seen[term] = true
		terms = append(terms, term)
	}
	if len(terms) == 0 {
		return nil, fmt.Errorf("no keywords given")
	}
	return terms, nil
}

// ParseToggle parses "on" or "off".
func ParseToggle(args string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(args)) {
	case "on", "yes", "1":
		return true, nil
	case "off", "no", "0":
		return false, nil
	}
	return false, fmt.Errorf("usage: /files on|off")
}
