package command

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// TriggerDetector finds a trigger phrase inside a final transcript and
// returns the text that follows it.
//
// Matching is a case-insensitive substring search, not a word match: a word
// that embeds the phrase ("recreator") also triggers.
type TriggerDetector struct {
	Phrases []string
}

func NewTriggerDetector(phrases []string) *TriggerDetector {
	out := make([]string, 0, len(phrases))
	for _, p := range phrases {
		if s := strings.ToLower(strings.TrimSpace(p)); s != "" {
			out = append(out, s)
		}
	}
	return &TriggerDetector{Phrases: out}
}

// Detect returns (matched, remainder). The remainder is the original text
// after the earliest occurrence of any phrase, whitespace trimmed. When two
// phrases start at the same index the longer one wins.
func (d *TriggerDetector) Detect(text string) (bool, string) {
	if d == nil || text == "" {
		return false, ""
	}
	lower := strings.ToLower(text)
	best, bestLen := -1, 0
	for _, p := range d.Phrases {
		idx := strings.Index(lower, p)
		if idx < 0 {
			continue
		}
		if best < 0 || idx < best || (idx == best && len(p) > bestLen) {
			best, bestLen = idx, len(p)
		}
	}
	if best < 0 {
		return false, ""
	}
	end := best + bestLen
	if len(lower) != len(text) {
		end = originalOffset(text, end)
	}
	return true, strings.TrimSpace(text[end:])
}

// originalOffset maps a byte offset in strings.ToLower(text) back to text.
// ToLower maps rune by rune, so lowered widths can be summed per rune.
func originalOffset(text string, lowerOff int) int {
	n := 0
	for i, r := range text {
		if n >= lowerOff {
			return i
		}
		n += utf8.RuneLen(unicode.ToLower(r))
	}
	return len(text)
}

// tokenSet is an ordered list of lower-case tokens matched by substring.
type tokenSet []string

func newTokenSet(tokens []string) tokenSet {
	out := make(tokenSet, 0, len(tokens))
	for _, t := range tokens {
		if s := strings.ToLower(strings.TrimSpace(t)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// match reports whether lowerText contains any token.
func (ts tokenSet) match(lowerText string) bool {
	for _, t := range ts {
		if strings.Contains(lowerText, t) {
			return true
		}
	}
	return false
}
