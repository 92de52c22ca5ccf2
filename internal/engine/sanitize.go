// Package engine implements the ResponseEngine, grounded on the teacher's
// former internal/voice/orchestrator.go turn pipeline. This file carries the
// reply-cleaning step, adapted from internal/voice/speech_text.go and
// assistant_text_filter.go, generalized from a chat-markup stripper into a
// spoken-reply sanitizer.
package engine

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	urlPattern          = regexp.MustCompile(`https?://\S+`)
	fencedCodePattern   = regexp.MustCompile("(?s)```.*?```")
	inlineCodePattern   = regexp.MustCompile("`[^`]*`")
	markdownLinkPattern = regexp.MustCompile(`\[(.*?)\]\((.*?)\)`)
	speakerLabelPattern = regexp.MustCompile(`(?i)^\s*[a-z][a-z]*(?:\s[a-z]+)?\s*:\s+`)
)

// maxSpokenWords is the spec §4.4(a) soft word budget (~55 words / 12s of
// speech). A reply at or under the budget is left untouched; beyond it, the
// reply is truncated at the last sentence boundary that still fits.
const maxSpokenWords = 55

// cleanReply strips markup/symbol noise and any leading speaker label from
// an LLM reply, then enforces the spoken-length budget, so it reads as a
// natural spoken sentence before being handed to TTS.
func cleanReply(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	raw = speakerLabelPattern.ReplaceAllString(raw, "")
	raw = fencedCodePattern.ReplaceAllString(raw, " ")
	raw = inlineCodePattern.ReplaceAllString(raw, " ")
	raw = markdownLinkPattern.ReplaceAllString(raw, "$1")
	raw = urlPattern.ReplaceAllString(raw, " ")

	raw = strings.NewReplacer(
		"*", " ",
		"_", " ",
		"\\", " ",
		"/", " ",
		"|", " ",
		"#", " ",
		"~", " ",
		"<", " ",
		">", " ",
	).Replace(raw)

	var b strings.Builder
	b.Grow(len(raw))
	prevSpace := true
	for _, r := range raw {
		switch {
		case r == '‍' || r == '️' || r == '⃣':
			continue
		case unicode.IsSpace(r):
			if !prevSpace {
				b.WriteByte(' ')
				prevSpace = true
			}
		case unicode.IsControl(r):
			continue
		case unicode.In(r, unicode.So, unicode.Sm, unicode.Sk):
			continue
		case safeSpokenPunctuation(r):
			b.WriteRune(r)
			prevSpace = false
		case unicode.IsPunct(r):
			if !prevSpace {
				b.WriteByte(' ')
				prevSpace = true
			}
		default:
			b.WriteRune(r)
			prevSpace = false
		}
	}
	return truncateToWordBudget(strings.TrimSpace(b.String()))
}

// truncateToWordBudget leaves s untouched at or under maxSpokenWords words
// (spec §8: "exactly at the soft length limit, the cleaner preserves the
// reply"); beyond it, it drops whole sentences from the end until what's
// left fits, so the cut always lands on a sentence boundary rather than
// mid-word.
func truncateToWordBudget(s string) string {
	if len(strings.Fields(s)) <= maxSpokenWords {
		return s
	}
	sentences := splitSentences(s)
	var kept []string
	words := 0
	for _, sentence := range sentences {
		n := len(strings.Fields(sentence))
		if words+n > maxSpokenWords {
			break
		}
		kept = append(kept, sentence)
		words += n
	}
	if len(kept) == 0 {
		// No single sentence fits the budget (e.g. one long run-on with no
		// terminal punctuation): hard-cut at the word boundary instead.
		return strings.Join(strings.Fields(s)[:maxSpokenWords], " ")
	}
	return strings.Join(kept, " ")
}

func safeSpokenPunctuation(r rune) bool {
	switch r {
	case '.', ',', '!', '?', ':', ';', '\'', '"', '-', '(', ')':
		return true
	default:
		return false
	}
}
