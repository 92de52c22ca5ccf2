package engine

import (
	"strings"
	"testing"
)

func TestCleanReplyStripsSpeakerLabel(t *testing.T) {
	got := cleanReply("Sam: Hi there, do you have a quick minute?")
	if strings.HasPrefix(got, "Sam") {
		t.Fatalf("cleanReply(%q) = %q, want leading speaker label stripped", "Sam: ...", got)
	}
	if !strings.Contains(got, "Hi there") {
		t.Fatalf("cleanReply stripped too much: %q", got)
	}
}

func TestCleanReplyPreservesAtWordBudget(t *testing.T) {
	words := make([]string, maxSpokenWords)
	for i := range words {
		words[i] = "word"
	}
	reply := strings.Join(words, " ") + "."
	got := cleanReply(reply)
	if n := len(strings.Fields(got)); n != maxSpokenWords {
		t.Fatalf("cleanReply at budget = %d words, want %d (unchanged)", n, maxSpokenWords)
	}
}

func TestCleanReplyTruncatesBeyondWordBudgetOnSentenceBoundary(t *testing.T) {
	first := strings.Repeat("word ", 40)
	first = strings.TrimSpace(first) + "."
	second := strings.Repeat("more ", 40)
	second = strings.TrimSpace(second) + "."
	reply := first + " " + second

	got := cleanReply(reply)
	n := len(strings.Fields(got))
	if n > maxSpokenWords {
		t.Fatalf("cleanReply truncated result has %d words, want <= %d", n, maxSpokenWords)
	}
	if strings.Contains(got, "more") {
		t.Fatalf("cleanReply kept second sentence past the budget: %q", got)
	}
	if !strings.HasSuffix(strings.TrimSpace(got), ".") {
		t.Fatalf("cleanReply did not cut on a sentence boundary: %q", got)
	}
}
