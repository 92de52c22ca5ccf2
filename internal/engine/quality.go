package engine

import (
	"strings"

	"github.com/ent0n29/salesagent/internal/quality"
)

// actionWords are phrases that signal the reply is driving toward a
// concrete next step, used as a coarse proxy for the ActionClarity
// sub-score.
var actionWords = []string{"schedule", "calendar", "call", "demo", "meeting", "next step", "pricing", "send"}

// estimateQuality derives the five QualityScorer sub-scores named in spec
// §4.10 (length, sentiment, question density, engagement, coherence) from
// the reply text alone (no external judge model is wired), grounded on the
// teacher's former internal/voice/assistant_text_filter.go heuristic
// pattern-matching style rather than an LLM-graded rubric.
func estimateQuality(reply, userText string) quality.SubScores {
	words := strings.Fields(reply)
	n := len(words)

	return quality.SubScores{
		Length:          concisenessScore(n),
		Sentiment:       sentimentScore(reply),
		QuestionDensity: questionDensityScore(reply),
		Engagement:      engagementOf(reply) * 100,
		Coherence:       coherenceScore(reply),
	}
}

// sentimentScore rescales sentimentOf's [-1,1] lexical-polarity estimate
// into the [0,100] range the other sub-scores share.
func sentimentScore(reply string) float64 {
	score := (sentimentOf(reply) + 1) * 50
	if score > 100 {
		return 100
	}
	if score < 0 {
		return 0
	}
	return score
}

// questionDensityScore rewards a reply in which some, but no more than half,
// of the sentences are questions (100); a bare statement scores 60 and a
// reply that is mostly questions, including a lone question, scores 65.
func questionDensityScore(reply string) float64 {
	density := questionDensityOf(reply)
	switch {
	case density == 0:
		return 60
	case density <= 0.5:
		return 100
	default:
		return 65
	}
}

// coherenceScore penalizes replies that lexically repeat themselves (a
// cheap stand-in for an incoherent/looping generation) and rewards replies
// that form at least one complete sentence.
func coherenceScore(reply string) float64 {
	if len(splitSentences(reply)) == 0 {
		return 0
	}
	score := 90.0
	for _, count := range wordCounts(reply) {
		if count >= 4 {
			score -= 20
		}
	}
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// wordCounts tallies occurrences of each word (4+ letters, punctuation
// trimmed) in s, used by coherenceScore to flag lexical repetition.
func wordCounts(s string) map[string]int {
	out := make(map[string]int)
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = strings.Trim(w, ".,!?;:\"'()")
		if len(w) >= 4 {
			out[w]++
		}
	}
	return out
}

// concisenessScore peaks around the quick-reply sweet spot and falls off
// for both curt and rambling replies.
func concisenessScore(wordCount int) float64 {
	switch {
	case wordCount == 0:
		return 0
	case wordCount <= 30:
		return 100
	case wordCount <= 55:
		return 80
	case wordCount <= 80:
		return 55
	default:
		return 30
	}
}

func toneScore(reply string) float64 {
	score := 85.0
	if strings.Contains(reply, "!") {
		score += 5
	}
	if score > 100 {
		score = 100
	}
	return score
}

func actionClarityScore(reply string) float64 {
	lower := strings.ToLower(reply)
	for _, w := range actionWords {
		if strings.Contains(lower, w) {
			return 90
		}
	}
	if strings.Contains(reply, "?") {
		return 75
	}
	return 60
}

var negativeWords = []string{"no", "not", "never", "can't", "won't", "stop", "don't", "sorry"}

// sentimentOf is a crude lexical polarity estimate in [-1,1], used for the
// quality score (via sentimentScore) and the operator quality-metrics
// endpoint, never for routing decisions.
func sentimentOf(reply string) float64 {
	lower := strings.ToLower(reply)
	score := 0.1
	if strings.Contains(lower, "great") || strings.Contains(lower, "thanks") || strings.Contains(lower, "good") {
		score += 0.4
	}
	for _, w := range negativeWords {
		if strings.Contains(lower, w) {
			score -= 0.3
			break
		}
	}
	if score > 1 {
		return 1
	}
	if score < -1 {
		return -1
	}
	return score
}

// questionDensityOf is the fraction of reply sentences that end in "?".
func questionDensityOf(reply string) float64 {
	sentences := splitSentences(reply)
	if len(sentences) == 0 {
		return 0
	}
	questions := 0
	for _, s := range sentences {
		if strings.HasSuffix(strings.TrimSpace(s), "?") {
			questions++
		}
	}
	return float64(questions) / float64(len(sentences))
}

func splitSentences(s string) []string {
	var out []string
	start := 0
	for i, r := range s {
		if r == '.' || r == '?' || r == '!' {
			seg := strings.TrimSpace(s[start : i+1])
			if seg != "" {
				out = append(out, seg)
			}
			start = i + 1
		}
	}
	if rest := strings.TrimSpace(s[start:]); rest != "" {
		out = append(out, rest)
	}
	return out
}

// engagementOf blends action clarity and tone into a single 0-1 proxy for
// how much the reply invites the lead to keep engaging.
func engagementOf(reply string) float64 {
	return (actionClarityScore(reply)/100 + toneScore(reply)/100) / 2
}
