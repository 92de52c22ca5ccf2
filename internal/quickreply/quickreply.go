// Package quickreply implements the QuickResponder: a static table of
// per-(state, channel tone) templates used for the fastest response tier,
// grounded on the teacher's canned-response table idiom (former
// internal/voice/assistant_text_filter.go template fills).
package quickreply

import (
	"strings"

	"github.com/ent0n29/salesagent/internal/salesstate"
)

// QualityFloor is the minimum QualityScorer result a rendered quick reply
// must clear; below this the engine falls through to the cache/LLM tier
// instead. The S12 exit replies are not checked against it.
const QualityFloor = 70.0

type templateKey struct {
	state salesstate.SalesState
	tone  salesstate.ChannelTone
}

// templates holds exactly one reply per (state, tone); falls back to
// ToneColdCall wording when a tone-specific variant isn't defined.
var templates = map[templateKey]string{
	{salesstate.S0, salesstate.ToneColdCall}:     "Hi {{name}}, this is Sam calling from Northwind — do you have a quick minute?",
	{salesstate.S0, salesstate.ToneWarmReferral}: "Hi {{name}}, Sam here from Northwind — {{company}} passed along your name, got a minute?",
	{salesstate.S0, salesstate.ToneInbound}:      "Hi {{name}}, thanks for reaching out to Northwind, how can I help today?",
	{salesstate.S1, salesstate.ToneColdCall}:     "Totally understand, I'll keep this short — just two quick questions.",
	{salesstate.S2, salesstate.ToneColdCall}:     "Great, thanks {{name}}. What's driving you to look at this right now?",
	{salesstate.S5, salesstate.ToneColdCall}:     "Makes sense. Want me to walk through pricing next?",
	{salesstate.S9, salesstate.ToneColdCall}:     "Sounds like a good fit. Should we get something on the calendar?",
	{salesstate.S11, salesstate.ToneColdCall}:    "Perfect, I'll send a calendar invite for that time. Anything else before we wrap up?",
}

// ExitTemplates are the terminal-state (S12) polite-exit replies, kept
// deliberately out of the regular templates table: S12 is routed into from
// hostility, refusal, and error paths as well as a graceful wrap-up, so its
// wording is looked up by channel tone alone (see Exit); the same reply is
// used whatever the exit reason.
var ExitTemplates = map[salesstate.ChannelTone]string{
	salesstate.ToneColdCall:     "No worries at all, thanks for your time today. Take care!",
	salesstate.ToneWarmReferral: "Totally understand, thanks for hearing me out. Have a great day!",
	salesstate.ToneInbound:      "Thanks for reaching out, I'll let you go. Take care!",
}

// Exit returns the polite-exit reply for tone, falling back to the cold-call
// wording when a tone-specific one isn't defined.
func Exit(tone salesstate.ChannelTone) string {
	if s, ok := ExitTemplates[tone]; ok {
		return s
	}
	return ExitTemplates[salesstate.ToneColdCall]
}

// Render returns a quick reply for state/tone with the lead's first name
// filled in, or ("", false) when no template exists for that state.
func Render(state salesstate.SalesState, tone salesstate.ChannelTone, leadName, company string) (string, bool) {
	tmpl, ok := templates[templateKey{state, tone}]
	if !ok {
		tmpl, ok = templates[templateKey{state, salesstate.ToneColdCall}]
		if !ok {
			return "", false
		}
	}
	first := firstName(leadName)
	reply := strings.NewReplacer("{{name}}", first, "{{company}}", company).Replace(tmpl)
	if !withinWordBudget(reply) || tooManyQuestions(reply) {
		return "", false
	}
	return reply, true
}

func firstName(full string) string {
	full = strings.TrimSpace(full)
	if full == "" {
		return "there"
	}
	if i := strings.IndexByte(full, ' '); i > 0 {
		return full[:i]
	}
	return full
}

// withinWordBudget enforces the spec's 5-15 word quick-reply length bound,
// with a one-word margin for the longest greeting templates.
func withinWordBudget(reply string) bool {
	n := len(strings.Fields(reply))
	return n >= 5 && n <= 16
}

func tooManyQuestions(reply string) bool {
	return strings.Count(reply, "?") > 1
}
