// Package prompt builds state-keyed LLM prompts, grounded on the teacher's
// former internal/voice/orchestrator.go prompt-assembly step, generalized
// from a single system prompt into one template per SalesState.
package prompt

import (
	"fmt"
	"strings"

	"github.com/ent0n29/salesagent/internal/salesstate"
	"github.com/ent0n29/salesagent/internal/storage"
)

// MaxOutputTokens bounds LLM generations for a single turn reply.
const MaxOutputTokens = 150

// TranscriptTailChars is the maximum number of trailing transcript
// characters folded into a prompt, keeping prompt size bounded on long
// calls.
const TranscriptTailChars = 800

var stateGuidance = map[salesstate.SalesState]string{
	salesstate.S0:  "Open warmly and ask for a minute of their time.",
	salesstate.S1:  "Acknowledge the time concern and offer a shorter path.",
	salesstate.S2:  "Ask a discovery question about what's driving their interest.",
	salesstate.S3:  "Ask about budget range without being pushy.",
	salesstate.S4:  "Ask who else is involved in this kind of decision.",
	salesstate.S5:  "Summarize their need and ask about timeline.",
	salesstate.S6:  "Present the solution, tying it to what they told you.",
	salesstate.S7:  "Present pricing clearly and concisely.",
	salesstate.S8:  "Address the objection directly and empathetically.",
	salesstate.S9:  "Ask for a decision or the next concrete step.",
	salesstate.S10: "Acknowledge their decline gracefully, leave the door open.",
	salesstate.S11: "Confirm scheduling details precisely.",
	salesstate.S12: "Close the call politely and briefly.",
}

// Build assembles the full prompt text for one turn.
func Build(cs *salesstate.ConversationState, lead storage.Lead, transcript, utterance string) string {
	var b strings.Builder
	b.WriteString("You are Sam, an outbound sales rep for Northwind. ")
	b.WriteString(toneWording(cs.ChannelTone))
	b.WriteString(" Keep replies short, natural, and spoken, never more than two sentences. ")
	b.WriteString("Do not mention you are an AI.\n\n")

	fmt.Fprintf(&b, "Lead: %s", lead.Name)
	if lead.Company != "" {
		fmt.Fprintf(&b, ", %s", lead.Company)
	}
	if lead.Title != "" {
		fmt.Fprintf(&b, " (%s)", lead.Title)
	}
	b.WriteString("\n")

	if guidance, ok := stateGuidance[cs.State]; ok {
		fmt.Fprintf(&b, "Current goal: %s\n", guidance)
	}

	if tail := tailChars(transcript, TranscriptTailChars); tail != "" {
		fmt.Fprintf(&b, "\nRecent conversation:\n%s\n", tail)
	}

	fmt.Fprintf(&b, "\nThey just said: %q\nRespond as Sam:", utterance)
	return b.String()
}

func toneWording(tone salesstate.ChannelTone) string {
	switch tone {
	case salesstate.ToneWarmReferral:
		return "This lead came from a trusted referral, so be a little warmer and reference that connection."
	case salesstate.ToneInbound:
		return "This person reached out to you, so be helpful and responsive rather than pitchy."
	default:
		return "This is a cold outbound call, so earn their attention quickly and respect their time."
	}
}

func tailChars(transcript string, max int) string {
	if len(transcript) <= max {
		return transcript
	}
	return transcript[len(transcript)-max:]
}
