package prompt

import (
	"strings"
	"testing"

	"github.com/ent0n29/salesagent/internal/salesstate"
	"github.com/ent0n29/salesagent/internal/storage"
)

func TestBuildIncludesLeadAndGoal(t *testing.T) {
	cs := &salesstate.ConversationState{State: salesstate.S2, ChannelTone: salesstate.ToneColdCall}
	lead := storage.Lead{Name: "Maya Chen", Company: "Acme", Title: "VP Ops"}
	out := Build(cs, lead, "", "We're looking to cut costs.")
	if !strings.Contains(out, "Maya Chen") {
		t.Fatalf("expected lead name in prompt")
	}
	if !strings.Contains(out, "Acme") || !strings.Contains(out, "VP Ops") {
		t.Fatalf("expected company and title in prompt")
	}
	if !strings.Contains(out, "discovery question") {
		t.Fatalf("expected S2 guidance in prompt")
	}
}

func TestBuildTruncatesTranscriptTail(t *testing.T) {
	cs := &salesstate.ConversationState{State: salesstate.S6, ChannelTone: salesstate.ToneColdCall}
	lead := storage.Lead{Name: "Sam"}
	long := strings.Repeat("x", TranscriptTailChars+500)
	out := Build(cs, lead, long, "tell me more")
	if strings.Count(out, "x") > TranscriptTailChars {
		t.Fatalf("expected transcript tail capped at %d chars", TranscriptTailChars)
	}
}

func TestBuildVariesToneWording(t *testing.T) {
	lead := storage.Lead{Name: "Sam"}
	cold := Build(&salesstate.ConversationState{State: salesstate.S0, ChannelTone: salesstate.ToneColdCall}, lead, "", "hi")
	referral := Build(&salesstate.ConversationState{State: salesstate.S0, ChannelTone: salesstate.ToneWarmReferral}, lead, "", "hi")
	if cold == referral {
		t.Fatalf("expected tone wording to differ between cold call and warm referral")
	}
}
