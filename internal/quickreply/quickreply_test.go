package quickreply

import (
	"strings"
	"testing"

	"github.com/ent0n29/salesagent/internal/salesstate"
)

func TestRenderFillsFirstName(t *testing.T) {
	reply, ok := Render(salesstate.S0, salesstate.ToneColdCall, "Maya Chen", "Acme")
	if !ok {
		t.Fatalf("expected a template for S0/ToneColdCall")
	}
	if !strings.Contains(reply, "Maya") {
		t.Fatalf("expected first name filled in, got %q", reply)
	}
	if strings.Contains(reply, "Chen") {
		t.Fatalf("expected only first name, got %q", reply)
	}
}

func TestRenderFallsBackToColdCallTone(t *testing.T) {
	reply, ok := Render(salesstate.S2, salesstate.ToneInbound, "Sam", "Acme")
	if !ok || reply == "" {
		t.Fatalf("expected fallback to ToneColdCall template for S2")
	}
}

func TestRenderMissingTemplateReturnsFalse(t *testing.T) {
	if _, ok := Render(salesstate.S12, salesstate.ToneColdCall, "Sam", "Acme"); ok {
		t.Fatalf("expected no quick template for terminal state S12")
	}
}

func TestRenderRespectsWordBudgetAndSingleQuestion(t *testing.T) {
	for key, tmpl := range templates {
		reply, ok := Render(key.state, key.tone, "Alex Rivera", "Acme")
		if !ok {
			continue
		}
		n := len(strings.Fields(reply))
		if n < 5 || n > 16 {
			t.Errorf("template %q has %d words, outside budget", tmpl, n)
		}
		if strings.Count(reply, "?") > 1 {
			t.Errorf("template %q has more than one question", tmpl)
		}
	}
}
