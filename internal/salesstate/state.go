// Package salesstate implements the 13-state SPIN sales flow: the closed
// SalesState enumeration, the per-call ConversationState, BANT scoring, and
// the total routing function. Re-architected as tagged variants per the
// "no reflection, exhaustively checkable" design note: SalesState is a
// closed int enum and Route is a pure function, not a branchy object.
package salesstate

import (
	"regexp"
	"strings"
	"time"

	"github.com/ent0n29/salesagent/internal/intent"
)

// SalesState is the closed 13-state enumeration. S12 is terminal.
type SalesState int

const (
	S0 SalesState = iota
	S1
	S2
	S3
	S4
	S5
	S6
	S7
	S8
	S9
	S10
	S11
	S12
)

func (s SalesState) String() string {
	names := [...]string{"S0", "S1", "S2", "S3", "S4", "S5", "S6", "S7", "S8", "S9", "S10", "S11", "S12"}
	if int(s) < 0 || int(s) >= len(names) {
		return "S?"
	}
	return names[s]
}

// Terminal reports whether s has no out-edges.
func (s SalesState) Terminal() bool { return s == S12 }

// Phase groups states into the four SPIN macro-phases.
func (s SalesState) Phase() string {
	switch s {
	case S0, S1:
		return "opening"
	case S2, S3, S4:
		return "discovery"
	case S5, S6, S7:
		return "presentation"
	case S8:
		return "objection"
	default:
		return "closing"
	}
}

// ChannelTone tags the opening context of the call.
type ChannelTone string

const (
	ToneColdCall     ChannelTone = "cold_call"
	ToneWarmReferral ChannelTone = "warm_referral"
	ToneInbound      ChannelTone = "inbound"
)

// Tier is the BANT-derived lead qualification bucket.
type Tier string

const (
	TierHot      Tier = "hot_lead"
	TierWarm     Tier = "warm_lead"
	TierLukewarm Tier = "lukewarm"
	TierCold     Tier = "cold_lead"
)

// BANT holds the four monotone-non-decreasing sub-scores.
type BANT struct {
	Budget   float64
	Authority float64
	Need     float64
	Timeline float64
}

// Mean is the BANT tier input.
func (b BANT) Mean() float64 {
	return (b.Budget + b.Authority + b.Need + b.Timeline) / 4
}

// Tier buckets the mean BANT score.
func (b BANT) Tier() Tier {
	m := b.Mean()
	switch {
	case m >= 75:
		return TierHot
	case m >= 50:
		return TierWarm
	case m >= 30:
		return TierLukewarm
	default:
		return TierCold
	}
}

// raiseTo raises v to at least floor (monotone non-decreasing per turn).
func raiseTo(v, floor float64) float64 {
	if floor > v {
		return floor
	}
	return v
}

var (
	budgetRe    = regexp.MustCompile(`(?i)\$\d|\bdollars?\b|\bbudget(ed)?\b|\bcost\b`)
	authorityRe = regexp.MustCompile(`(?i)\bvp\b|\bvice president\b|\bchief\b|\bceo\b|\bcto\b|\bi (can|will) approve\b|\bi own this\b|\bi decide\b`)
	needRe      = regexp.MustCompile(`(?i)\bwe (struggle|suffer) with\b|\bwe need\b|\bpain point\b|\bit'?s costing us\b|\bwe'?re losing\b`)
	timelineRe  = regexp.MustCompile(`(?i)\bthis quarter\b|\bnext month\b|\bby (january|february|march|april|may|june|july|august|september|october|november|december)\b|\bas soon as possible\b|\basap\b|\bnext week\b`)
)

// ScoreBANT applies the keyword/regex heuristics from the turn's utterance
// and returns the updated (monotone) BANT sub-scores.
func ScoreBANT(prev BANT, utterance string) BANT {
	n := strings.ToLower(utterance)
	out := prev
	if budgetRe.MatchString(n) {
		out.Budget = raiseTo(out.Budget, 80)
	}
	if authorityRe.MatchString(n) {
		out.Authority = raiseTo(out.Authority, 85)
	}
	if needRe.MatchString(n) {
		out.Need = raiseTo(out.Need, 88)
	}
	if timelineRe.MatchString(n) {
		out.Timeline = raiseTo(out.Timeline, 85)
	}
	return out
}

// ConversationState is the per-call in-memory state the TurnHandler owns
// exclusively for the duration of one turn; between turns its durable
// fields are re-derived from the persisted Call row.
type ConversationState struct {
	State            SalesState
	EnteredAt        time.Time
	BANT             BANT
	DetectedIntents  []string
	ObjectionCount   int
	TechIssueCount   int
	EndCall          bool
	ChannelTone      ChannelTone
	LastPresentation SalesState // for objection-resolution return-to-previous
}

const maxTechIssues = 2

// hasSubstantiveAnswer is the exit predicate for rule 9: a non-trivial
// utterance that isn't empty/whitespace and carries at least two words.
func hasSubstantiveAnswer(utterance string) bool {
	return len(strings.Fields(strings.TrimSpace(utterance))) >= 2
}

// Route applies the nine routing rules in priority order and returns the
// next state. It is a total function: every (state, intents) pair has a
// defined next state, and S12 has no out-edges.
func Route(cs *ConversationState, in intent.Flags, utterance string) SalesState {
	cur := cs.State
	if cur.Terminal() {
		return S12
	}

	// Rule 1: hostile or hard refusal anywhere non-terminal. not_interested is
	// a high-priority refusal alongside hostile (spec §4.2: "hostile/
	// not_interested/no_time/tech_issue take precedence when routing"), so it
	// is checked here rather than deferred to rule 9 where a same-turn
	// confirm_yes/resonance/schedule intent could otherwise shadow it.
	if in.Hostile || in.NotInterested {
		return S12
	}

	// Rule 2: who-is-this — one-turn identification, no state advance.
	if in.WhoIsThis {
		return cur
	}

	// Rule 3: tech issue counter.
	if in.TechIssue {
		if cs.TechIssueCount >= maxTechIssues {
			return S12
		}
		cs.TechIssueCount++
		return cur
	}

	// Rule 4: no time.
	if in.NoTime {
		if cur == S0 {
			return S1
		}
		return S12
	}

	// Rule 5: permission at S1.
	if cur == S1 {
		if in.PermissionNo {
			return S12
		}
		if in.PermissionYes {
			return S2
		}
	}

	// Rule 6: objection handling at presentation states.
	if (cur == S6 || cur == S7) && isObjection(in) {
		cs.LastPresentation = cur
		cs.ObjectionCount++
		return S8
	}
	if cur == S8 && in.ConfirmYes {
		return cs.LastPresentation
	}

	// Rule 7: scheduling.
	if in.Schedule && cur >= S6 {
		return S11
	}
	if cur == S11 {
		if in.PermissionNo || in.Hesitation {
			return S10
		}
	}
	if cur == S10 {
		if in.PermissionNo {
			return S12
		}
	}

	// Rule 8.
	if cur == S4 && in.ConfirmYes {
		return S5
	}
	if cur == S6 && in.Resonance {
		return S7
	}
	if cur == S7 && in.Hesitation {
		return S10
	}

	// Rule 9: otherwise advance linearly when the exit predicate holds.
	if hasSubstantiveAnswer(utterance) && cur != S12 {
		return nextLinear(cur)
	}
	return cur
}

func nextLinear(cur SalesState) SalesState {
	if cur >= S11 {
		return S12
	}
	return cur + 1
}

func isObjection(in intent.Flags) bool {
	return in.Guarded || in.Hesitation
}
