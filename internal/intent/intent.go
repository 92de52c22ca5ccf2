// Package intent implements the single-pass 13-intent classifier run once
// per turn over the caller's normalized utterance.
package intent

import (
	"regexp"
	"strings"
)

// Flags reports which of the 13 recognized intents fired for one
// utterance. Multiple flags may be set simultaneously.
type Flags struct {
	NoTime        bool
	JustTell      bool
	Hostile       bool
	NotInterested bool
	TechIssue     bool
	WhoIsThis     bool
	PermissionYes bool
	PermissionNo  bool
	Guarded       bool
	ConfirmYes    bool
	Resonance     bool
	Hesitation    bool
	Schedule      bool
}

// Any reports whether at least one intent fired.
func (f Flags) Any() bool {
	return f.NoTime || f.JustTell || f.Hostile || f.NotInterested || f.TechIssue ||
		f.WhoIsThis || f.PermissionYes || f.PermissionNo || f.Guarded ||
		f.ConfirmYes || f.Resonance || f.Hesitation || f.Schedule
}

type pattern struct {
	re *regexp.Regexp
}

func compileAll(phrases ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(phrases))
	for _, p := range phrases {
		out = append(out, regexp.MustCompile(`(?i)\b`+p+`\b`))
	}
	return out
}

// Patterns are compiled exactly once at package init, mirroring the
// teacher's precompiled-classification idiom.
var (
	noTimePatterns = compileAll(
		`no time`, `not a good time`, `in a meeting`, `busy right now`, `call (me )?back later`,
	)
	justTellPatterns = compileAll(
		`just tell me`, `get to the point`, `what do you want`, `what is this (about|regarding)`,
	)
	hostilePatterns = compileAll(
		`scammers?`, `stop calling`, `take me off`, `do not call`, `don'?t call`, `f+u+c+k`, `go to hell`,
	)
	notInterestedPatterns = compileAll(
		`not interested`, `no thanks`, `we'?re (all )?set`, `not right now`,
		`stop calling`, `take me off`, `do not call`, `don'?t call`,
	)
	techIssuePatterns = compileAll(
		`can'?t hear you`, `you'?re breaking up`, `bad connection`, `static`, `cutting out`,
	)
	whoIsThisPatterns = compileAll(
		`who is this`, `who'?s calling`, `what company`,
	)
	permissionYesPatterns = compileAll(
		`sure`, `go ahead`, `yes please`, `okay`, `ok`, `sounds good`, `that'?s fine`,
	)
	permissionNoPatterns = compileAll(
		`no thank you`, `i'?d rather not`, `not right now`, `please don'?t`,
	)
	guardedPatterns = compileAll(
		`who gave you (this|my) number`, `how did you get my number`, `is this a sales call`,
	)
	confirmYesPatterns = compileAll(
		`that'?s right`, `exactly`, `correct`, `yes that'?s (it|true)`,
	)
	resonancePatterns = compileAll(
		`that makes sense`, `interesting`, `tell me more`, `i like that`,
	)
	hesitationPatterns = compileAll(
		`i'?m not sure`, `let me think`, `i need to check`, `maybe later`, `i'?ll have to see`,
	)
	schedulePatterns = compileAll(
		`set up a (demo|call|meeting)`, `schedule`, `next (week|tuesday|monday|wednesday|thursday|friday)`,
		`book (a|some) time`,
	)
)

func matchesAny(patterns []*regexp.Regexp, s string) bool {
	for _, re := range patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// Normalize lowercases, trims, and collapses internal whitespace — the
// same normalization ResponseCache keys are hashed from.
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return whitespaceRe.ReplaceAllString(s, " ")
}

// Detect runs the single-pass scan over utterance and returns every intent
// that fired. Precedence among hostile/not_interested/no_time/tech_issue is
// resolved by the caller (salesstate.Route), not here — Detect reports the
// raw flags.
func Detect(utterance string) Flags {
	n := Normalize(utterance)
	if n == "" {
		return Flags{}
	}
	return Flags{
		NoTime:        matchesAny(noTimePatterns, n),
		JustTell:      matchesAny(justTellPatterns, n),
		Hostile:       matchesAny(hostilePatterns, n),
		NotInterested: matchesAny(notInterestedPatterns, n),
		TechIssue:     matchesAny(techIssuePatterns, n),
		WhoIsThis:     matchesAny(whoIsThisPatterns, n),
		PermissionYes: matchesAny(permissionYesPatterns, n),
		PermissionNo:  matchesAny(permissionNoPatterns, n),
		Guarded:       matchesAny(guardedPatterns, n),
		ConfirmYes:    matchesAny(confirmYesPatterns, n),
		Resonance:     matchesAny(resonancePatterns, n),
		Hesitation:    matchesAny(hesitationPatterns, n),
		Schedule:      matchesAny(schedulePatterns, n),
	}
}
