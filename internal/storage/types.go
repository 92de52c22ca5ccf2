// Package storage persists Call, Lead, and transcript rows over a pooled
// PostgreSQL connection using raw parameterized SQL, grounded on the
// teacher's memory.PostgresStore idiom (no ORM, explicit schema init).
package storage

import "time"

// CallStatus is the closed lifecycle-status enumeration for a Call row.
type CallStatus string

const (
	StatusQueued     CallStatus = "queued"
	StatusInitiated  CallStatus = "initiated"
	StatusRinging    CallStatus = "ringing"
	StatusInProgress CallStatus = "in_progress"
	StatusCompleted  CallStatus = "completed"
	StatusFailed     CallStatus = "failed"
	StatusCanceled   CallStatus = "canceled"
	StatusNoAnswer   CallStatus = "no_answer"
	StatusBusy       CallStatus = "busy"
)

// statusRank orders CallStatus so a redelivered status webhook never moves
// a Call backwards (the idempotent-webhook testable property in spec §8).
var statusRank = map[CallStatus]int{
	StatusQueued:     0,
	StatusInitiated:  1,
	StatusRinging:    2,
	StatusInProgress: 3,
	StatusCompleted:  4,
	StatusFailed:     4,
	StatusCanceled:   4,
	StatusNoAnswer:   4,
	StatusBusy:       4,
}

// Terminal reports whether status ends the call's lifecycle.
func (s CallStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCanceled, StatusNoAnswer, StatusBusy:
		return true
	default:
		return false
	}
}

// Call is a single telephony session row. Every field the TurnHandler needs
// to rebuild a turn's salesstate.ConversationState lives here rather than in
// a shared in-memory registry, so a turn can be handled by any process that
// can reach the database (spec §4.12 CallGraph ownership: "between turns it
// is persisted implicitly via the Call row plus derived re-detection").
type Call struct {
	ID                       string
	LeadID                   string
	CarrierSessionID         string
	PhoneNumber              string
	Status                   CallStatus
	StateID                  int // current SalesState
	ChannelTone              string
	BANTBudget               float64
	BANTAuthority            float64
	BANTNeed                 float64
	BANTTimeline             float64
	ObjectionCount           int
	TechIssueCount           int
	// LastPresentationStateID is the SalesState to return to when an S8
	// objection resolves (Route's "return-to-previous" rule); -1 means
	// "never set" (no presentation state entered yet this call).
	LastPresentationStateID int
	DetectedIntents         string // comma-joined, for the operator transcript view
	StartedAt               time.Time
	EndedAt                 *time.Time
	FullTranscript          string
	Summary                 string
	Sentiment               string
	InterestLevel           string
	RecordingURL            string
}

// ConversationSnapshot is the full per-turn write to a Call row's
// conversation-state columns, issued once per turn by TurnHandler after
// routing. Separate from the Call struct's read-shape so write sites enumerate
// exactly the columns a turn mutates.
type ConversationSnapshot struct {
	StateID                 int
	ChannelTone             string
	BANTBudget              float64
	BANTAuthority           float64
	BANTNeed                float64
	BANTTimeline            float64
	ObjectionCount          int
	TechIssueCount          int
	LastPresentationStateID int
	DetectedIntents         string
	EndCall                 bool
}

// Lead is the prospect the call is placed to; read-mostly from the core's
// perspective.
type Lead struct {
	ID         string
	Name       string
	Company    string
	Title      string
	Industry   string
	Phone      string
	ExtraNotes string
}

// TurnRecord is the durable record of one utterance/reply exchange,
// appended to Call.FullTranscript and optionally denormalized into the
// transcripts table.
type TurnRecord struct {
	CallID    string
	Role      string // "user" or "agent"
	Text      string
	Source    string // "quick" | "cached" | "llm" (agent turns only)
	CreatedAt time.Time
}
