// Package turn implements the TurnHandler: the critical path run once per
// carrier speech-result webhook, grounded on the teacher's former
// internal/voice/orchestrator.go RunConnection turn lifecycle (turn
// bookkeeping, saveTurnBestEffort fire-and-forget persistence, non-blocking
// outbound broadcast), transplanted from a per-connection websocket loop
// into a stateless per-webhook-request handler.
package turn

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ent0n29/salesagent/internal/broadcast"
	"github.com/ent0n29/salesagent/internal/engine"
	"github.com/ent0n29/salesagent/internal/intent"
	"github.com/ent0n29/salesagent/internal/observability"
	"github.com/ent0n29/salesagent/internal/policy"
	"github.com/ent0n29/salesagent/internal/salesstate"
	"github.com/ent0n29/salesagent/internal/storage"
)

var tracer = otel.Tracer("internal/turn")

// persistTimeout bounds every fire-and-forget background persistence call,
// isolated from the request's own context so a slow/canceled webhook
// response never aborts the durable transcript append.
const persistTimeout = 5 * time.Second

// Engine is the subset of engine.Engine the handler depends on.
type Engine interface {
	Generate(ctx context.Context, call storage.Call, lead storage.Lead, cs *salesstate.ConversationState, utterance string, lt *observability.LatencyTracker) engine.Result
}

// Handler runs the full per-turn pipeline: intent detection, routing,
// response generation, best-effort persistence, and broadcast. It holds no
// shared mutable call state of its own (spec §4.12 CallGraph ownership):
// every turn rebuilds salesstate.ConversationState from the Call row it
// loads and starts a background write of it back to that row before
// returning, so any Handler instance in any process can take the next turn
// for a given call once that write has landed.
type Handler struct {
	store   storage.Store
	engine  Engine
	bus     *broadcast.Bus
	metrics *observability.Metrics
}

func New(store storage.Store, eng Engine, bus *broadcast.Bus, metrics *observability.Metrics) *Handler {
	return &Handler{
		store:   store,
		engine:  eng,
		bus:     bus,
		metrics: metrics,
	}
}

// noPresentationState marks Call.LastPresentationStateID as "not entered
// yet" (S0 is itself a valid state, so zero can't serve as the sentinel).
const noPresentationState = -1

// Outcome is what the carrier webhook handler turns into markup.
type Outcome struct {
	ReplyText string
	Audio     []byte
	AudioErr  error
	EndCall   bool
	Source    string
}

// StartCall creates the Call row, seeds its ConversationState, and
// publishes the call_initiated broadcast event. Called from the carrier's
// initial webhook (before any speech result exists).
func (h *Handler) StartCall(ctx context.Context, callID, leadID, carrierSessionID, phoneNumber string, tone salesstate.ChannelTone) error {
	call := storage.Call{
		ID:                      callID,
		LeadID:                  leadID,
		CarrierSessionID:        carrierSessionID,
		PhoneNumber:             phoneNumber,
		Status:                  storage.StatusInitiated,
		StateID:                 int(salesstate.S0),
		ChannelTone:             string(tone),
		LastPresentationStateID: noPresentationState,
		StartedAt:               time.Now().UTC(),
	}
	if err := h.store.CreateCall(ctx, call); err != nil {
		return fmt.Errorf("start call %s: %w", callID, err)
	}

	if h.metrics != nil {
		h.metrics.ActiveCalls.Inc()
		h.metrics.ObserveCallEvent(string(storage.StatusInitiated))
	}
	h.bus.CallInitiated(callID, leadID, phoneNumber)
	return nil
}

// conversationStateFromCall rebuilds a turn's ConversationState from the
// persisted Call row alone — the durable home for everything Route and the
// engine need between turns, per spec §4.12.
func conversationStateFromCall(call storage.Call) *salesstate.ConversationState {
	lastPresentation := salesstate.S0
	if call.LastPresentationStateID >= 0 {
		lastPresentation = salesstate.SalesState(call.LastPresentationStateID)
	}
	return &salesstate.ConversationState{
		State:     salesstate.SalesState(call.StateID),
		EnteredAt: time.Now().UTC(),
		BANT: salesstate.BANT{
			Budget:    call.BANTBudget,
			Authority: call.BANTAuthority,
			Need:      call.BANTNeed,
			Timeline:  call.BANTTimeline,
		},
		DetectedIntents:  splitNonEmpty(call.DetectedIntents, ","),
		ObjectionCount:   call.ObjectionCount,
		TechIssueCount:   call.TechIssueCount,
		ChannelTone:      salesstate.ChannelTone(call.ChannelTone),
		LastPresentation: lastPresentation,
	}
}

// conversationSnapshot captures cs after routing into the shape
// SaveConversationState persists, so the next turn (in this process or any
// other) can rebuild the identical ConversationState.
func conversationSnapshot(cs *salesstate.ConversationState, next salesstate.SalesState, endCall bool) storage.ConversationSnapshot {
	// S0 is never a presentation state, so it only ever means "unset" here.
	lastPresentation := noPresentationState
	if cs.LastPresentation != salesstate.S0 {
		lastPresentation = int(cs.LastPresentation)
	}
	return storage.ConversationSnapshot{
		StateID:                 int(next),
		ChannelTone:             string(cs.ChannelTone),
		BANTBudget:              cs.BANT.Budget,
		BANTAuthority:           cs.BANT.Authority,
		BANTNeed:                cs.BANT.Need,
		BANTTimeline:            cs.BANT.Timeline,
		ObjectionCount:          cs.ObjectionCount,
		TechIssueCount:          cs.TechIssueCount,
		LastPresentationStateID: lastPresentation,
		DetectedIntents:         strings.Join(cs.DetectedIntents, ","),
		EndCall:                 endCall,
	}
}

func splitNonEmpty(s, sep string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, sep)
}

// HandleTurn runs one full turn: detect intent, route state, generate a
// reply, persist best-effort, and broadcast.
func (h *Handler) HandleTurn(ctx context.Context, callID, utterance string) (Outcome, error) {
	ctx, span := tracer.Start(ctx, "turn.handle", trace.WithAttributes(attribute.String("call_id", callID)))
	defer span.End()

	call, err := h.store.GetCall(ctx, callID)
	if err != nil {
		return Outcome{}, fmt.Errorf("load call %s: %w", callID, err)
	}
	lead, err := h.store.GetLead(ctx, call.LeadID)
	if err != nil {
		return Outcome{}, fmt.Errorf("load lead %s: %w", call.LeadID, err)
	}

	cs := conversationStateFromCall(call)
	span.SetAttributes(attribute.String("sales_state", cs.State.String()))

	lt := observability.NewLatencyTracker(h.metrics)
	observability.MarkSpan(ctx, lt, "turn_start")

	in := intent.Detect(utterance)
	cs.BANT = salesstate.ScoreBANT(cs.BANT, utterance)
	recordDetectedIntents(cs, in)
	next := salesstate.Route(cs, in, utterance)
	cs.State = next
	cs.EndCall = next.Terminal()
	observability.MarkSpan(ctx, lt, "routed")
	span.SetAttributes(attribute.String("sales_state_next", next.String()))

	redactedUtterance, _ := policy.RedactPII(utterance)
	h.saveTurnBestEffort(callID, "user", utterance, "", nil)
	h.bus.CallTranscriptUpdate(callID, "lead", redactedUtterance, true)

	result := h.engine.Generate(ctx, call, lead, cs, utterance, lt)
	observability.MarkSpan(ctx, lt, "reply_ready")

	redactedReply, _ := policy.RedactPII(result.ReplyText)
	h.saveTurnBestEffort(callID, "agent", result.ReplyText, result.Source, lt)
	h.bus.CallTranscriptUpdate(callID, "assistant", redactedReply, true)
	h.bus.CallInProgress(callID, next.String())

	h.saveCallState(callID, conversationSnapshot(cs, next, cs.EndCall))
	if cs.EndCall {
		h.endCall()
	}

	stages := lt.Finish()
	span.SetAttributes(attribute.Int64("total_ms", stages["total"].Milliseconds()))
	observability.LogEvent("turn_complete",
		"call_id", callID, "state", next.String(), "source", result.Source,
		"total_ms", stages["total"].Milliseconds())

	return Outcome{
		ReplyText: result.ReplyText,
		Audio:     result.Audio,
		AudioErr:  result.AudioErr,
		EndCall:   cs.EndCall,
		Source:    result.Source,
	}, nil
}

// HandleStatus applies a carrier lifecycle-status webhook idempotently:
// redelivery of an already-applied or earlier status is a no-op (spec §8's
// idempotent-webhook property), implemented via storage.IsStatusRegression.
func (h *Handler) HandleStatus(ctx context.Context, callID string, status storage.CallStatus) error {
	call, err := h.store.GetCall(ctx, callID)
	if err != nil {
		return fmt.Errorf("load call %s: %w", callID, err)
	}
	if storage.IsStatusRegression(call.Status, status) || call.Status == status {
		return nil
	}
	if err := h.store.UpdateCallStatus(ctx, callID, status); err != nil {
		return fmt.Errorf("update call status %s: %w", callID, err)
	}
	if h.metrics != nil {
		h.metrics.ObserveCallEvent(string(status))
	}
	h.bus.CallStatus(callID, string(status))
	if status.Terminal() {
		h.endCall()
	}
	return nil
}

func (h *Handler) endCall() {
	if h.metrics != nil {
		h.metrics.ActiveCalls.Dec()
	}
}

// saveTurnBestEffort persists one transcript line on its own isolated
// context/timeout so a canceled or slow carrier request never drops the
// durable record, grounded on the teacher's former
// voice.Orchestrator.saveTurnBestEffort. lt is non-nil only for the turn's
// final (agent-reply) append, after which persist_done is marked (spec
// §4.11); it stays nil for the earlier user-utterance append so the stage
// is recorded exactly once per turn.
func (h *Handler) saveTurnBestEffort(callID, role, text, source string, lt *observability.LatencyTracker) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := h.store.AppendTranscript(ctx, callID, role, text, source); err != nil {
			observability.LogEvent("persist_transcript_failed", "call_id", callID, "err", err)
		}
		lt.Mark("persist_done")
	}()
}

func (h *Handler) saveCallState(callID string, snap storage.ConversationSnapshot) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := h.store.SaveConversationState(ctx, callID, snap); err != nil {
			observability.LogEvent("persist_state_failed", "call_id", callID, "err", err)
		}
	}()
}

func recordDetectedIntents(cs *salesstate.ConversationState, in intent.Flags) {
	for _, name := range firedIntentNames(in) {
		if !containsString(cs.DetectedIntents, name) {
			cs.DetectedIntents = append(cs.DetectedIntents, name)
		}
	}
}

func firedIntentNames(in intent.Flags) []string {
	var names []string
	add := func(fired bool, name string) {
		if fired {
			names = append(names, name)
		}
	}
	add(in.NoTime, "no_time")
	add(in.JustTell, "just_tell")
	add(in.Hostile, "hostile")
	add(in.NotInterested, "not_interested")
	add(in.TechIssue, "tech_issue")
	add(in.WhoIsThis, "who_is_this")
	add(in.PermissionYes, "permission_yes")
	add(in.PermissionNo, "permission_no")
	add(in.Guarded, "guarded")
	add(in.ConfirmYes, "confirm_yes")
	add(in.Resonance, "resonance")
	add(in.Hesitation, "hesitation")
	add(in.Schedule, "schedule")
	return names
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
