package turn

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ent0n29/salesagent/internal/broadcast"
	"github.com/ent0n29/salesagent/internal/engine"
	"github.com/ent0n29/salesagent/internal/observability"
	"github.com/ent0n29/salesagent/internal/salesstate"
	"github.com/ent0n29/salesagent/internal/storage"
)

type fakeStore struct {
	mu     sync.Mutex
	calls  map[string]storage.Call
	leads  map[string]storage.Lead
	turns  []storage.TurnRecord
}

func newFakeStore() *fakeStore {
	return &fakeStore{calls: make(map[string]storage.Call), leads: make(map[string]storage.Lead)}
}

func (s *fakeStore) GetCall(ctx context.Context, callID string) (storage.Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[callID], nil
}

func (s *fakeStore) GetLead(ctx context.Context, leadID string) (storage.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leads[leadID], nil
}

func (s *fakeStore) CreateCall(ctx context.Context, call storage.Call) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[call.ID] = call
	return nil
}

func (s *fakeStore) UpdateCallStatus(ctx context.Context, callID string, status storage.CallStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.calls[callID]
	c.Status = status
	s.calls[callID] = c
	return nil
}

func (s *fakeStore) AppendTranscript(ctx context.Context, callID, role, text, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, storage.TurnRecord{CallID: callID, Role: role, Text: text, Source: source, CreatedAt: time.Now()})
	return nil
}

func (s *fakeStore) SaveConversationState(ctx context.Context, callID string, snap storage.ConversationSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.calls[callID]
	c.StateID = snap.StateID
	c.ChannelTone = snap.ChannelTone
	c.BANTBudget = snap.BANTBudget
	c.BANTAuthority = snap.BANTAuthority
	c.BANTNeed = snap.BANTNeed
	c.BANTTimeline = snap.BANTTimeline
	c.ObjectionCount = snap.ObjectionCount
	c.TechIssueCount = snap.TechIssueCount
	c.LastPresentationStateID = snap.LastPresentationStateID
	c.DetectedIntents = snap.DetectedIntents
	if snap.EndCall {
		c.Status = storage.StatusCompleted
	}
	s.calls[callID] = c
	return nil
}

func (s *fakeStore) Close() {}

func (s *fakeStore) turnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}

type fakeEngine struct {
	reply string
}

func (f *fakeEngine) Generate(ctx context.Context, call storage.Call, lead storage.Lead, cs *salesstate.ConversationState, utterance string, lt *observability.LatencyTracker) engine.Result {
	return engine.Result{ReplyText: f.reply, Source: "quick", Audio: []byte("audio")}
}

func setup(t *testing.T, reply string) (*Handler, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	store.leads["lead-1"] = storage.Lead{ID: "lead-1", Name: "Jordan Price", Company: "Acme"}
	bus := broadcast.New(nil)
	h := New(store, &fakeEngine{reply: reply}, bus, nil)
	if err := h.StartCall(context.Background(), "call-1", "lead-1", "CA123", "+15551234567", salesstate.ToneColdCall); err != nil {
		t.Fatalf("StartCall: %v", err)
	}
	return h, store
}

func TestHandleTurnRepliesAndPersists(t *testing.T) {
	h, store := setup(t, "Great, thanks for sharing that.")

	out, err := h.HandleTurn(context.Background(), "call-1", "sure, go ahead")
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if out.ReplyText == "" {
		t.Fatal("expected a reply")
	}

	deadline := time.After(time.Second)
	for store.turnCount() < 2 {
		select {
		case <-deadline:
			t.Fatalf("expected 2 persisted transcript turns, got %d", store.turnCount())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestHandleTurnHostileEndsCall(t *testing.T) {
	h, _ := setup(t, "Understood.")

	out, err := h.HandleTurn(context.Background(), "call-1", "stop calling me, scammers")
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if !out.EndCall {
		t.Fatal("expected hostile utterance to end the call")
	}
}

func TestHandleStatusIsIdempotentAgainstRegression(t *testing.T) {
	h, store := setup(t, "hi")
	ctx := context.Background()

	if err := h.HandleStatus(ctx, "call-1", storage.StatusInProgress); err != nil {
		t.Fatalf("HandleStatus: %v", err)
	}
	if err := h.HandleStatus(ctx, "call-1", storage.StatusRinging); err != nil {
		t.Fatalf("HandleStatus regression: %v", err)
	}

	call, _ := store.GetCall(ctx, "call-1")
	if call.Status != storage.StatusInProgress {
		t.Fatalf("expected status to stay in_progress, got %s", call.Status)
	}
}

func TestHandleStatusAppliesTerminalStatus(t *testing.T) {
	h, store := setup(t, "hi")
	ctx := context.Background()

	if err := h.HandleStatus(ctx, "call-1", storage.StatusCompleted); err != nil {
		t.Fatalf("HandleStatus: %v", err)
	}
	call, _ := store.GetCall(ctx, "call-1")
	if call.Status != storage.StatusCompleted {
		t.Fatalf("expected completed status, got %s", call.Status)
	}
}
