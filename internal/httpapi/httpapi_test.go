package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/ent0n29/salesagent/internal/quality"
	"github.com/ent0n29/salesagent/internal/reliability"
	"github.com/ent0n29/salesagent/internal/salesstate"
	"github.com/ent0n29/salesagent/internal/storage"
	"github.com/ent0n29/salesagent/internal/turn"
)

type fakeTurn struct {
	startErr    error
	turnOutcome turn.Outcome
	turnErr     error
	lastCallID  string
	lastLeadID  string
	lastUtterance string
	statusCalls []storage.CallStatus
}

func (f *fakeTurn) StartCall(ctx context.Context, callID, leadID, carrierSessionID, phoneNumber string, tone salesstate.ChannelTone) error {
	f.lastCallID = callID
	f.lastLeadID = leadID
	return f.startErr
}

func (f *fakeTurn) HandleTurn(ctx context.Context, callID, utterance string) (turn.Outcome, error) {
	f.lastCallID = callID
	f.lastUtterance = utterance
	return f.turnOutcome, f.turnErr
}

func (f *fakeTurn) HandleStatus(ctx context.Context, callID string, status storage.CallStatus) error {
	f.statusCalls = append(f.statusCalls, status)
	return nil
}

type fakeQuality struct {
	snap quality.AggregateSnapshot
}

func (f *fakeQuality) QualitySnapshot() quality.AggregateSnapshot { return f.snap }

type fakeHTTPStore struct {
	call storage.Call
	err  error
}

func (s *fakeHTTPStore) GetCall(ctx context.Context, callID string) (storage.Call, error) {
	return s.call, s.err
}
func (s *fakeHTTPStore) GetLead(ctx context.Context, leadID string) (storage.Lead, error) {
	return storage.Lead{}, nil
}
func (s *fakeHTTPStore) CreateCall(ctx context.Context, call storage.Call) error { return nil }
func (s *fakeHTTPStore) UpdateCallStatus(ctx context.Context, callID string, status storage.CallStatus) error {
	return nil
}
func (s *fakeHTTPStore) AppendTranscript(ctx context.Context, callID, role, text, source string) error {
	return nil
}
func (s *fakeHTTPStore) SaveConversationState(ctx context.Context, callID string, snap storage.ConversationSnapshot) error {
	return nil
}
func (s *fakeHTTPStore) Close() {}

func newTestServer(t *testing.T, ft *fakeTurn, store *fakeHTTPStore) *Server {
	t.Helper()
	return New(Config{
		Turn:             ft,
		Store:            store,
		Bus:              nil,
		QualityEngine:    &fakeQuality{},
		VerifySignatures: false,
		TTSCacheDir:      t.TempDir(),
	})
}

func TestHandleInboundMissingLeadIDReturnsApologyMarkup(t *testing.T) {
	ft := &fakeTurn{}
	s := newTestServer(t, ft, &fakeHTTPStore{})
	req := httptest.NewRequest(http.MethodPost, "/webhook/call-1", strings.NewReader(url.Values{"CallSid": {"CA1"}, "To": {"+15550001111"}}.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()

	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "<Response>") {
		t.Fatalf("expected TwiML markup, got %q", w.Body.String())
	}
}

func TestHandleInboundStartsCallAndReturnsMarkup(t *testing.T) {
	ft := &fakeTurn{turnOutcome: turn.Outcome{ReplyText: "Hi there, is now a good time?", EndCall: false}}
	s := newTestServer(t, ft, &fakeHTTPStore{})
	req := httptest.NewRequest(http.MethodPost, "/webhook/call-1?lead_id=lead-9", strings.NewReader(url.Values{"CallSid": {"CA1"}, "To": {"+15550001111"}}.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()

	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ft.lastLeadID != "lead-9" {
		t.Fatalf("expected StartCall to receive lead-9, got %q", ft.lastLeadID)
	}
	if !strings.Contains(w.Body.String(), "Gather") {
		t.Fatalf("expected a Gather verb for a non-terminal turn, got %q", w.Body.String())
	}
}

func TestHandleTurnEndCallReturnsHangup(t *testing.T) {
	ft := &fakeTurn{turnOutcome: turn.Outcome{ReplyText: "Take care!", EndCall: true}}
	s := newTestServer(t, ft, &fakeHTTPStore{})
	req := httptest.NewRequest(http.MethodPost, "/webhook/call-1/turn", strings.NewReader(url.Values{"SpeechResult": {"no thanks, goodbye"}}.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()

	s.Router().ServeHTTP(w, req)

	if !strings.Contains(w.Body.String(), "Hangup") {
		t.Fatalf("expected a Hangup verb when the call ends, got %q", w.Body.String())
	}
	if ft.lastUtterance != "no thanks, goodbye" {
		t.Fatalf("expected SpeechResult to be forwarded, got %q", ft.lastUtterance)
	}
}

func TestHandleStatusTranslatesCarrierStatus(t *testing.T) {
	ft := &fakeTurn{}
	s := newTestServer(t, ft, &fakeHTTPStore{})
	req := httptest.NewRequest(http.MethodPost, "/webhook/call-1/status", strings.NewReader(url.Values{"CallStatus": {"in-progress"}}.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()

	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if len(ft.statusCalls) != 1 || ft.statusCalls[0] != storage.StatusInProgress {
		t.Fatalf("expected one in_progress status call, got %+v", ft.statusCalls)
	}
}

func TestHandleQualityMetricsReportsSnapshot(t *testing.T) {
	ft := &fakeTurn{}
	s := New(Config{
		Turn:  ft,
		Store: &fakeHTTPStore{},
		QualityEngine: &fakeQuality{snap: quality.AggregateSnapshot{
			TotalResponses:       10,
			ResponseDistribution: map[string]int{"quick": 5, "llm": 5},
			AvgOverallScore:      82,
		}},
		TTSCacheDir: t.TempDir(),
	})
	req := httptest.NewRequest(http.MethodGet, "/calls/quality/metrics", nil)
	w := httptest.NewRecorder()

	s.Router().ServeHTTP(w, req)

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["total_responses"].(float64) != 10 {
		t.Fatalf("unexpected total_responses: %+v", body)
	}
	if body["quality_status"] != "healthy" {
		t.Fatalf("expected healthy quality_status, got %v", body["quality_status"])
	}
}

func TestHandleTranscriptNotFound(t *testing.T) {
	ft := &fakeTurn{}
	s := newTestServer(t, ft, &fakeHTTPStore{err: context.DeadlineExceeded})
	req := httptest.NewRequest(http.MethodGet, "/calls/call-1/transcript", nil)
	w := httptest.NewRecorder()

	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestHandleCircuitStatusReportsBreakerStates(t *testing.T) {
	ft := &fakeTurn{}
	llmBreaker := reliability.NewCircuitBreaker(1, 0, 0)
	llmBreaker.RecordFailure()
	s := New(Config{
		Turn:          ft,
		Store:         &fakeHTTPStore{},
		QualityEngine: &fakeQuality{},
		LLMBreaker:    llmBreaker,
		TTSCacheDir:   t.TempDir(),
	})
	req := httptest.NewRequest(http.MethodGet, "/calls/circuit/status", nil)
	w := httptest.NewRecorder()

	s.Router().ServeHTTP(w, req)

	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["llm"] != "open" {
		t.Fatalf("expected llm breaker to report open, got %+v", body)
	}
}
