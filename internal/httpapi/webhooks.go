package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ent0n29/salesagent/internal/observability"
	"github.com/ent0n29/salesagent/internal/salesstate"
	"github.com/ent0n29/salesagent/internal/storage"
)

const signatureHeader = "X-Twilio-Signature"

// verifySignature implements spec §6.1's "HMAC-SHA256 over the canonical
// URL + sorted form fields, constant-time comparison" requirement via the
// carrier SDK's own validator rather than a hand-rolled HMAC, grounded on
// twilio-go/client.RequestValidator.
func (s *Server) verifySignature(r *http.Request) bool {
	if !s.verifySigs || s.validator == nil {
		return true
	}
	sig := r.Header.Get(signatureHeader)
	if sig == "" {
		return false
	}
	if err := r.ParseForm(); err != nil {
		return false
	}
	params := make(map[string]string, len(r.PostForm))
	for k := range r.PostForm {
		params[k] = r.PostForm.Get(k)
	}
	return s.validator.Validate(s.canonicalURL(r), params, sig)
}

func (s *Server) canonicalURL(r *http.Request) string {
	if s.webhookBase == "" {
		return r.URL.String()
	}
	return s.webhookBase + r.URL.Path
}

// handleInbound is the first-contact webhook (spec §6.1): the carrier
// connects the outbound call and asks what to play/gather. The call row is
// created here from the dialer-supplied query parameters, matching §3's
// "Created when the handler first calls out."
func (s *Server) handleInbound(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "call_id")
	if !s.verifySignature(r) {
		observability.LogEvent("webhook_auth_failed", "call_id", callID, "webhook", "inbound")
		w.WriteHeader(http.StatusForbidden)
		return
	}

	leadID := strings.TrimSpace(r.URL.Query().Get("lead_id"))
	tone := salesstate.ChannelTone(strings.TrimSpace(r.URL.Query().Get("tone")))
	if tone == "" {
		tone = salesstate.ToneColdCall
	}
	carrierSessionID := r.PostFormValue("CallSid")
	phoneNumber := r.PostFormValue("To")

	if leadID == "" {
		observability.LogEvent("webhook_bad_input", "call_id", callID, "reason", "missing_lead_id")
		writeMarkup(w, apologyMarkup())
		return
	}

	if err := s.turn.StartCall(r.Context(), callID, leadID, carrierSessionID, phoneNumber, tone); err != nil {
		observability.LogEvent("start_call_failed", "call_id", callID, "err", err)
		writeMarkup(w, apologyMarkup())
		return
	}

	outcome, err := s.turn.HandleTurn(r.Context(), callID, "")
	if err != nil {
		observability.LogEvent("handle_turn_failed", "call_id", callID, "webhook", "inbound", "err", err)
		writeMarkup(w, apologyMarkup())
		return
	}

	writeMarkup(w, s.turnMarkup(callID, outcome))
}

// handleTurn is the per-utterance webhook (spec §6.1): SpeechResult holds
// the STT text, possibly empty when the carrier detected silence.
func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "call_id")
	if !s.verifySignature(r) {
		observability.LogEvent("webhook_auth_failed", "call_id", callID, "webhook", "turn")
		w.WriteHeader(http.StatusForbidden)
		return
	}
	if err := r.ParseForm(); err != nil {
		writeMarkup(w, apologyMarkup())
		return
	}
	speech := r.PostFormValue("SpeechResult")

	outcome, err := s.turn.HandleTurn(r.Context(), callID, speech)
	if err != nil {
		observability.LogEvent("handle_turn_failed", "call_id", callID, "webhook", "turn", "err", err)
		writeMarkup(w, apologyMarkup())
		return
	}

	writeMarkup(w, s.turnMarkup(callID, outcome))
}

var statusFromCarrier = map[string]storage.CallStatus{
	"queued":      storage.StatusQueued,
	"initiated":   storage.StatusInitiated,
	"ringing":     storage.StatusRinging,
	"in-progress": storage.StatusInProgress,
	"in_progress": storage.StatusInProgress,
	"completed":   storage.StatusCompleted,
	"failed":      storage.StatusFailed,
	"busy":        storage.StatusBusy,
	"no-answer":   storage.StatusNoAnswer,
	"no_answer":   storage.StatusNoAnswer,
	"canceled":    storage.StatusCanceled,
}

// handleStatus is the lifecycle-callback webhook (spec §6.1). No markup
// response is required; redelivery is handled idempotently by
// turn.Handler.HandleStatus via storage.IsStatusRegression.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "call_id")
	if !s.verifySignature(r) {
		observability.LogEvent("webhook_auth_failed", "call_id", callID, "webhook", "status")
		w.WriteHeader(http.StatusForbidden)
		return
	}
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	raw := strings.ToLower(strings.TrimSpace(r.PostFormValue("CallStatus")))
	status, ok := statusFromCarrier[raw]
	if !ok {
		observability.LogEvent("webhook_bad_input", "call_id", callID, "reason", "unknown_status", "status", raw)
		w.WriteHeader(http.StatusOK)
		return
	}
	if err := s.turn.HandleStatus(r.Context(), callID, status); err != nil {
		observability.LogEvent("handle_status_failed", "call_id", callID, "err", err)
	}
	w.WriteHeader(http.StatusOK)
}

// handleRecording is the recording-ready callback (spec §6.1): best-effort,
// no markup response, logs the recording URL as a recording_ready event; the
// URL is not written to the call row.
func (s *Server) handleRecording(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "call_id")
	if !s.verifySignature(r) {
		observability.LogEvent("webhook_auth_failed", "call_id", callID, "webhook", "recording")
		w.WriteHeader(http.StatusForbidden)
		return
	}
	_ = r.ParseForm()
	observability.LogEvent("recording_ready", "call_id", callID, "url", r.PostFormValue("RecordingUrl"))
	w.WriteHeader(http.StatusOK)
}
