package httpapi

import (
	"net/http"

	"github.com/twilio/twilio-go/twiml"

	"github.com/ent0n29/salesagent/internal/observability"
	"github.com/ent0n29/salesagent/internal/turn"
)

const gatherTimeoutSeconds = "5"

// turnMarkup builds the TwiML response for one turn (spec §6.1): a Play of
// the synthesized reply (or a native Say if synthesis failed, per the
// TTS-timeout degrade rule in §7), followed by either another Gather or a
// Hangup when the conversation has reached its terminal state.
func (s *Server) turnMarkup(callID string, outcome turn.Outcome) string {
	verbs := []twiml.Element{s.speakVerb(callID, outcome)}

	if outcome.EndCall {
		verbs = append(verbs, &twiml.VoiceHangup{})
	} else {
		verbs = append(verbs, &twiml.VoiceGather{
			Input:         "speech",
			Action:        s.webhookURL("/webhook/" + callID + "/turn"),
			Method:        "POST",
			Timeout:       gatherTimeoutSeconds,
			SpeechTimeout: "auto",
		})
	}

	markup, err := twiml.Voice(verbs)
	if err != nil {
		observability.LogEvent("markup_build_failed", "call_id", callID, "err", err)
		return apologyMarkup()
	}
	return markup
}

// speakVerb prefers a <Play> of the pre-synthesized audio; when synthesis
// failed (spec §7 "On TIMEOUT during TTS: omit <Play> and instruct carrier
// to speak the text natively"), it falls back to <Say> with the same text.
func (s *Server) speakVerb(callID string, outcome turn.Outcome) twiml.Element {
	if outcome.AudioErr == nil && len(outcome.Audio) > 0 {
		if filename, err := s.writeResponseAudio(outcome.Audio); err == nil {
			return &twiml.VoicePlay{Url: s.audioURL(callID, filename)}
		}
	}
	return &twiml.VoiceSay{Message: outcome.ReplyText}
}

func (s *Server) webhookURL(path string) string {
	if s.webhookBase == "" {
		return path
	}
	return s.webhookBase + path
}

// apologyMarkup is the STATE_VIOLATION / BAD_INPUT / INTERNAL fallback from
// spec §7: a polite spoken apology, never a carrier-visible error.
func apologyMarkup() string {
	markup, err := twiml.Voice([]twiml.Element{
		&twiml.VoiceSay{Message: "Sorry, something went wrong on our end. We'll try again shortly."},
		&twiml.VoiceHangup{},
	})
	if err != nil {
		return `<?xml version="1.0" encoding="UTF-8"?><Response><Hangup/></Response>`
	}
	return markup
}

func writeMarkup(w http.ResponseWriter, markup string) {
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(markup))
}
