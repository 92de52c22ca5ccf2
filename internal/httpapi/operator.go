package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ent0n29/salesagent/internal/observability"
)

// handleQualityMetrics serves spec §6.4's `/calls/quality/metrics`: response
// tier distribution and the engine's all-time quality aggregate.
func (s *Server) handleQualityMetrics(w http.ResponseWriter, _ *http.Request) {
	if s.qualityEng == nil {
		respondJSON(w, http.StatusOK, map[string]any{"total_responses": 0})
		return
	}
	snap := s.qualityEng.QualitySnapshot()
	respondJSON(w, http.StatusOK, map[string]any{
		"total_responses":      snap.TotalResponses,
		"response_distribution": snap.ResponseDistribution,
		"quality_metrics": map[string]any{
			"avg_overall_score":    snap.AvgOverallScore,
			"avg_length_words":     snap.AvgLengthWords,
			"avg_sentiment_score":  snap.AvgSentimentScore,
			"avg_question_density": snap.AvgQuestionDensity,
			"avg_engagement_level": snap.AvgEngagementLevel,
		},
		"quality_status": qualityStatus(snap.AvgOverallScore, snap.TotalResponses),
	})
}

func qualityStatus(avgScore float64, total int) string {
	if total == 0 {
		return "no_data"
	}
	if avgScore >= 75 {
		return "healthy"
	}
	if avgScore >= 60 {
		return "degraded"
	}
	return "alert"
}

// handleTranscript serves spec §6.4's `/calls/{call_id}/transcript`.
func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "call_id")
	call, err := s.store.GetCall(r.Context(), callID)
	if err != nil {
		observability.LogEvent("transcript_lookup_failed", "call_id", callID, "err", err)
		respondError(w, http.StatusNotFound, "call_not_found", err.Error())
		return
	}
	var durationSeconds float64
	if call.EndedAt != nil {
		durationSeconds = call.EndedAt.Sub(call.StartedAt).Seconds()
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"call_id":            call.ID,
		"lead_id":            call.LeadID,
		"status":             call.Status,
		"duration_seconds":   durationSeconds,
		"sentiment":          call.Sentiment,
		"interest_level":     call.InterestLevel,
		"recording_url":      call.RecordingURL,
		"full_transcript":    call.FullTranscript,
		"transcript_summary": call.Summary,
	})
}

// handleCircuitStatus serves the operator circuit-breaker status endpoint
// named in spec.md §7 ("circuit-breaker state endpoints") but left without
// a route in §6 — supplemented here per SPEC_FULL.md.
func (s *Server) handleCircuitStatus(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]string{}
	if s.llmBreaker != nil {
		resp["llm"] = s.llmBreaker.State().String()
	}
	if s.ttsBreaker != nil {
		resp["tts"] = s.ttsBreaker.State().String()
	}
	respondJSON(w, http.StatusOK, resp)
}
