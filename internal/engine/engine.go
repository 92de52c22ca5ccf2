// Package engine implements the ResponseEngine: the three-tier pipeline
// (quick template -> response cache -> streaming LLM with overlapped TTS)
// described in spec §4.4, grounded on the teacher's former
// internal/voice/orchestrator.go runAssistantTurn preflight-parallel
// pattern (TTS kicked off alongside the rest of the brain stream) and
// internal/reliability's retry/circuit-breaker primitives.
package engine

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/ent0n29/salesagent/internal/llm"
	"github.com/ent0n29/salesagent/internal/observability"
	"github.com/ent0n29/salesagent/internal/prompt"
	"github.com/ent0n29/salesagent/internal/quality"
	"github.com/ent0n29/salesagent/internal/quickreply"
	"github.com/ent0n29/salesagent/internal/reliability"
	"github.com/ent0n29/salesagent/internal/respcache"
	"github.com/ent0n29/salesagent/internal/salesstate"
	"github.com/ent0n29/salesagent/internal/storage"
	"github.com/ent0n29/salesagent/internal/tts"
)

// StreamingMode selects between the canonical streaming+parallel-TTS path
// and the simpler serial "await full LLM then TTS" compatibility path
// (spec §9 Open Question 1).
type StreamingMode string

const (
	ModeStreaming StreamingMode = "streaming"
	ModeSerial    StreamingMode = "serial"
)

const maxLLMAttempts = 3

// Timeouts buckets the state-dependent LLM deadlines from spec §4.4.
type Timeouts struct {
	Simple   time.Duration // S0, S1, S4, S12
	Moderate time.Duration // S2, S3, S5, S9, S10, S11
	Complex  time.Duration // S6, S7, S8
}

func (t Timeouts) For(s salesstate.SalesState) time.Duration {
	switch s {
	case salesstate.S0, salesstate.S1, salesstate.S4, salesstate.S12:
		return orDefault(t.Simple, 4*time.Second)
	case salesstate.S6, salesstate.S7, salesstate.S8:
		return orDefault(t.Complex, 6*time.Second)
	default:
		return orDefault(t.Moderate, 5*time.Second)
	}
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

// LLMClient is the subset of llm.Client the engine depends on.
type LLMClient interface {
	CompleteStreaming(ctx context.Context, prompt string, maxTokens int, timeout time.Duration, onFirstSentence llm.OnFirstSentence) (string, error)
}

// TTSClient is the subset of tts.Client the engine depends on.
type TTSClient interface {
	Synthesize(ctx context.Context, text string, settings tts.Settings) ([]byte, error)
}

// Engine orchestrates the three-tier response pipeline. One instance is
// shared across all calls in the process.
type Engine struct {
	cache    *respcache.Cache
	llm      LLMClient
	ttsc     TTSClient
	llmBreak *reliability.CircuitBreaker
	scorer   *quality.Scorer
	metrics  *observability.Metrics
	timeouts Timeouts
	mode     StreamingMode
	voice    tts.Settings

	genMu sync.Mutex
	gen   map[string]*inflight

	aggregate *quality.Aggregate
}

type inflight struct {
	wg     sync.WaitGroup
	text   string
	skip   bool
	audio  []byte
}

func New(cache *respcache.Cache, llmClient LLMClient, ttsClient TTSClient, llmBreaker *reliability.CircuitBreaker, scorer *quality.Scorer, metrics *observability.Metrics, timeouts Timeouts, mode StreamingMode) *Engine {
	if mode != ModeSerial {
		mode = ModeStreaming
	}
	return &Engine{
		cache:    cache,
		llm:      llmClient,
		ttsc:     ttsClient,
		llmBreak: llmBreaker,
		scorer:   scorer,
		metrics:  metrics,
		timeouts: timeouts,
		mode:     mode,
		gen:      make(map[string]*inflight),
		aggregate: quality.NewAggregate(),
	}
}

// QualitySnapshot reports all-time response quality statistics for the
// operator quality-metrics endpoint.
func (e *Engine) QualitySnapshot() quality.AggregateSnapshot {
	return e.aggregate.Snapshot()
}

// Result is the outcome of one Generate call, handed back to the
// TurnHandler for persistence, broadcast, and markup construction.
type Result struct {
	ReplyText string
	Source    string // "quick" | "cached" | "llm"
	Audio     []byte
	AudioErr  error
}

const repromptReply = "Sorry, I didn't catch that — could you say that again?"

// Generate runs the three-tier pipeline for one turn and returns the reply
// text, its source tag, and synthesized audio (or a distinguished audio
// error the caller degrades to carrier-native TTS for).
func (e *Engine) Generate(ctx context.Context, call storage.Call, lead storage.Lead, cs *salesstate.ConversationState, utterance string, lt *observability.LatencyTracker) Result {
	if reply, ok := e.quickTierReply(cs, lead); ok {
		return e.finish(ctx, "quick", reply, utterance, lt)
	}

	if strings.TrimSpace(utterance) == "" {
		return e.finish(ctx, "quick", repromptReply, utterance, lt)
	}

	key := respcache.MakeKey(int(cs.State), call.LeadID, utterance)
	if cached, ok := e.cache.Get(key); ok {
		return e.finish(ctx, "cached", cached, utterance, lt)
	}

	text, audio, audioErr, skipCache := e.llmTier(ctx, key, cs, lead, call.FullTranscript, utterance, lt)
	if !skipCache {
		e.cache.Set(key, text)
	}
	res := Result{ReplyText: text, Source: "llm", Audio: audio, AudioErr: audioErr}
	e.observe(res.Source, res.ReplyText, utterance)
	return res
}

// quickTierReply implements tier 1: deterministic templates for S0/S1/S12.
func (e *Engine) quickTierReply(cs *salesstate.ConversationState, lead storage.Lead) (string, bool) {
	switch cs.State {
	case salesstate.S12:
		return quickreply.Exit(cs.ChannelTone), true
	case salesstate.S0, salesstate.S1:
		reply, ok := quickreply.Render(cs.State, cs.ChannelTone, lead.Name, lead.Company)
		if ok && quality.Combine(estimateQuality(reply, "")) < quickreply.QualityFloor {
			return "", false
		}
		return reply, ok
	default:
		return "", false
	}
}

// finish synthesizes audio for an already-decided reply (quick tier,
// cache hit, or the empty-utterance re-prompt) and scores it
// fire-and-forget.
func (e *Engine) finish(ctx context.Context, source, reply, userText string, lt *observability.LatencyTracker) Result {
	audio, err := e.ttsc.Synthesize(ctx, reply, e.voice)
	observability.MarkSpan(ctx, lt, "tts_done")
	res := Result{ReplyText: reply, Source: source, Audio: audio, AudioErr: err}
	e.observe(source, reply, userText)
	return res
}

func (e *Engine) observe(source, reply, userText string) {
	if e.metrics != nil {
		e.metrics.ObserveResponseTier(source)
	}
	go func() {
		sub := estimateQuality(reply, userText)
		score := quality.Combine(sub)
		if e.metrics != nil {
			e.metrics.ObserveQualityScore(score)
		}
		e.aggregate.Record(quality.Sample{
			Source:          source,
			Score:           score,
			Words:           float64(len(strings.Fields(reply))),
			Sentiment:       sentimentOf(reply),
			QuestionDensity: questionDensityOf(reply),
			Engagement:      engagementOf(reply),
		})
		if e.scorer != nil {
			mean, alert := e.scorer.Record(source, score)
			if alert {
				observability.LogEvent("quality_alert", "source", source, "mean", mean)
			}
		}
	}()
}

// llmTier implements tier 3: streaming LLM completion with first-sentence
// triggered parallel TTS (or the serial compatibility path), collapsing
// concurrent identical-key calls so at most one upstream LLM request is
// made for a given (state, lead, utterance) at a time, per spec §8.
func (e *Engine) llmTier(ctx context.Context, key respcache.Key, cs *salesstate.ConversationState, lead storage.Lead, transcript, utterance string, lt *observability.LatencyTracker) (text string, audio []byte, audioErr error, skipCache bool) {
	groupKey := fmt.Sprintf("%d:%s:%d", key.StateID, key.LeadID, key.Hash)

	e.genMu.Lock()
	if f, ok := e.gen[groupKey]; ok {
		e.genMu.Unlock()
		f.wg.Wait()
		if !f.skip {
			if cached, ok := e.cache.Get(key); ok {
				audio, audioErr = e.ttsc.Synthesize(ctx, cached, e.voice)
				observability.MarkSpan(ctx, lt, "tts_done")
				return cached, audio, audioErr, false
			}
		}
		audio, audioErr = e.ttsc.Synthesize(ctx, f.text, e.voice)
		observability.MarkSpan(ctx, lt, "tts_done")
		return f.text, audio, audioErr, f.skip
	}
	f := &inflight{}
	f.wg.Add(1)
	e.gen[groupKey] = f
	e.genMu.Unlock()

	defer func() {
		e.genMu.Lock()
		delete(e.gen, groupKey)
		e.genMu.Unlock()
		f.text, f.skip, f.audio = text, skipCache, audio
		f.wg.Done()
	}()

	text, skipCache, audio = e.generateOnce(ctx, cs, lead, transcript, utterance, lt)
	if audio == nil {
		audio, audioErr = e.ttsc.Synthesize(ctx, text, e.voice)
	}
	observability.MarkSpan(ctx, lt, "tts_done")
	return text, audio, audioErr, skipCache
}

// generateOnce runs the actual LLM call with retry/circuit-breaker
// handling and, in streaming mode, overlaps TTS synthesis of the first
// sentence with the remainder of the stream.
func (e *Engine) generateOnce(ctx context.Context, cs *salesstate.ConversationState, lead storage.Lead, transcript, utterance string, lt *observability.LatencyTracker) (text string, skipCache bool, overlapAudio []byte) {
	p := prompt.Build(cs, lead, transcript, utterance)
	observability.MarkSpan(ctx, lt, "prompt_built")
	timeout := e.timeouts.For(cs.State)
	deadline := time.Now().Add(timeout)

	for attempt := 0; attempt < maxLLMAttempts; attempt++ {
		if e.llmBreak != nil {
			if allowed, _ := e.llmBreak.Allow(); !allowed {
				observability.LogEvent("circuit_open", "upstream", "llm")
				return safeApology, true, nil
			}
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}

		var sentWG sync.WaitGroup
		var firstSentence string
		var firstAudio []byte
		onFirst := func(sentence string) {
			observability.MarkSpan(ctx, lt, "llm_first_token")
			if e.mode != ModeStreaming {
				return
			}
			firstSentence = sentence
			cleaned := cleanReply(sentence)
			if cleaned == "" {
				return
			}
			sentWG.Add(1)
			go func() {
				defer sentWG.Done()
				if a, err := e.ttsc.Synthesize(ctx, cleaned, e.voice); err == nil {
					firstAudio = a
				}
			}()
		}

		full, err := e.llm.CompleteStreaming(ctx, p, prompt.MaxOutputTokens, remaining, onFirst)
		observability.MarkSpan(ctx, lt, "llm_done")

		if err != nil {
			kind := reliability.KindOf(err)
			if e.metrics != nil {
				e.metrics.ObserveProviderError("llm", string(kind))
			}
			if e.llmBreak != nil {
				e.llmBreak.RecordFailure()
			}
			if kind == reliability.KindTimeout {
				cleaned := cleanReply(full)
				sentWG.Wait()
				if cleaned == "" {
					return safeApology, true, nil
				}
				return cleaned, true, e.overlapAudio(ctx, cleaned, firstSentence, firstAudio)
			}
			if kind == reliability.KindTransientUpstream && attempt < maxLLMAttempts-1 {
				backoff := jittered(reliability.ExponentialBackoff(attempt, time.Second, 4*time.Second))
				if backoff >= time.Until(deadline) {
					break
				}
				time.Sleep(backoff)
				continue
			}
			break
		}

		if e.llmBreak != nil {
			e.llmBreak.RecordSuccess()
		}
		cleaned := cleanReply(full)
		sentWG.Wait()
		if cleaned == "" {
			return safeApology, true, nil
		}
		return cleaned, false, e.overlapAudio(ctx, cleaned, firstSentence, firstAudio)
	}

	return safeApology, true, nil
}

// overlapAudio stitches the already-synthesized first sentence with a
// fresh synthesis of the remainder, preserving spoken order. Returns nil
// (not an error) when the overlap optimization didn't fire, so the caller
// falls back to a single whole-text synthesis.
func (e *Engine) overlapAudio(ctx context.Context, fullText, firstSentence string, firstAudio []byte) []byte {
	if firstAudio == nil || firstSentence == "" {
		return nil
	}
	remainder := strings.TrimSpace(strings.TrimPrefix(fullText, strings.TrimSpace(firstSentence)))
	if remainder == "" {
		return firstAudio
	}
	remainderAudio, err := e.ttsc.Synthesize(ctx, remainder, e.voice)
	if err != nil {
		return nil
	}
	out := make([]byte, 0, len(firstAudio)+len(remainderAudio))
	out = append(out, firstAudio...)
	out = append(out, remainderAudio...)
	return out
}

const safeApology = "Sorry, could you give me just one more second — could you repeat that?"

func jittered(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	jitter := time.Duration(rand.Int63n(int64(d) / 4))
	return d + jitter
}
