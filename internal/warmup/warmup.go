// Package warmup implements the WarmupController: a background startup
// task that dials the LLM/TTS hosts and pre-synthesizes common phrases so
// the first real call doesn't pay cold-start latency, grounded on the
// teacher's former internal/voice/orchestrator.go
// startBrainSessionWarmup/prewarmAdapter pair (its own bounded-timeout
// background context, brainPrewarmCapable probe) and
// internal/voice/elevenlabs.go's dial setup.
package warmup

import (
	"context"
	"net"
	"net/url"
	"time"

	"github.com/ent0n29/salesagent/internal/llm"
	"github.com/ent0n29/salesagent/internal/observability"
	"github.com/ent0n29/salesagent/internal/tts"
	"github.com/ent0n29/salesagent/internal/ttscache"
)

// Timeout bounds the entire warmup sequence; it never blocks process
// startup, so a slow or unreachable upstream just means the first real
// call pays full cold-start latency instead of crashing boot.
const Timeout = 8 * time.Second

// LLMWarmer is the subset of llm.Client warmup needs: a minimal completion
// to prove the upstream is reachable and authorized.
type LLMWarmer interface {
	CompleteStreaming(ctx context.Context, prompt string, maxTokens int, timeout time.Duration, onFirstSentence llm.OnFirstSentence) (string, error)
}

// TTSWarmer is the subset of tts.Client warmup needs.
type TTSWarmer interface {
	Synthesize(ctx context.Context, text string, settings tts.Settings) ([]byte, error)
}

// Controller runs the warmup sequence exactly once per process start, and
// is safe to invoke again (e.g. after a circuit breaker reopen) since every
// step is idempotent: a prewarmed ttscache entry or an already-open TCP
// probe is simply redone.
type Controller struct {
	llm      LLMWarmer
	ttsc     TTSWarmer
	llmHost  string
	ttsHost  string
}

func New(llm LLMWarmer, ttsClient TTSWarmer, llmBaseURL, ttsBaseURL string) *Controller {
	return &Controller{
		llm:     llm,
		ttsc:    ttsClient,
		llmHost: hostOf(llmBaseURL),
		ttsHost: hostOf(ttsBaseURL),
	}
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}

// Run performs the warmup sequence in the background: TCP dial probes,
// a minimal LLM completion, and pre-synthesis of the fixed TTS phrase set.
// Failures are logged, never returned, matching the teacher's
// fire-and-forget warmup semantics — warmup never blocks or fails startup.
func (c *Controller) Run(parent context.Context) {
	go func() {
		ctx, cancel := context.WithTimeout(parent, Timeout)
		defer cancel()

		observability.LogEvent("warmup_start")
		c.probeTCP(ctx, "llm", c.llmHost)
		c.probeTCP(ctx, "tts", c.ttsHost)
		c.warmLLM(ctx)
		c.warmTTS(ctx)
		observability.LogEvent("warmup_done")
	}()
}

func (c *Controller) probeTCP(ctx context.Context, label, host string) {
	if host == "" {
		return
	}
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", host)
	if err != nil {
		observability.LogEvent("warmup_dial_failed", "upstream", label, "host", host, "err", err)
		return
	}
	_ = conn.Close()
}

func (c *Controller) warmLLM(ctx context.Context) {
	if c.llm == nil {
		return
	}
	_, err := c.llm.CompleteStreaming(ctx, "Reply with the single word: ready.", 8, 4*time.Second, nil)
	if err != nil {
		observability.LogEvent("warmup_llm_failed", "err", err)
		return
	}
	observability.LogEvent("warmup_llm_ok")
}

func (c *Controller) warmTTS(ctx context.Context) {
	if c.ttsc == nil {
		return
	}
	for _, phrase := range ttscache.WarmupPhrases {
		if _, err := c.ttsc.Synthesize(ctx, phrase, tts.Settings{}); err != nil {
			observability.LogEvent("warmup_tts_failed", "phrase", phrase, "err", err)
			continue
		}
	}
	observability.LogEvent("warmup_tts_ok", "phrases", len(ttscache.WarmupPhrases))
}
