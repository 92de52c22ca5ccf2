// Package tts implements the TTSClient: a pooled HTTP client fronted by the
// two-tier ttscache, grounded on the teacher's former
// internal/voice/elevenlabs.go provider (voice-settings clamping, API-key
// header wiring), adapted from a websocket streaming provider to a single
// synthesize-and-cache HTTP call per spec's non-realtime TTS model.
package tts

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ent0n29/salesagent/internal/reliability"
	"github.com/ent0n29/salesagent/internal/ttscache"
)

// HardTimeout is the maximum time a single synthesis call may take before
// it is classified as TIMEOUT.
const HardTimeout = 15 * time.Second

type Settings struct {
	Stability       float64
	SimilarityBoost float64
	Speed           float64
}

func clampSettings(s Settings) Settings {
	if s.Stability <= 0 {
		s.Stability = 0.42
	}
	s.Stability = clamp(s.Stability, 0, 1)
	if s.SimilarityBoost <= 0 {
		s.SimilarityBoost = 0.85
	}
	s.SimilarityBoost = clamp(s.SimilarityBoost, 0, 1)
	if s.Speed <= 0 {
		s.Speed = 1.0
	}
	s.Speed = clamp(s.Speed, 0.7, 1.2)
	return s
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Client synthesizes speech over HTTP, caching results in a ttscache.Cache
// keyed by (voice, text) so the same phrase is never synthesized twice.
type Client struct {
	baseURL string
	apiKey  string
	voice   string
	client  *http.Client
	cache   *ttscache.Cache
	breaker *reliability.CircuitBreaker
}

func New(baseURL, apiKey, voice string, cache *ttscache.Cache, breaker *reliability.CircuitBreaker) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		voice:   voice,
		client:  &http.Client{Timeout: HardTimeout},
		cache:   cache,
		breaker: breaker,
	}
}

// Synthesize returns audio bytes for text, served from cache when possible.
func (c *Client) Synthesize(ctx context.Context, text string, settings Settings) ([]byte, error) {
	key := ttscache.Key{Voice: c.voice, Text: text}
	audio, _, err := c.cache.Resolve(key, func() ([]byte, error) {
		return c.synthesizeUncached(ctx, text, settings)
	})
	return audio, err
}

func (c *Client) synthesizeUncached(ctx context.Context, text string, settings Settings) ([]byte, error) {
	if c.breaker != nil {
		allowed, isProbe := c.breaker.Allow()
		if !allowed {
			return nil, reliability.ErrCircuitOpen
		}
		_ = isProbe
	}

	ctx, cancel := context.WithTimeout(ctx, HardTimeout)
	defer cancel()

	settings = clampSettings(settings)
	url := fmt.Sprintf("%s/v1/text-to-speech/%s", c.baseURL, text2path(c.voice))
	body := fmt.Sprintf(`{"text":%q,"voice_settings":{"stability":%f,"similarity_boost":%f,"speed":%f}}`,
		text, settings.Stability, settings.SimilarityBoost, settings.Speed)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		c.recordFailure()
		return nil, reliability.Wrap(reliability.KindInternal, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("xi-api-key", c.apiKey)
	}

	res, err := c.client.Do(req)
	if err != nil {
		c.recordFailure()
		if ctx.Err() != nil {
			return nil, reliability.Wrap(reliability.KindTimeout, err)
		}
		return nil, reliability.Wrap(reliability.KindTransientUpstream, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden {
		c.recordFailure()
		return nil, reliability.Wrap(reliability.KindAuth, fmt.Errorf("tts auth failed: status %d", res.StatusCode))
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		c.recordFailure()
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return nil, reliability.Wrap(reliability.KindTransientUpstream, fmt.Errorf("synthesis failed: status %d: %s", res.StatusCode, string(msg)))
	}

	audio, err := io.ReadAll(res.Body)
	if err != nil {
		c.recordFailure()
		return nil, reliability.Wrap(reliability.KindTransientUpstream, fmt.Errorf("read synthesis response: %w", err))
	}
	c.recordSuccess()
	return audio, nil
}

func (c *Client) recordFailure() {
	if c.breaker != nil {
		c.breaker.RecordFailure()
	}
}

func (c *Client) recordSuccess() {
	if c.breaker != nil {
		c.breaker.RecordSuccess()
	}
}

func text2path(voice string) string {
	return strings.TrimSpace(voice)
}
