// Package llm implements the LLMClient: a streaming HTTP client that
// consumes SSE or NDJSON completions and invokes a callback on the first
// complete sentence, grounded on the teacher's former
// internal/openclaw/http.go consumeSSE/consumeNDJSON/streamDelta trio,
// generalized from a delta-forwarding adapter into a sentence-boundary
// detector with per-state timeouts.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ent0n29/salesagent/internal/observability"
	"github.com/ent0n29/salesagent/internal/reliability"
)

// Client talks to an OpenAI-compatible completions endpoint.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	metrics *observability.Metrics
}

func New(baseURL, apiKey, model string, metrics *observability.Metrics) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: 0}, // per-call timeout applied via context
		metrics: metrics,
	}
}

type completionRequest struct {
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	Stream      bool    `json:"stream"`
}

// OnFirstSentence is invoked exactly once, with the first complete sentence
// detected in the stream, so the engine can kick off TTS overlap before the
// full completion finishes.
type OnFirstSentence func(sentence string)

// CompleteStreaming streams a completion for prompt, calling onFirstSentence
// as soon as a sentence boundary is detected, and returns the full text.
// timeout bounds the entire call and is chosen by the caller from the
// state-dependent buckets in engine.Timeouts (simple S0/S1/S4/S12, moderate
// S2/S3/S5/S9/S10/S11, complex S6/S7/S8).
func (c *Client) CompleteStreaming(ctx context.Context, prompt string, maxTokens int, timeout time.Duration, onFirstSentence OnFirstSentence) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload, err := json.Marshal(completionRequest{
		Model:       c.model,
		Prompt:      prompt,
		MaxTokens:   maxTokens,
		Temperature: 0.4,
		Stream:      true,
	})
	if err != nil {
		return "", reliability.Wrap(reliability.KindBadInput, fmt.Errorf("marshal completion request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/completions", bytes.NewReader(payload))
	if err != nil {
		return "", reliability.Wrap(reliability.KindInternal, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	res, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", reliability.Wrap(reliability.KindTimeout, err)
		}
		return "", reliability.Wrap(reliability.KindTransientUpstream, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden {
		return "", reliability.Wrap(reliability.KindAuth, fmt.Errorf("llm auth failed: status %d", res.StatusCode))
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return "", reliability.Wrap(reliability.KindTransientUpstream, fmt.Errorf("llm status %d: %s", res.StatusCode, string(body)))
	}

	ct := strings.ToLower(res.Header.Get("Content-Type"))
	var text string
	var streamErr error
	firstTokenLogged := false
	wrapOnFirst := func(delta string) {
		if !firstTokenLogged {
			observability.LogEvent("llm_first_token", "elapsed_ms", time.Since(start).Milliseconds())
			firstTokenLogged = true
		}
	}

	sb := newSentenceBoundary(onFirstSentence)
	if strings.Contains(ct, "text/event-stream") {
		text, streamErr = consumeSSE(res.Body, func(delta string) error {
			wrapOnFirst(delta)
			sb.feed(delta)
			return nil
		})
	} else if strings.Contains(ct, "ndjson") {
		text, streamErr = consumeNDJSON(res.Body, func(delta string) error {
			wrapOnFirst(delta)
			sb.feed(delta)
			return nil
		})
	} else {
		body, err := io.ReadAll(res.Body)
		if err != nil {
			return "", reliability.Wrap(reliability.KindTransientUpstream, err)
		}
		text = strings.TrimSpace(string(body))
		wrapOnFirst(text)
		sb.feed(text)
	}
	if streamErr != nil {
		// A timed-out or broken stream still hands back whatever prefix was
		// accumulated before the failure, per the "use emitted prefix if
		// non-empty" propagation policy: the caller decides whether a
		// partial completion is usable.
		sb.flush()
		if ctx.Err() != nil {
			return text, reliability.Wrap(reliability.KindTimeout, streamErr)
		}
		return text, reliability.Wrap(reliability.KindTransientUpstream, streamErr)
	}
	sb.flush()
	return text, nil
}

// sentenceBoundary buffers deltas and invokes onFirst exactly once, as soon
// as a '.', '!', or '?' closes the first sentence.
type sentenceBoundary struct {
	onFirst OnFirstSentence
	buf     strings.Builder
	fired   bool
}

func newSentenceBoundary(onFirst OnFirstSentence) *sentenceBoundary {
	return &sentenceBoundary{onFirst: onFirst}
}

func (s *sentenceBoundary) feed(delta string) {
	if s.fired || s.onFirst == nil {
		return
	}
	s.buf.WriteString(delta)
	text := s.buf.String()
	if idx := strings.IndexAny(text, ".!?"); idx >= 0 {
		s.onFirst(strings.TrimSpace(text[:idx+1]))
		s.fired = true
	}
}

func (s *sentenceBoundary) flush() {
	if s.fired || s.onFirst == nil {
		return
	}
	if text := strings.TrimSpace(s.buf.String()); text != "" {
		s.onFirst(text)
		s.fired = true
	}
}

func consumeNDJSON(body io.Reader, onDelta func(string) error) (string, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	var out strings.Builder
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		delta, ok, done := streamDelta(line)
		if done {
			return out.String(), nil
		}
		if !ok {
			continue
		}
		out.WriteString(delta)
		if err := onDelta(delta); err != nil {
			return "", err
		}
	}
	if err := scanner.Err(); err != nil {
		return out.String(), fmt.Errorf("stream read: %w", err)
	}
	return out.String(), nil
}

func consumeSSE(body io.Reader, onDelta func(string) error) (string, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	var out strings.Builder
	var dataLines []string

	flush := func() (bool, error) {
		if len(dataLines) == 0 {
			return false, nil
		}
		payload := strings.Join(dataLines, "\n")
		dataLines = dataLines[:0]
		delta, ok, done := streamDelta(payload)
		if done {
			return true, nil
		}
		if !ok {
			return false, nil
		}
		out.WriteString(delta)
		return false, onDelta(delta)
	}

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			done, err := flush()
			if err != nil {
				return "", err
			}
			if done {
				return out.String(), nil
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value := line, ""
		if idx := strings.IndexByte(line, ':'); idx >= 0 {
			field = line[:idx]
			value = strings.TrimPrefix(line[idx+1:], " ")
		}
		if field == "data" {
			dataLines = append(dataLines, value)
		}
	}
	done, err := flush()
	if err != nil {
		return "", err
	}
	if done {
		return out.String(), nil
	}
	if err := scanner.Err(); err != nil {
		return out.String(), fmt.Errorf("stream read: %w", err)
	}
	return out.String(), nil
}

func streamDelta(payload string) (delta string, ok bool, done bool) {
	p := strings.TrimSpace(payload)
	if p == "" {
		return "", false, false
	}
	if strings.EqualFold(p, "[DONE]") {
		return "", false, true
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(p), &obj); err == nil {
		delta = extractText(obj)
		if strings.TrimSpace(delta) == "" {
			return "", false, false
		}
		return delta, true, false
	}
	return p, true, false
}

func extractText(obj map[string]any) string {
	for _, k := range []string{"text", "delta", "output", "message"} {
		if v, ok := obj[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	if choices, ok := obj["choices"].([]any); ok && len(choices) > 0 {
		if m, ok := choices[0].(map[string]any); ok {
			return extractText(m)
		}
	}
	return ""
}
