package warmup

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ent0n29/salesagent/internal/llm"
	"github.com/ent0n29/salesagent/internal/ttscache"
	"github.com/ent0n29/salesagent/internal/tts"
)

type fakeLLM struct {
	calls int32
}

func (f *fakeLLM) CompleteStreaming(ctx context.Context, prompt string, maxTokens int, timeout time.Duration, onFirstSentence llm.OnFirstSentence) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	return "ready.", nil
}

type fakeTTS struct {
	calls int32
}

func (f *fakeTTS) Synthesize(ctx context.Context, text string, settings tts.Settings) ([]byte, error) {
	atomic.AddInt32(&f.calls, 1)
	return []byte("audio"), nil
}

func TestRunWarmsLLMAndAllTTSPhrases(t *testing.T) {
	fl := &fakeLLM{}
	ft := &fakeTTS{}
	c := New(fl, ft, "", "")

	done := make(chan struct{})
	go func() {
		c.Run(context.Background())
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for {
		if atomic.LoadInt32(&fl.calls) == 1 && int(atomic.LoadInt32(&ft.calls)) == len(ttscache.WarmupPhrases) {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("warmup did not complete in time: llm calls=%d tts calls=%d", fl.calls, ft.calls)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestRunToleratesNilClients(t *testing.T) {
	c := New(nil, nil, "", "")
	c.Run(context.Background())
	time.Sleep(50 * time.Millisecond) // just confirm no panic in the background goroutine
}

func TestHostOfExtractsHostFromURL(t *testing.T) {
	if got := hostOf("https://api.example.com:443/v1"); got != "api.example.com:443" {
		t.Fatalf("unexpected host: %q", got)
	}
}
