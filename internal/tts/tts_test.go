package tts

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ent0n29/salesagent/internal/reliability"
	"github.com/ent0n29/salesagent/internal/ttscache"
)

func TestSynthesizeCachesResult(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte("audio-bytes"))
	}))
	defer srv.Close()

	cache := ttscache.New(10, "")
	c := New(srv.URL, "key", "voice-1", cache, nil)

	for i := 0; i < 3; i++ {
		audio, err := c.Synthesize(context.Background(), "hello there", Settings{})
		if err != nil {
			t.Fatalf("Synthesize: %v", err)
		}
		if string(audio) != "audio-bytes" {
			t.Fatalf("unexpected audio: %q", audio)
		}
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("expected exactly 1 upstream synthesis call, got %d", n)
	}
}

func TestSynthesizeAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	cache := ttscache.New(10, "")
	c := New(srv.URL, "bad-key", "voice-1", cache, nil)
	_, err := c.Synthesize(context.Background(), "unique phrase", Settings{})
	if reliability.KindOf(err) != reliability.KindAuth {
		t.Fatalf("expected AUTH error kind, got %v", err)
	}
}

func TestSynthesizeRecordsBreakerFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cb := reliability.NewCircuitBreaker(2, time.Minute, time.Minute)
	cache := ttscache.New(10, "")
	c := New(srv.URL, "key", "voice-1", cache, cb)

	c.Synthesize(context.Background(), "phrase one", Settings{})
	c.Synthesize(context.Background(), "phrase two", Settings{})

	if cb.State() != reliability.StateOpen {
		t.Fatalf("expected breaker open after threshold failures, got %v", cb.State())
	}
}
