package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCompleteStreamingSSE(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"delta\":\"Sure, \"}\n\n")
		fmt.Fprint(w, "data: {\"delta\":\"I can help with that.\"}\n\n")
		fmt.Fprint(w, "data: {\"delta\":\" Let's continue.\"}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := New(srv.URL, "", "test-model", nil)
	var firstSentence string
	text, err := c.CompleteStreaming(context.Background(), "hello", 100, time.Second, func(s string) {
		firstSentence = s
	})
	if err != nil {
		t.Fatalf("CompleteStreaming: %v", err)
	}
	if text != "Sure, I can help with that. Let's continue." {
		t.Fatalf("unexpected full text: %q", text)
	}
	if firstSentence != "Sure, I can help with that." {
		t.Fatalf("unexpected first sentence: %q", firstSentence)
	}
}

func TestCompleteStreamingNDJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		fmt.Fprintln(w, `{"text":"Got it."}`)
		fmt.Fprintln(w, `{"text":" Let's go."}`)
	}))
	defer srv.Close()

	c := New(srv.URL, "", "test-model", nil)
	text, err := c.CompleteStreaming(context.Background(), "hi", 50, time.Second, nil)
	if err != nil {
		t.Fatalf("CompleteStreaming: %v", err)
	}
	if text != "Got it. Let's go." {
		t.Fatalf("unexpected text: %q", text)
	}
}

func TestCompleteStreamingTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"delta\":\"late\"}\n\n")
	}))
	defer srv.Close()

	c := New(srv.URL, "", "test-model", nil)
	_, err := c.CompleteStreaming(context.Background(), "hi", 10, 5*time.Millisecond, nil)
	if err == nil {
		t.Fatalf("expected timeout error")
	}
}

func TestCompleteStreamingAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New(srv.URL, "bad-key", "test-model", nil)
	_, err := c.CompleteStreaming(context.Background(), "hi", 10, time.Second, nil)
	if err == nil {
		t.Fatalf("expected auth error")
	}
}
