package ttscache

import (
	"sync/atomic"
	"testing"
)

func TestPutGetMemoryTier(t *testing.T) {
	c := New(2, "")
	k := Key{Voice: "v1", Text: "hello there"}
	if _, ok := c.Get(k); ok {
		t.Fatalf("expected miss before Put")
	}
	c.Put(k, []byte("audio-bytes"))
	got, ok := c.Get(k)
	if !ok || string(got) != "audio-bytes" {
		t.Fatalf("Get after Put = %q, %v", got, ok)
	}
}

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c := New(2, "")
	a := Key{Voice: "v1", Text: "a"}
	b := Key{Voice: "v1", Text: "b"}
	d := Key{Voice: "v1", Text: "d"}
	c.Put(a, []byte("a"))
	c.Put(b, []byte("b"))
	c.Get(a) // touch a, making b the LRU
	c.Put(d, []byte("d"))
	if _, ok := c.Get(b); ok {
		t.Fatalf("expected b evicted as least-recently-used")
	}
	if _, ok := c.Get(a); !ok {
		t.Fatalf("expected a to survive")
	}
	if _, ok := c.Get(d); !ok {
		t.Fatalf("expected d to survive")
	}
}

func TestDiskTierSurvivesMemoryEviction(t *testing.T) {
	dir := t.TempDir()
	c := New(1, dir)
	a := Key{Voice: "v1", Text: "a"}
	b := Key{Voice: "v1", Text: "b"}
	c.Put(a, []byte("audio-a"))
	c.Put(b, []byte("audio-b")) // evicts a from memory, but disk still has it

	got, ok := c.Get(a)
	if !ok || string(got) != "audio-a" {
		t.Fatalf("expected disk-tier hit for evicted key, got %q %v", got, ok)
	}
}

func TestResolveCollapsesConcurrentSynthesis(t *testing.T) {
	c := New(10, "")
	k := Key{Voice: "v1", Text: "shared phrase"}
	var calls int32
	synth := func() ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		return []byte("synthesized"), nil
	}

	done := make(chan []byte, 4)
	for i := 0; i < 4; i++ {
		go func() {
			audio, _, _ := c.Resolve(k, synth)
			done <- audio
		}()
	}
	for i := 0; i < 4; i++ {
		<-done
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("expected exactly 1 synthesis call, got %d", n)
	}
}
