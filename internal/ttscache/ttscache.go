// Package ttscache implements the two-tier TTSCache: a small in-memory LRU
// in front of a content-addressed disk cache, grounded on the teacher's
// voice cache layering (former internal/voice/elevenlabs.go cache lookup)
// and singleflight-collapsed per spec's "one synthesis call per phrase"
// invariant.
package ttscache

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Key is the content-addressed identity of one synthesized phrase: text and
// voice, but deliberately not lead/call identity, so the same phrase
// synthesized for different leads hits the same cache slot.
type Key struct {
	Voice string
	Text  string
}

func (k Key) digest() string {
	h := sha256.Sum256([]byte(k.Voice + "\x00" + k.Text))
	return hex.EncodeToString(h[:])
}

type memEntry struct {
	key   Key
	audio []byte
}

// Cache is the two-tier LRU(memory) + disk cache for synthesized audio.
type Cache struct {
	mu       sync.Mutex
	maxItems int
	ll       *list.List
	index    map[Key]*list.Element
	dir      string
	group    singleflight.Group
}

// New builds a cache with the given in-memory capacity (spec default 50)
// backed by diskDir for overflow/cold-start persistence. diskDir == ""
// disables the disk tier.
func New(maxItems int, diskDir string) *Cache {
	if maxItems <= 0 {
		maxItems = 50
	}
	return &Cache{
		maxItems: maxItems,
		ll:       list.New(),
		index:    make(map[Key]*list.Element),
		dir:      diskDir,
	}
}

// Get returns cached audio bytes for key, checking memory then disk.
func (c *Cache) Get(key Key) ([]byte, bool) {
	c.mu.Lock()
	if el, ok := c.index[key]; ok {
		c.ll.MoveToFront(el)
		audio := el.Value.(*memEntry).audio
		c.mu.Unlock()
		return audio, true
	}
	c.mu.Unlock()

	if c.dir == "" {
		return nil, false
	}
	data, err := os.ReadFile(c.diskPath(key))
	if err != nil {
		return nil, false
	}
	c.promote(key, data)
	return data, true
}

// Put inserts audio into both tiers, evicting the least-recently-used
// memory entry on overflow. The disk tier is never evicted here.
func (c *Cache) Put(key Key, audio []byte) {
	c.promote(key, audio)
	if c.dir != "" {
		_ = os.MkdirAll(c.dir, 0o755)
		_ = os.WriteFile(c.diskPath(key), audio, 0o644)
	}
}

func (c *Cache) promote(key Key, audio []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.index[key]; ok {
		el.Value.(*memEntry).audio = audio
		c.ll.MoveToFront(el)
		return
	}
	el := c.ll.PushFront(&memEntry{key: key, audio: audio})
	c.index[key] = el
	if c.ll.Len() > c.maxItems {
		oldest := c.ll.Back()
		if oldest != nil {
			c.ll.Remove(oldest)
			delete(c.index, oldest.Value.(*memEntry).key)
		}
	}
}

func (c *Cache) diskPath(key Key) string {
	return filepath.Join(c.dir, key.digest()+".audio")
}

// Resolve returns cached audio for key, or invokes synth exactly once per
// key across concurrently racing callers.
func (c *Cache) Resolve(key Key, synth func() ([]byte, error)) (audio []byte, hit bool, err error) {
	if audio, ok := c.Get(key); ok {
		return audio, true, nil
	}
	v, err, _ := c.group.Do(key.digest(), func() (any, error) {
		if audio, ok := c.Get(key); ok {
			return audio, nil
		}
		audio, err := synth()
		if err != nil {
			return nil, err
		}
		c.Put(key, audio)
		return audio, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.([]byte), false, nil
}

// Len reports the current in-memory entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// WarmupPhrases is the fixed set of opener/filler phrases synthesized at
// process startup so the first real turn never pays a cold-synthesis
// latency hit.
var WarmupPhrases = []string{
	"Hi, is this a good time to talk for a minute?",
	"Got it, thanks for sharing that.",
	"Sure, let me explain how that works.",
	"That's a fair question.",
	"I understand, no problem at all.",
	"Let's go ahead and get that scheduled.",
	"Thanks so much for your time today.",
}
