// Package cache memoizes per-function analysis results so that unchanged
// file pairs are not analyzed twice across batch runs.
package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/l3aro/go-commit-miner/pkg/annotate"
)

// ErrVersionMismatch is returned by Load when the snapshot was written by a
// different format version.
var ErrVersionMismatch = errors.New("cache snapshot version mismatch")

const formatVersion = 1

// Entry is the cached result of analyzing one function of a file pair.
type Entry struct {
	Facts     []annotate.Annotation `msgpack:"facts"`
	Truncated bool                  `msgpack:"truncated"`
	Degraded  int                   `msgpack:"degraded"`
	CreatedAt time.Time             `msgpack:"created_at"`
}

// Key derives the cache key of a function in a file pair. opts holds the
// analysis options that influence the result.
func Key(src, dst []byte, function string, opts ...string) string {
	h := sha256.New()
	for _, part := range [][]byte{src, dst, []byte(function)} {
		fmt.Fprintf(h, "%d:", len(part))
		h.Write(part)
	}
	for _, o := range opts {
		fmt.Fprintf(h, "%d:%s", len(o), o)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Options configures a ResultCache.
type Options struct {
	// MaxSize is the maximum number of entries. Zero means unbounded.
	MaxSize int
	// MaxBytes bounds the estimated encoded size of all entries. Zero
	// means unbounded.
	MaxBytes int64
	// OnEvict is called for every entry dropped to make room.
	OnEvict func(key string, e Entry)
}

type item struct {
	key        string
	entry      Entry
	size       int64
	prev, next *item
}

// ResultCache is a thread-safe LRU of analysis results.
type ResultCache struct {
	mu      sync.Mutex
	opts    Options
	items   map[string]*item
	head    *item // most recently used
	tail    *item
	bytes   int64
	hits    int64
	misses  int64
	evicted int64
}

// New returns an empty cache.
func New(opts Options) *ResultCache {
	return &ResultCache{opts: opts, items: make(map[string]*item)}
}

// Get returns the entry stored under key and marks it recently used.
func (c *ResultCache) Get(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	it, ok := c.items[key]
	if !ok {
		c.misses++
		return Entry{}, false
	}
	c.hits++
	c.moveToFront(it)
	return it.entry, true
}

// Set stores e under key, replacing any previous entry.
func (c *ResultCache) Set(key string, e Entry) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	size := estimateSize(key, e)

	c.mu.Lock()
	defer c.mu.Unlock()

	if it, ok := c.items[key]; ok {
		c.bytes += size - it.size
		it.entry, it.size = e, size
		c.moveToFront(it)
	} else {
		it := &item{key: key, entry: e, size: size}
		c.items[key] = it
		c.pushFront(it)
		c.bytes += size
	}
	c.evictIfNeeded()
}

// Delete removes key from the cache.
func (c *ResultCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if it, ok := c.items[key]; ok {
		c.remove(it)
	}
}

// Clear removes every entry.
func (c *ResultCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*item)
	c.head, c.tail = nil, nil
	c.bytes = 0
}

// Len returns the number of entries.
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Entries int
	Bytes   int64
	Hits    int64
	Misses  int64
	Evicted int64
}

// HitRate returns hits over lookups, or zero before the first lookup.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Stats returns the current counters.
func (c *ResultCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Entries: len(c.items),
		Bytes:   c.bytes,
		Hits:    c.hits,
		Misses:  c.misses,
		Evicted: c.evicted,
	}
}

func (c *ResultCache) pushFront(it *item) {
	it.prev, it.next = nil, c.head
	if c.head != nil {
		c.head.prev = it
	}
	c.head = it
	if c.tail == nil {
		c.tail = it
	}
}

func (c *ResultCache) unlink(it *item) {
	if it.prev != nil {
		it.prev.next = it.next
	} else {
		c.head = it.next
	}
	if it.next != nil {
		it.next.prev = it.prev
	} else {
		c.tail = it.prev
	}
	it.prev, it.next = nil, nil
}

func (c *ResultCache) moveToFront(it *item) {
	if c.head == it {
		return
	}
	c.unlink(it)
	c.pushFront(it)
}

func (c *ResultCache) remove(it *item) {
	c.unlink(it)
	delete(c.items, it.key)
	c.bytes -= it.size
}

func (c *ResultCache) evictIfNeeded() {
	for c.tail != nil && c.tail != c.head && c.over() {
		it := c.tail
		c.remove(it)
		c.evicted++
		if c.opts.OnEvict != nil {
			c.opts.OnEvict(it.key, it.entry)
		}
	}
}

func (c *ResultCache) over() bool {
	if c.opts.MaxSize > 0 && len(c.items) > c.opts.MaxSize {
		return true
	}
	return c.opts.MaxBytes > 0 && c.bytes > c.opts.MaxBytes
}

func estimateSize(key string, e Entry) int64 {
	size := int64(len(key)) + 32
	for _, a := range e.Facts {
		size += int64(len(a.Label)+len(a.Version)+len(a.Function)) + 24 + int64(8*len(a.DependencyIDs))
	}
	return size
}

type snapshot struct {
	Version int      `msgpack:"version"`
	Keys    []string `msgpack:"keys"`
	Entries []Entry  `msgpack:"entries"`
}

// Save writes the entries to w in msgpack, least recently used first, so
// that Load restores the same order.
func (c *ResultCache) Save(w io.Writer) error {
	c.mu.Lock()
	snap := snapshot{Version: formatVersion}
	for it := c.tail; it != nil; it = it.prev {
		snap.Keys = append(snap.Keys, it.key)
		snap.Entries = append(snap.Entries, it.entry)
	}
	c.mu.Unlock()

	enc := msgpack.NewEncoder(w)
	if err := enc.Encode(&snap); err != nil {
		return fmt.Errorf("encode cache: %w", err)
	}
	return nil
}

// Load adds the entries of a snapshot written by Save.
func (c *ResultCache) Load(r io.Reader) error {
	var snap snapshot
	if err := msgpack.NewDecoder(r).Decode(&snap); err != nil {
		return fmt.Errorf("decode cache: %w", err)
	}
	if snap.Version != formatVersion {
		return fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, snap.Version, formatVersion)
	}
	if len(snap.Keys) != len(snap.Entries) {
		return fmt.Errorf("decode cache: %d keys for %d entries", len(snap.Keys), len(snap.Entries))
	}
	for i, k := range snap.Keys {
		c.Set(k, snap.Entries[i])
	}
	return nil
}

// PersistToFile saves the cache to path atomically.
func (c *ResultCache) PersistToFile(path string) error {
	var buf bytes.Buffer
	if err := c.Save(&buf); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write cache: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename cache: %w", err)
	}
	return nil
}

// LoadFromFile loads a cache persisted with PersistToFile. A missing file
// is not an error.
func (c *ResultCache) LoadFromFile(path string) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer f.Close()
	return c.Load(f)
}
