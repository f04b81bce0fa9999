// Package tilecache implements the bounded, age-stamped LRU cache shared
// by the main (RAM) and video (GPU) tiers: a fixed-size pool of
// CacheBuffer[T] slots indexed by tileindex.TileIndex, evicted under the
// "at most one access per frame wins" rule.
package tilecache

import (
	"errors"
	"sync"

	"github.com/DmitriyVTitov/size"

	"github.com/crustaterra/crusta/crerr"
	"github.com/crustaterra/crusta/metrics"
	"github.com/crustaterra/crusta/tileindex"
)

// state is a CacheBuffer's lifecycle stage.
type state uint8

const (
	free state = iota
	streaming
	cached
)

// CacheBuffer binds a payload to a TileIndex plus the two monotonically
// increasing stamps that drive eviction: lastTouched (frame it was last
// used) and pinned (frame through which eviction is forbidden).
type CacheBuffer[T any] struct {
	Key         tileindex.TileIndex
	Payload     T
	lastTouched int64
	pinned      int64
	state       state
}

// IsValid reports whether the payload is fully populated (not
// mid-stream).
func (b *CacheBuffer[T]) IsValid() bool { return b.state == cached }

// IsCurrent reports whether the buffer was touched during currentFrame.
func (b *CacheBuffer[T]) IsCurrent(currentFrame int64) bool { return b.lastTouched == currentFrame }

// Cache is a bounded set of CacheBuffer[T], capacity fixed at
// construction, indexed by TileIndex. All index mutations are protected
// by a single mutex whose critical sections never perform I/O: the
// fetcher populates a buffer's Payload outside the lock, only the state
// transition is locked.
type Cache[T any] struct {
	// Name labels this cache's metrics ("main", "video"). Optional; left
	// empty it just reports under the empty-string label.
	Name string

	mu      sync.Mutex
	buffers []*CacheBuffer[T]
	index   map[tileindex.TileIndex]*CacheBuffer[T]
}

// New builds a Cache with capacity buffer slots, all initially free.
func New[T any](capacity int) *Cache[T] {
	c := &Cache[T]{
		buffers: make([]*CacheBuffer[T], capacity),
		index:   make(map[tileindex.TileIndex]*CacheBuffer[T], capacity),
	}
	for i := range c.buffers {
		c.buffers[i] = &CacheBuffer[T]{state: free}
	}
	return c
}

// Capacity returns the fixed number of buffer slots.
func (c *Cache[T]) Capacity() int { return len(c.buffers) }

// FindCached returns the buffer currently holding key, if any.
func (c *Cache[T]) FindCached(key tileindex.TileIndex) (*CacheBuffer[T], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.index[key]
	if ok {
		metrics.CacheHit(c.Name)
	} else {
		metrics.CacheMiss(c.Name)
	}
	return b, ok
}

// GetBuffer returns the buffer already holding key with existed=true,
// or reserves a stream buffer for key (marked streaming, indexed, not
// yet valid) and returns it with existed=false. Reserving the key under
// one lock acquisition is what enforces "at most one cache buffer per
// tile": a second caller for the same key gets the same buffer back with
// existed=true instead of a second buffer.
func (c *Cache[T]) GetBuffer(key tileindex.TileIndex, currentFrame int64) (b *CacheBuffer[T], existed bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.index[key]; ok {
		return b, true, nil
	}
	b, err = c.getStreamBufferLocked(currentFrame)
	if err != nil {
		return nil, false, err
	}
	c.assignLocked(b, key)
	return b, false, nil
}

// GetStreamBuffer selects a buffer whose key may be reassigned: among
// buffers with lastTouched < currentFrame-1 and pinned < currentFrame,
// the one with the smallest lastTouched. Free buffers (never assigned)
// are preferred outright, since reusing them costs no eviction. Returns
// crerr.KindCacheSaturated if no buffer qualifies — it is never
// acceptable to evict a buffer the current frame still needs.
func (c *Cache[T]) GetStreamBuffer(currentFrame int64) (*CacheBuffer[T], error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getStreamBufferLocked(currentFrame)
}

func (c *Cache[T]) getStreamBufferLocked(currentFrame int64) (*CacheBuffer[T], error) {
	for _, b := range c.buffers {
		if b.state == free {
			return b, nil
		}
	}

	var best *CacheBuffer[T]
	for _, b := range c.buffers {
		if b.lastTouched >= currentFrame-1 || b.pinned >= currentFrame {
			continue
		}
		if best == nil || b.lastTouched < best.lastTouched {
			best = b
		}
	}
	if best == nil {
		metrics.CacheSaturation(c.Name)
		return nil, crerr.New("tilecache.GetStreamBuffer", crerr.KindCacheSaturated,
			errCacheSaturated)
	}
	if best.state != free {
		delete(c.index, best.Key)
		metrics.CacheEviction(c.Name)
	}
	best.state = free
	return best, nil
}

// Assign reassigns buffer b to key and marks it streaming: populated,
// but not yet valid for reads. The caller (the fetcher) owns b
// exclusively until it calls Commit.
func (c *Cache[T]) Assign(b *CacheBuffer[T], key tileindex.TileIndex) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.assignLocked(b, key)
}

func (c *Cache[T]) assignLocked(b *CacheBuffer[T], key tileindex.TileIndex) {
	b.Key = key
	b.state = streaming
	c.index[key] = b
}

// Commit marks b as fully populated and indexable for reads, storing
// payload.
func (c *Cache[T]) Commit(b *CacheBuffer[T], payload T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b.Payload = payload
	b.state = cached
}

// Touch sets lastTouched = currentFrame. Idempotent within a frame.
func (c *Cache[T]) Touch(b *CacheBuffer[T], currentFrame int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b.lastTouched = currentFrame
}

// Pin sets pinned = currentFrame, forbidding eviction through that
// frame. Every buffer in a frame's active set is pinned once per frame.
func (c *Cache[T]) Pin(b *CacheBuffer[T], currentFrame int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b.pinned = currentFrame
}

// FootprintBytes estimates the in-memory size of every cached payload,
// for diagnostics and capacity planning; not consulted by eviction,
// which is purely age/pin based.
func (c *Cache[T]) FootprintBytes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, b := range c.buffers {
		if b.state == cached {
			total += size.Of(b.Payload)
		}
	}
	return total
}

var errCacheSaturated = errors.New("no stream buffer available this frame")
