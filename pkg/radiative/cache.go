package radiative

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"
	"github.com/vmihailenco/msgpack/v5"
)

// Key identifies a physical operating point after quantisation. Fields hold
// canonical decimal strings so that equal rounded inputs compare equal.
// Search names the strategy and voltage interval the optimum was found
// with, so trackers with different settings can share one cache.
type Key struct {
	Bandgap         string `msgpack:"eg"`
	SkyTemperature  string `msgpack:"tsky"`
	CellTemperature string `msgpack:"tcell"`
	Search          string `msgpack:"s,omitempty"`
}

func (k Key) String() string {
	s := fmt.Sprintf("Eg=%seV Tsky=%sK Tcell=%sK", k.Bandgap, k.SkyTemperature, k.CellTemperature)
	if k.Search != "" {
		s += " " + k.Search
	}
	return s
}

// quantize rounds v to places decimal places and returns both the canonical
// string and the rounded value.
func quantize(v float64, places int32) (string, float64) {
	d := decimal.NewFromFloat(v).Round(places)
	f, _ := d.Float64()
	return d.String(), f
}

// CacheStats is a snapshot of cache activity.
type CacheStats struct {
	Hits    uint64
	Misses  uint64
	Entries int
}

// Cache memoises maximum-power-point results by quantised operating point.
// It is safe for concurrent use. Storing a key twice stores the same value,
// since results are a pure function of the key. A nil *Cache is a valid,
// always-missing cache.
type Cache struct {
	mu       sync.RWMutex
	entries  map[Key]OptimizationResult
	order    []Key
	capacity int

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewCache returns a cache holding at most capacity entries, evicting the
// oldest first. A capacity of zero or less means unbounded.
func NewCache(capacity int) *Cache {
	return &Cache{
		entries:  make(map[Key]OptimizationResult),
		capacity: capacity,
	}
}

// Get returns the stored result for k.
func (c *Cache) Get(k Key) (OptimizationResult, bool) {
	if c == nil {
		return OptimizationResult{}, false
	}
	c.mu.RLock()
	r, ok := c.entries[k]
	c.mu.RUnlock()
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return r, ok
}

// Put stores r under k.
func (c *Cache) Put(k Key, r OptimizationResult) {
	if c == nil {
		return
	}
	r.Cached = false

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[k]; exists {
		c.entries[k] = r
		return
	}
	if c.capacity > 0 && len(c.entries) >= c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[k] = r
	c.order = append(c.order, k)
}

// Len returns the number of stored entries.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns hit, miss and entry counts.
func (c *Cache) Stats() CacheStats {
	if c == nil {
		return CacheStats{}
	}
	return CacheStats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Entries: c.Len(),
	}
}

type cacheEntry struct {
	Key    Key                `msgpack:"k"`
	Result OptimizationResult `msgpack:"r"`
}

// Save writes every entry, oldest first, as MessagePack.
func (c *Cache) Save(w io.Writer) error {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	snapshot := make([]cacheEntry, 0, len(c.order))
	for _, k := range c.order {
		snapshot = append(snapshot, cacheEntry{Key: k, Result: c.entries[k]})
	}
	c.mu.RUnlock()

	if err := msgpack.NewEncoder(w).Encode(snapshot); err != nil {
		return fmt.Errorf("encoding cache snapshot: %w", err)
	}
	return nil
}

// Load merges a snapshot written by Save into the cache.
func (c *Cache) Load(r io.Reader) error {
	if c == nil {
		return nil
	}
	var snapshot []cacheEntry
	if err := msgpack.NewDecoder(r).Decode(&snapshot); err != nil {
		return fmt.Errorf("decoding cache snapshot: %w", err)
	}
	for _, e := range snapshot {
		c.Put(e.Key, e.Result)
	}
	return nil
}
