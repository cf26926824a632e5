// cache.go: local embedding table used as the match fallback. Reloads
// replace the whole table so readers never observe a partial roster.
package matcher

import "sync"

// Entry is one enrolled identity in the local embedding table.
type Entry struct {
	RollNumber string
	Name       string
	Embedding  []float64
}

// EmbeddingCache is an in-memory embedding table scanned by the local
// cosine fallback. Insertion order is preserved so tie-breaking is
// deterministic.
type EmbeddingCache struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewEmbeddingCache returns an empty cache.
func NewEmbeddingCache() *EmbeddingCache {
	return &EmbeddingCache{}
}

// Replace swaps the entire table in one step. Entries with a nil or
// empty embedding are dropped, they can never match.
func (c *EmbeddingCache) Replace(entries []Entry) {
	filtered := make([]Entry, 0, len(entries))
	for i := range entries {
		if len(entries[i].Embedding) > 0 {
			filtered = append(filtered, entries[i])
		}
	}
	c.mu.Lock()
	c.entries = filtered
	c.mu.Unlock()
}

// Snapshot returns the current table. The returned slice must not be
// mutated by callers.
func (c *EmbeddingCache) Snapshot() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries
}

// Len returns the number of enrolled identities in the table.
func (c *EmbeddingCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Lookup returns the entry for a roll number, if enrolled.
func (c *EmbeddingCache) Lookup(rollNumber string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for i := range c.entries {
		if c.entries[i].RollNumber == rollNumber {
			return c.entries[i], true
		}
	}
	return Entry{}, false
}
