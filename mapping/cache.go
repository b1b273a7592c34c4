package mapping

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"sync"

	"github.com/ridoystarlord/sheetmatch/schema"
)

// CandidateCache keeps ranked field candidates per column. Entries are bound
// to a fingerprint of the target fields, so adding a field to a table makes
// every entry computed without it a miss.
type CandidateCache struct {
	mu      sync.Mutex
	entries map[cacheKey]cacheEntry
}

type cacheKey struct {
	sheetID string
	index   int
	name    string
	typ     schema.DataType
}

type cacheEntry struct {
	table       string
	fingerprint string
	candidates  []MatchCandidate
}

func NewCandidateCache() *CandidateCache {
	return &CandidateCache{entries: make(map[cacheKey]cacheEntry)}
}

func keyFor(sheetID string, col ColumnMapping) cacheKey {
	return cacheKey{sheetID: sheetID, index: col.OriginalIndex, name: col.OriginalName, typ: col.InferredDataType}
}

// Get returns cached candidates when they were computed against the same
// table and field set.
func (c *CandidateCache) Get(sheetID string, col ColumnMapping, table, fingerprint string) ([]MatchCandidate, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[keyFor(sheetID, col)]
	if !ok || e.table != table || e.fingerprint != fingerprint {
		return nil, false
	}
	return append([]MatchCandidate(nil), e.candidates...), true
}

func (c *CandidateCache) Put(sheetID string, col ColumnMapping, table, fingerprint string, candidates []MatchCandidate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[keyFor(sheetID, col)] = cacheEntry{
		table:       table,
		fingerprint: fingerprint,
		candidates:  append([]MatchCandidate(nil), candidates...),
	}
}

// InvalidateTable drops every entry computed against table.
func (c *CandidateCache) InvalidateTable(table string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if e.table == table {
			delete(c.entries, k)
		}
	}
}

// InvalidateSheet drops every entry of one sheet.
func (c *CandidateCache) InvalidateSheet(sheetID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if k.sheetID == sheetID {
			delete(c.entries, k)
		}
	}
}

func (c *CandidateCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Fingerprint identifies a set of target fields independent of order.
func Fingerprint(fields []schema.FieldInfo) string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f.Name+"\x1f"+string(f.Type)+"\x1f"+string(f.Origin))
	}
	sort.Strings(parts)
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
