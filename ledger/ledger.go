// Package ledger implements the append-only hash chain recording identity
// lifecycle events. Each entry commits to the hash of its predecessor, so
// retroactive tampering is detectable by a full-chain walk.
package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nytdevansh/V-Face-sub001/interfaces"
)

// unhashedEntry is the canonical serialization target: the entry without
// its own hash field, in fixed field order.
type unhashedEntry struct {
	Index    int                     `json:"index"`
	Payload  interfaces.EventPayload `json:"payload"`
	PrevHash string                  `json:"prevHash"`
}

// ComputeHash returns the hex SHA-256 of the entry's canonical
// serialization (index, payload and prevHash; the hash field itself is
// excluded).
func ComputeHash(e interfaces.ChainEntry) string {
	canonical, err := json.Marshal(unhashedEntry{Index: e.Index, Payload: e.Payload, PrevHash: e.PrevHash})
	if err != nil {
		// EventPayload marshals unconditionally; keep the signature clean.
		panic(fmt.Sprintf("canonical serialization failed: %v", err))
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

// VerifyEntries walks a chain snapshot from index 0, recomputing every hash
// and checking linkage. It returns the number of entries verified before
// stopping and, on the first mismatch, an error wrapping ErrChainIntegrity
// that names the failing index. Any mismatch invalidates the whole chain.
func VerifyEntries(entries []interfaces.ChainEntry) (int, error) {
	prev := interfaces.GenesisHash
	for i, e := range entries {
		if e.Index != i {
			return i, fmt.Errorf("%w: entry %d has index %d", interfaces.ErrChainIntegrity, i, e.Index)
		}
		if e.PrevHash != prev {
			return i, fmt.Errorf("%w: entry %d prevHash does not match predecessor", interfaces.ErrChainIntegrity, i)
		}
		if recomputed := ComputeHash(e); recomputed != e.Hash {
			return i, fmt.Errorf("%w: entry %d hash mismatch", interfaces.ErrChainIntegrity, i)
		}
		prev = e.Hash
	}
	return len(entries), nil
}

// MemoryChain is the in-memory Ledger implementation. Appends are
// serialized by a single writer lock; reads operate on snapshot copies.
type MemoryChain struct {
	mu      sync.RWMutex
	entries []interfaces.ChainEntry
}

// NewMemoryChain creates an empty chain.
func NewMemoryChain() *MemoryChain {
	return &MemoryChain{}
}

// Append links a new entry to the current tail and returns it.
func (c *MemoryChain) Append(payload interfaces.EventPayload) (interfaces.ChainEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := interfaces.GenesisHash
	if n := len(c.entries); n > 0 {
		prev = c.entries[n-1].Hash
	}

	entry := interfaces.ChainEntry{
		Index:    len(c.entries),
		Payload:  payload,
		PrevHash: prev,
	}
	entry.Hash = ComputeHash(entry)

	c.entries = append(c.entries, entry)
	return entry, nil
}

// Entries returns a snapshot copy of the chain.
func (c *MemoryChain) Entries() []interfaces.ChainEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]interfaces.ChainEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Length returns the number of entries.
func (c *MemoryChain) Length() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Verify checks the whole chain. See VerifyEntries.
func (c *MemoryChain) Verify() (int, error) {
	return VerifyEntries(c.Entries())
}
