// Package storage provides the persistence backends for identity records,
// the hash chain and pending consent requests. In-memory implementations
// are the default; file and Redis backends are selected by configuration.
package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nytdevansh/V-Face-sub001/interfaces"
)

// MemoryIdentityStore keeps identity records in a map. Suitable for tests
// and single-node deployments without durability requirements.
type MemoryIdentityStore struct {
	mu      sync.RWMutex
	records map[interfaces.Fingerprint]interfaces.IdentityRecord
}

// NewMemoryIdentityStore creates an empty store.
func NewMemoryIdentityStore() *MemoryIdentityStore {
	return &MemoryIdentityStore{records: make(map[interfaces.Fingerprint]interfaces.IdentityRecord)}
}

// Put stores a new record.
func (s *MemoryIdentityStore) Put(rec interfaces.IdentityRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.Fingerprint] = rec
	return nil
}

// Get retrieves a record by fingerprint.
func (s *MemoryIdentityStore) Get(fp interfaces.Fingerprint) (interfaces.IdentityRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[fp]
	return rec, ok, nil
}

// Update replaces an existing record.
func (s *MemoryIdentityStore) Update(rec interfaces.IdentityRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.Fingerprint]; !ok {
		return fmt.Errorf("update of unknown record %s", rec.Fingerprint)
	}
	s.records[rec.Fingerprint] = rec
	return nil
}

// All returns every stored record.
func (s *MemoryIdentityStore) All() ([]interfaces.IdentityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]interfaces.IdentityRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	return out, nil
}

type consentItem struct {
	req       interfaces.ConsentRequest
	expiresAt time.Time
}

// MemoryConsentStore keeps pending consent requests with lazy TTL expiry.
type MemoryConsentStore struct {
	mu    sync.Mutex
	items map[string]consentItem
	now   func() time.Time
}

// NewMemoryConsentStore creates an empty store.
func NewMemoryConsentStore() *MemoryConsentStore {
	return &MemoryConsentStore{
		items: make(map[string]consentItem),
		now:   time.Now,
	}
}

// WithNow overrides the clock. Used by tests to drive expiry.
func (s *MemoryConsentStore) WithNow(now func() time.Time) *MemoryConsentStore {
	s.now = now
	return s
}

// Put stores a request for the given TTL.
func (s *MemoryConsentStore) Put(ctx context.Context, req interfaces.ConsentRequest, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[req.RequestID] = consentItem{req: req, expiresAt: s.now().Add(ttl)}
	return nil
}

// Get retrieves a live request.
func (s *MemoryConsentStore) Get(ctx context.Context, id string) (interfaces.ConsentRequest, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return interfaces.ConsentRequest{}, false, nil
	}
	if !s.now().Before(item.expiresAt) {
		delete(s.items, id)
		return interfaces.ConsentRequest{}, false, nil
	}
	return item.req, true, nil
}

// Consume retrieves and removes a live request in one step.
func (s *MemoryConsentStore) Consume(ctx context.Context, id string) (interfaces.ConsentRequest, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return interfaces.ConsentRequest{}, false, nil
	}
	delete(s.items, id)
	if !s.now().Before(item.expiresAt) {
		return interfaces.ConsentRequest{}, false, nil
	}
	return item.req, true, nil
}
