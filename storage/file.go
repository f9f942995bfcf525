package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/nytdevansh/V-Face-sub001/interfaces"
	"github.com/nytdevansh/V-Face-sub001/ledger"
)

const identitiesDir = "identities"

// FileIdentityStore persists identity records as one JSON file per
// fingerprint under <baseDir>/identities. Writes go through a temp file and
// rename so a crash never leaves a half-written record.
type FileIdentityStore struct {
	baseDir string
	log     *slog.Logger
	mu      sync.RWMutex
}

// NewFileIdentityStore creates the store, creating directories as needed.
func NewFileIdentityStore(baseDir string, log *slog.Logger) (*FileIdentityStore, error) {
	dir := filepath.Join(baseDir, identitiesDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create identities directory: %w", err)
	}
	return &FileIdentityStore{baseDir: baseDir, log: log}, nil
}

func (s *FileIdentityStore) recordPath(fp interfaces.Fingerprint) string {
	return filepath.Join(s.baseDir, identitiesDir, fp.String()+".json")
}

func (s *FileIdentityStore) write(rec interfaces.IdentityRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to serialize record: %w", err)
	}

	path := s.recordPath(rec.Fingerprint)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to finalize record: %w", err)
	}

	s.log.Debug("Stored identity record",
		slog.String("fingerprint", rec.Fingerprint.String()),
		slog.Bool("revoked", rec.Revoked))
	return nil
}

// Put stores a new record.
func (s *FileIdentityStore) Put(rec interfaces.IdentityRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(rec)
}

// Get retrieves a record by fingerprint.
func (s *FileIdentityStore) Get(fp interfaces.Fingerprint) (interfaces.IdentityRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.recordPath(fp))
	if os.IsNotExist(err) {
		return interfaces.IdentityRecord{}, false, nil
	}
	if err != nil {
		return interfaces.IdentityRecord{}, false, fmt.Errorf("failed to read record: %w", err)
	}

	var rec interfaces.IdentityRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return interfaces.IdentityRecord{}, false, fmt.Errorf("failed to parse record %s: %w", fp, err)
	}
	return rec, true, nil
}

// Update replaces an existing record.
func (s *FileIdentityStore) Update(rec interfaces.IdentityRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.recordPath(rec.Fingerprint)); err != nil {
		return fmt.Errorf("update of unknown record %s: %w", rec.Fingerprint, err)
	}
	return s.write(rec)
}

// All returns every stored record.
func (s *FileIdentityStore) All() ([]interfaces.IdentityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(filepath.Join(s.baseDir, identitiesDir))
	if err != nil {
		return nil, fmt.Errorf("failed to list identities: %w", err)
	}

	out := make([]interfaces.IdentityRecord, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.baseDir, identitiesDir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read record %s: %w", entry.Name(), err)
		}
		var rec interfaces.IdentityRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("failed to parse record %s: %w", entry.Name(), err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// FileChain is a Ledger journaled to <baseDir>/chain.log, one JSON entry
// per line. The full chain is kept in memory; the journal is replayed on
// open and verified before the chain is accepted.
type FileChain struct {
	mu      sync.RWMutex
	path    string
	file    *os.File
	entries []interfaces.ChainEntry
	log     *slog.Logger
}

// OpenFileChain opens or creates the journal and replays it.
func OpenFileChain(baseDir string, log *slog.Logger) (*FileChain, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create chain directory: %w", err)
	}
	path := filepath.Join(baseDir, "chain.log")

	entries, err := replayJournal(path)
	if err != nil {
		return nil, err
	}
	if _, err := ledger.VerifyEntries(entries); err != nil {
		return nil, fmt.Errorf("chain journal failed verification: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open chain journal: %w", err)
	}

	log.Info("Chain journal loaded", slog.String("path", path), slog.Int("entries", len(entries)))
	return &FileChain{path: path, file: file, entries: entries, log: log}, nil
}

func replayJournal(path string) ([]interfaces.ChainEntry, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open chain journal: %w", err)
	}
	defer f.Close()

	var entries []interfaces.ChainEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var e interfaces.ChainEntry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			return nil, fmt.Errorf("corrupt chain journal line %d: %w", len(entries), err)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read chain journal: %w", err)
	}
	return entries, nil
}

// Append links a new entry, journals it, then publishes it. The journal
// write happens before the in-memory append so a failed write never leaves
// the published chain ahead of the durable one.
func (c *FileChain) Append(payload interfaces.EventPayload) (interfaces.ChainEntry, error) {
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
	entry.Hash = ledger.ComputeHash(entry)

	line, err := json.Marshal(entry)
	if err != nil {
		return interfaces.ChainEntry{}, fmt.Errorf("failed to serialize chain entry: %w", err)
	}
	if _, err := c.file.Write(append(line, '\n')); err != nil {
		return interfaces.ChainEntry{}, fmt.Errorf("failed to journal chain entry: %w", err)
	}
	if err := c.file.Sync(); err != nil {
		return interfaces.ChainEntry{}, fmt.Errorf("failed to sync chain journal: %w", err)
	}

	c.entries = append(c.entries, entry)
	return entry, nil
}

// Entries returns a snapshot copy of the chain.
func (c *FileChain) Entries() []interfaces.ChainEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]interfaces.ChainEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Length returns the number of entries.
func (c *FileChain) Length() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Verify checks the whole chain.
func (c *FileChain) Verify() (int, error) {
	return ledger.VerifyEntries(c.Entries())
}

// Close releases the journal file handle.
func (c *FileChain) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.file.Close()
}
