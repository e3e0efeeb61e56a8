package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"sync"
)

// EntityRecord is one row of the local attribution table
type EntityRecord struct {
	Address    string `json:"address"`
	Entity     string `json:"entity"`
	Category   string `json:"category"`
	Source     string `json:"source"`
	Confidence string `json:"confidence"`
}

// LabelStore is the read-only local attribution table
type LabelStore interface {
	// Lookup returns the entity for an address, or nil when the address is unknown
	Lookup(ctx context.Context, address string) (*EntityRecord, error)
	// Count returns the number of labeled addresses
	Count(ctx context.Context) (int, error)
}

// entity file category keys mapped to the stored category
var entityCategories = map[string]string{
	"exchanges":    "exchange",
	"mining_pools": "mining_pool",
	"services":     "service",
	"notable":      "notable",
}

type entityFile struct {
	Entities map[string]map[string]struct {
		Name           string   `json:"name"`
		KnownAddresses []string `json:"known_addresses"`
	} `json:"entities"`
}

// MemoryLabelStore is an in-memory LabelStore used when Postgres is not configured
type MemoryLabelStore struct {
	mu      sync.RWMutex
	records map[string]EntityRecord
}

// NewMemoryLabelStore creates a store holding the given records
func NewMemoryLabelStore(records ...EntityRecord) *MemoryLabelStore {
	s := &MemoryLabelStore{records: make(map[string]EntityRecord, len(records))}
	for _, r := range records {
		s.Put(r)
	}
	return s
}

// Put adds or replaces a record
func (s *MemoryLabelStore) Put(r EntityRecord) {
	if r.Address == "" {
		return
	}
	s.mu.Lock()
	s.records[r.Address] = r
	s.mu.Unlock()
}

// Lookup implements LabelStore
func (s *MemoryLabelStore) Lookup(_ context.Context, address string) (*EntityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[address]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

// Count implements LabelStore
func (s *MemoryLabelStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

// Records returns every record sorted by address
func (s *MemoryLabelStore) Records() []EntityRecord {
	s.mu.RLock()
	out := make([]EntityRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// LoadEntitiesFile reads an entity JSON file into a MemoryLabelStore.
// A missing file yields an empty store.
func LoadEntitiesFile(path string) (*MemoryLabelStore, error) {
	data, err := os.ReadFile(path) // #nosec G304 - operator supplied path
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return NewMemoryLabelStore(), nil
		}
		return nil, fmt.Errorf("failed to read entities file: %w", err)
	}
	return ParseEntities(data)
}

// ParseEntities decodes the entity file layout
// {"entities": {"exchanges": {"binance": {"name": "...", "known_addresses": [...]}}}}
func ParseEntities(data []byte) (*MemoryLabelStore, error) {
	var file entityFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to decode entities file: %w", err)
	}

	store := NewMemoryLabelStore()
	for catKey, entries := range file.Entities {
		category, ok := entityCategories[catKey]
		if !ok {
			category = strings.TrimSuffix(catKey, "s")
		}
		for key, entry := range entries {
			name := entry.Name
			if name == "" {
				name = key
			}
			for _, addr := range entry.KnownAddresses {
				store.Put(EntityRecord{
					Address:    strings.TrimSpace(addr),
					Entity:     name,
					Category:   category,
					Source:     "entities.json",
					Confidence: "confirmed",
				})
			}
		}
	}
	return store, nil
}
