package history

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/primewallet/walletclient/internal/transfer"
)

// Query selects records from a Store.
type Query struct {
	// Direction filters by credit or debit; empty means both.
	Direction transfer.Direction
	// Limit caps the result; zero or less means no cap.
	Limit int
}

// Store keeps transaction history beyond the in-memory list of a session.
type Store interface {
	// Save inserts records not yet stored and reports how many were new.
	// Existing ids are left as they are since records never change.
	Save(ctx context.Context, records []transfer.Record) (int, error)
	// List returns stored records, newest first.
	List(ctx context.Context, q Query) ([]transfer.Record, error)
}

type memoryEntry struct {
	record   transfer.Record
	syncedAt time.Time
	seq      int
}

// MemoryStore is a Store for tests and for runs without a database.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	seq     int
	now     func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry), now: time.Now}
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, records []transfer.Record) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	added := 0
	for _, rec := range records {
		if rec.ID == "" {
			continue
		}
		if _, exists := s.entries[rec.ID]; exists {
			continue
		}
		s.seq++
		s.entries[rec.ID] = memoryEntry{record: rec, syncedAt: s.now(), seq: s.seq}
		added++
	}
	return added, nil
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context, q Query) ([]transfer.Record, error) {
	s.mu.RLock()
	entries := make([]memoryEntry, 0, len(s.entries))
	for _, e := range s.entries {
		if q.Direction != "" && e.record.Direction != q.Direction {
			continue
		}
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.record.OccurredAt.Equal(b.record.OccurredAt) {
			// Unknown times sort last.
			if a.record.OccurredAt.IsZero() || b.record.OccurredAt.IsZero() {
				return b.record.OccurredAt.IsZero()
			}
			return a.record.OccurredAt.After(b.record.OccurredAt)
		}
		return a.seq > b.seq
	})
	if q.Limit > 0 && len(entries) > q.Limit {
		entries = entries[:q.Limit]
	}
	out := make([]transfer.Record, len(entries))
	for i, e := range entries {
		out[i] = e.record
	}
	return out, nil
}
