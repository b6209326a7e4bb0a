package trustledger

import (
	"context"
	"fmt"
	"sync"
)

// MemoryLedger is an in-memory, thread-safe Ledger implementation.
// It is primarily useful for testing and for single-process deployments
// that do not require durable persistence across restarts.
type MemoryLedger struct {
	mu      sync.RWMutex
	entries []*Entry
}

// New creates a MemoryLedger initialised with the canonical genesis entry.
// The genesis entry is at index 0 and its hash is GenesisHash.
func New() *MemoryLedger {
	return &MemoryLedger{entries: []*Entry{newGenesis()}}
}

// Append implements Ledger.
func (l *MemoryLedger) Append(_ context.Context, recordID, action, actor string, payload any) (*Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, err := newEntry(l.entries[len(l.entries)-1], recordID, action, actor, payload)
	if err != nil {
		return nil, err
	}
	l.entries = append(l.entries, entry)
	return cloneEntry(entry), nil
}

// Get implements Ledger.
func (l *MemoryLedger) Get(_ context.Context, index int) (*Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if index < 0 || index >= len(l.entries) {
		return nil, fmt.Errorf("index %d: %w", index, ErrEntryNotFound)
	}
	return cloneEntry(l.entries[index]), nil
}

// Len implements Ledger.
func (l *MemoryLedger) Len(_ context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries), nil
}

// Entries implements Ledger.
func (l *MemoryLedger) Entries(_ context.Context, from, limit int) ([]*Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if from < 0 {
		from = 0
	}
	end := len(l.entries)
	if limit > 0 && from+limit < end {
		end = from + limit
	}
	var out []*Entry
	for i := from; i < end; i++ {
		out = append(out, cloneEntry(l.entries[i]))
	}
	return out, nil
}

// ByRecord implements Ledger.
func (l *MemoryLedger) ByRecord(_ context.Context, recordID string) ([]*Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []*Entry
	for _, e := range l.entries {
		if e.RecordID == recordID && e.Index > 0 {
			out = append(out, cloneEntry(e))
		}
	}
	return out, nil
}

// Verify implements Ledger. It walks the chain and checks that all hashes
// are consistent. The genesis entry (index 0) is validated against GenesisHash.
func (l *MemoryLedger) Verify(_ context.Context) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var prev *Entry
	for _, curr := range l.entries {
		if err := checkLink(prev, curr); err != nil {
			return err
		}
		prev = curr
	}
	return nil
}

// Root implements Ledger.
func (l *MemoryLedger) Root(_ context.Context) (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.entries) == 0 {
		return "", nil
	}
	return l.entries[len(l.entries)-1].Hash, nil
}
