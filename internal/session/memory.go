package session

import (
	"context"
	"sync"
	"time"

	"github.com/noah-isme/backend-kreatif/internal/cart"
)

// MemoryBackend keeps carts in process memory. Carts idle for longer than
// TTL are dropped; nothing survives a restart.
type MemoryBackend struct {
	TTL time.Duration
	Now func() time.Time

	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	state     cart.State
	expiresAt time.Time
}

// NewMemoryBackend constructs an in-memory backend.
func NewMemoryBackend(ttl time.Duration) *MemoryBackend {
	return &MemoryBackend{TTL: ttl, entries: make(map[string]memoryEntry)}
}

// Load implements Backend.
func (b *MemoryBackend) Load(_ context.Context, key string) (cart.State, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entry, ok := b.entries[key]
	if !ok {
		return cart.State{}, false, nil
	}
	if !entry.expiresAt.IsZero() && !b.now().Before(entry.expiresAt) {
		delete(b.entries, key)
		return cart.State{}, false, nil
	}
	return entry.state.Clone(), true, nil
}

// Save implements Backend.
func (b *MemoryBackend) Save(_ context.Context, key string, state cart.State) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.entries == nil {
		b.entries = make(map[string]memoryEntry)
	}
	entry := memoryEntry{state: state.Clone()}
	if b.TTL > 0 {
		entry.expiresAt = b.now().Add(b.TTL)
	}
	b.entries[key] = entry
	return nil
}

// Delete implements Backend.
func (b *MemoryBackend) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, key)
	return nil
}

// Sweep removes expired carts and returns how many were dropped.
func (b *MemoryBackend) Sweep() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	removed := 0
	for key, entry := range b.entries {
		if !entry.expiresAt.IsZero() && !now.Before(entry.expiresAt) {
			delete(b.entries, key)
			removed++
		}
	}
	return removed
}

// Len reports the number of live entries, expired ones included until swept.
func (b *MemoryBackend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// RunJanitor sweeps expired carts every interval until ctx is done.
func (b *MemoryBackend) RunJanitor(ctx context.Context, interval time.Duration, onSweep func(int)) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := b.Sweep()
			if onSweep != nil {
				onSweep(removed)
			}
		}
	}
}

func (b *MemoryBackend) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}
