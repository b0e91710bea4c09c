package board

import (
	"context"
	"sync"
)

// MemBoard is an in-process Board used by tests and by the local peer in
// single-host dev mode.
type MemBoard struct {
	mu      sync.Mutex
	entries []Entry
}

func NewMemBoard() *MemBoard { return &MemBoard{} }

func (b *MemBoard) Lock(context.Context) error   { b.mu.Lock(); return nil }
func (b *MemBoard) Unlock(context.Context) error { b.mu.Unlock(); return nil }

func (b *MemBoard) GetUpdates(context.Context) ([]Entry, error) {
	out := make([]Entry, len(b.entries))
	copy(out, b.entries)
	return out, nil
}

func (b *MemBoard) Flush(context.Context) error {
	b.entries = nil
	return nil
}

func (b *MemBoard) WriteUpdates(_ context.Context, entries []Entry) error {
	b.entries = append(b.entries, entries...)
	return nil
}

func (b *MemBoard) Disconnect(context.Context) error { return nil }

var _ Board = (*MemBoard)(nil)
