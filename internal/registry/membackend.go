package registry

import (
	"context"
	"sort"
	"sync"
)

// MemBackend is an in-process Backend used by tests and single-host dev
// deployments.
type MemBackend struct {
	mu      sync.Mutex
	actions map[uint64]*Action
	auth    []AuthEntry
	nextID  uint64
	tblLock chan struct{}
}

func NewMemBackend() *MemBackend {
	return &MemBackend{
		actions: make(map[uint64]*Action),
		tblLock: make(chan struct{}, 1),
	}
}

// Submit inserts a new action in state `new` and returns its id.
func (b *MemBackend) Submit(a Action) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	a.ID = b.nextID
	a.Status = StatusNew
	b.actions[a.ID] = &a
	return a.ID
}

func (b *MemBackend) Authorize(e AuthEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.auth = append(b.auth, e)
}

func (b *MemBackend) Lock(ctx context.Context) error {
	select {
	case b.tblLock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *MemBackend) Unlock(context.Context) error {
	select {
	case <-b.tblLock:
	default:
	}
	return nil
}

func (b *MemBackend) NextNew(_ context.Context, writeSlotOccupied bool) (*Action, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var candidates []*Action
	for _, a := range b.actions {
		if a.Status != StatusNew {
			continue
		}
		if writeSlotOccupied && a.WriteRequest {
			continue
		}
		candidates = append(candidates, a)
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Timestamp.Before(candidates[j].Timestamp) })
	chosen := candidates[0]
	chosen.Status = StatusRun
	clone := *chosen
	return &clone, nil
}

func (b *MemBackend) SetStatus(_ context.Context, id uint64, status Status, exitCode *int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	a, ok := b.actions[id]
	if !ok {
		return nil
	}
	a.Status = status
	if exitCode != nil {
		a.ExitCode = *exitCode
	}
	return nil
}

func (b *MemBackend) Get(_ context.Context, id uint64) (*Action, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	a, ok := b.actions[id]
	if !ok {
		return nil, nil
	}
	clone := *a
	return &clone, nil
}

// Delete simulates an operator removing an action row while it runs
// (spec.md's "An action whose row is deleted while `run`" boundary case).
func (b *MemBackend) Delete(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.actions, id)
}

func (b *MemBackend) IsAuthorized(_ context.Context, title string, checksum [16]byte, userID uint64) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range b.auth {
		if e.Title != title || e.Checksum != checksum {
			continue
		}
		if e.UserID == 0 || e.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

var _ Backend = (*MemBackend)(nil)
