package master

import (
	"context"
	"sync"

	"github.com/cpausmit/dynamo/internal/dynerr"
)

// MemStore is an in-process, map-backed Store used by tests and by
// single-host dev deployments. Its Lock/Unlock are a plain mutex, since
// there is only one process sharing it.
type MemStore struct {
	mu sync.Mutex

	hosts   map[string]*HostEntry
	stores  map[string]*StoreConfig
	boards  map[string]*BoardConfig
	order   []string // host insertion order, for deterministic NextMaster
	sem     chan struct{}
	healthy bool
}

// NewMemStore returns an empty MemStore that reports CheckConnection as
// healthy until SetHealthy(false) is called.
func NewMemStore() *MemStore {
	return &MemStore{
		hosts:   make(map[string]*HostEntry),
		stores:  make(map[string]*StoreConfig),
		boards:  make(map[string]*BoardConfig),
		sem:     make(chan struct{}, 1),
		healthy: true,
	}
}

func (m *MemStore) AddHost(hostname string, status Status, hasStore bool, board *BoardConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.hosts[hostname]; !ok {
		m.order = append(m.order, hostname)
	}
	m.hosts[hostname] = &HostEntry{Hostname: hostname, Status: status, HasStore: hasStore}
	if board != nil {
		m.boards[hostname] = board
	}
}

func (m *MemStore) SetStoreConfig(hostname string, cfg *StoreConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stores[hostname] = cfg
}

func (m *MemStore) SetHealthy(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthy = v
}

func (m *MemStore) HostList(context.Context) ([]HostEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]HostEntry, 0, len(m.hosts))
	for _, h := range m.order {
		if e, ok := m.hosts[h]; ok {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *MemStore) Status(_ context.Context, hostname string) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.hosts[hostname]
	if !ok {
		return StatusInitial, dynerr.ErrUnknownEntity
	}
	return e.Status, nil
}

func (m *MemStore) SetStatus(_ context.Context, hostname string, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.hosts[hostname]
	if !ok {
		e = &HostEntry{Hostname: hostname}
		m.hosts[hostname] = e
		m.order = append(m.order, hostname)
	}
	e.Status = status
	return nil
}

func (m *MemStore) Heartbeat(context.Context, string) error { return nil }

func (m *MemStore) Lock(ctx context.Context) error {
	select {
	case m.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *MemStore) Unlock(context.Context) error {
	select {
	case <-m.sem:
	default:
	}
	return nil
}

func (m *MemStore) StoreConfig(_ context.Context, hostname string) (*StoreConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.stores[hostname]
	if !ok {
		return nil, dynerr.ErrUnknownEntity
	}
	return cfg, nil
}

func (m *MemStore) BoardConfig(_ context.Context, hostname string) (*BoardConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.boards[hostname]
	if !ok {
		return nil, dynerr.ErrUnknownEntity
	}
	return cfg, nil
}

func (m *MemStore) NextMaster(_ context.Context, current string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range m.order {
		if h != current {
			return h, nil
		}
	}
	return "", dynerr.ErrNoStore
}

func (m *MemStore) CheckConnection(context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.healthy
}

func (m *MemStore) DeclareRemoteStore(_ context.Context, hostname string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.hosts[hostname]; ok {
		e.HasStore = true
	}
	return nil
}

func (m *MemStore) Disconnect(context.Context) error { return nil }
