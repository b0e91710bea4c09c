// Package servermgr is the membership and coordination layer: it maintains
// the registry of peer hosts, tracks this host's status in the master
// store, sends heartbeats, discovers remote persistency stores, and
// propagates update commands to peers under the master's distributed
// lock. Grounded directly on original_source/lib/core/manager.py's
// ServerManager.
/*
 * Copyright (c) 2024-2026, the dynamo project authors.
 */
package servermgr

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cpausmit/dynamo/internal/board"
	"github.com/cpausmit/dynamo/internal/dstats"
	"github.com/cpausmit/dynamo/internal/dynerr"
	"github.com/cpausmit/dynamo/internal/master"
	"github.com/cpausmit/dynamo/internal/xlog"
)

const (
	heartbeatInterval      = 30 * time.Second
	remoteStoreRetryDelay  = 5 * time.Second
	propagationPassDelay   = 1 * time.Second
)

// PeerClientFactory builds a PeerClient from a peer's board config,
// letting tests substitute an in-process stub for FastHTTPPeerClient.
type PeerClientFactory func(cfg master.BoardConfig) PeerClient

// Manager is the server manager described in spec.md §4.4.
type Manager struct {
	master     master.Store
	shadow     master.Store // nil if this host is the master
	board      board.Board
	hostname   string
	masterHost string

	newPeerClient PeerClientFactory
	stats         *dstats.Stats

	mu         sync.Mutex
	status     master.Status
	peers      map[string]*Peer
	heartbeatWG sync.WaitGroup
}

// Config wires a Manager's dependencies; Shadow and Stats may be nil.
type Config struct {
	Hostname      string
	MasterHost    string
	Master        master.Store
	Shadow        master.Store
	Board         board.Board
	NewPeerClient PeerClientFactory
	Stats         *dstats.Stats
}

func NewManager(cfg Config) *Manager {
	npc := cfg.NewPeerClient
	if npc == nil {
		npc = func(bc master.BoardConfig) PeerClient {
			return NewFastHTTPPeerClient(bc.Config["addr"])
		}
	}
	return &Manager{
		master:        cfg.Master,
		shadow:        cfg.Shadow,
		board:         cfg.Board,
		hostname:      cfg.Hostname,
		masterHost:    cfg.MasterHost,
		newPeerClient: npc,
		stats:         cfg.Stats,
		status:        master.StatusInitial,
		peers:         make(map[string]*Peer),
	}
}

// cachedStatus returns the last status this process observed for itself.
func (m *Manager) cachedStatus() master.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *Manager) setCached(s master.Status) {
	m.mu.Lock()
	m.status = s
	m.mu.Unlock()
}

// SetStatus sets this host's status in the master store under lock. If the
// master already reports us OUTOFSYNC, the attempt is refused and the
// local cache is forced to OUTOFSYNC — spec.md §4.4's "defends against
// concurrent peers flipping us out of sync", preserved intentionally per
// §9's Open Questions (not to be "fixed").
func (m *Manager) SetStatus(ctx context.Context, status master.Status) error {
	if err := m.master.Lock(ctx); err != nil {
		return err
	}
	defer m.master.Unlock(ctx)

	current, err := m.master.Status(ctx, m.hostname)
	if err == nil && current == master.StatusOutOfSync {
		m.setCached(master.StatusOutOfSync)
		return dynerr.ErrOutOfSync
	}

	if err := m.master.SetStatus(ctx, m.hostname, status); err != nil {
		return err
	}
	m.setCached(status)
	return nil
}

// SetPeerStatus sets another host's status; used by SendUpdates.
func (m *Manager) SetPeerStatus(ctx context.Context, hostname string, status master.Status) error {
	return m.master.SetStatus(ctx, hostname, status)
}

// ResetStatus is the only permitted path out of OUTOFSYNC; it requires the
// current status to actually be OUTOFSYNC.
func (m *Manager) ResetStatus(ctx context.Context) error {
	if err := m.master.Lock(ctx); err != nil {
		return err
	}
	defer m.master.Unlock(ctx)

	current, err := m.master.Status(ctx, m.hostname)
	if err != nil {
		return err
	}
	if current != master.StatusOutOfSync {
		return fmt.Errorf("servermgr: reset_status called when status is not OUTOFSYNC (got %s)", current)
	}
	if err := m.master.SetStatus(ctx, m.hostname, master.StatusInitial); err != nil {
		return err
	}
	m.setCached(master.StatusInitial)
	return nil
}

// CheckStatus checks master connectivity and escalates to the appropriate
// sentinel error if this host is ERROR or OUTOFSYNC.
func (m *Manager) CheckStatus(ctx context.Context) error {
	if !m.master.CheckConnection(ctx) {
		return dynerr.ErrOutOfSync
	}
	status, err := m.master.Status(ctx, m.hostname)
	if err != nil {
		return err
	}
	m.setCached(status)
	switch status {
	case master.StatusError:
		return fmt.Errorf("servermgr: local status is ERROR")
	case master.StatusOutOfSync:
		return dynerr.ErrOutOfSync
	}
	return nil
}

// StartHeartbeat runs the cooperative heartbeat task until ctx is
// cancelled: every 30s while status != INITIAL, it heartbeats the master
// and, if a shadow is configured, copies authoritative tables into it.
func (m *Manager) StartHeartbeat(ctx context.Context) {
	m.heartbeatWG.Add(1)
	go func() {
		defer m.heartbeatWG.Done()
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.heartbeatOnce(ctx)
			}
		}
	}()
}

// Wait blocks until a cancelled heartbeat goroutine has returned.
func (m *Manager) Wait() { m.heartbeatWG.Wait() }

func (m *Manager) heartbeatOnce(ctx context.Context) {
	if m.cachedStatus() == master.StatusInitial {
		return
	}
	if err := m.master.Heartbeat(ctx, m.hostname); err != nil {
		xlog.Log.Warn().Err(err).Msg("servermgr: heartbeat failed")
		return
	}
	if m.stats != nil {
		m.stats.Heartbeats.Inc()
	}
	if m.shadow != nil {
		if err := m.copyToShadow(ctx); err != nil {
			xlog.Log.Warn().Err(err).Msg("servermgr: shadow copy failed")
		}
	}
}

func (m *Manager) copyToShadow(ctx context.Context) error {
	hosts, err := m.master.HostList(ctx)
	if err != nil {
		return err
	}
	for _, h := range hosts {
		if err := m.shadow.SetStatus(ctx, h.Hostname, h.Status); err != nil {
			return err
		}
	}
	return nil
}

// ReconnectMaster finds and connects to the new master server after a
// failover trigger. Fails with ErrMasterLocal if there is no shadow
// (master was local to this host).
func (m *Manager) ReconnectMaster(ctx context.Context, dial func(module string, cfg map[string]string) (master.Store, error)) error {
	if m.shadow == nil {
		return dynerr.ErrMasterLocal
	}

	next, err := m.shadow.NextMaster(ctx, m.masterHost)
	if err != nil {
		return err
	}

	storeCfg, err := m.shadow.StoreConfig(ctx, next)
	if err != nil {
		return err
	}

	newMaster, err := dial(storeCfg.Module, storeCfg.Config)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.master = newMaster
	m.masterHost = next
	if next == "localhost" || next == m.hostname {
		m.shadow = nil
	}
	m.mu.Unlock()
	return nil
}

// FindRemoteStore repeats collect-hosts + scan until it finds an ONLINE
// peer (optionally matching hostname) with a persistency store, sleeping
// 5s and retrying while any candidate is UPDATING. If no candidate is
// ONLINE and none is UPDATING, self escalates to ERROR and returns
// ErrNoStore.
func (m *Manager) FindRemoteStore(ctx context.Context, hostname string) (string, *master.StoreConfig, error) {
	for {
		if err := m.CollectHosts(ctx); err != nil {
			return "", nil, err
		}

		m.mu.Lock()
		peers := make([]*Peer, 0, len(m.peers))
		for _, p := range m.peers {
			peers = append(peers, p)
		}
		m.mu.Unlock()

		isUpdating := false
		for _, p := range peers {
			if hostname != "" && p.Hostname != hostname {
				continue
			}
			if !p.HasStore {
				continue
			}
			switch p.Status {
			case master.StatusOnline:
				cfg, err := m.master.StoreConfig(ctx, p.Hostname)
				if err != nil {
					continue
				}
				return p.Hostname, cfg, nil
			case master.StatusUpdating:
				isUpdating = true
			}
		}

		if isUpdating {
			select {
			case <-ctx.Done():
				return "", nil, ctx.Err()
			case <-time.After(remoteStoreRetryDelay):
			}
			continue
		}

		_ = m.SetStatus(ctx, master.StatusError)
		return "", nil, dynerr.ErrNoStore
	}
}

// CollectHosts reconciles the local peer map with master.HostList: new
// hostnames get a board config lookup and a fresh Peer; missing hostnames
// are evicted.
func (m *Manager) CollectHosts(ctx context.Context) error {
	hosts, err := m.master.HostList(ctx)
	if err != nil {
		return err
	}

	known := make(map[string]struct{}, len(hosts))

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, h := range hosts {
		if h.Hostname == m.hostname {
			continue
		}
		known[h.Hostname] = struct{}{}

		peer, ok := m.peers[h.Hostname]
		if !ok {
			bc, err := m.master.BoardConfig(ctx, h.Hostname)
			if err != nil {
				continue // shouldn't happen, per manager.py's comment
			}
			peer = &Peer{Hostname: h.Hostname, Client: m.newPeerClient(*bc)}
			m.peers[h.Hostname] = peer
		}
		peer.HasStore = h.HasStore
		peer.Status = h.Status
	}

	for hostname := range m.peers {
		if _, ok := known[hostname]; !ok {
			delete(m.peers, hostname)
		}
	}
	return nil
}

// SendUpdates sends the given update-command batch to all online peers.
// Only one peer is updated per locked section; peers already UPDATING
// from a prior run are retried next pass; any other non-ONLINE status is
// marked processed and skipped. The loop terminates when every peer has
// been marked processed.
func (m *Manager) SendUpdates(ctx context.Context, entries []board.Entry) error {
	processed := make(map[string]struct{})

	for {
		if m.stats != nil {
			m.stats.PropagationPasses.Inc()
		}
		if err := m.master.Lock(ctx); err != nil {
			return err
		}

		var target *Peer
		func() {
			defer m.master.Unlock(ctx)

			if err := m.CollectHosts(ctx); err != nil {
				xlog.Log.Warn().Err(err).Msg("servermgr: collect_hosts failed during send_updates")
			}

			m.mu.Lock()
			defer m.mu.Unlock()

			for _, p := range m.peers {
				if _, done := processed[p.Hostname]; done {
					continue
				}
				switch p.Status {
				case master.StatusOnline:
					target = p
					processed[p.Hostname] = struct{}{}
				case master.StatusUpdating:
					// retried next pass
				default:
					processed[p.Hostname] = struct{}{}
				}
				if target != nil {
					break
				}
			}

			if target != nil {
				if err := m.SetPeerStatus(ctx, target.Hostname, master.StatusUpdating); err != nil {
					xlog.Log.Error().Err(err).Str("peer", target.Hostname).Msg("servermgr: failed to mark peer UPDATING")
					target = nil
				}
			}
		}()

		if target != nil {
			if err := target.Client.WriteUpdates(ctx, entries); err != nil {
				xlog.Log.Error().Err(err).Str("peer", target.Hostname).Msg("servermgr: error sending updates, marking OUTOFSYNC")
				_ = m.SetPeerStatus(ctx, target.Hostname, master.StatusOutOfSync)
			} else {
				xlog.Log.Info().Str("peer", target.Hostname).Int("n", len(entries)).Msg("servermgr: sent update commands")
				// Status is left UPDATING; the peer transitions itself back
				// to ONLINE once it has applied its own board, matching
				// manager.py's send_updates (no post-success reset here).
			}
		}

		m.mu.Lock()
		allProcessed := true
		for hostname := range m.peers {
			if _, ok := processed[hostname]; !ok {
				allProcessed = false
				break
			}
		}
		m.mu.Unlock()
		if allProcessed {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(propagationPassDelay):
		}
	}
}

// Disconnect goes offline and tears down peer connections.
func (m *Manager) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	peers := make([]*Peer, 0, len(m.peers))
	for _, p := range m.peers {
		peers = append(peers, p)
	}
	m.mu.Unlock()
	_ = peers // peer clients (HTTP) hold no persistent handle to close
	return m.master.Disconnect(ctx)
}
