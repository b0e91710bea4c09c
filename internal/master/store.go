// Package master defines the cluster-wide coordination interface (host
// registry, status, distributed lock, store/board discovery, failover
// target) the server manager depends on, grounded on
// original_source/lib/core/manager.go's use of MasterServer.
/*
 * Copyright (c) 2024-2026, the dynamo project authors.
 */
package master

import "context"

// Status is a host's lifecycle state, per spec.md §4.2.
type Status int

const (
	StatusInitial Status = iota
	StatusOnline
	StatusUpdating
	StatusOutOfSync
	StatusError
	StatusStarting
	StatusStopped
)

func (s Status) String() string {
	switch s {
	case StatusInitial:
		return "INITIAL"
	case StatusOnline:
		return "ONLINE"
	case StatusUpdating:
		return "UPDATING"
	case StatusOutOfSync:
		return "OUTOFSYNC"
	case StatusError:
		return "ERROR"
	case StatusStarting:
		return "STARTING"
	case StatusStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// HostEntry is one row of the cluster host list.
type HostEntry struct {
	Hostname string
	Status   Status
	HasStore bool
}

// StoreConfig identifies a persistency store backend for remote discovery.
type StoreConfig struct {
	Module  string
	Config  map[string]string
	Version int
}

// BoardConfig is the handle needed to address a peer's update board.
type BoardConfig struct {
	Module string
	Config map[string]string
}

// Store is the cluster-wide coordination table and distributed lock
// service, spec.md §4.2.
type Store interface {
	HostList(ctx context.Context) ([]HostEntry, error)
	Status(ctx context.Context, hostname string) (Status, error)
	SetStatus(ctx context.Context, hostname string, status Status) error
	Heartbeat(ctx context.Context, hostname string) error

	// Lock/Unlock bracket any critical section touching cross-host status
	// or update-board writes. Lock may block arbitrarily under contention.
	Lock(ctx context.Context) error
	Unlock(ctx context.Context) error

	StoreConfig(ctx context.Context, hostname string) (*StoreConfig, error)
	BoardConfig(ctx context.Context, hostname string) (*BoardConfig, error)
	NextMaster(ctx context.Context, current string) (string, error)
	CheckConnection(ctx context.Context) bool

	DeclareRemoteStore(ctx context.Context, hostname string) error
	Disconnect(ctx context.Context) error
}
