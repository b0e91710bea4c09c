// Package registry is the typed action-queue and authorization
// key-value store the scheduler polls, standing in for the abstract
// "registry database schema (SQL access is specified abstractly...)"
// named out of scope in spec.md §1. The schema mirrors the `action`,
// `users`, and `authorized_executables` tables queried directly in
// original_source/lib/core/server.go.
/*
 * Copyright (c) 2024-2026, the dynamo project authors.
 */
package registry

import (
	"context"
	"time"
)

// Status is an action's lifecycle state, spec.md §6.
type Status string

const (
	StatusNew        Status = "new"
	StatusRun        Status = "run"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
	StatusKilled     Status = "killed"
	StatusNotFound   Status = "notfound"
	StatusAuthFailed Status = "authfailed"
)

// Action is one row of the action queue.
type Action struct {
	ID           uint64
	Title        string
	Path         string
	Args         string
	UserID       uint64
	UserName     string
	Timestamp    time.Time
	Status       Status
	ExitCode     int
	WriteRequest bool
}

// AuthEntry authorizes a (title, checksum) payload for a user; UserID ==
// 0 is the wildcard, spec.md §6 "Authorization table".
type AuthEntry struct {
	Title    string
	Checksum [16]byte // MD5 of the executable payload bytes
	UserID   uint64
}

// Backend is the typed action-queue + key-value store the scheduler and
// the authorization check depend on.
type Backend interface {
	// Lock/Unlock bracket the single SELECT-and-UPDATE in the scheduler's
	// polling step; this is the *local* table-write lock of spec.md §5,
	// not the cluster-wide master lock.
	Lock(ctx context.Context) error
	Unlock(ctx context.Context) error

	// NextNew selects the oldest action in state `new`, honoring the
	// write_request=0 filter when writeSlotOccupied is true, and
	// atomically marks it `run`. Returns (nil, nil) if none is found.
	NextNew(ctx context.Context, writeSlotOccupied bool) (*Action, error)

	SetStatus(ctx context.Context, id uint64, status Status, exitCode *int) error
	// Get returns the current row, or (nil, nil) if it no longer exists.
	Get(ctx context.Context, id uint64) (*Action, error)

	IsAuthorized(ctx context.Context, title string, checksum [16]byte, userID uint64) (bool, error)
}
