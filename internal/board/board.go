// Package board implements the per-host durable update board: a queue of
// (command, object) pairs awaiting local apply by a peer, per spec.md
// §4.3, grounded on UpdateBoard usage in
// original_source/lib/core/manager.go's get_updates/send_updates.
/*
 * Copyright (c) 2024-2026, the dynamo project authors.
 */
package board

import "context"

// Command is the kind of a queued update, spec.md §6 "IPC channel
// messages" (shared with the scheduler's worker protocol).
type Command int

const (
	CmdUpdate Command = iota
	CmdDelete
)

// Entry is one queued mutation. Payload is an opaque JSON encoding tagged with
// its catalog entity type so a follower can decode and re-apply it.
type Entry struct {
	Cmd     Command
	Type    string
	Payload []byte
}

// Board is a per-host durable queue. WriteUpdates is atomic with respect
// to concurrent GetUpdates: readers see either the full batch or none.
type Board interface {
	Lock(ctx context.Context) error
	Unlock(ctx context.Context) error

	// GetUpdates returns a restartable snapshot of pending entries.
	GetUpdates(ctx context.Context) ([]Entry, error)
	// Flush clears the board after a successful apply.
	Flush(ctx context.Context) error
	// WriteUpdates appends entries atomically.
	WriteUpdates(ctx context.Context, entries []Entry) error

	Disconnect(ctx context.Context) error
}
