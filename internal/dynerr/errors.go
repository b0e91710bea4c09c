// Package dynerr defines the sentinel error kinds shared across the engine
// and a latch-once-then-count error value used by code paths that care
// about the first cause of a repeating failure.
/*
 * Copyright (c) 2024-2026, the dynamo project authors.
 */
package dynerr

import (
	"sync/atomic"

	"github.com/pkg/errors"
)

// Sentinel kinds. Wrap with errors.Wrap/Wrapf for context; compare with
// errors.Is.
var (
	ErrIdentityMismatch = errors.New("identity mismatch")
	ErrUnknownEntity    = errors.New("unknown entity")
	ErrFileNotPresent   = errors.New("file not present")
	ErrOutOfSync        = errors.New("server out of sync")
	ErrNoStore          = errors.New("no remote persistency store available")
	ErrMasterLocal      = errors.New("master server is local, no shadow to fail over to")
	ErrAuth             = errors.New("write authorization failed")
	ErrNotFound         = errors.New("executable payload not found")
	ErrWorkerCrash      = errors.New("worker crashed or timed out")
	ErrStuckWorker      = errors.New("worker did not exit after termination")
	ErrReadOnly         = errors.New("inventory is read-only in this worker")
)

type holder struct{ err error }

// Value latches the first error stored into it and counts subsequent
// Store calls against the same root cause, the same pattern as
// cmn/cos.ErrValue in the aistore codebase, minus its custom atomic.Value
// wrapper.
type Value struct {
	v   atomic.Value
	cnt atomic.Int64
}

func (ev *Value) Store(err error) {
	if err == nil {
		return
	}
	if ev.cnt.Add(1) == 1 {
		ev.v.Store(&holder{err})
	}
}

func (ev *Value) Err() error {
	x, _ := ev.v.Load().(*holder)
	if x == nil {
		return nil
	}
	if cnt := ev.cnt.Load(); cnt > 1 {
		return errors.Wrapf(x.err, "cnt=%d", cnt)
	}
	return x.err
}

func (ev *Value) Reset() {
	ev.v.Store(&holder{})
	ev.cnt.Store(0)
}
