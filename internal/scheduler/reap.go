package scheduler

import (
	"context"
	"os"
	"syscall"
	"time"

	"github.com/pkg/errors"

	"github.com/cpausmit/dynamo/internal/board"
	"github.com/cpausmit/dynamo/internal/dynerr"
	"github.com/cpausmit/dynamo/internal/ipc"
	"github.com/cpausmit/dynamo/internal/registry"
	"github.com/cpausmit/dynamo/internal/worker"
	"github.com/cpausmit/dynamo/internal/xlog"
)

// reapAll implements spec.md §4.5.2 for every tracked child.
func (s *Scheduler) reapAll(ctx context.Context) {
	s.mu.Lock()
	ids := make([]uint64, 0, len(s.running))
	for id := range s.running {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.reapOne(ctx, id)
	}
}

func (s *Scheduler) reapOne(ctx context.Context, id uint64) {
	s.mu.Lock()
	rw, ok := s.running[id]
	s.mu.Unlock()
	if !ok {
		return
	}

	action, err := s.cfg.Registry.Get(ctx, id)
	if err != nil {
		xlog.Log.Error().Err(err).Uint64("action", id).Msg("scheduler: reap: get")
		return
	}
	if action == nil || action.Status != registry.StatusRun {
		s.terminateAndJoin(rw)
		s.finish(ctx, id, registry.StatusKilled, nil)
		return
	}

	isWriteSlot := s.isWriteSlot(id)
	if isWriteSlot {
		s.reapWriter(ctx, id, rw)
		return
	}
	s.reapReader(ctx, id, rw)
}

func (s *Scheduler) isWriteSlot(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeSlot == id
}

func (s *Scheduler) reapWriter(ctx context.Context, id uint64, rw *runningWorker) {
	if rw.conn == nil {
		select {
		case conn := <-rw.connCh:
			rw.conn = conn
		default:
			select {
			case <-rw.doneCh:
				// A failed run exits with an error and never connects:
				// read_state = 2.
				if rw.exitErr != nil {
					s.finish(ctx, id, registry.StatusFailed, exitCodePtr(rw))
				}
			default:
			}
			return // read_state = 0, nothing yet; still running.
		}
	}

	state, commands := ipc.Drain(rw.conn)
	switch state {
	case ipc.ReadNothing:
		select {
		case <-rw.doneCh:
			// Connected, then exited without sending anything: read_state = 2.
			s.finish(ctx, id, registry.StatusFailed, exitCodePtr(rw))
		default:
		}
		return
	case ipc.ReadOK:
		if err := s.applyAndPropagate(ctx, commands); err != nil {
			xlog.Log.Error().Err(err).Uint64("action", id).Msg("scheduler: apply failed")
			s.terminateAndJoin(rw)
			s.finish(ctx, id, registry.StatusFailed, exitCodePtr(rw))
			return
		}
		s.joinQuiet(rw)
		s.finish(ctx, id, registry.StatusDone, exitCodePtr(rw))
	case ipc.ReadFailure:
		s.terminateAndJoin(rw)
		s.finish(ctx, id, registry.StatusFailed, exitCodePtr(rw))
	}
}

func (s *Scheduler) reapReader(ctx context.Context, id uint64, rw *runningWorker) {
	select {
	case <-rw.doneCh:
	default:
		return // still alive, not yet reapable.
	}
	if rw.exitErr == nil {
		s.finish(ctx, id, registry.StatusDone, exitCodePtr(rw))
		return
	}
	s.finish(ctx, id, registry.StatusFailed, exitCodePtr(rw))
}

// applyAndPropagate is the "atomic application" step: signals are diverted
// for the duration of the apply, commands are applied to the catalog in
// order, and on success the same list is handed to the server manager for
// propagation (spec.md §4.5 "Atomic application").
func (s *Scheduler) applyAndPropagate(ctx context.Context, commands []ipc.Message) error {
	blocker := NewSignalBlocker(s.cfg.Signals)
	defer blocker.Release()

	for _, m := range commands {
		obj, err := worker.DecodeEntity(m.Type, m.Payload)
		if err != nil {
			return errors.Wrap(err, "scheduler: decode command")
		}
		switch m.Cmd {
		case ipc.CmdUpdate:
			if err := s.cfg.Catalog.Update(obj); err != nil {
				return errors.Wrap(err, "scheduler: catalog update")
			}
		case ipc.CmdDelete:
			if err := s.cfg.Catalog.Delete(obj); err != nil {
				return errors.Wrap(err, "scheduler: catalog delete")
			}
		default:
			return errors.Errorf("scheduler: unexpected command kind %v", m.Cmd)
		}
	}

	if s.cfg.Manager == nil || len(commands) == 0 {
		return nil
	}
	entries := make([]board.Entry, len(commands))
	for i, m := range commands {
		cmd := board.CmdUpdate
		if m.Cmd == ipc.CmdDelete {
			cmd = board.CmdDelete
		}
		entries[i] = board.Entry{Cmd: cmd, Type: m.Type, Payload: m.Payload}
	}
	return s.cfg.Manager.SendUpdates(ctx, entries)
}

func (s *Scheduler) finish(ctx context.Context, id uint64, status registry.Status, code *int) {
	if err := s.cfg.Registry.SetStatus(ctx, id, status, code); err != nil {
		xlog.Log.Error().Err(err).Uint64("action", id).Msg("scheduler: set status")
	}
	s.mu.Lock()
	rw := s.running[id]
	delete(s.running, id)
	if s.writeSlot == id {
		s.writeSlot = 0
	}
	depth := len(s.running)
	writeHeld := s.writeSlot != 0
	s.mu.Unlock()

	if s.cfg.Stats != nil {
		s.cfg.Stats.ActionsByStatus.WithLabelValues(string(status)).Inc()
		s.cfg.Stats.SchedulerQueueDepth.Set(float64(depth))
		s.cfg.Stats.WriteSlotOccupied.Set(boolFloat(writeHeld))
	}
	if rw != nil {
		if rw.listener != nil {
			_ = rw.listener.Close()
			_ = os.Remove(rw.socket)
		}
		_ = os.Remove(s.snapshotPath(id))
	}
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func exitCodePtr(rw *runningWorker) *int {
	c := exitCode(rw.exitErr)
	return &c
}

// terminateAndJoin sends the termination signal and waits up to 60s,
// spec.md §4.5.2's "terminate the worker, join up to 60 s" and §4.5's
// "StuckWorker" kind for a child that refuses to exit.
func (s *Scheduler) terminateAndJoin(rw *runningWorker) {
	if rw.proc == nil {
		return
	}
	_ = rw.proc.Signal(syscall.SIGTERM)
	select {
	case <-rw.doneCh:
	case <-time.After(joinTimeout):
		xlog.Log.Warn().Uint64("action", rw.actionID).Err(dynerr.ErrStuckWorker).Msg("scheduler: worker did not exit")
		_ = rw.proc.Kill()
	}
}

func (s *Scheduler) joinQuiet(rw *runningWorker) {
	select {
	case <-rw.doneCh:
	case <-time.After(joinTimeout):
		xlog.Log.Warn().Uint64("action", rw.actionID).Err(dynerr.ErrStuckWorker).Msg("scheduler: worker did not exit after success")
	}
}

// shutdown implements spec.md §4.5's "Shutdown": release the table lock,
// then terminate and join every live child (waiting up to joinTimeout) and
// mark it killed. The scheduler's privileges are not changed around the
// terminate+join.
func (s *Scheduler) shutdown(ctx context.Context) {
	_ = s.cfg.Registry.Unlock(ctx)

	s.mu.Lock()
	ids := make([]uint64, 0, len(s.running))
	for id := range s.running {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.mu.Lock()
		rw := s.running[id]
		s.mu.Unlock()
		if rw == nil {
			continue
		}
		s.terminateAndJoin(rw)
		s.finish(ctx, id, registry.StatusKilled, exitCodePtr(rw))
	}
}
