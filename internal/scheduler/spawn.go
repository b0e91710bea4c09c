package scheduler

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/cpausmit/dynamo/internal/catalog"
	"github.com/cpausmit/dynamo/internal/registry"
)

// spawn starts one worker process for action and tracks it, step 8 of
// spec.md §4.5 ("mark action run; spawn a child worker").
func (s *Scheduler) spawn(ctx context.Context, action *registry.Action, payloadPath, socketPath string) error {
	rw := &runningWorker{
		actionID:     action.ID,
		writeRequest: action.WriteRequest,
		startedAt:    time.Now(),
		doneCh:       make(chan struct{}),
		socket:       socketPath,
	}

	snapshotPath, err := s.writeSnapshot(action.ID)
	if err != nil {
		return errors.Wrap(err, "scheduler: snapshot")
	}

	args := []string{
		"--action-id", strconv.FormatUint(action.ID, 10),
		"--payload", payloadPath,
		"--args", action.Args,
		"--snapshot", snapshotPath,
	}
	if action.WriteRequest {
		listener, err := net.Listen("unix", socketPath)
		if err != nil {
			return errors.Wrap(err, "scheduler: listen")
		}
		rw.listener = listener
		rw.connCh = make(chan net.Conn, 1)
		args = append(args, "--socket", socketPath)
		go acceptOne(listener, rw.connCh)
	} else {
		args = append(args, "--readonly")
	}

	proc, err := s.cfg.Launcher.Launch(ctx, LaunchSpec{
		ActionID:   action.ID,
		Args:       args,
		Username:   s.username(action.WriteRequest),
		Socket:     socketPath,
		ReadOnly:   !action.WriteRequest,
		StdoutPath: s.logPath(action.ID, "stdout"),
		StderrPath: s.logPath(action.ID, "stderr"),
	})
	if err != nil {
		if rw.listener != nil {
			_ = rw.listener.Close()
		}
		_ = s.cfg.Registry.SetStatus(ctx, action.ID, registry.StatusFailed, nil)
		return errors.Wrap(err, "scheduler: launch")
	}
	rw.proc = proc

	go func() {
		err := proc.Wait()
		rw.exitErr = err
		close(rw.doneCh)
	}()

	s.mu.Lock()
	s.running[action.ID] = rw
	if action.WriteRequest {
		s.writeSlot = action.ID
	}
	depth := len(s.running)
	writeHeld := s.writeSlot != 0
	s.mu.Unlock()

	if s.cfg.Stats != nil {
		s.cfg.Stats.SchedulerQueueDepth.Set(float64(depth))
		s.cfg.Stats.WriteSlotOccupied.Set(boolFloat(writeHeld))
	}
	return nil
}

func (s *Scheduler) snapshotPath(actionID uint64) string {
	return filepath.Join(s.cfg.SocketDir, "action-"+strconv.FormatUint(actionID, 10)+".snapshot")
}

// writeSnapshot exports the current catalog to a file the spawned worker
// reads at startup, substituting for the read-only data connection handle
// of spec.md §4.5.1 ("The catalog handle given to a read-only worker is
// backed by a read-only data connection").
func (s *Scheduler) writeSnapshot(actionID uint64) (string, error) {
	snap := s.cfg.Catalog.Export()
	data, err := catalog.MarshalSnapshot(snap)
	if err != nil {
		return "", err
	}
	path := s.snapshotPath(actionID)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}

func acceptOne(l net.Listener, out chan<- net.Conn) {
	conn, err := l.Accept()
	if err != nil {
		return
	}
	out <- conn
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	type exitStatuser interface{ ExitCode() int }
	if ee, ok := err.(exitStatuser); ok {
		return ee.ExitCode()
	}
	return -1
}
