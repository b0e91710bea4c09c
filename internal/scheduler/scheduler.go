package scheduler

import (
	"context"
	"crypto/md5"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cpausmit/dynamo/internal/catalog"
	"github.com/cpausmit/dynamo/internal/dstats"
	"github.com/cpausmit/dynamo/internal/registry"
	"github.com/cpausmit/dynamo/internal/servermgr"
	"github.com/cpausmit/dynamo/internal/xlog"
)

const (
	idleSleep   = 500 * time.Millisecond
	activeSleep = 0
	joinTimeout = 60 * time.Second
)

// Config wires a Scheduler to its collaborators. Manager may be nil, in
// which case applied commands are never propagated (single-host mode).
type Config struct {
	Registry      registry.Backend
	Catalog       *catalog.Catalog
	Manager       *servermgr.Manager
	Launcher      Launcher
	FullAccessUser string
	ReadOnlyUser   string
	PayloadMarker  string // default "exec"
	LogDir         string
	SocketDir      string
	Signals        chan os.Signal // forwarding sink for SignalBlocker; may be nil
	Stats          *dstats.Stats  // optional
}

// Scheduler is the main-loop owner described in spec.md §4.5.
type Scheduler struct {
	cfg Config

	mu        sync.Mutex
	running   map[uint64]*runningWorker
	writeSlot uint64 // 0 == free
	sleepTime time.Duration
}

type runningWorker struct {
	actionID     uint64
	writeRequest bool
	proc         Process
	startedAt    time.Time

	doneCh  chan struct{}
	exitErr error

	socket   string
	listener net.Listener
	connCh   chan net.Conn
	conn     net.Conn
}

func New(cfg Config) *Scheduler {
	if cfg.PayloadMarker == "" {
		cfg.PayloadMarker = "exec"
	}
	if cfg.Launcher == nil {
		cfg.Launcher = &OSLauncher{}
	}
	return &Scheduler{cfg: cfg, running: make(map[uint64]*runningWorker)}
}

// Run executes the main loop until ctx is cancelled, implementing the
// numbered steps of spec.md §4.5.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			s.shutdown(context.Background())
			return ctx.Err()
		default:
		}

		// Step 1: release any held table lock from the previous iteration.
		_ = s.cfg.Registry.Unlock(ctx)

		// Step 2: reap.
		s.reapAll(ctx)

		// Step 3: sleep.
		if s.sleepTime > 0 {
			select {
			case <-time.After(s.sleepTime):
			case <-ctx.Done():
				s.shutdown(context.Background())
				return ctx.Err()
			}
		}

		if err := s.pollOnce(ctx); err != nil {
			xlog.Log.Error().Err(err).Msg("scheduler: poll failed")
		}
	}
}

func (s *Scheduler) writeSlotOccupied() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeSlot != 0
}

// pollOnce is steps 4-8: select, validate, authorize, spawn, all under the
// action-table lock.
func (s *Scheduler) pollOnce(ctx context.Context) error {
	if err := s.cfg.Registry.Lock(ctx); err != nil {
		return err
	}
	defer func() { _ = s.cfg.Registry.Unlock(ctx) }()

	action, err := s.cfg.Registry.NextNew(ctx, s.writeSlotOccupied())
	if err != nil {
		return err
	}
	if action == nil {
		s.sleepTime = idleSleep
		return nil
	}
	s.sleepTime = activeSleep

	payloadPath := filepath.Join(action.Path, s.cfg.PayloadMarker)
	data, readErr := os.ReadFile(payloadPath)
	if readErr != nil {
		return s.cfg.Registry.SetStatus(ctx, action.ID, registry.StatusNotFound, nil)
	}

	var socketPath string
	if action.WriteRequest {
		sum := md5.Sum(data)
		ok, authErr := s.cfg.Registry.IsAuthorized(ctx, action.Title, sum, action.UserID)
		if authErr != nil {
			return authErr
		}
		if !ok {
			return s.cfg.Registry.SetStatus(ctx, action.ID, registry.StatusAuthFailed, nil)
		}
		socketPath = filepath.Join(s.cfg.SocketDir, fmt.Sprintf("action-%d.sock", action.ID))
	}

	return s.spawn(ctx, action, payloadPath, socketPath)
}

func (s *Scheduler) username(writeRequest bool) string {
	if writeRequest {
		return s.cfg.FullAccessUser
	}
	return s.cfg.ReadOnlyUser
}

func (s *Scheduler) logPath(actionID uint64, suffix string) string {
	if s.cfg.LogDir == "" {
		return ""
	}
	return filepath.Join(s.cfg.LogDir, fmt.Sprintf("action-%d.%s", actionID, suffix))
}
