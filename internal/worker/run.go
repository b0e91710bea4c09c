package worker

import (
	"context"
	"net"

	"github.com/pkg/errors"

	"github.com/cpausmit/dynamo/internal/catalog"
	"github.com/cpausmit/dynamo/internal/ipc"
)

// RunConfig is what the `dynamod worker` subcommand assembles from its
// flags before handing control to a Payload.
type RunConfig struct {
	ActionID uint64
	Args     string // the submitting action's argument string, passed through verbatim
	Snapshot []byte // catalog.Export() payload from the scheduler
	Socket   string // unix socket to stream commands back on; empty when ReadOnly
	ReadOnly bool
}

// Execute loads the snapshot, builds the Context appropriate to ReadOnly,
// runs payload, and — for a write-enabled run — streams every recorded
// command over the socket followed by an end-of-message sentinel, per
// spec.md §4.5.1 "the writer streams each (cmd, obj) into the channel,
// followed by an end-of-message sentinel".
func Execute(ctx context.Context, cfg RunConfig, payload Payload) error {
	base, err := catalog.ImportSnapshot(cfg.Snapshot)
	if err != nil {
		return errors.Wrap(err, "worker: import snapshot")
	}

	inv := NewRecordingInventory(base, cfg.ReadOnly)
	wctx := &Context{Inventory: inv, ActionID: cfg.ActionID, Args: cfg.Args, ReadOnly: cfg.ReadOnly}

	runErr := payload.Run(ctx, wctx)
	if runErr != nil {
		// A failed run must not send end-of-message: it never connects to
		// the socket, the worker exits with an error, and the scheduler's
		// reap marks the action failed with its effects void, per spec.md
		// §5/§7 (read_state=2) rather than committing whatever mutations
		// were recorded before the failure.
		return runErr
	}

	if !cfg.ReadOnly {
		if sendErr := sendCommands(cfg.Socket, inv.Commands()); sendErr != nil {
			return errors.Wrap(sendErr, "worker: send commands")
		}
	}
	return nil
}

func sendCommands(socket string, commands []ipc.Message) error {
	conn, err := net.Dial("unix", socket)
	if err != nil {
		return err
	}
	defer conn.Close()

	w := ipc.NewWriter(conn)
	for _, m := range commands {
		if err := w.Send(m.Cmd, m.Type, m.Payload); err != nil {
			return err
		}
	}
	return w.SendEndOfMessage()
}
