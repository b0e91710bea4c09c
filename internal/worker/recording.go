package worker

import (
	"github.com/cpausmit/dynamo/internal/catalog"
	"github.com/cpausmit/dynamo/internal/dynerr"
	"github.com/cpausmit/dynamo/internal/ipc"
)

// RecordingInventory wraps a snapshot catalog: lookups are served from the
// snapshot, and Update/Delete are applied to it and also captured as IPC
// messages, so a write-enabled worker's side effects can be
// streamed back to the scheduler's process and applied atomically there
// under the master lock (spec.md §4.5.1, §6 "IPC channel messages").
type RecordingInventory struct {
	base     *catalog.Catalog
	readOnly bool
	commands []ipc.Message
}

// NewRecordingInventory wraps base. If readOnly, Update/Delete always fail
// with dynerr.ErrReadOnly instead of recording anything.
func NewRecordingInventory(base *catalog.Catalog, readOnly bool) *RecordingInventory {
	return &RecordingInventory{base: base, readOnly: readOnly}
}

func (r *RecordingInventory) FindBlock(datasetName, blockName string) (*catalog.Block, error) {
	return r.base.FindBlock(datasetName, blockName)
}

func (r *RecordingInventory) FindReplica(b *catalog.Block, site *catalog.Site) (*catalog.BlockReplica, error) {
	return r.base.FindReplica(b, site)
}

func (r *RecordingInventory) FindDatasetReplica(ds *catalog.Dataset, site *catalog.Site) (*catalog.DatasetReplica, error) {
	return r.base.FindDatasetReplica(ds, site)
}

func (r *RecordingInventory) Update(obj any) error { return r.record(ipc.CmdUpdate, obj) }
func (r *RecordingInventory) Delete(obj any) error { return r.record(ipc.CmdDelete, obj) }

func (r *RecordingInventory) record(cmd ipc.Cmd, obj any) error {
	if r.readOnly {
		return dynerr.ErrReadOnly
	}
	typ, payload, err := encodeEntity(obj)
	if err != nil {
		return err
	}
	// Apply against the local snapshot too, so later lookups within the
	// same action see its own prior writes, mirroring a real transaction's
	// read-your-writes behavior.
	if cmd == ipc.CmdUpdate {
		if err := r.base.Update(obj); err != nil {
			return err
		}
	} else {
		if err := r.base.Delete(obj); err != nil {
			return err
		}
	}
	r.commands = append(r.commands, ipc.Message{Cmd: cmd, Type: typ, Payload: payload})
	return nil
}

// Commands returns the recorded mutations in application order.
func (r *RecordingInventory) Commands() []ipc.Message { return r.commands }
