package worker

import (
	"context"
	"os/exec"
	"path/filepath"
	"plugin"

	"github.com/pkg/errors"
)

// PayloadSymbol is the exported symbol name a plugin payload must define:
// var DynamoPayload worker.Payload
const PayloadSymbol = "DynamoPayload"

// Loader resolves an action's payload path to a runnable Payload, the
// "stable execution symbol" SPEC_FULL.md §6 calls for.
type Loader interface {
	Load(payloadPath string) (Payload, error)
}

// PluginLoader loads the payload as a Go plugin (.so), the primary path
// named in SPEC_FULL.md §6: "Worker payloads are Go plugins compiled as
// .so via plugin.Open ... or external executables". The plugin must
// export a symbol named PayloadSymbol implementing Payload.
type PluginLoader struct{}

func (PluginLoader) Load(payloadPath string) (Payload, error) {
	p, err := plugin.Open(payloadPath)
	if err != nil {
		return nil, errors.Wrap(err, "worker: open plugin")
	}
	sym, err := p.Lookup(PayloadSymbol)
	if err != nil {
		return nil, errors.Wrap(err, "worker: lookup payload symbol")
	}
	payload, ok := sym.(*Payload)
	if !ok {
		return nil, errors.Errorf("worker: symbol %s is not worker.Payload", PayloadSymbol)
	}
	return *payload, nil
}

// ExternalLoader is the fallback path for a payload that is a standalone
// executable rather than a plugin. Because it runs as an unrelated
// process, it cannot participate in the in-process Context contract: it
// is only suitable for read-only actions, where success/failure is
// conveyed purely by exit code.
type ExternalLoader struct{}

func (ExternalLoader) Load(payloadPath string) (Payload, error) {
	abs, err := filepath.Abs(payloadPath)
	if err != nil {
		return nil, errors.Wrap(err, "worker: resolve payload path")
	}
	return PayloadFunc(func(ctx context.Context, wctx *Context) error {
		if !wctx.ReadOnly {
			return errors.New("worker: external payloads cannot be the write worker")
		}
		cmd := exec.CommandContext(ctx, abs)
		return cmd.Run()
	}), nil
}
