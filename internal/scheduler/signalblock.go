package scheduler

import (
	"os"
	"os/signal"
	"syscall"
)

// SignalBlocker defers delivery of the engine's normal unwind signals
// (SIGINT, SIGTERM) for the duration of a scoped section, spec.md §4.5's
// "atomic application" step: "blocks all normal system signals for the
// duration of the apply block (a scoped acquisition that guarantees
// restoration on all exit paths)". Go cannot mask signal delivery to the
// runtime itself, so this instead also delivers them to a buffered channel
// that is drained and replayed to forward once the block ends. Delivery to
// other channels registered with signal.Notify (such as a
// signal.NotifyContext) is not suppressed during the block.
type SignalBlocker struct {
	ch      chan os.Signal
	forward chan os.Signal
}

// NewSignalBlocker starts diverting SIGINT/SIGTERM into an internal buffer.
// Acquire must be paired with Release, typically via defer.
func NewSignalBlocker(forward chan os.Signal) *SignalBlocker {
	b := &SignalBlocker{ch: make(chan os.Signal, 4), forward: forward}
	signal.Notify(b.ch, os.Interrupt, syscall.SIGTERM)
	return b
}

// Release stops diverting signals and replays any that arrived during the
// block to the forwarding channel, non-blocking (a full forward channel
// means the engine is already unwinding).
func (b *SignalBlocker) Release() {
	signal.Stop(b.ch)
	close(b.ch)
	for sig := range b.ch {
		if b.forward == nil {
			continue
		}
		select {
		case b.forward <- sig:
		default:
		}
	}
}
