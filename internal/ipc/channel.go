package ipc

import (
	"bytes"
	"errors"
	"io"
	"net"
	"time"
)

// ReadState is drain's outcome, spec.md §4.5.2's "read_state ∈ {0
// nothing, 1 ok, 2 failure}".
type ReadState int

const (
	ReadNothing ReadState = iota
	ReadOK
	ReadFailure
)

const (
	drainTimeout = 60 * time.Second
	// firstReadWait bounds the initial poll; a deadline already in the past
	// would fail every read, even with data waiting.
	firstReadWait = 10 * time.Millisecond
)

// Drain reads one writer's command stream to completion. The first
// receive only polls: if no byte arrives within firstReadWait it returns
// (ReadNothing, nil). Once any data has been seen, reads block with a 60s
// deadline each; a deadline expiry yields (ReadFailure, partial).
// Receiving the end-of-message sentinel yields (ReadOK, commands).
func Drain(conn net.Conn) (ReadState, []Message) {
	var commands []Message

	if err := conn.SetReadDeadline(time.Now().Add(firstReadWait)); err != nil {
		return ReadFailure, commands
	}
	var first [1]byte
	if _, err := io.ReadFull(conn, first[:]); err != nil {
		return ReadNothing, nil // timeout, EOF or any other error: nothing read
	}
	if err := conn.SetReadDeadline(time.Now().Add(drainTimeout)); err != nil {
		return ReadFailure, commands
	}
	msg, err := ReadMessage(io.MultiReader(bytes.NewReader(first[:]), conn))
	if err != nil {
		return ReadFailure, commands
	}
	if msg.Cmd == CmdEndOfMessage {
		return ReadOK, commands
	}
	commands = append(commands, msg)

	for {
		if err := conn.SetReadDeadline(time.Now().Add(drainTimeout)); err != nil {
			return ReadFailure, commands
		}
		msg, err := ReadMessage(conn)
		if err != nil {
			return ReadFailure, commands
		}
		if msg.Cmd == CmdEndOfMessage {
			return ReadOK, commands
		}
		commands = append(commands, msg)
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}

// Writer is the worker-side handle used to stream commands back to the
// scheduler, followed by an end-of-message sentinel.
type Writer struct {
	conn net.Conn
}

func NewWriter(conn net.Conn) *Writer { return &Writer{conn: conn} }

func (w *Writer) Send(cmd Cmd, typ string, payload []byte) error {
	return WriteMessage(w.conn, Message{Cmd: cmd, Type: typ, Payload: payload})
}

func (w *Writer) SendEndOfMessage() error {
	return WriteMessage(w.conn, Message{Cmd: CmdEndOfMessage})
}
