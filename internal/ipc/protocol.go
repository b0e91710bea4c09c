// Package ipc implements the bounded channel between a write-enabled
// worker process and the scheduler's main loop: a typed (cmd, obj) stream
// terminated by an end-of-message sentinel, spec.md §6 "IPC channel
// messages". Workers are separate OS processes (§4.5.1), so unlike the
// original's multiprocessing.Queue the channel here is a length-prefixed
// JSON stream over a Unix-domain socket.
/*
 * Copyright (c) 2024-2026, the dynamo project authors.
 */
package ipc

import (
	"encoding/binary"
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Cmd is the kind of an IPC message, spec.md §6.
type Cmd int

const (
	CmdUpdate Cmd = iota
	CmdDelete
	CmdEndOfMessage
)

// Message is one (cmd, obj) pair. Type names the catalog entity type so
// the receiver can decode Payload; EndOfMessage carries neither.
type Message struct {
	Cmd     Cmd    `json:"cmd"`
	Type    string `json:"type,omitempty"`
	Payload []byte `json:"payload,omitempty"`
}

const maxMessageSize = 64 << 20 // 64MiB guards against a corrupt length prefix

// WriteMessage frames m as a 4-byte big-endian length prefix followed by
// its JSON encoding.
func WriteMessage(w io.Writer, m Message) error {
	buf, err := json.Marshal(m)
	if err != nil {
		return err
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(buf)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

// ReadMessage reads one length-prefixed message from r.
func ReadMessage(r io.Reader) (Message, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Message{}, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > maxMessageSize {
		return Message{}, fmt.Errorf("ipc: message too large (%d bytes)", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Message{}, err
	}
	var m Message
	if err := json.Unmarshal(buf, &m); err != nil {
		return Message{}, err
	}
	return m, nil
}
