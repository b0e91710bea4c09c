package scheduler

import (
	"os/user"
	"strconv"
	"syscall"
)

// lookupCredential resolves username to a syscall.Credential for privilege
// drop at spawn (spec.md §4.5.1 "drop privileges to the configured
// unprivileged user"). An empty username returns nil, nil: the worker then
// runs with the scheduler's own credentials (typical in dev/test).
func lookupCredential(username string) (*syscall.Credential, error) {
	if username == "" {
		return nil, nil
	}
	u, err := user.Lookup(username)
	if err != nil {
		return nil, err
	}
	uid, err := strconv.ParseUint(u.Uid, 10, 32)
	if err != nil {
		return nil, err
	}
	gid, err := strconv.ParseUint(u.Gid, 10, 32)
	if err != nil {
		return nil, err
	}
	return &syscall.Credential{Uid: uint32(uid), Gid: uint32(gid)}, nil
}
