// Package boltstore backs the master.Store interface with go.etcd.io/bbolt,
// the same "one row as a distributed mutex" idiom cuemby-warren's bolt
// layer uses at a smaller scale, adapted here to a hostname-keyed host
// table and a single lease-row lock.
/*
 * Copyright (c) 2024-2026, the dynamo project authors.
 */
package boltstore

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/cpausmit/dynamo/internal/dynerr"
	"github.com/cpausmit/dynamo/internal/master"
)

var (
	bucketHosts  = []byte("hosts")
	bucketStores = []byte("stores")
	bucketBoards = []byte("boards")
	bucketLock   = []byte("lock")

	lockKey = []byte("holder")
)

const leaseTTL = 10 * time.Second

type hostRecord struct {
	Status   master.Status `json:"status"`
	HasStore bool          `json:"has_store"`
}

type lockRecord struct {
	Holder   string    `json:"holder"`
	Deadline time.Time `json:"deadline"`
}

// Store is a bbolt-backed master.Store. Hostname ordering for NextMaster
// follows bucket key order (lexical), which is stable across restarts.
type Store struct {
	db       *bolt.DB
	holderID string
	healthy  func() bool
}

// Open creates or opens the bolt database at path and ensures its buckets
// exist. holderID identifies this process when contending for the lock
// (typically the local hostname plus a pid or random suffix).
func Open(path, holderID string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "boltstore: open")
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketHosts, bucketStores, bucketBoards, bucketLock} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "boltstore: init buckets")
	}
	return &Store{db: db, holderID: holderID, healthy: func() bool { return true }}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// SetHealthFunc overrides the predicate CheckConnection consults; tests
// use this to simulate a severed connection without closing the database.
func (s *Store) SetHealthFunc(f func() bool) { s.healthy = f }

func (s *Store) HostList(context.Context) ([]master.HostEntry, error) {
	var out []master.HostEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketHosts)
		return b.ForEach(func(k, v []byte) error {
			var rec hostRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			out = append(out, master.HostEntry{Hostname: string(k), Status: rec.Status, HasStore: rec.HasStore})
			return nil
		})
	})
	return out, err
}

func (s *Store) Status(_ context.Context, hostname string) (master.Status, error) {
	var status master.Status
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketHosts).Get([]byte(hostname))
		if v == nil {
			return dynerr.ErrUnknownEntity
		}
		var rec hostRecord
		if err := json.Unmarshal(v, &rec); err != nil {
			return err
		}
		status = rec.Status
		return nil
	})
	return status, err
}

func (s *Store) SetStatus(_ context.Context, hostname string, status master.Status) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketHosts)
		rec := hostRecord{}
		if v := b.Get([]byte(hostname)); v != nil {
			_ = json.Unmarshal(v, &rec)
		}
		rec.Status = status
		buf, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put([]byte(hostname), buf)
	})
}

func (s *Store) Heartbeat(ctx context.Context, hostname string) error {
	// No liveness timestamp is stored: a heartbeat only reads the host's
	// status to prove the store is reachable (an unknown host is not an
	// error).
	_, err := s.Status(ctx, hostname)
	if errors.Is(err, dynerr.ErrUnknownEntity) {
		return nil
	}
	return err
}

// Lock busy-waits on a jittered backoff until it can claim the single
// lock row or the previous holder's lease has expired.
func (s *Store) Lock(ctx context.Context) error {
	for {
		acquired, err := s.tryLock()
		if err != nil {
			return err
		}
		if acquired {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(20+rand.Intn(30)) * time.Millisecond):
		}
	}
}

func (s *Store) tryLock() (bool, error) {
	acquired := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLock)
		v := b.Get(lockKey)
		now := time.Now()
		if v != nil {
			var rec lockRecord
			if err := json.Unmarshal(v, &rec); err == nil {
				if rec.Holder != s.holderID && now.Before(rec.Deadline) {
					return nil // held by someone else, not expired
				}
			}
		}
		rec := lockRecord{Holder: s.holderID, Deadline: now.Add(leaseTTL)}
		buf, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		acquired = true
		return b.Put(lockKey, buf)
	})
	return acquired, err
}

func (s *Store) Unlock(context.Context) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLock)
		v := b.Get(lockKey)
		if v == nil {
			return nil
		}
		var rec lockRecord
		if err := json.Unmarshal(v, &rec); err != nil {
			return err
		}
		if rec.Holder != s.holderID {
			return nil // not ours, leave it (expired lease will reclaim)
		}
		return b.Delete(lockKey)
	})
}

func (s *Store) StoreConfig(_ context.Context, hostname string) (*master.StoreConfig, error) {
	var cfg master.StoreConfig
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketStores).Get([]byte(hostname))
		if v == nil {
			return dynerr.ErrUnknownEntity
		}
		return json.Unmarshal(v, &cfg)
	})
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (s *Store) SetStoreConfig(hostname string, cfg master.StoreConfig) error {
	buf, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketStores).Put([]byte(hostname), buf)
	})
}

func (s *Store) BoardConfig(_ context.Context, hostname string) (*master.BoardConfig, error) {
	var cfg master.BoardConfig
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketBoards).Get([]byte(hostname))
		if v == nil {
			return dynerr.ErrUnknownEntity
		}
		return json.Unmarshal(v, &cfg)
	})
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (s *Store) SetBoardConfig(hostname string, cfg master.BoardConfig) error {
	buf, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBoards).Put([]byte(hostname), buf)
	})
}

func (s *Store) NextMaster(ctx context.Context, current string) (string, error) {
	hosts, err := s.HostList(ctx)
	if err != nil {
		return "", err
	}
	for _, h := range hosts {
		if h.Hostname != current {
			return h.Hostname, nil
		}
	}
	return "", dynerr.ErrNoStore
}

func (s *Store) CheckConnection(context.Context) bool { return s.healthy() }

func (s *Store) DeclareRemoteStore(_ context.Context, hostname string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketHosts)
		rec := hostRecord{}
		if v := b.Get([]byte(hostname)); v != nil {
			_ = json.Unmarshal(v, &rec)
		}
		rec.HasStore = true
		buf, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put([]byte(hostname), buf)
	})
}

func (s *Store) Disconnect(context.Context) error { return s.Close() }

var _ master.Store = (*Store)(nil)
