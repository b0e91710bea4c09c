package registry

import (
	"context"
	"encoding/binary"
	"sort"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	bucketActions = []byte("actions")
	bucketAuth    = []byte("auth")
)

type authRecord struct {
	Title    string `json:"title"`
	Checksum string `json:"checksum"` // hex
	UserID   uint64 `json:"user_id"`
}

// BoltBackend persists the action queue and authorization table in bbolt,
// the concrete KV store spec.md §1 allows in place of a real SQL registry.
type BoltBackend struct {
	db      *bolt.DB
	mu      sync.Mutex    // not used by any method
	tblLock chan struct{} // local table-write lock, spec.md §5(ii)
}

func OpenBolt(path string) (*BoltBackend, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, errors.Wrap(err, "registry: open")
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketActions, bucketAuth} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltBackend{db: db, tblLock: make(chan struct{}, 1)}, nil
}

func (b *BoltBackend) Close() error { return b.db.Close() }

func (b *BoltBackend) Lock(ctx context.Context) error {
	select {
	case b.tblLock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *BoltBackend) Unlock(context.Context) error {
	select {
	case <-b.tblLock:
	default:
	}
	return nil
}

func idKey(id uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, id)
	return k
}

func (b *BoltBackend) NextNew(_ context.Context, writeSlotOccupied bool) (*Action, error) {
	var chosen *Action
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketActions)
		var candidates []*Action
		c := bucket.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var a Action
			if err := json.Unmarshal(v, &a); err != nil {
				return err
			}
			if a.Status != StatusNew {
				continue
			}
			if writeSlotOccupied && a.WriteRequest {
				continue
			}
			candidates = append(candidates, &a)
		}
		if len(candidates) == 0 {
			return nil
		}
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].Timestamp.Before(candidates[j].Timestamp) })
		chosen = candidates[0]
		chosen.Status = StatusRun
		buf, err := json.Marshal(chosen)
		if err != nil {
			return err
		}
		return bucket.Put(idKey(chosen.ID), buf)
	})
	if err != nil {
		return nil, err
	}
	return chosen, nil
}

func (b *BoltBackend) SetStatus(_ context.Context, id uint64, status Status, exitCode *int) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketActions)
		v := bucket.Get(idKey(id))
		if v == nil {
			return nil
		}
		var a Action
		if err := json.Unmarshal(v, &a); err != nil {
			return err
		}
		a.Status = status
		if exitCode != nil {
			a.ExitCode = *exitCode
		}
		buf, err := json.Marshal(&a)
		if err != nil {
			return err
		}
		return bucket.Put(idKey(id), buf)
	})
}

func (b *BoltBackend) Get(_ context.Context, id uint64) (*Action, error) {
	var a *Action
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketActions).Get(idKey(id))
		if v == nil {
			return nil
		}
		var rec Action
		if err := json.Unmarshal(v, &rec); err != nil {
			return err
		}
		a = &rec
		return nil
	})
	return a, err
}

// Submit inserts a new action and returns its id, using a timestamp-sized
// auto-increment sequence so insertion order matches timestamp order for
// actions submitted through this helper.
func (b *BoltBackend) Submit(a Action) (uint64, error) {
	var id uint64
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketActions)
		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		id = seq
		a.ID = id
		a.Status = StatusNew
		if a.Timestamp.IsZero() {
			a.Timestamp = time.Now()
		}
		buf, err := json.Marshal(&a)
		if err != nil {
			return err
		}
		return bucket.Put(idKey(id), buf)
	})
	return id, err
}

func (b *BoltBackend) Authorize(e AuthEntry) error {
	rec := authRecord{Title: e.Title, Checksum: hexEncode(e.Checksum), UserID: e.UserID}
	buf, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketAuth)
		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		return bucket.Put(idKey(seq), buf)
	})
}

func (b *BoltBackend) IsAuthorized(_ context.Context, title string, checksum [16]byte, userID uint64) (bool, error) {
	wantHex := hexEncode(checksum)
	authorized := false
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAuth).ForEach(func(_, v []byte) error {
			var rec authRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			if rec.Title != title || rec.Checksum != wantHex {
				return nil
			}
			if rec.UserID == 0 || rec.UserID == userID {
				authorized = true
			}
			return nil
		})
	})
	return authorized, err
}

func hexEncode(b [16]byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, 32)
	for i, c := range b {
		out[i*2] = hextable[c>>4]
		out[i*2+1] = hextable[c&0x0f]
	}
	return string(out)
}

var _ Backend = (*BoltBackend)(nil)
