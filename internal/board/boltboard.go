package board

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

var bucketEntries = []byte("entries")

// BoltBoard is a bbolt-backed Board: entries are appended under a
// monotonic sequence key inside one bolt transaction, which is what makes
// WriteUpdates atomic with respect to GetUpdates — bolt readers never
// observe a partially-written transaction.
type BoltBoard struct {
	db *bolt.DB
	mu sync.Mutex // local critical section, standing in for spec.md's board lock
}

func OpenBolt(path string) (*BoltBoard, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, errors.Wrap(err, "boltboard: open")
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketEntries)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltBoard{db: db}, nil
}

func (b *BoltBoard) Lock(context.Context) error {
	b.mu.Lock()
	return nil
}

func (b *BoltBoard) Unlock(context.Context) error {
	b.mu.Unlock()
	return nil
}

func (b *BoltBoard) GetUpdates(context.Context) ([]Entry, error) {
	var out []Entry
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEntries).ForEach(func(_, v []byte) error {
			e, err := decodeEntry(v)
			if err != nil {
				return err
			}
			out = append(out, e)
			return nil
		})
	})
	return out, err
}

func (b *BoltBoard) Flush(context.Context) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketEntries); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		_, err := tx.CreateBucket(bucketEntries)
		return err
	})
}

func (b *BoltBoard) WriteUpdates(_ context.Context, entries []Entry) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketEntries)
		for _, e := range entries {
			seq, err := bucket.NextSequence()
			if err != nil {
				return err
			}
			key := make([]byte, 8)
			binary.BigEndian.PutUint64(key, seq)
			buf, err := encodeEntry(e)
			if err != nil {
				return err
			}
			if err := bucket.Put(key, buf); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BoltBoard) Disconnect(context.Context) error {
	return b.db.Close()
}

var _ Board = (*BoltBoard)(nil)
