package checkpoint

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var checkpointBucket = []byte("checkpoints")

// Bolt stores checkpoints in a local bbolt file. Every Save is one fsynced
// transaction.
type Bolt struct {
	db *bolt.DB
}

func OpenBolt(path string) (*Bolt, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open checkpoint db %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(checkpointBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Bolt{db: db}, nil
}

func shardKey(shard int) []byte {
	return []byte(fmt.Sprintf("%06d", shard))
}

func (b *Bolt) Load(_ context.Context, shard int) (cp Checkpoint, found bool, err error) {
	err = b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(checkpointBucket).Get(shardKey(shard))
		if v == nil {
			return nil
		}
		found = true
		cp, err = decode(v)
		return err
	})
	return cp, found, err
}

func (b *Bolt) Save(_ context.Context, cp Checkpoint) error {
	val, err := encode(cp)
	if err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		bk := tx.Bucket(checkpointBucket)
		if v := bk.Get(shardKey(cp.Shard)); v != nil {
			prev, err := decode(v)
			if err != nil {
				return err
			}
			if err := advance(prev, true, cp); err != nil {
				return err
			}
		}
		return bk.Put(shardKey(cp.Shard), val)
	})
}

// All returns every stored checkpoint in shard order.
func (b *Bolt) All() ([]Checkpoint, error) {
	var out []Checkpoint
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(checkpointBucket).ForEach(func(_, v []byte) error {
			cp, err := decode(v)
			if err != nil {
				return err
			}
			out = append(out, cp)
			return nil
		})
	})
	return out, err
}

func (b *Bolt) Close() error {
	return b.db.Close()
}
