// Package checkpoint persists the last committed source position of each shard.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var ErrRegression = errors.New("checkpoint offset regression")

// Checkpoint is the durable progress marker of one shard. Offset is the
// source offset of the last document covered by the committed batch.
type Checkpoint struct {
	Shard       int       `json:"shard"`
	Offset      int64     `json:"offset"`
	Token       string    `json:"token"`
	CommittedAt time.Time `json:"committed_at"`
}

// Store loads and saves checkpoints. Save returns only after the checkpoint
// is durable, and rejects offsets lower than the stored one.
type Store interface {
	Load(ctx context.Context, shard int) (Checkpoint, bool, error)
	Save(ctx context.Context, cp Checkpoint) error
	Close() error
}

// Config selects and configures a store backend.
type Config struct {
	Backend     string        `mapstructure:"backend"`
	Path        string        `mapstructure:"path"`
	Endpoints   []string      `mapstructure:"endpoints"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	Prefix      string        `mapstructure:"prefix"`
}

// Open creates the store named by cfg.Backend: "bolt" (default), "etcd" or "memory".
func Open(cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", "bolt":
		if cfg.Path == "" {
			return nil, fmt.Errorf("bolt checkpoint store needs a path")
		}
		return OpenBolt(cfg.Path)
	case "etcd":
		if len(cfg.Endpoints) == 0 {
			return nil, fmt.Errorf("etcd checkpoint store needs endpoints")
		}
		return OpenEtcd(EtcdConfig{
			Endpoints:   cfg.Endpoints,
			Username:    cfg.Username,
			Password:    cfg.Password,
			DialTimeout: cfg.DialTimeout,
			Prefix:      cfg.Prefix,
		})
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown checkpoint backend: %s", cfg.Backend)
	}
}

// advance decides whether next may replace prev. An equal offset is accepted
// so a replayed save is harmless.
func advance(prev Checkpoint, found bool, next Checkpoint) error {
	if found && next.Offset < prev.Offset {
		return fmt.Errorf("%w: shard %d from %d to %d", ErrRegression, next.Shard, prev.Offset, next.Offset)
	}
	return nil
}

func encode(cp Checkpoint) ([]byte, error) {
	return json.Marshal(cp)
}

func decode(b []byte) (Checkpoint, error) {
	var cp Checkpoint
	if err := json.Unmarshal(b, &cp); err != nil {
		return Checkpoint{}, fmt.Errorf("decode checkpoint: %w", err)
	}
	return cp, nil
}
