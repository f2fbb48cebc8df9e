package checkpoint

import (
	"context"
	"fmt"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

const maxSaveConflicts = 5

type EtcdConfig struct {
	Endpoints   []string
	Username    string // optional
	Password    string // optional
	DialTimeout time.Duration
	Prefix      string // default: "/bundleslurp"
}

// Etcd stores checkpoints under <prefix>/checkpoints/<shard>. Saves are a
// compare-and-swap on the key's mod revision.
type Etcd struct {
	client *clientv3.Client
	prefix string
	owned  bool
}

func OpenEtcd(cfg EtcdConfig) (*Etcd, error) {
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		Username:    cfg.Username,
		Password:    cfg.Password,
		DialTimeout: cfg.DialTimeout,
	})
	if err != nil {
		return nil, err
	}
	e := NewEtcd(cli, cfg.Prefix)
	e.owned = true
	return e, nil
}

// NewEtcd wraps an existing client. Close leaves the client open.
func NewEtcd(cli *clientv3.Client, prefix string) *Etcd {
	if prefix == "" {
		prefix = "/bundleslurp"
	}
	return &Etcd{client: cli, prefix: strings.TrimRight(prefix, "/")}
}

func (e *Etcd) key(shard int) string {
	return fmt.Sprintf("%s/checkpoints/%06d", e.prefix, shard)
}

func (e *Etcd) Load(ctx context.Context, shard int) (Checkpoint, bool, error) {
	resp, err := e.client.Get(ctx, e.key(shard))
	if err != nil {
		return Checkpoint{}, false, err
	}
	if len(resp.Kvs) == 0 {
		return Checkpoint{}, false, nil
	}
	cp, err := decode(resp.Kvs[0].Value)
	return cp, err == nil, err
}

func (e *Etcd) Save(ctx context.Context, cp Checkpoint) error {
	val, err := encode(cp)
	if err != nil {
		return err
	}
	key := e.key(cp.Shard)
	for i := 0; i < maxSaveConflicts; i++ {
		resp, err := e.client.Get(ctx, key)
		if err != nil {
			return err
		}
		var rev int64
		if len(resp.Kvs) > 0 {
			prev, err := decode(resp.Kvs[0].Value)
			if err != nil {
				return err
			}
			if err := advance(prev, true, cp); err != nil {
				return err
			}
			rev = resp.Kvs[0].ModRevision
		}
		txnResp, err := e.client.Txn(ctx).
			If(clientv3.Compare(clientv3.ModRevision(key), "=", rev)).
			Then(clientv3.OpPut(key, string(val))).
			Commit()
		if err != nil {
			return err
		}
		if txnResp.Succeeded {
			return nil
		}
	}
	return fmt.Errorf("checkpoint %s: too many concurrent updates", key)
}

func (e *Etcd) Close() error {
	if e.owned {
		return e.client.Close()
	}
	return nil
}
