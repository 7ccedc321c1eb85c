package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"go.etcd.io/bbolt"

	"github.com/UnAfraid/wgtunnel/pkg/wgconf"
)

const (
	tunnelBucket = "tunnel"
	stateBucket  = "state"
	runningKey   = "running"
)

type bboltStore struct {
	db *bbolt.DB
}

func NewBBoltDB(databasePath string, timeout time.Duration) (*bbolt.DB, error) {
	dir := filepath.Dir(databasePath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create directory %s - %w", dir, err)
	}

	db, err := bbolt.Open(databasePath, 0600, &bbolt.Options{
		Timeout: timeout,
	})
	if err != nil {
		return nil, err
	}

	if db.IsReadOnly() {
		_ = db.Close()
		return nil, ErrReadOnly
	}

	return db, nil
}

// NewBBoltStore keeps every tunnel as wg-quick text in a single bucket.
func NewBBoltStore(db *bbolt.DB) Store {
	return &bboltStore{
		db: db,
	}
}

func (s *bboltStore) Create(ctx context.Context, name string, config *wgconf.Config) error {
	if err := validateName(name); err != nil {
		return err
	}
	return s.update(ctx, func(bucket *bbolt.Bucket) error {
		if bucket.Get([]byte(name)) != nil {
			return fmt.Errorf("%w: %s", ErrTunnelAlreadyExists, name)
		}
		return bucket.Put([]byte(name), []byte(config.WgQuickString()))
	})
}

func (s *bboltStore) Delete(ctx context.Context, name string) error {
	return s.update(ctx, func(bucket *bbolt.Bucket) error {
		if bucket.Get([]byte(name)) == nil {
			return fmt.Errorf("%w: %s", ErrTunnelNotFound, name)
		}
		return bucket.Delete([]byte(name))
	})
}

func (s *bboltStore) Enumerate(ctx context.Context) ([]string, error) {
	var names []string
	err := s.view(ctx, func(bucket *bbolt.Bucket) error {
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, _ []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(names)
	return names, nil
}

func (s *bboltStore) Load(ctx context.Context, name string) (*wgconf.Config, error) {
	var data []byte
	err := s.view(ctx, func(bucket *bbolt.Bucket) error {
		var value []byte
		if bucket != nil {
			value = bucket.Get([]byte(name))
		}
		if value == nil {
			return fmt.Errorf("%w: %s", ErrTunnelNotFound, name)
		}
		data = slices.Clone(value)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return parseConfig(name, data)
}

func (s *bboltStore) Rename(ctx context.Context, name string, replacement string) error {
	if err := validateName(replacement); err != nil {
		return err
	}
	return s.update(ctx, func(bucket *bbolt.Bucket) error {
		value := bucket.Get([]byte(name))
		if value == nil {
			return fmt.Errorf("%w: %s", ErrTunnelNotFound, name)
		}
		if bucket.Get([]byte(replacement)) != nil {
			return fmt.Errorf("%w: %s", ErrTunnelAlreadyExists, replacement)
		}
		if err := bucket.Put([]byte(replacement), slices.Clone(value)); err != nil {
			return err
		}
		return bucket.Delete([]byte(name))
	})
}

func (s *bboltStore) Save(ctx context.Context, name string, config *wgconf.Config) error {
	return s.update(ctx, func(bucket *bbolt.Bucket) error {
		if bucket.Get([]byte(name)) == nil {
			return fmt.Errorf("%w: %s", ErrTunnelNotFound, name)
		}
		return bucket.Put([]byte(name), []byte(config.WgQuickString()))
	})
}

func (s *bboltStore) SaveRunning(ctx context.Context, names []string) error {
	data, err := encodeRunning(names)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(stateBucket))
		if err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", stateBucket, err)
		}
		return bucket.Put([]byte(runningKey), data)
	})
}

func (s *bboltStore) LoadRunning(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var data []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		if bucket := tx.Bucket([]byte(stateBucket)); bucket != nil {
			data = slices.Clone(bucket.Get([]byte(runningKey)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return decodeRunning(data)
}

func (s *bboltStore) Close() error {
	return s.db.Close()
}

func (s *bboltStore) update(ctx context.Context, callback func(*bbolt.Bucket) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(tunnelBucket))
		if err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", tunnelBucket, err)
		}
		return callback(bucket)
	})
}

// view calls callback with a nil bucket when nothing has been stored yet.
func (s *bboltStore) view(ctx context.Context, callback func(*bbolt.Bucket) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(tx *bbolt.Tx) error {
		return callback(tx.Bucket([]byte(tunnelBucket)))
	})
}
