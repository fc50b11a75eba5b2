package stores

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"
)

// BoltDriver stores each database in its own BoltDB file, one bucket per table.
// Keys enumerate in byte order.
type BoltDriver struct {
	dir string
}

// NewBoltDriver creates a driver rooted at dir.
func NewBoltDriver(dir string) (*BoltDriver, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("storage directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &BoltDriver{dir: filepath.Clean(dir)}, nil
}

// Name implements Driver.
func (d *BoltDriver) Name() string { return "bolt" }

func (d *BoltDriver) path(name string) (string, error) {
	if err := CheckStoreName(name); err != nil {
		return "", err
	}
	return filepath.Join(d.dir, name+".bolt"), nil
}

// Open implements Driver.
func (d *BoltDriver) Open(ctx context.Context, name string, opts OpenOptions) (Database, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if opts.Encrypted {
		return nil, ErrEncryptionUnsupported
	}
	path, err := d.path(name)
	if err != nil {
		return nil, err
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open storage db: %w", err)
	}
	return &boltDatabase{db: db}, nil
}

// Exists implements Driver.
func (d *BoltDriver) Exists(_ context.Context, name string) (bool, error) {
	path, err := d.path(name)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Remove implements Driver.
func (d *BoltDriver) Remove(_ context.Context, name string) error {
	path, err := d.path(name)
	if err != nil {
		return err
	}
	return os.Remove(path)
}

type boltDatabase struct {
	db *bbolt.DB
}

func (b *boltDatabase) CreateTable(ctx context.Context, table string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(table))
		return err
	})
}

func (b *boltDatabase) HasTable(ctx context.Context, table string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var ok bool
	err := b.db.View(func(tx *bbolt.Tx) error {
		ok = tx.Bucket([]byte(table)) != nil
		return nil
	})
	return ok, err
}

func (b *boltDatabase) Tables(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	names := []string{}
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bbolt.Bucket) error {
			names = append(names, string(name))
			return nil
		})
	})
	return names, err
}

func (b *boltDatabase) DropTable(ctx context.Context, table string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.DeleteBucket([]byte(table))
	})
}

func (b *boltDatabase) Put(ctx context.Context, table, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(table))
		if bucket == nil {
			return ErrTableNotFound
		}
		return bucket.Put([]byte(key), []byte(value))
	})
}

func (b *boltDatabase) Get(ctx context.Context, table, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	var (
		value string
		ok    bool
	)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(table))
		if bucket == nil {
			return ErrTableNotFound
		}
		if payload := bucket.Get([]byte(key)); payload != nil {
			value, ok = string(payload), true
		}
		return nil
	})
	return value, ok, err
}

func (b *boltDatabase) Delete(ctx context.Context, table, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(table))
		if bucket == nil {
			return ErrTableNotFound
		}
		return bucket.Delete([]byte(key))
	})
}

func (b *boltDatabase) Truncate(ctx context.Context, table string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(table)) == nil {
			return ErrTableNotFound
		}
		if err := tx.DeleteBucket([]byte(table)); err != nil {
			return err
		}
		_, err := tx.CreateBucket([]byte(table))
		return err
	})
}

func (b *boltDatabase) Entries(ctx context.Context, table string) ([]KeyValue, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries := []KeyValue{}
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(table))
		if bucket == nil {
			return ErrTableNotFound
		}
		return bucket.ForEach(func(k, v []byte) error {
			entries = append(entries, KeyValue{Key: string(k), Value: string(v)})
			return nil
		})
	})
	return entries, err
}

func (b *boltDatabase) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}
