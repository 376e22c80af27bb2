package cache

import (
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// durableTier là tầng cache bền trên đĩa dựa trên badger.
// Entry hết hạn theo TTL của badger, kiểm tra lười khi đọc,
// không cần background sweep riêng.
type durableTier struct {
	db *badger.DB
}

func newDurableTier(dir string) (*durableTier, error) {
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(dir)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &durableTier{db: db}, nil
}

func (d *durableTier) get(key string) ([]byte, bool, error) {
	var value []byte
	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (d *durableTier) set(key string, value []byte, ttl time.Duration) error {
	return d.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), value)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
}

func (d *durableTier) remove(key string) error {
	return d.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

func (d *durableTier) clear() error {
	return d.db.DropAll()
}

func (d *durableTier) close() error {
	return d.db.Close()
}
