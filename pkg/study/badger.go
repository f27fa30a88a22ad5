package study

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
)

// BadgerStore persists studies in an embedded badger database, one key
// per study.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens (or creates) a badger database at path.
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store at %s: %w", path, err)
	}
	return &BadgerStore{db: db}, nil
}

func studyKey(name string) []byte {
	return []byte("study/" + name)
}

func (b *BadgerStore) Save(_ context.Context, name string, trials []Trial) error {
	data, err := json.Marshal(trials)
	if err != nil {
		return fmt.Errorf("encode study %s: %w", name, err)
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(studyKey(name), data)
	})
	if err != nil {
		return fmt.Errorf("save study %s: %w", name, err)
	}
	return nil
}

func (b *BadgerStore) Load(_ context.Context, name string) ([]Trial, error) {
	var data []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(studyKey(name))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrStudyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load study %s: %w", name, err)
	}
	var trials []Trial
	if err := json.Unmarshal(data, &trials); err != nil {
		return nil, fmt.Errorf("decode study %s: %w", name, err)
	}
	return trials, nil
}

func (b *BadgerStore) Close() error {
	return b.db.Close()
}
