package repositories

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

// OpenBadgerStore opens (or creates) a Badger database at path and wires the embedded repositories.
func OpenBadgerStore(path string, log *logrus.Logger) (*Store, error) {
	db, err := badger.Open(badger.DefaultOptions(path).WithLogger(log).WithLoggingLevel(badger.WARNING))
	if err != nil {
		return nil, fmt.Errorf("failed to open badger at %s: %w", path, err)
	}
	store := NewBadgerStore(db, log)
	store.close = db.Close
	return store, nil
}

// NewBadgerStore wires the repositories around an already opened database. The caller owns db.
func NewBadgerStore(db *badger.DB, log *logrus.Logger) *Store {
	return &Store{
		Groups:      NewBadgerGroupRepository(db, log),
		Invitations: NewBadgerInvitationRepository(db, log),
		Messages:    NewBadgerMessageRepository(db),
		Users:       NewBadgerUserRepository(db),
	}
}

func getJSON(txn *badger.Txn, key string, out any) error {
	item, err := txn.Get([]byte(key))
	if err != nil {
		return err
	}
	return decodeItem(item, out)
}

func decodeItem(item *badger.Item, out any) error {
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, out)
	})
}

func setJSON(txn *badger.Txn, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	return txn.Set([]byte(key), data)
}

// updateWithRetry runs fn in a read-write transaction, replaying it when another transaction
// committed a conflicting write first.
func updateWithRetry(db *badger.DB, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		err = db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}
