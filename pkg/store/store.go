// Package store persists settings and per-game move logs in a Badger
// key-value database.
package store

import (
	"context"
	"fmt"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/seekerror/logw"
)

// MoveRecord is one persisted move: its index, UCI text and the FEN after it.
// The log is append-only per game and round-trips for resume and post-mortem.
type MoveRecord struct {
	Index    int
	UCI      string
	FENAfter string
}

// Store is a Badger-backed key-value store holding named settings and the
// per-game move logs. Safe for concurrent use.
type Store struct {
	db *badger.DB
}

// Open opens the database at dir. An empty dir opens an in-memory store, for
// tests and diskless operation.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open store at '%v': %w", dir, err)
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns a named setting.
func (s *Store) Get(name string) ([]byte, bool, error) {
	var ret []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(settingKey(name))
		if err != nil {
			return err
		}
		ret, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return ret, true, nil
}

// Put stores a named setting.
func (s *Store) Put(name string, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(settingKey(name), value)
	})
}

// Delete removes a named setting.
func (s *Store) Delete(name string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(settingKey(name))
	})
}

// StartGame opens a fresh move log and returns its id.
func (s *Store) StartGame(ctx context.Context) (string, error) {
	id := uuid.NewString()
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(gameKey(id, "result"), []byte("*"))
	})
	if err != nil {
		return "", err
	}

	logw.Debugf(ctx, "Game log %v started", id)
	return id, nil
}

// AppendMove records a move.
func (s *Store) AppendMove(ctx context.Context, gameID string, index int, uci, fenAfter string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(moveKey(gameID, index), []byte(uci+"\t"+fenAfter))
	})
}

// TruncateMove removes the entry at index, for takebacks.
func (s *Store) TruncateMove(ctx context.Context, gameID string, index int) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(moveKey(gameID, index))
	})
}

// SetResult records the final result of a game.
func (s *Store) SetResult(ctx context.Context, gameID string, result string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(gameKey(gameID, "result"), []byte(result))
	})
}

// Moves returns the logged moves of a game in order.
func (s *Store) Moves(ctx context.Context, gameID string) ([]MoveRecord, error) {
	var ret []MoveRecord
	prefix := []byte(fmt.Sprintf("game/%v/move/", gameID))

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()

			var index int
			if _, err := fmt.Sscanf(string(item.Key()[len(prefix):]), "%08d", &index); err != nil {
				return fmt.Errorf("bad move key '%s': %w", item.Key(), err)
			}

			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			parts := strings.SplitN(string(value), "\t", 2)
			if len(parts) != 2 {
				return fmt.Errorf("bad move record '%s'", value)
			}
			ret = append(ret, MoveRecord{Index: index, UCI: parts[0], FENAfter: parts[1]})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

// Result returns the recorded result of a game, "*" while unfinished.
func (s *Store) Result(ctx context.Context, gameID string) (string, error) {
	var ret string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(gameKey(gameID, "result"))
		if err != nil {
			return err
		}
		value, err := item.ValueCopy(nil)
		ret = string(value)
		return err
	})
	return ret, err
}

func settingKey(name string) []byte {
	return []byte("setting/" + name)
}

func gameKey(id, field string) []byte {
	return []byte(fmt.Sprintf("game/%v/%v", id, field))
}

func moveKey(id string, index int) []byte {
	return []byte(fmt.Sprintf("game/%v/move/%08d", id, index))
}
