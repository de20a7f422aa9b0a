// Package storage copies the live contents of a log into a Pebble database
package storage

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
)

// LiveSource yields every key that currently has a value.
// *store.KVStore implements it.
type LiveSource interface {
	ForEachLive(fn func(key, value []byte) error) error
}

// DeletedSource yields keys whose latest record is a tombstone. When the
// source passed to Export implements it, those keys are removed from the
// target so exporting over an older snapshot does not keep them alive.
type DeletedSource interface {
	ForEachDeleted(fn func(key []byte) error) error
}

// ExportResult describes a finished export
type ExportResult struct {
	Keys     int64         `json:"keys"`
	Deleted  int64         `json:"deleted"`
	Bytes    int64         `json:"bytes"`
	Duration time.Duration `json:"duration"`
}

// batchSize is the number of keys committed per Pebble batch
const batchSize = 1000

type PebbleStorage struct {
	db *pebble.DB
}

func OpenPebbleStorage(path string) (*PebbleStorage, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &PebbleStorage{db: db}, nil
}

// Get returns a copy of the value stored under key
func (s *PebbleStorage) Get(key []byte) ([]byte, bool, error) {
	data, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer closer.Close()

	return bytes.Clone(data), true, nil
}

func (s *PebbleStorage) Close() error {
	return s.db.Close()
}

// Export writes every live pair of src into the Pebble database at path,
// creating it if needed. Existing keys in the database are overwritten, and
// deleted keys are removed when src is also a DeletedSource.
func Export(src LiveSource, path string) (*ExportResult, error) {
	start := time.Now()

	s, err := OpenPebbleStorage(path)
	if err != nil {
		return nil, fmt.Errorf("open pebble %s: %w", path, err)
	}

	result := &ExportResult{}
	batch := s.db.NewBatch()
	pending := 0

	// flush commits the batch every batchSize operations
	flush := func() error {
		pending++
		if pending < batchSize {
			return nil
		}
		if err := batch.Commit(pebble.NoSync); err != nil {
			return err
		}
		_ = batch.Close()
		batch = s.db.NewBatch()
		pending = 0
		return nil
	}

	err = src.ForEachLive(func(key, value []byte) error {
		if err := batch.Set(key, value, nil); err != nil {
			return err
		}
		result.Keys++
		result.Bytes += int64(len(key) + len(value))
		return flush()
	})
	if deleted, ok := src.(DeletedSource); ok && err == nil {
		err = deleted.ForEachDeleted(func(key []byte) error {
			if err := batch.Delete(key, nil); err != nil {
				return err
			}
			result.Deleted++
			return flush()
		})
	}
	if err == nil {
		err = batch.Commit(pebble.Sync)
	}
	_ = batch.Close()

	if closeErr := s.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, fmt.Errorf("export to %s: %w", path, err)
	}

	result.Duration = time.Since(start)
	return result, nil
}
