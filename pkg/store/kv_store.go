package store

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/phuslu/log"
	"github.com/ssargent/akv/pkg/codec"
	"github.com/ssargent/akv/pkg/logging"
)

// ErrStaleIndex is returned when an index entry points at a record for a
// different key, which happens when the file was replaced underneath the store
var ErrStaleIndex = &KVError{"index entry does not match the record at its offset"}

// ErrUnsafeRepair is returned by Load when torn-tail repair would cut off
// records that still decode
var ErrUnsafeRepair = &KVError{"valid records follow the truncated frame"}

// KVStore is the storage engine: one LogStore plus one in-memory HashIndex.
//
// A KVStore is not safe for concurrent use. Wrap it in a SyncKVStore when
// more than one goroutine needs it.
type KVStore struct {
	config     KVStoreConfig
	log        *LogStore
	index      *HashIndex
	logger     *log.Logger
	loaded     bool
	indexedOps int64
	isOpen     bool
}

// Open opens the log file at path with an empty index. Existing records are
// not visible through Get until Load is called.
func Open(path string, config KVStoreConfig) (*KVStore, error) {
	logStore, err := OpenLogStore(path, LogStoreConfig{
		SyncWrites:   config.SyncWrites,
		MaxFieldSize: config.MaxFieldSize,
	})
	if err != nil {
		return nil, fmt.Errorf("open log %s: %w", path, err)
	}

	logger := config.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	return &KVStore{
		config: config,
		log:    logStore,
		index:  NewHashIndex(),
		logger: logger,
		isOpen: true,
	}, nil
}

// Load rebuilds the index by replaying the whole log, discarding whatever the
// index held before. Records failing the checksum are skipped and counted.
//
// An incomplete record at the end of the log fails the load with
// ErrTruncatedRecord unless RepairTornTail is set, in which case the log is
// truncated to the last complete record and the load proceeds.
func (kv *KVStore) Load() (*LoadResult, error) {
	if !kv.isOpen {
		return nil, ErrStoreClosed
	}

	start := time.Now()
	result := &LoadResult{}

	onCorrupt := func(offset int64, err error) {
		kv.logger.Warn().Str("path", kv.log.Path()).Int64("offset", offset).Err(err).Msg("skipping corrupt record")
	}

	stats, err := kv.index.BuildFromLog(kv.log, onCorrupt)
	if err != nil && stats != nil && stats.TornTail {
		result.TornTail = true
		if !kv.config.RepairTornTail {
			return result, fmt.Errorf("load %s: %w", kv.log.Path(), err)
		}

		end, endErr := kv.log.EndOffset()
		if endErr != nil {
			return result, endErr
		}

		// A damaged length field also reads as a torn tail. Truncating then
		// would drop every good record behind it.
		next, found, scanErr := kv.log.NextFrame(stats.TornOffset + codec.HeaderSize)
		if scanErr != nil {
			return result, fmt.Errorf("repair %s: %w", kv.log.Path(), scanErr)
		}
		if found {
			kv.logger.Error().Str("path", kv.log.Path()).Int64("offset", stats.TornOffset).
				Int64("next_record", next).Msg("refusing to truncate log with valid records after the damaged frame")
			return result, fmt.Errorf("repair %s: %w: record at offset %d follows damaged frame at %d",
				kv.log.Path(), ErrUnsafeRepair, next, stats.TornOffset)
		}

		kv.logger.Warn().Str("path", kv.log.Path()).Int64("offset", stats.TornOffset).
			Int64("bytes", end-stats.TornOffset).Msg("truncating incomplete trailing record")

		if err := kv.log.Truncate(stats.TornOffset); err != nil {
			return result, fmt.Errorf("repair %s: %w", kv.log.Path(), err)
		}
		result.TailTruncated = end - stats.TornOffset

		stats, err = kv.index.BuildFromLog(kv.log, onCorrupt)
	}
	if err != nil {
		return result, fmt.Errorf("load %s: %w", kv.log.Path(), err)
	}

	kv.loaded = true

	result.RecordsIndexed = stats.RecordsIndexed
	result.RecordsSkipped = stats.RecordsSkipped
	result.BytesScanned = stats.BytesScanned
	result.Keys = kv.index.Len()
	result.Duration = time.Since(start)

	kv.logger.Info().Str("path", kv.log.Path()).
		Int64("records", result.RecordsIndexed).
		Int64("skipped", result.RecordsSkipped).
		Int("keys", result.Keys).
		Dur("duration", result.Duration).
		Msg("index rebuilt")

	return result, nil
}

// Insert appends the pair and points the index at the new record.
// The index is only touched once the append succeeded.
func (kv *KVStore) Insert(key, value []byte) error {
	if !kv.isOpen {
		return ErrStoreClosed
	}

	offset, err := kv.log.AppendRaw(key, value)
	if err != nil {
		return err
	}

	kv.index.Put(key, IndexEntry{
		Offset:    offset,
		KeySize:   uint32(len(key)),
		ValueSize: uint32(len(value)),
	})
	kv.indexedOps++

	return nil
}

// InsertRaw appends the pair without touching the index and returns the
// record offset. The value stays invisible to Get until the key is indexed
// by a later Insert or by Load.
func (kv *KVStore) InsertRaw(key, value []byte) (int64, error) {
	if !kv.isOpen {
		return 0, ErrStoreClosed
	}
	return kv.log.AppendRaw(key, value)
}

// Update replaces the value of a key. It is Insert under another name: the
// previous record stays in the log.
func (kv *KVStore) Update(key, value []byte) error {
	return kv.Insert(key, value)
}

// Delete appends a tombstone (an empty value) for the key
func (kv *KVStore) Delete(key []byte) error {
	return kv.Insert(key, nil)
}

// Get returns the latest value of key. found is false when the key is not in
// the index or its latest record is a tombstone; read and checksum failures
// are returned as errors.
func (kv *KVStore) Get(key []byte) (value []byte, found bool, err error) {
	if !kv.isOpen {
		return nil, false, ErrStoreClosed
	}

	entry, exists := kv.index.Get(key)
	if !exists {
		return nil, false, nil
	}

	record, err := kv.log.ReadAt(entry.Offset)
	if err != nil {
		return nil, false, err
	}
	if !bytes.Equal(record.Key, key) {
		return nil, false, fmt.Errorf("%w: offset %d", ErrStaleIndex, entry.Offset)
	}

	if record.IsTombstone() {
		return nil, false, nil
	}

	return record.Value, true, nil
}

// GetAt decodes the record at offset without consulting the index
func (kv *KVStore) GetAt(offset int64) (*codec.Record, error) {
	if !kv.isOpen {
		return nil, ErrStoreClosed
	}
	return kv.log.ReadAt(offset)
}

// SeekToEnd returns the offset the next write will land at
func (kv *KVStore) SeekToEnd() (int64, error) {
	if !kv.isOpen {
		return 0, ErrStoreClosed
	}
	return kv.log.EndOffset()
}

// Find scans the whole log for key without using the index and returns the
// offset of its latest record. found is false when the key was never written
// or its latest record is a tombstone. Corrupt records are skipped.
func (kv *KVStore) Find(key []byte) (offset int64, found bool, err error) {
	if !kv.isOpen {
		return 0, false, ErrStoreClosed
	}

	it, err := kv.log.Iterator(0)
	if err != nil {
		return 0, false, err
	}

	latest := int64(-1)
	tombstone := false
	for it.Next() {
		record := it.Record()
		if record == nil || !bytes.Equal(record.Key, key) {
			continue
		}
		latest = it.Offset()
		tombstone = record.IsTombstone()
	}
	if err := it.Err(); err != nil {
		return 0, false, err
	}

	if latest < 0 || tombstone {
		return 0, false, nil
	}
	return latest, true, nil
}

// Keys returns the sorted keys with the given prefix whose latest record has a value
func (kv *KVStore) Keys(prefix []byte) []string {
	keys := kv.index.KeysWithPrefix(string(prefix))
	live := keys[:0]
	for _, key := range keys {
		if entry, _ := kv.index.Get([]byte(key)); !entry.Tombstone() {
			live = append(live, key)
		}
	}
	return live
}

// ForEachLive calls fn with every indexed key that has a value, in key order.
// Iteration stops at the first error.
func (kv *KVStore) ForEachLive(fn func(key, value []byte) error) error {
	if !kv.isOpen {
		return ErrStoreClosed
	}

	for _, key := range kv.Keys(nil) {
		value, found, err := kv.Get([]byte(key))
		if err != nil {
			return err
		}
		if !found {
			continue
		}
		if err := fn([]byte(key), value); err != nil {
			return err
		}
	}
	return nil
}

// ForEachDeleted calls fn for every key whose latest record is a tombstone.
// Order is unspecified.
func (kv *KVStore) ForEachDeleted(fn func(key []byte) error) error {
	if !kv.isOpen {
		return ErrStoreClosed
	}

	var err error
	kv.index.Range(func(key string, entry IndexEntry) bool {
		if entry.Tombstone() {
			err = fn([]byte(key))
		}
		return err == nil
	})
	return err
}

// Stats returns store statistics
func (kv *KVStore) Stats() (*StoreStats, error) {
	if !kv.isOpen {
		return nil, ErrStoreClosed
	}

	size, err := kv.log.EndOffset()
	if err != nil {
		return nil, err
	}

	idx := kv.index.Stats()
	return &StoreStats{
		Keys:       idx.TotalKeys,
		LiveKeys:   idx.LiveKeys,
		Tombstones: idx.Tombstones,
		DataSize:   size,
		LiveSize:   idx.LiveBytes,
		Loaded:     kv.loaded,
		IndexedOps: kv.indexedOps,
	}, nil
}

// Sync forces a fsync of the log
func (kv *KVStore) Sync() error {
	if !kv.isOpen {
		return ErrStoreClosed
	}
	return kv.log.Sync()
}

// Path returns the log file path
func (kv *KVStore) Path() string {
	return kv.log.Path()
}

// Close shuts down the store
func (kv *KVStore) Close() error {
	if !kv.isOpen {
		return nil
	}
	kv.isOpen = false
	kv.index.Clear()
	return kv.log.Close()
}

// IsCorruption reports whether err means the log holds bad bytes, as opposed
// to an I/O failure or a caller mistake
func IsCorruption(err error) bool {
	return errors.Is(err, ErrChecksumMismatch) || errors.Is(err, ErrTruncatedRecord) || errors.Is(err, ErrStaleIndex)
}
