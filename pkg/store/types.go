package store

import (
	"time"

	"github.com/phuslu/log"
	"github.com/ssargent/akv/pkg/codec"
)

// IndexEntry represents the location of a key's latest record in the log
type IndexEntry struct {
	Offset    int64  // Byte offset of the record header
	KeySize   uint32 // Size of the key in bytes
	ValueSize uint32 // Size of the value in bytes, 0 for a tombstone
}

// Size returns the encoded size of the record the entry points at
func (e IndexEntry) Size() int64 {
	return codec.HeaderSize + int64(e.KeySize) + int64(e.ValueSize)
}

// Tombstone reports whether the entry points at a deletion marker
func (e IndexEntry) Tombstone() bool {
	return e.ValueSize == 0
}

// LogStoreConfig holds configuration for the log store
type LogStoreConfig struct {
	SyncWrites   bool   // fsync after every append
	MaxFieldSize uint64 // Largest accepted key or value, 0 = codec.MaxFieldSize
}

// KVStoreConfig holds configuration for the key-value store
type KVStoreConfig struct {
	SyncWrites     bool        // fsync after every append
	MaxFieldSize   uint64      // Largest accepted key or value, 0 = codec.MaxFieldSize
	RepairTornTail bool        // Truncate an incomplete trailing record during Load
	Logger         *log.Logger // nil discards
}

// LoadResult summarizes an index rebuild
type LoadResult struct {
	RecordsIndexed int64         // Valid records replayed into the index
	RecordsSkipped int64         // Records skipped for failing the checksum
	BytesScanned   int64         // Log bytes covered by the scan
	Keys           int           // Index size after the rebuild
	TornTail       bool          // An incomplete trailing record was found
	TailTruncated  int64         // Bytes removed by torn-tail repair
	Duration       time.Duration // Wall time of the rebuild
}

// StoreStats holds statistics about the store
type StoreStats struct {
	Keys       int   `json:"keys"`        // Keys present in the index, tombstones included
	LiveKeys   int   `json:"live_keys"`   // Keys whose latest record has a value
	Tombstones int   `json:"tombstones"`  // Keys whose latest record is a tombstone
	DataSize   int64 `json:"data_size"`   // Log size in bytes
	LiveSize   int64 `json:"live_size"`   // Bytes held by the latest live records
	Loaded     bool  `json:"loaded"`      // Load has run at least once
	IndexedOps int64 `json:"indexed_ops"` // Indexed writes since open
}

// Errors
var (
	ErrOffsetOutOfRange = &KVError{"offset out of range"}
	ErrStoreClosed      = &KVError{"store is closed"}

	ErrChecksumMismatch = codec.ErrChecksumMismatch
	ErrTruncatedRecord  = codec.ErrTruncatedRecord
	ErrKeyTooLarge      = codec.ErrKeyTooLarge
	ErrValueTooLarge    = codec.ErrValueTooLarge
)

// KVError represents a key-value store error
type KVError struct {
	Message string
}

func (e *KVError) Error() string {
	return e.Message
}
