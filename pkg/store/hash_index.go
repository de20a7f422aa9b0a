package store

import (
	"errors"
	"sort"
	"strings"
)

// HashIndex maps exact key bytes to the location of the key's latest record.
// It lives only in memory and is rebuilt from the log on Load.
type HashIndex struct {
	entries map[string]IndexEntry
}

// NewHashIndex creates a new hash index
func NewHashIndex() *HashIndex {
	return &HashIndex{
		entries: make(map[string]IndexEntry),
	}
}

// Put adds or updates the index entry for a key
func (idx *HashIndex) Put(key []byte, entry IndexEntry) {
	idx.entries[string(key)] = entry
}

// Get retrieves the index entry for a key
func (idx *HashIndex) Get(key []byte) (IndexEntry, bool) {
	entry, exists := idx.entries[string(key)]
	return entry, exists
}

// Len returns the number of keys in the index
func (idx *HashIndex) Len() int {
	return len(idx.entries)
}

// Clear removes all entries from the index
func (idx *HashIndex) Clear() {
	idx.entries = make(map[string]IndexEntry)
}

// KeysWithPrefix returns the sorted keys that start with the given prefix
func (idx *HashIndex) KeysWithPrefix(prefix string) []string {
	var keys []string
	for key := range idx.entries {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// Range calls fn for every entry until fn returns false. Order is unspecified.
func (idx *HashIndex) Range(fn func(key string, entry IndexEntry) bool) {
	for key, entry := range idx.entries {
		if !fn(key, entry) {
			return
		}
	}
}

// BuildStats describes one pass of BuildFromLog
type BuildStats struct {
	RecordsIndexed int64
	RecordsSkipped int64
	BytesScanned   int64
	TornTail       bool  // The scan stopped at an incomplete trailing record
	TornOffset     int64 // Offset of that record when TornTail is set
}

// BuildFromLog replays the log from offset 0 and replaces the index contents.
//
// Later records overwrite earlier ones for the same key. Frames that fail the
// checksum are skipped. On error the index is left untouched; an incomplete
// trailing record is reported through the returned stats together with
// ErrTruncatedRecord so the caller can decide whether to repair it.
func (idx *HashIndex) BuildFromLog(log *LogStore, onCorrupt func(offset int64, err error)) (*BuildStats, error) {
	it, err := log.Iterator(0)
	if err != nil {
		return nil, err
	}

	entries := make(map[string]IndexEntry, len(idx.entries))
	stats := &BuildStats{}

	for it.Next() {
		if cerr := it.Corrupt(); cerr != nil {
			stats.RecordsSkipped++
			if onCorrupt != nil {
				onCorrupt(it.Offset(), cerr)
			}
			continue
		}

		record := it.Record()
		entries[string(record.Key)] = IndexEntry{
			Offset:    it.Offset(),
			KeySize:   record.KeySize,
			ValueSize: record.ValueSize,
		}
		stats.RecordsIndexed++
	}
	stats.BytesScanned = it.End()

	if err := it.Err(); err != nil {
		stats.BytesScanned = it.Offset()
		if errors.Is(err, ErrTruncatedRecord) {
			stats.TornTail = true
			stats.TornOffset = it.Offset()
		}
		return stats, err
	}

	idx.entries = entries
	return stats, nil
}

// Stats returns index statistics
func (idx *HashIndex) Stats() *IndexStats {
	stats := &IndexStats{TotalKeys: len(idx.entries)}
	for _, entry := range idx.entries {
		if entry.Tombstone() {
			stats.Tombstones++
		} else {
			stats.LiveKeys++
			stats.LiveBytes += entry.Size()
		}
	}
	return stats
}

// IndexStats holds statistics about the index
type IndexStats struct {
	TotalKeys  int
	LiveKeys   int
	Tombstones int
	LiveBytes  int64
}
