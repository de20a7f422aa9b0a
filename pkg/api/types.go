package api

import (
	"time"

	"github.com/phuslu/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/ssargent/akv/pkg/codec"
	"github.com/ssargent/akv/pkg/store"
)

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ServerConfig holds configuration for the API server
type ServerConfig struct {
	Bind            string
	Port            int
	APIKey          string                // Empty disables authentication
	Logger          *log.Logger           // nil discards
	Registry        prometheus.Registerer // nil uses the default registry
	Gatherer        prometheus.Gatherer   // Served on /metrics, nil uses the default gatherer
	MetricsInterval time.Duration         // How often store gauges refresh, 0 = 30s
}

// KVStore is the engine surface the API serves. *store.SyncKVStore
// implements it.
type KVStore interface {
	Load() (*store.LoadResult, error)
	Insert(key, value []byte) error
	InsertRaw(key, value []byte) (int64, error)
	Delete(key []byte) error
	Get(key []byte) ([]byte, bool, error)
	GetAt(offset int64) (*codec.Record, error)
	SeekToEnd() (int64, error)
	Find(key []byte) (int64, bool, error)
	Keys(prefix []byte) []string
	Stats() (*store.StoreStats, error)
	Sync() error
}

// OffsetResponse is returned by operations that locate a record
type OffsetResponse struct {
	Key    string `json:"key,omitempty"`
	Offset int64  `json:"offset"`
}

// RecordResponse describes a record read by offset. Key and Value are
// base64 encoded by encoding/json.
type RecordResponse struct {
	Offset    int64  `json:"offset"`
	Key       []byte `json:"key"`
	Value     []byte `json:"value"`
	Size      int64  `json:"size"`
	Tombstone bool   `json:"tombstone"`
}

// LoadResponse reports an index rebuild
type LoadResponse struct {
	RecordsIndexed int64  `json:"records_indexed"`
	RecordsSkipped int64  `json:"records_skipped"`
	BytesScanned   int64  `json:"bytes_scanned"`
	Keys           int    `json:"keys"`
	TornTail       bool   `json:"torn_tail"`
	TailTruncated  int64  `json:"tail_truncated"`
	Duration       string `json:"duration"`
}
