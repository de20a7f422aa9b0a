package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/phuslu/log"
	"github.com/ssargent/akv/pkg/logging"
	"github.com/ssargent/akv/pkg/store"
)

// Server holds the API server state
type Server struct {
	store   KVStore
	config  ServerConfig
	metrics *Metrics
	logger  *log.Logger
}

// NewServer creates a new API server
func NewServer(kv KVStore, config ServerConfig, metrics *Metrics) *Server {
	logger := config.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Server{
		store:   kv,
		config:  config,
		metrics: metrics,
		logger:  logger,
	}
}

// observe records the outcome of an engine call
func (s *Server) observe(operation string, start time.Time, err error) {
	s.metrics.RecordDBOperation(operation, err == nil, time.Since(start))
}

// statusForError maps engine errors onto HTTP status codes
func statusForError(err error) int {
	switch {
	case errors.Is(err, store.ErrKeyTooLarge), errors.Is(err, store.ErrValueTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, store.ErrOffsetOutOfRange):
		return http.StatusNotFound
	case errors.Is(err, store.ErrStoreClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// sendStoreError logs server-side failures and writes the mapped response
func (s *Server) sendStoreError(w http.ResponseWriter, r *http.Request, action string, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error().Str("request_id", RequestID(r.Context())).
			Bool("corruption", store.IsCorruption(err)).
			Err(err).Msg(action)
	}
	sendError(w, fmt.Sprintf("Failed to %s: %v", action, err), status)
}

// keyParam returns the unescaped {key} route parameter
func keyParam(r *http.Request) (string, error) {
	key, err := url.PathUnescape(chi.URLParam(r, "key"))
	if err != nil {
		return "", err
	}
	if key == "" {
		return "", errors.New("key is required")
	}
	return key, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.metrics.RecordHealthCheck(true)
	sendSuccess(w, map[string]string{"status": "healthy"})
}

// handlePut stores the request body as the value of {key}
func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	key, err := keyParam(r)
	if err != nil {
		sendError(w, "Invalid key: "+err.Error(), http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		sendError(w, "Failed to read request body", http.StatusBadRequest)
		return
	}
	if len(body) == 0 {
		sendError(w, "Empty value; use DELETE to remove a key", http.StatusBadRequest)
		return
	}

	err = s.store.Insert([]byte(key), body)
	s.observe("put", start, err)
	if err != nil {
		s.sendStoreError(w, r, "put key-value", err)
		return
	}

	sendSuccess(w, map[string]string{"message": "Key-value pair stored successfully"})
}

// handleGet returns the raw value of {key}
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	key, err := keyParam(r)
	if err != nil {
		sendError(w, "Invalid key: "+err.Error(), http.StatusBadRequest)
		return
	}

	value, found, err := s.store.Get([]byte(key))
	s.observe("get", start, err)
	if err != nil {
		s.sendStoreError(w, r, "get value", err)
		return
	}
	if !found {
		sendError(w, "Key not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(value)
}

// handleDelete writes a tombstone for {key}
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	key, err := keyParam(r)
	if err != nil {
		sendError(w, "Invalid key: "+err.Error(), http.StatusBadRequest)
		return
	}

	err = s.store.Delete([]byte(key))
	s.observe("delete", start, err)
	if err != nil {
		s.sendStoreError(w, r, "delete key", err)
		return
	}

	sendSuccess(w, map[string]string{"message": "Key deleted successfully"})
}

// handleInsertRaw appends the body for {key} without indexing it
func (s *Server) handleInsertRaw(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	key, err := keyParam(r)
	if err != nil {
		sendError(w, "Invalid key: "+err.Error(), http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		sendError(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	offset, err := s.store.InsertRaw([]byte(key), body)
	s.observe("insert_raw", start, err)
	if err != nil {
		s.sendStoreError(w, r, "append record", err)
		return
	}

	sendSuccess(w, OffsetResponse{Key: key, Offset: offset})
}

// handleFind scans the log for the latest record of {key}
func (s *Server) handleFind(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	key, err := keyParam(r)
	if err != nil {
		sendError(w, "Invalid key: "+err.Error(), http.StatusBadRequest)
		return
	}

	offset, found, err := s.store.Find([]byte(key))
	s.observe("find", start, err)
	if err != nil {
		s.sendStoreError(w, r, "scan log", err)
		return
	}
	if !found {
		sendError(w, "Key not found", http.StatusNotFound)
		return
	}

	sendSuccess(w, OffsetResponse{Key: key, Offset: offset})
}

// handleGetAt decodes the record at {offset}
func (s *Server) handleGetAt(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	offset, err := strconv.ParseInt(chi.URLParam(r, "offset"), 10, 64)
	if err != nil {
		sendError(w, "Invalid offset", http.StatusBadRequest)
		return
	}

	record, err := s.store.GetAt(offset)
	s.observe("get_at", start, err)
	if err != nil {
		s.sendStoreError(w, r, "read record", err)
		return
	}

	sendSuccess(w, RecordResponse{
		Offset:    offset,
		Key:       record.Key,
		Value:     record.Value,
		Size:      record.Size(),
		Tombstone: record.IsTombstone(),
	})
}

// handleEnd reports the offset the next record will be written at
func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	end, err := s.store.SeekToEnd()
	if err != nil {
		s.sendStoreError(w, r, "seek to end", err)
		return
	}
	sendSuccess(w, OffsetResponse{Offset: end})
}

// handleLoad rebuilds the index from the log
func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	result, err := s.store.Load()
	s.observe("load", start, err)
	s.metrics.RecordLoad(result, err == nil)
	if err != nil {
		s.sendStoreError(w, r, "load index", err)
		return
	}

	sendSuccess(w, LoadResponse{
		RecordsIndexed: result.RecordsIndexed,
		RecordsSkipped: result.RecordsSkipped,
		BytesScanned:   result.BytesScanned,
		Keys:           result.Keys,
		TornTail:       result.TornTail,
		TailTruncated:  result.TailTruncated,
		Duration:       result.Duration.String(),
	})
}

// handleSync flushes the log to disk
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	err := s.store.Sync()
	s.observe("sync", start, err)
	if err != nil {
		s.sendStoreError(w, r, "sync", err)
		return
	}
	sendSuccess(w, map[string]string{"message": "Log synced"})
}

// handleListKeys lists live keys, optionally filtered by ?prefix=
func (s *Server) handleListKeys(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")

	keys := s.store.Keys([]byte(prefix))
	if keys == nil {
		keys = []string{}
	}

	sendSuccess(w, map[string]interface{}{"keys": keys})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats()
	if err != nil {
		s.sendStoreError(w, r, "read stats", err)
		return
	}
	s.metrics.UpdateDBStats(stats)
	sendSuccess(w, stats)
}
