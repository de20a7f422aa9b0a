package store

import (
	"sync"

	"github.com/ssargent/akv/pkg/codec"
)

// SyncKVStore serializes every call into a KVStore behind one mutex.
// The engine itself stays single-threaded.
type SyncKVStore struct {
	kv    *KVStore
	mutex sync.Mutex
}

// NewSyncKVStore wraps kv. The caller must stop using kv directly.
func NewSyncKVStore(kv *KVStore) *SyncKVStore {
	return &SyncKVStore{kv: kv}
}

func (s *SyncKVStore) Load() (*LoadResult, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.kv.Load()
}

func (s *SyncKVStore) Insert(key, value []byte) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.kv.Insert(key, value)
}

func (s *SyncKVStore) InsertRaw(key, value []byte) (int64, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.kv.InsertRaw(key, value)
}

func (s *SyncKVStore) Update(key, value []byte) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.kv.Update(key, value)
}

func (s *SyncKVStore) Delete(key []byte) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.kv.Delete(key)
}

func (s *SyncKVStore) Get(key []byte) ([]byte, bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.kv.Get(key)
}

func (s *SyncKVStore) GetAt(offset int64) (*codec.Record, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.kv.GetAt(offset)
}

func (s *SyncKVStore) SeekToEnd() (int64, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.kv.SeekToEnd()
}

func (s *SyncKVStore) Find(key []byte) (int64, bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.kv.Find(key)
}

func (s *SyncKVStore) Keys(prefix []byte) []string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.kv.Keys(prefix)
}

func (s *SyncKVStore) Stats() (*StoreStats, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.kv.Stats()
}

func (s *SyncKVStore) Sync() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.kv.Sync()
}

func (s *SyncKVStore) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.kv.Close()
}
