package store

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T, path string, config KVStoreConfig) *KVStore {
	t.Helper()

	kv, err := Open(path, config)
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })
	return kv
}

func testStorePath(t *testing.T) string {
	return filepath.Join(t.TempDir(), "data.akv")
}

func TestKVStore_BasicOperations(t *testing.T) {
	kv := openTestStore(t, testStorePath(t), KVStoreConfig{})

	key := []byte("test_key")
	value := []byte("test_value")

	require.NoError(t, kv.Insert(key, value))

	got, found, err := kv.Get(key)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, value, got)

	_, found, err = kv.Get([]byte("non_existent"))
	assert.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, kv.Delete(key))

	_, found, err = kv.Get(key)
	assert.NoError(t, err)
	assert.False(t, found)
}

func TestKVStore_UpdateValue(t *testing.T) {
	kv := openTestStore(t, testStorePath(t), KVStoreConfig{})

	key := []byte("a")
	require.NoError(t, kv.Insert(key, []byte("1")))
	require.NoError(t, kv.Update(key, []byte("2")))

	got, found, err := kv.Get(key)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("2"), got)

	// Both versions stay in the log
	end, err := kv.SeekToEnd()
	require.NoError(t, err)
	assert.Equal(t, int64(2*(12+1+1)), end)
}

func TestKVStore_MultipleKeys(t *testing.T) {
	kv := openTestStore(t, testStorePath(t), KVStoreConfig{})

	for i := 0; i < 50; i++ {
		key := []byte(fmt.Sprintf("key%02d", i))
		require.NoError(t, kv.Insert(key, []byte(fmt.Sprintf("value%d", i))))
	}

	for i := 0; i < 50; i++ {
		got, found, err := kv.Get([]byte(fmt.Sprintf("key%02d", i)))
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, fmt.Sprintf("value%d", i), string(got))
	}
}

func TestKVStore_SeekToEnd(t *testing.T) {
	kv := openTestStore(t, testStorePath(t), KVStoreConfig{})

	end, err := kv.SeekToEnd()
	require.NoError(t, err)
	assert.Equal(t, int64(0), end)

	previous := end
	for i := 0; i < 5; i++ {
		require.NoError(t, kv.Insert([]byte("k"), []byte(fmt.Sprintf("v%d", i))))

		end, err = kv.SeekToEnd()
		require.NoError(t, err)
		assert.Greater(t, end, previous)
		previous = end
	}

	// Reading does not move the end
	_, _, err = kv.Get([]byte("k"))
	require.NoError(t, err)
	end, err = kv.SeekToEnd()
	require.NoError(t, err)
	assert.Equal(t, previous, end)
}

func TestKVStore_InsertRawAndGetAt(t *testing.T) {
	kv := openTestStore(t, testStorePath(t), KVStoreConfig{})

	offset, err := kv.InsertRaw([]byte("key1"), []byte("value1"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), offset)

	record, err := kv.GetAt(offset)
	require.NoError(t, err)
	assert.Equal(t, []byte("key1"), record.Key)
	assert.Equal(t, []byte("value1"), record.Value)

	// Not indexed, so Get does not see it
	_, found, err := kv.Get([]byte("key1"))
	require.NoError(t, err)
	assert.False(t, found)

	offset2, err := kv.InsertRaw([]byte("key2"), []byte("value2"))
	require.NoError(t, err)
	assert.Equal(t, int64(22), offset2)
}

func TestKVStore_GetAt_OutOfRange(t *testing.T) {
	kv := openTestStore(t, testStorePath(t), KVStoreConfig{})

	require.NoError(t, kv.Insert([]byte("k"), []byte("v")))

	end, err := kv.SeekToEnd()
	require.NoError(t, err)

	_, err = kv.GetAt(end)
	assert.ErrorIs(t, err, ErrOffsetOutOfRange)
	_, err = kv.GetAt(end + 100)
	assert.ErrorIs(t, err, ErrOffsetOutOfRange)
}

func TestKVStore_Find(t *testing.T) {
	kv := openTestStore(t, testStorePath(t), KVStoreConfig{})

	_, found, err := kv.Find([]byte("k"))
	require.NoError(t, err)
	assert.False(t, found)

	off1, err := kv.InsertRaw([]byte("k"), []byte("v1"))
	require.NoError(t, err)
	_, err = kv.InsertRaw([]byte("other"), []byte("x"))
	require.NoError(t, err)

	offset, found, err := kv.Find([]byte("k"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, off1, offset)

	off2, err := kv.InsertRaw([]byte("k"), []byte("v2"))
	require.NoError(t, err)

	offset, found, err = kv.Find([]byte("k"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, off2, offset)

	record, err := kv.GetAt(offset)
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), record.Value)

	require.NoError(t, kv.Delete([]byte("k")))
	_, found, err = kv.Find([]byte("k"))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestKVStore_LoadOnFreshHandle(t *testing.T) {
	path := testStorePath(t)

	kv, err := Open(path, KVStoreConfig{})
	require.NoError(t, err)
	require.NoError(t, kv.Insert([]byte("x"), []byte("1")))
	require.NoError(t, kv.Insert([]byte("y"), []byte("2")))
	require.NoError(t, kv.Insert([]byte("x"), []byte("3")))
	require.NoError(t, kv.Delete([]byte("y")))
	_, err = kv.InsertRaw([]byte("z"), []byte("raw"))
	require.NoError(t, err)
	require.NoError(t, kv.Close())

	reopened := openTestStore(t, path, KVStoreConfig{})

	// Nothing is visible before Load
	_, found, err := reopened.Get([]byte("x"))
	require.NoError(t, err)
	assert.False(t, found)

	result, err := reopened.Load()
	require.NoError(t, err)
	assert.Equal(t, int64(5), result.RecordsIndexed)
	assert.Equal(t, int64(0), result.RecordsSkipped)
	assert.Equal(t, 3, result.Keys)
	assert.False(t, result.TornTail)

	got, found, err := reopened.Get([]byte("x"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("3"), got)

	_, found, err = reopened.Get([]byte("y"))
	require.NoError(t, err)
	assert.False(t, found)

	// Load indexes raw inserts too
	got, found, err = reopened.Get([]byte("z"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("raw"), got)

	assert.Equal(t, []string{"x", "z"}, reopened.Keys(nil))
}

func TestKVStore_LoadEmptyFile(t *testing.T) {
	kv := openTestStore(t, testStorePath(t), KVStoreConfig{})

	result, err := kv.Load()
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.RecordsIndexed)
	assert.Equal(t, 0, result.Keys)

	stats, err := kv.Stats()
	require.NoError(t, err)
	assert.True(t, stats.Loaded)
	assert.Equal(t, int64(0), stats.DataSize)
}

func TestKVStore_LoadIsRepeatable(t *testing.T) {
	kv := openTestStore(t, testStorePath(t), KVStoreConfig{})

	require.NoError(t, kv.Insert([]byte("a"), []byte("1")))
	first, err := kv.Load()
	require.NoError(t, err)
	second, err := kv.Load()
	require.NoError(t, err)

	assert.Equal(t, first.RecordsIndexed, second.RecordsIndexed)
	assert.Equal(t, first.Keys, second.Keys)
}

func TestKVStore_EmptyKeyAndValue(t *testing.T) {
	kv := openTestStore(t, testStorePath(t), KVStoreConfig{})

	require.NoError(t, kv.Insert(nil, []byte("empty key")))
	got, found, err := kv.Get([]byte{})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("empty key"), got)

	// An empty value is a tombstone
	require.NoError(t, kv.Insert([]byte("k"), []byte{}))
	_, found, err = kv.Get([]byte("k"))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestKVStore_BinaryKeys(t *testing.T) {
	kv := openTestStore(t, testStorePath(t), KVStoreConfig{})

	k1 := []byte{0x00, 0x01, 0xff}
	k2 := []byte{0x00, 0x01, 0xfe}
	require.NoError(t, kv.Insert(k1, []byte("one")))
	require.NoError(t, kv.Insert(k2, []byte("two")))

	got, found, err := kv.Get(k1)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, bytes.Equal([]byte("one"), got))
}

func TestKVStore_OversizedWriteChangesNothing(t *testing.T) {
	path := testStorePath(t)
	kv := openTestStore(t, path, KVStoreConfig{MaxFieldSize: 16})

	require.NoError(t, kv.Insert([]byte("k"), []byte("v")))
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	big := bytes.Repeat([]byte("x"), 17)
	assert.ErrorIs(t, kv.Insert(big, []byte("v")), ErrKeyTooLarge)
	assert.ErrorIs(t, kv.Insert([]byte("k"), big), ErrValueTooLarge)
	_, err = kv.InsertRaw([]byte("k"), big)
	assert.ErrorIs(t, err, ErrValueTooLarge)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	got, found, err := kv.Get([]byte("k"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("v"), got)
	assert.Equal(t, []string{"k"}, kv.Keys(nil))
}

func TestKVStore_KeysWithPrefix(t *testing.T) {
	kv := openTestStore(t, testStorePath(t), KVStoreConfig{})

	for _, key := range []string{"user:2", "user:1", "item:1"} {
		require.NoError(t, kv.Insert([]byte(key), []byte("v")))
	}
	require.NoError(t, kv.Delete([]byte("user:2")))

	assert.Equal(t, []string{"user:1"}, kv.Keys([]byte("user:")))
	assert.Equal(t, []string{"item:1", "user:1"}, kv.Keys(nil))
}

func TestKVStore_ForEachLive(t *testing.T) {
	kv := openTestStore(t, testStorePath(t), KVStoreConfig{})

	require.NoError(t, kv.Insert([]byte("b"), []byte("2")))
	require.NoError(t, kv.Insert([]byte("a"), []byte("1")))
	require.NoError(t, kv.Insert([]byte("c"), []byte("3")))
	require.NoError(t, kv.Delete([]byte("c")))

	var pairs []string
	err := kv.ForEachLive(func(key, value []byte) error {
		pairs = append(pairs, string(key)+"="+string(value))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a=1", "b=2"}, pairs)

	stop := fmt.Errorf("stop")
	calls := 0
	err = kv.ForEachLive(func(key, value []byte) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestKVStore_Stats(t *testing.T) {
	kv := openTestStore(t, testStorePath(t), KVStoreConfig{})

	require.NoError(t, kv.Insert([]byte("a"), []byte("1234")))
	require.NoError(t, kv.Insert([]byte("b"), []byte("5")))
	require.NoError(t, kv.Delete([]byte("b")))

	stats, err := kv.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Keys)
	assert.Equal(t, 1, stats.LiveKeys)
	assert.Equal(t, 1, stats.Tombstones)
	assert.Equal(t, int64(17+14+13), stats.DataSize)
	assert.Equal(t, int64(17), stats.LiveSize)
	assert.Equal(t, int64(3), stats.IndexedOps)
	assert.False(t, stats.Loaded)
}

func TestKVStore_Closed(t *testing.T) {
	kv, err := Open(testStorePath(t), KVStoreConfig{})
	require.NoError(t, err)
	require.NoError(t, kv.Close())
	require.NoError(t, kv.Close())

	assert.ErrorIs(t, kv.Insert([]byte("k"), []byte("v")), ErrStoreClosed)
	_, _, err = kv.Get([]byte("k"))
	assert.ErrorIs(t, err, ErrStoreClosed)
	_, err = kv.Load()
	assert.ErrorIs(t, err, ErrStoreClosed)
	_, err = kv.SeekToEnd()
	assert.ErrorIs(t, err, ErrStoreClosed)
	_, _, err = kv.Find([]byte("k"))
	assert.ErrorIs(t, err, ErrStoreClosed)
}

func TestKVStore_SyncWrites(t *testing.T) {
	path := testStorePath(t)
	kv := openTestStore(t, path, KVStoreConfig{SyncWrites: true})

	require.NoError(t, kv.Insert([]byte("durable"), []byte("yes")))
	require.NoError(t, kv.Sync())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(12+7+3), info.Size())
	assert.Equal(t, path, kv.Path())
}

func TestKVStore_ForEachDeleted(t *testing.T) {
	kv := openTestStore(t, testStorePath(t), KVStoreConfig{})

	require.NoError(t, kv.Insert([]byte("live"), []byte("1")))
	require.NoError(t, kv.Insert([]byte("gone"), []byte("2")))
	require.NoError(t, kv.Delete([]byte("gone")))
	require.NoError(t, kv.Delete([]byte("never-written")))

	var deleted []string
	require.NoError(t, kv.ForEachDeleted(func(key []byte) error {
		deleted = append(deleted, string(key))
		return nil
	}))
	assert.ElementsMatch(t, []string{"gone", "never-written"}, deleted)

	stop := errors.New("stop")
	calls := 0
	err := kv.ForEachDeleted(func(key []byte) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)

	require.NoError(t, kv.Close())
	assert.ErrorIs(t, kv.ForEachDeleted(func(key []byte) error { return nil }), ErrStoreClosed)
}

func BenchmarkKVStore_Insert(b *testing.B) {
	kv, err := Open(filepath.Join(b.TempDir(), "bench.akv"), KVStoreConfig{})
	require.NoError(b, err)
	defer kv.Close()

	value := bytes.Repeat([]byte("v"), 128)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = kv.Insert([]byte(fmt.Sprintf("key%d", i)), value)
	}
}

func BenchmarkKVStore_Get(b *testing.B) {
	kv, err := Open(filepath.Join(b.TempDir(), "bench.akv"), KVStoreConfig{})
	require.NoError(b, err)
	defer kv.Close()

	for i := 0; i < 1000; i++ {
		_ = kv.Insert([]byte(fmt.Sprintf("key%d", i)), []byte("value"))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = kv.Get([]byte(fmt.Sprintf("key%d", i%1000)))
	}
}
