package backup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/ssargent/akv/pkg/codec"
	"github.com/ssargent/akv/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestLog(t *testing.T, path string) {
	t.Helper()

	kv, err := store.Open(path, store.KVStoreConfig{})
	require.NoError(t, err)
	defer kv.Close()

	require.NoError(t, kv.Insert([]byte("user:1"), []byte("alice")))
	require.NoError(t, kv.Insert([]byte("user:2"), []byte("bob")))
	require.NoError(t, kv.Delete([]byte("user:2")))
	require.NoError(t, kv.Update([]byte("user:1"), []byte("alice smith")))
}

func TestBackupAndRestore(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "data.akv")
	archive := filepath.Join(dir, "backups", "data.akv.zst")
	restored := filepath.Join(dir, "restored", "data.akv")
	writeTestLog(t, src)

	original, err := os.ReadFile(src)
	require.NoError(t, err)

	result, err := Backup(src, archive)
	require.NoError(t, err)
	assert.Equal(t, int64(len(original)), result.Bytes)
	assert.Greater(t, result.CompressedBytes, int64(0))

	info, err := os.Stat(archive)
	require.NoError(t, err)
	assert.Equal(t, result.CompressedBytes, info.Size())

	result, err = Restore(archive, restored, RestoreOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(4), result.Records)
	assert.Equal(t, int64(len(original)), result.Bytes)

	copied, err := os.ReadFile(restored)
	require.NoError(t, err)
	assert.Equal(t, original, copied)

	kv, err := store.Open(restored, store.KVStoreConfig{})
	require.NoError(t, err)
	defer kv.Close()
	_, err = kv.Load()
	require.NoError(t, err)

	value, found, err := kv.Get([]byte("user:1"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("alice smith"), value)
}

func TestBackupEmptyLog(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "empty.akv")
	require.NoError(t, os.WriteFile(src, nil, 0600))

	archive := filepath.Join(dir, "empty.zst")
	result, err := Backup(src, archive)
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.Bytes)

	restored := filepath.Join(dir, "restored.akv")
	result, err = Restore(archive, restored, RestoreOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.Records)

	info, err := os.Stat(restored)
	require.NoError(t, err)
	assert.Equal(t, int64(0), info.Size())
}

func TestBackupMissingSource(t *testing.T) {
	dir := t.TempDir()
	_, err := Backup(filepath.Join(dir, "missing.akv"), filepath.Join(dir, "out.zst"))
	assert.Error(t, err)

	_, err = os.Stat(filepath.Join(dir, "out.zst"))
	assert.True(t, os.IsNotExist(err))
}

func TestRestoreRefusesExistingLog(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "data.akv")
	archive := filepath.Join(dir, "data.zst")
	writeTestLog(t, src)

	_, err := Backup(src, archive)
	require.NoError(t, err)

	target := filepath.Join(dir, "target.akv")
	require.NoError(t, os.WriteFile(target, []byte("keep me"), 0600))

	_, err = Restore(archive, target, RestoreOptions{})
	assert.ErrorIs(t, err, ErrDestinationExists)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, []byte("keep me"), data)

	_, err = Restore(archive, target, RestoreOptions{Force: true})
	require.NoError(t, err)

	original, err := os.ReadFile(src)
	require.NoError(t, err)
	data, err = os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, original, data)
}

// compress writes data as a zstd archive at path
func compress(t *testing.T, path string, data []byte) {
	t.Helper()

	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, enc.EncodeAll(data, nil), 0600))
	require.NoError(t, enc.Close())
}

func TestRestoreRejectsDamagedLog(t *testing.T) {
	recordCodec := codec.NewRecordCodec()
	good, err := recordCodec.Encode([]byte("k1"), []byte("v1"))
	require.NoError(t, err)
	bad, err := recordCodec.Encode([]byte("k2"), []byte("v2"))
	require.NoError(t, err)
	bad[len(bad)-1] ^= 0xff

	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{"checksum mismatch", append(append([]byte{}, good...), bad...), codec.ErrChecksumMismatch},
		{"torn tail", append(append([]byte{}, good...), good[:5]...), codec.ErrTruncatedRecord},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			archive := filepath.Join(dir, "damaged.zst")
			compress(t, archive, tt.data)

			target := filepath.Join(dir, "target.akv")
			_, err := Restore(archive, target, RestoreOptions{})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)

			_, statErr := os.Stat(target)
			assert.True(t, os.IsNotExist(statErr))

			// Only the archive is left in the directory
			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			assert.Len(t, entries, 1)
		})
	}
}

func TestRestoreRejectsNonZstd(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "plain.akv")
	require.NoError(t, os.WriteFile(archive, []byte("definitely not zstd"), 0600))

	_, err := Restore(archive, filepath.Join(dir, "out.akv"), RestoreOptions{})
	assert.Error(t, err)
}

func TestRestoreSkipCorrupt(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "data.akv")

	kv, err := store.Open(src, store.KVStoreConfig{})
	require.NoError(t, err)
	var offsets []int64
	for _, key := range []string{"a", "b", "c"} {
		offset, err := kv.InsertRaw([]byte(key), []byte("value-"+key))
		require.NoError(t, err)
		offsets = append(offsets, offset)
	}
	require.NoError(t, kv.Close())

	// Damage one value byte of b; Load skips that record
	data, err := os.ReadFile(src)
	require.NoError(t, err)
	data[offsets[1]+codec.HeaderSize+2] ^= 0xff
	require.NoError(t, os.WriteFile(src, data, 0600))

	archive := filepath.Join(dir, "data.zst")
	_, err = Backup(src, archive)
	require.NoError(t, err)

	strict := filepath.Join(dir, "strict.akv")
	_, err = Restore(archive, strict, RestoreOptions{})
	assert.ErrorIs(t, err, codec.ErrChecksumMismatch)
	_, statErr := os.Stat(strict)
	assert.True(t, os.IsNotExist(statErr))

	restored := filepath.Join(dir, "restored.akv")
	result, err := Restore(archive, restored, RestoreOptions{SkipCorrupt: true})
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.Records)
	assert.Equal(t, int64(1), result.RecordsSkipped)

	copied, err := os.ReadFile(restored)
	require.NoError(t, err)
	assert.Equal(t, data, copied)

	kv, err = store.Open(restored, store.KVStoreConfig{})
	require.NoError(t, err)
	defer kv.Close()
	load, err := kv.Load()
	require.NoError(t, err)
	assert.Equal(t, int64(2), load.RecordsIndexed)
	assert.Equal(t, int64(1), load.RecordsSkipped)

	value, found, err := kv.Get([]byte("c"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("value-c"), value)
}

func TestRestoreSkipCorrupt_TornTailStillFails(t *testing.T) {
	recordCodec := codec.NewRecordCodec()
	good, err := recordCodec.Encode([]byte("k1"), []byte("v1"))
	require.NoError(t, err)

	dir := t.TempDir()
	archive := filepath.Join(dir, "torn.zst")
	compress(t, archive, append(append([]byte{}, good...), good[:5]...))

	_, err = Restore(archive, filepath.Join(dir, "out.akv"), RestoreOptions{SkipCorrupt: true})
	assert.ErrorIs(t, err, codec.ErrTruncatedRecord)
}
