package api

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/ssargent/akv/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err      error
		expected int
	}{
		{store.ErrKeyTooLarge, http.StatusRequestEntityTooLarge},
		{store.ErrValueTooLarge, http.StatusRequestEntityTooLarge},
		{store.ErrOffsetOutOfRange, http.StatusNotFound},
		{store.ErrStoreClosed, http.StatusServiceUnavailable},
		{store.ErrChecksumMismatch, http.StatusInternalServerError},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.expected, statusForError(tt.err))
		})
	}
}

func TestStartServer_StopsOnCancel(t *testing.T) {
	kv, err := store.Open(filepath.Join(t.TempDir(), "data.akv"), store.KVStoreConfig{})
	require.NoError(t, err)
	syncStore := store.NewSyncKVStore(kv)
	defer syncStore.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- StartServer(ctx, syncStore, ServerConfig{
			Bind:     "127.0.0.1",
			Port:     0,
			APIKey:   "test-key",
			Registry: prometheus.NewRegistry(),
		})
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after cancel")
	}
}

func TestServerFactory(t *testing.T) {
	starter := NewServerFactory().CreateServerStarter()
	assert.IsType(t, &DefaultServerStarter{}, starter)
}

func TestServer_MetricsUpdater(t *testing.T) {
	kv, err := store.Open(filepath.Join(t.TempDir(), "data.akv"), store.KVStoreConfig{})
	require.NoError(t, err)
	syncStore := store.NewSyncKVStore(kv)
	defer syncStore.Close()
	require.NoError(t, syncStore.Insert([]byte("k"), []byte("v")))

	registry := prometheus.NewRegistry()
	server := NewServer(syncStore, ServerConfig{MetricsInterval: 10 * time.Millisecond}, NewMetrics(registry))

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		server.startMetricsUpdater(ctx)
		close(stopped)
	}()

	assert.Eventually(t, func() bool {
		families, err := registry.Gather()
		if err != nil {
			return false
		}
		for _, family := range families {
			if family.GetName() == "akv_db_live_keys" {
				return family.GetMetric()[0].GetGauge().GetValue() == 1
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-stopped
}
