package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/ssargent/akv/pkg/config"
	"github.com/stretchr/testify/require"
)

// testEnv is a config file and log file in a temp directory
type testEnv struct {
	dir        string
	configPath string
	dataFile   string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dir := t.TempDir()
	env := &testEnv{
		dir:        dir,
		configPath: filepath.Join(dir, "config.yaml"),
		dataFile:   filepath.Join(dir, "akv.log"),
	}

	cfg := config.DefaultConfig()
	cfg.DataFile = env.dataFile
	cfg.Logging.Level = "error"
	require.NoError(t, config.SaveConfig(cfg, env.configPath))

	return env
}

// run executes one command against the environment and returns everything
// it printed
func (e *testEnv) run(args ...string) (string, error) {
	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", e.configPath}, args...))

	err := root.Execute()
	return out.String(), err
}

func (e *testEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.run(args...)
	require.NoError(t, err, out)
	return out
}

// corruptByte flips one byte of the log file
func (e *testEnv) corruptByte(t *testing.T, offset int64) {
	t.Helper()
	data, err := os.ReadFile(e.dataFile)
	require.NoError(t, err)
	data[offset] ^= 0xFF
	require.NoError(t, os.WriteFile(e.dataFile, data, 0600))
}

func (e *testEnv) appendBytes(t *testing.T, b []byte) {
	t.Helper()
	f, err := os.OpenFile(e.dataFile, os.O_APPEND|os.O_WRONLY, 0600)
	require.NoError(t, err)
	_, err = f.Write(b)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}
