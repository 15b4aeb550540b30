package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(vars map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "web3canvas.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg, err := LoadWithEnv("", env(nil))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, DriverMemory, cfg.Storage.Driver)
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
server:
  addr: 0.0.0.0:9000
  mode: debug
ethereum:
  url: https://sepolia.example/rpc
  rate_limit: 2.5
  timeout: 3s
price:
  cache_ttl: 1m
  retry:
    max_attempts: 5
storage:
  driver: badger
  badger:
    path: /var/lib/web3canvas
    max_snapshots: 10
engine:
  node_timeout: 500ms
`)
	cfg, err := LoadWithEnv(path, env(nil))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Addr)
	assert.Equal(t, "debug", cfg.Server.Mode)
	assert.Equal(t, "https://sepolia.example/rpc", cfg.Ethereum.URL)
	assert.Equal(t, 2.5, cfg.Ethereum.RateLimit)
	assert.Equal(t, 3*time.Second, cfg.Ethereum.Timeout)
	assert.Equal(t, 5, cfg.Ethereum.Burst, "unset keys keep defaults")
	assert.Equal(t, time.Minute, cfg.Price.CacheTTL)
	assert.Equal(t, 5, cfg.Price.Retry.MaxAttempts)
	assert.Equal(t, DriverBadger, cfg.Storage.Driver)
	assert.Equal(t, "/var/lib/web3canvas", cfg.Storage.Badger.Path)
	assert.Equal(t, 10, cfg.Storage.Badger.MaxSnapshots)
	assert.True(t, cfg.Storage.Badger.SyncWrites)
	assert.Equal(t, 500*time.Millisecond, cfg.Engine.NodeTimeout)
}

func TestEnvOverrides(t *testing.T) {
	path := writeFile(t, "log:\n  level: warn\n")
	cfg, err := LoadWithEnv(path, env(map[string]string{
		"WEB3CANVAS_LOG_LEVEL":           "debug",
		"WEB3CANVAS_LOG_JSON":            "true",
		"WEB3CANVAS_ETH_RPC_URL":         "http://localhost:8545",
		"WEB3CANVAS_QUEUE_MANUAL":        "1",
		"WEB3CANVAS_ENGINE_NODE_TIMEOUT": "2s",
	}))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.JSON)
	assert.Equal(t, "http://localhost:8545", cfg.Ethereum.URL)
	assert.True(t, cfg.Queue.Manual)
	assert.Equal(t, 2*time.Second, cfg.Engine.NodeTimeout)
}

func TestInvalid(t *testing.T) {
	cases := map[string]struct {
		file string
		env  map[string]string
	}{
		"UnknownKey":    {file: "server:\n  port: 80\n"},
		"BadDriver":     {file: "storage:\n  driver: sqlite\n"},
		"BadMode":       {env: map[string]string{"WEB3CANVAS_SERVER_MODE": "verbose"}},
		"BadAddr":       {env: map[string]string{"WEB3CANVAS_SERVER_ADDR": "nowhere"}},
		"BadURL":        {env: map[string]string{"WEB3CANVAS_ETH_RPC_URL": "not a url"}},
		"BadLevel":      {env: map[string]string{"WEB3CANVAS_LOG_LEVEL": "loud"}},
		"BadBool":       {env: map[string]string{"WEB3CANVAS_LOG_JSON": "maybe"}},
		"BadDuration":   {env: map[string]string{"WEB3CANVAS_ENGINE_NODE_TIMEOUT": "soon"}},
		"ZeroAttempts":  {file: "price:\n  retry:\n    max_attempts: 0\n"},
		"BadgerNoPath":  {env: map[string]string{"WEB3CANVAS_STORAGE_DRIVER": "badger", "WEB3CANVAS_STORAGE_PATH": ""}},
		"MalformedYAML": {file: "server: [\n"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			path := ""
			if tc.file != "" {
				path = writeFile(t, tc.file)
			}
			_, err := LoadWithEnv(path, env(tc.env))
			assert.Error(t, err)
		})
	}
}

func TestMissingFile(t *testing.T) {
	_, err := LoadWithEnv(filepath.Join(t.TempDir(), "absent.yaml"), env(nil))
	assert.Error(t, err)
}
