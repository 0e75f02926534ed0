package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/go-netengine/endpoint"
)

const sample = `
Logger:
  level: debug
Service:
  threads: 8
Server:
  host: 127.0.0.1
  port: 2222
  reusePort: true
  Socket:
    noDelay: true
    receiveBufferLimit: 1048576
Client:
  address: localhost
  port: 2222
  connectTimeout: 3s
Resolver:
  ttl: 1m
  redisAddr: 127.0.0.1:6379
`

func writeFile(t *testing.T, dir, content string) string {
	t.Helper()

	path := filepath.Join(dir, "netengine.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	t.Setenv(EnvPath, "")

	t.Run("reads every section", func(t *testing.T) {
		c, err := Load(writeFile(t, t.TempDir(), sample))
		require.NoError(t, err)

		assert.Equal(t, "debug", c.Logger.Level)
		assert.Equal(t, 8, c.Service.Threads)
		assert.Equal(t, 2222, c.Server.Port)
		assert.True(t, c.Server.ReusePort)
		assert.False(t, c.Server.ReuseAddress)
		assert.True(t, c.Server.Socket.NoDelay)
		assert.Equal(t, "localhost", c.Client.Address)
		assert.Equal(t, 3*time.Second, c.Client.ConnectTimeout)
		assert.Equal(t, time.Minute, c.Resolver.TTL)
		assert.Equal(t, "127.0.0.1:6379", c.Resolver.RedisAddr)

		opts := c.Server.Options()
		assert.True(t, opts.NoDelay)
		assert.True(t, opts.ReusePort)
		assert.Equal(t, 1<<20, opts.ReceiveBufferLimit)

		ep, err := c.Server.Endpoint()
		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1:2222", ep.String())
	})

	t.Run("missing file yields defaults", func(t *testing.T) {
		c, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.NoError(t, err)
		assert.Equal(t, Default(), c)
		assert.Equal(t, "info", c.Logger.Level)
		assert.Equal(t, defaultPort, c.Server.Port)
		assert.True(t, c.Server.ReuseAddress)
		assert.Equal(t, defaultConnectTimeout, c.Client.ConnectTimeout)

		ep, err := c.Server.Endpoint()
		require.NoError(t, err)
		assert.Equal(t, endpoint.Unspecified, ep.Family())
	})

	t.Run("partial sections are completed", func(t *testing.T) {
		c, err := Load(writeFile(t, t.TempDir(), "Client:\n  address: 10.0.0.1\n  port: 80\n"))
		require.NoError(t, err)
		assert.Equal(t, defaultConnectTimeout, c.Client.ConnectTimeout)
		require.NotNil(t, c.Client.Socket)
		assert.Equal(t, "info", c.Logger.Level)
	})

	t.Run("env overrides path", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), "Service:\n  threads: 3\n")
		t.Setenv(EnvPath, path)

		c, err := Load("ignored.yaml")
		require.NoError(t, err)
		assert.Equal(t, 3, c.Service.Threads)
	})
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv(EnvPath, "")

	tests := []struct {
		name    string
		content string
	}{
		{"malformed yaml", "Server: [\n"},
		{"port out of range", "Server:\n  port: 70000\n"},
		{"bad host", "Server:\n  host: not-an-ip\n  port: 1\n"},
		{"unknown level", "Logger:\n  level: loud\n"},
		{"negative limit", "Server:\n  port: 1\n  Socket:\n    sendBufferLimit: -1\n"},
		{"negative threads", "Service:\n  threads: -2\n"},
		{"client without port", "Client:\n  address: 127.0.0.1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, t.TempDir(), tt.content))
			assert.Error(t, err)
		})
	}
}

func TestPath(t *testing.T) {
	t.Setenv(EnvPath, "")
	assert.Equal(t, DefaultFileName, Path(""))
	assert.Equal(t, "custom.yaml", Path("custom.yaml"))

	t.Setenv(EnvPath, "/etc/netengine.yaml")
	assert.Equal(t, "/etc/netengine.yaml", Path("custom.yaml"))
}

func TestConfig_Save(t *testing.T) {
	t.Setenv(EnvPath, "")
	path := filepath.Join(t.TempDir(), "saved.yaml")
	c := Default()
	c.Server.Port = 4242
	c.Client.ConnectTimeout = 5 * time.Second
	require.NoError(t, c.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4242, loaded.Server.Port)
	assert.Equal(t, 5*time.Second, loaded.Client.ConnectTimeout)
}

func TestWatch(t *testing.T) {
	path := writeFile(t, t.TempDir(), "Service:\n  threads: 1\n")

	var mu sync.Mutex
	var seen []int
	w, err := Watch(path, 20*time.Millisecond, nil, func(c *Config) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, c.Service.Threads)
	})
	require.NoError(t, err)
	defer w.Close()

	t.Run("invalid edit is skipped", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte("Service:\n  threads: -100\n"), 0o644))
		time.Sleep(200 * time.Millisecond)

		mu.Lock()
		defer mu.Unlock()
		assert.Empty(t, seen)
	})

	t.Run("valid edit reaches observer", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte("Service:\n  threads: 16\n  # reloaded\n"), 0o644))
		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(seen) > 0 && seen[len(seen)-1] == 16
		}, 5*time.Second, 20*time.Millisecond)
	})

	w.Close()
	w.Close()
}

func TestWatch_MissingFile(t *testing.T) {
	_, err := Watch(filepath.Join(t.TempDir(), "absent.yaml"), time.Second, nil, func(*Config) {})
	assert.Error(t, err)
}
