package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_FromEnvAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
postgres:
  dsn: postgres://localhost/canvas
auth:
  secret: s3cr3t
relay:
  presenceRate: 20
`)
	t.Setenv("CONFIG_PATH", path)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, []string{"*"}, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 10*time.Second, cfg.Directory.SyncEvery)
	assert.Equal(t, 20, cfg.Canvas.MaxOccupants)
	assert.Equal(t, 32, cfg.Canvas.GridSize)
	assert.Equal(t, rate.Limit(20), cfg.Relay.ToHubOptions().PresenceRate)
}

func TestLoad_ExplicitPathWinsAndParsesDurations(t *testing.T) {
	t.Setenv("CONFIG_PATH", "/does/not/exist.yaml")
	path := writeConfig(t, `
postgres:
  dsn: postgres://localhost/canvas
auth:
  secret: s3cr3t
  tokenTTL: 15m
reconnect:
  initial: 100ms
  budget: 3
canvas:
  width: 1024
  height: 1024
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 15*time.Minute, cfg.Auth.TokenTTL)
	b := cfg.Reconnect.ToBackoff()
	assert.Equal(t, 100*time.Millisecond, b.Initial)
	assert.Equal(t, 3, b.Budget)
	assert.NotZero(t, b.Max)

	m := cfg.Canvas.Mapper()
	assert.Equal(t, 1024, m.Width)
	assert.Equal(t, 512, m.FrameSize)
}

func TestLoad_Validation(t *testing.T) {
	cases := map[string]string{
		"missing dsn":    "auth:\n  secret: x\n",
		"missing secret": "postgres:\n  dsn: x\n",
		"frame too big":  "postgres:\n  dsn: x\nauth:\n  secret: x\ncanvas:\n  width: 256\n  height: 256\n",
		"negative rate":  "postgres:\n  dsn: x\nauth:\n  secret: x\nrelay:\n  presenceRate: -1\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 2048, cfg.Canvas.Width)
	assert.Equal(t, "sd-multiplayer-room-", cfg.Directory.SeedPrefix)
	assert.Zero(t, cfg.Relay.ToHubOptions().PresenceRate)
}
