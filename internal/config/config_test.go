package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, DefaultListen, cfg.Listen)
	assert.Equal(t, DefaultDevToolsURL, cfg.DevToolsURL)
	assert.Equal(t, time.Hour, cfg.Retention)
	assert.Equal(t, 5*time.Minute, cfg.SweepInterval)
	assert.Equal(t, []string{"classroom.google.com", "drive.google.com"}, cfg.FallbackOrigins)
	assert.Empty(t, cfg.AllowedOrigins)
}

func TestLoad_File(t *testing.T) {
	p := writeConfig(t, `
listen: 127.0.0.1:9000
devtoolsUrl: http://localhost:9333
retention: 30m
sweepInterval: 1m
fallbackOrigins: [drive.google.com]
launch:
  enabled: true
  port: 9333
`)

	cfg, err := Load(p)

	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Listen)
	assert.Equal(t, "http://localhost:9333", cfg.DevToolsURL)
	assert.Equal(t, 30*time.Minute, cfg.Retention)
	assert.Equal(t, time.Minute, cfg.SweepInterval)
	assert.Equal(t, []string{"drive.google.com"}, cfg.FallbackOrigins)
	assert.True(t, cfg.Launch.Enabled)
	assert.Equal(t, 9333, cfg.Launch.Port)
}

func TestLoad_UnknownFieldRejected(t *testing.T) {
	_, err := Load(writeConfig(t, "listn: x\n"))

	require.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))

	require.Error(t, err)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	p := writeConfig(t, "listen: 127.0.0.1:9000\n")
	t.Setenv("MEDIASNIFF_LISTEN", "127.0.0.1:9100")
	t.Setenv("MEDIASNIFF_RETENTION", "2h")
	t.Setenv("MEDIASNIFF_FALLBACK_ORIGINS", "a.example, b.example,")
	t.Setenv("MEDIASNIFF_RATE_LIMIT", "0")

	cfg, err := Load(p)

	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9100", cfg.Listen)
	assert.Equal(t, 2*time.Hour, cfg.Retention)
	assert.Equal(t, []string{"a.example", "b.example"}, cfg.FallbackOrigins)
	assert.Equal(t, 0, cfg.RateLimit)
}

func TestApplyEnv_BadDuration(t *testing.T) {
	cfg := Default()
	env := map[string]string{"MEDIASNIFF_SWEEP_INTERVAL": "soon"}

	err := cfg.applyEnv(func(k string) (string, bool) { v, ok := env[k]; return v, ok })

	require.Error(t, err)
	assert.Contains(t, err.Error(), "MEDIASNIFF_SWEEP_INTERVAL")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"default", func(*Config) {}, true},
		{"empty listen", func(c *Config) { c.Listen = " " }, false},
		{"ws devtools", func(c *Config) { c.DevToolsURL = "ws://127.0.0.1:9222" }, false},
		{"zero retention", func(c *Config) { c.Retention = 0 }, false},
		{"zero sweep", func(c *Config) { c.SweepInterval = 0 }, false},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, false},
		{"bad port", func(c *Config) { c.Launch.Port = 70000 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
