package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_DefaultsWithoutFiles(t *testing.T) {
	cfg, err := Load("", filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "us-west-1", cfg.Region)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, 2*time.Minute, cfg.ReadinessTimeout)
	assert.Equal(t, 2*time.Minute, cfg.InstallTimeout)
	assert.Equal(t, 100*time.Millisecond, cfg.InstallInterval)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := writeFile(t, "config.yaml", `
username: jane
password: secret
region: eu-central-1
readinessTimeout: 90s
installInterval: 250ms
maxSessions: 2
iceServers:
  - stun:stun.example.com:3478
`)

	cfg, err := Load(path, filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "jane", cfg.Username)
	assert.Equal(t, "eu-central-1", cfg.Region)
	assert.Equal(t, 90*time.Second, cfg.ReadinessTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.InstallInterval)
	assert.Equal(t, 2, cfg.MaxSessions)
	assert.Equal(t, []string{"stun:stun.example.com:3478"}, cfg.ICEServers)
	assert.Equal(t, 2*time.Minute, cfg.InstallTimeout)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	path := writeFile(t, "config.yaml", "username: jane\nregion: eu-central-1\n")
	t.Setenv("DEVICECLOUD_REGION", "us-east-4")
	t.Setenv("DEVICECLOUD_INSTALL_TIMEOUT", "5m")
	t.Setenv("DEVICECLOUD_MAX_SESSIONS", "8")
	t.Setenv("DEVICECLOUD_CONNECT_VIDEO", "true")
	t.Setenv("DEVICECLOUD_ICE_SERVERS", "stun:a:3478, turn:b:3478")

	cfg, err := Load(path, filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "jane", cfg.Username)
	assert.Equal(t, "us-east-4", cfg.Region)
	assert.Equal(t, 5*time.Minute, cfg.InstallTimeout)
	assert.Equal(t, 8, cfg.MaxSessions)
	assert.True(t, cfg.ConnectVideo)
	assert.Equal(t, []string{"stun:a:3478", "turn:b:3478"}, cfg.ICEServers)
}

func TestLoad_EnvFile(t *testing.T) {
	envFile := writeFile(t, "test.env", "DEVICECLOUD_PASSWORD=from-dotenv\n")
	t.Cleanup(func() { os.Unsetenv("DEVICECLOUD_PASSWORD") })

	cfg, err := Load("", envFile)
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Password)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)

	bad := writeFile(t, "bad.yaml", "readinessTimeout: [1, 2]\n")
	_, err = Load(bad, filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)

	t.Setenv("DEVICECLOUD_READINESS_TIMEOUT", "soon")
	_, err = Load("", filepath.Join(t.TempDir(), "missing.env"))
	assert.ErrorContains(t, err, "DEVICECLOUD_READINESS_TIMEOUT")
}

func TestValidate(t *testing.T) {
	valid := Default()
	valid.Username = "jane"
	valid.Password = "secret"
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"missing username", func(c *Config) { c.Username = " " }, "username is required"},
		{"missing password", func(c *Config) { c.Password = "" }, "password is required"},
		{"unknown region", func(c *Config) { c.Region = "mars-1" }, `unknown region "mars-1"`},
		{"zero readiness timeout", func(c *Config) { c.ReadinessTimeout = 0 }, "readiness timeout must be positive"},
		{"negative install timeout", func(c *Config) { c.InstallTimeout = -time.Second }, "install timeout must be positive"},
		{"no sessions", func(c *Config) { c.MaxSessions = 0 }, "max sessions must be positive"},
		{"negative rate", func(c *Config) { c.CommandsPerMinute = -1 }, "rates must not be negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			assert.ErrorContains(t, c.Validate(), tt.want)
		})
	}
}

func TestAddFlags_OverrideOnlyGivenFlags(t *testing.T) {
	cfg := Default()
	cfg.Region = "eu-central-1"

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg.AddFlags(fs)
	require.NoError(t, fs.Parse([]string{"--listen", "127.0.0.1:9000", "--readiness-timeout", "30s", "--ice-server", "stun:x:1"}))

	assert.Equal(t, "127.0.0.1:9000", cfg.ListenAddr)
	assert.Equal(t, 30*time.Second, cfg.ReadinessTimeout)
	assert.Equal(t, "eu-central-1", cfg.Region)
	assert.Equal(t, []string{"stun:x:1"}, cfg.ICEServers)
}
