package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  port: 9090
  host: "127.0.0.1"

database:
  url: "postgres://localhost/outreach?sslmode=disable"
  max_open_conns: 10

whatsapp:
  gateway_url: "http://localhost:3000"
  session_id: "sdr-maria"

worker:
  session_name: "sdr-maria"
  poll_interval_seconds: 15
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Addr())
	assert.Equal(t, "postgres://localhost/outreach?sslmode=disable", cfg.Database.URL)
	assert.Equal(t, 10, cfg.Database.MaxOpenConns)
	assert.Equal(t, "http://localhost:3000", cfg.WhatsApp.GatewayURL)
	assert.Equal(t, "sdr-maria", cfg.Worker.SessionName)
	assert.Equal(t, 15, cfg.Worker.PollIntervalSeconds)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.Equal(t, "us-east-1", cfg.Email.Region)
	assert.Equal(t, "default", cfg.Worker.SessionName)
	assert.Equal(t, 30, cfg.Worker.PollIntervalSeconds)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.NotEmpty(t, cfg.Intake.DefaultTemplate)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadInvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "bad.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server: [not a map"), 0644))

	_, err := Load(configPath)
	assert.Error(t, err)
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env-host/outreach")
	t.Setenv("SERVER_PORT", "9999")
	t.Setenv("WHATSAPP_SESSION_ID", "env-session")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadFromEnv("")
	require.NoError(t, err)

	assert.Equal(t, "postgres://env-host/outreach", cfg.Database.URL)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "env-session", cfg.WhatsApp.SessionID)
	assert.Equal(t, "debug", cfg.Logging.Level)
}
