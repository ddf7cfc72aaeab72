package infra

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_DefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10, cfg.RateLimit.Capacity)
	assert.InDelta(t, 0.5, cfg.RateLimit.RefillPerSecond, 1e-9)
	assert.Equal(t, 4000, cfg.Guardrail.MaxInputLength)
	assert.False(t, cfg.Guardrail.RedactEmail)
	assert.Equal(t, 3, cfg.Sentinel.Thresholds.RapidFire)
	assert.Equal(t, 5, cfg.Sentinel.Thresholds.ErrorLoop)
	assert.False(t, cfg.Sentinel.AutoBlock, "kill-switch from sentinel is opt-in")
	assert.Equal(t, 500*time.Millisecond, cfg.Engine.Audit.FlushInterval)
	assert.EqualValues(t, 3, cfg.Engine.Reliability.Attempts)
	assert.Empty(t, cfg.Database.URL)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orchestrator.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9000
ratelimit:
  capacity: 3
  refill_per_second: 2
guardrail:
  redact_email: true
sentinel:
  auto_block: true
  thresholds:
    error_loop: 7
  window: 2m
workflow:
  definitions_path: ./configs/workflows.yaml
`), 0o600))
	t.Setenv("SERVER_PORT", "9100")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port, "env wins over file")
	assert.Equal(t, 3, cfg.RateLimit.Capacity)
	assert.True(t, cfg.Guardrail.RedactEmail)
	assert.Equal(t, 7, cfg.Sentinel.Thresholds.ErrorLoop)
	assert.Equal(t, 3, cfg.Sentinel.Thresholds.RapidFire)
	assert.Equal(t, 2*time.Minute, cfg.Sentinel.Window)
	assert.True(t, cfg.Sentinel.AutoBlock)
	assert.Equal(t, "./configs/workflows.yaml", cfg.Workflow.DefinitionsPath)
}

func TestLoadConfig_AuthRequiresKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.yaml")
	require.NoError(t, os.WriteFile(path, []byte("auth:\n  enabled: true\n"), 0o600))

	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	l, err := NewLogger(LoggerConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, l)

	_, err = NewLogger(LoggerConfig{Level: "loud"})
	require.Error(t, err)
}
