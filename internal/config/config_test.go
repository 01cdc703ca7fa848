package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, 0.75, cfg.Policy.FaceThreshold)
	assert.Equal(t, 5*time.Minute, cfg.Policy.FailWindow)
	assert.Equal(t, 3, cfg.Policy.FailThreshold)
	assert.Equal(t, 10*time.Minute, cfg.Policy.Lockout)
	assert.Equal(t, 24*time.Hour, cfg.Policy.VisitorMaxDuration)
	assert.Equal(t, 20, cfg.Policy.DefaultPageSize)
	assert.Equal(t, 100, cfg.Policy.MaxPageSize)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "campusgate.yaml")
	yml := `
env: prod
httpAddr: ":9000"
store:
  backend: memory
policy:
  failThreshold: 5
  failWindow: 2m
kafka:
  brokers: ["k1:9092"]
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))

	t.Setenv("CAMPUSGATE_HTTP_ADDR", ":7000")
	t.Setenv("CAMPUSGATE_POLICY_FACE_THRESHOLD", "0.9")
	t.Setenv("CAMPUSGATE_ALERTS_ALLOWED_ORIGINS", "ops.example.edu, *.campus.edu")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "prod", cfg.Env)
	assert.Equal(t, ":7000", cfg.HTTPAddr, "env overrides file")
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, 5, cfg.Policy.FailThreshold)
	assert.Equal(t, 2*time.Minute, cfg.Policy.FailWindow)
	assert.Equal(t, 0.9, cfg.Policy.FaceThreshold)
	assert.Equal(t, []string{"k1:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "campusgate.alerts", cfg.Kafka.Topic)
	assert.Equal(t, []string{"ops.example.edu", "*.campus.edu"}, cfg.Alerts.AllowedOrigins)
}

func TestLoadUnknownEnvFallsBackToDev(t *testing.T) {
	t.Setenv("CAMPUSGATE_ENV", "staging")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "dev", cfg.Env)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Default()
	cfg.Policy.FaceThreshold = 1.5
	cfg.Policy.FailThreshold = 0
	cfg.Store.Backend = "postgres"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "faceThreshold")
	assert.Contains(t, err.Error(), "failThreshold")
	assert.Contains(t, err.Error(), "store.backend")
}

func TestNewLoggerFormatAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := LoggingConfig{Level: "warn", Format: "json"}.NewLogger(&buf)

	logger.Info("hidden")
	logger.Warn("shown", "gate", "gate_main")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"gate":"gate_main"`)
}
