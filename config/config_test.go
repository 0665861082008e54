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
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "debug: false\n"))
	require.NoError(t, err)

	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, ":5000", cfg.Server.Addr())
	assert.Equal(t, "http://localhost:5000", cfg.Server.PublicURL)
	assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, int64(10<<20), cfg.Server.MaxUploadBytes)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, "fundus64", cfg.Model.Variant)
	assert.Equal(t, BackendONNX, cfg.Model.Backend)
	assert.Equal(t, 4, cfg.Model.PoolSize)
	assert.Equal(t, "static/uploads", cfg.Upload.Dir)
	assert.True(t, cfg.Upload.UniqueNames)
	assert.False(t, cfg.Preprocess.Normalize)
	assert.True(t, cfg.Cache.Enabled)
	assert.Zero(t, cfg.Server.RateLimit)
	assert.Empty(t, cfg.Log.File)
	assert.Equal(t, 100, cfg.Log.MaxSizeMB)
}

func TestLoadFileOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 8081
  publicurl: "https://catascan.example/"
model:
  variant: FUNDUS224
  backend: tflite
preprocess:
  normalize: true
cache:
  ttl: 30s
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, "https://catascan.example", cfg.Server.PublicURL)
	assert.Equal(t, "fundus224", cfg.Model.Variant)
	assert.Equal(t, BackendTFLite, cfg.Model.Backend)
	assert.True(t, cfg.Preprocess.Normalize)
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL)
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("DB_USER", "catascan")
	t.Setenv("DB_PASS", "s3cret")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("DB_NAME", "fundus")
	t.Setenv("MODEL_PATH", "/models/best.onnx")
	t.Setenv("PORT", "9000")
	t.Setenv("LOG_FILE", "/var/log/catascan.log")

	cfg, err := Load(writeConfig(t, "server:\n  port: 8081\n"))
	require.NoError(t, err)

	assert.Equal(t, "catascan", cfg.Database.User)
	assert.Equal(t, "s3cret", cfg.Database.Password)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "6543", cfg.Database.Port)
	assert.Equal(t, "fundus", cfg.Database.Name)
	assert.Equal(t, "/models/best.onnx", cfg.Model.Path)
	assert.Equal(t, "/var/log/catascan.log", cfg.Log.File)
	assert.Equal(t, 9000, cfg.Server.Port, "environment wins over the config file")
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: oracle
model:
  variant: fundus512
  backend: torch
  poolsize: 0
server:
  ratelimit: -1
`)
	_, err := Load(path)
	require.Error(t, err)
	for _, want := range []string{"database.driver", "model.backend", "model.variant", "model.poolsize", "server.ratelimit"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("CATASCAN_TEST_DOTENV=from-file\n"), 0o600))
	t.Setenv("CATASCAN_TEST_DOTENV", "")
	os.Unsetenv("CATASCAN_TEST_DOTENV")

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "from-file", os.Getenv("CATASCAN_TEST_DOTENV"))
}
