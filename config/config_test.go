package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestLoad_LayersAndDefaults(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
db:
  host: db.internal
  password: ${DB_PASSWORD}
jwt:
  secret: ${JWT_SECRET}
points:
  checkin_points: 15
outbox:
  interval: 3s
`)
	writeFile(t, dir, "test.yaml", `
db:
  name: contenthub_test
`)
	writeFile(t, dir, "secrets.env", "DB_PASSWORD=s3cret\nJWT_SECRET=from-secrets\n")

	t.Setenv("CONFIG_ENV", "test")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("SERVER_PORT", "9090")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.DB.Host)
	assert.Equal(t, "contenthub_test", cfg.DB.Name)
	assert.Equal(t, "s3cret", cfg.DB.Password)
	assert.Equal(t, 5432, cfg.DB.Port)
	assert.Equal(t, "from-secrets", cfg.JWT.Secret)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, int64(15), cfg.Points.CheckinPoints)
	assert.Equal(t, 7, cfg.Points.StreakBonusDays)
	assert.Equal(t, 3*time.Second, cfg.Outbox.Interval)
	assert.Equal(t, "contenthub.events", cfg.MQ.Exchange)
	assert.Equal(t, "zh-CN", cfg.I18n.DefaultLocale)
}

func TestLoad_RequiresJWTSecret(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", "server:\n  port: \"8080\"\n")
	t.Setenv("CONFIG_ENV", "none")
	t.Setenv("JWT_SECRET", "")

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", "jwt:\n  secret: file\ndb:\n  host: file-host\n")
	t.Setenv("CONFIG_ENV", "none")
	t.Setenv("JWT_SECRET", "env")
	t.Setenv("DB_HOST", "env-host")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "env", cfg.JWT.Secret)
	assert.Equal(t, "env-host", cfg.DB.Host)
}
