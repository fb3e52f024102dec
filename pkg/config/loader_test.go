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

func TestLoadConfig_EnvFileOverridesBase(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", "db:\n  host: localhost\n  port: 5432\nserver:\n  port: \":8080\"\n")
	writeFile(t, dir, "production.yaml", "db:\n  host: db.internal\n")

	merged, err := LoadConfig("production", dir)
	require.NoError(t, err)

	db := merged["db"].(map[string]interface{})
	assert.Equal(t, "db.internal", db["host"])
	assert.Equal(t, 5432, db["port"])
	assert.Equal(t, ":8080", merged["server"].(map[string]interface{})["port"])
}

func TestLoadConfig_MissingEnvFileUsesBase(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", "db:\n  host: localhost\n")

	merged, err := LoadConfig("staging", dir)
	require.NoError(t, err)
	assert.Equal(t, "localhost", merged["db"].(map[string]interface{})["host"])
}

func TestLoadConfig_MissingBaseFails(t *testing.T) {
	_, err := LoadConfig("local", t.TempDir())
	require.Error(t, err)
}

func TestLoadConfig_SecretsSubstitution(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", "jwt:\n  secret: \"${CH_TEST_JWT}\"\nmq:\n  url: \"amqp://${CH_TEST_MQ_USER}@mq\"\n")
	writeFile(t, dir, "secrets.env", "# comment\nCH_TEST_JWT=\"from-file\"\nCH_TEST_MQ_USER='guest'\n")

	merged, err := LoadConfig("", dir)
	require.NoError(t, err)
	assert.Equal(t, "from-file", merged["jwt"].(map[string]interface{})["secret"])
	assert.Equal(t, "amqp://guest@mq", merged["mq"].(map[string]interface{})["url"])
}

func TestLoadConfig_SystemEnvWinsOverSecrets(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", "jwt:\n  secret: \"${CH_TEST_JWT2}\"\n")
	writeFile(t, dir, "secrets.env", "CH_TEST_JWT2=from-file\n")
	t.Setenv("CH_TEST_JWT2", "from-env")

	merged, err := LoadConfig("", dir)
	require.NoError(t, err)
	assert.Equal(t, "from-env", merged["jwt"].(map[string]interface{})["secret"])
}

func TestDecode_IntoStruct(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", "db:\n  host: localhost\n  port: 5432\n  slow_query: 250ms\njwt:\n  ttl_hours: 12\n")

	var out struct {
		DB  DBConfig  `yaml:"db"`
		JWT JWTConfig `yaml:"jwt"`
	}
	require.NoError(t, Decode("local", dir, &out))
	assert.Equal(t, "localhost", out.DB.Host)
	assert.Equal(t, 5432, out.DB.Port)
	assert.Equal(t, 250*time.Millisecond, out.DB.SlowQuery)
	assert.Equal(t, 12*time.Hour, out.JWT.TTL())
}

func TestMergeMaps_NestedAndScalarReplace(t *testing.T) {
	dst := map[string]interface{}{
		"a": map[string]interface{}{"x": 1, "y": 2},
		"b": "keep",
	}
	src := map[string]interface{}{
		"a": map[string]interface{}{"y": 3},
		"b": map[string]interface{}{"now": "map"},
	}

	got := mergeMaps(dst, src)
	assert.Equal(t, map[string]interface{}{"x": 1, "y": 3}, got["a"])
	assert.Equal(t, map[string]interface{}{"now": "map"}, got["b"])
	// dst 不被修改
	assert.Equal(t, 2, dst["a"].(map[string]interface{})["y"])
}

func TestParseEnv(t *testing.T) {
	env := parseEnv("A=1\n\n# skip\nB = 'two'\nbroken\nC=\"x=y\"\n")
	assert.Equal(t, map[string]string{"A": "1", "B": "two", "C": "x=y"}, env)
}

func TestOverrideFromEnv(t *testing.T) {
	t.Setenv("DB_HOST", "pg")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("SERVER_PORT", ":9000")

	db := DBConfig{Host: "localhost", Port: 5432}
	OverrideDBFromEnv(&db)
	assert.Equal(t, "pg", db.Host)
	assert.Equal(t, 6543, db.Port)

	rc := RedisConfig{}
	OverrideRedisFromEnv(&rc)
	assert.Equal(t, "redis:6379", rc.Addr)

	jwtCfg := JWTConfig{}
	OverrideJWTFromEnv(&jwtCfg)
	assert.Equal(t, "s3cret", jwtCfg.Secret)

	srv := ServerConfig{}
	OverrideServerFromEnv(&srv)
	assert.Equal(t, ":9000", srv.Port)
}

func TestOverrideDBFromEnv_InvalidPortIgnored(t *testing.T) {
	t.Setenv("DB_PORT", "not-a-number")
	db := DBConfig{Port: 5432}
	OverrideDBFromEnv(&db)
	assert.Equal(t, 5432, db.Port)
}
